// Package config holds the jitserverd configuration tree and its
// TOML/env loading, mirroring the layered config approach used
// throughout this codebase's sibling daemons.
package config

// Config is the root configuration for one jitserverd process.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sequencer SequencerConfig `mapstructure:"sequencer"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	AotCache  AotCacheConfig  `mapstructure:"aot_cache"`
	Health    HealthConfig    `mapstructure:"health"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the listening socket.
type ServerConfig struct {
	ListenAddr string    `mapstructure:"listen_addr"` // e.g. ":38400"
	TLS        TLSConfig `mapstructure:"tls"`
}

// TLSConfig configures optional mutual TLS between client VMs and the
// coordination server.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	ClientCAFile       string `mapstructure:"client_ca_file"` // if set, client certs are required and verified
	RequireClientCerts bool   `mapstructure:"require_client_certs"`
}

// SequencerConfig configures per-session request ordering.
type SequencerConfig struct {
	ParkTimeoutMS int `mapstructure:"park_timeout_ms"` // default ~1000ms per spec.md §4.D
}

// RegistryConfig configures session eviction.
type RegistryConfig struct {
	IdleEvictionSeconds        int `mapstructure:"idle_eviction_seconds"`
	IdleEvictionSecondsLowMem  int `mapstructure:"idle_eviction_seconds_low_mem"`
	PurgeIntervalSeconds       int `mapstructure:"purge_interval_seconds"`
}

// WorkerConfig holds the worker-count setting. The server has no
// fixed-size worker pool: each connection is served on its own
// goroutine, and nothing reads Workers.
type WorkerConfig struct {
	Workers int `mapstructure:"workers"`
}

// AotCacheConfig configures the optional AOT cache.
type AotCacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// HealthConfig configures memory/thread pressure thresholds.
type HealthConfig struct {
	SafeReserveBytes        int64 `mapstructure:"safe_reserve_bytes"`
	ScratchLowerBoundBytes  int64 `mapstructure:"scratch_lower_bound_bytes"`
	ThreadsHighWatermark    int   `mapstructure:"threads_high_watermark"`
	ThreadsVeryHighWatermark int  `mapstructure:"threads_very_high_watermark"`
	NormalRefreshMS         int   `mapstructure:"normal_refresh_ms"`
	LowRefreshMS            int   `mapstructure:"low_refresh_ms"`
}

// LogConfig holds logging settings as loaded and shown by `config show`.
// The process logger is configured from the --json-log and -v flags;
// these values are not read when it is initialized.
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"` // debug|info|warn|error
}

// Defaults returns a Config populated with sane production defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":38400",
		},
		Sequencer: SequencerConfig{
			ParkTimeoutMS: 1000,
		},
		Registry: RegistryConfig{
			IdleEvictionSeconds:       600,
			IdleEvictionSecondsLowMem: 60,
			PurgeIntervalSeconds:      30,
		},
		Worker: WorkerConfig{
			Workers: 8,
		},
		AotCache: AotCacheConfig{
			Enabled: false,
			Dir:     "/var/lib/jitserverd/aotcache",
		},
		Health: HealthConfig{
			SafeReserveBytes:         512 << 20,
			ScratchLowerBoundBytes:   32 << 20,
			ThreadsHighWatermark:     64,
			ThreadsVeryHighWatermark: 96,
			NormalRefreshMS:          250,
			LowRefreshMS:             50,
		},
		Log: LogConfig{
			JSON:  false,
			Level: "info",
		},
	}
}
