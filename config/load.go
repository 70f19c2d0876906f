package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/eclipse-openj9/openj9-sub029/errors"
)

const envPrefix = "JITSERVERD"

// Load reads configuration from (in ascending precedence): built-in
// defaults, /etc/jitserverd/config.toml, ~/.jitserverd/config.toml, a
// project jitserverd.toml (or, failing that, config.toml) found by
// walking up from the working directory, then JITSERVERD_-prefixed
// environment variables.
func Load() (*Config, error) {
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal jitserverd config")
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from one explicit TOML file, with no
// layered merge beyond the built-in defaults. Used by tests.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", path)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	mergeConfigFiles(v)

	return v
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("sequencer.park_timeout_ms", d.Sequencer.ParkTimeoutMS)
	v.SetDefault("registry.idle_eviction_seconds", d.Registry.IdleEvictionSeconds)
	v.SetDefault("registry.idle_eviction_seconds_low_mem", d.Registry.IdleEvictionSecondsLowMem)
	v.SetDefault("registry.purge_interval_seconds", d.Registry.PurgeIntervalSeconds)
	v.SetDefault("worker.workers", d.Worker.Workers)
	v.SetDefault("aot_cache.enabled", d.AotCache.Enabled)
	v.SetDefault("aot_cache.dir", d.AotCache.Dir)
	v.SetDefault("health.safe_reserve_bytes", d.Health.SafeReserveBytes)
	v.SetDefault("health.scratch_lower_bound_bytes", d.Health.ScratchLowerBoundBytes)
	v.SetDefault("health.threads_high_watermark", d.Health.ThreadsHighWatermark)
	v.SetDefault("health.threads_very_high_watermark", d.Health.ThreadsVeryHighWatermark)
	v.SetDefault("health.normal_refresh_ms", d.Health.NormalRefreshMS)
	v.SetDefault("health.low_refresh_ms", d.Health.LowRefreshMS)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.level", d.Log.Level)
}

// findProjectConfig walks up from the working directory looking for
// jitserverd.toml (preferred) or config.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		primary := filepath.Join(dir, "jitserverd.toml")
		if _, err := os.Stat(primary); err == nil {
			return primary
		}
		fallback := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(fallback); err == nil {
			return fallback
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// mergeConfigFiles merges config files in precedence order: system <
// user < project. Environment variables (already bound via
// AutomaticEnv) sit above all of them.
func mergeConfigFiles(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	userDir := filepath.Join(home, ".jitserverd")

	paths := []string{
		"/etc/jitserverd/config.toml",
		filepath.Join(userDir, "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		settings := tmp.AllSettings()
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v.Set(k, settings[k])
		}
	}
}
