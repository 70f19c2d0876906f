package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eclipse-openj9/openj9-sub029/config"
	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/compiler"
	"github.com/eclipse-openj9/openj9-sub029/internal/serverd"
	"github.com/eclipse-openj9/openj9-sub029/internal/stream"
	"github.com/eclipse-openj9/openj9-sub029/logger"
)

// ServeCmd starts the coordination server.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the JIT compilation coordination server",
	RunE:    runServe,
}

var serveListenAddr string

func init() {
	ServeCmd.Flags().StringVar(&serveListenAddr, "listen", "", "override the configured listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if serveListenAddr != "" {
		cfg.Server.ListenAddr = serveListenAddr
	}

	l, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.ListenAddr)
	}
	if cfg.Server.TLS.Enabled {
		l, err = stream.WrapListener(l, cfg.Server.TLS)
		if err != nil {
			return errors.Wrap(err, "failed to configure TLS listener")
		}
	}

	srv := serverd.New(*cfg, compiler.ExternalCompiler(noopCompiler{}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server exited unexpectedly")
		}
		return nil
	case sig := <-sigCh:
		logger.Log.Infow("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
