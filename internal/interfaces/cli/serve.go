package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/ShiftScope/internal/bootstrap"
	"github.com/turtacn/ShiftScope/internal/config"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/ShiftScope/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cliCtx.Config.Server.Addr()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cliCtx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.host:server.port)")
	return cmd
}

// runServer serves until ctx is done, then drains in-flight requests.
func runServer(ctx context.Context, cliCtx *CLIContext, addr string) error {
	cfg := cliCtx.Config
	log := cliCtx.Logger

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if cliCtx.ConfigPath != "" {
		if err := config.Watch(cliCtx.ConfigPath, func(*config.Config) {
			log.Info("configuration file changed; restart to apply", logging.String("path", cliCtx.ConfigPath))
		}, func(err error) {
			log.Warn("configuration reload failed", logging.Err(err))
		}); err != nil {
			log.Warn("configuration watch disabled", logging.Err(err))
		}
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, app.Router(Version), log)

	// Load the local dataset before taking traffic so the first request does
	// not pay for it.
	if _, err := app.Loader.Ensure(ctx); err != nil {
		log.Warn("local shift dataset unavailable at start-up", logging.Err(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("shiftscope started", logging.String("version", Version), logging.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	return srv.Shutdown(context.Background())
}
