package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"quiltqc/internal/app/bootstrap"
	"quiltqc/internal/platform/config"
	"quiltqc/internal/platform/logging"

	"github.com/spf13/cobra"
)

// API process entrypoint.
// Data flow:
// 1) Load config (env, optional file, flags).
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quiltqc-api",
		Short:        "Serve the quilt-block review API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFlags(cmd.Flags())
			if err != nil {
				return err
			}
			logger, closer := logging.New(cfg.Log, cfg.ServiceName, "api")
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildAPI(cfg, logger)
			if err != nil {
				logger.Error("bootstrap api failed",
					"event", "api_bootstrap_failed",
					"module", "cmd/api",
					"layer", "platform",
					"error", err.Error(),
				)
				return err
			}
			defer func() { _ = app.Close() }()
			return app.Run(ctx)
		},
	}
	flags := cmd.Flags()
	flags.String("config-file", "", "optional config file")
	flags.String("http-port", "", "listen port")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("log-level", "", "debug, info, warn or error")
	return cmd
}
