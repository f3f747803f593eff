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

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run the outbox relay and the periodic consensus recompute sweep.
func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quiltqc-worker",
		Short:        "Relay block events and sweep blocks awaiting consensus",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFlags(cmd.Flags())
			if err != nil {
				return err
			}
			logger, closer := logging.New(cfg.Log, cfg.ServiceName, "worker")
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildWorker(cfg, logger)
			if err != nil {
				logger.Error("bootstrap worker failed",
					"event", "worker_bootstrap_failed",
					"module", "cmd/worker",
					"layer", "platform",
					"error", err.Error(),
				)
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Warn("worker shutdown close failed",
						"event", "worker_close_failed",
						"module", "cmd/worker",
						"layer", "platform",
						"error", err.Error(),
					)
				}
			}()
			return app.Run(ctx)
		},
	}
	flags := cmd.Flags()
	flags.String("config-file", "", "optional config file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.Duration("worker-poll-interval", 0, "outbox relay poll interval")
	flags.Duration("recompute-interval", 0, "interval between recompute sweeps")
	flags.Bool("enable-outbox-relay", true, "publish pending outbox rows")
	flags.String("log-level", "", "debug, info, warn or error")
	return cmd
}
