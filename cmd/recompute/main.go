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

// One-shot batch recompute over every block with enough votes and no
// consensus.
func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts bootstrap.RecomputeOptions
	cmd := &cobra.Command{
		Use:          "quiltqc-recompute",
		Short:        "Re-evaluate consensus for blocks that have votes but no result",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFlags(cmd.Flags())
			if err != nil {
				return err
			}
			logger, closer := logging.New(cfg.Log, cfg.ServiceName, "recompute")
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildRecompute(cfg, opts, logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			summary, err := app.Run(ctx)
			logger.Info("recompute finished",
				"event", "recompute_finished",
				"module", "cmd/recompute",
				"layer", "platform",
				"candidates", summary.Candidates,
				"reached", summary.Reached,
				"no_agreement", summary.NoAgreement,
				"insufficient", summary.Insufficient,
				"failed", summary.Failed,
				"dry_run", summary.DryRun,
			)
			return err
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.Workers, "workers", 0, "concurrent blocks (default RECOMPUTE_WORKERS)")
	flags.IntVar(&opts.MaxAttempts, "max-attempts", 0, "attempts per block on storage errors (default RECOMPUTE_MAX_ATTEMPTS)")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "tally only, write nothing")
	flags.String("config-file", "", "optional config file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("log-level", "", "debug, info, warn or error")
	return cmd
}
