package main

import (
	"context"
	"os"

	"quiltqc/internal/app/bootstrap"
	"quiltqc/internal/platform/config"
	"quiltqc/internal/platform/logging"

	"github.com/spf13/cobra"
)

// Schema migration and block seeding. Safe to re-run.
func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quiltqc-migrate",
		Short:        "Create tables and seed block rows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFlags(cmd.Flags())
			if err != nil {
				return err
			}
			logger, closer := logging.New(cfg.Log, cfg.ServiceName, "migrate")
			defer closer.Close()

			_, err = bootstrap.Migrate(cmd.Context(), cfg, logger)
			return err
		},
	}
	flags := cmd.Flags()
	flags.String("config-file", "", "optional config file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.Int("block-count", 0, "seed blocks 1..N")
	return cmd
}
