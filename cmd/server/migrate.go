package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rl1809/record-store/internal/adapter/storage"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the records, orders and order_items tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := contextOrBackground(cmd.Context())

			db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolConfig{})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := storage.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Info("schema up to date", slog.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
