package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/config"
	"github.com/yourusername/market-api/internal/logging"
	"github.com/yourusername/market-api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := store.Migrate(ctx, pg.Pool()); err != nil {
				return err
			}
			logger.Info("schema applied", zap.String("database", redactURL(cfg.DatabaseURL)))
			return nil
		},
	}
}
