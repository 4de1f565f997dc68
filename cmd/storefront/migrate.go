package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/internal/logging"
	"github.com/R3E-Network/storefront/internal/store/postgres"
	"github.com/R3E-Network/storefront/internal/storefront"
)

func newMigrateCmd() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the postgres schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			logger := logging.New(storefront.ServiceName, cfg.LogLevel, cfg.LogFormat)
			st, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			dir := postgres.Direction(args[0])
			if err := postgres.Migrate(st.DB(), dir); err != nil {
				return err
			}
			logger.WithField("direction", dir).Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres DSN, overrides DATABASE_URL")
	return cmd
}
