package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/inventory/internal/adapter/storage"
	"github.com/rl1809/inventory/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema for DB_DRIVER",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, dialect, err := openSQL(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(cmd.Context(), db, dialect); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", dialect)
		return nil
	},
}

// openSQL opens the SQL database named by DB_DRIVER.
func openSQL(ctx context.Context, cfg *config.Config) (*sql.DB, storage.Dialect, error) {
	if cfg.DBDriver == config.DriverMemory {
		return nil, "", errors.New("DB_DRIVER is memory; nothing to migrate")
	}
	dialect := storage.Dialect(cfg.DBDriver)
	db, err := storage.OpenSQL(ctx, dialect, cfg.DatabaseDSN)
	return db, dialect, err
}
