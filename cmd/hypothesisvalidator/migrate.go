package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"HypothesisValidator/internal/app"
	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/infrastructure/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.Driver == config.DriverPostgres {
			if err := storage.MigrateUp(cfg.Storage.DSN); err != nil {
				return err
			}
			logger.Info("migrations applied", "driver", cfg.Storage.Driver)
			return nil
		}

		store, err := app.OpenStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.Storage.Driver, err)
		}
		logger.Info("schema applied", "driver", cfg.Storage.Driver)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations (postgres only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres(); err != nil {
			return err
		}
		if err := storage.MigrateDown(cfg.Storage.DSN); err != nil {
			return err
		}
		logger.Info("migrations rolled back")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version (postgres only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres(); err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
		return nil
	},
}

func requirePostgres() error {
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("versioned migrations need the postgres driver, got %q", cfg.Storage.Driver)
	}
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
