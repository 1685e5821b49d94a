package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sitewalk/sitewalk/internal/config"
	"github.com/sitewalk/sitewalk/internal/database"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: "Apply or roll back schema migrations against the database named by\n" +
		"the server configuration (SITEWALK_CONFIG and DB_* variables).",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
			return err
		}
		slog.Info("schema up to date", slog.String("path", cfg.MigrationsPath))
		return nil
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.RollbackMigrations(db, cfg.MigrationsPath, rollbackSteps); err != nil {
			return err
		}
		slog.Info("rolled back migrations", slog.Int("steps", rollbackSteps))
		return nil
	},
}

func init() {
	migrateRollbackCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateRollbackCmd)
}
