// Package cmd holds the npanalytics CLI commands.
package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/database"
)

var rootCmd = &cobra.Command{
	Use:   "npanalytics",
	Short: "Engagement cadence analytics service",
	Long: `npanalytics infers per-person engagement cadences from check-in,
giving, group and serving facts, snapshots them weekly, and assembles the
weekly front-door/back-door report.`,
	SilenceUsage: true,
}

var (
	flagDB     string
	flagConfig string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides NPA_DB)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file (overrides NPA_CONFIG)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves configuration from the environment plus CLI flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig, cfg)
		if err != nil {
			return config.Config{}, err
		}
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

// openDB opens the configured database and applies migrations.
func openDB(cmd *cobra.Command, cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(cmd.Context(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}
