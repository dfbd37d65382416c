package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh20ny/np-analytics-app-sub000/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo congregation data into an empty database",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := seed.Seed(cmd.Context(), db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "demo data seeded")
	return nil
}
