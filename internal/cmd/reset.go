package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apicadence "github.com/josh20ny/np-analytics-app-sub000/internal/api/cadence"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

var resetConfirm string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all derived cadence, snapshot and rollup data",
	Long: `Reset truncates every derived table: cadences, weekly snapshots,
lapse and dormancy events, tier transitions, and the weekly rollups. The
ingested fact tables are untouched. Requires --confirm ` + apicadence.ResetConfirmToken + `.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetConfirm, "confirm", "", "must be "+apicadence.ResetConfirmToken)
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if resetConfirm != apicadence.ResetConfirmToken {
		return fmt.Errorf("refusing to reset without --confirm %s", apicadence.ResetConfirmToken)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	s := store.New(db)
	for _, del := range []func() error{
		func() error { return s.Lapses.DeleteAll(ctx) },
		func() error { return s.Weekly.DeleteAll(ctx) },
		func() error { return s.Snapshots.DeleteAll(ctx) },
		func() error { return s.Cadence.DeleteAll(ctx) },
	} {
		if err := del(); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "derived tables truncated")
	return nil
}
