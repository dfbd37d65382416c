package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh20ny/np-analytics-app-sub000/internal/snapshot"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild cadences and snapshots for every Sunday in a date range",
	Long: `Backfill walks each Sunday in [--from, --to], rebuilding cadences as
of that Sunday and then building its snapshot, so historical weeks see only
the facts that existed at the time. With no --from it starts at the oldest
fact in the database.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "first date to cover (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "last date to cover (YYYY-MM-DD, defaults to last Sunday)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	to := week.LastSunday(time.Now().UTC())
	if backfillTo != "" {
		to, err = week.Parse(backfillTo)
		if err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
	}

	db, err := openDB(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	s := store.New(db)

	var from time.Time
	if backfillFrom != "" {
		from, err = week.Parse(backfillFrom)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
	} else {
		earliest, err := s.Facts.EarliestFactDate(ctx)
		if err != nil {
			return err
		}
		if earliest == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no facts to backfill")
			return nil
		}
		from = *earliest
	}

	builder := snapshot.NewBuilder(s, cfg.Cadence, slog.Default())
	sundays := week.Sundays(from, to)
	for _, sunday := range sundays {
		if err := builder.RebuildCadences(ctx, sunday, cfg.Cadence.Signals); err != nil {
			return fmt.Errorf("rebuild cadences for %s: %w", week.Format(sunday), err)
		}
		if _, err := builder.Build(ctx, sunday, false); err != nil {
			return fmt.Errorf("build snapshot for %s: %w", week.Format(sunday), err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d weeks\n", len(sundays))
	return nil
}
