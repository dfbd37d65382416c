package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh20ny/np-analytics-app-sub000/internal/report"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

var (
	reportWeekEnd     string
	reportRollingDays int
	reportNoSnapshot  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Assemble the weekly report and print it as JSON",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportWeekEnd, "week-end", "", "report week end (YYYY-MM-DD, defaults to last Sunday)")
	reportCmd.Flags().IntVar(&reportRollingDays, "rolling-days", 0, "override the cadence event window")
	reportCmd.Flags().BoolVar(&reportNoSnapshot, "no-snapshot", false, "skip the cadence rebuild and snapshot step")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	weekEnd := week.LastSunday(time.Now().UTC())
	if reportWeekEnd != "" {
		weekEnd, err = week.Parse(reportWeekEnd)
		if err != nil {
			return fmt.Errorf("parse --week-end: %w", err)
		}
	}

	db, err := openDB(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := report.DefaultOptions()
	opts.EnsureSnapshot = !reportNoSnapshot
	if reportRollingDays > 0 {
		opts.RollingDays = reportRollingDays
	}

	agg := report.NewAggregator(store.New(db), cfg.Cadence, slog.Default())
	rep, err := agg.WeeklyReport(cmd.Context(), weekEnd, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
