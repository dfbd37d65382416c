package report_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/report"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/testhelpers"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

var weekEnd = week.Date(2025, 6, 8) // Sunday

func newAggregator(t *testing.T) (*report.Aggregator, *store.Store) {
	t.Helper()
	st := store.New(testhelpers.NewMigratedDB(t))
	return report.NewAggregator(st, config.DefaultCadence(), slog.Default()), st
}

func datePtr(d time.Time) *time.Time { return &d }

// seedWeek sets up a small congregation:
//   - giver: monthly giving, current through the report week
//   - server: active on a serving team, first joined during the week
//   - ghost: regular giver who went silent months ago
func seedWeek(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	people := []domain.Person{
		{PersonID: "giver", FirstName: "Grace", LastName: "Ives", Email: "grace@example.com"},
		{PersonID: "server", FirstName: "Sal", LastName: "Usher"},
		{PersonID: "ghost", FirstName: "Gus", LastName: "Gone", Email: "gus@example.com"},
	}
	for _, p := range people {
		require.NoError(t, st.Facts.InsertPerson(ctx, p))
	}

	for _, w := range []string{"2025-03-09", "2025-04-06", "2025-05-04", "2025-06-08"} {
		d, err := week.Parse(w)
		require.NoError(t, err)
		require.NoError(t, st.Facts.InsertGiving(ctx, "giver", d, 1))
	}

	require.NoError(t, st.Facts.InsertGroup(ctx, "t1", "Teams", true))
	require.NoError(t, st.Facts.InsertMembership(ctx, domain.GroupMembership{
		PersonID: "server", GroupID: "t1", Status: "active",
		FirstJoinedAt: datePtr(week.Date(2025, 6, 4)),
	}))

	// ghost gave weekly through early January, then stopped.
	for _, w := range []string{"2024-12-15", "2024-12-22", "2024-12-29", "2025-01-05"} {
		d, err := week.Parse(w)
		require.NoError(t, err)
		require.NoError(t, st.Facts.InsertGiving(ctx, "ghost", d, 1))
	}

	require.NoError(t, st.Facts.InsertAdultAttendance(ctx, week.Date(2025, 6, 1), 1000))
	require.NoError(t, st.Facts.InsertAdultAttendance(ctx, weekEnd, 1100))
}

func TestWeeklyReport(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()
	seedWeek(t, st)

	rep, err := agg.WeeklyReport(ctx, weekEnd, report.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, rep.Notes)

	assert.Equal(t, "2025-06-02", rep.WeekStart)
	assert.Equal(t, "2025-06-08", rep.WeekEnd)

	// giver's 28-day gaps classify as monthly; ghost is lapsed and excluded
	// from the histogram.
	give := rep.CadenceBuckets[domain.SignalGive]
	require.NotNil(t, give)
	assert.Equal(t, 1, give[domain.BucketMonthly])
	assert.Equal(t, 0, give[domain.BucketWeekly])

	// server first joined a serving team inside the week.
	assert.Equal(t, 1, rep.FrontDoor.FirstTimeServing)
	assert.Equal(t, 0, rep.FrontDoor.FirstTimeCheckins)

	// giver: give on-track (tier 1). server: serving + give-default (tier 2).
	// ghost: off-track everywhere (tier 0).
	assert.Equal(t, 1, rep.Engaged.Engaged0)
	assert.Equal(t, 1, rep.Engaged.Engaged1)
	assert.Equal(t, 1, rep.Engaged.Engaged2)

	// ghost's weekly giving stopped in January: lapsed, with an item.
	assert.Equal(t, 1, rep.Lapses.NewThisWeekTotal)
	assert.Equal(t, 1, rep.Lapses.NewBySignal[domain.SignalGive])
	require.Len(t, rep.Lapses.ItemsGive, 1)
	assert.Equal(t, "Gus Gone", rep.Lapses.ItemsGive[0].Name)
	assert.Equal(t, domain.BucketWeekly, rep.Lapses.ItemsGive[0].Bucket)

	assert.Equal(t, 90, rep.NoLongerAttends.ThresholdDays)

	// Rollups were persisted.
	front, err := st.Weekly.GetFrontDoor(ctx, week.Date(2025, 6, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, front.FirstTimeServing)
	back, err := st.Weekly.GetBackDoor(ctx, weekEnd)
	require.NoError(t, err)
	assert.Equal(t, back.BDI, rep.BackDoor.BDI)

	require.NotNil(t, rep.AdultAttendanceAvg4W)
	assert.Equal(t, 1050.0, *rep.AdultAttendanceAvg4W)
	assert.Equal(t, 1, rep.AsOf.ServingActive)
}

func TestWeeklyReportIdempotent(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()
	seedWeek(t, st)

	first, err := agg.WeeklyReport(ctx, weekEnd, report.DefaultOptions())
	require.NoError(t, err)
	second, err := agg.WeeklyReport(ctx, weekEnd, report.DefaultOptions())
	require.NoError(t, err)

	// The rerun converges: same tier counts, histograms and lapse flow,
	// with no duplicate rows.
	assert.Equal(t, first.Engaged, second.Engaged)
	assert.Equal(t, first.CadenceBuckets, second.CadenceBuckets)
	assert.Equal(t, first.Lapses.NewThisWeekTotal, second.Lapses.NewThisWeekTotal)
	assert.Equal(t, first.Lapses.TotalLapsedPeople, second.Lapses.TotalLapsedPeople)

	var lapseRows int
	require.NoError(t, st.DB.QueryRow(`SELECT COUNT(*) FROM lapse_events`).Scan(&lapseRows))
	assert.Equal(t, 1, lapseRows)
}

func TestWeeklyReportSnapsToSunday(t *testing.T) {
	agg, st := newAggregator(t)
	ctx := context.Background()
	seedWeek(t, st)

	// A mid-week Wednesday resolves to the previous Sunday's report.
	rep, err := agg.WeeklyReport(ctx, week.Date(2025, 6, 11), report.Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-08", rep.WeekEnd)
	_ = st
}
