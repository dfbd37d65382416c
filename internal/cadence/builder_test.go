package cadence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh20ny/np-analytics-app-sub000/internal/cadence"
	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
)

func TestBuildRowsWeeklyScenario(t *testing.T) {
	// Events on days 1, 8, 15, 22 with asOf = day 22.
	b := cadence.NewBuilder(config.DefaultCadence())

	rows := b.BuildRows(map[string][]time.Time{"p1": days(1, 8, 15, 22)}, domain.SignalAttend, day(22))
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "p1", r.PersonID)
	assert.Equal(t, domain.SignalAttend, r.Signal)
	assert.Equal(t, domain.BucketWeekly, r.Bucket)
	assert.Equal(t, 4, r.SamplesN)
	require.NotNil(t, r.MedianIntervalDays)
	assert.Equal(t, 7, *r.MedianIntervalDays)
	require.NotNil(t, r.LastSeenDate)
	assert.Equal(t, day(22), *r.LastSeenDate)
	require.NotNil(t, r.ExpectedNextDate)
	assert.Equal(t, day(29), *r.ExpectedNextDate)
	assert.Equal(t, 0, r.MissedCycles)
	assert.Equal(t, domain.CalcMethodIntervals, r.CalcMethod)
}

func TestBuildRowsSkipsZeroSamplePeople(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())

	rows := b.BuildRows(map[string][]time.Time{
		"p1": days(1, 8),
		"p2": nil,
	}, domain.SignalGive, day(8))

	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].PersonID)
}

func TestBuildRowsOneOff(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())

	rows := b.BuildRows(map[string][]time.Time{"p1": days(10)}, domain.SignalGive, day(100))
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, domain.BucketOneOff, r.Bucket)
	assert.Nil(t, r.MedianIntervalDays)
	assert.Nil(t, r.IQRDays)
	assert.Nil(t, r.ExpectedNextDate, "one_off rows never project an expected next date")
	assert.Equal(t, 0, r.MissedCycles)
}

func TestBuildRowsIrregularNoExpectedNext(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())

	rows := b.BuildRows(map[string][]time.Time{"p1": days(1, 61, 121)}, domain.SignalAttend, day(200))
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, domain.BucketIrregular, r.Bucket)
	assert.Nil(t, r.ExpectedNextDate)
	assert.Equal(t, 0, r.MissedCycles, "irregular buckets never accrue missed cycles")
}

func TestBuildRowsMissedCyclesAccrue(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())

	// Weekly pattern last seen day 22, asOf day 52: expected day 29,
	// 23 days past -> 3 missed cycles.
	rows := b.BuildRows(map[string][]time.Time{"p1": days(1, 8, 15, 22)}, domain.SignalAttend, day(52))
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].MissedCycles)
}

func TestBuildRowsDeterministic(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())
	events := map[string][]time.Time{
		"p3": days(1, 8, 15),
		"p1": days(2, 30),
		"p2": days(5),
	}

	first := b.BuildRows(events, domain.SignalGive, day(30))
	second := b.BuildRows(events, domain.SignalGive, day(30))

	assert.Equal(t, first, second, "identical inputs produce identical rows")
	require.Len(t, first, 3)
	assert.Equal(t, []string{first[0].PersonID, first[1].PersonID, first[2].PersonID},
		[]string{"p1", "p2", "p3"}, "rows sorted by person ID")
}

func TestBuildStatusRows(t *testing.T) {
	b := cadence.NewBuilder(config.DefaultCadence())

	rows := b.BuildStatusRows(
		map[string]time.Time{"p1": day(10), "p2": day(20)},
		map[string]bool{"p1": true},
		domain.SignalGroup,
	)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.BucketIrregular, rows[0].Bucket)
	assert.Equal(t, 1, rows[0].SamplesN)
	assert.Equal(t, 1, rows[0].CurrentStreak, "active membership")
	assert.Equal(t, domain.CalcMethodStatus, rows[0].CalcMethod)

	assert.Equal(t, 0, rows[1].CurrentStreak, "inactive membership")
	require.NotNil(t, rows[1].LastSeenDate)
	assert.Equal(t, day(20), *rows[1].LastSeenDate)
}
