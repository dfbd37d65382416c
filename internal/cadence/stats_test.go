package cadence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh20ny/np-analytics-app-sub000/internal/cadence"
	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

func day(n int) time.Time {
	// Day 1 = 2025-01-05, a Sunday; day n is n-1 days later.
	return week.Date(2025, time.January, 5).AddDate(0, 0, n-1)
}

func days(ns ...int) []time.Time {
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = day(n)
	}
	return out
}

func TestGaps(t *testing.T) {
	assert.Nil(t, cadence.Gaps(nil))
	assert.Nil(t, cadence.Gaps(days(1)))
	assert.Equal(t, []int{7, 7, 7}, cadence.Gaps(days(1, 8, 15, 22)))
	assert.Equal(t, []int{3, 11}, cadence.Gaps(days(1, 4, 15)))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 7, cadence.Median([]int{7}))
	assert.Equal(t, 7, cadence.Median([]int{7, 7, 7}))
	assert.Equal(t, 8, cadence.Median([]int{14, 3, 8}))
	// Even count: mean of middle two, rounded.
	assert.Equal(t, 11, cadence.Median([]int{7, 14}))
	assert.Equal(t, 8, cadence.Median([]int{7, 8, 9, 7}))
}

func TestIQR(t *testing.T) {
	assert.Nil(t, cadence.IQR(nil), "empty")
	assert.Nil(t, cadence.IQR([]int{7, 7, 7}), "fewer than 4 values")

	// Half-median split: halves {7,7} and {14,21} -> 18 - 7 = 11.
	got := cadence.IQR([]int{7, 7, 14, 21})
	require.NotNil(t, got)
	assert.Equal(t, 11, *got)

	// Odd count excludes the middle element: {7,7} vs {21,28} -> 25 - 7 = 18.
	got = cadence.IQR([]int{7, 7, 14, 21, 28})
	require.NotNil(t, got)
	assert.Equal(t, 18, *got)
}

func TestNearestBucket(t *testing.T) {
	assert.Equal(t, domain.BucketIrregular, cadence.NearestBucket(nil))

	cases := map[int]domain.Bucket{
		5:  domain.BucketWeekly,
		7:  domain.BucketWeekly,
		10: domain.BucketWeekly, // tie 7 vs 14 broken by list order
		11: domain.BucketBiweekly,
		14: domain.BucketBiweekly,
		22: domain.BucketBiweekly, // tie 14 vs 30 broken by list order
		23: domain.BucketMonthly,
		30: domain.BucketMonthly,
		36: domain.BucketMonthly, // tie 30 vs 42 broken by list order
		37: domain.BucketSixWeekly,
		42: domain.BucketSixWeekly,
	}
	for median, want := range cases {
		m := median
		assert.Equalf(t, want, cadence.NearestBucket(&m), "median %d", median)
	}
}

func TestClassifyEmpty(t *testing.T) {
	got := cadence.Classify(nil)
	assert.Equal(t, 0, got.SamplesN)
	assert.Nil(t, got.MedianDays)
	assert.Nil(t, got.IQRDays)
	assert.Equal(t, domain.BucketNone, got.Bucket)
}

func TestClassifySingleDate(t *testing.T) {
	// One unique date is one_off regardless of the date value.
	for _, n := range []int{1, 100, 365} {
		got := cadence.Classify(days(n))
		assert.Equal(t, 1, got.SamplesN)
		assert.Nil(t, got.MedianDays)
		assert.Nil(t, got.IQRDays)
		assert.Equal(t, domain.BucketOneOff, got.Bucket)
	}

	// Duplicate-day events still count as one sample.
	got := cadence.Classify(days(10, 10, 10))
	assert.Equal(t, 1, got.SamplesN)
	assert.Equal(t, domain.BucketOneOff, got.Bucket)
}

func TestClassifyWeekly(t *testing.T) {
	got := cadence.Classify(days(1, 8, 15, 22))
	assert.Equal(t, 4, got.SamplesN)
	require.NotNil(t, got.MedianDays)
	assert.Equal(t, 7, *got.MedianDays)
	assert.Equal(t, domain.BucketWeekly, got.Bucket)
}

func TestClassifyIrregular(t *testing.T) {
	// Median gap > 42 days.
	got := cadence.Classify(days(1, 61, 121))
	assert.Equal(t, domain.BucketIrregular, got.Bucket)
	require.NotNil(t, got.MedianDays)
	assert.Equal(t, 60, *got.MedianDays)
}

func TestClassifyDuplicatesDoNotChangeBucket(t *testing.T) {
	base := cadence.Classify(days(1, 8, 15, 22))
	withDup := cadence.Classify(days(1, 8, 8, 15, 22))

	assert.Equal(t, base.Bucket, withDup.Bucket)
	assert.Equal(t, base.SamplesN, withDup.SamplesN)
	assert.Equal(t, *base.MedianDays, *withDup.MedianDays)
}

func TestMissedCycles(t *testing.T) {
	cfg := config.DefaultCadence()
	last := day(1)

	// Nil last-seen and non-cadence buckets never accrue.
	assert.Equal(t, 0, cadence.MissedCycles(nil, domain.BucketWeekly, day(100), cfg))
	assert.Equal(t, 0, cadence.MissedCycles(&last, domain.BucketIrregular, day(100), cfg))
	assert.Equal(t, 0, cadence.MissedCycles(&last, domain.BucketOneOff, day(100), cfg))

	// Not yet due.
	assert.Equal(t, 0, cadence.MissedCycles(&last, domain.BucketWeekly, day(8), cfg))

	// One full cycle past expected.
	assert.Equal(t, 1, cadence.MissedCycles(&last, domain.BucketWeekly, day(15), cfg))

	// asOf before lastSeen must not go negative.
	later := day(50)
	assert.Equal(t, 0, cadence.MissedCycles(&later, domain.BucketWeekly, day(10), cfg))
}

func TestMissedCyclesLapseThresholdScenario(t *testing.T) {
	// bucket=weekly, lastSeen=day 0, asOf=day 30: expected next is day 7,
	// 23 days past expected, floor(23/7) = 3 missed cycles.
	cfg := config.DefaultCadence()
	last := day(0)

	got := cadence.MissedCycles(&last, domain.BucketWeekly, day(30), cfg)
	assert.Equal(t, 3, got)
	assert.GreaterOrEqual(t, got, cfg.LapseCyclesThreshold, "crosses the lapse threshold")
}
