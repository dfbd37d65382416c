// Package cadence implements the statistical classification of irregular
// event streams into regularity buckets, and the pure builder that turns
// per-person event dates into person_cadence rows. Nothing here touches the
// database.
package cadence

import (
	"math"
	"sort"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// bucketTargets are the gap sizes we snap to when estimating cadence:
// weekly, biweekly, monthly, 6weekly. Order matters for tie-breaking.
var bucketTargets = []struct {
	days   int
	bucket domain.Bucket
}{
	{7, domain.BucketWeekly},
	{14, domain.BucketBiweekly},
	{30, domain.BucketMonthly},
	{42, domain.BucketSixWeekly},
}

// irregularGapDays is the median gap beyond which a stream is truly
// irregular rather than a slow cadence.
const irregularGapDays = 42

// Stats is the classification of one person's event stream for one signal.
type Stats struct {
	SamplesN   int
	MedianDays *int
	IQRDays    *int
	Bucket     domain.Bucket
}

// Gaps returns the consecutive day differences of an ascending date list.
// Empty if fewer than two dates.
func Gaps(sorted []time.Time) []int {
	if len(sorted) < 2 {
		return nil
	}
	out := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out = append(out, week.DaysBetween(sorted[i-1], sorted[i]))
	}
	return out
}

// Median returns the median of vals rounded to the nearest integer.
// vals must be non-empty; it is not modified.
func Median(vals []int) int {
	s := make([]int, len(vals))
	copy(s, vals)
	sort.Ints(s)

	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return int(math.Round(float64(s[n/2-1]+s[n/2]) / 2))
}

// IQR returns the interquartile range of vals using the half-median split:
// the median of the upper half minus the median of the lower half, where
// each half has n/2 elements (the middle element is excluded when n is odd).
// Returns nil for fewer than 4 values.
func IQR(vals []int) *int {
	n := len(vals)
	if n < 4 {
		return nil
	}
	s := make([]int, n)
	copy(s, vals)
	sort.Ints(s)

	mid := n / 2
	q1 := Median(s[:mid])
	q3 := Median(s[n-mid:])
	r := q3 - q1
	return &r
}

// NearestBucket snaps a median gap to the closest standard bucket by
// absolute distance, ties broken by target order (7 before 14 before 30
// before 42). A nil median is irregular.
func NearestBucket(medianDays *int) domain.Bucket {
	if medianDays == nil {
		return domain.BucketIrregular
	}
	best := bucketTargets[0]
	for _, t := range bucketTargets[1:] {
		if abs(t.days-*medianDays) < abs(best.days-*medianDays) {
			best = t
		}
	}
	return best.bucket
}

// Classify computes cadence stats for a person's event dates. Dates are
// deduplicated and sorted first, so duplicate-day events never affect the
// result.
//
//	0 unique dates -> none (callers skip; no row is written)
//	1 unique date  -> one_off
//	>=2            -> median of gaps; > 42 days -> irregular, else nearest bucket
func Classify(dates []time.Time) Stats {
	uniq := dedupeSorted(dates)

	switch len(uniq) {
	case 0:
		return Stats{SamplesN: 0, Bucket: domain.BucketNone}
	case 1:
		return Stats{SamplesN: 1, Bucket: domain.BucketOneOff}
	}

	gaps := Gaps(uniq)
	med := Median(gaps)
	iqr := IQR(gaps)

	if med > irregularGapDays {
		return Stats{SamplesN: len(uniq), MedianDays: &med, IQRDays: iqr, Bucket: domain.BucketIrregular}
	}
	return Stats{SamplesN: len(uniq), MedianDays: &med, IQRDays: iqr, Bucket: NearestBucket(&med)}
}

// MissedCycles counts how many full expected periods have elapsed since the
// person was due to repeat the behavior. Zero when lastSeen is unknown, the
// bucket has no real cadence, or asOf has not passed the expected next date.
func MissedCycles(lastSeen *time.Time, bucket domain.Bucket, asOf time.Time, cfg config.Cadence) int {
	if lastSeen == nil || !bucket.RealCadence() {
		return 0
	}
	d := cfg.BucketDays(bucket)
	expectedNext := lastSeen.AddDate(0, 0, d)
	if !asOf.After(expectedNext) {
		return 0
	}
	n := week.DaysBetween(expectedNext, asOf) / d
	if n < 0 {
		return 0
	}
	return n
}

func dedupeSorted(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = week.Truncate(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
