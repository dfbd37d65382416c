package cadence

import (
	"sort"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
)

// Builder converts per-person event dates into person_cadence rows. It is
// pure: persistence is a separate upsert step, and identical inputs always
// produce identical rows.
type Builder struct {
	cfg config.Cadence
}

// NewBuilder creates a Builder with the given thresholds.
func NewBuilder(cfg config.Cadence) *Builder {
	return &Builder{cfg: cfg}
}

// BuildRows emits zero or one row per person for an interval-based signal.
// People with no events are omitted entirely, not written as zero-rows.
// Rows come back sorted by person ID so rebuilds are deterministic.
func (b *Builder) BuildRows(events map[string][]time.Time, signal domain.Signal, asOf time.Time) []domain.PersonCadence {
	ids := make([]string, 0, len(events))
	for pid := range events {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	rows := make([]domain.PersonCadence, 0, len(ids))
	for _, pid := range ids {
		stats := Classify(events[pid])
		if stats.SamplesN == 0 {
			continue
		}

		lastSeen := maxDate(events[pid])

		// One-off rows never carry interval stats, whatever the dates were.
		if stats.Bucket == domain.BucketOneOff {
			stats.MedianDays = nil
			stats.IQRDays = nil
		}

		var expectedNext *time.Time
		if lastSeen != nil && stats.Bucket.RealCadence() {
			e := lastSeen.AddDate(0, 0, b.cfg.BucketDays(stats.Bucket))
			expectedNext = &e
		}

		rows = append(rows, domain.PersonCadence{
			PersonID:           pid,
			Signal:             signal,
			Bucket:             stats.Bucket,
			MedianIntervalDays: stats.MedianDays,
			IQRDays:            stats.IQRDays,
			LastSeenDate:       lastSeen,
			ExpectedNextDate:   expectedNext,
			MissedCycles:       MissedCycles(lastSeen, stats.Bucket, asOf, b.cfg),
			SamplesN:           stats.SamplesN,
			CalcMethod:         domain.CalcMethodIntervals,
		})
	}
	return rows
}

// BuildStatusRows emits rows for a status-based signal (group membership).
// These are not interval cadences: bucket is always irregular, samples 1,
// and CurrentStreak carries the active flag.
func (b *Builder) BuildStatusRows(lastJoin map[string]time.Time, active map[string]bool, signal domain.Signal) []domain.PersonCadence {
	ids := make([]string, 0, len(lastJoin))
	for pid := range lastJoin {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	rows := make([]domain.PersonCadence, 0, len(ids))
	for _, pid := range ids {
		lj := lastJoin[pid]
		streak := 0
		if active[pid] {
			streak = 1
		}
		rows = append(rows, domain.PersonCadence{
			PersonID:      pid,
			Signal:        signal,
			Bucket:        domain.BucketIrregular,
			LastSeenDate:  &lj,
			SamplesN:      1,
			CalcMethod:    domain.CalcMethodStatus,
			CurrentStreak: streak,
		})
	}
	return rows
}

func maxDate(dates []time.Time) *time.Time {
	if len(dates) == 0 {
		return nil
	}
	max := dates[0]
	for _, d := range dates[1:] {
		if d.After(max) {
			max = d
		}
	}
	return &max
}
