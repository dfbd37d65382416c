package domain

import "time"

// Signal is a tracked behavior category. Each signal has its own independent
// cadence per person.
type Signal string

// Tracked signals.
const (
	SignalAttend Signal = "attend"
	SignalGive   Signal = "give"
	SignalGroup  Signal = "group"
	SignalServe  Signal = "serve"
)

// CadenceSignals are the signals whose cadence is inferred from event
// intervals. Group and serve are status-based, not interval-based.
var CadenceSignals = []Signal{SignalAttend, SignalGive}

// ParseSignal validates a signal name.
func ParseSignal(s string) (Signal, bool) {
	switch Signal(s) {
	case SignalAttend, SignalGive, SignalGroup, SignalServe:
		return Signal(s), true
	}
	return "", false
}

// Bucket is the inferred regularity classification of a signal's event
// spacing.
type Bucket string

// Cadence buckets. Weekly through SixWeekly are "real" cadences that can
// accrue missed cycles; the rest cannot.
const (
	BucketWeekly    Bucket = "weekly"
	BucketBiweekly  Bucket = "biweekly"
	BucketMonthly   Bucket = "monthly"
	BucketSixWeekly Bucket = "6weekly"
	BucketIrregular Bucket = "irregular"
	BucketOneOff    Bucket = "one_off"
	BucketNone      Bucket = "none"
)

// RealCadence reports whether b is a bucket that implies an expected next
// date and can accrue missed cycles.
func (b Bucket) RealCadence() bool {
	switch b {
	case BucketWeekly, BucketBiweekly, BucketMonthly, BucketSixWeekly:
		return true
	}
	return false
}

// HistogramBuckets is the fixed order buckets appear in report histograms.
var HistogramBuckets = []Bucket{
	BucketWeekly, BucketBiweekly, BucketMonthly, BucketSixWeekly,
	BucketIrregular, BucketOneOff,
}

// Calc method provenance tags written to person_cadence rows.
const (
	CalcMethodIntervals = "event_intervals_v2"
	CalcMethodStatus    = "status_active_v1"
)

// PersonCadence is one row per person × signal describing how regularly that
// person engages in the signal. Rebuilds overwrite every statistical field;
// CampusID is sticky and never overwritten once set.
type PersonCadence struct {
	PersonID           string
	Signal             Signal
	Bucket             Bucket
	MedianIntervalDays *int
	IQRDays            *int
	LastSeenDate       *time.Time
	ExpectedNextDate   *time.Time
	MissedCycles       int
	SamplesN           int
	CalcMethod         string
	CurrentStreak      int // reserved
	CampusID           *string
}

// Lapsed reports whether this cadence row currently counts as lapsed at the
// given missed-cycle threshold. Only real cadence buckets can lapse.
func (c *PersonCadence) Lapsed(threshold int) bool {
	return c.Bucket.RealCadence() && c.MissedCycles >= threshold
}
