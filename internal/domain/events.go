package domain

import "time"

// LapseEvent is an append-only fact: person × signal first crossed the lapse
// threshold in the week ending WeekFlagged. A person who re-engages and
// lapses again later gets a fresh row with a new WeekFlagged; reruns for the
// same week never duplicate rows.
type LapseEvent struct {
	PersonID          string
	Signal            Signal
	ExpectedBy        *time.Time
	ObservedNoneSince *time.Time
	MissedCycles      int
	WeekFlagged       time.Time
	CampusID          *string
}

// NoLongerAttendsEvent records the first week a person's engagement across
// all signals went dormant past the inactivity threshold. One row per person
// ever; re-engagement is tracked separately, never by deleting this row.
type NoLongerAttendsEvent struct {
	PersonID     string
	WeekEnd      time.Time
	LastAnyDate  time.Time
	FirstSeenAny *time.Time
	CampusID     *string
}

// TierTransition records a week-over-week engaged-tier decrease.
type TierTransition struct {
	PersonID string
	WeekEnd  time.Time
	FromTier int
	ToTier   int
	Delta    int
	CampusID *string
}

// FrontDoorWeekly is the per-week rollup of first-ever engagement counts.
// Fully derived; recomputable from the fact tables.
type FrontDoorWeekly struct {
	WeekStart         time.Time
	WeekEnd           time.Time
	FirstTimeCheckins int
	FirstTimeGivers   int
	FirstTimeGroups   int
	FirstTimeServing  int
}

// BackDoorWeekly is the per-week rollup of disengagement metrics. BDI is the
// composite back-door index: downshifts + new NLA - re-engaged.
type BackDoorWeekly struct {
	WeekEnd        time.Time
	DownshiftTotal int
	Downshift3to2  int
	Downshift2to1  int
	Downshift1to0  int
	NewNLACount    int
	ReengagedCount int
	BDI            float64
}
