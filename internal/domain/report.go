package domain

// WeeklyReport is the combined payload assembled for one reporting week.
// Dates are ISO strings because this struct is the wire shape consumed by
// the dashboard and weekly-summary collaborators.
type WeeklyReport struct {
	WeekStart            string                         `json:"week_start"`
	WeekEnd              string                         `json:"week_end"`
	CadenceBuckets       map[Signal]map[Bucket]int      `json:"cadence_buckets"`
	Engaged              EngagedCounts                  `json:"engaged"`
	FrontDoor            FrontDoorCounts                `json:"front_door"`
	BackDoor             BackDoorSummary                `json:"back_door"`
	Lapses               LapseSummary                   `json:"lapses"`
	NoLongerAttends      NLASummary                     `json:"no_longer_attends"`
	AsOf                 AsOfCounts                     `json:"as_of"`
	AdultAttendanceAvg4W *float64                       `json:"adult_attendance_avg_4w"`
	Notes                []string                       `json:"notes,omitempty"`
}

// EngagedCounts holds the number of snapshot rows at each engaged tier.
type EngagedCounts struct {
	Engaged0 int `json:"engaged0"`
	Engaged1 int `json:"engaged1"`
	Engaged2 int `json:"engaged2"`
	Engaged3 int `json:"engaged3"`
}

// FrontDoorCounts holds first-ever engagement counts for the week.
type FrontDoorCounts struct {
	FirstTimeCheckins int `json:"first_time_checkins"`
	FirstTimeGivers   int `json:"first_time_givers"`
	FirstTimeGroups   int `json:"first_time_groups"`
	FirstTimeServing  int `json:"first_time_serving"`
}

// BackDoorSummary is the disengagement section of the weekly report.
type BackDoorSummary struct {
	DownshiftsTotal int              `json:"downshifts_total"`
	Downshift3to2   int              `json:"downshift_3_to_2"`
	Downshift2to1   int              `json:"downshift_2_to_1"`
	Downshift1to0   int              `json:"downshift_1_to_0"`
	FromBreakdown   map[string]int   `json:"from_breakdown"`
	Flow            []DownshiftCell  `json:"flow"`
	NewNLACount     int              `json:"new_nla_count"`
	ReengagedCount  int              `json:"reengaged_count"`
	BDI             float64          `json:"bdi"`
	Tenure          *TenureSummary   `json:"tenure,omitempty"`
}

// TenureSummary describes how long departed people were engaged before
// going dormant, over everyone ever recorded as no-longer-attends.
type TenureSummary struct {
	DepartedCount int      `json:"departed_count"`
	AvgDays       *float64 `json:"avg_days,omitempty"`
	P50Days       *float64 `json:"p50_days,omitempty"`
	P90Days       *float64 `json:"p90_days,omitempty"`
}

// DownshiftCell is one from→to cell of the downshift flow matrix.
type DownshiftCell struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Count int `json:"count"`
}

// LapseSummary is the lapse section of the weekly report.
type LapseSummary struct {
	NewThisWeekTotal  int            `json:"new_this_week_total"`
	NewBySignal       map[Signal]int `json:"new_by_signal"`
	TotalLapsedPeople int            `json:"total_lapsed_people"`
	AllLapsedBySignal map[Signal]int `json:"all_lapsed_by_signal"`
	ItemsAttend       []LapseItem    `json:"items_attend"`
	ItemsGive         []LapseItem    `json:"items_give"`
}

// LapseItem is one newly-lapsed person/signal entry, enriched with person
// info for the report consumer.
type LapseItem struct {
	PersonID          string `json:"person_id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Signal            Signal `json:"signal"`
	Bucket            Bucket `json:"bucket"`
	LastSeenDate      string `json:"last_seen_date,omitempty"`
	ExpectedBy        string `json:"expected_by,omitempty"`
	ObservedNoneSince string `json:"observed_none_since,omitempty"`
	MissedCycles      int    `json:"missed_cycles"`
}

// NLASummary lists the people first crossing the long-dormancy threshold
// this week.
type NLASummary struct {
	AddedThisWeek int       `json:"added_this_week"`
	ThresholdDays int       `json:"threshold_days"`
	Items         []NLAItem `json:"items"`
}

// NLAItem is one no-longer-attends entry with per-signal last-seen dates.
type NLAItem struct {
	PersonID     string            `json:"person_id"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	FirstSeenAny string            `json:"first_seen_any,omitempty"`
	LastSignals  map[string]string `json:"last_signals"`
}

// AsOfCounts are point-in-time membership counts at week end.
type AsOfCounts struct {
	InGroupsActive int `json:"in_groups_active"`
	ServingActive  int `json:"serving_active"`
}
