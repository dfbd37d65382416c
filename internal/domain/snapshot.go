package domain

import "time"

// SnapPersonWeek is one engagement row per person per week. WeekEnd is always
// a Sunday. EngagedTier counts the non-attendance dimensions that are on
// track; attendance is a front-door metric and deliberately excluded.
type SnapPersonWeek struct {
	PersonID           string
	WeekStart          time.Time
	WeekEnd            time.Time
	Attended           bool
	GaveOnTrack        bool
	ServedOnTrack      bool
	InGroupOnTrack     bool
	EngagedTier        int // 0-3 = gave + served + group
	CheckinsCount      int
	GiftsCount         int
	ServingOccurrences int
	CampusID           *string
}

// OnTrack reports whether the given signal's flag is set on this row.
func (s *SnapPersonWeek) OnTrack(sig Signal) bool {
	switch sig {
	case SignalAttend:
		return s.Attended
	case SignalGive:
		return s.GaveOnTrack
	case SignalServe:
		return s.ServedOnTrack
	case SignalGroup:
		return s.InGroupOnTrack
	}
	return false
}
