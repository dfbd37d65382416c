// Package lapse implements the stateful week-over-week disengagement
// detection: newly-lapsed crossings, no-longer-attends crossings,
// re-engagement, and engaged-tier downshifts.
package lapse

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// Detector evaluates disengagement transitions for one reporting week. It
// holds no state between calls; every run reads fresh from the store.
type Detector struct {
	store  *store.Store
	cfg    config.Cadence
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(st *store.Store, cfg config.Cadence, logger *slog.Logger) *Detector {
	return &Detector{store: st, cfg: cfg, logger: logger}
}

// eligible applies the per-signal lapse gates to a candidate cadence row.
// Attendance additionally requires tier 0 this week and a household the
// check-in proxy can still observe (a child under 14).
func eligible(c domain.PersonCadence, tiers map[string]int, people map[string]domain.Person, kidHouseholds map[string]bool) bool {
	if c.Signal != domain.SignalAttend {
		return true
	}
	if tier, ok := tiers[c.PersonID]; !ok || tier != 0 {
		return false
	}
	p, ok := people[c.PersonID]
	if !ok || p.HouseholdID == "" {
		return false
	}
	return kidHouseholds[p.HouseholdID]
}

// gateInputs loads the shared state the attendance gate needs.
func (d *Detector) gateInputs(ctx context.Context, weekEnd time.Time, candidates []domain.PersonCadence) (map[string]int, map[string]domain.Person, map[string]bool, error) {
	tiers, err := d.store.Snapshots.TiersForWeek(ctx, weekEnd)
	if err != nil {
		return nil, nil, nil, err
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.PersonID)
	}
	people, err := d.store.People.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}

	kidHouseholds, err := d.store.People.HouseholdsWithKidsUnder14(ctx, weekEnd)
	if err != nil {
		return nil, nil, nil, err
	}
	return tiers, people, kidHouseholds, nil
}

// DetectNewLapses finds person/signal pairs first crossing the lapse
// threshold in the week ending weekEnd and records them. Pairs already
// flagged in any earlier week are excluded, so detection is forward-only
// and reruns insert nothing new.
func (d *Detector) DetectNewLapses(ctx context.Context, weekEnd time.Time) ([]domain.LapseEvent, int, error) {
	candidates, err := d.store.Cadence.LapseCandidates(ctx, d.cfg.Signals, d.cfg.MinSamples, d.cfg.LapseCyclesThreshold)
	if err != nil {
		return nil, 0, err
	}

	tiers, people, kidHouseholds, err := d.gateInputs(ctx, weekEnd, candidates)
	if err != nil {
		return nil, 0, err
	}

	prior, err := d.store.Lapses.PairsFlaggedBefore(ctx, weekEnd)
	if err != nil {
		return nil, 0, err
	}

	var events []domain.LapseEvent
	for _, c := range candidates {
		if prior[c.PersonID][c.Signal] {
			continue
		}
		if !eligible(c, tiers, people, kidHouseholds) {
			continue
		}
		events = append(events, domain.LapseEvent{
			PersonID:          c.PersonID,
			Signal:            c.Signal,
			ExpectedBy:        c.ExpectedNextDate,
			ObservedNoneSince: c.LastSeenDate,
			MissedCycles:      c.MissedCycles,
			WeekFlagged:       weekEnd,
			CampusID:          c.CampusID,
		})
	}

	inserted, err := d.store.Lapses.InsertEvents(ctx, events)
	if err != nil {
		return nil, 0, err
	}

	d.logger.Info("lapse detection",
		"week_end", week.Format(weekEnd),
		"candidates", len(candidates),
		"new", len(events),
		"inserted", inserted)
	return events, inserted, nil
}

// AllLapsedBySignal counts everyone currently past the lapse threshold,
// gated the same way new detections are. This is a stock measure, distinct
// from the newly-lapsed flow.
func (d *Detector) AllLapsedBySignal(ctx context.Context, weekEnd time.Time) (map[domain.Signal]int, int, error) {
	candidates, err := d.store.Cadence.LapseCandidates(ctx, d.cfg.Signals, d.cfg.MinSamples, d.cfg.LapseCyclesThreshold)
	if err != nil {
		return nil, 0, err
	}

	tiers, people, kidHouseholds, err := d.gateInputs(ctx, weekEnd, candidates)
	if err != nil {
		return nil, 0, err
	}

	bySignal := make(map[domain.Signal]int, len(d.cfg.Signals))
	for _, sig := range d.cfg.Signals {
		bySignal[sig] = 0
	}
	persons := make(map[string]bool)
	for _, c := range candidates {
		if !eligible(c, tiers, people, kidHouseholds) {
			continue
		}
		bySignal[c.Signal]++
		persons[c.PersonID] = true
	}
	return bySignal, len(persons), nil
}

// DetectNLA finds people whose engagement across every signal first went
// dormant past the inactivity threshold this week. The one-week window on
// last_any means each person can only ever match once, and the unique
// person constraint backstops that.
func (d *Detector) DetectNLA(ctx context.Context, weekEnd time.Time) ([]domain.NoLongerAttendsEvent, int, error) {
	tiers, err := d.store.Snapshots.TiersForWeek(ctx, weekEnd)
	if err != nil {
		return nil, 0, err
	}

	lastAny, err := d.lastAnyDates(ctx, weekEnd)
	if err != nil {
		return nil, 0, err
	}

	windowHigh := weekEnd.AddDate(0, 0, -d.cfg.InactivityDays)
	windowLow := windowHigh.AddDate(0, 0, -7)

	var ids []string
	for pid, tier := range tiers {
		if tier != 0 {
			continue
		}
		last, ok := lastAny[pid]
		if !ok {
			continue
		}
		if last.After(windowLow) && !last.After(windowHigh) {
			ids = append(ids, pid)
		}
	}
	sort.Strings(ids)

	firstSeen, err := d.store.Facts.FirstSeenAny(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	events := make([]domain.NoLongerAttendsEvent, 0, len(ids))
	for _, pid := range ids {
		ev := domain.NoLongerAttendsEvent{
			PersonID:    pid,
			WeekEnd:     weekEnd,
			LastAnyDate: lastAny[pid],
		}
		if f, ok := firstSeen[pid]; ok {
			ev.FirstSeenAny = &f
		}
		events = append(events, ev)
	}

	inserted, err := d.store.Lapses.InsertNLA(ctx, events)
	if err != nil {
		return nil, 0, err
	}

	d.logger.Info("nla detection",
		"week_end", week.Format(weekEnd),
		"window_low", week.Format(windowLow),
		"window_high", week.Format(windowHigh),
		"new", len(events),
		"inserted", inserted)
	return events, inserted, nil
}

// lastAnyDates computes each person's most recent activity across all
// cadence signals plus group membership activity.
func (d *Detector) lastAnyDates(ctx context.Context, weekEnd time.Time) (map[string]time.Time, error) {
	signals := []domain.Signal{domain.SignalAttend, domain.SignalGive, domain.SignalServe, domain.SignalGroup}
	bySignal, err := d.store.Cadence.LastSeenBySignal(ctx, signals)
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(bySignal))
	for pid, dates := range bySignal {
		for _, dt := range dates {
			if cur, ok := out[pid]; !ok || dt.After(cur) {
				out[pid] = dt
			}
		}
	}

	groupActivity, err := d.store.Facts.GroupLastActivity(ctx, weekEnd)
	if err != nil {
		return nil, err
	}
	for pid, dt := range groupActivity {
		if cur, ok := out[pid]; !ok || dt.After(cur) {
			out[pid] = dt
		}
	}
	return out, nil
}

// CountReengaged counts people with a prior lapse for a signal whose
// current-week snapshot flag for that signal is back on track.
func (d *Detector) CountReengaged(ctx context.Context, weekEnd time.Time) (int, error) {
	prior, err := d.store.Lapses.PairsFlaggedBefore(ctx, weekEnd)
	if err != nil {
		return 0, err
	}
	if len(prior) == 0 {
		return 0, nil
	}

	rows, err := d.store.Snapshots.RowsForWeek(ctx, weekEnd)
	if err != nil {
		return 0, err
	}

	reengaged := make(map[string]bool)
	for _, row := range rows {
		signals, ok := prior[row.PersonID]
		if !ok {
			continue
		}
		for sig := range signals {
			if row.OnTrack(sig) {
				reengaged[row.PersonID] = true
				break
			}
		}
	}
	return len(reengaged), nil
}

// givingStopDays is the floor for how long a giving gap must be before a
// tier downshift is attributed to a giving stop.
const givingStopDays = 60

// DetectDownshifts compares this week's tiers to the prior week's and
// records decreases, but only when a concrete signal actually stopped:
// serving or group flag flipping off, or a giving gap past twice the
// person's giving period (floored at 60 days).
func (d *Detector) DetectDownshifts(ctx context.Context, weekEnd time.Time) ([]domain.TierTransition, []domain.DownshiftCell, error) {
	prevWeek := weekEnd.AddDate(0, 0, -7)

	current, err := d.store.Snapshots.RowsForWeek(ctx, weekEnd)
	if err != nil {
		return nil, nil, err
	}
	previous, err := d.store.Snapshots.RowsForWeek(ctx, prevWeek)
	if err != nil {
		return nil, nil, err
	}
	prevByPerson := make(map[string]domain.SnapPersonWeek, len(previous))
	for _, row := range previous {
		prevByPerson[row.PersonID] = row
	}

	lastGift, err := d.store.Facts.LastGiftBefore(ctx, weekEnd)
	if err != nil {
		return nil, nil, err
	}
	giveBuckets, err := d.store.Cadence.GiveBuckets(ctx)
	if err != nil {
		return nil, nil, err
	}

	var transitions []domain.TierTransition
	flow := make(map[domain.DownshiftCell]int)
	for _, cur := range current {
		prev, ok := prevByPerson[cur.PersonID]
		if !ok || cur.EngagedTier >= prev.EngagedTier {
			continue
		}
		if !d.stoppedSomething(cur, prev, lastGift, giveBuckets, weekEnd) {
			continue
		}

		transitions = append(transitions, domain.TierTransition{
			PersonID: cur.PersonID,
			WeekEnd:  weekEnd,
			FromTier: prev.EngagedTier,
			ToTier:   cur.EngagedTier,
			Delta:    cur.EngagedTier - prev.EngagedTier,
			CampusID: cur.CampusID,
		})
		flow[domain.DownshiftCell{From: prev.EngagedTier, To: cur.EngagedTier}]++
	}

	if _, err := d.store.Lapses.InsertTierTransitions(ctx, transitions); err != nil {
		return nil, nil, err
	}

	cells := make([]domain.DownshiftCell, 0, len(flow))
	for cell, n := range flow {
		cell.Count = n
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].From != cells[j].From {
			return cells[i].From > cells[j].From
		}
		return cells[i].To > cells[j].To
	})

	d.logger.Info("downshift detection",
		"week_end", week.Format(weekEnd),
		"downshifts", len(transitions))
	return transitions, cells, nil
}

// stoppedSomething attributes a tier decrease to a concrete stop. Normal
// between-cycle giving gaps are not stops.
func (d *Detector) stoppedSomething(cur, prev domain.SnapPersonWeek, lastGift map[string]time.Time, giveBuckets map[string]domain.Bucket, weekEnd time.Time) bool {
	if prev.ServedOnTrack && !cur.ServedOnTrack {
		return true
	}
	if prev.InGroupOnTrack && !cur.InGroupOnTrack {
		return true
	}
	if prev.GaveOnTrack && !cur.GaveOnTrack {
		last, ok := lastGift[cur.PersonID]
		if !ok {
			return true
		}
		minGap := givingStopDays
		if bucket, ok := giveBuckets[cur.PersonID]; ok && bucket.RealCadence() {
			if twice := 2 * d.cfg.BucketDays(bucket); twice > minGap {
				minGap = twice
			}
		}
		return week.DaysBetween(last, weekEnd) >= minGap
	}
	return false
}
