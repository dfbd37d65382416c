// Package report assembles the weekly engagement report: it orchestrates
// the cadence rebuild, snapshot build and lapse detection for one week and
// shapes the combined payload.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/config"
	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/lapse"
	"github.com/josh20ny/np-analytics-app-sub000/internal/snapshot"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// Aggregator runs the weekly pipeline in order and assembles the payload.
// Sub-step persistence failures are logged and noted in the report rather
// than aborting it: a partial report beats no report.
type Aggregator struct {
	store    *store.Store
	cfg      config.Cadence
	logger   *slog.Logger
	detector *lapse.Detector
}

// NewAggregator creates an Aggregator.
func NewAggregator(st *store.Store, cfg config.Cadence, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    st,
		cfg:      cfg,
		logger:   logger,
		detector: lapse.NewDetector(st, cfg, logger),
	}
}

// Options control optional sub-steps of a report run.
type Options struct {
	// EnsureSnapshot rebuilds cadence state and the weekly snapshot before
	// reading them. Leave false only when the snapshot for the week is
	// known to exist already.
	EnsureSnapshot bool
	// PersistFrontDoor writes the front-door counts to their rollup table.
	PersistFrontDoor bool
	// RollingDays overrides the configured event window when positive.
	RollingDays int
}

// DefaultOptions are the options the weekly cron-style run uses.
func DefaultOptions() Options {
	return Options{EnsureSnapshot: true, PersistFrontDoor: true}
}

// WeeklyReport builds the report for the week containing weekEnd. The date
// is snapped to its Sunday first, so any day of the week addresses the same
// report.
func (a *Aggregator) WeeklyReport(ctx context.Context, weekEnd time.Time, opts Options) (*domain.WeeklyReport, error) {
	weekEnd = week.LastSunday(weekEnd)
	weekStart, weekEnd := week.Bounds(weekEnd)

	cfg := a.cfg
	if opts.RollingDays > 0 {
		cfg.RollingDays = opts.RollingDays
	}
	builder := snapshot.NewBuilder(a.store, cfg, a.logger)

	rep := &domain.WeeklyReport{
		WeekStart:      week.Format(weekStart),
		WeekEnd:        week.Format(weekEnd),
		CadenceBuckets: make(map[domain.Signal]map[domain.Bucket]int),
	}
	note := func(step string, err error) {
		a.logger.Error("weekly report step failed", "step", step, "error", err)
		rep.Notes = append(rep.Notes, fmt.Sprintf("%s failed: %v", step, err))
	}

	if opts.EnsureSnapshot {
		if err := builder.RebuildCadences(ctx, weekEnd, cfg.Signals); err != nil {
			return nil, fmt.Errorf("rebuild cadences: %w", err)
		}
		if _, err := builder.Build(ctx, weekEnd, false); err != nil {
			return nil, fmt.Errorf("build snapshot: %w", err)
		}
	}

	// Tier transitions run before the back-door rollup reads them.
	transitions, flow, err := a.detector.DetectDownshifts(ctx, weekEnd)
	if err != nil {
		note("downshift detection", err)
	}

	for _, sig := range cfg.Signals {
		counts, err := a.store.Cadence.BucketCounts(ctx, sig, weekEnd, true, cfg.LapseCyclesThreshold)
		if err != nil {
			note(fmt.Sprintf("bucket histogram %s", sig), err)
			continue
		}
		rep.CadenceBuckets[sig] = counts
	}

	frontDoor, err := a.store.Facts.FirstTimeCounts(ctx, weekStart, weekEnd)
	if err != nil {
		note("front door counts", err)
	} else {
		rep.FrontDoor = frontDoor
		if opts.PersistFrontDoor {
			err := a.store.Weekly.UpsertFrontDoor(ctx, domain.FrontDoorWeekly{
				WeekStart:         weekStart,
				WeekEnd:           weekEnd,
				FirstTimeCheckins: frontDoor.FirstTimeCheckins,
				FirstTimeGivers:   frontDoor.FirstTimeGivers,
				FirstTimeGroups:   frontDoor.FirstTimeGroups,
				FirstTimeServing:  frontDoor.FirstTimeServing,
			})
			if err != nil {
				note("front door persist", err)
			}
		}
	}

	tiers, err := a.store.Snapshots.TierCounts(ctx, weekEnd)
	if err != nil {
		note("tier counts", err)
	} else {
		rep.Engaged = domain.EngagedCounts{
			Engaged0: tiers[0], Engaged1: tiers[1], Engaged2: tiers[2], Engaged3: tiers[3],
		}
	}

	lapses, err := a.lapseSummary(ctx, weekEnd)
	if err != nil {
		note("lapse detection", err)
	} else {
		rep.Lapses = lapses
	}

	nla, newNLA, err := a.nlaSummary(ctx, weekEnd)
	if err != nil {
		note("no-longer-attends detection", err)
	} else {
		rep.NoLongerAttends = nla
	}

	reengaged, err := a.detector.CountReengaged(ctx, weekEnd)
	if err != nil {
		note("re-engagement count", err)
	}

	rep.BackDoor = backDoorSummary(transitions, flow, newNLA, reengaged)
	if tenure, err := a.store.Lapses.TenureStats(ctx); err != nil {
		note("tenure stats", err)
	} else if tenure.Count > 0 {
		rep.BackDoor.Tenure = &domain.TenureSummary{
			DepartedCount: tenure.Count,
			AvgDays:       tenure.AvgDays,
			P50Days:       tenure.P50Days,
			P90Days:       tenure.P90Days,
		}
	}
	if err := a.store.Weekly.UpsertBackDoor(ctx, domain.BackDoorWeekly{
		WeekEnd:        weekEnd,
		DownshiftTotal: rep.BackDoor.DownshiftsTotal,
		Downshift3to2:  rep.BackDoor.Downshift3to2,
		Downshift2to1:  rep.BackDoor.Downshift2to1,
		Downshift1to0:  rep.BackDoor.Downshift1to0,
		NewNLACount:    newNLA,
		ReengagedCount: reengaged,
		BDI:            rep.BackDoor.BDI,
	}); err != nil {
		note("back door persist", err)
	}

	avg, err := a.store.Facts.AdultAttendanceAvg4W(ctx, weekEnd)
	if err != nil {
		note("adult attendance average", err)
	} else {
		rep.AdultAttendanceAvg4W = avg
	}

	asOf, err := a.store.Facts.AsOfCounts(ctx, weekEnd)
	if err != nil {
		note("as-of counts", err)
	} else {
		rep.AsOf = asOf
	}

	a.logger.Info("weekly report assembled",
		"week_end", week.Format(weekEnd),
		"new_lapses", rep.Lapses.NewThisWeekTotal,
		"new_nla", newNLA,
		"bdi", rep.BackDoor.BDI,
		"notes", len(rep.Notes))
	return rep, nil
}

func (a *Aggregator) lapseSummary(ctx context.Context, weekEnd time.Time) (domain.LapseSummary, error) {
	summary := domain.LapseSummary{
		NewBySignal:       make(map[domain.Signal]int),
		AllLapsedBySignal: make(map[domain.Signal]int),
	}

	if _, _, err := a.detector.DetectNewLapses(ctx, weekEnd); err != nil {
		return summary, err
	}
	// Read back what is stored for the week so reruns report the same
	// flow instead of an empty one.
	events, err := a.store.Lapses.EventsForWeek(ctx, weekEnd)
	if err != nil {
		return summary, err
	}
	summary.NewThisWeekTotal = len(events)
	for _, e := range events {
		summary.NewBySignal[e.Signal]++
	}

	allBySignal, totalPeople, err := a.detector.AllLapsedBySignal(ctx, weekEnd)
	if err != nil {
		return summary, err
	}
	summary.AllLapsedBySignal = allBySignal
	summary.TotalLapsedPeople = totalPeople

	items, err := a.lapseItems(ctx, events)
	if err != nil {
		return summary, err
	}
	for _, item := range items {
		switch item.Signal {
		case domain.SignalAttend:
			summary.ItemsAttend = append(summary.ItemsAttend, item)
		case domain.SignalGive:
			summary.ItemsGive = append(summary.ItemsGive, item)
		}
	}
	return summary, nil
}

func (a *Aggregator) lapseItems(ctx context.Context, events []domain.LapseEvent) ([]domain.LapseItem, error) {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.PersonID)
	}
	people, err := a.store.People.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.LapseItem, 0, len(events))
	for _, e := range events {
		item := domain.LapseItem{
			PersonID:          e.PersonID,
			Signal:            e.Signal,
			ExpectedBy:        week.FormatPtr(e.ExpectedBy),
			ObservedNoneSince: week.FormatPtr(e.ObservedNoneSince),
			MissedCycles:      e.MissedCycles,
		}
		if p, ok := people[e.PersonID]; ok {
			item.Name = p.Name()
			item.Email = p.Email
		}
		if c, err := a.store.Cadence.Get(ctx, e.PersonID, e.Signal); err == nil {
			item.Bucket = c.Bucket
			item.LastSeenDate = week.FormatPtr(c.LastSeenDate)
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *Aggregator) nlaSummary(ctx context.Context, weekEnd time.Time) (domain.NLASummary, int, error) {
	summary := domain.NLASummary{ThresholdDays: a.cfg.InactivityDays}

	if _, _, err := a.detector.DetectNLA(ctx, weekEnd); err != nil {
		return summary, 0, err
	}
	// As with lapses, read back the stored rows so reruns are stable.
	events, err := a.store.Lapses.NLAForWeek(ctx, weekEnd)
	if err != nil {
		return summary, 0, err
	}
	summary.AddedThisWeek = len(events)

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.PersonID)
	}
	people, err := a.store.People.GetMany(ctx, ids)
	if err != nil {
		return summary, len(events), err
	}

	signals := []domain.Signal{domain.SignalAttend, domain.SignalGive, domain.SignalServe, domain.SignalGroup}
	lastSeen, err := a.store.Cadence.LastSeenBySignal(ctx, signals)
	if err != nil {
		return summary, len(events), err
	}

	for _, e := range events {
		item := domain.NLAItem{
			PersonID:     e.PersonID,
			FirstSeenAny: week.FormatPtr(e.FirstSeenAny),
			LastSignals:  map[string]string{"any": week.Format(e.LastAnyDate)},
		}
		if p, ok := people[e.PersonID]; ok {
			item.Name = p.Name()
			item.Email = p.Email
		}
		for sig, d := range lastSeen[e.PersonID] {
			item.LastSignals[string(sig)] = week.Format(d)
		}
		summary.Items = append(summary.Items, item)
	}
	return summary, len(events), nil
}

func backDoorSummary(transitions []domain.TierTransition, flow []domain.DownshiftCell, newNLA, reengaged int) domain.BackDoorSummary {
	out := domain.BackDoorSummary{
		DownshiftsTotal: len(transitions),
		FromBreakdown:   make(map[string]int),
		Flow:            flow,
		NewNLACount:     newNLA,
		ReengagedCount:  reengaged,
	}
	for _, tr := range transitions {
		out.FromBreakdown[fmt.Sprintf("from_%d", tr.FromTier)]++
		switch {
		case tr.FromTier == 3 && tr.ToTier == 2:
			out.Downshift3to2++
		case tr.FromTier == 2 && tr.ToTier == 1:
			out.Downshift2to1++
		case tr.FromTier == 1 && tr.ToTier == 0:
			out.Downshift1to0++
		}
	}
	out.BDI = float64(out.DownshiftsTotal + newNLA - reengaged)
	return out
}
