package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// LapseStore persists the append-only disengagement event tables.
type LapseStore interface {
	// InsertEvents writes lapse rows, skipping any (person, signal,
	// week_flagged) that already exists. Returns how many were inserted.
	InsertEvents(ctx context.Context, events []domain.LapseEvent) (int, error)
	EventsForWeek(ctx context.Context, weekFlagged time.Time) ([]domain.LapseEvent, error)
	// PairsFlaggedBefore returns person -> signal pairs with any lapse row
	// flagged before weekEnd. Feeds the anti-join so only first crossings
	// produce new rows, and the re-engagement check.
	PairsFlaggedBefore(ctx context.Context, weekEnd time.Time) (map[string]map[domain.Signal]bool, error)

	// InsertNLA writes no-longer-attends rows, at most one per person ever.
	InsertNLA(ctx context.Context, events []domain.NoLongerAttendsEvent) (int, error)
	NLAForWeek(ctx context.Context, weekEnd time.Time) ([]domain.NoLongerAttendsEvent, error)

	InsertTierTransitions(ctx context.Context, transitions []domain.TierTransition) (int, error)
	TransitionsForWeek(ctx context.Context, weekEnd time.Time) ([]domain.TierTransition, error)

	// TenureStats summarizes days between first and last engagement over
	// all recorded no-longer-attends people.
	TenureStats(ctx context.Context) (TenureStats, error)

	DeleteAll(ctx context.Context) error
}

// TenureStats describes how long departed people were engaged before going
// dormant.
type TenureStats struct {
	Count   int
	AvgDays *float64
	P50Days *float64
	P90Days *float64
}

// SQLiteLapseStore implements LapseStore backed by SQLite.
type SQLiteLapseStore struct {
	db *sql.DB
}

// NewSQLiteLapseStore creates a new SQLiteLapseStore.
func NewSQLiteLapseStore(db *sql.DB) *SQLiteLapseStore {
	return &SQLiteLapseStore{db: db}
}

// InsertEvents writes lapse events, ignoring duplicates.
func (s *SQLiteLapseStore) InsertEvents(ctx context.Context, events []domain.LapseEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin lapse insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lapse_events
		  (person_id, signal, expected_by, observed_none_since, missed_cycles, week_flagged, campus_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare lapse insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, e := range events {
		res, err := stmt.ExecContext(ctx,
			e.PersonID, string(e.Signal), dateArg(e.ExpectedBy),
			dateArg(e.ObservedNoneSince), e.MissedCycles,
			week.Format(e.WeekFlagged), strArg(e.CampusID))
		if err != nil {
			return 0, fmt.Errorf("insert lapse %s/%s: %w", e.PersonID, e.Signal, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("lapse rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit lapse insert: %w", err)
	}
	return inserted, nil
}

// EventsForWeek returns the lapse events flagged in one week.
func (s *SQLiteLapseStore) EventsForWeek(ctx context.Context, weekFlagged time.Time) ([]domain.LapseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, signal, expected_by, observed_none_since, missed_cycles, week_flagged, campus_id
		FROM lapse_events WHERE week_flagged = ?
		ORDER BY signal, person_id`,
		week.Format(weekFlagged))
	if err != nil {
		return nil, fmt.Errorf("lapse events for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.LapseEvent
	for rows.Next() {
		var (
			e            domain.LapseEvent
			sig, flagged string
			exp, since   sql.NullString
			campus       sql.NullString
		)
		if err := rows.Scan(&e.PersonID, &sig, &exp, &since, &e.MissedCycles, &flagged, &campus); err != nil {
			return nil, fmt.Errorf("scan lapse event: %w", err)
		}
		e.Signal = domain.Signal(sig)
		e.CampusID = scanStr(campus)
		if e.ExpectedBy, err = scanDate(exp); err != nil {
			return nil, err
		}
		if e.ObservedNoneSince, err = scanDate(since); err != nil {
			return nil, err
		}
		if e.WeekFlagged, err = week.Parse(flagged); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PairsFlaggedBefore returns person/signal pairs lapsed in any prior week.
func (s *SQLiteLapseStore) PairsFlaggedBefore(ctx context.Context, weekEnd time.Time) (map[string]map[domain.Signal]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT person_id, signal FROM lapse_events WHERE week_flagged < ?`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("lapse pairs before week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[domain.Signal]bool)
	for rows.Next() {
		var pid, sig string
		if err := rows.Scan(&pid, &sig); err != nil {
			return nil, fmt.Errorf("scan lapse pair: %w", err)
		}
		if out[pid] == nil {
			out[pid] = make(map[domain.Signal]bool)
		}
		out[pid][domain.Signal(sig)] = true
	}
	return out, rows.Err()
}

// InsertNLA writes no-longer-attends events, ignoring people already recorded.
func (s *SQLiteLapseStore) InsertNLA(ctx context.Context, events []domain.NoLongerAttendsEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin nla insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO no_longer_attends_events
		  (person_id, week_end, last_any_date, first_seen_any, campus_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare nla insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, e := range events {
		res, err := stmt.ExecContext(ctx,
			e.PersonID, week.Format(e.WeekEnd), week.Format(e.LastAnyDate),
			dateArg(e.FirstSeenAny), strArg(e.CampusID))
		if err != nil {
			return 0, fmt.Errorf("insert nla %s: %w", e.PersonID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("nla rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit nla insert: %w", err)
	}
	return inserted, nil
}

// NLAForWeek returns the no-longer-attends events recorded for one week.
func (s *SQLiteLapseStore) NLAForWeek(ctx context.Context, weekEnd time.Time) ([]domain.NoLongerAttendsEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, week_end, last_any_date, first_seen_any, campus_id
		FROM no_longer_attends_events WHERE week_end = ?
		ORDER BY person_id`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("nla for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.NoLongerAttendsEvent
	for rows.Next() {
		var (
			e            domain.NoLongerAttendsEvent
			we, lastAny  string
			first        sql.NullString
			campus       sql.NullString
		)
		if err := rows.Scan(&e.PersonID, &we, &lastAny, &first, &campus); err != nil {
			return nil, fmt.Errorf("scan nla event: %w", err)
		}
		e.CampusID = scanStr(campus)
		if e.WeekEnd, err = week.Parse(we); err != nil {
			return nil, err
		}
		if e.LastAnyDate, err = week.Parse(lastAny); err != nil {
			return nil, err
		}
		if e.FirstSeenAny, err = scanDate(first); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertTierTransitions writes tier transitions, ignoring duplicates.
func (s *SQLiteLapseStore) InsertTierTransitions(ctx context.Context, transitions []domain.TierTransition) (int, error) {
	if len(transitions) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transition insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO engagement_tier_transitions
		  (person_id, week_end, from_tier, to_tier, delta, campus_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare transition insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, tr := range transitions {
		res, err := stmt.ExecContext(ctx,
			tr.PersonID, week.Format(tr.WeekEnd), tr.FromTier, tr.ToTier,
			tr.Delta, strArg(tr.CampusID))
		if err != nil {
			return 0, fmt.Errorf("insert transition %s: %w", tr.PersonID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("transition rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transition insert: %w", err)
	}
	return inserted, nil
}

// TransitionsForWeek returns the tier transitions recorded for one week.
func (s *SQLiteLapseStore) TransitionsForWeek(ctx context.Context, weekEnd time.Time) ([]domain.TierTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, week_end, from_tier, to_tier, delta, campus_id
		FROM engagement_tier_transitions WHERE week_end = ?
		ORDER BY person_id`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("transitions for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TierTransition
	for rows.Next() {
		var (
			tr     domain.TierTransition
			we     string
			campus sql.NullString
		)
		if err := rows.Scan(&tr.PersonID, &we, &tr.FromTier, &tr.ToTier, &tr.Delta, &campus); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.CampusID = scanStr(campus)
		if tr.WeekEnd, err = week.Parse(we); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// TenureStats computes tenure percentiles over all recorded departures.
// SQLite has no percentile function, so the small result set is ranked here.
func (s *SQLiteLapseStore) TenureStats(ctx context.Context) (TenureStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT first_seen_any, last_any_date FROM no_longer_attends_events
		WHERE first_seen_any IS NOT NULL`)
	if err != nil {
		return TenureStats{}, fmt.Errorf("tenure stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenures []float64
	for rows.Next() {
		var first, last string
		if err := rows.Scan(&first, &last); err != nil {
			return TenureStats{}, fmt.Errorf("scan tenure: %w", err)
		}
		f, err := week.Parse(first)
		if err != nil {
			return TenureStats{}, err
		}
		l, err := week.Parse(last)
		if err != nil {
			return TenureStats{}, err
		}
		if d := week.DaysBetween(f, l); d >= 0 {
			tenures = append(tenures, float64(d))
		}
	}
	if err := rows.Err(); err != nil {
		return TenureStats{}, err
	}

	stats := TenureStats{Count: len(tenures)}
	if len(tenures) == 0 {
		return stats, nil
	}

	sort.Float64s(tenures)
	sum := 0.0
	for _, t := range tenures {
		sum += t
	}
	avg := sum / float64(len(tenures))
	p50 := percentile(tenures, 0.50)
	p90 := percentile(tenures, 0.90)
	stats.AvgDays, stats.P50Days, stats.P90Days = &avg, &p50, &p90
	return stats, nil
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// DeleteAll clears the event tables. Used by the confirmed reset.
func (s *SQLiteLapseStore) DeleteAll(ctx context.Context) error {
	for _, table := range []string{"lapse_events", "no_longer_attends_events", "engagement_tier_transitions"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
