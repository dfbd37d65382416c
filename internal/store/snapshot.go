package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// SnapshotStore defines persistence for snap_person_week rows.
type SnapshotStore interface {
	// Upsert writes snapshot rows keyed by (person_id, week_end).
	Upsert(ctx context.Context, rows []domain.SnapPersonWeek) (int, error)
	Get(ctx context.Context, personID string, weekEnd time.Time) (*domain.SnapPersonWeek, error)
	RowsForWeek(ctx context.Context, weekEnd time.Time) ([]domain.SnapPersonWeek, error)
	// TierCounts returns counts of people per engaged tier for a week.
	TierCounts(ctx context.Context, weekEnd time.Time) (map[int]int, error)
	// TiersForWeek maps person -> engaged tier for a week.
	TiersForWeek(ctx context.Context, weekEnd time.Time) (map[string]int, error)
	DeleteAll(ctx context.Context) error
}

// SQLiteSnapshotStore implements SnapshotStore backed by SQLite.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore creates a new SQLiteSnapshotStore.
func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

// Upsert writes snapshot rows in one transaction.
func (s *SQLiteSnapshotStore) Upsert(ctx context.Context, rows []domain.SnapPersonWeek) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snap_person_week
		  (person_id, week_start, week_end, attended_bool, gave_ontrack_bool,
		   served_ontrack_bool, in_group_ontrack_bool, engaged_tier,
		   checkins_count, gifts_count, serving_occurrences, campus_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (person_id, week_end) DO UPDATE SET
		  week_start            = excluded.week_start,
		  attended_bool         = excluded.attended_bool,
		  gave_ontrack_bool     = excluded.gave_ontrack_bool,
		  served_ontrack_bool   = excluded.served_ontrack_bool,
		  in_group_ontrack_bool = excluded.in_group_ontrack_bool,
		  engaged_tier          = excluded.engaged_tier,
		  checkins_count        = excluded.checkins_count,
		  gifts_count           = excluded.gifts_count,
		  serving_occurrences   = excluded.serving_occurrences,
		  campus_id             = excluded.campus_id`)
	if err != nil {
		return 0, fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.PersonID, week.Format(r.WeekStart), week.Format(r.WeekEnd),
			r.Attended, r.GaveOnTrack, r.ServedOnTrack, r.InGroupOnTrack,
			r.EngagedTier, r.CheckinsCount, r.GiftsCount, r.ServingOccurrences,
			strArg(r.CampusID),
		); err != nil {
			return 0, fmt.Errorf("upsert snapshot %s/%s: %w", r.PersonID, week.Format(r.WeekEnd), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot upsert: %w", err)
	}
	return len(rows), nil
}

const snapshotColumns = `person_id, week_start, week_end, attended_bool,
	gave_ontrack_bool, served_ontrack_bool, in_group_ontrack_bool, engaged_tier,
	checkins_count, gifts_count, serving_occurrences, campus_id`

func scanSnapshot(sc interface{ Scan(...any) error }) (*domain.SnapPersonWeek, error) {
	var (
		r          domain.SnapPersonWeek
		start, end string
		campus     sql.NullString
	)
	if err := sc.Scan(&r.PersonID, &start, &end, &r.Attended, &r.GaveOnTrack,
		&r.ServedOnTrack, &r.InGroupOnTrack, &r.EngagedTier, &r.CheckinsCount,
		&r.GiftsCount, &r.ServingOccurrences, &campus); err != nil {
		return nil, err
	}

	var err error
	if r.WeekStart, err = week.Parse(start); err != nil {
		return nil, err
	}
	if r.WeekEnd, err = week.Parse(end); err != nil {
		return nil, err
	}
	r.CampusID = scanStr(campus)
	return &r, nil
}

// Get returns one snapshot row.
func (s *SQLiteSnapshotStore) Get(ctx context.Context, personID string, weekEnd time.Time) (*domain.SnapPersonWeek, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snap_person_week WHERE person_id = ? AND week_end = ?`,
		personID, week.Format(weekEnd))

	r, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return r, nil
}

// RowsForWeek returns every snapshot row for a week.
func (s *SQLiteSnapshotStore) RowsForWeek(ctx context.Context, weekEnd time.Time) ([]domain.SnapPersonWeek, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snap_person_week WHERE week_end = ? ORDER BY person_id`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("snapshots for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SnapPersonWeek
	for rows.Next() {
		r, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// TierCounts returns engaged-tier counts for a week, with all four tiers
// present even when zero.
func (s *SQLiteSnapshotStore) TierCounts(ctx context.Context, weekEnd time.Time) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT engaged_tier, COUNT(*) FROM snap_person_week WHERE week_end = ? GROUP BY engaged_tier`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("tier counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int]int{0: 0, 1: 0, 2: 0, 3: 0}
	for rows.Next() {
		var tier, n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		out[tier] = n
	}
	return out, rows.Err()
}

// TiersForWeek maps person to engaged tier for a week.
func (s *SQLiteSnapshotStore) TiersForWeek(ctx context.Context, weekEnd time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id, engaged_tier FROM snap_person_week WHERE week_end = ?`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("tiers for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var pid string
		var tier int
		if err := rows.Scan(&pid, &tier); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out[pid] = tier
	}
	return out, rows.Err()
}

// DeleteAll clears the snap_person_week table. Used by the confirmed reset.
func (s *SQLiteSnapshotStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snap_person_week`); err != nil {
		return fmt.Errorf("delete snap_person_week: %w", err)
	}
	return nil
}
