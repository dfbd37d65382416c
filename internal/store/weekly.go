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

// WeeklyStore persists the per-week front-door and back-door rollups.
type WeeklyStore interface {
	UpsertFrontDoor(ctx context.Context, row domain.FrontDoorWeekly) error
	GetFrontDoor(ctx context.Context, weekStart time.Time) (*domain.FrontDoorWeekly, error)
	UpsertBackDoor(ctx context.Context, row domain.BackDoorWeekly) error
	GetBackDoor(ctx context.Context, weekEnd time.Time) (*domain.BackDoorWeekly, error)
	DeleteAll(ctx context.Context) error
}

// SQLiteWeeklyStore implements WeeklyStore backed by SQLite.
type SQLiteWeeklyStore struct {
	db *sql.DB
}

// NewSQLiteWeeklyStore creates a new SQLiteWeeklyStore.
func NewSQLiteWeeklyStore(db *sql.DB) *SQLiteWeeklyStore {
	return &SQLiteWeeklyStore{db: db}
}

// UpsertFrontDoor writes the front-door rollup for one week.
func (s *SQLiteWeeklyStore) UpsertFrontDoor(ctx context.Context, row domain.FrontDoorWeekly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO front_door_weekly
		  (week_start, week_end, first_time_checkins, first_time_givers,
		   first_time_groups, first_time_serving)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (week_start) DO UPDATE SET
		  week_end            = excluded.week_end,
		  first_time_checkins = excluded.first_time_checkins,
		  first_time_givers   = excluded.first_time_givers,
		  first_time_groups   = excluded.first_time_groups,
		  first_time_serving  = excluded.first_time_serving`,
		week.Format(row.WeekStart), week.Format(row.WeekEnd),
		row.FirstTimeCheckins, row.FirstTimeGivers,
		row.FirstTimeGroups, row.FirstTimeServing)
	if err != nil {
		return fmt.Errorf("upsert front door: %w", err)
	}
	return nil
}

// GetFrontDoor returns the front-door rollup for one week.
func (s *SQLiteWeeklyStore) GetFrontDoor(ctx context.Context, weekStart time.Time) (*domain.FrontDoorWeekly, error) {
	var (
		r      domain.FrontDoorWeekly
		ws, we string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT week_start, week_end, first_time_checkins, first_time_givers,
		       first_time_groups, first_time_serving
		FROM front_door_weekly WHERE week_start = ?`,
		week.Format(weekStart)).Scan(&ws, &we, &r.FirstTimeCheckins,
		&r.FirstTimeGivers, &r.FirstTimeGroups, &r.FirstTimeServing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get front door: %w", err)
	}

	if r.WeekStart, err = week.Parse(ws); err != nil {
		return nil, err
	}
	if r.WeekEnd, err = week.Parse(we); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertBackDoor writes the back-door rollup for one week.
func (s *SQLiteWeeklyStore) UpsertBackDoor(ctx context.Context, row domain.BackDoorWeekly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO back_door_weekly
		  (week_end, downshifts_total, downshift_3_to_2, downshift_2_to_1,
		   downshift_1_to_0, new_nla_count, reengaged_count, bdi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (week_end) DO UPDATE SET
		  downshifts_total = excluded.downshifts_total,
		  downshift_3_to_2 = excluded.downshift_3_to_2,
		  downshift_2_to_1 = excluded.downshift_2_to_1,
		  downshift_1_to_0 = excluded.downshift_1_to_0,
		  new_nla_count    = excluded.new_nla_count,
		  reengaged_count  = excluded.reengaged_count,
		  bdi              = excluded.bdi`,
		week.Format(row.WeekEnd), row.DownshiftTotal, row.Downshift3to2,
		row.Downshift2to1, row.Downshift1to0, row.NewNLACount,
		row.ReengagedCount, row.BDI)
	if err != nil {
		return fmt.Errorf("upsert back door: %w", err)
	}
	return nil
}

// GetBackDoor returns the back-door rollup for one week.
func (s *SQLiteWeeklyStore) GetBackDoor(ctx context.Context, weekEnd time.Time) (*domain.BackDoorWeekly, error) {
	var (
		r  domain.BackDoorWeekly
		we string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT week_end, downshifts_total, downshift_3_to_2, downshift_2_to_1,
		       downshift_1_to_0, new_nla_count, reengaged_count, bdi
		FROM back_door_weekly WHERE week_end = ?`,
		week.Format(weekEnd)).Scan(&we, &r.DownshiftTotal, &r.Downshift3to2,
		&r.Downshift2to1, &r.Downshift1to0, &r.NewNLACount,
		&r.ReengagedCount, &r.BDI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get back door: %w", err)
	}

	if r.WeekEnd, err = week.Parse(we); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteAll clears the rollup tables. Used by the confirmed reset.
func (s *SQLiteWeeklyStore) DeleteAll(ctx context.Context) error {
	for _, table := range []string{"front_door_weekly", "back_door_weekly"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
