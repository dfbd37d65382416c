package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/josh20ny/np-analytics-app-sub000/internal/domain"
	"github.com/josh20ny/np-analytics-app-sub000/internal/week"
)

// kidMinistries are the children's check-in environments used by the adult
// attendance proxy: a kid checked in here implies the household's adults
// attended that service.
var kidMinistries = []string{"Waumba Land", "UpStreet", "Transit"}

const adultAgeYears = 18

// FactStore reads the ingestion fact tables. The pipeline never mutates
// them; the Insert methods exist for seeding and tests only.
type FactStore interface {
	// AttendanceEvents returns household-proxy attendance dates per adult:
	// distinct kid check-in service dates in [since, until] attributed to
	// every adult (18+ as of until) in the kid's household.
	AttendanceEvents(ctx context.Context, since, until time.Time) (map[string][]time.Time, error)
	// GivingEvents returns gift week-end dates per person in [since, until].
	GivingEvents(ctx context.Context, since, until time.Time) (map[string][]time.Time, error)
	// GiftsForWeek maps person -> gift count for one week.
	GiftsForWeek(ctx context.Context, weekEnd time.Time) (map[string]int, error)
	// LastGiftBefore maps person -> latest gift week-end strictly before the
	// given date.
	LastGiftBefore(ctx context.Context, before time.Time) (map[string]time.Time, error)
	// GroupActiveAsOf reports people with an active small-group membership
	// as of the given date. ServingActiveAsOf does the same for serving
	// teams.
	GroupActiveAsOf(ctx context.Context, asOf time.Time) (map[string]bool, error)
	ServingActiveAsOf(ctx context.Context, asOf time.Time) (map[string]bool, error)
	// GroupLastJoin maps person -> latest membership join date, for serving
	// teams or small groups.
	GroupLastJoin(ctx context.Context, serving bool) (map[string]time.Time, error)
	// GroupLastActivity maps person -> last small-group activity date: asOf
	// while a membership is active, otherwise the latest archive date.
	GroupLastActivity(ctx context.Context, asOf time.Time) (map[string]time.Time, error)
	// FirstTimeCounts counts people whose lifetime-first activity date per
	// channel falls inside [weekStart, weekEnd].
	FirstTimeCounts(ctx context.Context, weekStart, weekEnd time.Time) (domain.FrontDoorCounts, error)
	// FirstSeenAny maps person -> earliest activity date across check-ins,
	// giving and memberships, for the given people.
	FirstSeenAny(ctx context.Context, personIDs []string) (map[string]time.Time, error)
	// AdultAttendanceAvg4W averages the last four recorded adult attendance
	// totals at or before weekEnd; nil when none exist.
	AdultAttendanceAvg4W(ctx context.Context, weekEnd time.Time) (*float64, error)
	AsOfCounts(ctx context.Context, asOf time.Time) (domain.AsOfCounts, error)
	// EarliestFactDate returns the oldest activity date in any fact table.
	EarliestFactDate(ctx context.Context) (*time.Time, error)

	InsertPerson(ctx context.Context, p domain.Person) error
	InsertCheckin(ctx context.Context, personID string, svcDate time.Time, ministry string) error
	InsertGiving(ctx context.Context, personID string, weekEnd time.Time, giftCount int) error
	InsertGroup(ctx context.Context, groupID, groupType string, servingTeam bool) error
	InsertMembership(ctx context.Context, m domain.GroupMembership) error
	InsertAdultAttendance(ctx context.Context, date time.Time, total int) error
}

// SQLiteFactStore implements FactStore backed by SQLite.
type SQLiteFactStore struct {
	db *sql.DB
}

// NewSQLiteFactStore creates a new SQLiteFactStore.
func NewSQLiteFactStore(db *sql.DB) *SQLiteFactStore {
	return &SQLiteFactStore{db: db}
}

func ministryPlaceholders() (string, []any) {
	args := make([]any, len(kidMinistries))
	s := "("
	for i, m := range kidMinistries {
		if i > 0 {
			s += ", "
		}
		s += "?"
		args[i] = m
	}
	return s + ")", args
}

// AttendanceEvents joins kid check-ins to household adults.
func (s *SQLiteFactStore) AttendanceEvents(ctx context.Context, since, until time.Time) (map[string][]time.Time, error) {
	cutoff := until.AddDate(-adultAgeYears, 0, 0)
	placeholders, margs := ministryPlaceholders()

	query := `
		SELECT a.person_id, c.svc_date
		FROM checkins c
		JOIN people k ON k.person_id = c.person_id AND k.household_id != ''
		JOIN people a ON a.household_id = k.household_id
		WHERE c.ministry COLLATE NOCASE IN ` + placeholders + `
		  AND c.svc_date >= ? AND c.svc_date <= ?
		  AND a.birthdate IS NOT NULL AND a.birthdate <= ?
		GROUP BY a.person_id, c.svc_date
		ORDER BY a.person_id, c.svc_date`
	args := append(margs, week.Format(since), week.Format(until), week.Format(cutoff))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attendance events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDates(rows, "attendance event")
}

// GivingEvents returns per-person gift week dates in the window.
func (s *SQLiteFactStore) GivingEvents(ctx context.Context, since, until time.Time) (map[string][]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, week_end
		FROM giving_person_week
		WHERE gift_count > 0 AND week_end >= ? AND week_end <= ?
		ORDER BY person_id, week_end`,
		week.Format(since), week.Format(until))
	if err != nil {
		return nil, fmt.Errorf("giving events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDates(rows, "giving event")
}

func collectDates(rows *sql.Rows, what string) (map[string][]time.Time, error) {
	out := make(map[string][]time.Time)
	for rows.Next() {
		var pid, d string
		if err := rows.Scan(&pid, &d); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		t, err := week.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("parse %s date %q: %w", what, d, err)
		}
		out[pid] = append(out[pid], t)
	}
	return out, rows.Err()
}

// GiftsForWeek maps person to gift count for one week.
func (s *SQLiteFactStore) GiftsForWeek(ctx context.Context, weekEnd time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id, gift_count FROM giving_person_week WHERE week_end = ? AND gift_count > 0`,
		week.Format(weekEnd))
	if err != nil {
		return nil, fmt.Errorf("gifts for week: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var pid string
		var n int
		if err := rows.Scan(&pid, &n); err != nil {
			return nil, fmt.Errorf("scan gifts: %w", err)
		}
		out[pid] = n
	}
	return out, rows.Err()
}

// LastGiftBefore maps person to the latest gift week strictly before the date.
func (s *SQLiteFactStore) LastGiftBefore(ctx context.Context, before time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, MAX(week_end)
		FROM giving_person_week
		WHERE gift_count > 0 AND week_end < ?
		GROUP BY person_id`,
		week.Format(before))
	if err != nil {
		return nil, fmt.Errorf("last gift before: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]time.Time)
	for rows.Next() {
		var pid, d string
		if err := rows.Scan(&pid, &d); err != nil {
			return nil, fmt.Errorf("scan last gift: %w", err)
		}
		t, err := week.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("parse last gift date %q: %w", d, err)
		}
		out[pid] = t
	}
	return out, rows.Err()
}

// activeMembershipWhere is the status-as-of predicate shared by the group
// and serving queries: joined by asOf (unknown join counts) and not archived
// by asOf.
const activeMembershipWhere = `
	  m.status = 'active' COLLATE NOCASE
	  AND (m.first_joined_at IS NULL OR m.first_joined_at <= ?)
	  AND (m.archived_at IS NULL OR m.archived_at > ?)`

// GroupActiveAsOf reports people active in a small group as of the date.
func (s *SQLiteFactStore) GroupActiveAsOf(ctx context.Context, asOf time.Time) (map[string]bool, error) {
	return s.activeAsOf(ctx, asOf, false)
}

// ServingActiveAsOf reports people active on a serving team as of the date.
func (s *SQLiteFactStore) ServingActiveAsOf(ctx context.Context, asOf time.Time) (map[string]bool, error) {
	return s.activeAsOf(ctx, asOf, true)
}

func (s *SQLiteFactStore) activeAsOf(ctx context.Context, asOf time.Time, serving bool) (map[string]bool, error) {
	query := `
		SELECT DISTINCT m.person_id
		FROM group_memberships m
		JOIN groups g ON g.group_id = m.group_id
		WHERE ` + membershipKindWhere(serving) + ` AND ` + activeMembershipWhere
	d := week.Format(asOf)

	rows, err := s.db.QueryContext(ctx, query, d, d)
	if err != nil {
		return nil, fmt.Errorf("memberships active as of: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan active membership: %w", err)
		}
		out[pid] = true
	}
	return out, rows.Err()
}

func membershipKindWhere(serving bool) string {
	if serving {
		return `g.is_serving_team`
	}
	return `NOT g.is_serving_team AND g.group_type = 'groups' COLLATE NOCASE`
}

// GroupLastJoin maps person to their latest membership join date.
func (s *SQLiteFactStore) GroupLastJoin(ctx context.Context, serving bool) (map[string]time.Time, error) {
	query := `
		SELECT m.person_id, MAX(m.first_joined_at)
		FROM group_memberships m
		JOIN groups g ON g.group_id = m.group_id
		WHERE ` + membershipKindWhere(serving) + ` AND m.first_joined_at IS NOT NULL
		GROUP BY m.person_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("membership last join: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]time.Time)
	for rows.Next() {
		var pid, d string
		if err := rows.Scan(&pid, &d); err != nil {
			return nil, fmt.Errorf("scan last join: %w", err)
		}
		t, err := week.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("parse join date %q: %w", d, err)
		}
		out[pid] = t
	}
	return out, rows.Err()
}

// GroupLastActivity resolves each person's most recent small-group activity:
// an active membership counts as asOf, an ended one as its archive date.
func (s *SQLiteFactStore) GroupLastActivity(ctx context.Context, asOf time.Time) (map[string]time.Time, error) {
	query := `
		SELECT m.person_id, m.status, m.first_joined_at, m.archived_at
		FROM group_memberships m
		JOIN groups g ON g.group_id = m.group_id
		WHERE ` + membershipKindWhere(false)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("group last activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			pid, status   string
			joined, ended sql.NullString
		)
		if err := rows.Scan(&pid, &status, &joined, &ended); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}

		joinedAt, err := scanDate(joined)
		if err != nil {
			return nil, err
		}
		endedAt, err := scanDate(ended)
		if err != nil {
			return nil, err
		}

		var last time.Time
		active := strings.EqualFold(status, "active") &&
			(joinedAt == nil || !joinedAt.After(asOf)) &&
			(endedAt == nil || endedAt.After(asOf))
		switch {
		case active:
			last = asOf
		case endedAt != nil:
			last = *endedAt
		default:
			continue
		}
		if cur, ok := out[pid]; !ok || last.After(cur) {
			out[pid] = last
		}
	}
	return out, rows.Err()
}

// FirstTimeCounts counts lifetime-first activity falling inside the week.
func (s *SQLiteFactStore) FirstTimeCounts(ctx context.Context, weekStart, weekEnd time.Time) (domain.FrontDoorCounts, error) {
	var out domain.FrontDoorCounts
	ws, we := week.Format(weekStart), week.Format(weekEnd)

	firstMembership := func(serving bool) string {
		return `
			SELECT COUNT(*) FROM (
				SELECT m.person_id, MIN(m.first_joined_at) AS first_date
				FROM group_memberships m
				JOIN groups g ON g.group_id = m.group_id
				WHERE ` + membershipKindWhere(serving) + ` AND m.first_joined_at IS NOT NULL
				GROUP BY m.person_id
			) WHERE first_date >= ? AND first_date <= ?`
	}

	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM (
			SELECT person_id, MIN(svc_date) AS first_date FROM checkins GROUP BY person_id
		  ) WHERE first_date >= ? AND first_date <= ?`, &out.FirstTimeCheckins},
		{`SELECT COUNT(*) FROM (
			SELECT person_id, MIN(week_end) AS first_date FROM giving_person_week
			WHERE gift_count > 0 GROUP BY person_id
		  ) WHERE first_date >= ? AND first_date <= ?`, &out.FirstTimeGivers},
		{firstMembership(false), &out.FirstTimeGroups},
		{firstMembership(true), &out.FirstTimeServing},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql, ws, we).Scan(q.dest); err != nil {
			return out, fmt.Errorf("first-time counts: %w", err)
		}
	}
	return out, nil
}

// FirstSeenAny maps people to their earliest activity date of any kind.
func (s *SQLiteFactStore) FirstSeenAny(ctx context.Context, personIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if len(personIDs) == 0 {
		return out, nil
	}

	in := signalPlaceholders(len(personIDs))
	query := `
		SELECT person_id, MIN(d) FROM (
			SELECT person_id, svc_date AS d FROM checkins WHERE person_id IN ` + in + `
			UNION ALL
			SELECT person_id, week_end AS d FROM giving_person_week
			WHERE gift_count > 0 AND person_id IN ` + in + `
			UNION ALL
			SELECT person_id, first_joined_at AS d FROM group_memberships
			WHERE first_joined_at IS NOT NULL AND person_id IN ` + in + `
		) GROUP BY person_id`

	args := make([]any, 0, 3*len(personIDs))
	for i := 0; i < 3; i++ {
		for _, id := range personIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("first seen any: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var pid, d string
		if err := rows.Scan(&pid, &d); err != nil {
			return nil, fmt.Errorf("scan first seen: %w", err)
		}
		t, err := week.Parse(d)
		if err != nil {
			return nil, fmt.Errorf("parse first seen %q: %w", d, err)
		}
		out[pid] = t
	}
	return out, rows.Err()
}

// AdultAttendanceAvg4W averages the last four recorded totals up to weekEnd.
func (s *SQLiteFactStore) AdultAttendanceAvg4W(ctx context.Context, weekEnd time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(total_attendance) FROM (
			SELECT total_attendance FROM adult_attendance
			WHERE date <= ? ORDER BY date DESC LIMIT 4
		)`, week.Format(weekEnd)).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("adult attendance average: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	v := avg.Float64
	return &v, nil
}

// AsOfCounts returns point-in-time group and serving membership counts.
func (s *SQLiteFactStore) AsOfCounts(ctx context.Context, asOf time.Time) (domain.AsOfCounts, error) {
	var out domain.AsOfCounts

	groups, err := s.GroupActiveAsOf(ctx, asOf)
	if err != nil {
		return out, err
	}
	serving, err := s.ServingActiveAsOf(ctx, asOf)
	if err != nil {
		return out, err
	}
	out.InGroupsActive = len(groups)
	out.ServingActive = len(serving)
	return out, nil
}

// EarliestFactDate returns the oldest activity date across the fact tables.
func (s *SQLiteFactStore) EarliestFactDate(ctx context.Context) (*time.Time, error) {
	var d sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(d) FROM (
			SELECT MIN(svc_date) AS d FROM checkins
			UNION ALL
			SELECT MIN(week_end) AS d FROM giving_person_week WHERE gift_count > 0
			UNION ALL
			SELECT MIN(first_joined_at) AS d FROM group_memberships
		)`).Scan(&d)
	if err != nil {
		return nil, fmt.Errorf("earliest fact date: %w", err)
	}
	return scanDate(d)
}

// InsertPerson writes a people row, replacing any existing one.
func (s *SQLiteFactStore) InsertPerson(ctx context.Context, p domain.Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO people
		  (person_id, first_name, last_name, email, household_id, birthdate, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PersonID, p.FirstName, p.LastName, p.Email, p.HouseholdID,
		dateArg(p.Birthdate), dateArg(p.FirstSeen))
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

// InsertCheckin writes a checkins row; duplicates are ignored.
func (s *SQLiteFactStore) InsertCheckin(ctx context.Context, personID string, svcDate time.Time, ministry string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkins (person_id, svc_date, ministry) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		personID, week.Format(svcDate), ministry)
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

// InsertGiving writes a giving_person_week row, replacing any existing one.
func (s *SQLiteFactStore) InsertGiving(ctx context.Context, personID string, weekEnd time.Time, giftCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO giving_person_week (person_id, week_end, gift_count)
		VALUES (?, ?, ?)`,
		personID, week.Format(weekEnd), giftCount)
	if err != nil {
		return fmt.Errorf("insert giving: %w", err)
	}
	return nil
}

// InsertGroup writes a groups row, replacing any existing one.
func (s *SQLiteFactStore) InsertGroup(ctx context.Context, groupID, groupType string, servingTeam bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO groups (group_id, group_type, is_serving_team)
		VALUES (?, ?, ?)`,
		groupID, groupType, servingTeam)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// InsertMembership writes a group_memberships row, replacing any existing one.
func (s *SQLiteFactStore) InsertMembership(ctx context.Context, m domain.GroupMembership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO group_memberships
		  (person_id, group_id, status, first_joined_at, archived_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.PersonID, m.GroupID, m.Status, dateArg(m.FirstJoinedAt), dateArg(m.ArchivedAt))
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// InsertAdultAttendance writes an adult_attendance row, replacing any
// existing one.
func (s *SQLiteFactStore) InsertAdultAttendance(ctx context.Context, date time.Time, total int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO adult_attendance (date, total_attendance) VALUES (?, ?)`,
		week.Format(date), total)
	if err != nil {
		return fmt.Errorf("insert adult attendance: %w", err)
	}
	return nil
}
