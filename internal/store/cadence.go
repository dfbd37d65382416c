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

// CadenceStore defines persistence for person_cadence rows.
type CadenceStore interface {
	// Upsert writes rows keyed by (person_id, signal). Every statistical
	// field is overwritten on conflict; campus_id is preserved once set.
	// Running it twice with the same rows yields the same stored state.
	Upsert(ctx context.Context, rows []domain.PersonCadence) (int, error)
	Get(ctx context.Context, personID string, signal domain.Signal) (*domain.PersonCadence, error)
	ForPerson(ctx context.Context, personID string, signals []domain.Signal) ([]domain.PersonCadence, error)
	Browse(ctx context.Context, opts BrowseOpts) ([]CadenceListItem, int, error)
	// BucketCounts returns per-bucket counts for one signal among people
	// present in the weekly snapshot for weekEnd. With excludeLapsed, real
	// cadence rows at or past the missed-cycle threshold are dropped.
	BucketCounts(ctx context.Context, signal domain.Signal, weekEnd time.Time, excludeLapsed bool, threshold int) (map[domain.Bucket]int, error)
	// LapseCandidates returns rows eligible for lapse consideration:
	// real cadence bucket, samples_n >= minSamples, missed >= threshold.
	LapseCandidates(ctx context.Context, signals []domain.Signal, minSamples, threshold int) ([]domain.PersonCadence, error)
	CountLapsedPeople(ctx context.Context, signals []domain.Signal, minSamples, threshold int) (int, error)
	// LastSeenBySignal maps person -> signal -> last_seen_date for the
	// given signals, skipping rows without a last-seen date.
	LastSeenBySignal(ctx context.Context, signals []domain.Signal) (map[string]map[domain.Signal]time.Time, error)
	// GiveBuckets maps person -> giving cadence bucket.
	GiveBuckets(ctx context.Context) (map[string]domain.Bucket, error)
	// GivingOnTrackInputs maps person -> (expected_next_date, samples_n)
	// for the give signal, feeding the snapshot's on-track rule.
	GivingOnTrackInputs(ctx context.Context) (map[string]GivingCadenceInput, error)
	DeleteAll(ctx context.Context) error
}

// GivingCadenceInput is the slice of a giving cadence row the snapshot
// builder needs.
type GivingCadenceInput struct {
	ExpectedNext *time.Time
	SamplesN     int
}

// BrowseOpts filters and orders the cadence browse query.
type BrowseOpts struct {
	Signal        domain.Signal
	Bucket        domain.Bucket // optional
	ExcludeLapsed bool
	Threshold     int    // missed-cycle threshold used when ExcludeLapsed
	Query         string // substring match on name or email
	OrderBy       string // one of BrowseOrders
	Limit         int
	Offset        int
}

// BrowseOrders maps order keys accepted by the browse endpoint to SQL.
var BrowseOrders = map[string]string{
	"expected_next_date_asc": "c.expected_next_date IS NULL, c.expected_next_date ASC, c.last_seen_date DESC",
	"last_seen_desc":         "c.last_seen_date DESC",
	"missed_cycles_desc":     "c.missed_cycles DESC, c.last_seen_date DESC",
	"samples_desc":           "c.samples_n DESC, c.last_seen_date DESC",
}

// CadenceListItem is one browse result row, enriched with person info.
type CadenceListItem struct {
	domain.PersonCadence
	Name  string
	Email string
}

// SQLiteCadenceStore implements CadenceStore backed by SQLite.
type SQLiteCadenceStore struct {
	db *sql.DB
}

// NewSQLiteCadenceStore creates a new SQLiteCadenceStore.
func NewSQLiteCadenceStore(db *sql.DB) *SQLiteCadenceStore {
	return &SQLiteCadenceStore{db: db}
}

// Upsert writes cadence rows in one transaction.
func (s *SQLiteCadenceStore) Upsert(ctx context.Context, rows []domain.PersonCadence) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cadence upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO person_cadence
		  (person_id, signal, bucket, median_interval_days, iqr_days, last_seen_date,
		   expected_next_date, missed_cycles, samples_n, calc_method, current_streak,
		   campus_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (person_id, signal) DO UPDATE SET
		  bucket               = excluded.bucket,
		  median_interval_days = excluded.median_interval_days,
		  iqr_days             = excluded.iqr_days,
		  last_seen_date       = excluded.last_seen_date,
		  expected_next_date   = excluded.expected_next_date,
		  missed_cycles        = excluded.missed_cycles,
		  samples_n            = excluded.samples_n,
		  calc_method          = excluded.calc_method,
		  current_streak       = excluded.current_streak,
		  campus_id            = COALESCE(person_cadence.campus_id, excluded.campus_id),
		  updated_at           = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare cadence upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := now()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.PersonID, string(r.Signal), string(r.Bucket),
			intArg(r.MedianIntervalDays), intArg(r.IQRDays),
			dateArg(r.LastSeenDate), dateArg(r.ExpectedNextDate),
			r.MissedCycles, r.SamplesN, r.CalcMethod, r.CurrentStreak,
			strArg(r.CampusID), ts,
		); err != nil {
			return 0, fmt.Errorf("upsert cadence %s/%s: %w", r.PersonID, r.Signal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cadence upsert: %w", err)
	}
	return len(rows), nil
}

const cadenceColumns = `person_id, signal, bucket, median_interval_days, iqr_days,
	last_seen_date, expected_next_date, missed_cycles, samples_n, calc_method,
	current_streak, campus_id`

func scanCadence(sc interface{ Scan(...any) error }) (*domain.PersonCadence, error) {
	var (
		r           domain.PersonCadence
		sig, bucket string
		med, iqr    sql.NullInt64
		last, exp   sql.NullString
		campus      sql.NullString
	)
	if err := sc.Scan(&r.PersonID, &sig, &bucket, &med, &iqr, &last, &exp,
		&r.MissedCycles, &r.SamplesN, &r.CalcMethod, &r.CurrentStreak, &campus); err != nil {
		return nil, err
	}

	r.Signal = domain.Signal(sig)
	r.Bucket = domain.Bucket(bucket)
	r.MedianIntervalDays = scanInt(med)
	r.IQRDays = scanInt(iqr)
	r.CampusID = scanStr(campus)

	var err error
	if r.LastSeenDate, err = scanDate(last); err != nil {
		return nil, err
	}
	if r.ExpectedNextDate, err = scanDate(exp); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get returns the cadence row for one person and signal.
func (s *SQLiteCadenceStore) Get(ctx context.Context, personID string, signal domain.Signal) (*domain.PersonCadence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cadenceColumns+` FROM person_cadence WHERE person_id = ? AND signal = ?`,
		personID, string(signal))

	c, err := scanCadence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cadence: %w", err)
	}
	return c, nil
}

// ForPerson returns a person's cadence rows for the given signals.
func (s *SQLiteCadenceStore) ForPerson(ctx context.Context, personID string, signals []domain.Signal) ([]domain.PersonCadence, error) {
	query := `SELECT ` + cadenceColumns + ` FROM person_cadence WHERE person_id = ?` +
		` AND signal IN ` + signalPlaceholders(len(signals)) + ` ORDER BY signal`
	args := []any{personID}
	for _, sig := range signals {
		args = append(args, string(sig))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cadences for person: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.PersonCadence
	for rows.Next() {
		c, err := scanCadence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cadence: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Browse returns a filtered, ordered page of cadence rows with person info,
// plus the total count for the filter.
func (s *SQLiteCadenceStore) Browse(ctx context.Context, opts BrowseOpts) ([]CadenceListItem, int, error) {
	orderSQL, ok := BrowseOrders[opts.OrderBy]
	if !ok {
		orderSQL = BrowseOrders["expected_next_date_asc"]
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	where := `c.signal = ?`
	args := []any{string(opts.Signal)}

	if opts.Bucket != "" {
		where += ` AND c.bucket = ?`
		args = append(args, string(opts.Bucket))
	}
	if opts.ExcludeLapsed {
		where += ` AND NOT (c.bucket NOT IN ('irregular','one_off','none') AND c.missed_cycles >= ?)`
		args = append(args, opts.Threshold)
	}
	if opts.Query != "" {
		where += ` AND (p.first_name || ' ' || p.last_name LIKE ? OR p.email LIKE ?)`
		like := "%" + opts.Query + "%"
		args = append(args, like, like)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM person_cadence c JOIN people p USING (person_id) WHERE `+where,
		args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count cadences: %w", err)
	}

	query := `SELECT ` + cadenceColumns + `, p.first_name, p.last_name, p.email
		FROM person_cadence c JOIN people p USING (person_id)
		WHERE ` + where + ` ORDER BY ` + orderSQL + ` LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("browse cadences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CadenceListItem
	for rows.Next() {
		var (
			item        CadenceListItem
			sig, bucket string
			med, iqr    sql.NullInt64
			last, exp   sql.NullString
			campus      sql.NullString
			first, lst  string
		)
		if err := rows.Scan(&item.PersonID, &sig, &bucket, &med, &iqr, &last, &exp,
			&item.MissedCycles, &item.SamplesN, &item.CalcMethod, &item.CurrentStreak,
			&campus, &first, &lst, &item.Email); err != nil {
			return nil, 0, fmt.Errorf("scan browse row: %w", err)
		}
		item.Signal = domain.Signal(sig)
		item.Bucket = domain.Bucket(bucket)
		item.MedianIntervalDays = scanInt(med)
		item.IQRDays = scanInt(iqr)
		item.CampusID = scanStr(campus)
		if item.LastSeenDate, err = scanDate(last); err != nil {
			return nil, 0, err
		}
		if item.ExpectedNextDate, err = scanDate(exp); err != nil {
			return nil, 0, err
		}
		p := domain.Person{FirstName: first, LastName: lst}
		item.Name = p.Name()
		out = append(out, item)
	}
	return out, total, rows.Err()
}

// BucketCounts counts snapshot-present people per cadence bucket.
func (s *SQLiteCadenceStore) BucketCounts(ctx context.Context, signal domain.Signal, weekEnd time.Time, excludeLapsed bool, threshold int) (map[domain.Bucket]int, error) {
	query := `
		SELECT c.bucket, COUNT(*)
		FROM person_cadence c
		JOIN snap_person_week s ON s.person_id = c.person_id AND s.week_end = ?
		WHERE c.signal = ?`
	args := []any{week.Format(weekEnd), string(signal)}

	if excludeLapsed {
		query += ` AND NOT (c.bucket NOT IN ('irregular','one_off','none') AND c.missed_cycles >= ?)`
		args = append(args, threshold)
	}
	query += ` GROUP BY c.bucket`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[domain.Bucket]int)
	for _, b := range domain.HistogramBuckets {
		out[b] = 0
	}
	for rows.Next() {
		var b string
		var n int
		if err := rows.Scan(&b, &n); err != nil {
			return nil, fmt.Errorf("scan bucket count: %w", err)
		}
		if _, ok := out[domain.Bucket(b)]; ok {
			out[domain.Bucket(b)] = n
		}
	}
	return out, rows.Err()
}

// LapseCandidates returns cadence rows past the lapse threshold.
func (s *SQLiteCadenceStore) LapseCandidates(ctx context.Context, signals []domain.Signal, minSamples, threshold int) ([]domain.PersonCadence, error) {
	query := `SELECT ` + cadenceColumns + ` FROM person_cadence c
		WHERE signal IN ` + signalPlaceholders(len(signals)) + `
		  AND samples_n >= ?
		  AND bucket NOT IN ('irregular','one_off','none')
		  AND missed_cycles >= ?
		ORDER BY person_id, signal`
	args := make([]any, 0, len(signals)+2)
	for _, sig := range signals {
		args = append(args, string(sig))
	}
	args = append(args, minSamples, threshold)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lapse candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.PersonCadence
	for rows.Next() {
		c, err := scanCadence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lapse candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountLapsedPeople counts distinct people past the lapse threshold across
// the given signals, before any per-signal gating.
func (s *SQLiteCadenceStore) CountLapsedPeople(ctx context.Context, signals []domain.Signal, minSamples, threshold int) (int, error) {
	query := `SELECT COUNT(DISTINCT person_id) FROM person_cadence
		WHERE signal IN ` + signalPlaceholders(len(signals)) + `
		  AND samples_n >= ?
		  AND bucket NOT IN ('irregular','one_off','none')
		  AND missed_cycles >= ?`
	args := make([]any, 0, len(signals)+2)
	for _, sig := range signals {
		args = append(args, string(sig))
	}
	args = append(args, minSamples, threshold)

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lapsed people: %w", err)
	}
	return n, nil
}

// LastSeenBySignal maps person -> signal -> last seen date.
func (s *SQLiteCadenceStore) LastSeenBySignal(ctx context.Context, signals []domain.Signal) (map[string]map[domain.Signal]time.Time, error) {
	query := `SELECT person_id, signal, last_seen_date FROM person_cadence
		WHERE signal IN ` + signalPlaceholders(len(signals)) + ` AND last_seen_date IS NOT NULL`
	args := make([]any, 0, len(signals))
	for _, sig := range signals {
		args = append(args, string(sig))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("last seen by signal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[domain.Signal]time.Time)
	for rows.Next() {
		var pid, sig, last string
		if err := rows.Scan(&pid, &sig, &last); err != nil {
			return nil, fmt.Errorf("scan last seen: %w", err)
		}
		d, err := week.Parse(last)
		if err != nil {
			return nil, fmt.Errorf("parse last seen %q: %w", last, err)
		}
		if out[pid] == nil {
			out[pid] = make(map[domain.Signal]time.Time)
		}
		out[pid][domain.Signal(sig)] = d
	}
	return out, rows.Err()
}

// GiveBuckets maps person -> giving bucket.
func (s *SQLiteCadenceStore) GiveBuckets(ctx context.Context) (map[string]domain.Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id, bucket FROM person_cadence WHERE signal = 'give'`)
	if err != nil {
		return nil, fmt.Errorf("give buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.Bucket)
	for rows.Next() {
		var pid, b string
		if err := rows.Scan(&pid, &b); err != nil {
			return nil, fmt.Errorf("scan give bucket: %w", err)
		}
		out[pid] = domain.Bucket(b)
	}
	return out, rows.Err()
}

// GivingOnTrackInputs returns the giving-cadence fields the snapshot needs.
func (s *SQLiteCadenceStore) GivingOnTrackInputs(ctx context.Context) (map[string]GivingCadenceInput, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person_id, expected_next_date, samples_n FROM person_cadence WHERE signal = 'give'`)
	if err != nil {
		return nil, fmt.Errorf("giving cadence inputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]GivingCadenceInput)
	for rows.Next() {
		var (
			pid     string
			exp     sql.NullString
			samples int
		)
		if err := rows.Scan(&pid, &exp, &samples); err != nil {
			return nil, fmt.Errorf("scan giving input: %w", err)
		}
		expected, err := scanDate(exp)
		if err != nil {
			return nil, err
		}
		out[pid] = GivingCadenceInput{ExpectedNext: expected, SamplesN: samples}
	}
	return out, rows.Err()
}

// DeleteAll clears the person_cadence table. Used by the confirmed reset.
func (s *SQLiteCadenceStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM person_cadence`); err != nil {
		return fmt.Errorf("delete person_cadence: %w", err)
	}
	return nil
}

// signalPlaceholders renders "(?, ?, ...)" for n signals.
func signalPlaceholders(n int) string {
	if n <= 0 {
		return "('')"
	}
	s := "(?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s + ")"
}
