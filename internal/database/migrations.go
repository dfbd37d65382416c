package database

// migrations is an ordered list of SQL migration groups. Each entry is a slice
// of SQL statements that are executed together in a single transaction. The
// version number is the 1-based index into this slice.
//
// Dates are stored as ISO 'YYYY-MM-DD' TEXT; lexicographic comparison matches
// chronological order for that layout.
var migrations = [][]string{
	// Migration 1: ingestion fact tables (written by the sync jobs, read-only
	// to the reporting pipeline).
	{
		`CREATE TABLE people (
			person_id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			household_id TEXT NOT NULL DEFAULT '',
			birthdate TEXT,
			first_seen TEXT
		)`,
		`CREATE INDEX idx_people_household ON people(household_id)`,

		`CREATE TABLE checkins (
			person_id TEXT NOT NULL,
			svc_date TEXT NOT NULL,
			ministry TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (person_id, svc_date, ministry)
		)`,
		`CREATE INDEX idx_checkins_date ON checkins(svc_date)`,

		`CREATE TABLE giving_person_week (
			person_id TEXT NOT NULL,
			week_end TEXT NOT NULL,
			gift_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (person_id, week_end)
		)`,
		`CREATE INDEX idx_giving_week ON giving_person_week(week_end)`,

		`CREATE TABLE groups (
			group_id TEXT PRIMARY KEY,
			group_type TEXT NOT NULL DEFAULT '',
			is_serving_team BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE group_memberships (
			person_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			first_joined_at TEXT,
			archived_at TEXT,
			PRIMARY KEY (person_id, group_id),
			FOREIGN KEY (group_id) REFERENCES groups(group_id)
		)`,
		`CREATE INDEX idx_memberships_group ON group_memberships(group_id)`,

		`CREATE TABLE adult_attendance (
			date TEXT PRIMARY KEY,
			total_attendance INTEGER NOT NULL DEFAULT 0
		)`,
	},

	// Migration 2: derived tables owned by the cadence pipeline.
	{
		`CREATE TABLE person_cadence (
			person_id TEXT NOT NULL,
			signal TEXT NOT NULL,
			bucket TEXT NOT NULL,
			median_interval_days INTEGER,
			iqr_days INTEGER,
			last_seen_date TEXT,
			expected_next_date TEXT,
			missed_cycles INTEGER NOT NULL DEFAULT 0,
			samples_n INTEGER NOT NULL DEFAULT 0,
			calc_method TEXT NOT NULL DEFAULT '',
			current_streak INTEGER NOT NULL DEFAULT 0,
			campus_id TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (person_id, signal)
		)`,
		`CREATE INDEX idx_cadence_signal_bucket ON person_cadence(signal, bucket)`,

		`CREATE TABLE snap_person_week (
			person_id TEXT NOT NULL,
			week_start TEXT NOT NULL,
			week_end TEXT NOT NULL,
			attended_bool BOOLEAN NOT NULL DEFAULT FALSE,
			gave_ontrack_bool BOOLEAN NOT NULL DEFAULT FALSE,
			served_ontrack_bool BOOLEAN NOT NULL DEFAULT FALSE,
			in_group_ontrack_bool BOOLEAN NOT NULL DEFAULT FALSE,
			engaged_tier INTEGER NOT NULL DEFAULT 0,
			checkins_count INTEGER NOT NULL DEFAULT 0,
			gifts_count INTEGER NOT NULL DEFAULT 0,
			serving_occurrences INTEGER NOT NULL DEFAULT 0,
			campus_id TEXT,
			PRIMARY KEY (person_id, week_end)
		)`,
		`CREATE INDEX idx_snap_week ON snap_person_week(week_end)`,

		`CREATE TABLE lapse_events (
			person_id TEXT NOT NULL,
			signal TEXT NOT NULL,
			expected_by TEXT,
			observed_none_since TEXT,
			missed_cycles INTEGER NOT NULL DEFAULT 0,
			week_flagged TEXT NOT NULL,
			campus_id TEXT,
			PRIMARY KEY (person_id, signal, week_flagged)
		)`,
		`CREATE INDEX idx_lapse_week ON lapse_events(week_flagged)`,

		`CREATE TABLE no_longer_attends_events (
			person_id TEXT PRIMARY KEY,
			week_end TEXT NOT NULL,
			last_any_date TEXT NOT NULL,
			first_seen_any TEXT,
			campus_id TEXT
		)`,
		`CREATE INDEX idx_nla_week ON no_longer_attends_events(week_end)`,

		`CREATE TABLE engagement_tier_transitions (
			person_id TEXT NOT NULL,
			week_end TEXT NOT NULL,
			from_tier INTEGER NOT NULL,
			to_tier INTEGER NOT NULL,
			delta INTEGER NOT NULL,
			campus_id TEXT,
			PRIMARY KEY (person_id, week_end)
		)`,

		`CREATE TABLE front_door_weekly (
			week_start TEXT PRIMARY KEY,
			week_end TEXT NOT NULL,
			first_time_checkins INTEGER NOT NULL DEFAULT 0,
			first_time_givers INTEGER NOT NULL DEFAULT 0,
			first_time_groups INTEGER NOT NULL DEFAULT 0,
			first_time_serving INTEGER NOT NULL DEFAULT 0,
			campus_id TEXT
		)`,

		`CREATE TABLE back_door_weekly (
			week_end TEXT PRIMARY KEY,
			downshifts_total INTEGER NOT NULL DEFAULT 0,
			downshift_3_to_2 INTEGER NOT NULL DEFAULT 0,
			downshift_2_to_1 INTEGER NOT NULL DEFAULT 0,
			downshift_1_to_0 INTEGER NOT NULL DEFAULT 0,
			new_nla_count INTEGER NOT NULL DEFAULT 0,
			reengaged_count INTEGER NOT NULL DEFAULT 0,
			bdi REAL NOT NULL DEFAULT 0
		)`,
	},
}
