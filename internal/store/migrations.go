package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	if err := s.migrateV2(); err != nil {
		return err
	}
	return s.migrateV3()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id               TEXT PRIMARY KEY,
		email            TEXT NOT NULL UNIQUE,
		name             TEXT NOT NULL,
		current_tier     TEXT NOT NULL DEFAULT 'baseline',
		streak           INTEGER NOT NULL DEFAULT 0,
		theme            TEXT NOT NULL DEFAULT 'light',
		notifications    INTEGER NOT NULL DEFAULT 1,
		strict_mode      INTEGER NOT NULL DEFAULT 0,
		auto_progression INTEGER NOT NULL DEFAULT 1,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS habits (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL,
		tier            TEXT NOT NULL,
		frequency       TEXT NOT NULL,
		reminder_time   TEXT,
		notes           TEXT,
		priority        TEXT NOT NULL DEFAULT 'medium',
		streak_tracking INTEGER NOT NULL DEFAULT 1,
		skip_allowed    INTEGER NOT NULL DEFAULT 1,
		start_date      INTEGER NOT NULL,
		is_active       INTEGER NOT NULL DEFAULT 1,
		archived        INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id);
	CREATE INDEX IF NOT EXISTS idx_habits_user_tier ON habits(user_id, tier);

	CREATE TABLE IF NOT EXISTS habit_completions (
		id              TEXT PRIMARY KEY,
		habit_id        TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		tier            TEXT NOT NULL,
		completed_at    INTEGER NOT NULL,
		notes           TEXT,
		duration        INTEGER,
		intensity       TEXT,
		additional_data TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_completions_user_time ON habit_completions(user_id, completed_at);
	CREATE INDEX IF NOT EXISTS idx_completions_habit ON habit_completions(habit_id);

	CREATE TABLE IF NOT EXISTS habit_skips (
		id         TEXT PRIMARY KEY,
		habit_id   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		tier       TEXT NOT NULL,
		skipped_at INTEGER NOT NULL,
		reason     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_skips_user_time ON habit_skips(user_id, skipped_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil
	}

	// Completion and skip rows are intentionally not foreign keys: the
	// activity log outlives deleted habits.
	schema := `
	CREATE TABLE IF NOT EXISTS progression_rules (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		from_tier      TEXT NOT NULL,
		to_tier        TEXT NOT NULL,
		condition_kind TEXT NOT NULL,
		value          INTEGER NOT NULL,
		timeframe      INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_user ON progression_rules(user_id);

	CREATE TABLE IF NOT EXISTS progression_events (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		rule_id        TEXT,
		from_tier      TEXT NOT NULL,
		to_tier        TEXT NOT NULL,
		condition_kind TEXT NOT NULL,
		value          INTEGER NOT NULL,
		timeframe      INTEGER NOT NULL DEFAULT 0,
		was_penalty    INTEGER NOT NULL DEFAULT 0,
		triggered_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pevents_user ON progression_events(user_id, triggered_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

func (s *Store) migrateV3() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "3" {
		return nil
	}

	// reset_at bounds which activity counts toward streaks and progression.
	if _, err := s.db.Exec(`ALTER TABLE users ADD COLUMN reset_at INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("failed to execute migration v3: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '3')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
