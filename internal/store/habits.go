package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/habittks/habit-tks/internal/models"
)

// HabitFilter narrows ListHabits. Empty fields match everything.
type HabitFilter struct {
	UserID     string
	Tier       models.Tier
	ActiveOnly bool // is_active AND NOT archived
}

const habitColumns = `
	id, user_id, name, description, category, tier, frequency, reminder_time,
	notes, priority, streak_tracking, skip_allowed, start_date, is_active,
	archived, created_at, updated_at`

// CreateHabit inserts a habit, assigning ID and timestamps when unset.
func (s *Store) CreateHabit(ctx context.Context, h *models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if h.ID == "" {
		h.ID = newID("habit")
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = now
	}
	if h.StartDate.IsZero() {
		h.StartDate = now
	}

	query := `INSERT INTO habits (` + habitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.UserID, h.Name, h.Description, string(h.Category), string(h.Tier),
		string(h.Frequency), nullString(h.ReminderTime), nullString(h.Notes),
		string(h.Priority), boolInt(h.StreakTracking), boolInt(h.SkipAllowed),
		toMillis(h.StartDate), boolInt(h.IsActive), boolInt(h.Archived),
		toMillis(h.CreatedAt), toMillis(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// GetHabit retrieves a habit by ID. Returns nil, nil when absent.
func (s *Store) GetHabit(ctx context.Context, id string) (*models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

// ListHabits returns habits matching the filter ordered by tier then creation.
func (s *Store) ListHabits(ctx context.Context, f HabitFilter) ([]*models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + habitColumns + ` FROM habits WHERE 1=1`
	args := []interface{}{}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(f.Tier))
	}
	if f.ActiveOnly {
		query += ` AND is_active = 1 AND archived = 0`
	}
	query += ` ORDER BY tier, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habits []*models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}
	return habits, nil
}

// UpdateHabit overwrites the mutable fields of an existing habit.
func (s *Store) UpdateHabit(ctx context.Context, h *models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h.UpdatedAt = time.Now().UTC()
	query := `
	UPDATE habits SET
		name = ?, description = ?, category = ?, tier = ?, frequency = ?,
		reminder_time = ?, notes = ?, priority = ?, streak_tracking = ?,
		skip_allowed = ?, start_date = ?, is_active = ?, archived = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		h.Name, h.Description, string(h.Category), string(h.Tier), string(h.Frequency),
		nullString(h.ReminderTime), nullString(h.Notes), string(h.Priority),
		boolInt(h.StreakTracking), boolInt(h.SkipAllowed), toMillis(h.StartDate),
		boolInt(h.IsActive), boolInt(h.Archived), toMillis(h.UpdatedAt), h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("habit not found: %s", h.ID)
	}
	return nil
}

// DeleteHabit removes a habit. The activity log keeps its completions.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return nil
}

// SetTierState sets is_active/archived on every habit of a user's tier and
// returns the number of habits touched.
func (s *Store) SetTierState(ctx context.Context, userID string, tier models.Tier, active, archived bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return setTierState(ctx, s.db, userID, tier, active, archived, time.Now().UTC())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func setTierState(ctx context.Context, db execer, userID string, tier models.Tier, active, archived bool, now time.Time) (int64, error) {
	query := `UPDATE habits SET is_active = ?, archived = ?, updated_at = ? WHERE user_id = ? AND tier = ?`
	args := []interface{}{boolInt(active), boolInt(archived), toMillis(now), userID, string(tier)}
	if active {
		// Activated habits whose start date lies in the future start now.
		query = `UPDATE habits SET is_active = ?, archived = ?, updated_at = ?,
			start_date = MIN(start_date, ?) WHERE user_id = ? AND tier = ?`
		args = []interface{}{boolInt(active), boolInt(archived), toMillis(now), toMillis(now), userID, string(tier)}
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s habits: %w", tier, err)
	}
	return res.RowsAffected()
}

// ChangeTier archives the habits of from, activates the habits of to and
// sets the user's current tier, atomically.
func (s *Store) ChangeTier(ctx context.Context, userID string, from, to models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tier change: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := setTierState(ctx, tx, userID, from, false, true, now); err != nil {
		return err
	}
	if _, err := setTierState(ctx, tx, userID, to, true, false, now); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET current_tier = ?, updated_at = ? WHERE id = ?`,
		string(to), toMillis(now), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tier change: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row rowScanner) (*models.Habit, error) {
	var (
		h                               models.Habit
		category, tier, frequency, prio string
		reminder, notes                 sql.NullString
		streak, skip, active, archived  int
		startDate, createdAt, updatedAt int64
	)
	err := row.Scan(
		&h.ID, &h.UserID, &h.Name, &h.Description, &category, &tier, &frequency,
		&reminder, &notes, &prio, &streak, &skip, &startDate, &active, &archived,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Category = models.Category(category)
	h.Tier = models.Tier(tier)
	h.Frequency = models.Frequency(frequency)
	h.Priority = models.Level(prio)
	h.ReminderTime = reminder.String
	h.Notes = notes.String
	h.StreakTracking = streak == 1
	h.SkipAllowed = skip == 1
	h.IsActive = active == 1
	h.Archived = archived == 1
	h.StartDate = fromMillis(startDate)
	h.CreatedAt = fromMillis(createdAt)
	h.UpdatedAt = fromMillis(updatedAt)
	return &h, nil
}
