package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/habittks/habit-tks/internal/models"
)

const userColumns = `
	id, email, name, current_tier, streak, theme, notifications, strict_mode,
	auto_progression, reset_at, created_at, updated_at`

// CreateUser inserts a user, assigning ID and timestamps when unset.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = newID("user")
	}
	if u.CurrentTier == "" {
		u.CurrentTier = models.TierBaseline
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, string(u.CurrentTier), u.Streak,
		string(u.Settings.Theme), boolInt(u.Settings.Notifications),
		boolInt(u.Settings.StrictMode), boolInt(u.Settings.AutoProgression),
		resetMillis(u.ResetAt), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUserBy(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email. Returns nil, nil when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserBy(ctx, "email", email)
}

func (s *Store) getUserBy(ctx context.Context, column, value string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by creation.
func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateUser overwrites the mutable fields of an existing user.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.UpdatedAt = time.Now().UTC()
	query := `
	UPDATE users SET
		email = ?, name = ?, current_tier = ?, streak = ?, theme = ?,
		notifications = ?, strict_mode = ?, auto_progression = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		u.Email, u.Name, string(u.CurrentTier), u.Streak, string(u.Settings.Theme),
		boolInt(u.Settings.Notifications), boolInt(u.Settings.StrictMode),
		boolInt(u.Settings.AutoProgression), toMillis(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", u.ID)
	}
	return nil
}

// SetUserStreak updates only the user's overall streak.
func (s *Store) SetUserStreak(ctx context.Context, userID string, streak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET streak = ?, updated_at = ? WHERE id = ?`,
		streak, toMillis(time.Now().UTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set streak: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// DeleteUser removes a user; their habits cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                       models.User
		tier, theme             string
		notif, strict, autoProg int
		resetAt                 int64
		createdAt, updatedAt    int64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &tier, &u.Streak, &theme, &notif, &strict,
		&autoProg, &resetAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.CurrentTier = models.Tier(tier)
	u.Settings = models.UserSettings{
		Theme:           models.Theme(theme),
		Notifications:   notif == 1,
		StrictMode:      strict == 1,
		AutoProgression: autoProg == 1,
	}
	if resetAt > 0 {
		t := fromMillis(resetAt)
		u.ResetAt = &t
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// MarkReset records at as the user's reset point and zeroes the streak.
// Completions and skips before it stay in the log but no longer count.
func (s *Store) MarkReset(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET reset_at = ?, streak = 0, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(time.Now().UTC()), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// ResetPoint returns the user's last reset, or the zero time when the account
// was never reset or does not exist.
func (s *Store) ResetPoint(ctx context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT reset_at FROM users WHERE id = ?`, userID).Scan(&ms)
	if err == sql.ErrNoRows || (err == nil && ms == 0) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get reset point: %w", err)
	}
	return fromMillis(ms), nil
}

func resetMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return toMillis(*t)
}
