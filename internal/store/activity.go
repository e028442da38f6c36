package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/habittks/habit-tks/internal/models"
)

// ActivityFilter narrows completion and skip listings.
type ActivityFilter struct {
	UserID  string
	HabitID string
	Since   time.Time // inclusive; zero means unbounded
	Limit   int
}

// AppendCompletion writes a completion to the append-only activity log.
func (s *Store) AppendCompletion(ctx context.Context, c *models.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = newID("comp")
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	var (
		duration  sql.NullInt64
		intensity sql.NullString
		extra     sql.NullString
	)
	if m := c.Metrics; m != nil {
		if m.Duration != nil {
			duration = sql.NullInt64{Int64: int64(*m.Duration), Valid: true}
		}
		intensity = nullString(string(m.Intensity))
		if len(m.AdditionalData) > 0 {
			b, err := json.Marshal(m.AdditionalData)
			if err != nil {
				return fmt.Errorf("failed to encode completion data: %w", err)
			}
			extra = sql.NullString{String: string(b), Valid: true}
		}
	}

	query := `
	INSERT INTO habit_completions (
		id, habit_id, user_id, tier, completed_at, notes, duration, intensity, additional_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.HabitID, c.UserID, string(c.Tier), toMillis(c.CompletedAt),
		nullString(c.Notes), duration, intensity, extra,
	)
	if err != nil {
		return fmt.Errorf("failed to append completion: %w", err)
	}
	return nil
}

// AppendSkip writes a skip to the append-only activity log.
func (s *Store) AppendSkip(ctx context.Context, sk *models.Skip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sk.ID == "" {
		sk.ID = newID("skip")
	}
	if sk.SkippedAt.IsZero() {
		sk.SkippedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habit_skips (id, habit_id, user_id, tier, skipped_at, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.HabitID, sk.UserID, string(sk.Tier), toMillis(sk.SkippedAt), sk.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to append skip: %w", err)
	}
	return nil
}

// CompletionTimes returns completion timestamps for a user at or after since,
// optionally restricted to one tier, oldest first.
func (s *Store) CompletionTimes(ctx context.Context, userID string, tier models.Tier, since time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT completed_at FROM habit_completions WHERE user_id = ? AND completed_at >= ?`
	args := []interface{}{userID, toMillis(since)}
	if tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(tier))
	}
	query += ` ORDER BY completed_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("failed to scan completion time: %w", err)
		}
		times = append(times, fromMillis(ms))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion times: %w", err)
	}
	return times, nil
}

// CountSkips returns how many skips a user recorded at or after since.
func (s *Store) CountSkips(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_skips WHERE user_id = ? AND skipped_at >= ?`,
		userID, toMillis(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count skips: %w", err)
	}
	return n, nil
}

// ListCompletions returns completions newest first.
func (s *Store) ListCompletions(ctx context.Context, f ActivityFilter) ([]*models.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, habit_id, user_id, tier, completed_at, notes, duration, intensity, additional_data
	FROM habit_completions WHERE completed_at >= ?
	`
	args := []interface{}{toMillis(f.Since)}
	query, args = appendActivityFilter(query, args, f)
	query += ` ORDER BY completed_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var out []*models.Completion
	for rows.Next() {
		var (
			c                      models.Completion
			tier                   string
			completedAt            int64
			notes, intensity, data sql.NullString
			duration               sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &tier, &completedAt, &notes, &duration, &intensity, &data); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		c.Tier = models.Tier(tier)
		c.CompletedAt = fromMillis(completedAt)
		c.Notes = notes.String
		if duration.Valid || intensity.Valid || data.Valid {
			m := &models.CompletionMetrics{Intensity: models.Level(intensity.String)}
			if duration.Valid {
				d := int(duration.Int64)
				m.Duration = &d
			}
			if data.Valid {
				if err := json.Unmarshal([]byte(data.String), &m.AdditionalData); err != nil {
					s.logger.Warn().Err(err).Str("completion_id", c.ID).Msg("unreadable completion data")
				}
			}
			c.Metrics = m
		}
		out = append(out, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return out, nil
}

// ListSkips returns skips newest first.
func (s *Store) ListSkips(ctx context.Context, f ActivityFilter) ([]*models.Skip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, habit_id, user_id, tier, skipped_at, reason FROM habit_skips WHERE skipped_at >= ?`
	args := []interface{}{toMillis(f.Since)}
	query, args = appendActivityFilter(query, args, f)
	query += ` ORDER BY skipped_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list skips: %w", err)
	}
	defer rows.Close()

	var out []*models.Skip
	for rows.Next() {
		var (
			sk        models.Skip
			tier      string
			skippedAt int64
		)
		if err := rows.Scan(&sk.ID, &sk.HabitID, &sk.UserID, &tier, &skippedAt, &sk.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan skip: %w", err)
		}
		sk.Tier = models.Tier(tier)
		sk.SkippedAt = fromMillis(skippedAt)
		out = append(out, &sk)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating skips: %w", err)
	}
	return out, nil
}

func appendActivityFilter(query string, args []interface{}, f ActivityFilter) (string, []interface{}) {
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.HabitID != "" {
		query += ` AND habit_id = ?`
		args = append(args, f.HabitID)
	}
	return query, args
}
