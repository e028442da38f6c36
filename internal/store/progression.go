package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/habittks/habit-tks/internal/models"
)

// ReplaceRules swaps a user's entire rule set for rules.
func (s *Store) ReplaceRules(ctx context.Context, userID string, rules []models.ProgressionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rule replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM progression_rules WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	for i := range rules {
		if err := insertRule(ctx, tx, &rules[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule replace: %w", err)
	}
	return nil
}

// AddRule appends a rule to a user's set.
func (s *Store) AddRule(ctx context.Context, r *models.ProgressionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertRule(ctx, s.db, r)
}

func insertRule(ctx context.Context, db execer, r *models.ProgressionRule) error {
	if r.ID == "" {
		r.ID = newID("rule")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
	INSERT INTO progression_rules (
		id, user_id, from_tier, to_tier, condition_kind, value, timeframe, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(r.FromTier), string(r.ToTier), string(r.Condition.Kind),
		r.Condition.Value, r.Condition.Timeframe, toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// ListRules returns a user's rules in insertion order.
func (s *Store) ListRules(ctx context.Context, userID string) ([]models.ProgressionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, from_tier, to_tier, condition_kind, value, timeframe, created_at
	FROM progression_rules WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.ProgressionRule
	for rows.Next() {
		var (
			r              models.ProgressionRule
			from, to, kind string
			createdAt      int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &from, &to, &kind, &r.Condition.Value, &r.Condition.Timeframe, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.FromTier = models.Tier(from)
		r.ToTier = models.Tier(to)
		r.Condition.Kind = models.ConditionKind(kind)
		r.CreatedAt = fromMillis(createdAt)
		rules = append(rules, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// AppendEvent writes a progression event to the audit trail.
func (s *Store) AppendEvent(ctx context.Context, e *models.ProgressionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = newID("event")
	}
	if e.TriggeredAt.IsZero() {
		e.TriggeredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO progression_events (
		id, user_id, rule_id, from_tier, to_tier, condition_kind, value, timeframe,
		was_penalty, triggered_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, nullString(e.RuleID), string(e.FromTier), string(e.ToTier),
		string(e.Condition.Kind), e.Condition.Value, e.Condition.Timeframe,
		boolInt(e.WasPenalty), toMillis(e.TriggeredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append progression event: %w", err)
	}
	return nil
}

// ListEvents returns a user's progression events oldest first.
func (s *Store) ListEvents(ctx context.Context, userID string) ([]models.ProgressionEvent, error) {
	return s.queryEvents(ctx, `WHERE user_id = ? ORDER BY triggered_at, rowid`, userID)
}

// LatestPenalty returns the user's most recent penalty event, or nil.
func (s *Store) LatestPenalty(ctx context.Context, userID string) (*models.ProgressionEvent, error) {
	events, err := s.queryEvents(ctx,
		`WHERE user_id = ? AND was_penalty = 1 ORDER BY triggered_at DESC, rowid DESC LIMIT 1`, userID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *Store) queryEvents(ctx context.Context, where string, args ...interface{}) ([]models.ProgressionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, rule_id, from_tier, to_tier, condition_kind, value, timeframe,
	       was_penalty, triggered_at
	FROM progression_events `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progression events: %w", err)
	}
	defer rows.Close()

	var events []models.ProgressionEvent
	for rows.Next() {
		var (
			e              models.ProgressionEvent
			ruleID         sql.NullString
			from, to, kind string
			penalty        int
			triggeredAt    int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &ruleID, &from, &to, &kind,
			&e.Condition.Value, &e.Condition.Timeframe, &penalty, &triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan progression event: %w", err)
		}
		e.RuleID = ruleID.String
		e.FromTier = models.Tier(from)
		e.ToTier = models.Tier(to)
		e.Condition.Kind = models.ConditionKind(kind)
		e.WasPenalty = penalty == 1
		e.TriggeredAt = fromMillis(triggeredAt)
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progression events: %w", err)
	}
	return events, nil
}
