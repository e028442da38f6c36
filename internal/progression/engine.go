// Package progression decides tier upgrades and penalty downgrades from the
// activity log. It never mutates habits or users; callers act on a Decision.
package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/models"
)

// Repository is the persistence the engine needs. *store.Store satisfies it.
type Repository interface {
	ReplaceRules(ctx context.Context, userID string, rules []models.ProgressionRule) error
	AddRule(ctx context.Context, r *models.ProgressionRule) error
	ListRules(ctx context.Context, userID string) ([]models.ProgressionRule, error)
	AppendEvent(ctx context.Context, e *models.ProgressionEvent) error
	ListEvents(ctx context.Context, userID string) ([]models.ProgressionEvent, error)
	LatestPenalty(ctx context.Context, userID string) (*models.ProgressionEvent, error)
	CompletionTimes(ctx context.Context, userID string, tier models.Tier, since time.Time) ([]time.Time, error)
	CountSkips(ctx context.Context, userID string, since time.Time) (int, error)
	ResetPoint(ctx context.Context, userID string) (time.Time, error)
}

// Options tune the engine. Zero values fall back to the defaults below.
type Options struct {
	Location      *time.Location   // calendar days for streaks
	SkipThreshold int              // skips in PenaltyWindow that trigger a penalty
	PenaltyWindow time.Duration    // trailing skip window
	Now           func() time.Time // clock, for tests
}

const (
	DefaultSkipThreshold = 3
	DefaultPenaltyWindow = 7 * 24 * time.Hour
)

// Decision is the outcome of an evaluation. NewTier is empty when no tier
// change is called for.
type Decision struct {
	NewTier models.Tier
	Penalty bool
	Events  []models.ProgressionEvent
}

// Changed reports whether the caller should move the user to NewTier.
func (d Decision) Changed() bool {
	return d.NewTier != ""
}

// Engine evaluates progression rules for users.
type Engine struct {
	repo          Repository
	loc           *time.Location
	skipThreshold int
	penaltyWindow time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// NewEngine creates an engine over repo.
func NewEngine(repo Repository, opts Options, logger zerolog.Logger) *Engine {
	e := &Engine{
		repo:          repo,
		loc:           opts.Location,
		skipThreshold: opts.SkipThreshold,
		penaltyWindow: opts.PenaltyWindow,
		now:           opts.Now,
		logger:        logger.With().Str("component", "progression").Logger(),
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.skipThreshold <= 0 {
		e.skipThreshold = DefaultSkipThreshold
	}
	if e.penaltyWindow <= 0 {
		e.penaltyWindow = DefaultPenaltyWindow
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// DefaultRules returns the rule set every new account starts with.
func DefaultRules(userID string) []models.ProgressionRule {
	return []models.ProgressionRule{
		{
			UserID:   userID,
			FromTier: models.TierBaseline,
			ToTier:   models.TierTwo,
			Condition: models.ProgressionCondition{
				Kind: models.ConditionConsecutiveDays, Value: 7, Timeframe: 7,
			},
		},
		{
			UserID:   userID,
			FromTier: models.TierTwo,
			ToTier:   models.TierThree,
			Condition: models.ProgressionCondition{
				Kind: models.ConditionWeeklyFrequency, Value: 5, Timeframe: 7,
			},
		},
	}
}

// InitializeRules installs the default rules for userID, replacing any rules
// the user already had.
func (e *Engine) InitializeRules(ctx context.Context, userID string) ([]models.ProgressionRule, error) {
	if userID == "" {
		return nil, domainerr.Validation("progression.init", "user id is required")
	}
	rules := DefaultRules(userID)
	if err := e.repo.ReplaceRules(ctx, userID, rules); err != nil {
		return nil, fmt.Errorf("initialize rules: %w", err)
	}
	e.logger.Info().Str("user_id", userID).Int("rules", len(rules)).Msg("progression rules initialized")
	return rules, nil
}

// AddRule validates and appends a rule to the user's set.
func (e *Engine) AddRule(ctx context.Context, r *models.ProgressionRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := e.repo.AddRule(ctx, r); err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	e.logger.Info().
		Str("user_id", r.UserID).
		Str("from", string(r.FromTier)).
		Str("to", string(r.ToTier)).
		Str("kind", string(r.Condition.Kind)).
		Msg("progression rule added")
	return nil
}

func validateRule(r *models.ProgressionRule) error {
	const op = "progression.addRule"
	switch {
	case r.UserID == "":
		return domainerr.Validation(op, "user id is required")
	case !r.FromTier.Valid() || !r.ToTier.Valid():
		return domainerr.Validation(op, "unknown tier %q -> %q", r.FromTier, r.ToTier)
	}
	if next, ok := r.FromTier.Next(); !ok || next != r.ToTier {
		return domainerr.Validation(op, "rules must move exactly one tier up, got %s -> %s", r.FromTier, r.ToTier)
	}
	if !r.Condition.Kind.RuleKind() {
		return domainerr.Validation(op, "unsupported condition type %q", r.Condition.Kind)
	}
	if r.Condition.Kind != models.ConditionManual && r.Condition.Value < 1 {
		return domainerr.Validation(op, "condition value must be at least 1")
	}
	if r.Condition.Timeframe < 0 {
		return domainerr.Validation(op, "timeframe must not be negative")
	}
	// Streaks are only counted inside the timeframe.
	if r.Condition.Kind == models.ConditionConsecutiveDays && r.Condition.Value > r.Condition.TimeframeDays() {
		return domainerr.Validation(op, "consecutive days %d exceed the %d day timeframe", r.Condition.Value, r.Condition.TimeframeDays())
	}
	return nil
}

// ListRules returns the user's rules; unknown users have none.
func (e *Engine) ListRules(ctx context.Context, userID string) ([]models.ProgressionRule, error) {
	rules, err := e.repo.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// History returns the user's progression events oldest first.
func (e *Engine) History(ctx context.Context, userID string) ([]models.ProgressionEvent, error) {
	events, err := e.repo.ListEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progression history: %w", err)
	}
	return events, nil
}

// EvaluateOnCompletion checks every rule leaving completedTier. Each satisfied
// rule yields an event; any success signals an upgrade. Nothing is written
// until the caller applies the decision and calls Record.
func (e *Engine) EvaluateOnCompletion(ctx context.Context, userID string, completedTier models.Tier) (Decision, error) {
	var d Decision

	rules, err := e.repo.ListRules(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("evaluate completion: %w", err)
	}

	now := e.now()
	reset, err := e.repo.ResetPoint(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("evaluate completion: %w", err)
	}
	for _, rule := range rules {
		if rule.FromTier != completedTier {
			continue
		}
		met, err := e.conditionMet(ctx, userID, rule, now, reset)
		if err != nil {
			return d, err
		}
		if !met {
			continue
		}

		event := models.ProgressionEvent{
			UserID:      userID,
			RuleID:      rule.ID,
			FromTier:    rule.FromTier,
			ToTier:      rule.ToTier,
			TriggeredAt: now.UTC(),
			Condition:   rule.Condition,
		}
		d.Events = append(d.Events, event)
		d.NewTier = rule.ToTier

		e.logger.Info().
			Str("user_id", userID).
			Str("from", string(rule.FromTier)).
			Str("to", string(rule.ToTier)).
			Str("kind", string(rule.Condition.Kind)).
			Msg("progression rule satisfied")
	}
	return d, nil
}

// conditionMet checks one rule. Activity before reset never counts.
func (e *Engine) conditionMet(ctx context.Context, userID string, rule models.ProgressionRule, now, reset time.Time) (bool, error) {
	days := rule.Condition.TimeframeDays()

	switch rule.Condition.Kind {
	case models.ConditionConsecutiveDays:
		// One extra day so a streak ending yesterday still sees its full length.
		since := later(startOfDay(now, e.loc).AddDate(0, 0, -days), reset)
		times, err := e.repo.CompletionTimes(ctx, userID, rule.FromTier, since)
		if err != nil {
			return false, fmt.Errorf("load completions: %w", err)
		}
		return Streak(times, now, e.loc, days) >= rule.Condition.Value, nil

	case models.ConditionWeeklyFrequency:
		since := later(now.Add(-time.Duration(days) * 24 * time.Hour), reset)
		times, err := e.repo.CompletionTimes(ctx, userID, rule.FromTier, since)
		if err != nil {
			return false, fmt.Errorf("load completions: %w", err)
		}
		return len(times) >= rule.Condition.Value, nil

	case models.ConditionManual:
		return false, nil
	}

	e.logger.Warn().Str("rule_id", rule.ID).Str("kind", string(rule.Condition.Kind)).Msg("unknown condition type")
	return false, nil
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// EvaluateOnSkip decides whether the skip penalty is due. Skips counted toward
// an earlier recorded penalty are not counted again, so one call yields at
// most one downgrade.
func (e *Engine) EvaluateOnSkip(ctx context.Context, userID string, currentTier models.Tier) (Decision, error) {
	var d Decision

	rules, err := e.repo.ListRules(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("evaluate skip: %w", err)
	}
	if len(rules) == 0 {
		return d, nil
	}
	lower, ok := currentTier.Prev()
	if !ok {
		return d, nil
	}

	now := e.now()
	since := now.Add(-e.penaltyWindow)
	last, err := e.repo.LatestPenalty(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("load last penalty: %w", err)
	}
	if last != nil && !last.TriggeredAt.Before(since) {
		since = last.TriggeredAt.Add(time.Millisecond)
	}
	reset, err := e.repo.ResetPoint(ctx, userID)
	if err != nil {
		return d, fmt.Errorf("load reset point: %w", err)
	}
	since = later(since, reset)

	skips, err := e.repo.CountSkips(ctx, userID, since)
	if err != nil {
		return d, fmt.Errorf("count skips: %w", err)
	}
	if skips < e.skipThreshold {
		return d, nil
	}

	event := models.ProgressionEvent{
		UserID:      userID,
		FromTier:    currentTier,
		ToTier:      lower,
		TriggeredAt: now.UTC(),
		Condition: models.ProgressionCondition{
			Kind:      models.ConditionSkipThreshold,
			Value:     e.skipThreshold,
			Timeframe: int(e.penaltyWindow / (24 * time.Hour)),
		},
		WasPenalty: true,
	}
	e.logger.Warn().
		Str("user_id", userID).
		Int("skips", skips).
		Str("from", string(currentTier)).
		Str("to", string(lower)).
		Msg("skip penalty due")

	d.NewTier = lower
	d.Penalty = true
	d.Events = []models.ProgressionEvent{event}
	return d, nil
}

// Record appends the decision's events to the progression history, filling in
// their IDs. Callers record a decision only once they have applied it.
func (e *Engine) Record(ctx context.Context, d *Decision) error {
	for i := range d.Events {
		if err := e.repo.AppendEvent(ctx, &d.Events[i]); err != nil {
			return fmt.Errorf("record progression: %w", err)
		}
	}
	return nil
}

// RecordManual records an explicit single-step unlock from -> to.
func (e *Engine) RecordManual(ctx context.Context, userID string, from, to models.Tier) (*models.ProgressionEvent, error) {
	if next, ok := from.Next(); !ok || next != to {
		return nil, domainerr.InvalidOperation("progression.manual", "cannot unlock %s from %s", to, from)
	}
	event := &models.ProgressionEvent{
		UserID:      userID,
		FromTier:    from,
		ToTier:      to,
		TriggeredAt: e.now().UTC(),
		Condition:   models.ProgressionCondition{Kind: models.ConditionManual, Value: 1},
	}
	if err := e.repo.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("record manual unlock: %w", err)
	}
	e.logger.Info().Str("user_id", userID).Str("to", string(to)).Msg("manual unlock recorded")
	return event, nil
}
