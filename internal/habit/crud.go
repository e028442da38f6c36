package habit

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/store"
)

// CreateRequest describes a new habit.
type CreateRequest struct {
	Name           string
	Description    string
	Category       models.Category
	Tier           models.Tier
	Frequency      models.Frequency
	ReminderTime   string
	Notes          string
	Priority       models.Level
	StreakTracking bool
	SkipAllowed    bool
	StartDate      time.Time // zero means now
}

// UpdateRequest carries the fields to change; nil fields are left alone.
type UpdateRequest struct {
	Name           *string
	Description    *string
	Category       *models.Category
	Frequency      *models.Frequency
	ReminderTime   *string
	Notes          *string
	Priority       *models.Level
	StreakTracking *bool
	SkipAllowed    *bool
	IsActive       *bool
}

func validateHabit(op string, h *models.Habit) error {
	switch {
	case strings.TrimSpace(h.Name) == "":
		return domainerr.Validation(op, "name is required")
	case !h.Category.Valid():
		return domainerr.Validation(op, "invalid category %q", h.Category)
	case !h.Tier.Valid():
		return domainerr.Validation(op, "invalid tier %q", h.Tier)
	case !h.Frequency.Valid():
		return domainerr.Validation(op, "invalid frequency %q", h.Frequency)
	case !h.Priority.Valid():
		return domainerr.Validation(op, "invalid priority %q", h.Priority)
	}
	if h.ReminderTime != "" {
		if _, err := time.Parse("15:04", h.ReminderTime); err != nil {
			return domainerr.Validation(op, "reminder time must be HH:MM, got %q", h.ReminderTime)
		}
	}
	return nil
}

// CreateHabit adds a habit for userID. It is active when its start date has
// already arrived.
func (s *Service) CreateHabit(ctx context.Context, userID string, req CreateRequest) (*models.Habit, error) {
	const op = "habit.create"

	now := s.now().UTC()
	h := &models.Habit{
		UserID:         userID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Category:       req.Category,
		Tier:           req.Tier,
		Frequency:      req.Frequency,
		ReminderTime:   req.ReminderTime,
		Notes:          req.Notes,
		Priority:       req.Priority,
		StreakTracking: req.StreakTracking,
		SkipAllowed:    req.SkipAllowed,
		StartDate:      req.StartDate.UTC(),
	}
	if h.Priority == "" {
		h.Priority = models.LevelMedium
	}
	if h.StartDate.IsZero() {
		h.StartDate = now
	}
	h.IsActive = !h.StartDate.After(now)

	if err := validateHabit(op, h); err != nil {
		return nil, err
	}
	if _, err := s.loadUser(ctx, op, userID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateHabit(ctx, h); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info().Str("habit_id", h.ID).Str("user_id", userID).Str("tier", string(h.Tier)).Msg("habit created")
	return h, nil
}

// GetHabit returns a habit owned by userID.
func (s *Service) GetHabit(ctx context.Context, habitID, userID string) (*models.Habit, error) {
	return s.ownedHabit(ctx, "habit.get", habitID, userID)
}

// ListHabits returns the user's habits, optionally limited to one tier or to
// active ones.
func (s *Service) ListHabits(ctx context.Context, userID string, tier models.Tier, activeOnly bool) ([]*models.Habit, error) {
	const op = "habit.list"
	if tier != "" && !tier.Valid() {
		return nil, domainerr.Validation(op, "invalid tier %q", tier)
	}
	habits, err := s.repo.ListHabits(ctx, store.HabitFilter{UserID: userID, Tier: tier, ActiveOnly: activeOnly})
	if err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if habits == nil {
		habits = []*models.Habit{}
	}
	return habits, nil
}

// UpdateHabit applies req to a habit owned by userID.
func (s *Service) UpdateHabit(ctx context.Context, habitID, userID string, req UpdateRequest) (*models.Habit, error) {
	const op = "habit.update"

	h, err := s.ownedHabit(ctx, op, habitID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		h.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		h.Description = *req.Description
	}
	if req.Category != nil {
		h.Category = *req.Category
	}
	if req.Frequency != nil {
		h.Frequency = *req.Frequency
	}
	if req.ReminderTime != nil {
		h.ReminderTime = *req.ReminderTime
	}
	if req.Notes != nil {
		h.Notes = *req.Notes
	}
	if req.Priority != nil {
		h.Priority = *req.Priority
	}
	if req.StreakTracking != nil {
		h.StreakTracking = *req.StreakTracking
	}
	if req.SkipAllowed != nil {
		h.SkipAllowed = *req.SkipAllowed
	}
	if req.IsActive != nil {
		if *req.IsActive && h.Archived {
			return nil, domainerr.InvalidOperation(op, "archived habit %s cannot be activated", habitID)
		}
		h.IsActive = *req.IsActive
	}

	if err := validateHabit(op, h); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateHabit(ctx, h); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return h, nil
}

// DeleteHabit removes a habit owned by userID. Its activity log stays.
func (s *Service) DeleteHabit(ctx context.Context, habitID, userID string) error {
	const op = "habit.delete"
	if _, err := s.ownedHabit(ctx, op, habitID, userID); err != nil {
		return err
	}
	if err := s.repo.DeleteHabit(ctx, habitID); err != nil {
		s.metrics.RecordError("habit", "store")
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info().Str("habit_id", habitID).Str("user_id", userID).Msg("habit deleted")
	return nil
}

// ArchiveTier archives and deactivates every habit of a tier.
func (s *Service) ArchiveTier(ctx context.Context, userID string, tier models.Tier) (int64, error) {
	return s.setTierState(ctx, "habit.archiveTier", userID, tier, false, true)
}

// ActivateTier activates and unarchives every habit of a tier.
func (s *Service) ActivateTier(ctx context.Context, userID string, tier models.Tier) (int64, error) {
	return s.setTierState(ctx, "habit.activateTier", userID, tier, true, false)
}

func (s *Service) setTierState(ctx context.Context, op, userID string, tier models.Tier, active, archived bool) (int64, error) {
	if !tier.Valid() {
		return 0, domainerr.Validation(op, "invalid tier %q", tier)
	}
	n, err := s.repo.SetTierState(ctx, userID, tier, active, archived)
	if err != nil {
		s.metrics.RecordError("habit", "store")
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info().Str("user_id", userID).Str("tier", string(tier)).Bool("active", active).Int64("habits", n).Msg("tier state changed")
	return n, nil
}

// ListCompletions returns a habit's completions newest first.
func (s *Service) ListCompletions(ctx context.Context, habitID, userID string, limit int) ([]*models.Completion, error) {
	const op = "habit.completions"
	if _, err := s.ownedHabit(ctx, op, habitID, userID); err != nil {
		return nil, err
	}
	out, err := s.repo.ListCompletions(ctx, store.ActivityFilter{UserID: userID, HabitID: habitID, Limit: limit})
	if err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		out = []*models.Completion{}
	}
	return out, nil
}
