// Package user manages accounts, their settings and summary stats.
package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/store"
)

// Repository is the persistence the service needs. *store.Store satisfies it.
type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	SetUserStreak(ctx context.Context, userID string, streak int) error
	DeleteUser(ctx context.Context, id string) error
	ListHabits(ctx context.Context, f store.HabitFilter) ([]*models.Habit, error)
	ListCompletions(ctx context.Context, f store.ActivityFilter) ([]*models.Completion, error)
}

// Demo account created when SEED_DEMO_USER is on.
const (
	DemoEmail = "demo@habit-tks.com"
	DemoName  = "Demo User"
)

// statsWindowDays is the trailing window for the completion rate.
const statsWindowDays = 30

// Service implements the user use cases.
type Service struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a user service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "user").Logger(),
	}
}

// CreateRequest describes a new account.
type CreateRequest struct {
	ID    string // optional; generated when empty
	Email string
	Name  string
}

// CreateUser opens an account at baseline with default settings.
func (s *Service) CreateUser(ctx context.Context, req CreateRequest) (*models.User, error) {
	const op = "user.create"

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domainerr.Validation(op, "invalid email %q", req.Email)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domainerr.Validation(op, "name is required")
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, domainerr.InvalidOperation(op, "email %s is already registered", email)
	}

	u := &models.User{
		ID:          req.ID,
		Email:       email,
		Name:        name,
		CurrentTier: models.TierBaseline,
		Settings:    models.DefaultUserSettings(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user created")
	return u, nil
}

// EnsureDemoUser creates the demo account under id if it does not exist yet.
func (s *Service) EnsureDemoUser(ctx context.Context, id string) (*models.User, bool, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("user.demo: %w", err)
	}
	if u != nil {
		return u, false, nil
	}
	u, err = s.CreateUser(ctx, CreateRequest{ID: id, Email: DemoEmail, Name: DemoName})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// GetUser returns a user or a NotFound error.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user.get: %w", err)
	}
	if u == nil {
		return nil, domainerr.NotFound("user.get", "user %s not found", id)
	}
	return u, nil
}

// GetUserByEmail returns a user or a NotFound error.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return nil, fmt.Errorf("user.getByEmail: %w", err)
	}
	if u == nil {
		return nil, domainerr.NotFound("user.getByEmail", "no user with email %s", email)
	}
	return u, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("user.list: %w", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// SettingsUpdate carries the settings to change; nil fields are left alone.
type SettingsUpdate struct {
	Theme           *models.Theme
	Notifications   *bool
	StrictMode      *bool
	AutoProgression *bool
}

// UpdateSettings merges upd into the user's settings.
func (s *Service) UpdateSettings(ctx context.Context, id string, upd SettingsUpdate) (*models.User, error) {
	const op = "user.settings"

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Theme != nil {
		if *upd.Theme != models.ThemeLight && *upd.Theme != models.ThemeDark {
			return nil, domainerr.Validation(op, "invalid theme %q", *upd.Theme)
		}
		u.Settings.Theme = *upd.Theme
	}
	if upd.Notifications != nil {
		u.Settings.Notifications = *upd.Notifications
	}
	if upd.StrictMode != nil {
		u.Settings.StrictMode = *upd.StrictMode
	}
	if upd.AutoProgression != nil {
		u.Settings.AutoProgression = *upd.AutoProgression
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateTier sets the user's tier without touching habits.
func (s *Service) UpdateTier(ctx context.Context, id string, tier models.Tier) (*models.User, error) {
	if !tier.Valid() {
		return nil, domainerr.Validation("user.tier", "invalid tier %q", tier)
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.CurrentTier = tier
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("user.tier: %w", err)
	}
	return u, nil
}

// UpdateStreak overwrites the user's streak.
func (s *Service) UpdateStreak(ctx context.Context, id string, streak int) (*models.User, error) {
	if streak < 0 {
		return nil, domainerr.Validation("user.streak", "streak must not be negative")
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetUserStreak(ctx, id, streak); err != nil {
		return nil, fmt.Errorf("user.streak: %w", err)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes an account and its habits.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("user.delete: %w", err)
	}
	s.logger.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// Stats summarizes a user's progress.
type Stats struct {
	CurrentTier    models.Tier `json:"currentTier"`
	Streak         int         `json:"streak"`
	TotalHabits    int         `json:"totalHabits"`
	CompletionRate int         `json:"completionRate"` // percent over the last 30 days
}

// Stats computes the user's summary from the habit list and activity log.
// The completion rate is distinct completed habit-days over active habits
// times days in the window.
func (s *Service) Stats(ctx context.Context, id string) (*Stats, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListHabits(ctx, store.HabitFilter{UserID: id, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("user.stats: %w", err)
	}

	since := s.now().UTC().AddDate(0, 0, -statsWindowDays)
	completions, err := s.repo.ListCompletions(ctx, store.ActivityFilter{UserID: id, Since: since})
	if err != nil {
		return nil, fmt.Errorf("user.stats: %w", err)
	}

	stats := &Stats{
		CurrentTier: u.CurrentTier,
		Streak:      u.Streak,
		TotalHabits: len(active),
	}
	if len(active) > 0 {
		done := make(map[string]struct{}, len(completions))
		for _, c := range completions {
			done[c.HabitID+"|"+c.CompletedAt.Format("2006-01-02")] = struct{}{}
		}
		expected := len(active) * statsWindowDays
		rate := len(done) * 100 / expected
		if rate > 100 {
			rate = 100
		}
		stats.CompletionRate = rate
	}
	return stats, nil
}
