// Package analytics computes read-only activity summaries from the log.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/store"
)

// Repository is the read access analytics needs. *store.Store satisfies it.
type Repository interface {
	GetHabit(ctx context.Context, id string) (*models.Habit, error)
	ListHabits(ctx context.Context, f store.HabitFilter) ([]*models.Habit, error)
	ListCompletions(ctx context.Context, f store.ActivityFilter) ([]*models.Completion, error)
	ListSkips(ctx context.Context, f store.ActivityFilter) ([]*models.Skip, error)
	ListEvents(ctx context.Context, userID string) ([]models.ProgressionEvent, error)
}

const (
	DefaultDays = 30
	MaxDays     = 365
)

// DayCount is the activity of one calendar day.
type DayCount struct {
	Date        string `json:"date"` // YYYY-MM-DD
	Completions int    `json:"completions"`
	Skips       int    `json:"skips"`
}

// Summary is a user's activity over a trailing window.
type Summary struct {
	Days             int            `json:"days"`
	From             time.Time      `json:"from"`
	To               time.Time      `json:"to"`
	TotalCompletions int            `json:"totalCompletions"`
	TotalSkips       int            `json:"totalSkips"`
	CompletionRate   float64        `json:"completionRate"` // percent of completions among completions+skips
	ByCategory       map[string]int `json:"byCategory"`
	ByTier           map[string]int `json:"byTier"`
	ByDay            []DayCount     `json:"byDay"`
	CurrentStreak    int            `json:"currentStreak"`
	LongestStreak    int            `json:"longestStreak"`
	Penalties        int            `json:"penalties"`
}

// HabitStats is the activity of one habit over a trailing window.
type HabitStats struct {
	HabitID          string  `json:"habitId"`
	Days             int     `json:"days"`
	TotalCompletions int     `json:"totalCompletions"`
	TotalSkips       int     `json:"totalSkips"`
	CompletionRate   float64 `json:"completionRate"`
	CurrentStreak    int     `json:"currentStreak"`
	LongestStreak    int     `json:"longestStreak"`
}

// Service computes summaries.
type Service struct {
	repo   Repository
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates an analytics service reporting calendar days in loc.
func NewService(repo Repository, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

func normalizeDays(op string, days int) (int, error) {
	if days == 0 {
		return DefaultDays, nil
	}
	if days < 1 || days > MaxDays {
		return 0, domainerr.Validation(op, "days must be between 1 and %d", MaxDays)
	}
	return days, nil
}

// Summary reports the user's activity over the trailing days (0 means 30).
func (s *Service) Summary(ctx context.Context, userID string, days int) (*Summary, error) {
	const op = "analytics.summary"
	days, err := normalizeDays(op, days)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := startOfDay(now, s.loc).AddDate(0, 0, -(days - 1))
	filter := store.ActivityFilter{UserID: userID, Since: since}

	completions, err := s.repo.ListCompletions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	skips, err := s.repo.ListSkips(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	habits, err := s.repo.ListHabits(ctx, store.HabitFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	events, err := s.repo.ListEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	categories := make(map[string]models.Category, len(habits))
	for _, h := range habits {
		categories[h.ID] = h.Category
	}

	sum := &Summary{
		Days:             days,
		From:             since.UTC(),
		To:               now.UTC(),
		TotalCompletions: len(completions),
		TotalSkips:       len(skips),
		CompletionRate:   rate(len(completions), len(skips)),
		ByCategory:       make(map[string]int),
		ByTier:           make(map[string]int),
	}

	perDay := make(map[string]*DayCount, days)
	for d := 0; d < days; d++ {
		key := since.AddDate(0, 0, d).Format("2006-01-02")
		perDay[key] = &DayCount{Date: key}
	}

	times := make([]time.Time, 0, len(completions))
	for _, c := range completions {
		times = append(times, c.CompletedAt)
		sum.ByTier[string(c.Tier)]++
		if cat, ok := categories[c.HabitID]; ok {
			sum.ByCategory[string(cat)]++
		} else {
			sum.ByCategory["deleted"]++
		}
		if dc, ok := perDay[dayKey(c.CompletedAt, s.loc)]; ok {
			dc.Completions++
		}
	}
	for _, sk := range skips {
		if dc, ok := perDay[dayKey(sk.SkippedAt, s.loc)]; ok {
			dc.Skips++
		}
	}

	sum.ByDay = make([]DayCount, 0, len(perDay))
	for _, dc := range perDay {
		sum.ByDay = append(sum.ByDay, *dc)
	}
	sort.Slice(sum.ByDay, func(i, j int) bool { return sum.ByDay[i].Date < sum.ByDay[j].Date })

	sum.CurrentStreak = progression.Streak(times, now, s.loc, 0)
	sum.LongestStreak = LongestStreak(times, s.loc)

	for _, e := range events {
		if e.WasPenalty && !e.TriggeredAt.Before(since) {
			sum.Penalties++
		}
	}
	return sum, nil
}

// HabitStats reports one habit's activity over the trailing days.
func (s *Service) HabitStats(ctx context.Context, habitID, userID string, days int) (*HabitStats, error) {
	const op = "analytics.habit"
	days, err := normalizeDays(op, days)
	if err != nil {
		return nil, err
	}

	h, err := s.repo.GetHabit(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if h == nil {
		return nil, domainerr.NotFound(op, "habit %s not found", habitID)
	}
	if h.UserID != userID {
		return nil, domainerr.AccessDenied(op, "habit %s does not belong to user %s", habitID, userID)
	}

	now := s.now()
	since := startOfDay(now, s.loc).AddDate(0, 0, -(days - 1))
	filter := store.ActivityFilter{UserID: userID, HabitID: habitID, Since: since}

	completions, err := s.repo.ListCompletions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	skips, err := s.repo.ListSkips(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	times := make([]time.Time, 0, len(completions))
	for _, c := range completions {
		times = append(times, c.CompletedAt)
	}
	return &HabitStats{
		HabitID:          habitID,
		Days:             days,
		TotalCompletions: len(completions),
		TotalSkips:       len(skips),
		CompletionRate:   rate(len(completions), len(skips)),
		CurrentStreak:    progression.Streak(times, now, s.loc, 0),
		LongestStreak:    LongestStreak(times, s.loc),
	}, nil
}

// LongestStreak returns the longest run of consecutive calendar days in loc
// containing at least one of times.
func LongestStreak(times []time.Time, loc *time.Location) int {
	if len(times) == 0 {
		return 0
	}
	seen := make(map[time.Time]struct{}, len(times))
	days := make([]time.Time, 0, len(times))
	for _, t := range times {
		d := startOfDay(t, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func rate(done, skipped int) float64 {
	if done+skipped == 0 {
		return 0
	}
	return math.Round(float64(done)/float64(done+skipped)*10000) / 100
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
