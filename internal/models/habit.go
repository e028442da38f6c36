// Package models defines the core data types shared across habit-tks.
package models

import "time"

// Tier is one of the three ordered habit difficulty levels.
type Tier string

const (
	TierBaseline Tier = "baseline"
	TierTwo      Tier = "tier2"
	TierThree    Tier = "tier3"
)

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierBaseline, TierTwo, TierThree}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.rank() >= 0
}

func (t Tier) rank() int {
	for i, v := range Tiers {
		if v == t {
			return i
		}
	}
	return -1
}

// Next returns the tier one step above t.
func (t Tier) Next() (Tier, bool) {
	r := t.rank()
	if r < 0 || r == len(Tiers)-1 {
		return "", false
	}
	return Tiers[r+1], true
}

// Prev returns the tier one step below t.
func (t Tier) Prev() (Tier, bool) {
	r := t.rank()
	if r <= 0 {
		return "", false
	}
	return Tiers[r-1], true
}

// Above reports whether t is strictly higher than other.
func (t Tier) Above(other Tier) bool {
	return t.rank() > other.rank()
}

// UnlockMessage is the congratulation shown when a user reaches t.
func (t Tier) UnlockMessage() string {
	switch t {
	case TierTwo:
		return "Congratulations! You've unlocked Tier 2 habits. Keep up the momentum!"
	case TierThree:
		return "Amazing! You've reached Tier 3. You're now operating at peak performance!"
	}
	return "Welcome to your baseline habits. Small steps every day."
}

// DowngradeMessage is shown when a skip penalty moves a user down to t.
func (t Tier) DowngradeMessage() string {
	return "Too many skips this week. You're back on " + string(t) + " habits until you rebuild the streak."
}

// Category groups habits by life area.
type Category string

const (
	CategoryFitness      Category = "fitness"
	CategoryWork         Category = "work"
	CategoryLearning     Category = "learning"
	CategoryProductivity Category = "productivity"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFitness, CategoryWork, CategoryLearning, CategoryProductivity:
		return true
	}
	return false
}

// Frequency is how often a habit is expected.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustom:
		return true
	}
	return false
}

// Level is used for both habit priority and completion intensity.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// Habit is a recurring action a user tracks. Archived habits are always
// inactive; an inactive habit is not necessarily archived.
type Habit struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	Tier           Tier      `json:"tier"`
	Frequency      Frequency `json:"frequency"`
	ReminderTime   string    `json:"reminderTime,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Priority       Level     `json:"priority"`
	StreakTracking bool      `json:"streakTracking"`
	SkipAllowed    bool      `json:"skipAllowed"`
	StartDate      time.Time `json:"startDate"`
	IsActive       bool      `json:"isActive"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CompletionMetrics are optional measurements attached to a completion.
type CompletionMetrics struct {
	Duration       *int           `json:"duration,omitempty"` // minutes
	Intensity      Level          `json:"intensity,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Completion records that a habit was done. Immutable once written.
type Completion struct {
	ID          string             `json:"id"`
	HabitID     string             `json:"habitId"`
	UserID      string             `json:"userId"`
	Tier        Tier               `json:"tier"`
	CompletedAt time.Time          `json:"completedAt"`
	Notes       string             `json:"notes,omitempty"`
	Metrics     *CompletionMetrics `json:"metrics,omitempty"`
}

// Skip records that a habit was deliberately not done. Immutable once written.
type Skip struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habitId"`
	UserID    string    `json:"userId"`
	Tier      Tier      `json:"tier"`
	SkippedAt time.Time `json:"skippedAt"`
	Reason    string    `json:"reason"`
}
