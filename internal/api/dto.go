package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/habittks/habit-tks/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names rather than Go ones.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindError is a malformed or invalid request body.
type bindError struct {
	kind   string
	detail string
}

func (e *bindError) Error() string { return e.kind + ": " + e.detail }

// bind parses the JSON body into out and validates it. An empty body leaves
// out at its zero value.
func bind(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(out); err != nil {
			return &bindError{kind: "invalid_body", detail: "Invalid request body: " + err.Error()}
		}
	}
	if err := validate.Struct(out); err != nil {
		return &bindError{kind: "validation_failed", detail: describe(err)}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// --- Request DTOs ---

// CreateHabitRequest is the payload for POST /api/habits.
type CreateHabitRequest struct {
	Name           string           `json:"name" validate:"required,max=200"`
	Description    string           `json:"description" validate:"max=2000"`
	Category       models.Category  `json:"category" validate:"required,oneof=fitness work learning productivity"`
	Tier           models.Tier      `json:"tier" validate:"required,oneof=baseline tier2 tier3"`
	Frequency      models.Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly custom"`
	ReminderTime   string           `json:"reminderTime,omitempty"`
	Notes          string           `json:"notes,omitempty" validate:"max=2000"`
	Priority       models.Level     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	StreakTracking *bool            `json:"streakTracking,omitempty"`
	SkipAllowed    bool             `json:"skipAllowed"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
}

// UpdateHabitRequest is the payload for PUT /api/habits/:id.
type UpdateHabitRequest struct {
	Name           *string           `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category       *models.Category  `json:"category,omitempty" validate:"omitempty,oneof=fitness work learning productivity"`
	Frequency      *models.Frequency `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly custom"`
	ReminderTime   *string           `json:"reminderTime,omitempty"`
	Notes          *string           `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Priority       *models.Level     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	StreakTracking *bool             `json:"streakTracking,omitempty"`
	SkipAllowed    *bool             `json:"skipAllowed,omitempty"`
	IsActive       *bool             `json:"isActive,omitempty"`
}

// MetricsDTO are optional completion measurements.
type MetricsDTO struct {
	Duration       *int           `json:"duration,omitempty" validate:"omitempty,min=0,max=1440"`
	Intensity      models.Level   `json:"intensity,omitempty" validate:"omitempty,oneof=low medium high"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// CompleteHabitRequest is the payload for POST /api/habits/:id/complete.
type CompleteHabitRequest struct {
	Notes   string      `json:"notes,omitempty" validate:"max=2000"`
	Metrics *MetricsDTO `json:"metrics,omitempty"`
}

// SkipHabitRequest is the payload for POST /api/habits/:id/skip.
type SkipHabitRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CreateUserRequest is the payload for POST /api/users.
type CreateUserRequest struct {
	ID    string `json:"id,omitempty" validate:"omitempty,max=64"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=100"`
}

// SettingsRequest is the payload for PUT /api/users/me/settings.
type SettingsRequest struct {
	Theme           *models.Theme `json:"theme,omitempty" validate:"omitempty,oneof=light dark"`
	Notifications   *bool         `json:"notifications,omitempty"`
	StrictMode      *bool         `json:"strictMode,omitempty"`
	AutoProgression *bool         `json:"autoProgression,omitempty"`
}

// ConditionDTO is a rule condition.
type ConditionDTO struct {
	Type      models.ConditionKind `json:"type" validate:"required,oneof=consecutiveDays weeklyFrequency manual"`
	Value     int                  `json:"value" validate:"min=0"`
	Timeframe int                  `json:"timeframe,omitempty" validate:"min=0,max=365"`
}

// RuleRequest is the payload for POST /api/progression/rules.
type RuleRequest struct {
	FromTier  models.Tier  `json:"fromTier" validate:"required,oneof=baseline tier2 tier3"`
	ToTier    models.Tier  `json:"toTier" validate:"required,oneof=baseline tier2 tier3"`
	Condition ConditionDTO `json:"condition"`
}

// --- Response DTOs ---

// HabitListResponse wraps a list of habits.
type HabitListResponse struct {
	Habits []*models.Habit `json:"habits"`
	Total  int             `json:"total"`
}

// CompleteHabitResponse reports a completion and what it caused.
type CompleteHabitResponse struct {
	Completion   *models.Completion `json:"completion"`
	Streak       int                `json:"streak"`
	TierUnlocked bool               `json:"tierUnlocked"`
	NewTier      models.Tier        `json:"newTier,omitempty"`
}

// SkipHabitResponse reports a skip and what it caused.
type SkipHabitResponse struct {
	Skip       *models.Skip `json:"skip"`
	Downgraded bool         `json:"downgraded"`
	NewTier    models.Tier  `json:"newTier,omitempty"`
}

// CompletionListResponse wraps a habit's completions.
type CompletionListResponse struct {
	Completions []*models.Completion `json:"completions"`
	Total       int                  `json:"total"`
}

// MessageResponse carries a user-facing message.
type MessageResponse struct {
	Message string      `json:"message"`
	Tier    models.Tier `json:"tier,omitempty"`
}
