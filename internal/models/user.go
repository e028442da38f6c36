package models

import "time"

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// UserSettings are per-user preferences.
type UserSettings struct {
	Theme           Theme `json:"theme"`
	Notifications   bool  `json:"notifications"`
	StrictMode      bool  `json:"strictMode"`
	AutoProgression bool  `json:"autoProgression"`
}

// DefaultUserSettings returns the settings a new account starts with.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Theme:           ThemeLight,
		Notifications:   true,
		StrictMode:      false,
		AutoProgression: true,
	}
}

// User is an account progressing through tiers.
type User struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	CurrentTier Tier         `json:"currentTier"`
	Streak      int          `json:"streak"`
	Settings    UserSettings `json:"settings"`
	ResetAt     *time.Time   `json:"resetAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
