package notify

import (
	"time"

	"github.com/habittks/habit-tks/internal/models"
)

// EventType names a push message.
type EventType string

const (
	EventHabitCompleted EventType = "habit_completed"
	EventHabitSkipped   EventType = "habit_skipped"
	EventTierUnlocked   EventType = "tier_unlocked"
	EventStreakUpdated  EventType = "streak_updated"
	EventNotification   EventType = "notification"
	EventPong           EventType = "pong"
)

// Message is the envelope for every server-to-client push.
type Message struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// clientMessage is what a client may send.
type clientMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events,omitempty"`
}

// HabitCompletedPayload is the data of a habit_completed message.
type HabitCompletedPayload struct {
	HabitID      string      `json:"habitId"`
	HabitName    string      `json:"habitName"`
	Tier         models.Tier `json:"tier"`
	CompletionID string      `json:"completionId"`
	CompletedAt  time.Time   `json:"completedAt"`
}

// HabitSkippedPayload is the data of a habit_skipped message.
type HabitSkippedPayload struct {
	HabitID   string      `json:"habitId"`
	HabitName string      `json:"habitName"`
	Tier      models.Tier `json:"tier"`
	SkipID    string      `json:"skipId"`
	Reason    string      `json:"reason"`
	SkippedAt time.Time   `json:"skippedAt"`
}

// TierUnlockedPayload is the data of a tier_unlocked message. Downgrade is
// set when a skip penalty moved the user down.
type TierUnlockedPayload struct {
	Tier       models.Tier `json:"tier"`
	UnlockedAt time.Time   `json:"unlockedAt"`
	Message    string      `json:"message"`
	Downgrade  bool        `json:"downgrade,omitempty"`
}

// StreakUpdatedPayload is the data of a streak_updated message.
type StreakUpdatedPayload struct {
	Streak         int       `json:"streak"`
	PreviousStreak int       `json:"previousStreak"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NotificationPayload is the data of a generic notification message.
type NotificationPayload struct {
	Message string   `json:"message"`
	Events  []string `json:"events,omitempty"`
}
