package models

import "time"

// ConditionKind selects how a progression rule is evaluated.
type ConditionKind string

const (
	ConditionConsecutiveDays ConditionKind = "consecutiveDays"
	ConditionWeeklyFrequency ConditionKind = "weeklyFrequency"
	ConditionManual          ConditionKind = "manual"

	// ConditionSkipThreshold only appears on penalty events; rules cannot use it.
	ConditionSkipThreshold ConditionKind = "skipThreshold"
)

// RuleKind reports whether k may be used in a user-defined rule.
func (k ConditionKind) RuleKind() bool {
	switch k {
	case ConditionConsecutiveDays, ConditionWeeklyFrequency, ConditionManual:
		return true
	}
	return false
}

// ProgressionCondition is the predicate a rule evaluates.
type ProgressionCondition struct {
	Kind      ConditionKind `json:"type"`
	Value     int           `json:"value"`
	Timeframe int           `json:"timeframe,omitempty"` // days; 0 means the default of 7
}

// DefaultTimeframeDays is used when a condition leaves Timeframe unset.
const DefaultTimeframeDays = 7

// TimeframeDays returns the effective look-back window in days.
func (c ProgressionCondition) TimeframeDays() int {
	if c.Timeframe <= 0 {
		return DefaultTimeframeDays
	}
	return c.Timeframe
}

// ProgressionRule moves a user from FromTier to ToTier when Condition holds.
type ProgressionRule struct {
	ID        string               `json:"id"`
	UserID    string               `json:"userId"`
	FromTier  Tier                 `json:"fromTier"`
	ToTier    Tier                 `json:"toTier"`
	Condition ProgressionCondition `json:"condition"`
	CreatedAt time.Time            `json:"createdAt"`
}

// ProgressionEvent is an append-only record of a tier transition decision.
type ProgressionEvent struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId"`
	RuleID      string               `json:"ruleId,omitempty"`
	FromTier    Tier                 `json:"fromTier"`
	ToTier      Tier                 `json:"toTier"`
	TriggeredAt time.Time            `json:"triggeredAt"`
	Condition   ProgressionCondition `json:"condition"`
	WasPenalty  bool                 `json:"wasPenalty"`
}
