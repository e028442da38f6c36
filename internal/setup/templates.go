package setup

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/habittks/habit-tks/internal/models"
)

//go:embed templates.yaml
var templatesYAML []byte

// HabitTemplate is one seeded habit.
type HabitTemplate struct {
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description"`
	Category       models.Category  `yaml:"category"`
	Frequency      models.Frequency `yaml:"frequency"`
	ReminderTime   string           `yaml:"reminder_time"`
	Notes          string           `yaml:"notes"`
	Priority       models.Level     `yaml:"priority"`
	StreakTracking bool             `yaml:"streak_tracking"`
	SkipAllowed    bool             `yaml:"skip_allowed"`
}

// TierTemplate groups the habits seeded for one tier.
type TierTemplate struct {
	Tier            models.Tier     `yaml:"tier"`
	StartOffsetDays int             `yaml:"start_offset_days"`
	Habits          []HabitTemplate `yaml:"habits"`
}

type templateFile struct {
	Tiers []TierTemplate `yaml:"tiers"`
}

// LoadTemplates parses the embedded habit templates.
func LoadTemplates() ([]TierTemplate, error) {
	return parseTemplates(templatesYAML)
}

func parseTemplates(data []byte) ([]TierTemplate, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing habit templates: %w", err)
	}
	seen := make(map[models.Tier]bool)
	for _, tt := range f.Tiers {
		if !tt.Tier.Valid() {
			return nil, fmt.Errorf("habit templates: unknown tier %q", tt.Tier)
		}
		if seen[tt.Tier] {
			return nil, fmt.Errorf("habit templates: tier %s listed twice", tt.Tier)
		}
		seen[tt.Tier] = true
		for _, h := range tt.Habits {
			if !h.Category.Valid() || !h.Frequency.Valid() || !h.Priority.Valid() {
				return nil, fmt.Errorf("habit templates: invalid habit %q in %s", h.Name, tt.Tier)
			}
		}
	}
	if len(seen) != len(models.Tiers) {
		return nil, fmt.Errorf("habit templates: expected %d tiers, got %d", len(models.Tiers), len(seen))
	}
	return f.Tiers, nil
}
