package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTier_Steps(t *testing.T) {
	next, ok := TierBaseline.Next()
	assert.True(t, ok)
	assert.Equal(t, TierTwo, next)

	next, ok = TierTwo.Next()
	assert.True(t, ok)
	assert.Equal(t, TierThree, next)

	_, ok = TierThree.Next()
	assert.False(t, ok)

	prev, ok := TierThree.Prev()
	assert.True(t, ok)
	assert.Equal(t, TierTwo, prev)

	_, ok = TierBaseline.Prev()
	assert.False(t, ok)

	_, ok = Tier("tier9").Next()
	assert.False(t, ok)
}

func TestTier_Valid(t *testing.T) {
	for _, tier := range Tiers {
		assert.True(t, tier.Valid(), tier)
	}
	assert.False(t, Tier("").Valid())
	assert.True(t, TierThree.Above(TierBaseline))
	assert.False(t, TierBaseline.Above(TierBaseline))
}

func TestEnums_Valid(t *testing.T) {
	assert.True(t, CategoryLearning.Valid())
	assert.False(t, Category("sleep").Valid())
	assert.True(t, FrequencyCustom.Valid())
	assert.False(t, Frequency("hourly").Valid())
	assert.True(t, LevelHigh.Valid())
	assert.False(t, Level("extreme").Valid())
}

func TestCondition_TimeframeDays(t *testing.T) {
	assert.Equal(t, 7, ProgressionCondition{Kind: ConditionConsecutiveDays, Value: 7}.TimeframeDays())
	assert.Equal(t, 14, ProgressionCondition{Kind: ConditionConsecutiveDays, Value: 7, Timeframe: 14}.TimeframeDays())
	assert.True(t, ConditionManual.RuleKind())
	assert.False(t, ConditionSkipThreshold.RuleKind())
}

func TestTier_Messages(t *testing.T) {
	assert.Contains(t, TierTwo.UnlockMessage(), "Tier 2")
	assert.Contains(t, TierThree.UnlockMessage(), "Tier 3")
	assert.Contains(t, TierBaseline.DowngradeMessage(), "baseline")
}
