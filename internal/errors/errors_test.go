package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NotFound("habit.get", "habit %s not found", "h-1")
	assert.Contains(t, err.Error(), "habit.get")
	assert.Contains(t, err.Error(), "h-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDomainError_NoOp(t *testing.T) {
	err := Validation("", "reason is required")
	assert.Equal(t, "validation failed: reason is required", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrAccessDenied, KindOf(AccessDenied("op", "nope")))
	assert.Equal(t, ErrInvalidOperation, KindOf(InvalidOperation("op", "nope")))
	assert.Equal(t, ErrValidation, KindOf(fmt.Errorf("wrapped: %w", Validation("op", "bad"))))
	assert.Nil(t, KindOf(errors.New("boom")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "skip not allowed", Message(InvalidOperation("habit.skip", "skip not allowed")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}

func TestSentinelErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrAccessDenied))
}
