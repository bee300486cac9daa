package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IncludesCauseWhenWrapped(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindStateInconsistency, cause, "match corrupted")

	assert.Contains(t, err.Error(), "match corrupted")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, cause, err.Unwrap())
}

func TestError_OmitsCauseWhenAbsent(t *testing.T) {
	err := Validation("card not in hand")
	assert.Equal(t, "validation_error: card not in hand", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := Policy("already queued")
	assert.True(t, Is(err, KindPolicy))
	assert.False(t, Is(err, KindValidation))

	wrapped := errors.New("context: " + err.Error())
	assert.False(t, Is(wrapped, KindPolicy), "Is should not match a plain error carrying similar text")
}

func TestShorthandConstructors_SetExpectedKind(t *testing.T) {
	assert.Equal(t, KindValidation, Validation("x").Kind)
	assert.Equal(t, KindPolicy, Policy("x").Kind)
	assert.Equal(t, KindStateInconsistency, StateInconsistency("x").Kind)
}
