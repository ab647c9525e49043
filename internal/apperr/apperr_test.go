package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := &Error{Kind: KindEventNotFound, Op: "google.Delete", EventID: "abc"}
	wrapped := fmt.Errorf("dispatch delete: %w", base)

	assert.Equal(t, KindEventNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrEventNotFound))
	assert.False(t, errors.Is(wrapped, ErrProviderError))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Kind:       KindValidationFailed,
		Op:         "validate",
		Violations: []Violation{{Field: "eventId"}, {Field: "date"}},
	}
	assert.Equal(t, "validate: validation_failed [eventId, date]", err.Error())

	err = &Error{Kind: KindProviderError, Op: "google.Create", EventID: "e1", Err: errors.New("boom")}
	assert.Equal(t, "google.Create: provider_error (event e1): boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

func TestViolationsOf(t *testing.T) {
	v := []Violation{{Field: "summary", Message: "is required"}}
	err := fmt.Errorf("wrapped: %w", Invalid("validate", v))

	assert.Equal(t, v, ViolationsOf(err))
	assert.Nil(t, ViolationsOf(errors.New("plain")))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(KindInvalidAction))
	assert.True(t, IsClientError(KindInvalidDuration))
	assert.False(t, IsClientError(KindEventNotFound))
	assert.False(t, IsClientError(KindProviderUnavailable))
}
