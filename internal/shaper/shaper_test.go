package shaper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcal/internal/apperr"
	"bookcal/internal/models"
)

func TestToPublicEventPreservesProviderValues(t *testing.T) {
	start, err := time.Parse(time.RFC3339, "2025-03-10T14:30:00+01:00")
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, "2025-03-10T15:15:00+01:00")
	require.NoError(t, err)

	ev := &models.Event{
		ID:          "abc123",
		Title:       "Consultation",
		Description: "First visit",
		Start:       start,
		End:         end,
		Status:      "confirmed",
		Attendees:   []models.Attendee{{Email: "jane@example.com", DisplayName: "Jane Doe"}, {Email: "x@y.z"}},
	}

	view := ToPublicEvent(ev)
	assert.Equal(t, "abc123", view.ID)
	assert.Equal(t, "2025-03-10T14:30:00+01:00", view.Start)
	assert.Equal(t, "2025-03-10T15:15:00+01:00", view.End)
	assert.Equal(t, []PublicAttendee{{Email: "jane@example.com", Name: "Jane Doe"}, {Email: "x@y.z"}}, view.Attendees)

	parsed, err := time.Parse(time.RFC3339, view.Start)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ev.Start))

	summary := ToEventSummary(ev)
	assert.Equal(t, EventSummary{ID: "abc123", Summary: "Consultation", Start: view.Start, End: view.End}, summary)
}

func TestToPublicEventEmptyAttendeesEncodeAsArray(t *testing.T) {
	b, err := json.Marshal(ToPublicEvent(&models.Event{ID: "x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","title":"","start":"","end":"","attendees":[]}`, string(b))
}

func TestToPublicEventsKeepsOrder(t *testing.T) {
	views := ToPublicEvents([]*models.Event{{ID: "b"}, {ID: "a"}, {ID: "c"}})
	require.Len(t, views, 3)
	assert.Equal(t, "b", views[0].ID)
	assert.Equal(t, "a", views[1].ID)
	assert.Equal(t, "c", views[2].ID)
}

func TestToErrorResponse(t *testing.T) {
	providerBody := errors.New(`{"error":{"message":"secret internal detail"}}`)

	tests := []struct {
		err    error
		status int
	}{
		{apperr.New(apperr.KindAuthRequired, "op", nil), http.StatusUnauthorized},
		{apperr.New(apperr.KindInvalidAction, "op", nil), http.StatusBadRequest},
		{apperr.Invalid("op", []apperr.Violation{{Field: "eventId", Message: "is required"}}), http.StatusBadRequest},
		{apperr.New(apperr.KindInvalidDateTime, "op", nil), http.StatusBadRequest},
		{apperr.New(apperr.KindInvalidDuration, "op", nil), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.New(apperr.KindEventNotFound, "op", nil)), http.StatusNotFound},
		{apperr.New(apperr.KindProviderError, "op", providerBody), http.StatusInternalServerError},
		{apperr.New(apperr.KindProviderUnavailable, "op", providerBody), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		resp := ToErrorResponse(tt.err)
		assert.Equal(t, tt.status, resp.Status, tt.err.Error())
		assert.NotContains(t, resp.Message, "secret")
	}

	resp := ToErrorResponse(apperr.Invalid("op", []apperr.Violation{{Field: "eventId", Message: "is required"}}))
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Invalid data","details":[{"field":"eventId","message":"is required"}]}`, string(b))
}
