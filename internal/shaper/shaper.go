// Package shaper maps events and failures onto the public API contract.
package shaper

import (
	"net/http"
	"time"

	"bookcal/internal/apperr"
	"bookcal/internal/models"
)

// PublicAttendee is an attendee as shown to booking callers.
type PublicAttendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// PublicEventView is the stable event shape returned to booking callers.
type PublicEventView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Start       string           `json:"start"`
	End         string           `json:"end"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status,omitempty"`
	Attendees   []PublicAttendee `json:"attendees"`
}

// EventSummary is the event echo returned after a create or update.
type EventSummary struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ErrorResponse is the categorized outcome of a failed request.
type ErrorResponse struct {
	Status  int                `json:"-"`
	Message string             `json:"error"`
	Details []apperr.Violation `json:"details,omitempty"`
}

// ToPublicEvent projects ev without re-deriving any of its values.
func ToPublicEvent(ev *models.Event) PublicEventView {
	view := PublicEventView{
		ID:          ev.ID,
		Title:       ev.Title,
		Start:       formatTime(ev.Start),
		End:         formatTime(ev.End),
		Description: ev.Description,
		Status:      ev.Status,
		Attendees:   make([]PublicAttendee, 0, len(ev.Attendees)),
	}
	for _, a := range ev.Attendees {
		view.Attendees = append(view.Attendees, PublicAttendee{Email: a.Email, Name: a.DisplayName})
	}
	return view
}

// ToPublicEvents projects a list, preserving its order.
func ToPublicEvents(events []*models.Event) []PublicEventView {
	views := make([]PublicEventView, 0, len(events))
	for _, ev := range events {
		views = append(views, ToPublicEvent(ev))
	}
	return views
}

// ToEventSummary projects ev into the write response echo.
func ToEventSummary(ev *models.Event) EventSummary {
	return EventSummary{
		ID:      ev.ID,
		Summary: ev.Title,
		Start:   formatTime(ev.Start),
		End:     formatTime(ev.End),
	}
}

// ToErrorResponse maps err to a status and a generic message. Provider
// details are never included.
func ToErrorResponse(err error) ErrorResponse {
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindAuthRequired:
		return ErrorResponse{Status: http.StatusUnauthorized, Message: "Authentication required. Please sign in."}
	case apperr.KindInvalidAction:
		return ErrorResponse{Status: http.StatusBadRequest, Message: "Invalid action"}
	case apperr.KindValidationFailed, apperr.KindInvalidDateTime, apperr.KindInvalidDuration:
		return ErrorResponse{Status: http.StatusBadRequest, Message: "Invalid data", Details: apperr.ViolationsOf(err)}
	case apperr.KindEventNotFound:
		return ErrorResponse{Status: http.StatusNotFound, Message: "Event not found"}
	case apperr.KindProviderError:
		return ErrorResponse{Status: http.StatusInternalServerError, Message: "The calendar provider rejected the request"}
	case apperr.KindProviderUnavailable:
		return ErrorResponse{Status: http.StatusInternalServerError, Message: "The calendar provider is unavailable"}
	default:
		return ErrorResponse{Status: http.StatusInternalServerError, Message: "Internal server error"}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
