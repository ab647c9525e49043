package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookcal/internal/apperr"
	"bookcal/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultCalendarID = "primary"
	userAgent         = "bookcal/1.0"
)

// Options configures a Gateway.
type Options struct {
	CalendarID  string         // Calendar to operate on, "primary" when empty
	SendUpdates string         // Provider notification policy: "all", "externalOnly" or "none"
	Location    *time.Location // Zone attached to event start/end
	Endpoint    string         // Overrides the API base URL, used by tests
	Transport   http.RoundTripper
}

// Gateway performs event CRUD against the Google Calendar API on behalf of
// a caller's credential. It keeps no state between calls.
type Gateway struct {
	logger      *slog.Logger
	calendarID  string
	sendUpdates string
	loc         *time.Location
	endpoint    string
	transport   http.RoundTripper
}

// NewGateway creates a Google Calendar gateway.
func NewGateway(logger *slog.Logger, opts Options) *Gateway {
	if opts.CalendarID == "" {
		opts.CalendarID = defaultCalendarID
	}
	if opts.SendUpdates == "" {
		opts.SendUpdates = "all"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &Gateway{
		logger:      logger,
		calendarID:  opts.CalendarID,
		sendUpdates: opts.SendUpdates,
		loc:         opts.Location,
		endpoint:    opts.Endpoint,
		transport:   opts.Transport,
	}
}

// service builds a calendar service authorized with cred. A new service is
// built per call so a credential never outlives the request that supplied it.
func (g *Gateway) service(ctx context.Context, op string, cred models.Credential) (*calendar.Service, error) {
	if cred.AccessToken == "" {
		return nil, apperr.New(apperr.KindAuthRequired, op, errors.New("missing access token"))
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}),
			Base:   &userAgentTransport{Transport: g.transport},
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, op, fmt.Errorf("failed to create calendar service: %w", err))
	}
	return service, nil
}

// List fetches events from the configured calendar. Recurring events are
// expanded and the provider orders them by start time.
func (g *Gateway) List(ctx context.Context, cred models.Credential, opts models.ListOptions) ([]*models.Event, error) {
	const op = "google.List"
	svc, err := g.service(ctx, op, cred)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(g.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(int64(opts.MaxResults))
	}
	if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if !opts.TimeMax.IsZero() {
		call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
	}

	g.logger.Debug("Fetching events", "calendarID", g.calendarID, "maxResults", opts.MaxResults)
	events, err := call.Do()
	if err != nil {
		return nil, classify(op, "", err)
	}

	out := make([]*models.Event, 0, len(events.Items))
	for _, item := range events.Items {
		ev, err := g.toInternalEvent(item)
		if err != nil {
			g.logger.Warn("Skipping event with unreadable times", "eventId", item.Id, "error", err)
			continue
		}
		out = append(out, ev)
	}
	g.logger.Debug("Fetched events from Google Calendar", "count", len(out), "calendarID", g.calendarID)
	return out, nil
}

// Create inserts a new event and returns it as stored by the provider.
func (g *Gateway) Create(ctx context.Context, cred models.Credential, draft *models.Draft) (*models.Event, error) {
	const op = "google.Create"
	svc, err := g.service(ctx, op, cred)
	if err != nil {
		return nil, err
	}

	created, err := svc.Events.Insert(g.calendarID, g.toGoogleEvent(draft)).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(op, "", err)
	}
	ev, err := g.providerEvent(op, created)
	if err != nil {
		// The event exists at the provider even though the call fails.
		g.logger.Error("Created event could not be read back", "eventId", created.Id, "calendarID", g.calendarID, "error", err)
		return nil, err
	}
	return ev, nil
}

// Update replaces the event identified by eventID.
func (g *Gateway) Update(ctx context.Context, cred models.Credential, eventID string, draft *models.Draft) (*models.Event, error) {
	const op = "google.Update"
	svc, err := g.service(ctx, op, cred)
	if err != nil {
		return nil, err
	}

	updated, err := svc.Events.Update(g.calendarID, eventID, g.toGoogleEvent(draft)).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(op, eventID, err)
	}
	return g.providerEvent(op, updated)
}

// Delete removes the event identified by eventID. Deleting an id the
// provider no longer knows fails with EventNotFound.
func (g *Gateway) Delete(ctx context.Context, cred models.Credential, eventID string) error {
	const op = "google.Delete"
	svc, err := g.service(ctx, op, cred)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(g.calendarID, eventID).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return classify(op, eventID, err)
	}
	return nil
}

func (g *Gateway) providerEvent(op string, item *calendar.Event) (*models.Event, error) {
	ev, err := g.toInternalEvent(item)
	if err != nil {
		return nil, apperr.New(apperr.KindProviderError, op, err)
	}
	return ev, nil
}

// toGoogleEvent converts a draft into the provider representation.
func (g *Gateway) toGoogleEvent(draft *models.Draft) *calendar.Event {
	zone := g.loc.String()
	if zone == "Local" {
		zone = ""
	}

	ev := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Start: &calendar.EventDateTime{
			DateTime: draft.Start.Format(time.RFC3339),
			TimeZone: zone,
		},
		End: &calendar.EventDateTime{
			DateTime: draft.End.Format(time.RFC3339),
			TimeZone: zone,
		},
	}
	for _, a := range draft.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return ev
}

// toInternalEvent converts a provider event to the internal Event model.
func (g *Gateway) toInternalEvent(item *calendar.Event) (*models.Event, error) {
	start, err := g.parseEventTime(item.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := g.parseEventTime(item.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	ev := &models.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
		Status:      item.Status,
	}
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, models.Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return ev, nil
}

// parseEventTime reads a timed or all-day provider time. All-day dates are
// placed at midnight in the configured zone.
func (g *Gateway) parseEventTime(t *calendar.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, errors.New("missing time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		return time.ParseInLocation("2006-01-02", t.Date, g.loc)
	}
	return time.Time{}, errors.New("missing time")
}

// classify maps a provider call failure onto the error taxonomy. eventID is
// set for calls that target an existing event.
func classify(op, eventID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		kind := apperr.KindProviderError
		switch apiErr.Code {
		case http.StatusUnauthorized:
			kind = apperr.KindAuthRequired
		case http.StatusNotFound, http.StatusGone:
			if eventID != "" {
				kind = apperr.KindEventNotFound
			}
		}
		return &apperr.Error{Kind: kind, Op: op, EventID: eventID, Err: err}
	}
	// Anything that is not a provider response is a transport failure,
	// including context deadlines and cancellation.
	return &apperr.Error{Kind: apperr.KindProviderUnavailable, Op: op, EventID: eventID, Err: err}
}
