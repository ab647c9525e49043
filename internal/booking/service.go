// Package booking routes appointment requests to the calendar gateway.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookcal/internal/apperr"
	"bookcal/internal/datetime"
	"bookcal/internal/models"
	"bookcal/internal/validate"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryBackoff = 250 * time.Millisecond
)

// Gateway is the calendar provider the service talks to.
type Gateway interface {
	List(ctx context.Context, cred models.Credential, opts models.ListOptions) ([]*models.Event, error)
	Create(ctx context.Context, cred models.Credential, draft *models.Draft) (*models.Event, error)
	Update(ctx context.Context, cred models.Credential, eventID string, draft *models.Draft) (*models.Event, error)
	Delete(ctx context.Context, cred models.Credential, eventID string) error
}

// CredentialFunc resolves the caller's credential. It is invoked at most
// once per request.
type CredentialFunc func(ctx context.Context) (models.Credential, error)

// Options tunes provider call behavior.
type Options struct {
	Timeout      time.Duration // per provider call
	ReadRetries  int           // extra attempts for List on ProviderUnavailable
	RetryBackoff time.Duration // multiplied by the attempt number
	ListDeadline time.Duration // bounds all List attempts together, zero means unbounded
}

// Result is the outcome of a dispatched write. Event is nil for deletes.
type Result struct {
	Action  validate.Action
	EventID string
	Event   *models.Event
}

// Service validates, normalizes and dispatches booking requests.
type Service struct {
	gateway    Gateway
	normalizer *datetime.Normalizer
	logger     *slog.Logger
	opts       Options
}

// NewService creates a Service.
func NewService(logger *slog.Logger, gateway Gateway, normalizer *datetime.Normalizer, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Service{gateway: gateway, normalizer: normalizer, logger: logger, opts: opts}
}

// Dispatch handles one write request body. An unknown action fails before
// the credential is resolved; the credential is resolved before the payload
// is validated, and invalid payloads never reach the gateway.
func (s *Service) Dispatch(ctx context.Context, body []byte, resolve CredentialFunc) (*Result, error) {
	action, fields, err := validate.Decode(body)
	if err != nil {
		return nil, err
	}

	cred, err := resolve(ctx)
	if err != nil {
		return &Result{Action: action}, err
	}

	cmd, violations := validate.Validate(action, fields)
	if len(violations) > 0 {
		return &Result{Action: action}, apperr.Invalid("booking.Dispatch", violations)
	}

	switch c := cmd.(type) {
	case validate.Create:
		return s.create(ctx, cred, c)
	case validate.Update:
		return s.update(ctx, cred, c)
	case validate.Delete:
		return s.delete(ctx, cred, c)
	default:
		return &Result{Action: action}, apperr.New(apperr.KindInternal, "booking.Dispatch", fmt.Errorf("unhandled command %T", cmd))
	}
}

func (s *Service) create(ctx context.Context, cred models.Credential, c validate.Create) (*Result, error) {
	res := &Result{Action: validate.ActionCreate}
	draft, err := s.draft(c.Appointment)
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ev, err := s.gateway.Create(ctx, cred, draft)
	if err != nil {
		return res, err
	}
	res.EventID, res.Event = ev.ID, ev
	s.logger.Info("Appointment created", "eventId", ev.ID, "start", ev.Start)
	return res, nil
}

func (s *Service) update(ctx context.Context, cred models.Credential, c validate.Update) (*Result, error) {
	res := &Result{Action: validate.ActionUpdate, EventID: c.EventID}
	draft, err := s.draft(c.Appointment)
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ev, err := s.gateway.Update(ctx, cred, c.EventID, draft)
	if err != nil {
		return res, err
	}
	res.Event = ev
	s.logger.Info("Appointment updated", "eventId", ev.ID, "start", ev.Start)
	return res, nil
}

func (s *Service) delete(ctx context.Context, cred models.Credential, c validate.Delete) (*Result, error) {
	res := &Result{Action: validate.ActionDelete, EventID: c.EventID}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.gateway.Delete(ctx, cred, c.EventID); err != nil {
		return res, err
	}
	s.logger.Info("Appointment deleted", "eventId", c.EventID)
	return res, nil
}

// draft builds the provider draft for a validated appointment.
func (s *Service) draft(a validate.Appointment) (*models.Draft, error) {
	start, err := s.normalizer.Combine(a.Date, a.Time)
	if err != nil {
		return nil, err
	}
	end, err := datetime.DeriveEnd(start, a.DurationMinutes)
	if err != nil {
		return nil, err
	}
	return &models.Draft{
		Title:       a.Summary,
		Description: a.Description,
		Start:       start,
		End:         end,
		Attendees:   []models.Attendee{{Email: a.ClientEmail, DisplayName: a.ClientName}},
	}, nil
}

// List returns the caller's events. Transport failures are retried since
// reads are safe to repeat.
func (s *Service) List(ctx context.Context, opts models.ListOptions, resolve CredentialFunc) ([]*models.Event, error) {
	cred, err := resolve(ctx)
	if err != nil {
		return nil, err
	}

	if s.opts.ListDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ListDeadline)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		events, err := s.listOnce(ctx, cred, opts)
		if err == nil {
			return events, nil
		}
		if apperr.KindOf(err) != apperr.KindProviderUnavailable || attempt >= s.opts.ReadRetries {
			return nil, err
		}

		backoff := s.opts.RetryBackoff * time.Duration(attempt+1)
		s.logger.Warn("Listing events failed, retrying", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.KindProviderUnavailable, "booking.List", ctx.Err())
		case <-time.After(backoff):
		}
	}
}

func (s *Service) listOnce(ctx context.Context, cred models.Credential, opts models.ListOptions) ([]*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.gateway.List(ctx, cred, opts)
}
