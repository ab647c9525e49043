// Package server exposes the booking service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"bookcal/internal/apperr"
	"bookcal/internal/booking"
	"bookcal/internal/ical"
	"bookcal/internal/models"
	"bookcal/internal/shaper"
	"bookcal/internal/validate"
)

const (
	maxBodyBytes      = 1 << 20
	defaultMaxResults = 50
	maxMaxResults     = 2500
	requestIDHeader   = "X-Request-ID"
)

type ctxKey int

const requestIDKey ctxKey = iota

// Bookings is the service the handlers call.
type Bookings interface {
	Dispatch(ctx context.Context, body []byte, resolve booking.CredentialFunc) (*booking.Result, error)
	List(ctx context.Context, opts models.ListOptions, resolve booking.CredentialFunc) ([]*models.Event, error)
}

// CredentialResolver extracts the caller's credential from a request.
type CredentialResolver interface {
	Resolve(r *http.Request) (models.Credential, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CalendarName    string
	RateLimit       rate.Limit // zero disables limiting
	Burst           int
}

// Server routes HTTP requests to the booking service.
type Server struct {
	bookings Bookings
	resolver CredentialResolver
	logger   *slog.Logger
	opts     Options
	limiter  *rate.Limiter
	router   *mux.Router
}

// New builds a Server and its routes.
func New(logger *slog.Logger, bookings Bookings, resolver CredentialResolver, opts Options) *Server {
	s := &Server{
		bookings: bookings,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	r := mux.NewRouter()
	r.Use(s.requestID)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/calendar", s.listEvents).Methods(http.MethodGet)
	api.HandleFunc("/calendar", s.writeEvent).Methods(http.MethodPost)
	api.HandleFunc("/calendar.ics", s.exportFeed).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// credentials binds the resolver to the current request.
func (s *Server) credentials(r *http.Request) booking.CredentialFunc {
	return func(ctx context.Context) (models.Credential, error) {
		return s.resolver.Resolve(r.WithContext(ctx))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listResponse struct {
	Events []shaper.PublicEventView `json:"events"`
	Total  int                      `json:"total"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := s.fetchEvents(w, r)
	if !ok {
		return
	}
	views := shaper.ToPublicEvents(events)
	writeJSON(w, http.StatusOK, listResponse{Events: views, Total: len(views)})
}

func (s *Server) exportFeed(w http.ResponseWriter, r *http.Request) {
	events, ok := s.fetchEvents(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := ical.WriteFeed(w, s.opts.CalendarName, events, time.Now()); err != nil {
		s.logger.Error("Failed to write calendar feed", "error", err, "request_id", requestIDFrom(r.Context()))
	}
}

// fetchEvents resolves the caller, parses the list query and calls the
// service, in the same order as writes. On failure the error response has
// already been written.
func (s *Server) fetchEvents(w http.ResponseWriter, r *http.Request) ([]*models.Event, bool) {
	cred, err := s.resolver.Resolve(r)
	if err != nil {
		s.fail(w, r, "list", "", err)
		return nil, false
	}
	opts, err := parseListOptions(r)
	if err != nil {
		s.fail(w, r, "list", "", err)
		return nil, false
	}
	resolved := func(context.Context) (models.Credential, error) { return cred, nil }
	events, err := s.bookings.List(r.Context(), opts, resolved)
	if err != nil {
		s.fail(w, r, "list", "", err)
		return nil, false
	}
	return events, true
}

type writeResponse struct {
	Message string               `json:"message"`
	Event   *shaper.EventSummary `json:"event,omitempty"`
}

var successMessages = map[validate.Action]string{
	validate.ActionCreate: "Event created successfully",
	validate.ActionUpdate: "Event updated successfully",
	validate.ActionDelete: "Event deleted successfully",
}

func (s *Server) writeEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperr.Invalid("server.writeEvent", []apperr.Violation{{Field: "body", Message: "exceeds 1 MiB"}})
		} else {
			err = apperr.Invalid("server.writeEvent", []apperr.Violation{{Field: "body", Message: "could not be read"}})
		}
		s.fail(w, r, "", "", err)
		return
	}

	res, err := s.bookings.Dispatch(r.Context(), body, s.credentials(r))
	if err != nil {
		var action, eventID string
		if res != nil {
			action, eventID = string(res.Action), res.EventID
		}
		s.fail(w, r, action, eventID, err)
		return
	}

	resp := writeResponse{Message: successMessages[res.Action]}
	if res.Event != nil {
		summary := shaper.ToEventSummary(res.Event)
		resp.Event = &summary
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail logs err once and writes the public error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, action, eventID string, err error) {
	resp := shaper.ToErrorResponse(err)
	attrs := []any{
		"action", action,
		"eventId", eventID,
		"kind", apperr.KindOf(err).String(),
		"status", resp.Status,
		"request_id", requestIDFrom(r.Context()),
		"error", err,
	}
	if resp.Status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", attrs...)
	} else {
		s.logger.Warn("Request rejected", attrs...)
	}
	writeJSON(w, resp.Status, resp)
}

// parseListOptions reads timeMin, timeMax and maxResults from the query.
func parseListOptions(r *http.Request) (models.ListOptions, error) {
	q := r.URL.Query()
	opts := models.ListOptions{MaxResults: defaultMaxResults}

	var violations []apperr.Violation
	if v := q.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			violations = append(violations, apperr.Violation{Field: "timeMin", Message: "must be an RFC 3339 timestamp"})
		}
		opts.TimeMin = t
	}
	if v := q.Get("timeMax"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			violations = append(violations, apperr.Violation{Field: "timeMax", Message: "must be an RFC 3339 timestamp"})
		}
		opts.TimeMax = t
	}
	if len(violations) > 0 {
		return models.ListOptions{}, apperr.Invalid("server.parseListOptions", violations)
	}

	if n, err := strconv.Atoi(q.Get("maxResults")); err == nil && n > 0 {
		opts.MaxResults = min(n, maxMaxResults)
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
