// Package validate checks and normalizes booking payloads per action.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"bookcal/internal/apperr"
	"bookcal/internal/datetime"
)

// Action is the caller-declared intent selecting a write handler.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// maxDurationMinutes caps a single booking at one week.
const maxDurationMinutes = 7 * 24 * 60

// Fields holds the raw JSON members of a request body.
type Fields map[string]json.RawMessage

// Command is a validated, typed write request. Its implementations are
// Create, Update and Delete.
type Command interface {
	Action() Action
	command()
}

// Appointment is the normalized create/update payload.
type Appointment struct {
	Summary         string
	Description     string
	ClientEmail     string
	ClientName      string
	Date            string
	Time            string
	DurationMinutes int
}

// Create books a new appointment.
type Create struct {
	Appointment
}

// Update replaces an existing appointment.
type Update struct {
	EventID string
	Appointment
}

// Delete cancels an existing appointment.
type Delete struct {
	EventID string
}

func (Create) Action() Action { return ActionCreate }
func (Update) Action() Action { return ActionUpdate }
func (Delete) Action() Action { return ActionDelete }

func (Create) command() {}
func (Update) command() {}
func (Delete) command() {}

// Decode reads a request body and extracts its action. Unknown or missing
// actions fail with InvalidAction before any field is inspected.
func Decode(body []byte) (Action, Fields, error) {
	var fields Fields
	dec := json.NewDecoder(bytes.NewReader(body))
	err := dec.Decode(&fields)
	if err == nil && fields == nil {
		err = errors.New("body is null")
	}
	if err == nil {
		if extra := dec.Decode(new(json.RawMessage)); extra != io.EOF {
			err = errors.New("unexpected data after JSON object")
		}
	}
	if err != nil {
		return "", nil, &apperr.Error{
			Kind:       apperr.KindValidationFailed,
			Op:         "validate.Decode",
			Violations: []apperr.Violation{{Field: "body", Message: "must be a JSON object"}},
			Err:        err,
		}
	}

	var action string
	if raw, ok := fields["action"]; ok {
		if err := json.Unmarshal(raw, &action); err != nil {
			action = ""
		}
	}
	switch a := Action(action); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, fields, nil
	default:
		return "", nil, apperr.New(apperr.KindInvalidAction, "validate.Decode", fmt.Errorf("unknown action %q", action))
	}
}

// Validate checks fields against the schema for action. It returns either a
// Command or every violation found, never both.
func Validate(action Action, fields Fields) (Command, []apperr.Violation) {
	v := &checker{fields: fields}

	switch action {
	case ActionCreate:
		appt := v.appointment()
		if len(v.violations) > 0 {
			return nil, v.violations
		}
		return Create{Appointment: appt}, nil
	case ActionUpdate:
		id := v.requiredString("eventId")
		appt := v.appointment()
		if len(v.violations) > 0 {
			return nil, v.violations
		}
		return Update{EventID: id, Appointment: appt}, nil
	case ActionDelete:
		id := v.requiredString("eventId")
		if len(v.violations) > 0 {
			return nil, v.violations
		}
		return Delete{EventID: id}, nil
	default:
		return nil, []apperr.Violation{{Field: "action", Message: "must be one of create, update, delete"}}
	}
}

type checker struct {
	fields     Fields
	violations []apperr.Violation
}

func (c *checker) fail(field, msg string) {
	c.violations = append(c.violations, apperr.Violation{Field: field, Message: msg})
}

func (c *checker) appointment() Appointment {
	appt := Appointment{
		Summary:    c.requiredString("summary"),
		ClientName: c.clientName(),
	}
	appt.ClientEmail = c.email("clientEmail")

	appt.Date = c.requiredString("date")
	if appt.Date != "" {
		if _, err := datetime.ParseDate(appt.Date); err != nil {
			c.fail("date", err.Error())
		}
	}
	appt.Time = c.requiredString("time")
	if appt.Time != "" {
		if _, err := datetime.ParseClock(appt.Time); err != nil {
			c.fail("time", err.Error())
		}
	}

	appt.DurationMinutes = c.duration("durationMinutes")
	appt.Description = c.optionalString("description")
	return appt
}

// str decodes a string member. ok is false when the member is absent or null.
func (c *checker) str(field string) (s string, ok bool) {
	raw, present := c.fields[field]
	if !present || string(raw) == "null" {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		c.fail(field, "must be a string")
		return "", false
	}
	return strings.TrimSpace(s), true
}

func (c *checker) requiredString(field string) string {
	raw, present := c.fields[field]
	if !present || string(raw) == "null" {
		c.fail(field, "is required")
		return ""
	}
	s, ok := c.str(field)
	if ok && s == "" {
		c.fail(field, "must not be empty")
	}
	return s
}

func (c *checker) optionalString(field string) string {
	s, _ := c.str(field)
	return s
}

func (c *checker) email(field string) string {
	s := c.requiredString(field)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !hasDottedDomain(addr.Address) {
		c.fail(field, "must be a valid email address")
		return ""
	}
	return addr.Address
}

// hasDottedDomain reports whether the domain part of addr has a dot
// separating non-empty labels.
func hasDottedDomain(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	domain := addr[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// clientName accepts either a plain string or {"firstName", "lastName"}.
func (c *checker) clientName() string {
	const field = "clientName"
	raw, present := c.fields[field]
	if !present || string(raw) == "null" {
		c.fail(field, "is required")
		return ""
	}

	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		var parts struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		}
		if err := json.Unmarshal(raw, &parts); err != nil {
			c.fail(field, "must be a string or an object with firstName and lastName")
			return ""
		}
		name = strings.TrimSpace(parts.FirstName) + " " + strings.TrimSpace(parts.LastName)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		c.fail(field, "must not be empty")
	}
	return name
}

func (c *checker) duration(field string) int {
	raw, present := c.fields[field]
	if !present || string(raw) == "null" {
		return datetime.DefaultDurationMinutes
	}
	// json.Number also accepts quoted numbers.
	if len(raw) > 0 && raw[0] == '"' {
		c.fail(field, "must be a positive integer")
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		c.fail(field, "must be a positive integer")
		return 0
	}
	minutes, err := n.Int64()
	if err != nil || minutes <= 0 {
		c.fail(field, "must be a positive integer")
		return 0
	}
	if minutes > maxDurationMinutes {
		c.fail(field, fmt.Sprintf("must not exceed %d", maxDurationMinutes))
		return 0
	}
	return int(minutes)
}
