package models

import "time"

// Event is the normalized calendar event exchanged with the provider.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string     // Assigned by the provider; never set or changed locally
	Title       string     // Summary or title of the event
	Description string     // Detailed description of the event
	Start       time.Time  // Start instant as reported by the provider
	End         time.Time  // End instant as reported by the provider
	Status      string     // Provider status, e.g. "confirmed"
	Attendees   []Attendee // Attendees in provider order
}

// Attendee is a single event participant.
type Attendee struct {
	Email       string
	DisplayName string
}

// Draft is the event content sent to the provider on create and update.
type Draft struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []Attendee
}

// ListOptions bounds a provider listing. Zero TimeMin/TimeMax leave the
// window open on that side.
type ListOptions struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}
