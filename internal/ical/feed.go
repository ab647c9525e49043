// Package ical renders booked events as an iCalendar feed.
package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bookcal/internal/models"

	"github.com/emersion/go-ical"
)

const productID = "-//bookcal//EN"

// WriteFeed encodes events as a VCALENDAR to w. stamp is used as DTSTAMP
// for every event.
func WriteFeed(w io.Writer, name string, events []*models.Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}

	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		cal.Children = append(cal.Children, toVEvent(ev, stamp))
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar feed: %w", err)
	}
	return nil
}

// toVEvent converts an internal Event to a VEVENT component.
func toVEvent(ev *models.Event, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.ID)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	ve.Props.SetText(ical.PropSummary, ev.Title)

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if status := icalStatus(ev.Status); status != "" {
		ve.Props.SetText(ical.PropStatus, status)
	}
	for _, a := range ev.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + a.Email
		if a.DisplayName != "" {
			p.Params.Set(ical.ParamCommonName, a.DisplayName)
		}
		ve.Props.Add(p)
	}
	return ve
}

// icalStatus maps provider statuses onto RFC 5545 VEVENT statuses.
func icalStatus(status string) string {
	switch strings.ToLower(status) {
	case "confirmed":
		return "CONFIRMED"
	case "tentative":
		return "TENTATIVE"
	case "cancelled":
		return "CANCELLED"
	}
	return ""
}
