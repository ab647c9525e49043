package ical

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcal/internal/models"
)

func TestWriteFeed(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	events := []*models.Event{
		{
			ID:          "evt-1",
			Title:       "Consultation",
			Description: "First visit",
			Start:       start,
			End:         start.Add(45 * time.Minute),
			Status:      "confirmed",
			Attendees:   []models.Attendee{{Email: "jane@example.com", DisplayName: "Jane Doe"}},
		},
		{ID: "", Title: "never stored"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFeed(&buf, "Bookings", events, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	cal, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)

	name, err := cal.Props.Text("X-WR-CALNAME")
	require.NoError(t, err)
	assert.Equal(t, "Bookings", name)

	vevents := cal.Events()
	require.Len(t, vevents, 1)
	ve := vevents[0]

	uid, err := ve.Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", uid)

	dtstart, err := ve.DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.True(t, dtstart.Equal(start))

	dtend, err := ve.DateTimeEnd(time.UTC)
	require.NoError(t, err)
	assert.True(t, dtend.Equal(start.Add(45*time.Minute)))

	status, err := ve.Props.Text(ical.PropStatus)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", status)

	attendee := ve.Props.Get(ical.PropAttendee)
	require.NotNil(t, attendee)
	assert.Equal(t, "mailto:jane@example.com", attendee.Value)
	assert.Equal(t, "Jane Doe", attendee.Params.Get(ical.ParamCommonName))
}

func TestIcalStatus(t *testing.T) {
	assert.Equal(t, "CANCELLED", icalStatus("cancelled"))
	assert.Equal(t, "TENTATIVE", icalStatus("Tentative"))
	assert.Equal(t, "", icalStatus(""))
}
