package calendar

import (
	"context"
	"time"
)

// External event status values.
const (
	EventConfirmed = "confirmed"
	EventTentative = "tentative"
	EventCancelled = "cancelled"
)

type CalendarListEntry struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary,omitempty"`
}

type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// NewEventDateTime formats t in loc the way the calendar API expects.
func NewEventDateTime(t time.Time, loc *time.Location) *EventDateTime {
	if loc == nil {
		loc = time.UTC
	}
	return &EventDateTime{
		DateTime: t.In(loc).Format(time.RFC3339),
		TimeZone: loc.String(),
	}
}

type Attendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

type Event struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Start       *EventDateTime `json:"start,omitempty"`
	End         *EventDateTime `json:"end,omitempty"`
	Attendees   []Attendee     `json:"attendees,omitempty"`
	Status      string         `json:"status,omitempty"`

	// Populated locally after fetching; never sent to the API.
	CalendarID      string `json:"-"`
	CalendarSummary string `json:"-"`
}

// EventPatch carries the subset of fields a mutation changes.
type EventPatch struct {
	Start  *EventDateTime `json:"start,omitempty"`
	End    *EventDateTime `json:"end,omitempty"`
	Status string         `json:"status,omitempty"`
}

type ListOptions struct {
	TimeMin time.Time
	TimeMax time.Time
}

// Source is the external calendar collaborator. Every call is scoped by the
// caller's access token; transport retries are the implementation's concern.
type Source interface {
	ListCalendars(ctx context.Context, token string) ([]CalendarListEntry, error)
	ListEvents(ctx context.Context, token, calendarID string, opts ListOptions) ([]Event, error)
	GetEvent(ctx context.Context, token, calendarID, eventID string) (*Event, error)
	CreateEvent(ctx context.Context, token, calendarID string, ev Event) (string, error)
	PatchEvent(ctx context.Context, token, calendarID, eventID string, patch EventPatch) error
	DeleteEvent(ctx context.Context, token, calendarID, eventID string) error
}
