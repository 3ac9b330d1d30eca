// Package calendar defines the calendar provider boundary and the event
// helpers the rest of the system builds on.
package calendar

import (
	"context"
	"time"
)

// Service is the calendar provider boundary. Implementations wrap a real
// provider API; tests substitute fakes.
type Service interface {
	// GetEventByID fetches a single event, or nil if it does not exist.
	GetEventByID(ctx context.Context, eventID string) (*Event, error)
	// ListEventsByTimeRange returns all events starting in [start, end).
	ListEventsByTimeRange(ctx context.Context, start, end time.Time) ([]*Event, error)
	// SearchByKeyword returns past events from the last daysBack days
	// whose summary, description, or location contains the keyword
	// (case-insensitive), capped at limit.
	SearchByKeyword(ctx context.Context, keyword string, daysBack, limit int) ([]*Event, error)
}

// Event is a provider-neutral calendar event.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Organizer   *Attendee  `json:"organizer,omitempty"`
	HangoutLink string     `json:"hangout_link,omitempty"`
}

// EventTime carries either a full timestamp or an all-day date.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Attendee is one participant on an event.
type Attendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}
