package store

import (
	"encoding/json"
	"time"
)

// Meeting is a persisted meeting record. A row exists per calendar event
// the user has ingested, whether or not a transcript is available yet.
type Meeting struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ClientID        *int64     `json:"client_id,omitempty"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	ZoomMeetingID   string     `json:"zoom_meeting_id,omitempty"`
	Title           string     `json:"title"`
	MeetingDate     *time.Time `json:"meeting_date,omitempty"`
	Attendees       string     `json:"attendees,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasTranscript reports whether a usable transcript is stored.
func (m *Meeting) HasTranscript() bool {
	return m != nil && m.Transcript != ""
}

// MeetingUpdate is a partial update; nil fields are left untouched.
type MeetingUpdate struct {
	ClientID    *int64
	Title       *string
	MeetingDate *time.Time
	Attendees   *string
	Transcript  *string
	Notes       *string
	Summary     *string
}

// MeetingFilter narrows ListMeetings results.
type MeetingFilter struct {
	UserID            int64
	ClientID          *int64
	From              *time.Time
	To                *time.Time
	MissingTranscript bool
	Limit             int
}

// Client is a persisted client (account) the user meets with.
type Client struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryEntry is a per-user key-value record, e.g. the last meeting the
// user selected from a candidate list.
type MemoryEntry struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	ClientID  *int64          `json:"client_id,omitempty"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Well-known memory keys.
const (
	MemoryLastSelectedMeeting = "last_selected_meeting"
)
