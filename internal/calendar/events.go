package calendar

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// ParseISO parses an ISO timestamp or bare date, defaulting to UTC when
// no zone is present. Returns the zero time if the string cannot be parsed.
func ParseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// StartTime extracts the event's start as a UTC time. All-day events
// resolve to midnight UTC. Returns the zero time when no start is set.
func (e *Event) StartTime() time.Time {
	if e == nil {
		return time.Time{}
	}
	if e.Start.DateTime != "" {
		return ParseISO(e.Start.DateTime)
	}
	return ParseISO(e.Start.Date)
}

// StartsBefore reports whether the event started strictly before t.
// Events with no parsable start are treated as infinitely old.
func (e *Event) StartsBefore(t time.Time) bool {
	return e.StartTime().Before(t)
}

// FormatDisplay renders a time for user-facing text, e.g.
// "November 21, 2024 at 10:00 AM".
func FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format("January 2, 2006 at 3:04 PM")
}

// SortByDate sorts events most recent first. Events without a parsable
// start sink to the end. The sort is stable so provider order breaks ties.
func SortByDate(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime().After(events[j].StartTime())
	})
}

// AttendeeNames returns a comma-separated list of attendee display names,
// falling back to emails, or "Not specified" when the event has none.
func (e *Event) AttendeeNames() string {
	if e == nil || len(e.Attendees) == 0 {
		return "Not specified"
	}
	var names []string
	for _, att := range e.Attendees {
		switch {
		case att.DisplayName != "":
			names = append(names, att.DisplayName)
		case att.Email != "":
			names = append(names, att.Email)
		}
	}
	if len(names) == 0 {
		return "Not specified"
	}
	return strings.Join(names, ", ")
}

// MatchesKeyword reports whether the keyword appears in the event's
// summary, description, or location, case-insensitively.
func (e *Event) MatchesKeyword(keyword string) bool {
	if e == nil || keyword == "" {
		return false
	}
	k := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(e.Summary), k) ||
		strings.Contains(strings.ToLower(e.Description), k) ||
		strings.Contains(strings.ToLower(e.Location), k)
}

var zoomMeetingIDRe = regexp.MustCompile(`zoom\.us/j/(\d{9,11})`)

// ZoomMeetingID extracts the numeric Zoom meeting ID from the event's
// join link, wherever the provider put it. Returns "" when absent.
func (e *Event) ZoomMeetingID() string {
	if e == nil {
		return ""
	}
	for _, field := range []string{e.Location, e.Description, e.HangoutLink} {
		if m := zoomMeetingIDRe.FindStringSubmatch(field); m != nil {
			return m[1]
		}
	}
	return ""
}
