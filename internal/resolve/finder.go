// Package resolve finds the meeting a user is talking about, first in the
// database, then in the calendar, surfacing candidates when ambiguous.
package resolve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/extract"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/pkg/schema"
)

const (
	meetingLookupLimit = 50
	lookbackDays       = 90
	dateWindowDays     = 3
)

// Finder resolves meeting references against the database and the calendar.
type Finder struct {
	store  store.Store
	cal    calendar.Service
	logger *slog.Logger
}

// NewFinder builds a Finder.
func NewFinder(st store.Store, cal calendar.Service, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{store: st, cal: cal, logger: logger}
}

// DatabaseQuery carries the hints for a database lookup.
type DatabaseQuery struct {
	MeetingID  *int64
	ClientID   *int64
	UserID     int64
	ClientName string
	TargetDate *time.Time
	Now        time.Time
}

// FindInDatabase resolves a meeting ID from the database, or nil when
// nothing matches. The hint branches are strict priority: once a branch
// is entered, a miss inside it never falls through to a broader search.
func (f *Finder) FindInDatabase(ctx context.Context, q DatabaseQuery) (*int64, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// An explicit ID is authoritative: verify it exists, never re-resolve.
	if q.MeetingID != nil {
		m, err := f.store.GetMeeting(ctx, *q.MeetingID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return &m.ID, nil
	}

	if q.ClientName != "" && q.UserID != 0 {
		clients, err := f.store.SearchClientsByName(ctx, q.UserID, q.ClientName)
		if err != nil {
			return nil, err
		}
		if len(clients) == 0 {
			// A named-but-unknown client must not become "pick any of
			// the user's meetings".
			f.logger.DebugContext(ctx, "no clients match name", "client_name", q.ClientName)
			return nil, nil
		}
		return f.mostRecentForClient(ctx, clients[0].ID, q.TargetDate, now)
	}

	if q.ClientID != nil {
		return f.mostRecentForClient(ctx, *q.ClientID, q.TargetDate, now)
	}

	if q.UserID != 0 {
		meetings, err := f.store.ListMeetings(ctx, store.MeetingFilter{
			UserID: q.UserID,
			Limit:  meetingLookupLimit,
		})
		if err != nil {
			return nil, err
		}
		past := pastMeetings(meetings, now)
		if len(past) == 0 {
			return nil, nil
		}
		return &past[0].ID, nil
	}

	return nil, nil
}

func (f *Finder) mostRecentForClient(ctx context.Context, clientID int64, targetDate *time.Time, now time.Time) (*int64, error) {
	meetings, err := f.store.ListMeetings(ctx, store.MeetingFilter{
		ClientID: &clientID,
		Limit:    meetingLookupLimit,
	})
	if err != nil {
		return nil, err
	}
	past := pastMeetings(meetings, now)
	if len(past) == 0 {
		return nil, nil
	}
	if targetDate != nil {
		for _, m := range past {
			if sameDay(*m.MeetingDate, *targetDate) {
				return &m.ID, nil
			}
		}
		return nil, nil
	}
	return &past[0].ID, nil
}

// pastMeetings keeps meetings scheduled strictly before now, most recent
// first. Meetings without a date are dropped.
func pastMeetings(meetings []*store.Meeting, now time.Time) []*store.Meeting {
	var past []*store.Meeting
	for _, m := range meetings {
		if m.MeetingDate != nil && m.MeetingDate.Before(now) {
			past = append(past, m)
		}
	}
	// ListMeetings already orders by date descending.
	return past
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// CalendarQuery carries the hints for a calendar lookup.
type CalendarQuery struct {
	ClientName      string
	TargetDate      *time.Time
	SelectedNumber  *int
	CalendarEventID string
	UserID          int64
	Now             time.Time
}

// FindInCalendar resolves a meeting reference against the calendar.
// Exactly one of the two return slots is non-nil, or both are nil when
// nothing was found.
func (f *Finder) FindInCalendar(ctx context.Context, q CalendarQuery) (*calendar.Event, []schema.MeetingOption, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Priority 1: explicit event ID. Fetch failure falls through to the
	// searches below rather than failing the whole resolution.
	if q.CalendarEventID != "" {
		event, err := f.cal.GetEventByID(ctx, q.CalendarEventID)
		if err != nil {
			f.logger.WarnContext(ctx, "calendar event fetch failed", "event_id", q.CalendarEventID, "error", err)
		} else if event != nil {
			return event, nil, nil
		}
	}

	if q.ClientName != "" && !extract.IsCommonWord(q.ClientName) {
		if q.TargetDate != nil {
			return f.searchByClientOnDate(ctx, q.ClientName, *q.TargetDate, q.UserID, now)
		}
		return f.searchByClientRecent(ctx, q, now)
	}

	return f.mostRecentEvent(ctx, q, now)
}

// searchByClientOnDate matches events on the exact day, widening to a
// ±3-day window when the day itself has no match. Matches always come
// back as a candidate list, even a single one: a time-ambiguous match
// needs the user's confirmation before a transcript is fetched.
func (f *Finder) searchByClientOnDate(ctx context.Context, clientName string, targetDate time.Time, userID int64, now time.Time) (*calendar.Event, []schema.MeetingOption, error) {
	dayStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := f.cal.ListEventsByTimeRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, nil, err
	}
	matching := filterEvents(events, clientName, now)

	if len(matching) == 0 {
		windowStart := dayStart.AddDate(0, 0, -dateWindowDays)
		windowEnd := dayEnd.AddDate(0, 0, dateWindowDays)
		f.logger.DebugContext(ctx, "no exact-date match, widening window",
			"client_name", clientName, "window_start", windowStart, "window_end", windowEnd)

		windowEvents, err := f.cal.ListEventsByTimeRange(ctx, windowStart, windowEnd)
		if err != nil {
			return nil, nil, err
		}
		matching = filterEvents(windowEvents, clientName, now)
	}

	if len(matching) == 0 {
		return nil, nil, nil
	}
	calendar.SortByDate(matching)
	return nil, f.buildOptions(ctx, matching, userID), nil
}

// searchByClientRecent searches a 90-day lookback window. Title hits
// outrank description/location hits: if any title hit exists the rest
// are discarded entirely.
func (f *Finder) searchByClientRecent(ctx context.Context, q CalendarQuery, now time.Time) (*calendar.Event, []schema.MeetingOption, error) {
	events, err := f.cal.SearchByKeyword(ctx, q.ClientName, lookbackDays, meetingLookupLimit)
	if err != nil {
		return nil, nil, err
	}

	var inTitle, elsewhere []*calendar.Event
	nameLower := strings.ToLower(q.ClientName)
	for _, ev := range events {
		if !ev.StartsBefore(now) {
			continue
		}
		if strings.Contains(strings.ToLower(ev.Summary), nameLower) {
			inTitle = append(inTitle, ev)
		} else {
			elsewhere = append(elsewhere, ev)
		}
	}
	matching := inTitle
	if len(matching) == 0 {
		matching = elsewhere
	}
	calendar.SortByDate(matching)

	if q.SelectedNumber != nil {
		idx := *q.SelectedNumber - 1
		if idx < 0 || idx >= len(matching) {
			return nil, nil, nil
		}
		return matching[idx], nil, nil
	}

	if len(matching) == 0 {
		return nil, nil, nil
	}
	return nil, f.buildOptions(ctx, matching, q.UserID), nil
}

// mostRecentEvent auto-selects the most recent past event when there is
// no disambiguating signal to ask the user about.
func (f *Finder) mostRecentEvent(ctx context.Context, q CalendarQuery, now time.Time) (*calendar.Event, []schema.MeetingOption, error) {
	events, err := f.cal.ListEventsByTimeRange(ctx, now.AddDate(0, 0, -lookbackDays), now)
	if err != nil {
		return nil, nil, err
	}
	var past []*calendar.Event
	for _, ev := range events {
		if ev.StartsBefore(now) {
			past = append(past, ev)
		}
	}
	if len(past) == 0 {
		return nil, nil, nil
	}
	calendar.SortByDate(past)

	if q.SelectedNumber != nil {
		idx := *q.SelectedNumber - 1
		if idx < 0 || idx >= len(past) {
			return nil, nil, nil
		}
		return past[idx], nil, nil
	}
	return past[0], nil, nil
}

// filterEvents keeps keyword matches that started strictly before now.
func filterEvents(events []*calendar.Event, keyword string, now time.Time) []*calendar.Event {
	var out []*calendar.Event
	for _, ev := range events {
		if ev.MatchesKeyword(keyword) && ev.StartsBefore(now) {
			out = append(out, ev)
		}
	}
	return out
}

// buildOptions shapes events into user-facing candidates, linking each
// to its database meeting row when one exists.
func (f *Finder) buildOptions(ctx context.Context, events []*calendar.Event, userID int64) []schema.MeetingOption {
	options := make([]schema.MeetingOption, 0, len(events))
	for _, ev := range events {
		opt := schema.MeetingOption{
			CalendarEventID: ev.ID,
			Title:           titleOrUntitled(ev.Summary),
			Source:          "calendar",
		}
		if start := ev.StartTime(); !start.IsZero() {
			opt.Date = start.Format("2006-01-02")
		}
		if ev.ID != "" && userID != 0 {
			if m, err := f.store.GetMeetingByCalendarEventID(ctx, userID, ev.ID); err == nil {
				opt.MeetingID = &m.ID
			}
		}
		options = append(options, opt)
	}
	return options
}

func titleOrUntitled(s string) string {
	if s == "" {
		return "Untitled"
	}
	return s
}
