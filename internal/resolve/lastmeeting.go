package resolve

import (
	"context"
	"time"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/extract"
	"github.com/solvik/meetwise/pkg/schema"
)

// summarizationIntents are the intents the recency heuristic applies to.
var summarizationIntents = map[string]bool{
	"summarize_meeting": true,
	"summarization":     true,
}

// AutoResolveLast collapses an ambiguous candidate list to the most
// recent entry, but only when the user's phrasing makes that safe:
// a summarization intent, no explicit date, at least two candidates,
// and recency language ("last", "latest", "most recent") in the message.
// Resolution is best-effort: if re-fetching the chosen event fails, the
// heuristic declines rather than propagating the error.
func (f *Finder) AutoResolveLast(ctx context.Context, message, intent string, targetDate *time.Time, options []schema.MeetingOption) *calendar.Event {
	if !summarizationIntents[intent] {
		return nil
	}
	if targetDate != nil {
		return nil
	}
	if len(options) < 2 {
		return nil
	}
	if !extract.HasRecencyLanguage(message) {
		return nil
	}

	// Candidates are already sorted newest first.
	eventID := options[0].CalendarEventID
	if eventID == "" {
		return nil
	}
	event, err := f.cal.GetEventByID(ctx, eventID)
	if err != nil || event == nil {
		f.logger.DebugContext(ctx, "auto-resolution fetch failed, declining", "event_id", eventID, "error", err)
		return nil
	}
	return event
}
