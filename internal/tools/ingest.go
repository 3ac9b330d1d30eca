package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/llm"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/pkg/schema"
)

const clientInferenceTemperature = 0.3

// Ingestor turns a calendar event into a persisted meeting row: extracts
// the conferencing meeting id, fetches and validates the transcript, and
// infers the client when the caller does not know it.
type Ingestor struct {
	store       store.Store
	transcripts TranscriptService
	llm         llm.Service
	logger      *slog.Logger
}

func NewIngestor(st store.Store, ts TranscriptService, svc llm.Service, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: st, transcripts: ts, llm: svc, logger: logger}
}

// IngestResult is the structured data handed to the summarization step.
type IngestResult struct {
	MeetingID     *int64
	Title         string
	Date          string
	RecordingDate string
	Attendees     string
	Transcript    string
	HasTranscript bool
}

// ProcessEvent processes a calendar event for summarization. A meeting row
// is created even when no transcript was found so that summaries and
// decisions can attach to it later. An existing row for the same
// (user, calendar event) is reused rather than duplicated.
func (g *Ingestor) ProcessEvent(ctx context.Context, event *calendar.Event, userID int64, clientID *int64) (*IngestResult, error) {
	start := event.StartTime()
	if start.IsZero() {
		return nil, schema.NewErrorf(schema.ErrCodeCalendar, "calendar event %s has no valid start time", event.ID)
	}

	result := &IngestResult{
		Title:     orDefault(event.Summary, "Untitled"),
		Date:      calendar.FormatDisplay(start),
		Attendees: event.AttendeeNames(),
	}

	zoomID := event.ZoomMeetingID()
	if zoomID == "" {
		// Calendar-only data; nothing to persist without a recording source.
		return result, nil
	}

	transcript := g.fetchTranscript(ctx, zoomID, start)
	result.Transcript = transcript
	result.HasTranscript = transcript != ""
	if result.HasTranscript {
		result.RecordingDate = result.Date
	}

	meetingID, err := g.upsertMeeting(ctx, event, userID, clientID, zoomID, start, transcript)
	if err != nil {
		return nil, err
	}
	result.MeetingID = meetingID
	return result, nil
}

func (g *Ingestor) fetchTranscript(ctx context.Context, zoomID string, expected time.Time) string {
	transcript, err := g.transcripts.FetchTranscript(ctx, zoomID, &expected)
	if err != nil {
		g.logger.WarnContext(ctx, "transcript fetch failed", "zoom_meeting_id", zoomID, "error", err)
		return ""
	}
	if !ValidTranscript(transcript) {
		return ""
	}
	return transcript
}

func (g *Ingestor) upsertMeeting(ctx context.Context, event *calendar.Event, userID int64, clientID *int64, zoomID string, start time.Time, transcript string) (*int64, error) {
	if existing, err := g.store.GetMeetingByCalendarEventID(ctx, userID, event.ID); err == nil {
		if transcript != "" && !existing.HasTranscript() {
			update := store.MeetingUpdate{Transcript: &transcript}
			if err := g.store.UpdateMeeting(ctx, existing.ID, update); err != nil {
				g.logger.WarnContext(ctx, "failed to attach transcript", "meeting_id", existing.ID, "error", err)
			}
		}
		return &existing.ID, nil
	} else if !store.IsNotFound(err) {
		return nil, err
	}

	if clientID == nil {
		clientID = g.InferClient(ctx, event.Summary, event.AttendeeNames(), userID)
	}

	meeting := &store.Meeting{
		UserID:          userID,
		ClientID:        clientID,
		CalendarEventID: event.ID,
		ZoomMeetingID:   zoomID,
		Title:           orDefault(event.Summary, "Untitled"),
		MeetingDate:     &start,
		Attendees:       event.AttendeeNames(),
		Transcript:      transcript,
	}
	if err := g.store.CreateMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	return &meeting.ID, nil
}

// InferClient resolves a client id from the meeting title and attendees.
// Direct name matching is tried first; the language model is a last
// resort. Inference is best-effort and returns nil when unsure.
func (g *Ingestor) InferClient(ctx context.Context, title, attendees string, userID int64) *int64 {
	if title == "" {
		return nil
	}

	if id := g.matchClientName(ctx, title, userID); id != nil {
		return id
	}

	// Word-level pass catches "Acme quarterly sync" style titles.
	for _, word := range strings.Fields(title) {
		word = strings.Trim(word, ".,:;!?()")
		if len(word) < 3 {
			continue
		}
		if id := g.matchClientName(ctx, word, userID); id != nil {
			return id
		}
	}

	name := g.inferClientNameLLM(ctx, title, attendees)
	if name == "" {
		return nil
	}
	return g.matchClientName(ctx, name, userID)
}

func (g *Ingestor) matchClientName(ctx context.Context, name string, userID int64) *int64 {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	clients, err := g.store.SearchClientsByName(ctx, userID, name)
	if err != nil || len(clients) == 0 {
		return nil
	}
	for _, c := range clients {
		if strings.EqualFold(c.Name, name) {
			return &c.ID
		}
	}
	return &clients[0].ID
}

func (g *Ingestor) inferClientNameLLM(ctx context.Context, title, attendees string) string {
	var sb strings.Builder
	sb.WriteString("Meeting Title: " + title)
	if attendees != "" && attendees != "Not specified" {
		sb.WriteString("\nAttendees: " + attendees)
	}

	prompt := `Analyze the following meeting information and extract the client or company name.

` + sb.String() + `

Extract the client/company name from this meeting information.
- Look for company names, client names, or organization names
- Ignore common words like "meeting", "call", "discussion"
- Return only the client/company name, nothing else
- If you cannot identify a clear client name, return "null"

Respond with just the client name or "null" if unclear.`

	out, err := g.llm.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: clientInferenceTemperature,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "client inference failed", "error", err)
		return ""
	}

	name := strings.TrimSpace(out)
	switch strings.ToLower(name) {
	case "null", "none", "n/a", "unknown", "":
		return ""
	}
	return name
}
