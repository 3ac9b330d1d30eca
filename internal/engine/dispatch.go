package engine

import (
	"context"
	"time"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/resolve"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/tools"
	"github.com/solvik/meetwise/pkg/schema"
)

// stepOutcome is what one step (or fallback) execution hands back to
// the engine loop: the audit record plus the context updates it earned.
// terminal short-circuits the run, final marks the output as a
// candidate final result.
type stepOutcome struct {
	result     *schema.StepResult
	meetingID  *int64
	event      *calendar.Event
	structured map[string]any
	terminal   *schema.TerminalResult
	final      bool
}

func successOutcome(step schema.Step) *stepOutcome {
	return &stepOutcome{
		result:     &schema.StepResult{Action: step.Action, Tool: step.Tool, Status: schema.StepSuccess},
		structured: make(map[string]any),
	}
}

func failedOutcome(step schema.Step, status schema.StepStatus, message string) *stepOutcome {
	return &stepOutcome{
		result: &schema.StepResult{Action: step.Action, Tool: step.Tool, Status: status, Message: message},
	}
}

// dispatch executes one plan step. Failures come back as outcomes with
// a non-success status, never as Go errors: the loop classifies them
// into fallback conditions.
func (e *Engine) dispatch(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext, now time.Time) *stepOutcome {
	switch step.Action {
	case schema.ActionFindMeeting:
		return e.runFindMeeting(ctx, step, req, now)
	case schema.ActionRetrieveCalendarEvent:
		return e.runRetrieveCalendarEvent(ctx, step, req, now)
	case schema.ActionRetrieveTranscript:
		return e.runRetrieveTranscript(ctx, step, req, ec)
	case schema.ActionSummarize:
		return e.runSummarize(ctx, step, req, ec)
	case schema.ActionGenerateFollowup:
		return e.runGenerateFollowup(ctx, step, req, ec)
	case schema.ActionGenerateBrief:
		return e.runGenerateBrief(ctx, step, req, ec)
	case schema.ActionRetrieveMemory:
		return e.runRetrieveMemory(ctx, step, req)
	}
	return failedOutcome(step, schema.StepFailed, "Unknown action: "+string(step.Action))
}

// runFindMeeting resolves against the database only. Calendar
// resolution is a recovery concern, reached through the
// resolve_meeting_from_calendar fallback.
func (e *Engine) runFindMeeting(ctx context.Context, step schema.Step, req Request, now time.Time) *stepOutcome {
	id, err := e.finder.FindInDatabase(ctx, resolve.DatabaseQuery{
		MeetingID:  req.Selection.MeetingID,
		ClientID:   req.ClientID,
		UserID:     req.UserID,
		ClientName: req.Selection.ClientName,
		TargetDate: req.Selection.TargetDate,
		Now:        now,
	})
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "database lookup failed: "+err.Error())
	}
	if id == nil {
		return failedOutcome(step, schema.StepNotFound, "No meeting found in database")
	}
	out := successOutcome(step)
	out.meetingID = id
	out.structured["meeting_id"] = *id
	return out
}

func (e *Engine) runRetrieveCalendarEvent(ctx context.Context, step schema.Step, req Request, now time.Time) *stepOutcome {
	event, options, err := e.finder.FindInCalendar(ctx, resolve.CalendarQuery{
		ClientName:      req.Selection.ClientName,
		TargetDate:      req.Selection.TargetDate,
		SelectedNumber:  req.Selection.MeetingNumber,
		CalendarEventID: req.Selection.CalendarEventID,
		UserID:          req.UserID,
		Now:             now,
	})
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "calendar lookup failed: "+err.Error())
	}
	if event == nil && len(options) > 0 {
		event = e.finder.AutoResolveLast(ctx, req.Message, req.Intent, req.Selection.TargetDate, options)
	}
	if event != nil {
		out := successOutcome(step)
		out.event = event
		out.structured["calendar_event_id"] = event.ID
		return out
	}
	if len(options) > 0 {
		out := failedOutcome(step, schema.StepAmbiguous, "Multiple meetings match")
		out.result.Candidates = options
		return out
	}
	return failedOutcome(step, schema.StepNoCalendar, "No matching calendar event found")
}

// runRetrieveTranscript works from whichever resolution the context
// holds. A database meeting without a stored transcript gets one more
// fetch attempt against the recording provider; a bare calendar event
// goes through ingestion, which also persists the meeting row.
func (e *Engine) runRetrieveTranscript(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext) *stepOutcome {
	if ec.MeetingID != nil {
		return e.transcriptFromMeeting(ctx, step, *ec.MeetingID)
	}
	if ec.CalendarEvent != nil {
		return e.transcriptFromEvent(ctx, step, req, ec.CalendarEvent)
	}
	return failedOutcome(step, schema.StepNotFound, "No meeting resolved before transcript retrieval")
}

func (e *Engine) transcriptFromMeeting(ctx context.Context, step schema.Step, meetingID int64) *stepOutcome {
	m, err := e.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "loading meeting failed: "+err.Error())
	}

	transcript := m.Transcript
	if transcript == "" && m.ZoomMeetingID != "" && e.transcripts != nil {
		fetched, err := e.transcripts.FetchTranscript(ctx, m.ZoomMeetingID, m.MeetingDate)
		if err != nil {
			e.logger.WarnContext(ctx, "transcript fetch failed",
				"meeting_id", m.ID, "zoom_meeting_id", m.ZoomMeetingID, "error", err)
		} else if tools.ValidTranscript(fetched) {
			transcript = fetched
			if err := e.store.UpdateMeeting(ctx, m.ID, store.MeetingUpdate{Transcript: &fetched}); err != nil {
				e.logger.WarnContext(ctx, "failed to persist transcript", "meeting_id", m.ID, "error", err)
			}
		}
	}

	var out *stepOutcome
	if transcript != "" {
		out = successOutcome(step)
		out.structured["transcript"] = transcript
		out.structured["has_transcript"] = true
		if m.MeetingDate != nil {
			out.structured["recording_date"] = calendar.FormatDisplay(*m.MeetingDate)
		}
	} else {
		out = failedOutcome(step, schema.StepNoTranscript, "No transcript available for this meeting")
		out.structured = make(map[string]any)
		out.structured["has_transcript"] = false
	}
	out.meetingID = &m.ID
	out.structured["meeting_title"] = m.Title
	if m.MeetingDate != nil {
		out.structured["meeting_date"] = calendar.FormatDisplay(*m.MeetingDate)
	}
	if m.Attendees != "" {
		out.structured["attendees"] = m.Attendees
	}
	if m.Summary != "" {
		out.structured["previous_summary"] = m.Summary
	}
	return out
}

func (e *Engine) transcriptFromEvent(ctx context.Context, step schema.Step, req Request, event *calendar.Event) *stepOutcome {
	res, err := e.ingestor.ProcessEvent(ctx, event, req.UserID, req.ClientID)
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "processing calendar event failed: "+err.Error())
	}

	var out *stepOutcome
	if res.HasTranscript {
		out = successOutcome(step)
		out.structured["transcript"] = res.Transcript
		out.structured["recording_date"] = res.RecordingDate
	} else {
		out = failedOutcome(step, schema.StepNoTranscript, "No transcript available for this meeting")
		out.structured = make(map[string]any)
	}
	out.meetingID = res.MeetingID
	out.structured["has_transcript"] = res.HasTranscript
	out.structured["meeting_title"] = res.Title
	out.structured["meeting_date"] = res.Date
	if res.Attendees != "" {
		out.structured["attendees"] = res.Attendees
	}
	return out
}

func (e *Engine) runSummarize(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext) *stepOutcome {
	in := tools.SummarizeInput{
		Transcript:    stringField(ec.StructuredData, "transcript"),
		Title:         stringField(ec.StructuredData, "meeting_title"),
		Date:          stringField(ec.StructuredData, "meeting_date"),
		RecordingDate: stringField(ec.StructuredData, "recording_date"),
		Attendees:     stringField(ec.StructuredData, "attendees"),
		HasTranscript: boolField(ec.StructuredData, "has_transcript"),
	}
	result, err := e.summarizer.Summarize(ctx, in)
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "summarization failed: "+err.Error())
	}

	summary := stringField(result, "summary")
	if previous := stringField(ec.StructuredData, "previous_summary"); previous != "" && e.deltas != nil {
		deltas := e.deltas.Compute(ctx, summary, []string{previous})
		if section := tools.BuildDeltaSection(deltas); section != "" {
			summary += section
			result["summary"] = summary
		}
	}
	e.persistSummary(ctx, ec.MeetingID, summary)

	out := successOutcome(step)
	out.result.Output = result
	out.structured["summary"] = summary
	if decisions, ok := result["decisions"]; ok {
		out.structured["decisions"] = decisions
	}
	out.final = true
	return out
}

func (e *Engine) persistSummary(ctx context.Context, meetingID *int64, summary string) {
	if meetingID == nil || summary == "" {
		return
	}
	if err := e.store.UpdateMeeting(ctx, *meetingID, store.MeetingUpdate{Summary: &summary}); err != nil {
		e.logger.WarnContext(ctx, "failed to persist summary", "meeting_id", *meetingID, "error", err)
	}
}

func (e *Engine) runGenerateFollowup(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext) *stepOutcome {
	in := tools.FollowupInput{
		MeetingTitle:      stringField(ec.StructuredData, "meeting_title"),
		MeetingDate:       stringField(ec.StructuredData, "meeting_date"),
		Summary:           stringField(ec.StructuredData, "summary"),
		Decisions:         stringSlice(ec.StructuredData["decisions"]),
		ClientName:        req.Selection.ClientName,
		AdditionalContext: req.Message,
	}
	result, err := e.followups.Generate(ctx, in)
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "follow-up generation failed: "+err.Error())
	}
	out := successOutcome(step)
	out.result.Output = result
	out.final = true
	return out
}

func (e *Engine) runGenerateBrief(ctx context.Context, step schema.Step, req Request, ec *ExecutionContext) *stepOutcome {
	previous := stringField(ec.StructuredData, "previous_summary")
	if previous == "" {
		previous = stringField(ec.StructuredData, "summary")
	}
	in := tools.BriefInput{
		ClientName:      req.Selection.ClientName,
		MeetingTitle:    stringField(ec.StructuredData, "meeting_title"),
		MeetingDate:     stringField(ec.StructuredData, "meeting_date"),
		Attendees:       stringField(ec.StructuredData, "attendees"),
		PreviousSummary: previous,
		ClientContext:   req.Message,
	}
	result, err := e.briefs.Generate(ctx, in)
	if err != nil {
		return failedOutcome(step, schema.StepFailed, "brief generation failed: "+err.Error())
	}
	out := successOutcome(step)
	out.result.Output = result
	out.final = true
	return out
}

// runRetrieveMemory loads the user's stored context. Absence of a
// memory entry is a normal outcome, not a failure.
func (e *Engine) runRetrieveMemory(ctx context.Context, step schema.Step, req Request) *stepOutcome {
	entry, err := e.store.GetMemory(ctx, req.UserID, store.MemoryLastSelectedMeeting)
	if err != nil {
		if store.IsNotFound(err) {
			out := successOutcome(step)
			out.result.Message = "no stored memory"
			return out
		}
		return failedOutcome(step, schema.StepFailed, "memory lookup failed: "+err.Error())
	}
	out := successOutcome(step)
	out.structured["memory"] = string(entry.Value)
	out.result.Output = map[string]any{"memory": string(entry.Value)}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
