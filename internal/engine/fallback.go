package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/solvik/meetwise/internal/resolve"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/tools"
	"github.com/solvik/meetwise/pkg/schema"
)

// classifyCondition maps a failed step result to the fallback condition
// it triggers. Non-failed statuses carry their condition directly; a
// generic failure is classified from its message.
func classifyCondition(res *schema.StepResult) schema.Condition {
	if res.Status != schema.StepFailed {
		return res.Status.Condition()
	}
	msg := strings.ToLower(res.Message)
	switch {
	case strings.Contains(msg, "unknown action"):
		return schema.CondUnknownAction
	case strings.Contains(msg, "transcript"):
		return schema.CondNoTranscript
	}
	return schema.CondToolFailure
}

// recoverStep walks the step's fallback chain after a failure. It
// returns a terminal result to short-circuit the run, or recovered=true
// when a fallback repaired the step and the workflow may continue.
//
// Chain entries that do not match the condition are passed over without
// spending budget. Matching entries spend their budget before they
// execute. An entry may decline (nil outcome), which moves the walk to
// the next entry; the first entry that succeeds or skips ends the walk.
// A fallback that itself raises an error aborts the run rather than
// cascading into further recovery.
func (e *Engine) recoverStep(ctx context.Context, stepIndex int, step schema.Step, failed *schema.StepResult, req Request, ec *ExecutionContext, rs *RunState, now time.Time) (terminal *schema.TerminalResult, recovered bool) {
	cond := classifyCondition(failed)

	if len(step.Fallbacks) == 0 {
		if failed.Status == schema.StepAmbiguous && len(failed.Candidates) > 0 {
			return selectionRequest(step, "", failed.Candidates), false
		}
		if cond == schema.CondUnknownAction {
			return schema.WorkflowFailure(failed.Message), false
		}
		return &schema.TerminalResult{
			ToolName: step.Tool,
			Error:    fmt.Sprintf("Step '%s' did not produce required output", step.Action),
		}, false
	}

	var lastAttempted *schema.Fallback
	for i := range step.Fallbacks {
		fb := step.Fallbacks[i]
		if !fb.Matches(cond) {
			continue
		}
		if rs.entryBudgetExhausted(stepIndex, fb) {
			continue
		}
		if rs.globalBudgetExceeded() {
			return schema.WorkflowFailure(fmt.Sprintf(
				"Fallback budget exceeded (%d attempts), aborting workflow", maxGlobalFallbacks)), false
		}
		rs.consumeFallback(stepIndex, fb)
		lastAttempted = &step.Fallbacks[i]

		e.logger.InfoContext(ctx, "attempting fallback",
			"run_id", rs.RunID, "step", step.Action, "fallback", fb.Action, "condition", cond)

		out, err := e.runFallback(ctx, fb, step, failed, req, ec, now)
		if err != nil {
			return schema.WorkflowFailure(fmt.Sprintf(
				"Fallback '%s' failed: %s", fb.Action, errMessage(err))), false
		}
		if out == nil {
			continue
		}
		ec.record(out.result)
		ec.merge(out)
		if out.terminal != nil {
			return out.terminal, false
		}
		if out.result.Status == schema.StepSuccess || out.result.Status == schema.StepSkipped {
			return nil, true
		}
	}

	if lastAttempted == nil && failed.Status == schema.StepAmbiguous && len(failed.Candidates) > 0 {
		return selectionRequest(step, "", failed.Candidates), false
	}
	last := "none"
	if lastAttempted != nil {
		last = string(lastAttempted.Action)
	}
	return schema.WorkflowFailure(fmt.Sprintf(
		"All fallbacks failed for step '%s' (last attempted: %s)", step.Action, last)), false
}

func (e *Engine) runFallback(ctx context.Context, fb schema.Fallback, step schema.Step, failed *schema.StepResult, req Request, ec *ExecutionContext, now time.Time) (*stepOutcome, error) {
	switch fb.Action {
	case schema.FallbackResolveFromCalendar:
		return e.fallbackResolveFromCalendar(ctx, fb, step, req, now)
	case schema.FallbackUseLastSelected:
		return e.fallbackUseLastSelected(ctx, step, req)
	case schema.FallbackForceSummarization:
		return e.fallbackForceSummarization(ctx, ec)
	case schema.FallbackSkipStep:
		msg := fb.MessageToUser
		if msg == "" {
			msg = "step skipped"
		}
		return &stepOutcome{
			result: &schema.StepResult{Action: step.Action, Tool: step.Tool, Status: schema.StepSkipped, Message: msg},
		}, nil
	case schema.FallbackAskUser:
		msg := fb.MessageToUser
		if msg == "" {
			msg = "I couldn't identify the meeting. Could you clarify which meeting you mean?"
		}
		return &stepOutcome{
			result: &schema.StepResult{
				Action: step.Action, Tool: step.Tool,
				Status: schema.StepAmbiguous, Message: msg, Candidates: failed.Candidates,
			},
			terminal: &schema.TerminalResult{
				ToolName:          step.Tool,
				Action:            "select_meeting",
				Message:           msg,
				MeetingOptions:    failed.Candidates,
				RequiresSelection: true,
			},
		}, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeUnknownAction, "unknown fallback action '%s'", fb.Action)
}

// fallbackResolveFromCalendar retries meeting resolution against the
// calendar. A lone candidate is taken without asking: the user already
// asked for the meeting to be acted on. Multiple candidates go through
// the auto-resolution heuristic before falling back to a selection
// request.
func (e *Engine) fallbackResolveFromCalendar(ctx context.Context, fb schema.Fallback, step schema.Step, req Request, now time.Time) (*stepOutcome, error) {
	event, options, err := e.finder.FindInCalendar(ctx, resolve.CalendarQuery{
		ClientName:      req.Selection.ClientName,
		TargetDate:      req.Selection.TargetDate,
		SelectedNumber:  req.Selection.MeetingNumber,
		CalendarEventID: req.Selection.CalendarEventID,
		UserID:          req.UserID,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}

	if event == nil && len(options) > 0 {
		if resolved := e.finder.AutoResolveLast(ctx, req.Message, req.Intent, req.Selection.TargetDate, options); resolved != nil {
			event = resolved
		} else if len(options) == 1 && options[0].CalendarEventID != "" {
			if ev, evErr := e.cal.GetEventByID(ctx, options[0].CalendarEventID); evErr == nil && ev != nil {
				event = ev
			}
		}
	}

	if event != nil {
		out := successOutcome(step)
		out.result.Message = "resolved meeting from calendar"
		out.event = event
		out.structured["calendar_event_id"] = event.ID
		return out, nil
	}
	if len(options) > 0 {
		return &stepOutcome{
			result: &schema.StepResult{
				Action: step.Action, Tool: step.Tool,
				Status: schema.StepAmbiguous, Candidates: options,
			},
			terminal: selectionRequest(step, fb.MessageToUser, options),
		}, nil
	}
	return nil, nil
}

// fallbackUseLastSelected resurrects the meeting the user picked last
// time a candidate list was offered. Declines when no memory exists or
// when the remembered meeting is gone.
func (e *Engine) fallbackUseLastSelected(ctx context.Context, step schema.Step, req Request) (*stepOutcome, error) {
	entry, err := e.store.GetMemory(ctx, req.UserID, store.MemoryLastSelectedMeeting)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	id, ok := parseMeetingID(entry.Value)
	if !ok {
		return nil, nil
	}
	m, err := e.store.GetMeeting(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	out := successOutcome(step)
	out.result.Message = "using last selected meeting"
	out.meetingID = &m.ID
	out.structured["meeting_id"] = m.ID
	out.structured["meeting_title"] = m.Title
	if m.MeetingDate != nil {
		out.structured["meeting_date"] = m.MeetingDate.Format("2006-01-02")
	}
	return out, nil
}

// fallbackForceSummarization summarizes from calendar metadata alone
// when no transcript could be obtained.
func (e *Engine) fallbackForceSummarization(ctx context.Context, ec *ExecutionContext) (*stepOutcome, error) {
	in := tools.SummarizeInput{
		Title:     stringField(ec.StructuredData, "meeting_title"),
		Date:      stringField(ec.StructuredData, "meeting_date"),
		Attendees: stringField(ec.StructuredData, "attendees"),
	}
	if in.Title == "" && ec.CalendarEvent != nil {
		in.Title = ec.CalendarEvent.Summary
		in.Attendees = ec.CalendarEvent.AttendeeNames()
	}
	result, err := e.summarizer.Summarize(ctx, in)
	if err != nil {
		return nil, err
	}

	summary := stringField(result, "summary")
	e.persistSummary(ctx, ec.MeetingID, summary)

	out := &stepOutcome{
		result: &schema.StepResult{
			Action: schema.ActionSummarize, Tool: "summarization",
			Status: schema.StepSuccess, Output: result,
			Message: "summarized without transcript",
		},
		structured: map[string]any{"summary": summary},
		final:      true,
	}
	return out, nil
}

func selectionRequest(step schema.Step, message string, options []schema.MeetingOption) *schema.TerminalResult {
	if message == "" {
		message = fmt.Sprintf("I found %d meetings that match. Which one do you mean?", len(options))
	}
	return &schema.TerminalResult{
		ToolName:          step.Tool,
		Action:            "select_meeting",
		Message:           message,
		MeetingOptions:    options,
		RequiresSelection: true,
	}
}

// parseMeetingID accepts the two shapes the memory value historically
// takes: a bare JSON number or a numeric string.
func parseMeetingID(raw json.RawMessage) (int64, bool) {
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}

func errMessage(err error) string {
	var we *schema.WorkflowError
	if errors.As(err, &we) {
		return we.Message
	}
	return err.Error()
}
