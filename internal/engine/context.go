package engine

import (
	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/pkg/schema"
)

// ExecutionContext is the mutable state accumulated across one workflow
// run. It is owned exclusively by that run and mutated only by the
// engine after a step or fallback completes, never by handlers directly.
type ExecutionContext struct {
	MeetingID      *int64
	CalendarEvent  *calendar.Event
	StructuredData map[string]any
	StepResults    []*schema.StepResult

	// Candidate final result: the output of the last terminal tool
	// (summarization, followup, brief) that succeeded.
	finalTool   string
	finalOutput map[string]any
}

func newExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		StructuredData: make(map[string]any),
	}
}

// record appends a step result to the audit trail. Results are never
// mutated after being recorded.
func (c *ExecutionContext) record(res *schema.StepResult) {
	c.StepResults = append(c.StepResults, res)
}

// merge folds a step outcome into the context. Resolution data (meeting
// id, calendar event, structured fields) is merged even for partial
// outcomes: a transcript fetch that found the meeting but no recording
// still resolved the meeting.
func (c *ExecutionContext) merge(o *stepOutcome) {
	if o == nil {
		return
	}
	if o.meetingID != nil {
		c.MeetingID = o.meetingID
	}
	if o.event != nil {
		c.CalendarEvent = o.event
	}
	for k, v := range o.structured {
		c.StructuredData[k] = v
	}
	if o.final && o.result != nil && o.result.Status == schema.StepSuccess {
		c.finalTool = o.result.Tool
		c.finalOutput = o.result.Output
	}
}

// celData builds the evaluation scope for per-step "when" conditions.
func (c *ExecutionContext) celData(intent string, userID int64) map[string]any {
	contextMap := map[string]any{
		"intent":      intent,
		"user_id":     userID,
		"has_meeting": c.MeetingID != nil || c.CalendarEvent != nil,
	}
	if c.MeetingID != nil {
		contextMap["meeting_id"] = *c.MeetingID
	}
	if v, ok := c.StructuredData["has_transcript"]; ok {
		contextMap["has_transcript"] = v
	}
	return map[string]any{
		"context": contextMap,
		"data":    c.StructuredData,
	}
}
