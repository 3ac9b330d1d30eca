package schema

// StepStatus tags the outcome of a single step execution.
type StepStatus string

const (
	StepSuccess      StepStatus = "success"
	StepNotFound     StepStatus = "not_found"
	StepNoCalendar   StepStatus = "no_calendar_match"
	StepNoTranscript StepStatus = "no_transcript"
	StepAmbiguous    StepStatus = "ambiguous"
	StepSkipped      StepStatus = "skipped"
	StepFailed       StepStatus = "failed"
)

// Condition maps the status to the fallback condition tag it triggers.
// Success and skipped outcomes return an empty condition.
func (s StepStatus) Condition() Condition {
	switch s {
	case StepNotFound:
		return CondNoDBMatch
	case StepNoCalendar:
		return CondNoCalendarMatch
	case StepNoTranscript:
		return CondNoTranscript
	case StepAmbiguous:
		return CondMultipleMatches
	case StepFailed:
		return CondToolFailure
	}
	return ""
}

// StepResult is the outcome of executing one step (or one fallback action).
type StepResult struct {
	Action     Action          `json:"action"`
	Tool       string          `json:"tool"`
	Status     StepStatus      `json:"status"`
	Output     map[string]any  `json:"output,omitempty"`
	Candidates []MeetingOption `json:"candidates,omitempty"`
	Message    string          `json:"message,omitempty"`
	Err        *WorkflowError  `json:"error,omitempty"`
}

// MeetingOption is one candidate offered to the user when a meeting
// reference is ambiguous.
type MeetingOption struct {
	MeetingID       *int64 `json:"meeting_id,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	Title           string `json:"title"`
	Date            string `json:"date,omitempty"`
	Source          string `json:"source"` // "database" or "calendar"
}

// TerminalResult is the final outcome of a workflow run, shaped for the
// caller boundary. Exactly one of Result, Error, or MeetingOptions is
// the meaningful payload.
type TerminalResult struct {
	ToolName          string          `json:"tool_name"`
	Result            map[string]any  `json:"result,omitempty"`
	Error             string          `json:"error,omitempty"`
	Action            string          `json:"action,omitempty"`
	Message           string          `json:"message,omitempty"`
	MeetingOptions    []MeetingOption `json:"meeting_options,omitempty"`
	RequiresSelection bool            `json:"requires_selection,omitempty"`
}

// WorkflowFailure builds the engine-level terminal error shape.
func WorkflowFailure(message string) *TerminalResult {
	return &TerminalResult{ToolName: "workflow", Error: message}
}
