package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodePrerequisite      = "PREREQUISITE_MISSING"
	ErrCodeStepFailed        = "STEP_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAmbiguousMatch    = "AMBIGUOUS_MATCH"
	ErrCodeLoopDetected      = "LOOP_DETECTED"
	ErrCodeFallbackExhausted = "FALLBACK_EXHAUSTED"
	ErrCodeUnknownAction     = "UNKNOWN_ACTION"
	ErrCodeBudgetExceeded    = "BUDGET_EXCEEDED"
	ErrCodeLLM               = "LLM_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCalendar          = "CALENDAR_ERROR"
)

// WorkflowError is the structured error type for all workflow operations.
type WorkflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Action  string         `json:"action,omitempty"`
	Cause   error          `json:"-"`
}

func (e *WorkflowError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new WorkflowError.
func NewError(code, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message}
}

// NewErrorf creates a new WorkflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *WorkflowError {
	return &WorkflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches the action being executed when the error occurred.
func (e *WorkflowError) WithAction(action Action) *WorkflowError {
	e.Action = string(action)
	return e
}

// WithCause attaches an underlying cause.
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}
