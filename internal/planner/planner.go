// Package planner asks the language model for a workflow plan and
// validates it before the engine runs it.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solvik/meetwise/internal/llm"
	"github.com/solvik/meetwise/pkg/schema"
)

const planningSystemPrompt = `You are a workflow planning system. Based on the user's intent and context,
plan the workflow steps needed to fulfill their request.

RESPONSE FORMAT:
Respond in JSON format with a structured workflow plan. Each step is an object with:

Required fields per step:
- "action": machine-readable action identifier
- "tool": the tool that executes the step

Optional fields per step:
- "prerequisites": array of data keys that must exist before this step executes
- "fallback": fallback strategy if the step fails (entry or array of entries
  with "action", "conditions", "max_attempts", "message_to_user")

Root level fields:
- "steps": array of step objects (required)
- "required_data": array of data keys required for the entire workflow (optional)

ACTION IDENTIFIERS (standardized):
- "find_meeting": find meeting in database or calendar
- "retrieve_transcript": fetch the meeting transcript
- "retrieve_calendar_event": get calendar event details
- "summarize": run the summarization tool
- "generate_followup": run the follow-up tool
- "generate_brief": run the meeting brief tool
- "retrieve_memory": get relevant memory entries

TOOL NAMES (must match system tools):
- "meeting_finder", "integration_fetcher", "summarization", "followup",
  "meeting_brief", "memory_retriever"

FALLBACK CONDITIONS:
- "no_db_match", "no_calendar_match", "no_transcript", "multiple_matches", "tool_failure"

FALLBACK ACTIONS:
- "resolve_meeting_from_calendar", "use_last_selected_meeting",
  "force_summarization", "skip_step", "ask_user_for_meeting"

EXAMPLE OUTPUT:
{
  "steps": [
    {
      "action": "find_meeting",
      "tool": "meeting_finder",
      "prerequisites": ["client_id"],
      "fallback": {
        "action": "resolve_meeting_from_calendar",
        "conditions": ["no_db_match"],
        "max_attempts": 1
      }
    },
    {
      "action": "retrieve_transcript",
      "tool": "integration_fetcher",
      "prerequisites": ["meeting_id"]
    },
    {
      "action": "summarize",
      "tool": "summarization",
      "prerequisites": ["transcript", "meeting_id"]
    }
  ],
  "required_data": ["meeting_id", "transcript", "client_id"]
}

IMPORTANT: Steps must be ordered sequentially. Each step may depend on data produced by previous steps.`

const planningTemperature = 0.4

// Planner produces validated workflow plans.
type Planner struct {
	llm       llm.Service
	validator *planValidator
	logger    *slog.Logger
}

// New builds a Planner.
func New(svc llm.Service, logger *slog.Logger) (*Planner, error) {
	v, err := newPlanValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: svc, validator: v, logger: logger}, nil
}

// Plan asks the model for a workflow plan. A plan that cannot be obtained
// or does not validate resolves to nil rather than an error: the caller
// treats a missing plan as "fall back to the non-workflow path".
func (p *Planner) Plan(ctx context.Context, intent, message string, userID, clientID *int64) *schema.WorkflowPlan {
	prompt := fmt.Sprintf("Intent: %s\nUser Message: %s\nContext: User ID: %s, Client ID: %s\n\nPlan the workflow and respond in JSON format.",
		intent, message, formatID(userID), formatID(clientID))

	out, err := p.llm.Generate(ctx, llm.Request{
		System:      planningSystemPrompt,
		Prompt:      prompt,
		Temperature: planningTemperature,
		JSON:        true,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "plan generation failed", "error", err)
		return nil
	}

	raw := []byte(StripFences(out))
	if err := p.validator.validate(raw); err != nil {
		p.logger.WarnContext(ctx, "plan failed validation", "error", err)
		return nil
	}

	var plan schema.WorkflowPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		p.logger.WarnContext(ctx, "plan failed to decode", "error", err)
		return nil
	}

	sanitized := plan.Sanitize()
	if len(sanitized.Steps) == 0 {
		p.logger.InfoContext(ctx, "plan has no executable steps")
		return nil
	}
	return sanitized
}

func formatID(id *int64) string {
	if id == nil {
		return "unknown"
	}
	return fmt.Sprint(*id)
}

// StripFences removes a markdown code fence wrapper from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
