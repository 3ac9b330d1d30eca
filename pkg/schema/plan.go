package schema

import (
	"encoding/json"
	"fmt"
)

// Action enumerates the executable workflow actions.
type Action string

const (
	ActionFindMeeting           Action = "find_meeting"
	ActionRetrieveTranscript    Action = "retrieve_transcript"
	ActionRetrieveCalendarEvent Action = "retrieve_calendar_event"
	ActionSummarize             Action = "summarize"
	ActionGenerateFollowup      Action = "generate_followup"
	ActionGenerateBrief         Action = "generate_brief"
	ActionRetrieveMemory        Action = "retrieve_memory"
)

// KnownAction reports whether a maps to an executable action.
func KnownAction(a Action) bool {
	switch a {
	case ActionFindMeeting, ActionRetrieveTranscript, ActionRetrieveCalendarEvent,
		ActionSummarize, ActionGenerateFollowup, ActionGenerateBrief, ActionRetrieveMemory:
		return true
	}
	return false
}

// FallbackAction enumerates the recovery actions a fallback entry may request.
type FallbackAction string

const (
	FallbackResolveFromCalendar FallbackAction = "resolve_meeting_from_calendar"
	FallbackUseLastSelected     FallbackAction = "use_last_selected_meeting"
	FallbackForceSummarization  FallbackAction = "force_summarization"
	FallbackSkipStep            FallbackAction = "skip_step"
	FallbackAskUser             FallbackAction = "ask_user_for_meeting"
)

// Older plans use a different vocabulary for the same recoveries.
var legacyFallbackActions = map[string]FallbackAction{
	"search_calendar":    FallbackResolveFromCalendar,
	"use_notes":          FallbackForceSummarization,
	"ask_user_selection": FallbackAskUser,
	"skip":               FallbackSkipStep,
}

func normalizeFallbackAction(raw string) FallbackAction {
	if mapped, ok := legacyFallbackActions[raw]; ok {
		return mapped
	}
	return FallbackAction(raw)
}

// KnownFallbackAction reports whether a is a recognized recovery action.
func KnownFallbackAction(a FallbackAction) bool {
	switch a {
	case FallbackResolveFromCalendar, FallbackUseLastSelected,
		FallbackForceSummarization, FallbackSkipStep, FallbackAskUser:
		return true
	}
	return false
}

// Condition tags classify why a step needed recovery.
type Condition string

const (
	CondNoDBMatch       Condition = "no_db_match"
	CondNoCalendarMatch Condition = "no_calendar_match"
	CondNoTranscript    Condition = "no_transcript"
	CondUnknownAction   Condition = "unknown_action"
	CondToolFailure     Condition = "tool_failure"
	CondMultipleMatches Condition = "multiple_matches"
)

// WorkflowPlan is the planner output: an ordered list of steps plus the
// data keys the workflow expects to be present before it starts.
type WorkflowPlan struct {
	Steps        []Step   `json:"steps"`
	RequiredData []string `json:"required_data,omitempty"`
}

// Step describes a single workflow step. The planner occasionally emits
// plain strings instead of step objects; those decode into Note and are
// dropped during sanitization.
type Step struct {
	Action        Action     `json:"action"`
	Tool          string     `json:"tool"`
	Prerequisites []string   `json:"prerequisites,omitempty"`
	When          string     `json:"when,omitempty"` // CEL expression, evaluated before execution
	Fallbacks     []Fallback `json:"fallback,omitempty"`
	Note          string     `json:"-"`
}

// Fallback is one entry in a step's recovery chain.
type Fallback struct {
	Action        FallbackAction `json:"action"`
	Conditions    []Condition    `json:"conditions,omitempty"`
	MaxAttempts   int            `json:"max_attempts,omitempty"`
	MessageToUser string         `json:"message_to_user,omitempty"`
}

// Matches reports whether the entry applies to the given condition.
// An entry with no conditions matches everything.
func (f Fallback) Matches(c Condition) bool {
	if len(f.Conditions) == 0 {
		return true
	}
	for _, fc := range f.Conditions {
		if fc == c {
			return true
		}
	}
	return false
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var note string
	if err := json.Unmarshal(data, &note); err == nil {
		*s = Step{Note: note}
		return nil
	}

	var raw struct {
		Action        string          `json:"action"`
		Tool          string          `json:"tool"`
		Prerequisites []string        `json:"prerequisites"`
		When          string          `json:"when"`
		Fallback      json.RawMessage `json:"fallback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding step: %w", err)
	}

	chain, err := parseFallbackChain(raw.Fallback)
	if err != nil {
		return err
	}
	*s = Step{
		Action:        Action(raw.Action),
		Tool:          raw.Tool,
		Prerequisites: raw.Prerequisites,
		When:          raw.When,
		Fallbacks:     chain,
	}
	return nil
}

// parseFallbackChain accepts the three shapes planners produce for the
// fallback field: a single entry, an array of entries, or the older
// if/then/else_if/else conditional form.
func parseFallbackChain(data json.RawMessage) ([]Fallback, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		var chain []Fallback
		for _, entry := range list {
			fb, err := parseFallbackEntry(entry)
			if err != nil {
				return nil, err
			}
			chain = append(chain, fb...)
		}
		return chain, nil
	}

	return parseFallbackEntry(data)
}

func parseFallbackEntry(data json.RawMessage) ([]Fallback, error) {
	var raw struct {
		Action        string          `json:"action"`
		Conditions    []Condition     `json:"conditions"`
		MaxAttempts   int             `json:"max_attempts"`
		MessageToUser string          `json:"message_to_user"`
		If            string          `json:"if"`
		Then          string          `json:"then"`
		ElseIf        json.RawMessage `json:"else_if"`
		Else          string          `json:"else"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding fallback: %w", err)
	}

	if raw.Action != "" {
		return []Fallback{{
			Action:        normalizeFallbackAction(raw.Action),
			Conditions:    raw.Conditions,
			MaxAttempts:   maxAttemptsOrDefault(raw.MaxAttempts),
			MessageToUser: raw.MessageToUser,
		}}, nil
	}

	// Legacy conditional form.
	var chain []Fallback
	if raw.If != "" && raw.Then != "" {
		chain = append(chain, Fallback{
			Action:      normalizeFallbackAction(raw.Then),
			Conditions:  []Condition{Condition(raw.If)},
			MaxAttempts: 1,
		})
	}
	if len(raw.ElseIf) > 0 && string(raw.ElseIf) != "null" {
		nested, err := parseFallbackChain(raw.ElseIf)
		if err != nil {
			return nil, err
		}
		chain = append(chain, nested...)
	}
	if raw.Else != "" {
		chain = append(chain, Fallback{
			Action:      normalizeFallbackAction(raw.Else),
			MaxAttempts: 1,
		})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("fallback entry has no action")
	}
	return chain, nil
}

func maxAttemptsOrDefault(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Sanitize returns a copy of the plan with non-executable steps removed:
// legacy note steps and steps missing an action or tool. Steps whose
// action is not recognized are kept so the executor can route them
// through the unknown_action fallback path.
func (p *WorkflowPlan) Sanitize() *WorkflowPlan {
	out := &WorkflowPlan{RequiredData: p.RequiredData}
	for _, s := range p.Steps {
		if s.Note != "" || s.Action == "" || s.Tool == "" {
			continue
		}
		out.Steps = append(out.Steps, s)
	}
	return out
}
