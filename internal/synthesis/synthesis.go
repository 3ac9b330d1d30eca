// Package synthesis renders terminal workflow results into user-facing
// text and builds generic results when no tool produced a displayable one.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solvik/meetwise/internal/expressions"
	"github.com/solvik/meetwise/pkg/schema"
)

// Display queries per tool, tried in order. jq keeps the renderer loose
// about the exact shape each tool returned.
var displayQueries = map[string][]string{
	"meeting_brief": {".brief"},
	"summarization": {".summary"},
	"followup":      {".full_email", ".body"},
}

// Renderer formats terminal results for the caller boundary.
type Renderer struct {
	jq     *expressions.GoJQEngine
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{jq: expressions.NewGoJQEngine(), logger: logger}
}

// Render produces the user-facing text for a terminal result.
func (r *Renderer) Render(ctx context.Context, tr *schema.TerminalResult) string {
	if tr == nil {
		return "I've processed your request. Here's the result."
	}

	if tr.RequiresSelection && len(tr.MeetingOptions) > 0 {
		return renderSelection(tr.MeetingOptions)
	}

	if tr.Error != "" {
		return fmt.Sprintf("I encountered an error: %s. Please try again or provide more context.", tr.Error)
	}

	if text := r.extractDisplay(ctx, tr); text != "" {
		if tr.ToolName == "summarization" {
			return renderSummary(tr.Result, text)
		}
		return text
	}

	return "I've processed your request. Here's the result."
}

func (r *Renderer) extractDisplay(ctx context.Context, tr *schema.TerminalResult) string {
	if tr.Result == nil {
		return ""
	}
	for _, query := range displayQueries[tr.ToolName] {
		out, err := r.jq.Evaluate(ctx, query, tr.Result)
		if err != nil {
			r.logger.WarnContext(ctx, "display extraction failed", "query", query, "error", err)
			continue
		}
		if s, ok := out.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func renderSelection(options []schema.MeetingOption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d meeting(s) matching your request. Please select which one you'd like me to summarize:\n\n", len(options))
	for i, opt := range options {
		title := opt.Title
		if title == "" {
			title = "Untitled"
		}
		date := opt.Date
		if date == "" {
			date = "Unknown date"
		}
		fmt.Fprintf(&b, "%d. %s\n   Date: %s\n\n", i+1, title, date)
	}
	b.WriteString("Reply with the number (1, 2, 3, etc.) or the meeting title.")
	return b.String()
}

func renderSummary(result map[string]any, summary string) string {
	parts := []string{
		"## Summary\n",
		fmt.Sprintf("**Meeting Title:** %s\n", stringField(result, "meeting_title", "Untitled Meeting")),
		fmt.Sprintf("**Calendar Event Date:** %s\n", stringField(result, "meeting_date", "Unknown date")),
	}
	if rec := stringField(result, "recording_date", ""); rec != "" && rec != "N/A" {
		parts = append(parts, fmt.Sprintf("**Recording Date:** %s\n", rec))
	}
	parts = append(parts,
		fmt.Sprintf("**Attendees:** %s\n\n", stringField(result, "attendees", "Not specified")),
		summary,
	)

	if decisions, ok := result["decisions"].([]any); ok && len(decisions) > 0 {
		parts = append(parts, "\n\nDecisions Made:")
		for _, d := range decisions {
			if m, ok := d.(map[string]any); ok {
				parts = append(parts, "- "+stringField(m, "description", ""))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func stringField(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Generic builds a terminal result from the accumulated structured data
// and the step audit trail when the final step produced no recognizable
// tool output.
func Generic(structured map[string]any, results []*schema.StepResult) map[string]any {
	steps := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{
			"action": string(res.Action),
			"status": string(res.Status),
		}
		if res.Tool != "" {
			entry["tool"] = res.Tool
		}
		if res.Message != "" {
			entry["message"] = res.Message
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		steps = append(steps, entry)
	}

	out := map[string]any{"steps": steps}
	if len(structured) > 0 {
		out["structured_data"] = structured
	}
	return out
}
