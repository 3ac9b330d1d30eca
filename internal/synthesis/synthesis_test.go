package synthesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvik/meetwise/pkg/schema"
)

func TestRenderSelectionRequest(t *testing.T) {
	r := NewRenderer(nil)

	out := r.Render(context.Background(), &schema.TerminalResult{
		ToolName:          "summarization",
		RequiresSelection: true,
		MeetingOptions: []schema.MeetingOption{
			{Title: "Acme sync", Date: "2024-11-21", Source: "calendar"},
			{Title: "Acme retro", Date: "2024-11-14", Source: "calendar"},
		},
	})

	assert.Contains(t, out, "I found 2 meeting(s)")
	assert.Contains(t, out, "1. Acme sync")
	assert.Contains(t, out, "2. Acme retro")
	assert.Contains(t, out, "Reply with the number")
}

func TestRenderError(t *testing.T) {
	r := NewRenderer(nil)

	out := r.Render(context.Background(), schema.WorkflowFailure("no meeting found"))
	assert.Contains(t, out, "I encountered an error: no meeting found")
}

func TestRenderSummary(t *testing.T) {
	r := NewRenderer(nil)

	out := r.Render(context.Background(), &schema.TerminalResult{
		ToolName: "summarization",
		Result: map[string]any{
			"summary":        "# Meeting Header\nAcme sync",
			"meeting_title":  "Acme sync",
			"meeting_date":   "November 21, 2024 at 3:00 PM",
			"recording_date": "November 21, 2024 at 3:00 PM",
			"attendees":      "Alice, Bob",
			"decisions": []any{
				map[string]any{"description": "ship v2"},
			},
		},
	})

	assert.Contains(t, out, "## Summary")
	assert.Contains(t, out, "**Meeting Title:** Acme sync")
	assert.Contains(t, out, "**Recording Date:**")
	assert.Contains(t, out, "# Meeting Header")
	assert.Contains(t, out, "- ship v2")
}

func TestRenderBriefAndFollowup(t *testing.T) {
	r := NewRenderer(nil)

	out := r.Render(context.Background(), &schema.TerminalResult{
		ToolName: "meeting_brief",
		Result:   map[string]any{"brief": "1. Key topics"},
	})
	assert.Equal(t, "1. Key topics", out)

	out = r.Render(context.Background(), &schema.TerminalResult{
		ToolName: "followup",
		Result:   map[string]any{"full_email": "Subject: hi\n\nbody", "body": "body"},
	})
	assert.Equal(t, "Subject: hi\n\nbody", out)
}

func TestRenderUnknownShapeFallsBack(t *testing.T) {
	r := NewRenderer(nil)

	out := r.Render(context.Background(), &schema.TerminalResult{
		ToolName: "workflow",
		Result:   map[string]any{"unexpected": true},
	})
	assert.Equal(t, "I've processed your request. Here's the result.", out)

	assert.Equal(t, out, r.Render(context.Background(), nil))
}

func TestGeneric(t *testing.T) {
	results := []*schema.StepResult{
		{Action: schema.ActionFindMeeting, Tool: "meeting_finder", Status: schema.StepSuccess},
		{Action: schema.ActionRetrieveTranscript, Tool: "integration_fetcher", Status: schema.StepNoTranscript, Message: "no recording"},
	}
	structured := map[string]any{"meeting_title": "Acme sync"}

	out := Generic(structured, results)

	steps, ok := out["steps"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, steps, 2)
	assert.Equal(t, "find_meeting", steps[0]["action"])
	assert.Equal(t, "success", steps[0]["status"])
	assert.Equal(t, "no recording", steps[1]["message"])
	assert.Equal(t, structured, out["structured_data"])
}

func TestGenericEmpty(t *testing.T) {
	out := Generic(nil, nil)
	assert.NotContains(t, out, "structured_data")
	assert.Empty(t, out["steps"])
}
