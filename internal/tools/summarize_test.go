package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvik/meetwise/internal/llm"
)

// fakeLLM replays scripted responses in call order.
type fakeLLM struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var out string
	if i < len(f.responses) {
		out = f.responses[i]
	}
	return out, err
}

func TestSummarizeWithTranscript(t *testing.T) {
	f := &fakeLLM{responses: []string{
		"# Meeting Header\nAcme sync\n\n## Overview:\nWe discussed the rollout.",
		`{"decisions": [{"description": "ship v2", "context": "rollout"}]}`,
	}}
	s := NewSummarizer(f, nil)

	out, err := s.Summarize(context.Background(), SummarizeInput{
		Transcript:    "Alice: let's ship v2.",
		Title:         "Acme sync",
		Date:          "November 21, 2024 at 3:00 PM",
		Attendees:     "Alice, Bob",
		HasTranscript: true,
	})
	require.NoError(t, err)

	assert.Contains(t, out["summary"], "Acme sync")
	assert.Equal(t, "Acme sync", out["meeting_title"])
	assert.Equal(t, true, out["has_transcript"])
	assert.Len(t, out["decisions"], 1)

	// First call carries the transcript, second is the JSON extraction pass.
	require.Len(t, f.requests, 2)
	assert.Contains(t, f.requests[0].Prompt, "Alice: let's ship v2.")
	assert.False(t, f.requests[0].JSON)
	assert.True(t, f.requests[1].JSON)
}

func TestSummarizeWithoutTranscript(t *testing.T) {
	f := &fakeLLM{responses: []string{"calendar-only summary"}}
	s := NewSummarizer(f, nil)

	out, err := s.Summarize(context.Background(), SummarizeInput{
		Title:         "Acme sync",
		HasTranscript: false,
	})
	require.NoError(t, err)

	assert.Equal(t, "calendar-only summary", out["summary"])
	assert.Equal(t, false, out["has_transcript"])
	assert.Empty(t, out["decisions"])

	// No extraction pass without a transcript.
	require.Len(t, f.requests, 1)
	assert.Contains(t, f.requests[0].Prompt, "no recording is available")
}

func TestSummarizeMissingTranscript(t *testing.T) {
	s := NewSummarizer(&fakeLLM{}, nil)

	_, err := s.Summarize(context.Background(), SummarizeInput{HasTranscript: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript is required")
}

func TestSummarizeDefaults(t *testing.T) {
	f := &fakeLLM{responses: []string{"summary"}}
	s := NewSummarizer(f, nil)

	out, err := s.Summarize(context.Background(), SummarizeInput{HasTranscript: false})
	require.NoError(t, err)

	assert.Equal(t, "Untitled Meeting", out["meeting_title"])
	assert.Equal(t, "Unknown date", out["meeting_date"])
	assert.Equal(t, "N/A", out["recording_date"])
	assert.Equal(t, "Not specified", out["attendees"])
}

func TestSummarizeDecisionExtractionFailsSoft(t *testing.T) {
	f := &fakeLLM{responses: []string{"summary text", "not json at all"}}
	s := NewSummarizer(f, nil)

	out, err := s.Summarize(context.Background(), SummarizeInput{
		Transcript:    "t",
		HasTranscript: true,
	})
	require.NoError(t, err)
	assert.Empty(t, out["decisions"])
}

func TestValidTranscript(t *testing.T) {
	assert.True(t, ValidTranscript("Alice: hello"))
	assert.False(t, ValidTranscript(""))
	assert.False(t, ValidTranscript("   \n\t"))
	assert.False(t, ValidTranscript("Error: recording not found"))
	assert.False(t, ValidTranscript("error fetching transcript"))
	assert.True(t, ValidTranscript(strings.Repeat("long transcript ", 10)))
}
