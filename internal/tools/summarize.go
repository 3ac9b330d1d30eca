package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/solvik/meetwise/internal/llm"
)

const summarizationSystemPrompt = `You are a meeting summarization expert. Analyze meeting transcripts and
create comprehensive, well-structured summaries with clear sections for overview, action items, outline, and conclusions.
Categorize action items by who is responsible (client vs user).`

const (
	summaryTemperature    = 0.3
	extractionTemperature = 0.2
)

// Summarizer produces a structured meeting summary and extracts the
// decisions made, both via the language model.
type Summarizer struct {
	llm    llm.Service
	logger *slog.Logger
}

func NewSummarizer(svc llm.Service, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: svc, logger: logger}
}

// SummarizeInput carries the meeting metadata and transcript. When
// HasTranscript is false the summary is built from calendar data alone.
type SummarizeInput struct {
	Transcript    string
	Title         string
	Date          string
	RecordingDate string
	Attendees     string
	HasTranscript bool
}

// Summarize generates the summary. The returned map mirrors the tool's
// wire shape: summary text, metadata, and extracted decisions.
func (s *Summarizer) Summarize(ctx context.Context, in SummarizeInput) (map[string]any, error) {
	if in.HasTranscript && in.Transcript == "" {
		return nil, fmt.Errorf("transcript is required when a recording is reported available")
	}

	title := orDefault(in.Title, "Untitled Meeting")
	date := orDefault(in.Date, "Unknown date")
	recordingDate := orDefault(in.RecordingDate, "N/A")
	attendees := orDefault(in.Attendees, "Not specified")

	var prompt string
	if in.HasTranscript {
		prompt = transcriptSummaryPrompt(title, date, recordingDate, attendees, in.Transcript)
	} else {
		prompt = calendarOnlySummaryPrompt(title, date, attendees)
	}

	summary, err := s.llm.Generate(ctx, llm.Request{
		System:      summarizationSystemPrompt,
		Prompt:      prompt,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return nil, err
	}

	var decisions []any
	if in.HasTranscript {
		decisions = s.extractDecisions(ctx, summary)
	}

	return map[string]any{
		"summary":        summary,
		"meeting_title":  title,
		"meeting_date":   date,
		"recording_date": recordingDate,
		"attendees":      attendees,
		"decisions":      decisions,
		"has_transcript": in.HasTranscript,
	}, nil
}

// extractDecisions runs a second, lower-temperature JSON pass over the
// summary. Extraction is best-effort: any failure yields an empty list.
func (s *Summarizer) extractDecisions(ctx context.Context, summary string) []any {
	prompt := fmt.Sprintf(`Based on the following meeting summary, extract:
1. All decisions made (who decided what)

Meeting Summary:
%s

Respond in JSON format:
{
    "decisions": [
        {"description": "...", "context": "..."}
    ]
}`, summary)

	out, err := s.llm.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: extractionTemperature,
		JSON:        true,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "decision extraction failed", "error", err)
		return nil
	}

	var parsed struct {
		Decisions []any `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		s.logger.WarnContext(ctx, "decision extraction returned invalid JSON", "error", err)
		return nil
	}
	return parsed.Decisions
}

func transcriptSummaryPrompt(title, date, recordingDate, attendees, transcript string) string {
	return fmt.Sprintf(`Analyze the following meeting transcript and create a comprehensive, well-structured summary.

Meeting Information:
- Title: %s
- Calendar Event Date: %s
- Recording Date: %s
- Attendees: %s

Meeting Transcript:
%s

Please create a summary with the following EXACT structure and formatting:

# Meeting Header
%s

## Date from calendar:
%s

## Participants:
%s

## Overview:
[Provide a brief 2-3 sentence summary of what the meeting was about, who attended, and the main purpose. Focus on the key objectives and outcomes.]

## Outline:
[Provide 2-3 sentences summarizing the major sections or topics discussed in the meeting. Write in complete sentences (not bullet points) that outline what was covered in each main section. Keep it succinct and focused on the key discussion areas.]

## Conclusion:
[Provide a summary of decisions made, next steps, and any important takeaways. Include any commitments, agreements, or follow-up requirements.]

Format your response using the EXACT section headers shown above (with # and ## markdown formatting). Be clear, concise, and well-organized.`,
		title, date, recordingDate, attendees, transcript, title, date, attendees)
}

func calendarOnlySummaryPrompt(title, date, attendees string) string {
	return fmt.Sprintf(`Create a meeting summary based on the available calendar information. Note that no recording is available for this meeting.

Meeting Information:
- Title: %s
- Calendar Event Date: %s
- Attendees: %s

IMPORTANT: There is no recording or transcript available for this meeting. Please create a summary with the following EXACT structure and formatting:

# Meeting Header
%s

## Date from calendar:
%s

## Participants:
%s

## Overview:
[Provide a brief 2-3 sentence summary based on the meeting title and attendees. Since no transcript is available, focus on what can be inferred from the meeting title and who was scheduled to attend.]

## Recording Status:
No recording is available for this meeting. This summary is based solely on the calendar event information (title, date, and participants).

## Outline:
[Since no transcript is available, write: "No transcript available - unable to provide meeting outline."]

## Conclusion:
[Since no transcript is available, write: "No transcript available - unable to provide meeting conclusions."]

Format your response using the EXACT section headers shown above (with # and ## markdown formatting). Be clear, concise, and well-organized.`,
		title, date, attendees, title, date, attendees)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
