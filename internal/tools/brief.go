package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solvik/meetwise/internal/llm"
)

const briefTemperature = 0.7

// BriefWriter prepares a pre-meeting brief from client and calendar context.
type BriefWriter struct {
	llm    llm.Service
	logger *slog.Logger
}

func NewBriefWriter(svc llm.Service, logger *slog.Logger) *BriefWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BriefWriter{llm: svc, logger: logger}
}

type BriefInput struct {
	ClientName      string
	MeetingTitle    string
	MeetingDate     string
	Attendees       string
	PreviousSummary string
	ClientContext   string
}

func (w *BriefWriter) Generate(ctx context.Context, in BriefInput) (map[string]any, error) {
	var parts []string
	if in.ClientName != "" {
		parts = append(parts, "Client: "+in.ClientName)
	}
	if in.MeetingTitle != "" {
		parts = append(parts, "Meeting Title: "+in.MeetingTitle)
	}
	if in.MeetingDate != "" {
		parts = append(parts, "Meeting Date: "+in.MeetingDate)
	}
	if in.Attendees != "" {
		parts = append(parts, "Attendees: "+in.Attendees)
	}
	if in.ClientContext != "" {
		parts = append(parts, "\nClient Context:\n"+in.ClientContext)
	}
	if in.PreviousSummary != "" {
		parts = append(parts, "\nPrevious Meeting Summary:\n"+in.PreviousSummary)
	}

	info := "No specific meeting information provided."
	if len(parts) > 0 {
		info = strings.Join(parts, "\n")
	}

	prompt := fmt.Sprintf(`Generate a comprehensive meeting brief to help prepare for an upcoming meeting.

Meeting Information:
%s

Please create a meeting brief that includes:
1. Key topics to discuss
2. Important context about the client
3. Questions to ask
4. Goals and objectives
5. Any relevant background information

Format the brief in a clear, organized structure that will help prepare for the meeting.`, info)

	brief, err := w.llm.Generate(ctx, llm.Request{
		System:      summarizationSystemPrompt,
		Prompt:      prompt,
		Temperature: briefTemperature,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"brief":         brief,
		"client_name":   in.ClientName,
		"meeting_title": in.MeetingTitle,
		"meeting_date":  in.MeetingDate,
		"attendees":     in.Attendees,
	}, nil
}
