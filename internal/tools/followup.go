package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solvik/meetwise/internal/llm"
)

const followupSystemPrompt = `You are an assistant that drafts professional follow-up emails after client meetings.
Write in a warm but businesslike tone, reference concrete outcomes from the meeting, and keep the email short.
Start the email with a "Subject:" line.`

const followupTemperature = 0.8

// FollowupWriter drafts a follow-up email from meeting context.
type FollowupWriter struct {
	llm    llm.Service
	logger *slog.Logger
}

func NewFollowupWriter(svc llm.Service, logger *slog.Logger) *FollowupWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FollowupWriter{llm: svc, logger: logger}
}

// FollowupInput is the context assembled by the caller: meeting metadata,
// its summary if one exists, and anything extra the user supplied.
type FollowupInput struct {
	MeetingTitle      string
	MeetingDate       string
	Summary           string
	Decisions         []string
	ClientName        string
	ClientEmail       string
	AdditionalContext string
}

// Generate drafts the email. Returns the subject, body, and the raw model
// output for callers that want the unsplit text.
func (w *FollowupWriter) Generate(ctx context.Context, in FollowupInput) (map[string]any, error) {
	contextText := buildFollowupContext(in)
	if strings.TrimSpace(contextText) == "" {
		return nil, fmt.Errorf("insufficient context to generate follow-up email")
	}

	prompt := fmt.Sprintf(`Context:
%s

Generate a professional follow-up email based on the above information.`, contextText)

	email, err := w.llm.Generate(ctx, llm.Request{
		System:      followupSystemPrompt,
		Prompt:      prompt,
		Temperature: followupTemperature,
	})
	if err != nil {
		return nil, err
	}

	subject, body := splitSubject(email)

	return map[string]any{
		"subject":    subject,
		"body":       body,
		"full_email": email,
	}, nil
}

func buildFollowupContext(in FollowupInput) string {
	var parts []string
	if in.MeetingTitle != "" {
		parts = append(parts, "Meeting: "+in.MeetingTitle)
	}
	if in.MeetingDate != "" {
		parts = append(parts, "Date: "+in.MeetingDate)
	}
	if in.Summary != "" {
		parts = append(parts, "\nMeeting Summary:\n"+in.Summary)
	}
	if len(in.Decisions) > 0 {
		parts = append(parts, "\nDecisions Made:")
		for _, d := range in.Decisions {
			parts = append(parts, "- "+d)
		}
	}
	if in.ClientName != "" {
		parts = append(parts, "\nClient: "+in.ClientName)
	}
	if in.ClientEmail != "" {
		parts = append(parts, "Email: "+in.ClientEmail)
	}
	if in.AdditionalContext != "" {
		parts = append(parts, "\nAdditional Context:\n"+in.AdditionalContext)
	}
	return strings.Join(parts, "\n")
}

// splitSubject pulls a "Subject:" line out of the generated email. Models
// occasionally omit it, so a default subject is substituted.
func splitSubject(email string) (subject, body string) {
	subject = "Follow-up: Meeting Discussion"
	body = strings.TrimSpace(email)

	idx := strings.Index(email, "Subject:")
	if idx < 0 {
		return subject, body
	}

	rest := email[idx+len("Subject:"):]
	line, after, found := strings.Cut(rest, "\n")
	subject = strings.TrimSpace(line)
	if subject == "" {
		subject = "Follow-up: Meeting Discussion"
	}
	if found {
		body = strings.TrimSpace(after)
	} else {
		body = ""
	}
	return subject, body
}
