package tools

import (
	"context"
	"strings"
	"time"
)

// TranscriptService fetches recording transcripts from a conferencing
// provider. Implementations own their own auth and lookup strategy
// (id vs uuid based); the engine only sees text-or-nothing.
type TranscriptService interface {
	// FetchTranscript returns the transcript for a conferencing meeting id,
	// or empty string when no recording exists. expectedDate, when set,
	// disambiguates recurring meetings.
	FetchTranscript(ctx context.Context, meetingID string, expectedDate *time.Time) (string, error)
}

// ValidTranscript reports whether a fetched payload is usable transcript
// text. Providers sometimes return error bodies with a 200 status, so
// empty, whitespace-only, and error-prefixed strings are rejected.
func ValidTranscript(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "error") {
		return false
	}
	return true
}
