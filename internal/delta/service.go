// Package delta runs the background pass over meetings that were
// ingested before their recording finished processing: it re-fetches
// transcripts, regenerates summaries, and annotates them with changes
// since the previous summary.
package delta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/tools"
)

const (
	defaultSchedule = "*/30 * * * *"
	defaultLookback = 7 * 24 * time.Hour
	defaultLimit    = 25

	tickInterval = 60 * time.Second
)

// Config tunes the backfill pass. Zero values take defaults.
type Config struct {
	// Schedule is a five-field cron expression gating when a pass runs.
	Schedule string
	// Lookback bounds how far back transcript-less meetings are retried.
	Lookback time.Duration
	// Limit caps the meetings processed per pass.
	Limit int
}

// Service is the background processor. Start launches the loop; Pass
// can also be called directly for a one-shot run.
type Service struct {
	store       store.Store
	transcripts tools.TranscriptService
	summarizer  *tools.Summarizer
	deltas      *tools.DeltaComputer
	schedule    cron.Schedule
	lookback    time.Duration
	limit       int
	logger      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// New builds the service. Summarizer and DeltaComputer are optional:
// without them a pass only attaches transcripts.
func New(cfg Config, st store.Store, ts tools.TranscriptService, summarizer *tools.Summarizer, deltas *tools.DeltaComputer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Service{
		store:       st,
		transcripts: ts,
		summarizer:  summarizer,
		deltas:      deltas,
		schedule:    schedule,
		lookback:    lookback,
		limit:       limit,
		logger:      logger,
	}, nil
}

// Start launches the background loop. The loop wakes every minute and
// runs a pass when the schedule says one is due.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("delta service already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.schedule.Next(time.Now().UTC())
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("delta service started", "next_run", s.nextRun)
	return nil
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := time.Now().UTC()
	s.mu.Lock()
	due := !now.Before(s.nextRun)
	if due {
		s.nextRun = s.schedule.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.Pass(ctx); err != nil {
		s.logger.Error("delta pass failed", "error", err)
	}
}

// Pass processes one batch of transcript-less meetings.
func (s *Service) Pass(ctx context.Context) error {
	from := time.Now().UTC().Add(-s.lookback)
	meetings, err := s.store.ListMeetings(ctx, store.MeetingFilter{
		MissingTranscript: true,
		From:              &from,
		Limit:             s.limit,
	})
	if err != nil {
		return fmt.Errorf("list meetings: %w", err)
	}

	processed := 0
	for _, m := range meetings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.ZoomMeetingID == "" {
			continue
		}
		if s.processMeeting(ctx, m) {
			processed++
		}
	}
	if processed > 0 {
		s.logger.Info("delta pass completed", "candidates", len(meetings), "processed", processed)
	}
	return nil
}

// processMeeting retries the transcript fetch for one meeting and, when
// a transcript finally lands, regenerates the summary. A meeting that
// already carried a summary gets a changes section appended, comparing
// against what was summarized before the transcript existed.
func (s *Service) processMeeting(ctx context.Context, m *store.Meeting) bool {
	transcript, err := s.transcripts.FetchTranscript(ctx, m.ZoomMeetingID, m.MeetingDate)
	if err != nil {
		s.logger.DebugContext(ctx, "transcript still unavailable",
			"meeting_id", m.ID, "zoom_meeting_id", m.ZoomMeetingID, "error", err)
		return false
	}
	if !tools.ValidTranscript(transcript) {
		return false
	}

	update := store.MeetingUpdate{Transcript: &transcript}
	if s.summarizer != nil {
		if summary := s.resummarize(ctx, m, transcript); summary != "" {
			update.Summary = &summary
		}
	}
	if err := s.store.UpdateMeeting(ctx, m.ID, update); err != nil {
		s.logger.WarnContext(ctx, "failed to update meeting", "meeting_id", m.ID, "error", err)
		return false
	}
	s.logger.InfoContext(ctx, "transcript backfilled", "meeting_id", m.ID)
	return true
}

func (s *Service) resummarize(ctx context.Context, m *store.Meeting, transcript string) string {
	in := tools.SummarizeInput{
		Transcript:    transcript,
		Title:         m.Title,
		Attendees:     m.Attendees,
		HasTranscript: true,
	}
	if m.MeetingDate != nil {
		in.Date = m.MeetingDate.Format("January 2, 2006")
		in.RecordingDate = in.Date
	}
	result, err := s.summarizer.Summarize(ctx, in)
	if err != nil {
		s.logger.WarnContext(ctx, "resummarization failed", "meeting_id", m.ID, "error", err)
		return ""
	}
	summary, _ := result["summary"].(string)
	if summary == "" {
		return ""
	}

	if m.Summary != "" && s.deltas != nil {
		changes := s.deltas.Compute(ctx, summary, []string{m.Summary})
		summary += tools.BuildDeltaSection(changes)
	}
	return summary
}

// Stop shuts the loop down and waits for it to exit.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("delta service stopped")
	return nil
}
