// Command meetwise answers meeting-assistant requests from the command
// line: it plans a workflow for the message, executes it against the
// local store and calendar, and prints the rendered result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/delta"
	"github.com/solvik/meetwise/internal/engine"
	"github.com/solvik/meetwise/internal/extract"
	"github.com/solvik/meetwise/internal/llm"
	"github.com/solvik/meetwise/internal/logging"
	"github.com/solvik/meetwise/internal/planner"
	"github.com/solvik/meetwise/internal/resolve"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/synthesis"
	"github.com/solvik/meetwise/internal/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "meetwise:", err)
		os.Exit(1)
	}
}

func run() error {
	message := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if message == "" {
		return fmt.Errorf(`usage: meetwise <message>, e.g. meetwise "summarize my last meeting with Acme"`)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithUserID(ctx, strconv.FormatInt(cfg.UserID, 10))

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}

	model, err := openai.New(openai.WithModel(cfg.Model))
	if err != nil {
		return fmt.Errorf("initializing language model: %w", err)
	}
	llmClient := llm.NewClient(model, logger)

	cal, err := calendar.NewFileService(cfg.CalendarPath)
	if err != nil {
		return fmt.Errorf("loading calendar: %w", err)
	}
	transcripts := tools.NewFileTranscripts(cfg.TranscriptsDir)

	summarizer := tools.NewSummarizer(llmClient, logger)
	deltaComputer := tools.NewDeltaComputer(llmClient, logger)

	eng, err := engine.New(engine.Options{
		Store:       st,
		Calendar:    cal,
		Finder:      resolve.NewFinder(st, cal, logger),
		Transcripts: transcripts,
		Ingestor:    tools.NewIngestor(st, transcripts, llmClient, logger),
		Summarizer:  summarizer,
		Followups:   tools.NewFollowupWriter(llmClient, logger),
		Briefs:      tools.NewBriefWriter(llmClient, logger),
		Deltas:      deltaComputer,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	backfill, err := delta.New(delta.Config{Schedule: cfg.DeltaSchedule},
		st, transcripts, summarizer, deltaComputer, logger)
	if err != nil {
		return fmt.Errorf("building delta service: %w", err)
	}
	if err := backfill.Start(ctx); err != nil {
		return err
	}
	defer backfill.Stop()

	pl, err := planner.New(llmClient, logger)
	if err != nil {
		return fmt.Errorf("building planner: %w", err)
	}

	now := time.Now().UTC()
	intent := classifyIntent(message)
	plan := pl.Plan(ctx, intent, message, &cfg.UserID, nil)

	result, err := eng.Execute(ctx, engine.Request{
		Intent:    intent,
		Message:   message,
		UserID:    cfg.UserID,
		Selection: extract.ParseSelection(message, "", "", nil, "", now),
		Plan:      plan,
		Now:       now,
	})
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("I couldn't work out a workflow for that request. Try asking for a summary, follow-up, or meeting brief.")
		return nil
	}

	fmt.Println(synthesis.NewRenderer(logger).Render(ctx, result))
	return nil
}

func classifyIntent(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "follow"):
		return "followup"
	case strings.Contains(lower, "brief") || strings.Contains(lower, "prep"):
		return "meeting_brief"
	}
	return "summarization"
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
