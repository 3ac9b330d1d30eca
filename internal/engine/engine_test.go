package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/extract"
	"github.com/solvik/meetwise/internal/llm"
	"github.com/solvik/meetwise/internal/resolve"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/internal/tools"
	"github.com/solvik/meetwise/pkg/schema"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	store.Store

	meetings map[int64]*store.Meeting
	byEvent  map[string]*store.Meeting
	clients  []*store.Client
	memory   map[string]json.RawMessage

	nextID         int64
	getMeetingIDs  []int64
	getMemoryCalls int
	setEntries     []*store.MemoryEntry
	updates        map[int64]store.MeetingUpdate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings: make(map[int64]*store.Meeting),
		byEvent:  make(map[string]*store.Meeting),
		memory:   make(map[string]json.RawMessage),
		updates:  make(map[int64]store.MeetingUpdate),
		nextID:   100,
	}
}

func notFoundErr() error {
	return schema.NewError(schema.ErrCodeNotFound, "not found")
}

func (s *fakeStore) addMeeting(m *store.Meeting) *store.Meeting {
	s.meetings[m.ID] = m
	if m.CalendarEventID != "" {
		s.byEvent[m.CalendarEventID] = m
	}
	return m
}

func (s *fakeStore) GetMeeting(ctx context.Context, id int64) (*store.Meeting, error) {
	s.getMeetingIDs = append(s.getMeetingIDs, id)
	if m, ok := s.meetings[id]; ok {
		return m, nil
	}
	return nil, notFoundErr()
}

func (s *fakeStore) GetMeetingByCalendarEventID(ctx context.Context, userID int64, eventID string) (*store.Meeting, error) {
	if m, ok := s.byEvent[eventID]; ok {
		return m, nil
	}
	return nil, notFoundErr()
}

func (s *fakeStore) CreateMeeting(ctx context.Context, m *store.Meeting) error {
	s.nextID++
	m.ID = s.nextID
	s.addMeeting(m)
	return nil
}

func (s *fakeStore) UpdateMeeting(ctx context.Context, id int64, update store.MeetingUpdate) error {
	s.updates[id] = update
	if m, ok := s.meetings[id]; ok {
		if update.Transcript != nil {
			m.Transcript = *update.Transcript
		}
		if update.Summary != nil {
			m.Summary = *update.Summary
		}
	}
	return nil
}

func (s *fakeStore) ListMeetings(ctx context.Context, filter store.MeetingFilter) ([]*store.Meeting, error) {
	var out []*store.Meeting
	for _, m := range s.meetings {
		if filter.ClientID != nil && (m.ClientID == nil || *m.ClientID != *filter.ClientID) {
			continue
		}
		if filter.UserID != 0 && filter.ClientID == nil && m.UserID != filter.UserID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].MeetingDate, out[j].MeetingDate
		if di == nil || dj == nil {
			return dj == nil
		}
		return di.After(*dj)
	})
	return out, nil
}

func (s *fakeStore) SearchClientsByName(ctx context.Context, userID int64, name string) ([]*store.Client, error) {
	var out []*store.Client
	for _, c := range s.clients {
		if containsFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetMemory(ctx context.Context, userID int64, key string) (*store.MemoryEntry, error) {
	s.getMemoryCalls++
	if raw, ok := s.memory[key]; ok {
		return &store.MemoryEntry{UserID: userID, Key: key, Value: raw}, nil
	}
	return nil, notFoundErr()
}

func (s *fakeStore) SetMemory(ctx context.Context, entry *store.MemoryEntry) error {
	s.setEntries = append(s.setEntries, entry)
	return nil
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			a, b := h[i+j], n[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type fakeCalendar struct {
	events     map[string]*calendar.Event
	searchHits []*calendar.Event
	rangeHits  []*calendar.Event

	searchCalls int
	getCalls    []string
}

func (c *fakeCalendar) GetEventByID(ctx context.Context, eventID string) (*calendar.Event, error) {
	c.getCalls = append(c.getCalls, eventID)
	return c.events[eventID], nil
}

func (c *fakeCalendar) ListEventsByTimeRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error) {
	return c.rangeHits, nil
}

func (c *fakeCalendar) SearchByKeyword(ctx context.Context, keyword string, daysBack, limit int) ([]*calendar.Event, error) {
	c.searchCalls++
	return c.searchHits, nil
}

type fakeLLM struct {
	responses []string
	requests  []llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type fakeTranscripts struct {
	byID  map[string]string
	calls []string
}

func (f *fakeTranscripts) FetchTranscript(ctx context.Context, meetingID string, expectedDate *time.Time) (string, error) {
	f.calls = append(f.calls, meetingID)
	if t, ok := f.byID[meetingID]; ok {
		return t, nil
	}
	return "", fmt.Errorf("no transcript for meeting %s", meetingID)
}

func newTestEngine(t *testing.T, st *fakeStore, cal *fakeCalendar, model *fakeLLM, ts *fakeTranscripts) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := New(Options{
		Store:       st,
		Calendar:    cal,
		Finder:      resolve.NewFinder(st, cal, logger),
		Transcripts: ts,
		Ingestor:    tools.NewIngestor(st, ts, model, logger),
		Summarizer:  tools.NewSummarizer(model, logger),
		Followups:   tools.NewFollowupWriter(model, logger),
		Briefs:      tools.NewBriefWriter(model, logger),
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return eng
}

func pastDate(daysAgo int) *time.Time {
	d := testNow.AddDate(0, 0, -daysAgo)
	return &d
}

func event(id, summary string, daysAgo int) *calendar.Event {
	return &calendar.Event{
		ID:      id,
		Summary: summary,
		Start:   calendar.EventTime{DateTime: testNow.AddDate(0, 0, -daysAgo).Format(time.RFC3339)},
	}
}

func summarizePlan() *schema.WorkflowPlan {
	return &schema.WorkflowPlan{
		Steps: []schema.Step{
			{Action: schema.ActionFindMeeting, Tool: "meeting_finder"},
			{Action: schema.ActionRetrieveTranscript, Tool: "transcript_retrieval"},
			{Action: schema.ActionSummarize, Tool: "summarization"},
		},
		RequiredData: []string{"meeting_id", "transcript"},
	}
}

func TestExecuteNoPlan(t *testing.T) {
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{UserID: 1})
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = eng.Execute(context.Background(), Request{
		UserID: 1,
		Plan:   &schema.WorkflowPlan{Steps: []schema.Step{{Note: "just a note"}}},
	})
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestExecuteSummarizeHappyPath(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	clientID := int64(1)
	st.addMeeting(&store.Meeting{
		ID: 7, UserID: 1, ClientID: &clientID,
		Title: "Acme Sync", MeetingDate: pastDate(2),
		Attendees:  "Dana, Robin",
		Transcript: "Dana: let's ship it. Robin: agreed.",
	})
	cal := &fakeCalendar{}
	model := &fakeLLM{responses: []string{
		"## Overview:\nShipping was agreed.",
		`{"decisions": [{"description": "Ship it", "context": "agreed by all"}]}`,
	}}
	eng := newTestEngine(t, st, cal, model, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      summarizePlan(),
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "summarization", tr.ToolName)
	assert.Empty(t, tr.Error)
	assert.Equal(t, "## Overview:\nShipping was agreed.", tr.Result["summary"])
	assert.Equal(t, true, tr.Result["has_transcript"])

	// Database resolution only: the calendar is never consulted.
	assert.Zero(t, cal.searchCalls)
	assert.Empty(t, cal.getCalls)

	// The summary is persisted and the meeting remembered for next time.
	require.Contains(t, st.updates, int64(7))
	require.NotNil(t, st.updates[7].Summary)
	require.Len(t, st.setEntries, 1)
	assert.Equal(t, store.MemoryLastSelectedMeeting, st.setEntries[0].Key)
	assert.Equal(t, json.RawMessage("7"), st.setEntries[0].Value)
}

func TestExecuteMissingPrerequisites(t *testing.T) {
	model := &fakeLLM{}
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, model, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		Intent: "summarization",
		UserID: 1,
		Plan: &schema.WorkflowPlan{
			Steps:        []schema.Step{{Action: schema.ActionSummarize, Tool: "summarization"}},
			RequiredData: []string{"meeting_id"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Contains(t, tr.Error, "Missing prerequisites")
	assert.Contains(t, tr.Error, "meeting_id")
	assert.Empty(t, model.requests, "no step should execute when prerequisites are missing")
}

func TestExecuteNoFallbackFailure(t *testing.T) {
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan: &schema.WorkflowPlan{
			Steps: []schema.Step{{Action: schema.ActionFindMeeting, Tool: "meeting_finder"}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "meeting_finder", tr.ToolName)
	assert.Equal(t, "Step 'find_meeting' did not produce required output", tr.Error)
}

func TestExecuteUnknownAction(t *testing.T) {
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		UserID: 1,
		Plan: &schema.WorkflowPlan{
			Steps: []schema.Step{{Action: "launch_rocket", Tool: "rocketry"}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Contains(t, tr.Error, "Unknown action")
	assert.Contains(t, tr.Error, "launch_rocket")
}

func TestExecuteFallbackResolvesFromCalendar(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	ev := event("ev-1", "Acme Sync", 2)
	ev.Location = "https://zoom.us/j/9876543210"
	cal := &fakeCalendar{
		events:     map[string]*calendar.Event{"ev-1": ev},
		searchHits: []*calendar.Event{ev},
	}
	ts := &fakeTranscripts{byID: map[string]string{"9876543210": "Dana: quarterly numbers look good."}}
	model := &fakeLLM{responses: []string{
		"## Overview:\nNumbers look good.",
		`{"decisions": []}`,
	}}
	eng := newTestEngine(t, st, cal, model, ts)

	plan := summarizePlan()
	plan.Steps[0].Fallbacks = []schema.Fallback{
		{Action: schema.FallbackResolveFromCalendar, Conditions: []schema.Condition{schema.CondNoDBMatch}, MaxAttempts: 1},
		{Action: schema.FallbackUseLastSelected, MaxAttempts: 1},
	}

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "summarization", tr.ToolName)
	assert.Empty(t, tr.Error)
	assert.Equal(t, "## Overview:\nNumbers look good.", tr.Result["summary"])

	// The first fallback recovered, so the second never ran.
	assert.Zero(t, st.getMemoryCalls)
	// Ingestion persisted the meeting with its fetched transcript.
	require.Contains(t, st.byEvent, "ev-1")
	assert.Equal(t, "Dana: quarterly numbers look good.", st.byEvent["ev-1"].Transcript)
}

func TestExecuteFallbackUsesLastSelectedMeeting(t *testing.T) {
	st := newFakeStore()
	st.addMeeting(&store.Meeting{
		ID: 123, UserID: 1, Title: "Acme Sync", MeetingDate: pastDate(3),
		Transcript: "Dana: decisions were made.",
	})
	st.memory[store.MemoryLastSelectedMeeting] = json.RawMessage(`"123"`)
	model := &fakeLLM{responses: []string{
		"## Overview:\nDecisions were made.",
		`{"decisions": []}`,
	}}
	eng := newTestEngine(t, st, &fakeCalendar{}, model, &fakeTranscripts{})

	plan := summarizePlan()
	plan.Steps[0].Fallbacks = []schema.Fallback{
		{Action: schema.FallbackResolveFromCalendar, MaxAttempts: 1},
		{Action: schema.FallbackUseLastSelected, MaxAttempts: 1},
	}

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "summarization", tr.ToolName)
	assert.Empty(t, tr.Error)
	assert.Contains(t, st.getMeetingIDs, int64(123))
}

func TestExecuteAllFallbacksFailed(t *testing.T) {
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	plan := summarizePlan()
	plan.Steps[0].Fallbacks = []schema.Fallback{
		{Action: schema.FallbackResolveFromCalendar, MaxAttempts: 1},
		{Action: schema.FallbackUseLastSelected, MaxAttempts: 1},
	}

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Contains(t, tr.Error, "All fallbacks failed")
	assert.Contains(t, tr.Error, "find_meeting")
	assert.Contains(t, tr.Error, "use_last_selected_meeting")
}

func TestExecuteAmbiguitySurfacesCandidates(t *testing.T) {
	older := event("ev-old", "Acme Planning", 9)
	newer := event("ev-new", "Acme Sync", 2)
	cal := &fakeCalendar{searchHits: []*calendar.Event{older, newer}}
	eng := newTestEngine(t, newFakeStore(), cal, &fakeLLM{}, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan: &schema.WorkflowPlan{
			Steps: []schema.Step{{Action: schema.ActionRetrieveCalendarEvent, Tool: "summarization"}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.True(t, tr.RequiresSelection)
	assert.Equal(t, "select_meeting", tr.Action)
	require.Len(t, tr.MeetingOptions, 2)
	// Newest first.
	assert.Equal(t, "ev-new", tr.MeetingOptions[0].CalendarEventID)
	assert.Equal(t, "ev-old", tr.MeetingOptions[1].CalendarEventID)
}

func TestExecuteAutoResolvesLastMeeting(t *testing.T) {
	older := event("ev-old", "Acme Planning", 9)
	newer := event("ev-new", "Acme Sync", 2)
	newer.Location = "https://zoom.us/j/9876543210"
	cal := &fakeCalendar{
		events:     map[string]*calendar.Event{"ev-old": older, "ev-new": newer},
		searchHits: []*calendar.Event{older, newer},
	}
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	ts := &fakeTranscripts{byID: map[string]string{"9876543210": "Dana: the sync went well."}}
	model := &fakeLLM{responses: []string{
		"## Overview:\nThe sync went well.",
		`{"decisions": []}`,
	}}
	eng := newTestEngine(t, st, cal, model, ts)

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my last meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan: &schema.WorkflowPlan{
			Steps: []schema.Step{
				{Action: schema.ActionRetrieveCalendarEvent, Tool: "summarization"},
				{Action: schema.ActionRetrieveTranscript, Tool: "transcript_retrieval"},
				{Action: schema.ActionSummarize, Tool: "summarization"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.False(t, tr.RequiresSelection)
	assert.Equal(t, "summarization", tr.ToolName)
	// The heuristic picked the most recent candidate.
	assert.Contains(t, cal.getCalls, "ev-new")
	require.Contains(t, st.byEvent, "ev-new")
}

func TestExecuteAskUserFallback(t *testing.T) {
	older := event("ev-old", "Acme Planning", 9)
	newer := event("ev-new", "Acme Sync", 2)
	cal := &fakeCalendar{searchHits: []*calendar.Event{older, newer}}
	eng := newTestEngine(t, newFakeStore(), cal, &fakeLLM{}, &fakeTranscripts{})

	plan := &schema.WorkflowPlan{
		Steps: []schema.Step{{
			Action: schema.ActionRetrieveCalendarEvent, Tool: "summarization",
			Fallbacks: []schema.Fallback{{
				Action:        schema.FallbackAskUser,
				Conditions:    []schema.Condition{schema.CondMultipleMatches},
				MaxAttempts:   1,
				MessageToUser: "Which Acme meeting do you mean?",
			}},
		}},
	}

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.True(t, tr.RequiresSelection)
	assert.Equal(t, "Which Acme meeting do you mean?", tr.Message)
	assert.Len(t, tr.MeetingOptions, 2)
}

func TestExecuteForceSummarization(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	clientID := int64(1)
	st.addMeeting(&store.Meeting{
		ID: 9, UserID: 1, ClientID: &clientID,
		Title: "Acme Kickoff", MeetingDate: pastDate(1),
		Attendees: "Dana",
	})
	model := &fakeLLM{responses: []string{"## Overview:\nKickoff, no recording."}}
	eng := newTestEngine(t, st, &fakeCalendar{}, model, &fakeTranscripts{})

	plan := &schema.WorkflowPlan{
		Steps: []schema.Step{
			{Action: schema.ActionFindMeeting, Tool: "meeting_finder"},
			{
				Action: schema.ActionRetrieveTranscript, Tool: "transcript_retrieval",
				Fallbacks: []schema.Fallback{{
					Action:      schema.FallbackForceSummarization,
					Conditions:  []schema.Condition{schema.CondNoTranscript},
					MaxAttempts: 1,
				}},
			},
		},
	}

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my Acme kickoff",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "summarization", tr.ToolName)
	assert.Equal(t, false, tr.Result["has_transcript"])
	require.Len(t, model.requests, 1)
	assert.Contains(t, model.requests[0].Prompt, "no recording is available")
}

func TestExecuteSkipStepContinues(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	clientID := int64(1)
	st.addMeeting(&store.Meeting{
		ID: 4, UserID: 1, ClientID: &clientID,
		Title: "Acme Sync", MeetingDate: pastDate(2),
		Transcript: "Dana: all good.",
	})
	model := &fakeLLM{responses: []string{
		"## Overview:\nAll good.",
		`{"decisions": []}`,
	}}
	eng := newTestEngine(t, st, &fakeCalendar{}, model, &fakeTranscripts{})

	// An unrecognized step with a skip fallback: the workflow shrugs it
	// off and carries on.
	plan := summarizePlan()
	plan.RequiredData = nil
	plan.Steps = append([]schema.Step{{
		Action: "fetch_weather", Tool: "weather",
		Fallbacks: []schema.Fallback{{Action: schema.FallbackSkipStep, MaxAttempts: 1}},
	}}, plan.Steps...)

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		Message:   "summarize my meeting with Acme",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "summarization", tr.ToolName)
	assert.Empty(t, tr.Error)
}

func TestExecuteLoopGuard(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	clientID := int64(1)
	st.addMeeting(&store.Meeting{
		ID: 5, UserID: 1, ClientID: &clientID,
		Title: "Acme Sync", MeetingDate: pastDate(2),
	})
	eng := newTestEngine(t, st, &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	step := schema.Step{Action: schema.ActionFindMeeting, Tool: "meeting_finder"}
	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      &schema.WorkflowPlan{Steps: []schema.Step{step, step, step, step}},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Contains(t, tr.Error, "find_meeting")
	assert.Contains(t, tr.Error, "aborting workflow")
}

func TestExecuteFallbackBudgetExceeded(t *testing.T) {
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, &fakeLLM{}, &fakeTranscripts{})

	// Each step spends two fallback attempts: a declined calendar
	// resolution and a successful skip. The sixth attempt trips the
	// per-run budget.
	step := schema.Step{
		Action: schema.ActionFindMeeting, Tool: "meeting_finder",
		Fallbacks: []schema.Fallback{
			{Action: schema.FallbackResolveFromCalendar, MaxAttempts: 1},
			{Action: schema.FallbackSkipStep, MaxAttempts: 1},
		},
	}
	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "summarization",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      &schema.WorkflowPlan{Steps: []schema.Step{step, step, step}},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Contains(t, tr.Error, "Fallback budget exceeded")
}

func TestExecuteWhenGateSkipsStep(t *testing.T) {
	model := &fakeLLM{}
	eng := newTestEngine(t, newFakeStore(), &fakeCalendar{}, model, &fakeTranscripts{})

	tr, err := eng.Execute(context.Background(), Request{
		Intent: "summarization",
		UserID: 1,
		Plan: &schema.WorkflowPlan{
			Steps: []schema.Step{{
				Action: schema.ActionSummarize, Tool: "summarization",
				When: "context.has_meeting",
			}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "workflow", tr.ToolName)
	assert.Empty(t, model.requests, "gated step must not run its tool")
	steps, ok := tr.Result["steps"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, steps, 1)
	assert.Equal(t, string(schema.StepSkipped), steps[0]["status"])
}

func TestExecuteFollowupAfterSummary(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 1, UserID: 1, Name: "Acme"}}
	clientID := int64(1)
	st.addMeeting(&store.Meeting{
		ID: 11, UserID: 1, ClientID: &clientID,
		Title: "Acme Sync", MeetingDate: pastDate(2),
		Transcript: "Dana: send the proposal by Friday.",
	})
	model := &fakeLLM{responses: []string{
		"## Overview:\nProposal due Friday.",
		`{"decisions": [{"description": "Send proposal by Friday"}]}`,
		"Subject: Acme Sync Follow-up\n\nHi Dana,\n\nAs discussed, the proposal is due Friday.",
	}}
	eng := newTestEngine(t, st, &fakeCalendar{}, model, &fakeTranscripts{})

	plan := summarizePlan()
	plan.Steps = append(plan.Steps, schema.Step{Action: schema.ActionGenerateFollowup, Tool: "followup"})

	tr, err := eng.Execute(context.Background(), Request{
		Intent:    "followup",
		Message:   "draft a follow-up for my Acme meeting",
		UserID:    1,
		Selection: extract.Selection{ClientName: "Acme"},
		Plan:      plan,
	})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "followup", tr.ToolName)
	assert.Equal(t, "Acme Sync Follow-up", tr.Result["subject"])
	// The follow-up prompt carried the summary produced upstream.
	require.Len(t, model.requests, 3)
	assert.Contains(t, model.requests[2].Prompt, "Proposal due Friday")
}
