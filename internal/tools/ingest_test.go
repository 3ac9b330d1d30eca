package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvik/meetwise/internal/calendar"
	"github.com/solvik/meetwise/internal/store"
	"github.com/solvik/meetwise/pkg/schema"
)

// fakeStore implements the store methods the ingestor touches. Everything
// else panics through the embedded nil interface.
type fakeStore struct {
	store.Store

	meetings map[string]*store.Meeting // keyed by calendar event id
	clients  []*store.Client
	created  []*store.Meeting
	updated  map[int64]store.MeetingUpdate
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings: make(map[string]*store.Meeting),
		updated:  make(map[int64]store.MeetingUpdate),
		nextID:   100,
	}
}

func (f *fakeStore) GetMeetingByCalendarEventID(_ context.Context, userID int64, eventID string) (*store.Meeting, error) {
	if m, ok := f.meetings[eventID]; ok && m.UserID == userID {
		return m, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "meeting for event %s not found", eventID)
}

func (f *fakeStore) CreateMeeting(_ context.Context, m *store.Meeting) error {
	f.nextID++
	m.ID = f.nextID
	f.created = append(f.created, m)
	f.meetings[m.CalendarEventID] = m
	return nil
}

func (f *fakeStore) UpdateMeeting(_ context.Context, id int64, update store.MeetingUpdate) error {
	f.updated[id] = update
	return nil
}

func (f *fakeStore) SearchClientsByName(_ context.Context, _ int64, name string) ([]*store.Client, error) {
	var out []*store.Client
	for _, c := range f.clients {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeTranscripts struct {
	transcript string
	err        error
	calls      int
}

func (f *fakeTranscripts) FetchTranscript(_ context.Context, _ string, _ *time.Time) (string, error) {
	f.calls++
	return f.transcript, f.err
}

func zoomEvent(id, title string, start time.Time) *calendar.Event {
	return &calendar.Event{
		ID:       id,
		Summary:  title,
		Location: "https://zoom.us/j/9876543210",
		Start:    calendar.EventTime{DateTime: start.Format(time.RFC3339)},
	}
}

func TestProcessEventCreatesMeeting(t *testing.T) {
	st := newFakeStore()
	ts := &fakeTranscripts{transcript: "Alice: hello"}
	g := NewIngestor(st, ts, &fakeLLM{}, nil)

	start := time.Date(2024, 11, 21, 15, 0, 0, 0, time.UTC)
	res, err := g.ProcessEvent(context.Background(), zoomEvent("ev-1", "Acme sync", start), 1, int64Ptr(7))
	require.NoError(t, err)

	assert.True(t, res.HasTranscript)
	assert.Equal(t, "Alice: hello", res.Transcript)
	require.NotNil(t, res.MeetingID)

	require.Len(t, st.created, 1)
	m := st.created[0]
	assert.Equal(t, "ev-1", m.CalendarEventID)
	assert.Equal(t, "9876543210", m.ZoomMeetingID)
	assert.Equal(t, int64(7), *m.ClientID)
	assert.Equal(t, "Alice: hello", m.Transcript)
}

func TestProcessEventNoConferencingID(t *testing.T) {
	st := newFakeStore()
	g := NewIngestor(st, &fakeTranscripts{}, &fakeLLM{}, nil)

	ev := &calendar.Event{
		ID:      "ev-2",
		Summary: "Offline lunch",
		Start:   calendar.EventTime{Date: "2024-11-21"},
	}
	res, err := g.ProcessEvent(context.Background(), ev, 1, nil)
	require.NoError(t, err)

	assert.False(t, res.HasTranscript)
	assert.Nil(t, res.MeetingID)
	assert.Empty(t, st.created)
}

func TestProcessEventNoStartTime(t *testing.T) {
	g := NewIngestor(newFakeStore(), &fakeTranscripts{}, &fakeLLM{}, nil)

	_, err := g.ProcessEvent(context.Background(), &calendar.Event{ID: "ev-3"}, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid start time")
}

func TestProcessEventInvalidTranscriptRejected(t *testing.T) {
	st := newFakeStore()
	ts := &fakeTranscripts{transcript: "Error: no recording"}
	g := NewIngestor(st, ts, &fakeLLM{}, nil)

	start := time.Date(2024, 11, 21, 15, 0, 0, 0, time.UTC)
	res, err := g.ProcessEvent(context.Background(), zoomEvent("ev-4", "Acme sync", start), 1, int64Ptr(7))
	require.NoError(t, err)

	assert.False(t, res.HasTranscript)
	assert.Empty(t, res.Transcript)
	// Meeting row still created so later steps can attach data.
	require.Len(t, st.created, 1)
	assert.Empty(t, st.created[0].Transcript)
}

func TestProcessEventFetchErrorFailsSoft(t *testing.T) {
	st := newFakeStore()
	ts := &fakeTranscripts{err: errors.New("zoom unreachable")}
	g := NewIngestor(st, ts, &fakeLLM{}, nil)

	start := time.Date(2024, 11, 21, 15, 0, 0, 0, time.UTC)
	res, err := g.ProcessEvent(context.Background(), zoomEvent("ev-5", "Acme sync", start), 1, int64Ptr(7))
	require.NoError(t, err)
	assert.False(t, res.HasTranscript)
}

func TestProcessEventReusesExistingMeeting(t *testing.T) {
	st := newFakeStore()
	st.meetings["ev-6"] = &store.Meeting{ID: 42, UserID: 1, CalendarEventID: "ev-6"}
	ts := &fakeTranscripts{transcript: "Alice: hello"}
	g := NewIngestor(st, ts, &fakeLLM{}, nil)

	start := time.Date(2024, 11, 21, 15, 0, 0, 0, time.UTC)
	res, err := g.ProcessEvent(context.Background(), zoomEvent("ev-6", "Acme sync", start), 1, nil)
	require.NoError(t, err)

	require.NotNil(t, res.MeetingID)
	assert.Equal(t, int64(42), *res.MeetingID)
	assert.Empty(t, st.created)

	// The transcript is backfilled onto the existing row.
	update, ok := st.updated[42]
	require.True(t, ok)
	require.NotNil(t, update.Transcript)
	assert.Equal(t, "Alice: hello", *update.Transcript)
}

func TestInferClientDirectMatch(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 3, Name: "Acme"}}
	g := NewIngestor(st, &fakeTranscripts{}, &fakeLLM{}, nil)

	id := g.InferClient(context.Background(), "Acme quarterly sync", "", 1)
	require.NotNil(t, id)
	assert.Equal(t, int64(3), *id)
}

func TestInferClientLLMFallback(t *testing.T) {
	st := newFakeStore()
	st.clients = []*store.Client{{ID: 5, Name: "Good Health"}}
	f := &fakeLLM{responses: []string{"Good Health"}}
	g := NewIngestor(st, &fakeTranscripts{}, f, nil)

	id := g.InferClient(context.Background(), "GH weekly", "alice@goodhealth.com", 1)
	require.NotNil(t, id)
	assert.Equal(t, int64(5), *id)
	assert.NotEmpty(t, f.requests)
}

func TestInferClientNoMatch(t *testing.T) {
	st := newFakeStore()
	f := &fakeLLM{responses: []string{"null"}}
	g := NewIngestor(st, &fakeTranscripts{}, f, nil)

	assert.Nil(t, g.InferClient(context.Background(), "Standup", "", 1))
	assert.Nil(t, g.InferClient(context.Background(), "", "", 1))
}

func int64Ptr(v int64) *int64 { return &v }
