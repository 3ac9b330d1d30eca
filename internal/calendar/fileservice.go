package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileService serves events from a local JSON file: an array of Event
// objects in the provider-neutral shape. It stands in wherever a real
// calendar provider would, e.g. for local runs and tests.
type FileService struct {
	events []*Event
	byID   map[string]*Event
}

// NewFileService loads the event file. A missing file yields an empty
// calendar rather than an error.
func NewFileService(path string) (*FileService, error) {
	svc := &FileService{byID: make(map[string]*Event)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return svc, nil
		}
		return nil, fmt.Errorf("reading calendar file: %w", err)
	}
	if err := json.Unmarshal(data, &svc.events); err != nil {
		return nil, fmt.Errorf("parsing calendar file %s: %w", path, err)
	}
	for _, ev := range svc.events {
		if ev.ID != "" {
			svc.byID[ev.ID] = ev
		}
	}
	return svc, nil
}

func (s *FileService) GetEventByID(ctx context.Context, eventID string) (*Event, error) {
	return s.byID[eventID], nil
}

func (s *FileService) ListEventsByTimeRange(ctx context.Context, start, end time.Time) ([]*Event, error) {
	var out []*Event
	for _, ev := range s.events {
		t := ev.StartTime()
		if t.IsZero() || t.Before(start) || !t.Before(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *FileService) SearchByKeyword(ctx context.Context, keyword string, daysBack, limit int) ([]*Event, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -daysBack)

	var out []*Event
	for _, ev := range s.events {
		if !ev.MatchesKeyword(keyword) {
			continue
		}
		t := ev.StartTime()
		if t.Before(cutoff) || !t.Before(now) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
