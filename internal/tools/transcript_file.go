package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileTranscripts serves transcripts from a local directory where each
// file is named <meeting id>.txt. It stands in wherever a real
// conferencing provider client would.
type FileTranscripts struct {
	dir string
}

func NewFileTranscripts(dir string) *FileTranscripts {
	return &FileTranscripts{dir: dir}
}

func (f *FileTranscripts) FetchTranscript(ctx context.Context, meetingID string, expectedDate *time.Time) (string, error) {
	if meetingID == "" {
		return "", fmt.Errorf("meeting id is empty")
	}
	data, err := os.ReadFile(filepath.Join(f.dir, meetingID+".txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading transcript for meeting %s: %w", meetingID, err)
	}
	return string(data), nil
}
