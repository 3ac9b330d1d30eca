package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTranscripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "9876543210.txt"),
		[]byte("Dana: hello everyone."), 0o644))
	svc := NewFileTranscripts(dir)

	got, err := svc.FetchTranscript(context.Background(), "9876543210", nil)
	require.NoError(t, err)
	assert.Equal(t, "Dana: hello everyone.", got)

	got, err = svc.FetchTranscript(context.Background(), "0000000000", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.FetchTranscript(context.Background(), "", nil)
	require.Error(t, err)
}
