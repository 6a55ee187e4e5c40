package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tektoncd/tekton-lsp/internal/config"
)

func TestPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Printf("Formatted %s", "task.yaml")
	Println("No issues", "found.")
	assert.Equal(t, "Formatted task.yaml\nNo issues found.\n", buf.String())
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsp.log")
	log, err := New(config.Log{Level: "warn", File: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "kept")
	assert.NotContains(t, string(content), "dropped")
}

func TestNewRejectsLevel(t *testing.T) {
	_, err := New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
