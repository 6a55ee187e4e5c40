package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.True(t, cfg.Validation.UnknownFields)
	assert.True(t, cfg.Format.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[log]
level = "debug"

[index]
backend = "sqlite"
scan = true

[validation]
disabled = ["unknown-field"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.True(t, cfg.Index.Scan)
	assert.Equal(t, 8, cfg.Index.ScanConcurrency, "unset keys keep their default")
	assert.Equal(t, []string{"unknown-field"}, cfg.Validation.Disabled)
	assert.True(t, cfg.Validation.UnknownFields)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[log\nlevel = 1"},
		{"unknown key", "[index]\nbackned = \"sqlite\"\n"},
		{"bad backend", "[index]\nbackend = \"redis\"\n"},
		{"bad tag", "[validation]\ndisabled = [\"everything\"]\n"},
		{"bad concurrency", "[index]\nscanConcurrency = 0\n"},
		{"bad debug address", "[debug]\naddr = \"not an address\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0o644))
			_, err := Load(dir)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestOverlay(t *testing.T) {
	cfg := Default()
	opts := map[string]interface{}{
		"index":      map[string]interface{}{"watch": true},
		"validation": map[string]interface{}{"unknownFields": false},
		"debug":      map[string]interface{}{"addr": "localhost:6060"},
	}
	require.NoError(t, cfg.Overlay(opts))
	assert.True(t, cfg.Index.Watch)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.False(t, cfg.Validation.UnknownFields)
	assert.Equal(t, "localhost:6060", cfg.Debug.Addr)

	require.NoError(t, cfg.Overlay(nil))
	assert.ErrorIs(t, cfg.Overlay(map[string]interface{}{"log": map[string]interface{}{"level": "loud"}}), ErrInvalid)
	assert.ErrorIs(t, cfg.Overlay(map[string]interface{}{"index": "sqlite"}), ErrInvalid)
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "[index]")

	cfg := &Config{}
	require.NoError(t, cfg.Decode(out))
	assert.Equal(t, Default().Index, cfg.Index)
	assert.Equal(t, Default().Log, cfg.Log)
	assert.Empty(t, cfg.Validation.Disabled)
	assert.True(t, cfg.Validation.UnknownFields)
}
