package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)
	l.Info("dropped")
	l.Named("hooks").Warn("kept", "hook", "greet")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"component":"hooks"`)
	assert.Contains(t, buf.String(), `"hook":"greet"`)

	buf.Reset()
	NewWithWriter(Config{}, &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "demo.log")
	l, err := New(Config{
		Format:      "json",
		OutputPaths: []string{path},
		Rotate:      RotateConfig{MaxSizeMB: 1, MaxBackups: 1},
	})
	require.NoError(t, err)

	l.Info("to file", "n", 1)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestNewDefaultsToStdout(t *testing.T) {
	l, err := New(Config{OutputPaths: []string{"stdout", "stderr"}})
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}
