package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungdetect/internal/config"
)

func TestNewLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	defer l.Close()

	l.Info("model loaded from %s", "model.onnx")
	l.Warning("queue full")
	l.Error("inference failed: %v", "boom")

	info, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(info), "model loaded from model.onnx")

	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Contains(t, string(warning), "queue full")
	assert.NotContains(t, string(warning), "model loaded")

	errs, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "inference failed: boom")
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	defer l.Close()

	l.Error("something broke")
	require.NoError(t, l.CleanLogs(ErrorFile))

	errs, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Empty(t, errs)

	assert.Error(t, l.CleanLogs("../../etc/passwd"))
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Info("hello %d", 1)
	l.Warning("careful")

	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "hello 1")
	assert.Contains(t, buf.String(), "WARNING")
	assert.Empty(t, l.Dir())
	assert.NoError(t, l.CleanLogs(InfoFile))
}
