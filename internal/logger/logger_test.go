package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level)
	l.SetOutput(&buf)
	l.EnableColors(false)
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger("warn")
	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warnf("shown %d", 1)
	l.Error("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN ]")
	assert.Contains(t, out, "shown 1")
	assert.Contains(t, out, "[ERROR]")
}

func TestCallerIsReported(t *testing.T) {
	l, buf := newBufferLogger("debug")
	l.Info("where")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestWithPrefixesComponent(t *testing.T) {
	l, buf := newBufferLogger("debug")
	child := l.With("probes").With("baker")
	child.Infof("baked %d", 3)
	assert.Contains(t, buf.String(), "[probes/baker] baked 3")

	l.SetLevel("error")
	child.Info("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}

func TestFatalCallsExit(t *testing.T) {
	l, buf := newBufferLogger("debug")
	code := -1
	l.out.exit = func(c int) { code = c }
	l.Fatalf("boom %s", "now")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL]")
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lumen.log")
	l, err := NewFileLogger("info", path)
	require.NoError(t, err)
	l.Info("persisted")
	l.Close()
	assert.FileExists(t, path)
}
