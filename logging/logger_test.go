package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestTextFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "unmapped kind tag",
		Data:    logrus.Fields{"component": "normalizer", "kind": "WeirdTool"},
	}

	t.Run("default preset", func(t *testing.T) {
		f := &TextFormatter{}
		out, err := f.Format(entry)
		assert.NoError(t, err)
		s := string(out)
		assert.Contains(t, s, "2026-03-14 09:30:00")
		assert.Contains(t, s, "[WARN]")
		assert.Contains(t, s, "unmapped kind tag")
		assert.Contains(t, s, "kind=WeirdTool")
	})

	t.Run("simple preset hides timestamp and component", func(t *testing.T) {
		f := &TextFormatter{Config: FormatConfig{DisableTimestamp: true, DisableComponent: true}}
		out, err := f.Format(entry)
		assert.NoError(t, err)
		s := string(out)
		assert.NotContains(t, s, "2026-03-14")
		assert.NotContains(t, s, "normalizer")
		assert.Contains(t, s, "unmapped kind tag")
	})
}

func TestLevelFromWorker(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, LevelFromWorker("error"))
	assert.Equal(t, logrus.WarnLevel, LevelFromWorker("warning"))
	assert.Equal(t, logrus.InfoLevel, LevelFromWorker("info"))
	assert.Equal(t, logrus.DebugLevel, LevelFromWorker("debug"))
	assert.Equal(t, logrus.TraceLevel, LevelFromWorker("trace"))
	assert.Equal(t, logrus.TraceLevel, LevelFromWorker("bogus"))
}

func TestNewLoggerSingleton(t *testing.T) {
	a := NewLogger("logging-test")
	b := NewLogger("logging-test")
	assert.Same(t, a, b)

	var buf bytes.Buffer
	a.Logger.SetOutput(&buf)
	a.Logger.SetFormatter(&TextFormatter{Config: FormatConfig{DisableTimestamp: true}})
	a.Info("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
}
