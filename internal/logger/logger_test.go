package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and restores the
// previous writer, level and format on cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := new(bytes.Buffer)

	mu.Lock()
	prevOutput, prevColor := output, useColor
	mu.Unlock()
	prevLevel := GetLevel()
	prevFormat, _ := currentFormat.Load().(string)

	InitWithWriter(buf, "INFO", "text", false)

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = prevOutput, prevColor
		mu.Unlock()
		SetLevel(prevLevel.String())
		SetFormat(prevFormat)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug-msg", "info-msg", "warn-msg", "error-msg"}, nil},
		{"INFO", []string{"info-msg", "warn-msg", "error-msg"}, []string{"debug-msg"}},
		{"WARN", []string{"warn-msg", "error-msg"}, []string{"debug-msg", "info-msg"}},
		{"ERROR", []string{"error-msg"}, []string{"debug-msg", "info-msg", "warn-msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug-msg")
			Info("info-msg")
			Warn("warn-msg")
			Error("error-msg")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		captureOutput(t)
		SetLevel("debug")
		assert.Equal(t, LevelDebug, GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		captureOutput(t)
		SetLevel("WARN")
		SetLevel("LOUD")
		assert.Equal(t, LevelWarn, GetLevel())
	})

	t.Run("AcceptsWarningAlias", func(t *testing.T) {
		l, ok := ParseLevel("warning")
		assert.True(t, ok)
		assert.Equal(t, LevelWarn, l)
	})
}

func TestTextFormat(t *testing.T) {
	t.Run("TimestampLevelAndFields", func(t *testing.T) {
		buf := captureOutput(t)

		Info("remap", KeyArena, 2, KeyLane, uint32(7), KeyPath, "/tmp/a b")

		line := buf.String()
		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[INFO \] remap`, line)
		assert.Contains(t, line, "arena=2")
		assert.Contains(t, line, "lane=7")
		assert.Contains(t, line, `path="/tmp/a b"`)
		assert.True(t, strings.HasSuffix(line, "\n"))
	})

	t.Run("GroupsAreDotted", func(t *testing.T) {
		buf := captureOutput(t)

		With("device", "dev0").WithGroup("geo").Info("attached", "nlba", 100)

		assert.Contains(t, buf.String(), "device=dev0")
		assert.Contains(t, buf.String(), "geo.nlba=100")
	})

	t.Run("ErrorValuesAreQuoted", func(t *testing.T) {
		buf := captureOutput(t)

		Warn("io error", KeyError, errors.New("short read"))

		assert.Contains(t, buf.String(), `error="short read"`)
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")

	Info("formatted", KeyArenas, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "formatted", rec["msg"])
	assert.Equal(t, float64(3), rec[KeyArenas])
}

func TestContextFields(t *testing.T) {
	buf := captureOutput(t)

	lc := NewLogContext("dev0").WithTrace("t-1", "s-1").WithRequest("r-9", "10.0.0.1")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "read", KeySector, uint64(5))

	out := buf.String()
	assert.Contains(t, out, "trace_id=t-1")
	assert.Contains(t, out, "span_id=s-1")
	assert.Contains(t, out, "request_id=r-9")
	assert.Contains(t, out, "device=dev0")
	assert.Contains(t, out, "client_ip=10.0.0.1")
	assert.Less(t, strings.Index(out, "trace_id"), strings.Index(out, "sector"))
}

func TestContextMissing(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	var lc *LogContext
	assert.Nil(t, lc.Clone())
	assert.Zero(t, lc.DurationMs())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				Info("concurrent", "worker", i, "iter", j)
				if j%10 == 0 {
					SetLevel("INFO")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16*50, strings.Count(buf.String(), "concurrent"))
}
