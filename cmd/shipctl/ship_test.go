package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/logship/pkg/delivery/xtransport"
)

func TestParseLine_JSON(t *testing.T) {
	t.Parallel()

	line := []byte(`{"time":"2026-03-01T10:00:00Z","level":"error","msg":"db down","meta":{"host":"n1"}}`)
	e := parseLine(line)

	assert.Equal(t, "db down", e.Message)
	assert.Equal(t, xtransport.LevelError, e.Level)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), e.Time)
	assert.Equal(t, "n1", e.Meta["host"])
}

func TestParseLine_PlainText(t *testing.T) {
	t.Parallel()

	e := parseLine([]byte("panic: something broke"))

	assert.Equal(t, "panic: something broke", e.Message)
	assert.Equal(t, xtransport.LevelInfo, e.Level)
	assert.False(t, e.Time.IsZero())
}

func TestParseLine_JSONWithoutMsg(t *testing.T) {
	t.Parallel()

	// 合法 JSON 但缺 msg 字段，整行作为消息保留
	raw := `{"event":"login"}`
	e := parseLine([]byte(raw))
	assert.Equal(t, raw, e.Message)
}

func TestParseLine_MissingTimeDefaults(t *testing.T) {
	t.Parallel()

	e := parseLine([]byte(`{"msg":"hello"}`))
	assert.Equal(t, "hello", e.Message)
	assert.False(t, e.Time.IsZero())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want xtransport.Level
	}{
		{"trace", xtransport.LevelTrace},
		{"debug", xtransport.LevelDebug},
		{"info", xtransport.LevelInfo},
		{"", xtransport.LevelInfo},
		{"warn", xtransport.LevelWarn},
		{"WARNING", xtransport.LevelWarn},
		{"error", xtransport.LevelError},
		{"fatal", xtransport.LevelFatal},
		{"verbose", xtransport.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestCmdCheck(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	cfg := "sinks:\n  - kind: console\n    name: stdout\n  - kind: http\n    endpoint: http://logs\n    offload: true\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	var out bytes.Buffer
	require.NoError(t, cmdCheck(path, &out))
	assert.Contains(t, out.String(), "sink[0] kind=console name=stdout offload=false")
	assert.Contains(t, out.String(), "sink[1] kind=http name=- offload=true")
	assert.Contains(t, out.String(), "ok: 2 sink(s)")

	require.Error(t, cmdCheck(filepath.Join(t.TempDir(), "missing.yaml"), &out))
}

func TestShipFromReader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tr, err := xtransport.NewConsole(xtransport.ConsoleConfig{
		Writer:   &buf,
		Renderer: xtransport.TextRenderer{},
	})
	require.NoError(t, err)

	s := &shipper{pipeline: xtransport.NewPipeline(tr)}
	input := strings.NewReader(`{"msg":"first","level":"warn"}` + "\n\nplain line\n")

	require.NoError(t, shipFromReader(context.Background(), s, input))
	require.NoError(t, s.close())

	out := buf.String()
	assert.Contains(t, out, "warn first")
	assert.Contains(t, out, "plain line")
	// 空行被跳过
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
