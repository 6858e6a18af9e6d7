package xtransport

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDJSONRenderer_Format(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []Entry{
		{Message: "first", Level: LevelInfo, Time: ts, Meta: Fields{"user": "u1"}},
		{Message: "second", Level: LevelError, Time: ts, Err: errors.New("boom")},
	}

	payload, err := NDJSONRenderer{}.Format(batch)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	require.Len(t, lines, 2, "每条目一行")

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "first", first["msg"])
	assert.Equal(t, float64(LevelInfo), first["level"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
}

func TestTextRenderer_Format(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payload, err := TextRenderer{}.Format([]Entry{
		{Message: "hello", Level: LevelWarn, Time: ts, Meta: Fields{"b": 2, "a": 1}},
	})
	require.NoError(t, err)

	line := string(payload)
	assert.Contains(t, line, "warn hello")
	assert.Contains(t, line, "a=1 b=2", "字段按键排序")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLevel_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "trace", LevelTrace.String())
	assert.Equal(t, "fatal", LevelFatal.String())
	assert.Equal(t, "unknown", Level(99).String())
}

func TestJSONErrorSerializer(t *testing.T) {
	t.Parallel()

	data := jsonErrorSerializer{}.Serialize(&StatusError{Code: 503})

	var record map[string]string
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Contains(t, record["message"], "503")
	assert.Contains(t, record["kind"], "StatusError")

	assert.Nil(t, jsonErrorSerializer{}.Serialize(nil))
}

func TestEntry_MergeFields(t *testing.T) {
	t.Parallel()

	e := Entry{Message: "m", Meta: Fields{"zone": "us"}}
	merged := e.mergeFields(Fields{"zone": "eu", "service": "api"})

	assert.Equal(t, "us", merged.Meta["zone"], "条目字段优先")
	assert.Equal(t, "api", merged.Meta["service"])
	assert.Equal(t, Fields{"zone": "us"}, e.Meta, "原条目不被修改")
}
