package xtransport

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRenderer 统计 Format 调用次数的渲染器。
type countingRenderer struct {
	calls atomic.Int64
	inner NDJSONRenderer
}

func (r *countingRenderer) Format(batch []Entry) ([]byte, error) {
	r.calls.Add(1)
	return r.inner.Format(batch)
}

func (r *countingRenderer) ContentType() string {
	return r.inner.ContentType()
}

func TestPipeline_FanOut(t *testing.T) {
	t.Parallel()

	var buf1, buf2 bytes.Buffer
	t1, err := NewConsole(ConsoleConfig{Writer: &buf1})
	require.NoError(t, err)
	t2, err := NewConsole(ConsoleConfig{Writer: &buf2})
	require.NoError(t, err)

	p := NewPipeline(t1, nil, t2)
	require.Len(t, p.Transports(), 2, "nil transport 被忽略")

	p.Log(entry("fan out"))
	require.NoError(t, p.Close(context.Background()))

	assert.Contains(t, buf1.String(), "fan out")
	assert.Contains(t, buf2.String(), "fan out")
}

// 多个 offload transport 共享渲染器时，ShipBatch 只序列化一次，
// 载荷经 RawForward 直达各副本。
func TestPipeline_ShipBatchSerializesOnce(t *testing.T) {
	t.Parallel()

	shared := &countingRenderer{}
	var buf1, buf2 bytes.Buffer
	t1, err := NewConsole(ConsoleConfig{Writer: &buf1, Renderer: shared})
	require.NoError(t, err)
	t2, err := NewConsole(ConsoleConfig{Writer: &buf2, Renderer: shared})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, t1.RunAsWorker(ctx))
	require.NoError(t, t2.RunAsWorker(ctx))

	p := NewPipeline(t1, t2)
	batch := []Entry{entry("a"), entry("b"), entry("c")}
	p.ShipBatch(batch)

	_, err = p.FlushAndWait(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Close(ctx))

	assert.Equal(t, int64(1), shared.calls.Load(), "共享渲染器的批次只序列化一次")
	assert.Equal(t, 3, strings.Count(buf1.String(), "\n"))
	assert.Equal(t, 3, strings.Count(buf2.String(), "\n"))
}

// funcRenderer 动态类型不可比较（含函数字段）的渲染器。
type funcRenderer struct {
	format func([]Entry) ([]byte, error)
}

func (r funcRenderer) Format(batch []Entry) ([]byte, error) { return r.format(batch) }

func (r funcRenderer) ContentType() string { return "application/x-ndjson" }

// 调用方提供的渲染器动态类型可以不可比较，
// 分组必须避开接口相等判断，这类渲染器各自成组但仍正确投递。
func TestPipeline_ShipBatchUncomparableRenderer(t *testing.T) {
	t.Parallel()

	r := funcRenderer{format: NDJSONRenderer{}.Format}
	var buf1, buf2 bytes.Buffer
	t1, err := NewConsole(ConsoleConfig{Writer: &buf1, Renderer: r})
	require.NoError(t, err)
	t2, err := NewConsole(ConsoleConfig{Writer: &buf2, Renderer: r})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, t1.RunAsWorker(ctx))
	require.NoError(t, t2.RunAsWorker(ctx))

	p := NewPipeline(t1, t2)
	assert.NotPanics(t, func() {
		p.ShipBatch([]Entry{entry("one"), entry("two")})
	})

	_, err = p.FlushAndWait(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Close(ctx))

	assert.Equal(t, 2, strings.Count(buf1.String(), "\n"))
	assert.Equal(t, 2, strings.Count(buf2.String(), "\n"))
}

func TestPipeline_ShipBatchLocalFallsBackToLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tr, err := NewConsole(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)

	p := NewPipeline(tr)
	p.ShipBatch([]Entry{entry("x"), entry("y")})
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Equal(t, int64(2), tr.Requested())
}

func TestPipeline_FlushAndWaitAggregates(t *testing.T) {
	t.Parallel()

	t1, err := NewConsole(ConsoleConfig{Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	t2, err := NewConsole(ConsoleConfig{Writer: &bytes.Buffer{}})
	require.NoError(t, err)

	p := NewPipeline(t1, t2)
	p.Log(entry("x"))

	reached, err := p.FlushAndWait(context.Background())
	require.NoError(t, err)
	assert.True(t, reached)
	require.NoError(t, p.Close(context.Background()))
}
