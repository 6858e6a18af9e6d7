package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callbackRecorder 线程安全地收集回调结果。
type callbackRecorder struct {
	mu      sync.Mutex
	results []*Pipeline
	errs    []error
}

func (r *callbackRecorder) record(p *Pipeline, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, p)
	r.errs = append(r.errs, err)
}

func (r *callbackRecorder) last() (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return nil, nil
	}
	return r.results[len(r.results)-1], r.errs[len(r.errs)-1]
}

func (r *callbackRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func TestWatch_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks:\n  - kind: console\n"), 0o644))

	rec := &callbackRecorder{}
	w, err := Watch(path, rec.record, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Stop()) }()

	w.StartAsync()
	// 幂等：重复启动不产生第二个监视循环
	w.StartAsync()

	updated := "sinks:\n  - kind: file\n    path: /tmp/out.log\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return rec.count() > 0
	}, 3*time.Second, 10*time.Millisecond, "应收到重载回调")

	p, cbErr := rec.last()
	require.NoError(t, cbErr)
	require.NotNil(t, p)
	require.Len(t, p.Sinks, 1)
	assert.Equal(t, SinkFile, p.Sinks[0].Kind)
}

func TestWatch_InvalidReloadReportsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks:\n  - kind: console\n"), 0o644))

	rec := &callbackRecorder{}
	w, err := Watch(path, rec.record, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Stop()) }()

	w.StartAsync()

	// 变更后的配置非法：回调应收到错误而非新配置
	require.NoError(t, os.WriteFile(path, []byte("sinks: []\n"), 0o644))

	require.Eventually(t, func() bool {
		return rec.count() > 0
	}, 3*time.Second, 10*time.Millisecond)

	p, cbErr := rec.last()
	assert.Nil(t, p)
	assert.ErrorIs(t, cbErr, ErrNoSinks)
}

func TestWatch_Errors(t *testing.T) {
	t.Parallel()

	_, err := Watch("", nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Watch("pipeline.toml", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks:\n  - kind: console\n"), 0o644))

	w, err := Watch(path, nil)
	require.NoError(t, err)

	w.StartAsync()
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
