package xtransport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDispatch 启动分拣循环并返回捕获到的带外错误。
func startDispatch(w *worker) *struct {
	mu       sync.Mutex
	payloads []string
} {
	captured := &struct {
		mu       sync.Mutex
		payloads []string
	}{}
	go w.dispatch(func(payload string) {
		captured.mu.Lock()
		captured.payloads = append(captured.payloads, payload)
		captured.mu.Unlock()
	})
	return captured
}

func TestWorker_AwaitMatchingToken(t *testing.T) {
	t.Parallel()

	w := newWorker()
	startDispatch(w)
	defer close(w.replies)

	w.replies <- tokenDrained
	assert.NoError(t, w.await(context.Background(), tokenDrained, time.Second))
}

func TestWorker_ErrorTaggedDoesNotSatisfyHandshake(t *testing.T) {
	t.Parallel()

	w := newWorker()
	captured := startDispatch(w)
	defer close(w.replies)

	// 带外错误先到，握手必须继续等待真正的回复令牌
	w.replies <- errorTag + `{"message":"disk full"}`
	w.replies <- tokenDrained

	require.NoError(t, w.await(context.Background(), tokenDrained, time.Second))

	captured.mu.Lock()
	defer captured.mu.Unlock()
	require.Len(t, captured.payloads, 1)
	assert.Contains(t, captured.payloads[0], "disk full")
}

func TestWorker_UnexpectedReplyFails(t *testing.T) {
	t.Parallel()

	w := newWorker()
	startDispatch(w)
	defer close(w.replies)

	w.replies <- tokenClosed
	err := w.await(context.Background(), tokenDrained, time.Second)
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestWorker_ExitBeforeReplyFails(t *testing.T) {
	t.Parallel()

	w := newWorker()
	startDispatch(w)
	close(w.replies)

	err := w.await(context.Background(), tokenReady, time.Second)
	assert.ErrorIs(t, err, ErrWorkerExited)
}

func TestWorker_AwaitTimeout(t *testing.T) {
	t.Parallel()

	w := newWorker()
	startDispatch(w)
	defer close(w.replies)

	err := w.await(context.Background(), tokenDrained, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestWorker_AwaitContextCanceled(t *testing.T) {
	t.Parallel()

	w := newWorker()
	startDispatch(w)
	defer close(w.replies)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.await(ctx, tokenDrained, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_SendAfterDone(t *testing.T) {
	t.Parallel()

	w := newWorker()
	close(w.done)
	assert.False(t, w.send(entry("x")), "副本退出后发送返回 false")
}
