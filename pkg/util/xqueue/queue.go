package xqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Job 队列作业。返回的错误会被队列吞掉（只做诊断上报），
// 需要对失败做出反应的逻辑应放在作业内部。
type Job func(ctx context.Context) error

// Queue 有界并发作业队列。
//
// 并发安全。作业按入队顺序启动；并发上限大于 1 时，
// 不同作业的完成顺序不保证。
type Queue struct {
	concurrency int
	sem         *semaphore.Weighted
	logger      *slog.Logger
	onError     func(error)

	mu       sync.Mutex
	pending  []Job
	inFlight int
	waiters  []chan struct{}
}

// Option 队列配置选项。
type Option func(*Queue)

// WithLogger 设置诊断日志记录器。默认 slog.Default()。传入 nil 会被忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithOnError 设置作业失败回调。
// 队列吞掉作业错误，此回调是观察失败的唯一途径（除 slog 诊断外）。
func WithOnError(fn func(error)) Option {
	return func(q *Queue) {
		if fn != nil {
			q.onError = fn
		}
	}
}

// New 创建作业队列。concurrency 小于 1 时提升为 1。
func New(concurrency int, opts ...Option) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	q := &Queue{
		concurrency: concurrency,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue 提交作业并触发调度。nil 作业被静默忽略。
func (q *Queue) Enqueue(job Job) {
	if job == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	go q.runNext()
}

// runNext 取走队头作业并执行。
// 每次 Enqueue 对应一次 runNext，信号量保证同时运行的作业数
// 不超过并发上限；队头弹出在获得信号量之后进行，保持启动顺序。
func (q *Queue) runNext() {
	// context.Background 永不取消，Acquire 不会失败
	_ = q.sem.Acquire(context.Background(), 1)
	defer q.sem.Release(1)

	q.mu.Lock()
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight++
	q.mu.Unlock()

	q.run(job)

	q.mu.Lock()
	q.inFlight--
	if len(q.pending) == 0 && q.inFlight == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
	q.mu.Unlock()
}

// run 执行单个作业：隔离 panic，吞掉错误。
func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.reportError(fmt.Errorf("xqueue: job panic recovered: %v", r))
		}
	}()
	if err := job(context.Background()); err != nil {
		q.reportError(err)
	}
}

func (q *Queue) reportError(err error) {
	if q.onError != nil {
		q.onError(err)
		return
	}
	q.logger.Debug("xqueue: job failed", slog.Any("error", err))
}

// Drain 等待队列排空：无待运行作业且无在途作业。
// 可并发调用，所有等待者在同一时刻被唤醒。
// ctx 取消时返回 ctx 的错误，队列状态不受影响。
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if len(q.pending) == 0 && q.inFlight == 0 {
		q.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len 返回尚未启动的作业数量。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Concurrency 返回并发上限。
func (q *Queue) Concurrency() int {
	return q.concurrency
}
