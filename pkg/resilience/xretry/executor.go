package xretry

import (
	"context"
	"errors"
	"slices"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Decision 尝试回调的返回值。
type Decision int

const (
	// Continue 继续按策略重试
	Continue Decision = iota

	// Stop 立即放弃剩余重试，返回当前错误
	Stop
)

// AttemptCallback 每次尝试失败后调用。
// attempt 从 1 开始；返回 [Stop] 时立即终止重试。
// 取消/超时导致的失败不会触发回调（取消本身绝不重试）。
type AttemptCallback func(attempt int, err error) Decision

// Executor 重试执行器。
//
// 零值不可用，必须通过 [New] 创建。同一 Executor 可被多个 goroutine
// 并发调用 Do：每次调用持有独立的尝试计数。
type Executor struct {
	maxRetry       int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	backoff        BackoffPolicy
	onAttempt      AttemptCallback
	codes          []string
}

// Option 执行器配置选项。
type Option func(*Executor)

// WithMaxRetry 设置最大尝试次数（包含首次尝试）。
// 小于 1 的值被提升为 1（至少尝试一次）。
func WithMaxRetry(n int) Option {
	return func(e *Executor) {
		e.maxRetry = n
	}
}

// WithBaseDelay 设置退避的初始延迟。
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

// WithMaxDelay 设置退避延迟上限。
func WithMaxDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.maxDelay = d
		}
	}
}

// WithAttemptTimeout 设置单次尝试的超时时间。
// 每次尝试在派生的带超时 context 下执行；超时只取消该次尝试，
// 产生的取消错误原样返回且不再重试。0 表示不限制。
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.attemptTimeout = d
		}
	}
}

// WithOnAttempt 设置尝试失败回调。传入 nil 会被静默忽略。
func WithOnAttempt(fn AttemptCallback) Option {
	return func(e *Executor) {
		if fn != nil {
			e.onAttempt = fn
		}
	}
}

// WithRetryableCodes 设置可重试错误码白名单。
// 设置后，不携带错误码（见 [Coder]）或码不在名单内的错误立即终止重试。
func WithRetryableCodes(codes ...string) Option {
	return func(e *Executor) {
		e.codes = slices.Clone(codes)
	}
}

// WithBackoff 覆盖默认的指数退避策略。传入 nil 会被静默忽略。
func WithBackoff(p BackoffPolicy) Option {
	return func(e *Executor) {
		if p != nil {
			e.backoff = p
		}
	}
}

// New 创建重试执行器。
// 默认：最多 3 次尝试，指数退避 100ms 起、30s 封顶，无单次超时。
func New(opts ...Option) *Executor {
	e := &Executor{
		maxRetry:  3,
		baseDelay: 100 * time.Millisecond,
		maxDelay:  30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.maxRetry < 1 {
		e.maxRetry = 1
	}
	if e.backoff == nil {
		e.backoff = NewExponentialBackoff(e.baseDelay, e.maxDelay)
	}
	return e
}

// MaxRetry 返回最大尝试次数。nil 接收者返回 0。
func (e *Executor) MaxRetry() int {
	if e == nil {
		return 0
	}
	return e.maxRetry
}

// Do 执行带重试的操作。
//
// fn 至少执行一次。预算耗尽返回 [*ExhaustedError]；
// 取消/超时、Stop 回调、错误码不在白名单等提前终止场景返回原始错误。
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if e == nil {
		return ErrNilExecutor
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}

	// Do 串行执行，闭包内的状态无并发访问
	var (
		attempts  int
		stopped   bool
		exhausted bool
	)

	err := retry.New(
		retry.Context(ctx),
		// 次数上限由下方 RetryIf 统一裁决，便于区分"预算耗尽"和"提前终止"
		retry.UntilSucceeded(),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return e.backoff.NextDelay(int(n))
		}),
		retry.RetryIf(func(err error) bool {
			if isCancellation(err) {
				return false
			}
			if stopped {
				return false
			}
			if !retry.IsRecoverable(err) {
				return false
			}
			if len(e.codes) > 0 && !codeAllowed(err, e.codes) {
				return false
			}
			if !IsRetryable(err) {
				return false
			}
			if attempts >= e.maxRetry {
				exhausted = true
				return false
			}
			return true
		}),
	).Do(func() error {
		attempts++
		actx := ctx
		var cancel context.CancelFunc
		if e.attemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, e.attemptTimeout)
		}
		err := fn(actx)
		if cancel != nil {
			cancel()
		}
		if err != nil && e.onAttempt != nil && !isCancellation(err) {
			if e.onAttempt(attempts, err) == Stop {
				stopped = true
			}
		}
		return err
	})

	if err == nil {
		return nil
	}
	if exhausted && !isCancellation(err) {
		return &ExhaustedError{Attempts: attempts, Err: err}
	}
	return err
}

// isCancellation 判断错误是否由取消或超时引起。
// 这类错误属于控制流，原样传播，绝不重试。
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// codeAllowed 判断错误码是否在白名单内。
// 错误不携带码时视为不允许。
func codeAllowed(err error, codes []string) bool {
	var c Coder
	if !errors.As(err, &c) {
		return false
	}
	return slices.Contains(codes, c.Code())
}
