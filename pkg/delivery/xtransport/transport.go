package xtransport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/logship/pkg/resilience/xretry"
	"github.com/omeyang/logship/pkg/util/xqueue"
)

// driver sink 实现必须提供的钩子。
// 所有方法只在拥有该 Transport 的执行上下文（调用方或 offload 副本）
// 及其 job queue goroutine 中被调用。
type driver interface {
	// kind sink 种类名（console/file/http）
	kind() string

	// renderer 返回 sink 使用的渲染器
	renderer() Renderer

	// log 投递一条日志；失败经 handleError 上报，processed 由实现负责
	log(ctx context.Context, e Entry)

	// logRaw 投递一个预序列化载荷，计为一个请求
	logRaw(ctx context.Context, payload []byte)

	// waitIdle 触发 flush 并等待 sink 自身的在途 I/O 完成
	waitIdle(ctx context.Context) error

	// close 停止定时器、冲刷残留并释放资源。
	// offload 提升会先调用一次作为本地退役，最终 Close 再调用一次，
	// 实现必须可重入
	close(ctx context.Context) error
}

// Transport 单个投递单元。
//
// 生命周期 Open → Closing → Closed 单向不可逆。requested 只增；
// 每个被接受的请求恰好在成功、失败或拒绝路径之一计入 processed 一次，
// Close 时 processed == requested 是自检不变量。
//
// 必须通过 [NewConsole]、[NewFile] 或 [NewHTTP] 创建。
type Transport struct {
	name         string
	id           string
	staticFields Fields

	drv    driver
	queue  *xqueue.Queue
	retry  *xretry.Executor
	errSer ErrorSerializer

	onError func(*DeliveryError)
	logger  *slog.Logger

	readyTimeout     time.Duration
	handshakeTimeout time.Duration

	// rebuild 用构造参数重建一份本地副本，offload 时在 worker 内执行
	rebuild func() (*Transport, error)

	closing atomic.Bool
	closed  atomic.Bool

	requested atomic.Int64
	processed atomic.Int64

	offloaded   atomic.Bool
	offloadOnce sync.Once
	promoteErr  error
	w           *worker
}

// newCore 构建 Transport 骨架，sink 构造器在其上挂接 driver 与 queue。
func newCore(kind string, opts ...Option) *Transport {
	t := &Transport{
		name:             kind,
		id:               uuid.NewString(),
		errSer:           jsonErrorSerializer{},
		retry:            xretry.New(),
		logger:           slog.New(slog.NewTextHandler(os.Stderr, nil)),
		readyTimeout:     DefaultReadyTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Name 返回 transport 名称。
func (t *Transport) Name() string { return t.name }

// ID 返回实例 ID。
func (t *Transport) ID() string { return t.id }

// Renderer 返回 sink 使用的渲染器。
func (t *Transport) Renderer() Renderer { return t.drv.renderer() }

// Offloaded 报告 transport 是否已提升为 offload 模式。
func (t *Transport) Offloaded() bool { return t.offloaded.Load() }

// Requested 返回已接受的请求计数。
func (t *Transport) Requested() int64 { return t.requested.Load() }

// Processed 返回已结清的请求计数。
func (t *Transport) Processed() int64 { return t.processed.Load() }

// Log 投递一条日志，发后即忘。
//
// 无条件先计入 requested。closing/closed 状态下不投递：
// 经错误回调上报 ErrClosed 并按拒绝路径计入 processed，绝不 panic。
// offload 模式下条目经 channel 转发给副本后立即返回。
func (t *Transport) Log(e Entry) {
	t.requested.Add(1)

	if t.closing.Load() || t.closed.Load() {
		t.processed.Add(1)
		t.handleError(&DeliveryError{Err: ErrClosed, Entry: &e})
		return
	}

	if t.offloaded.Load() {
		if !t.w.send(e) {
			t.processed.Add(1)
			t.handleError(&DeliveryError{Err: ErrWorkerExited, Entry: &e})
			return
		}
		// 转发成功即在发起方结清，副本维护自己的计数
		t.processed.Add(1)
		return
	}

	t.drv.log(context.Background(), e.mergeFields(t.staticFields))
}

// RawForward 转发一个预序列化批次给 offload 副本。
//
// 供多 sink 共享渲染结果的调用方使用：调用方线程序列化一次，
// 各 offload sink 直接投递载荷，避免重复编码。
// 仅 offload 模式可用。
func (t *Transport) RawForward(payload []byte) error {
	if t.closing.Load() || t.closed.Load() {
		return ErrClosed
	}
	if !t.offloaded.Load() {
		return ErrNotOffloaded
	}
	if !t.w.send(append([]byte(nil), payload...)) {
		return ErrWorkerExited
	}
	return nil
}

// acceptRaw 副本侧的预序列化载荷入口。
func (t *Transport) acceptRaw(ctx context.Context, payload []byte) {
	t.requested.Add(1)
	if t.closing.Load() || t.closed.Load() {
		t.processed.Add(1)
		t.handleError(&DeliveryError{Err: ErrClosed, Data: payload})
		return
	}
	t.drv.logRaw(ctx, payload)
}

// FlushAndWait 等待调用时刻之前接受的所有请求被结清。
//
// 返回值报告快照是否达成；之后提交的条目不保证被覆盖。
// offload 模式执行 drain 握手；本地模式反复触发 sink 冲刷并以
// 封顶指数间隔轮询计数器。
func (t *Transport) FlushAndWait(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, xretry.ErrNilContext
	}
	if t.closing.Load() || t.closed.Load() {
		return false, ErrClosed
	}
	return t.flushAndWait(ctx)
}

func (t *Transport) flushAndWait(ctx context.Context) (bool, error) {
	snapshot := t.requested.Load()

	if t.offloaded.Load() {
		if !t.w.send(tokenDrain) {
			return false, ErrWorkerExited
		}
		if err := t.w.await(ctx, tokenDrained, t.handshakeTimeout); err != nil {
			return false, err
		}
		return true, nil
	}

	delay := time.Millisecond
	for {
		if err := t.drv.waitIdle(ctx); err != nil {
			return t.processed.Load() >= snapshot, err
		}
		if t.processed.Load() >= snapshot {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return t.processed.Load() >= snapshot, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 100*time.Millisecond {
			delay = 100 * time.Millisecond
		}
	}
}

// Close 关闭 transport。
//
// 先置 closing（并发的 Log 立即开始走拒绝路径），再执行收尾：
// offload 模式走 close 握手并等待副本退出，本地模式冲刷后关闭 sink。
// 结束前做计数一致性自检，违例作为诊断经错误回调上报而不作为返回值。
// 重复调用是空操作，返回 nil。
func (t *Transport) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.closing.Swap(true) {
		return nil
	}
	defer t.closed.Store(true)

	var err error
	if t.offloaded.Load() {
		err = t.closeWorker(ctx)
		// 提升窗口内可能有条目抢进本地 driver，最后一次退役把它们结清
		if cerr := t.drv.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	} else {
		if _, ferr := t.flushAndWait(ctx); ferr != nil {
			err = ferr
		}
		if cerr := t.drv.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}

	t.verifyStats()
	return err
}

func (t *Transport) closeWorker(ctx context.Context) error {
	if !t.w.send(tokenClose) {
		return ErrWorkerExited
	}
	if err := t.w.await(ctx, tokenClosed, t.handshakeTimeout); err != nil {
		return err
	}

	// 等副本 goroutine 真正退出
	select {
	case <-t.w.done:
		return nil
	case <-time.After(t.handshakeTimeout):
		return fmt.Errorf("%w: waiting for worker exit", ErrHandshakeTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// verifyStats 关闭时的计数一致性自检。
// 尽力而为的诊断，违例只上报不返回。
func (t *Transport) verifyStats() {
	requested := t.requested.Load()
	processed := t.processed.Load()
	pending := 0
	if t.queue != nil {
		pending = t.queue.Len()
	}
	if requested != processed || pending != 0 {
		t.handleError(&DeliveryError{
			Err: fmt.Errorf("%w: requested=%d processed=%d pending=%d",
				ErrStatsMismatch, requested, processed, pending),
		})
	}
}

// RunAsWorker 将 transport 一次性提升为 offload 模式。
//
// 用构造参数在独立 goroutine 中重建一份本地副本，之后所有日志经
// channel 转发。等待副本的 ready 确认，受 readyTimeout 约束。
// 幂等：已提升后的调用返回首次提升的结果。
func (t *Transport) RunAsWorker(ctx context.Context) error {
	if ctx == nil {
		return xretry.ErrNilContext
	}
	if t.closing.Load() || t.closed.Load() {
		return ErrClosed
	}
	t.offloadOnce.Do(func() {
		t.promoteErr = t.promote(ctx)
	})
	return t.promoteErr
}

func (t *Transport) promote(ctx context.Context) error {
	t.w = newWorker()
	go t.w.dispatch(t.forwardWireError)
	go t.runReplica()

	if err := t.w.await(ctx, tokenReady, t.readyTimeout); err != nil {
		// ready 失败时尽力让副本退出，不再等待
		t.w.send(tokenClose)
		return err
	}
	t.offloaded.Store(true)

	// 本地 driver 退役：冲刷提升前缓冲的条目并停掉定时器，
	// 此后的条目都经 channel 走副本，不再有本地投递。
	// 退役失败不撤销提升，作为诊断上报。
	if err := t.drv.close(ctx); err != nil {
		t.handleError(&DeliveryError{Err: err})
	}
	return nil
}

// handleError 失败归一化的唯一汇聚点。
// 补全上下文后交给错误回调；未配置回调时经 slog 写入诊断输出。
// 副本内的 Transport 由 runReplica 将回调替换为跨边界的带标签转发。
func (t *Transport) handleError(de *DeliveryError) {
	if de == nil {
		return
	}
	de.Transport = t.name
	de.TransportID = t.id
	if de.Data == nil && de.Err != nil {
		de.Data = t.errSer.Serialize(de.Err)
	}

	if t.onError != nil {
		// 回调 panic 不得中断投递主流程
		defer func() { recover() }() //nolint:errcheck // recover 返回值无需检查
		t.onError(de)
		return
	}
	t.logger.Error("xtransport: delivery error",
		"transport", t.name,
		"id", t.id,
		"err", de.Err,
		"batch", len(de.Batch),
		"attempt", de.Attempt,
		"retryLimit", de.RetryLimit,
	)
}

// forwardWireError 接收副本转发来的带标签错误通知。
func (t *Transport) forwardWireError(payload string) {
	t.handleError(&DeliveryError{
		Err:  fmt.Errorf("xtransport: worker reported: %s", payload),
		Data: []byte(payload),
	})
}
