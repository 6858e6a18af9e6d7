package xtransport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/omeyang/logship/pkg/observability/xrotate"
	"github.com/omeyang/logship/pkg/resilience/xretry"
	"github.com/omeyang/logship/pkg/util/xqueue"
)

// 文件 sink 默认值
const (
	// DefaultFileBatchSize 默认批次大小
	DefaultFileBatchSize = 16

	// DefaultFileFlushInterval 默认定时冲刷间隔
	DefaultFileFlushInterval = time.Second
)

// FileConfig 文件 sink 配置。
type FileConfig struct {
	// Path 活动日志文件路径；Writer 为 nil 时必填
	Path string

	// BatchSize 缓冲达到该条数立即冲刷，默认 DefaultFileBatchSize
	BatchSize int

	// FlushInterval 定时冲刷间隔，默认 DefaultFileFlushInterval
	FlushInterval time.Duration

	// Rotation 轮转策略；nil 表示不轮转。Writer 模式下忽略
	Rotation *xrotate.Policy

	// Writer 自持句柄的输出目标（如 xrotate.NewLumberjack 的产物）。
	// 设置后由 Writer 自己负责轮转，引擎侧的轮转状态机不启用
	Writer io.WriteCloser

	// Renderer 渲染器，默认 [NDJSONRenderer]
	Renderer Renderer
}

// fileDriver 缓冲 + 批量落盘的 sink。
//
// 写入经单并发 job queue 顺序执行，保证批次按入队顺序落盘；
// 轮转前先排空在途写入，流句柄的换手对写 job 不可见。
type fileDriver struct {
	t         *Transport
	path      string
	batchSize int
	r         Renderer
	rot       *xrotate.FileRotator
	writer    io.WriteCloser

	ticker      *time.Ticker
	stopTick    chan struct{}
	tickDone    chan struct{}
	stopOnce    sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	buf      []Entry
	flushing bool
	stream   *os.File
	size     int64
}

var _ driver = (*fileDriver)(nil)

// NewFile 创建文件 transport。
func NewFile(cfg FileConfig, opts ...Option) (*Transport, error) {
	build := func() (*Transport, error) { return newFile(cfg, opts...) }
	t, err := build()
	if err != nil {
		return nil, err
	}
	t.rebuild = build
	return t, nil
}

func newFile(cfg FileConfig, opts ...Option) (*Transport, error) {
	if cfg.Path == "" && cfg.Writer == nil {
		return nil, ErrEmptyPath
	}

	t := newCore("file", opts...)
	// 并发 1：同一文件的写必须保持入队顺序
	t.queue = xqueue.New(1, xqueue.WithLogger(t.logger))

	d := &fileDriver{
		t:         t,
		path:      cfg.Path,
		batchSize: cfg.BatchSize,
		r:         cfg.Renderer,
		writer:    cfg.Writer,
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	if d.batchSize < 1 {
		d.batchSize = DefaultFileBatchSize
	}
	if d.r == nil {
		d.r = NDJSONRenderer{}
	}
	if cfg.Rotation != nil && cfg.Writer == nil {
		rot, err := xrotate.NewFileRotator(cfg.Path, *cfg.Rotation)
		if err != nil {
			return nil, err
		}
		d.rot = rot
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFileFlushInterval
	}
	d.ticker = time.NewTicker(interval)
	go d.run()

	t.drv = d
	return t, nil
}

// run 定时冲刷循环。
func (d *fileDriver) run() {
	defer close(d.tickDone)
	for {
		select {
		case <-d.ticker.C:
			d.flush(context.Background())
		case <-d.stopTick:
			return
		}
	}
}

func (d *fileDriver) kind() string { return "file" }

func (d *fileDriver) renderer() Renderer { return d.r }

func (d *fileDriver) log(ctx context.Context, e Entry) {
	d.mu.Lock()
	d.buf = append(d.buf, e)
	trigger := len(d.buf) >= d.batchSize
	d.mu.Unlock()

	if trigger {
		d.flush(ctx)
	}
}

func (d *fileDriver) logRaw(ctx context.Context, payload []byte) {
	if d.writer != nil {
		d.enqueueWrite(nil, payload, d.writeToWriter)
		return
	}
	if err := d.ensureStream(); err != nil {
		d.settle(1)
		d.t.handleError(&DeliveryError{Err: err, Data: payload})
		return
	}
	d.maybeRotate(ctx, int64(len(payload)))
	d.addSize(int64(len(payload)))
	d.enqueueWrite(nil, payload, d.writeToStream)
}

// flush 把缓冲切成批次逐批发运。
// flushing 标志挡住重入：定时器与容量触发可能并发到达，
// 后到者直接返回，残留缓冲由下一次触发收走。
func (d *fileDriver) flush(ctx context.Context) {
	d.mu.Lock()
	if d.flushing || len(d.buf) == 0 {
		d.mu.Unlock()
		return
	}
	d.flushing = true
	pending := d.buf
	d.buf = nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.flushing = false
		d.mu.Unlock()
	}()

	for start := 0; start < len(pending); start += d.batchSize {
		end := min(start+d.batchSize, len(pending))
		d.shipBatch(ctx, pending[start:end])
	}
}

func (d *fileDriver) shipBatch(ctx context.Context, batch []Entry) {
	payload, err := d.r.Format(batch)
	if err != nil {
		d.settle(len(batch))
		d.t.handleError(&DeliveryError{Err: err, Batch: batch})
		return
	}

	if d.writer != nil {
		d.enqueueWrite(batch, payload, d.writeToWriter)
		return
	}

	if err := d.ensureStream(); err != nil {
		d.settle(len(batch))
		d.t.handleError(&DeliveryError{Err: err, Batch: batch})
		return
	}
	d.maybeRotate(ctx, int64(len(payload)))
	d.addSize(int64(len(payload)))
	d.enqueueWrite(batch, payload, d.writeToStream)
}

// maybeRotate 在发运一个载荷前检查并执行轮转。
// 只有配置了轮转策略且磁盘上已有内容时才检查；
// 轮转前排空在途写入，换手期间没有 job 持有流句柄。
func (d *fileDriver) maybeRotate(ctx context.Context, incoming int64) {
	if d.rot == nil {
		return
	}
	size := d.currentSize()
	if size == 0 || !d.rot.ShouldRotate(size+incoming) {
		return
	}

	if err := d.t.queue.Drain(ctx); err != nil {
		d.t.handleError(&DeliveryError{Err: err})
		return
	}
	rotated, err := d.rot.Rotate(ctx, d.closeStream, d.openStream, func(rerr error) {
		d.t.handleError(&DeliveryError{Err: rerr})
	})
	if err != nil {
		d.t.handleError(&DeliveryError{Err: err})
	}
	// 只有换手真正成功才清零；失败时活动文件原样保留，
	// 保持重开时 Stat 读到的真实大小，下一个载荷重新尝试轮转
	if rotated && err == nil {
		d.setSize(0)
	}
}

// enqueueWrite 把一次写入挂上 job queue。
// batch 为 nil 表示预序列化载荷，计为一个请求。
// 无论写入成败，processed 都在收尾块中恰好结清一次。
func (d *fileDriver) enqueueWrite(batch []Entry, payload []byte, write func([]byte) error) {
	n := len(batch)
	if n == 0 {
		n = 1
	}
	d.t.queue.Enqueue(func(jctx context.Context) error {
		defer d.settle(n)
		err := d.t.retry.Do(jctx, func(context.Context) error {
			return write(payload)
		})
		if err != nil {
			de := &DeliveryError{Err: err, Batch: batch, RetryLimit: d.t.retry.MaxRetry()}
			var ex *xretry.ExhaustedError
			if errors.As(err, &ex) {
				de.Attempt = ex.Attempts
			}
			d.t.handleError(de)
		}
		return err
	})
}

func (d *fileDriver) settle(n int) {
	d.t.processed.Add(int64(n))
}

func (d *fileDriver) writeToStream(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return os.ErrClosed
	}
	_, err := d.stream.Write(p)
	return err
}

func (d *fileDriver) writeToWriter(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.writer.Write(p)
	return err
}

// ensureStream 惰性打开目标文件。
// 父目录按需创建；初始大小取自已有文件，读不到按 0。
func (d *fileDriver) ensureStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}
	return d.openLocked()
}

func (d *fileDriver) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //#nosec G302,G304 -- 日志路径由调用方配置
	if err != nil {
		return err
	}
	d.stream = f
	d.size = 0
	if info, serr := f.Stat(); serr == nil {
		d.size = info.Size()
	}
	return nil
}

func (d *fileDriver) closeStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}

func (d *fileDriver) openStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked()
}

func (d *fileDriver) currentSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *fileDriver) addSize(n int64) {
	d.mu.Lock()
	d.size += n
	d.mu.Unlock()
}

func (d *fileDriver) setSize(n int64) {
	d.mu.Lock()
	d.size = n
	d.mu.Unlock()
}

func (d *fileDriver) waitIdle(ctx context.Context) error {
	d.flush(ctx)
	return d.t.queue.Drain(ctx)
}

// close 停掉定时器，冲刷残留缓冲，排空写 job，最后释放流。
// offload 提升时作为本地退役被调用一次，最终 Close 再调用一次
// 收走提升窗口内抢进来的条目，因此必须可重入。
func (d *fileDriver) close(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.ticker.Stop()
		close(d.stopTick)
		<-d.tickDone
	})

	d.flush(ctx)
	if err := d.t.queue.Drain(ctx); err != nil {
		return err
	}
	if d.writer != nil {
		// offload 后共享 Writer 的所有权在副本，发起方不关闭
		if d.t.offloaded.Load() {
			return nil
		}
		var err error
		d.releaseOnce.Do(func() { err = d.writer.Close() })
		return err
	}
	return d.closeStream()
}
