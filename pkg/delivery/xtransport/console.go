package xtransport

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/omeyang/logship/pkg/util/xqueue"
)

// ConsoleConfig 控制台 sink 配置。
type ConsoleConfig struct {
	// Writer 输出目标，默认 os.Stdout
	Writer io.Writer

	// Renderer 渲染器，默认 [TextRenderer]
	Renderer Renderer

	// UseQueue 高扇出场景下把写入移到 job queue 异步执行
	UseQueue bool

	// Concurrency UseQueue 时的并发上限，默认 1
	Concurrency int
}

// consoleDriver 单条渲染直写的 sink。
// Go 的阻塞式 Write 天然提供背压：目标缓冲满时写入等待。
type consoleDriver struct {
	t   *Transport
	out io.Writer
	r   Renderer

	// mu 串行化对共享输出的写，避免多 goroutine 交错
	mu sync.Mutex
}

var _ driver = (*consoleDriver)(nil)

// NewConsole 创建控制台 transport。
func NewConsole(cfg ConsoleConfig, opts ...Option) (*Transport, error) {
	build := func() (*Transport, error) { return newConsole(cfg, opts...) }
	t, err := build()
	if err != nil {
		return nil, err
	}
	t.rebuild = build
	return t, nil
}

func newConsole(cfg ConsoleConfig, opts ...Option) (*Transport, error) {
	t := newCore("console", opts...)
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Renderer == nil {
		cfg.Renderer = TextRenderer{}
	}
	if cfg.UseQueue {
		t.queue = xqueue.New(cfg.Concurrency, xqueue.WithLogger(t.logger))
	}
	t.drv = &consoleDriver{t: t, out: cfg.Writer, r: cfg.Renderer}
	return t, nil
}

func (d *consoleDriver) kind() string { return "console" }

func (d *consoleDriver) renderer() Renderer { return d.r }

func (d *consoleDriver) log(ctx context.Context, e Entry) {
	payload, err := d.r.Format([]Entry{e})
	if err != nil {
		d.t.processed.Add(1)
		d.t.handleError(&DeliveryError{Err: err, Entry: &e})
		return
	}
	d.deliver(ctx, payload, &e)
}

func (d *consoleDriver) logRaw(ctx context.Context, payload []byte) {
	if n := len(payload); n == 0 || payload[n-1] != '\n' {
		payload = append(payload, '\n')
	}
	d.deliver(ctx, payload, nil)
}

func (d *consoleDriver) deliver(ctx context.Context, payload []byte, entry *Entry) {
	write := func(context.Context) error {
		defer d.t.processed.Add(1)
		d.mu.Lock()
		_, werr := d.out.Write(payload)
		d.mu.Unlock()
		if werr != nil {
			d.t.handleError(&DeliveryError{Err: werr, Entry: entry, Data: payload})
		}
		return werr
	}
	if d.t.queue != nil {
		d.t.queue.Enqueue(write)
		return
	}
	_ = write(ctx) // 失败已在闭包内上报
}

func (d *consoleDriver) waitIdle(ctx context.Context) error {
	if d.t.queue != nil {
		return d.t.queue.Drain(ctx)
	}
	return nil
}

// close 只需排空在途写 job：标准输出不归 transport 所有。
func (d *consoleDriver) close(ctx context.Context) error {
	return d.waitIdle(ctx)
}
