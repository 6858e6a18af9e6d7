package xtransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/omeyang/logship/pkg/resilience/xretry"
	"github.com/omeyang/logship/pkg/util/xqueue"
)

// HTTP sink 默认值
const (
	// DefaultHTTPBatchSize 默认批次大小
	DefaultHTTPBatchSize = 32

	// DefaultHTTPFlushInterval 默认定时冲刷间隔
	DefaultHTTPFlushInterval = 2 * time.Second

	// DefaultHTTPConcurrency 默认并发发送上限
	DefaultHTTPConcurrency = 4

	// DefaultHTTPTimeout 默认单请求超时（内置 http.Client 用）
	DefaultHTTPTimeout = 30 * time.Second
)

// 编译时断言：StatusError 参与 xretry 的可重试分类
var _ xretry.RetryableError = (*StatusError)(nil)

// HTTPConfig HTTP sink 配置。
type HTTPConfig struct {
	// Endpoint 接收端地址，必填
	Endpoint string

	// BatchSize 每个发送批次的条数，默认 DefaultHTTPBatchSize
	BatchSize int

	// FlushInterval 定时冲刷间隔，默认 DefaultHTTPFlushInterval
	FlushInterval time.Duration

	// Concurrency 同时在途的批次上限，默认 DefaultHTTPConcurrency
	Concurrency int

	// Renderer 渲染器，默认 [NDJSONRenderer]
	Renderer Renderer

	// Auth 可选的认证策略，发送前原地修改请求
	Auth AuthStrategy

	// Client 可选的 http.Client，默认带 DefaultHTTPTimeout 超时
	Client *http.Client
}

// httpDriver 缓冲 + 并发批量 POST 的 sink。
// flush 把缓冲切成 batchSize 大小的块，每块一个 queue job，
// 最多 concurrency 个批次同时在途，批次之间不保证完成顺序。
type httpDriver struct {
	t         *Transport
	endpoint  string
	batchSize int
	r         Renderer
	auth      AuthStrategy
	client    *http.Client

	ticker   *time.Ticker
	stopTick chan struct{}
	tickDone chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	buf      []Entry
	flushing bool
}

var _ driver = (*httpDriver)(nil)

// NewHTTP 创建 HTTP transport。
func NewHTTP(cfg HTTPConfig, opts ...Option) (*Transport, error) {
	build := func() (*Transport, error) { return newHTTP(cfg, opts...) }
	t, err := build()
	if err != nil {
		return nil, err
	}
	t.rebuild = build
	return t, nil
}

func newHTTP(cfg HTTPConfig, opts ...Option) (*Transport, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	t := newCore("http", opts...)
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultHTTPConcurrency
	}
	t.queue = xqueue.New(concurrency, xqueue.WithLogger(t.logger))

	d := &httpDriver{
		t:         t,
		endpoint:  cfg.Endpoint,
		batchSize: cfg.BatchSize,
		r:         cfg.Renderer,
		auth:      cfg.Auth,
		client:    cfg.Client,
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	if d.batchSize < 1 {
		d.batchSize = DefaultHTTPBatchSize
	}
	if d.r == nil {
		d.r = NDJSONRenderer{}
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultHTTPFlushInterval
	}
	d.ticker = time.NewTicker(interval)
	go d.run()

	t.drv = d
	return t, nil
}

func (d *httpDriver) run() {
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

func (d *httpDriver) kind() string { return "http" }

func (d *httpDriver) renderer() Renderer { return d.r }

func (d *httpDriver) log(ctx context.Context, e Entry) {
	d.mu.Lock()
	d.buf = append(d.buf, e)
	trigger := len(d.buf) >= d.batchSize
	d.mu.Unlock()

	if trigger {
		d.flush(ctx)
	}
}

// logRaw 把一个预序列化载荷作为单独批次发送，计为一个请求。
func (d *httpDriver) logRaw(_ context.Context, payload []byte) {
	d.t.queue.Enqueue(func(jctx context.Context) error {
		defer d.t.processed.Add(1)

		err := d.t.retry.Do(jctx, func(actx context.Context) error {
			return d.send(actx, payload)
		})
		if err != nil {
			de := &DeliveryError{Err: err, RetryLimit: d.t.retry.MaxRetry(), Data: payload}
			var ex *xretry.ExhaustedError
			if errors.As(err, &ex) {
				de.Attempt = ex.Attempts
			}
			d.t.handleError(de)
		}
		return err
	})
}

// flush 切片缓冲并为每块入队一个发送 job。
func (d *httpDriver) flush(context.Context) {
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
		chunk := pending[start:min(start+d.batchSize, len(pending))]
		d.enqueueSend(chunk)
	}
}

// enqueueSend 为一个批次入队发送 job。
// 无论成败，processed 都在收尾块中按批次条数恰好结清一次。
func (d *httpDriver) enqueueSend(chunk []Entry) {
	d.t.queue.Enqueue(func(jctx context.Context) error {
		defer d.t.processed.Add(int64(len(chunk)))

		payload, err := d.r.Format(chunk)
		if err != nil {
			d.t.handleError(&DeliveryError{Err: err, Batch: chunk})
			return err
		}
		err = d.t.retry.Do(jctx, func(actx context.Context) error {
			return d.send(actx, payload)
		})
		if err != nil {
			de := &DeliveryError{Err: err, Batch: chunk, RetryLimit: d.t.retry.MaxRetry(), Data: payload}
			var ex *xretry.ExhaustedError
			if errors.As(err, &ex) {
				de.Attempt = ex.Attempts
			}
			d.t.handleError(de)
		}
		return err
	})
}

// send 执行一次 HTTP 投递。
// 无状态码的网络错误默认可重试；非 2xx 返回 [*StatusError]，
// 由其状态码分类决定是否继续重试；认证失败是永久错误。
func (d *httpDriver) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return xretry.NewPermanentError(err)
	}
	req.Header.Set("Content-Type", d.r.ContentType())
	if hp, ok := d.r.(HeaderProvider); ok {
		for k, v := range hp.ExtraHeaders() {
			req.Header.Set(k, v)
		}
	}
	if d.auth != nil {
		if aerr := d.auth.Apply(ctx, req); aerr != nil {
			return xretry.NewPermanentError(aerr)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (d *httpDriver) waitIdle(ctx context.Context) error {
	d.flush(ctx)
	return d.t.queue.Drain(ctx)
}

// close 停掉定时器，冲刷残留，排空在途发送。
func (d *httpDriver) close(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.ticker.Stop()
		close(d.stopTick)
		<-d.tickDone
	})

	d.flush(ctx)
	return d.t.queue.Drain(ctx)
}
