package xtransport

import (
	"log/slog"
	"time"

	"github.com/omeyang/logship/pkg/resilience/xretry"
)

// 握手默认超时
const (
	// DefaultReadyTimeout ready 握手默认超时
	DefaultReadyTimeout = 5 * time.Second

	// DefaultHandshakeTimeout drain/close 握手默认超时
	DefaultHandshakeTimeout = 10 * time.Second
)

// Option Transport 级别的配置选项。
type Option func(*Transport)

// WithName 覆盖 transport 名称（出现在 DeliveryError 中）。
func WithName(name string) Option {
	return func(t *Transport) {
		if name != "" {
			t.name = name
		}
	}
}

// WithStaticFields 设置静态字段，本地投递时合并进每条日志。
// 条目自身的同名字段优先。
func WithStaticFields(fields Fields) Option {
	return func(t *Transport) {
		t.staticFields = fields
	}
}

// WithErrorCallback 设置投递失败回调。
// 未设置时失败经 slog 写入 stderr。
//
// 回调不得向同一 Transport 写日志，否则失败会递归放大。
func WithErrorCallback(fn func(*DeliveryError)) Option {
	return func(t *Transport) {
		t.onError = fn
	}
}

// WithErrorSerializer 覆盖错误序列化器。传入 nil 会被静默忽略。
func WithErrorSerializer(s ErrorSerializer) Option {
	return func(t *Transport) {
		if s != nil {
			t.errSer = s
		}
	}
}

// WithLogger 覆盖内部诊断日志器。传入 nil 会被静默忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithRetry 覆盖投递 I/O 使用的重试执行器。传入 nil 会被静默忽略。
func WithRetry(exec *xretry.Executor) Option {
	return func(t *Transport) {
		if exec != nil {
			t.retry = exec
		}
	}
}

// WithReadyTimeout 设置 RunAsWorker 的 ready 握手超时。
func WithReadyTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readyTimeout = d
		}
	}
}

// WithHandshakeTimeout 设置 drain/close 握手超时。
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.handshakeTimeout = d
		}
	}
}
