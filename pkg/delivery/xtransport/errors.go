package xtransport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed transport 已关闭或正在关闭
	ErrClosed = errors.New("xtransport: transport is closed")

	// ErrNotOffloaded transport 未提升为 offload 模式
	ErrNotOffloaded = errors.New("xtransport: transport is not offloaded")

	// ErrWorkerExited worker 在回复前退出
	ErrWorkerExited = errors.New("xtransport: worker exited before replying")

	// ErrHandshakeTimeout 握手超时
	ErrHandshakeTimeout = errors.New("xtransport: handshake timed out")

	// ErrUnexpectedReply 握手收到非预期回复
	ErrUnexpectedReply = errors.New("xtransport: unexpected handshake reply")

	// ErrStatsMismatch 关闭时计数器自检失败
	ErrStatsMismatch = errors.New("xtransport: processed/requested counters diverged")

	// ErrEmptyEndpoint HTTP sink 的地址为空
	ErrEmptyEndpoint = errors.New("xtransport: endpoint is required")

	// ErrEmptyPath 文件 sink 的路径为空
	ErrEmptyPath = errors.New("xtransport: file path is required")

	// ErrNilTransport transport 为 nil
	ErrNilTransport = errors.New("xtransport: nil transport")

	// ErrAlreadyRegistered 注册表中已存在同名 transport
	ErrAlreadyRegistered = errors.New("xtransport: transport already registered")
)

// DeliveryError 投递失败的统一外报形状。
// 任何失败（I/O、渲染、拒绝、协议）都经由它携带上下文送达错误回调。
type DeliveryError struct {
	// Err 底层错误
	Err error

	// Transport sink 名称（console/file/http 或自定义）
	Transport string

	// TransportID transport 实例 ID
	TransportID string

	// Entry 关联的单条日志（若适用）
	Entry *Entry

	// Batch 关联的批次（若适用）
	Batch []Entry

	// Attempt 失败发生时的尝试序号，0 表示不适用
	Attempt int

	// RetryLimit 重试预算上限，0 表示不适用
	RetryLimit int

	// Data 序列化后的错误记录（跨 worker 边界传输用）
	Data []byte
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	b.WriteString("xtransport: delivery failed")
	if e.Transport != "" {
		fmt.Fprintf(&b, " transport=%s", e.Transport)
	}
	if len(e.Batch) > 0 {
		fmt.Fprintf(&b, " batch=%d", len(e.Batch))
	}
	if e.RetryLimit > 0 {
		fmt.Fprintf(&b, " attempt=%d/%d", e.Attempt, e.RetryLimit)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// StatusError 非成功 HTTP 响应。
// Retryable 按状态码分类：5xx、408、429 可重试，其余 4xx 为永久失败。
type StatusError struct {
	// Code HTTP 状态码
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xtransport: http status %d", e.Code)
}

// Retryable 实现 xretry 的可重试分类。
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 408 || e.Code == 429
}
