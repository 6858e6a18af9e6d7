package xretry

import (
	"errors"
	"fmt"
)

var (
	// ErrNilExecutor 执行器为 nil
	ErrNilExecutor = errors.New("xretry: nil executor")

	// ErrNilContext context 参数为 nil
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc 操作函数为 nil
	ErrNilFunc = errors.New("xretry: fn cannot be nil")
)

// ExhaustedError 重试预算耗尽错误。
// 仅在全部尝试用完且最后一次仍然失败时返回；
// 提前终止（取消、Stop 回调、错误码不在白名单）返回原始错误。
type ExhaustedError struct {
	// Attempts 实际执行的尝试次数
	Attempts int

	// Err 最后一次尝试的错误
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("xretry: operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Coder 携带错误码的错误接口。
// 配合 WithRetryableCodes 使用：码在白名单内才继续重试。
type Coder interface {
	error

	// Code 返回错误码（如 "ENOENT"、"EBUSY"）
	Code() string
}

// CodedError 携带错误码的错误包装。
type CodedError struct {
	ErrCode string
	Err     error
}

// NewCodedError 创建携带错误码的错误。
func NewCodedError(code string, err error) *CodedError {
	return &CodedError{ErrCode: code, Err: err}
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return e.ErrCode
	}
	return fmt.Sprintf("%s: %v", e.ErrCode, e.Err)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

func (e *CodedError) Code() string {
	return e.ErrCode
}

// RetryableError 可重试错误接口。
// 实现此接口的错误会被自动识别为可重试或不可重试。
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试）。
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误。
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// TemporaryError 临时性错误（应该重试）。
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误。
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

// IsRetryable 检查错误是否可重试。
// 规则：
//   - nil 错误：不需要重试（视为成功）
//   - 实现 RetryableError 接口：根据 Retryable() 返回值判断
//   - 其他错误：默认视为可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	return true
}

// IsPermanent 检查错误是否为永久性错误。
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsRetryable(err)
}
