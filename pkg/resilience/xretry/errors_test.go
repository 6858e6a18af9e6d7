package xretry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedError(t *testing.T) {
	inner := errors.New("device busy")
	err := NewCodedError("EBUSY", inner)

	assert.Equal(t, "EBUSY", err.Code())
	assert.Contains(t, err.Error(), "EBUSY")
	assert.ErrorIs(t, err, inner)

	// 包装后仍能通过 errors.As 提取码
	wrapped := fmt.Errorf("rename failed: %w", err)
	var c Coder
	assert.True(t, errors.As(wrapped, &c))
	assert.Equal(t, "EBUSY", c.Code())
}

func TestCodedError_NilInner(t *testing.T) {
	err := NewCodedError("ENOENT", nil)
	assert.Equal(t, "ENOENT", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("unknown")))
	assert.False(t, IsRetryable(NewPermanentError(errors.New("bad request"))))
	assert.True(t, IsRetryable(NewTemporaryError(errors.New("timeout"))))

	// 包装后的永久性错误仍然被识别
	wrapped := fmt.Errorf("send: %w", NewPermanentError(errors.New("401")))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, IsPermanent(wrapped))
}

func TestPermanentTemporary_NilInner(t *testing.T) {
	assert.Equal(t, "permanent error", NewPermanentError(nil).Error())
	assert.Equal(t, "temporary error", NewTemporaryError(nil).Error())
}

func TestExhaustedError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := &ExhaustedError{Attempts: 4, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "after 4 attempts")
}
