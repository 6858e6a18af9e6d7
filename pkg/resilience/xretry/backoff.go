package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// BackoffPolicy 退避策略接口，计算重试间隔时间。
type BackoffPolicy interface {
	// NextDelay 返回下次重试的延迟时间
	// attempt: 当前尝试次数（从 1 开始）
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff 指数退避策略。
// delay = min(baseDelay * 2^(attempt-1) * jitter, maxDelay)，
// jitter 在 [0.5, 1.0] 内均匀分布。
type ExponentialBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewExponentialBackoff 创建指数退避策略。
// baseDelay <= 0 表示无延迟；maxDelay 小于 baseDelay 时提升为 baseDelay。
func NewExponentialBackoff(baseDelay, maxDelay time.Duration) *ExponentialBackoff {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialBackoff{baseDelay: baseDelay, maxDelay: maxDelay}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.baseDelay <= 0 {
		return 0
	}

	delay := float64(b.baseDelay) * math.Pow(2, float64(attempt-1))
	delay *= 0.5 + randomFloat64()*0.5

	// NaN 安全的上限处理：attempt 极大时 math.Pow 溢出为 +Inf，
	// IEEE 754 中 NaN 的所有比较均返回 false，会绕过 maxDelay 限制。
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

// NoBackoff 无延迟退避策略，主要用于测试。
type NoBackoff struct{}

// NewNoBackoff 创建无延迟退避策略。
func NewNoBackoff() *NoBackoff {
	return &NoBackoff{}
}

func (b *NoBackoff) NextDelay(_ int) time.Duration {
	return 0
}

// 确保实现了接口
var (
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
	_ BackoffPolicy = (*NoBackoff)(nil)
)

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时返回 0，即取抖动区间下界（安全默认值）
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
