// Package xretry 提供日志投递链路使用的重试执行原语。
//
// 核心类型是 [Executor]：对单个操作执行带指数退避的重试，
// 底层使用 avast/retry-go/v5 实现。
//
// 重试终止条件（任一满足即停止）：
//   - 操作成功
//   - 重试预算耗尽（返回 [*ExhaustedError]，附带尝试次数和最后一次错误）
//   - 取消或超时（context 错误原样返回，绝不重试）
//   - 尝试回调返回 [Stop]
//   - 配置了错误码白名单（WithRetryableCodes）且错误不携带码或码不在名单内
//   - 错误实现 [RetryableError] 且 Retryable() 为 false
//
// 退避公式：delay = min(baseDelay * 2^(attempt-1) * jitter, maxDelay)，
// jitter 在 [0.5, 1.0] 内均匀分布。
//
// 示例:
//
//	exec := xretry.New(
//	    xretry.WithMaxRetry(5),
//	    xretry.WithBaseDelay(100*time.Millisecond),
//	)
//	err := exec.Do(ctx, func(ctx context.Context) error {
//	    return writeBatch(ctx, payload)
//	})
package xretry
