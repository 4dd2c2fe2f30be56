package blob

import (
	"context"
	"time"
)

// RetryPolicy 指数退避重试策略
// 显式的有界循环：初始延迟逐次翻倍，封顶于 MaxDelay，最多 MaxAttempts 次
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy 3 次尝试，100ms 起步，封顶 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// withRetry 在策略预算内反复执行 op，直到成功或预算用尽
// 返回最后一次的错误，由调用方决定怎么包装
func withRetry(ctx context.Context, policy RetryPolicy, op func() error) error {
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}
