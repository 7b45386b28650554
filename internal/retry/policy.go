package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted 表示重试预算用尽，与单次失败在上报口径上需要区分。
var ErrExhausted = errors.New("max retries exceeded")

// Policy 为固定次数、固定间隔的有界重试策略。
// Sleep 可注入以便测试时脱离真实计时。
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// New 创建重试策略。
func New(maxAttempts int, delay time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Sleep:       sleepContext,
	}
}

// Do 执行 fn，直到成功、不可重试错误或预算用尽。
// retryable 判定某个错误是否值得再试；预算用尽时返回包裹 ErrExhausted 的错误。
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %d 次尝试后放弃: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
