// Package executor 订单执行与回报对账
package executor

import (
	"context"
	"time"
)

// Backoff 指数退避策略。纯数据对象，可脱离真实计时器测试。
type Backoff struct {
	MaxRetries int           // 总提交次数上限
	BaseDelay  time.Duration // 首次重试前的等待
	Multiplier float64       // 每次重试的倍增系数
	MaxDelay   time.Duration // 等待上限
}

// DefaultBackoff 默认退避配置
var DefaultBackoff = Backoff{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	Multiplier: 2,
	MaxDelay:   10 * time.Second,
}

// Delay 第 attempt 次重试前的等待时长（attempt 从 0 起）
func (b Backoff) Delay(attempt int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= mult
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(d)
}

// sleep 可被 ctx 取消的等待
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
