package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/exchange/trader/internal/metrics"
	"github.com/exchange/trader/internal/telemetry"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	MaxDailyTrades       int     // 当日下单数上限
	HardDrawdownPct      float64 // 硬回撤阈值（比软阈值更严重）
	MaxConsecutiveLosses int     // 连亏笔数阈值
	// ClearsOnNewDay 硬熔断是否随 UTC 日界自动解除。
	// false 时仅显式 Reset 可解除。
	ClearsOnNewDay bool
}

// Breaker 进程级熔断器，多个交易路由共享，所有更新持锁
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	trippedHard bool
	tripReason  string
	trippedAt   time.Time

	ordersToday       int
	dayBoundary       time.Time // 计数所属 UTC 日期
	consecutiveLosses int
	dailyPnl          float64

	sink telemetry.Sink
	now  func() time.Time
}

// NewBreaker 创建熔断器
func NewBreaker(cfg BreakerConfig, sink telemetry.Sink) *Breaker {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	b := &Breaker{
		cfg:  cfg,
		sink: sink,
		now:  time.Now,
	}
	b.dayBoundary = utcDate(b.now())
	return b
}

// Allow 检查是否允许下单，不允许时返回原因
func (b *Breaker) Allow() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeRollover()

	if b.trippedHard {
		return false, fmt.Sprintf("trading halted: %s (tripped at %s)", b.tripReason, b.trippedAt.UTC().Format(time.RFC3339))
	}
	if b.cfg.MaxDailyTrades > 0 && b.ordersToday >= b.cfg.MaxDailyTrades {
		b.trip(fmt.Sprintf("daily trade limit reached: %d", b.cfg.MaxDailyTrades))
		return false, fmt.Sprintf("trading halted: %s", b.tripReason)
	}
	return true, ""
}

// RecordApproved 记录一笔通过风控的订单
func (b *Breaker) RecordApproved() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeRollover()
	b.ordersToday++
}

// RecordOutcome 记录一笔已了结订单的盈亏，更新连亏与当日回撤计数。
// peakEquity 用于将当日累计亏损折算为回撤比例。
func (b *Breaker) RecordOutcome(realizedPnl, peakEquity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeRollover()

	b.dailyPnl += realizedPnl
	if realizedPnl < 0 {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}

	if b.trippedHard {
		return
	}
	if b.cfg.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		b.trip(fmt.Sprintf("consecutive loss streak reached: %d", b.consecutiveLosses))
		return
	}
	if b.cfg.HardDrawdownPct > 0 && peakEquity > 0 && b.dailyPnl/peakEquity <= -b.cfg.HardDrawdownPct {
		b.trip(fmt.Sprintf("hard daily drawdown breached: %.2f%%", b.dailyPnl/peakEquity*100))
	}
}

// Reset 显式解除熔断（运维操作）
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.trippedHard {
		return
	}
	b.trippedHard = false
	b.tripReason = ""
	b.consecutiveLosses = 0
	b.sink.BreakerTrip(telemetry.BreakerEvent{
		Type:      telemetry.EventBreakerReset,
		Reason:    "manual reset",
		Timestamp: b.now(),
	})
}

// ResetDaily UTC 日切换时重置当日计数
func (b *Breaker) ResetDaily() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
}

// State 熔断器状态快照
type State struct {
	TrippedHard       bool
	TripReason        string
	TrippedAt         time.Time
	OrdersToday       int
	ConsecutiveLosses int
	DailyPnl          float64
	DayBoundary       time.Time
}

// GetState 读取状态快照
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return State{
		TrippedHard:       b.trippedHard,
		TripReason:        b.tripReason,
		TrippedAt:         b.trippedAt,
		OrdersToday:       b.ordersToday,
		ConsecutiveLosses: b.consecutiveLosses,
		DailyPnl:          b.dailyPnl,
		DayBoundary:       b.dayBoundary,
	}
}

// trip 触发硬熔断，调用方须持锁
func (b *Breaker) trip(reason string) {
	b.trippedHard = true
	b.tripReason = reason
	b.trippedAt = b.now()
	metrics.IncBreakerTrips()
	b.sink.BreakerTrip(telemetry.BreakerEvent{
		Type:      telemetry.EventBreakerTrip,
		Reason:    reason,
		Timestamp: b.trippedAt,
	})
}

// maybeRollover 日界已过则重置，调用方须持锁
func (b *Breaker) maybeRollover() {
	if utcDate(b.now()).After(b.dayBoundary) {
		b.rollover()
	}
}

// rollover 执行日重置，调用方须持锁
func (b *Breaker) rollover() {
	b.dayBoundary = utcDate(b.now())
	b.ordersToday = 0
	b.dailyPnl = 0
	b.consecutiveLosses = 0
	if b.trippedHard && b.cfg.ClearsOnNewDay {
		b.trippedHard = false
		b.tripReason = ""
	}
}

// utcDate 截断到 UTC 日期
func utcDate(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
