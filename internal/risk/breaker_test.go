package risk

import (
	"strings"
	"testing"
	"time"
)

func TestBreaker_DailyTradeLimit(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxDailyTrades: 3}, nil)

	// 前 3 笔通过
	for i := 0; i < 3; i++ {
		if ok, _ := b.Allow(); !ok {
			t.Fatalf("order %d unexpectedly blocked", i+1)
		}
		b.RecordApproved()
	}

	// 第 4 笔被拒，且触发硬熔断
	ok, reason := b.Allow()
	if ok {
		t.Fatal("expected rejection after daily trade limit")
	}
	if !strings.Contains(reason, "daily trade limit") {
		t.Errorf("unexpected reason: %s", reason)
	}
	if st := b.GetState(); !st.TrippedHard {
		t.Error("expected trippedHard after limit")
	}
}

func TestBreaker_ConsecutiveLosses(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxConsecutiveLosses: 3}, nil)

	b.RecordOutcome(-10, 10000)
	b.RecordOutcome(-10, 10000)
	if st := b.GetState(); st.TrippedHard {
		t.Fatal("tripped before streak reached")
	}

	// 盈利清零连亏计数
	b.RecordOutcome(5, 10000)
	b.RecordOutcome(-10, 10000)
	b.RecordOutcome(-10, 10000)
	b.RecordOutcome(-10, 10000)

	st := b.GetState()
	if !st.TrippedHard {
		t.Fatal("expected trip after 3 consecutive losses")
	}
	if !strings.Contains(st.TripReason, "consecutive loss") {
		t.Errorf("unexpected reason: %s", st.TripReason)
	}
}

func TestBreaker_HardDrawdown(t *testing.T) {
	b := NewBreaker(BreakerConfig{HardDrawdownPct: 0.05}, nil)

	b.RecordOutcome(-300, 10000) // -3%
	if st := b.GetState(); st.TrippedHard {
		t.Fatal("tripped below hard threshold")
	}

	b.RecordOutcome(-250, 10000) // 累计 -5.5%
	st := b.GetState()
	if !st.TrippedHard {
		t.Fatal("expected trip past hard drawdown")
	}
	if !strings.Contains(st.TripReason, "drawdown") {
		t.Errorf("unexpected reason: %s", st.TripReason)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxConsecutiveLosses: 1}, nil)
	b.RecordOutcome(-10, 10000)
	if st := b.GetState(); !st.TrippedHard {
		t.Fatal("expected trip")
	}

	b.Reset()
	if st := b.GetState(); st.TrippedHard {
		t.Error("expected cleared after explicit reset")
	}
	if ok, _ := b.Allow(); !ok {
		t.Error("expected allow after reset")
	}
}

func TestBreaker_DayRollover(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC)

	// 默认配置：硬熔断跨日保留
	b := NewBreaker(BreakerConfig{MaxDailyTrades: 2, MaxConsecutiveLosses: 1}, nil)
	b.now = func() time.Time { return day1 }
	b.dayBoundary = utcDate(day1)

	b.RecordApproved()
	b.RecordApproved()
	b.RecordOutcome(-10, 10000)
	if st := b.GetState(); !st.TrippedHard {
		t.Fatal("expected trip")
	}

	b.now = func() time.Time { return day2 }
	if ok, _ := b.Allow(); ok {
		t.Error("hard trip should survive the day boundary by default")
	}
	// 但当日计数已重置
	if st := b.GetState(); st.OrdersToday != 0 {
		t.Errorf("expected ordersToday reset, got %d", st.OrdersToday)
	}

	// ClearsOnNewDay: 跨日自动解除
	b2 := NewBreaker(BreakerConfig{MaxConsecutiveLosses: 1, ClearsOnNewDay: true}, nil)
	b2.now = func() time.Time { return day1 }
	b2.dayBoundary = utcDate(day1)
	b2.RecordOutcome(-10, 10000)
	if st := b2.GetState(); !st.TrippedHard {
		t.Fatal("expected trip")
	}

	b2.now = func() time.Time { return day2 }
	if ok, _ := b2.Allow(); !ok {
		t.Error("expected trip cleared at day boundary with ClearsOnNewDay")
	}
}

func TestBreaker_ResetDaily(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxDailyTrades: 10}, nil)
	b.RecordApproved()
	b.RecordApproved()
	b.RecordOutcome(-10, 10000)

	b.ResetDaily()
	st := b.GetState()
	if st.OrdersToday != 0 {
		t.Errorf("expected ordersToday 0, got %d", st.OrdersToday)
	}
}
