package risk

import (
	"io"
	"strings"
	"testing"

	"github.com/exchange/trader/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test", io.Discard)
}

// countingPolicy 记录调用次数的桩策略
type countingPolicy struct {
	name    string
	outcome Outcome
	calls   int
}

func (p *countingPolicy) Name() string { return p.name }

func (p *countingPolicy) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	p.calls++
	return p.outcome
}

func newTestManager(policies []Policy, breaker *Breaker) *Manager {
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{}, nil)
	}
	return NewManagerWithPolicies(policies, breaker, nil, testLogger())
}

func TestValidateOrder_ShortCircuit(t *testing.T) {
	p1 := &countingPolicy{name: "first", outcome: Approve()}
	p2 := &countingPolicy{name: "second", outcome: Reject("blocked")}
	p3 := &countingPolicy{name: "third", outcome: Approve()}
	m := newTestManager([]Policy{p1, p2, p3}, nil)

	approved, messages := m.ValidateOrder(&OrderRequest{Symbol: "BTCUSDT"}, baseAccount())
	if approved {
		t.Fatal("expected rejection")
	}
	if len(messages) != 1 || !strings.Contains(messages[0], "second: blocked") {
		t.Errorf("unexpected messages: %v", messages)
	}

	// REJECT 之后的策略不再执行
	if p1.calls != 1 || p2.calls != 1 || p3.calls != 0 {
		t.Errorf("unexpected call counts: %d, %d, %d", p1.calls, p2.calls, p3.calls)
	}
}

func TestValidateOrder_WarnAccumulates(t *testing.T) {
	p1 := &countingPolicy{name: "margin", outcome: Warn("margin low")}
	p2 := &countingPolicy{name: "funding", outcome: Warn("funding elevated")}
	m := newTestManager([]Policy{p1, p2}, nil)

	approved, messages := m.ValidateOrder(&OrderRequest{Symbol: "BTCUSDT"}, baseAccount())
	if !approved {
		t.Fatal("expected approval with warnings")
	}
	if len(messages) != 2 {
		t.Errorf("expected 2 warnings, got %v", messages)
	}
}

func TestValidateOrder_HardBlockWarn(t *testing.T) {
	p := &countingPolicy{name: "margin", outcome: Warn("margin low")}
	breaker := NewBreaker(BreakerConfig{}, nil)
	m := NewManagerWithPolicies([]Policy{p}, breaker, nil, testLogger())
	m.hardBlock["margin"] = true

	approved, messages := m.ValidateOrder(&OrderRequest{Symbol: "BTCUSDT"}, baseAccount())
	if approved {
		t.Fatal("expected rejection for hard-blocking warn")
	}
	if len(messages) != 1 || !strings.Contains(messages[0], "margin low") {
		t.Errorf("unexpected messages: %v", messages)
	}
}

func TestValidateOrder_ApprovedCountsTowardBreaker(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{MaxDailyTrades: 2}, nil)
	m := NewManager(ChainConfig{
		MaxPositionPct:      1,
		MaxLeverage:         100,
		MaxDailyDrawdownPct: 1,
		MarginWarnPct:       0,
		MarginCriticalPct:   0,
		MaxFundingRatePct:   100,
	}, breaker, nil, testLogger())

	req := &OrderRequest{Symbol: "BTCUSDT", Qty: 0.1, Price: 100}
	acct := baseAccount()

	// 恰好 maxDailyTrades 笔通过后，下一笔被熔断器拒绝
	for i := 0; i < 2; i++ {
		if ok, msgs := m.ValidateOrder(req, acct); !ok {
			t.Fatalf("order %d unexpectedly rejected: %v", i+1, msgs)
		}
	}
	ok, messages := m.ValidateOrder(req, acct)
	if ok {
		t.Fatal("expected breaker rejection after daily trade limit")
	}
	if !strings.Contains(messages[0], "CircuitBreaker") {
		t.Errorf("rejection should name CircuitBreaker: %v", messages)
	}
}

func TestDefaultChain_FullApproval(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{MaxDailyTrades: 100}, nil)
	m := NewManager(ChainConfig{
		MaxPositionPct:      0.02,
		MaxLeverage:         3,
		MaxDailyDrawdownPct: 0.03,
		RequireStopLoss:     true,
		MarginWarnPct:       200,
		MarginCriticalPct:   120,
		MaxFundingRatePct:   0.1,
	}, breaker, nil, testLogger())

	req := &OrderRequest{
		Symbol:       "BTCUSDT",
		Qty:          1.5,
		Price:        100, // $150 名义价值，低于 2% × $10,000
		StopDistance: 2,
	}
	approved, messages := m.ValidateOrder(req, baseAccount())
	if !approved {
		t.Fatalf("expected approval, got %v", messages)
	}
	if len(messages) != 0 {
		t.Errorf("expected no warnings, got %v", messages)
	}
}

func TestRecordOutcome_FeedsBreaker(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{MaxConsecutiveLosses: 2}, nil)
	m := newTestManager(nil, breaker)

	acct := baseAccount()
	m.RecordOutcome(-50, acct)
	m.RecordOutcome(-50, acct)

	if st := breaker.GetState(); !st.TrippedHard {
		t.Error("expected breaker tripped via RecordOutcome")
	}
}
