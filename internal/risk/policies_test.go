package risk

import (
	"testing"

	"github.com/exchange/trader/internal/tracker"
)

func floatPtr(v float64) *float64 { return &v }

func baseAccount() *AccountContext {
	return &AccountContext{
		Capital:    10000,
		PeakEquity: 10000,
	}
}

func TestMaxPositionSize(t *testing.T) {
	// 2% of $10,000 = $200
	p := &MaxPositionSize{MaxPositionPct: 0.02}
	acct := baseAccount()

	// $250 名义价值被拒
	req := &OrderRequest{Symbol: "BTCUSDT", Side: tracker.SideBuy, Qty: 2.5, Price: 100}
	if out := p.Evaluate(req, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT for $250 notional, got %s", out.Verdict)
	}

	// $150 通过
	req = &OrderRequest{Symbol: "BTCUSDT", Side: tracker.SideBuy, Qty: 1.5, Price: 100}
	if out := p.Evaluate(req, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for $150 notional, got %s: %s", out.Verdict, out.Message)
	}
}

func TestMaxLeverage(t *testing.T) {
	p := &MaxLeverage{Max: 3}
	acct := baseAccount()

	if out := p.Evaluate(&OrderRequest{Leverage: 5}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT for 5x, got %s", out.Verdict)
	}
	if out := p.Evaluate(&OrderRequest{Leverage: 2}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for 2x, got %s", out.Verdict)
	}
	// 未指定杠杆按 1 倍
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for default leverage, got %s", out.Verdict)
	}
}

func TestDailyDrawdown(t *testing.T) {
	p := &DailyDrawdown{MaxDailyDrawdownPct: 0.03}

	acct := baseAccount()
	acct.RealizedPnlToday = -400 // -4%
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT at -4%% drawdown, got %s", out.Verdict)
	}

	// 减仓单不受限
	if out := p.Evaluate(&OrderRequest{ReduceOnly: true}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for reduce-only, got %s", out.Verdict)
	}

	acct.RealizedPnlToday = -200 // -2%
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE at -2%% drawdown, got %s", out.Verdict)
	}
}

func TestStopLossRequired(t *testing.T) {
	p := &StopLossRequired{}
	acct := baseAccount()

	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT without stop distance, got %s", out.Verdict)
	}
	if out := p.Evaluate(&OrderRequest{StopDistance: 50}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE with stop distance, got %s", out.Verdict)
	}
	if out := p.Evaluate(&OrderRequest{ReduceOnly: true}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for reduce-only, got %s", out.Verdict)
	}
}

func TestMarginLevel(t *testing.T) {
	p := &MarginLevel{WarnThreshold: 200, CriticalThreshold: 120}

	// 现货账户（无保证金率）跳过
	acct := baseAccount()
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for spot account, got %s", out.Verdict)
	}

	acct.MarginLevelPct = floatPtr(100)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT below critical, got %s", out.Verdict)
	}

	acct.MarginLevelPct = floatPtr(150)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictWarn {
		t.Errorf("expected WARN below warning, got %s", out.Verdict)
	}

	acct.MarginLevelPct = floatPtr(300)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE at healthy margin, got %s", out.Verdict)
	}
}

func TestFundingRateLimit(t *testing.T) {
	p := &FundingRateLimit{MaxFundingRatePct: 0.1}

	acct := baseAccount()
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE for spot account, got %s", out.Verdict)
	}

	acct.FundingRatePct = floatPtr(0.15)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT above limit, got %s", out.Verdict)
	}

	// 负费率同样受绝对值限制
	acct.FundingRatePct = floatPtr(-0.2)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictReject {
		t.Errorf("expected REJECT for negative rate above limit, got %s", out.Verdict)
	}

	acct.FundingRatePct = floatPtr(0.05)
	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE within limit, got %s", out.Verdict)
	}
}

func TestBreakerPolicy(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxDailyTrades: 100, MaxConsecutiveLosses: 1}, nil)
	p := &BreakerPolicy{Breaker: b}
	acct := baseAccount()

	if out := p.Evaluate(&OrderRequest{}, acct); out.Verdict != VerdictApprove {
		t.Errorf("expected APPROVE before trip, got %s", out.Verdict)
	}

	b.RecordOutcome(-100, 10000)
	out := p.Evaluate(&OrderRequest{}, acct)
	if out.Verdict != VerdictReject {
		t.Errorf("expected REJECT after trip, got %s", out.Verdict)
	}
}
