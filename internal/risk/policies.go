package risk

import (
	"fmt"
	"math"
)

// MaxPositionSize 单笔名义价值不得超过资金的固定比例
type MaxPositionSize struct {
	MaxPositionPct float64 // 如 0.02 = 2%
}

func (p *MaxPositionSize) Name() string { return "MaxPositionSize" }

func (p *MaxPositionSize) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	limit := p.MaxPositionPct * acct.Capital
	if req.Notional() > limit {
		return Reject(fmt.Sprintf("notional %.2f exceeds max position %.2f (%.2f%% of capital)",
			req.Notional(), limit, p.MaxPositionPct*100))
	}
	return Approve()
}

// MaxLeverage 隐含杠杆上限
type MaxLeverage struct {
	Max float64
}

func (p *MaxLeverage) Name() string { return "MaxLeverage" }

func (p *MaxLeverage) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	lev := req.Leverage
	if lev <= 0 {
		lev = 1
	}
	if lev > p.Max {
		return Reject(fmt.Sprintf("leverage %.1fx exceeds max %.1fx", lev, p.Max))
	}
	return Approve()
}

// DailyDrawdown 当日回撤达到软阈值后拒绝新增风险的订单。
// 减仓单不受限制。
type DailyDrawdown struct {
	MaxDailyDrawdownPct float64
}

func (p *DailyDrawdown) Name() string { return "DailyDrawdown" }

func (p *DailyDrawdown) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	if req.ReduceOnly {
		return Approve()
	}
	if acct.PeakEquity <= 0 {
		return Approve()
	}
	dd := acct.RealizedPnlToday / acct.PeakEquity
	if dd <= -p.MaxDailyDrawdownPct {
		return Reject(fmt.Sprintf("daily drawdown %.2f%% breaches limit %.2f%%",
			dd*100, p.MaxDailyDrawdownPct*100))
	}
	return Approve()
}

// StopLossRequired 开仓单必须附带止损距离
type StopLossRequired struct{}

func (p *StopLossRequired) Name() string { return "StopLossRequired" }

func (p *StopLossRequired) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	if req.ReduceOnly {
		return Approve()
	}
	if req.StopDistance <= 0 {
		return Reject("entry order submitted without a stop distance")
	}
	return Approve()
}

// MarginLevel 保证金率检查（仅期货，现货跳过）
type MarginLevel struct {
	WarnThreshold     float64
	CriticalThreshold float64
}

func (p *MarginLevel) Name() string { return "MarginLevel" }

func (p *MarginLevel) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	if acct.MarginLevelPct == nil {
		return Approve()
	}
	level := *acct.MarginLevelPct
	if level < p.CriticalThreshold {
		return Reject(fmt.Sprintf("margin level %.1f%% below critical %.1f%%", level, p.CriticalThreshold))
	}
	if level < p.WarnThreshold {
		return Warn(fmt.Sprintf("margin level %.1f%% below warning %.1f%%", level, p.WarnThreshold))
	}
	return Approve()
}

// FundingRateLimit 资金费率上限（仅期货，现货跳过）
type FundingRateLimit struct {
	MaxFundingRatePct float64
}

func (p *FundingRateLimit) Name() string { return "FundingRateLimit" }

func (p *FundingRateLimit) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	if acct.FundingRatePct == nil {
		return Approve()
	}
	rate := *acct.FundingRatePct
	if math.Abs(rate) > p.MaxFundingRatePct {
		return Reject(fmt.Sprintf("funding rate %.4f%% exceeds limit %.4f%%", rate, p.MaxFundingRatePct))
	}
	return Approve()
}

// BreakerPolicy 熔断器门禁：已熔断或当日下单数达到上限则拒绝
type BreakerPolicy struct {
	Breaker *Breaker
}

func (p *BreakerPolicy) Name() string { return "CircuitBreaker" }

func (p *BreakerPolicy) Evaluate(req *OrderRequest, acct *AccountContext) Outcome {
	if ok, reason := p.Breaker.Allow(); !ok {
		return Reject(reason)
	}
	return Approve()
}
