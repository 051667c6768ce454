// Package risk 下单前风控策略链与熔断器
package risk

import "github.com/exchange/trader/internal/tracker"

// Verdict 策略裁决
type Verdict int

const (
	VerdictApprove Verdict = iota
	VerdictWarn
	VerdictReject
)

func (v Verdict) String() string {
	switch v {
	case VerdictApprove:
		return "APPROVE"
	case VerdictWarn:
		return "WARN"
	case VerdictReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Outcome 单个策略的评估结果
type Outcome struct {
	Verdict Verdict
	Message string
}

// Approve 通过
func Approve() Outcome {
	return Outcome{Verdict: VerdictApprove}
}

// Warn 警告（默认不阻断）
func Warn(msg string) Outcome {
	return Outcome{Verdict: VerdictWarn, Message: msg}
}

// Reject 拒绝
func Reject(msg string) Outcome {
	return Outcome{Verdict: VerdictReject, Message: msg}
}

// OrderRequest 待评估的下单请求
type OrderRequest struct {
	Symbol string
	Side   tracker.Side
	Type   tracker.OrderType
	Qty    float64
	Price  float64 // 市价单使用最新标记价格

	// StopDistance 止损距离（价格偏移），0 表示未设置
	StopDistance float64

	// ReduceOnly 是否为减仓单（减仓单不增加风险敞口）
	ReduceOnly bool

	// Leverage 隐含杠杆倍数，0 按 1 处理
	Leverage float64
}

// Notional 订单名义价值
func (r *OrderRequest) Notional() float64 {
	return r.Qty * r.Price
}

// AccountContext 账户上下文，每次评估由调用方提供
type AccountContext struct {
	Capital          float64
	OpenPositions    map[string]float64 // symbol -> 净持仓名义价值
	PeakEquity       float64
	RealizedPnlToday float64
	MarginLevelPct   *float64 // 现货账户为 nil
	FundingRatePct   *float64 // 仅期货，现货为 nil
}

// Policy 风控策略。链上按固定顺序执行，首个 REJECT 短路。
type Policy interface {
	Name() string
	Evaluate(req *OrderRequest, acct *AccountContext) Outcome
}
