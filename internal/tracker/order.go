// Package tracker 在途订单生命周期管理
package tracker

import "time"

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// TimeInForce 有效期类型
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderState 订单状态
type OrderState string

const (
	StatePending         OrderState = "PENDING"
	StateOpen            OrderState = "OPEN"
	StatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	StateFilled          OrderState = "FILLED"
	StateCancelled       OrderState = "CANCELLED"
	StateRejected        OrderState = "REJECTED"
	StateExpired         OrderState = "EXPIRED"
	StateFailed          OrderState = "FAILED"
)

// IsTerminal 是否为终态
func (s OrderState) IsTerminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected, StateExpired, StateFailed:
		return true
	default:
		return false
	}
}

// Fill 单笔成交（不可变事实）
type Fill struct {
	Timestamp time.Time
	Qty       float64
	Price     float64
	Fee       float64
	FeeAsset  string
}

// Order 在途订单
type Order struct {
	ClientOrderID   string
	ExchangeOrderID string // 交易所确认后写入，仅一次
	Symbol          string
	Side            Side
	Type            OrderType
	RequestedQty    float64
	Price           float64 // LIMIT/STOP 必填
	TimeInForce     TimeInForce
	State           OrderState
	Fills           []Fill

	// 保护性子单回链（仅用于报表，不做状态级联）
	ParentClientOrderID string

	// FailReason 终态 FAILED/REJECTED 的原因
	FailReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FilledQty 累计成交数量
func (o *Order) FilledQty() float64 {
	var total float64
	for _, f := range o.Fills {
		total += f.Qty
	}
	return total
}

// RemainingQty 剩余数量
func (o *Order) RemainingQty() float64 {
	return o.RequestedQty - o.FilledQty()
}

// AvgFillPrice 成交量加权均价，无成交返回 0
func (o *Order) AvgFillPrice() float64 {
	var qty, notional float64
	for _, f := range o.Fills {
		qty += f.Qty
		notional += f.Qty * f.Price
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// CommissionByAsset 按币种统计手续费（不同币种不可相加）
func (o *Order) CommissionByAsset() map[string]float64 {
	fees := make(map[string]float64)
	for _, f := range o.Fills {
		fees[f.FeeAsset] += f.Fee
	}
	return fees
}

// CanCancel 当前状态是否允许撤单
func (o *Order) CanCancel() bool {
	switch o.State {
	case StatePending, StateOpen, StatePartiallyFilled:
		return true
	default:
		return false
	}
}

// Clone 返回订单快照（含成交列表拷贝）
func (o *Order) Clone() *Order {
	c := *o
	c.Fills = make([]Fill, len(o.Fills))
	copy(c.Fills, o.Fills)
	return &c
}
