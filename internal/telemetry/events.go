// Package telemetry 交易事件流发布
package telemetry

import "time"

// 事件类型
const (
	EventOrderTransition = "ORDER_TRANSITION"
	EventRiskRejection   = "RISK_REJECTION"
	EventRiskWarning     = "RISK_WARNING"
	EventBreakerTrip     = "BREAKER_TRIP"
	EventBreakerReset    = "BREAKER_RESET"
)

// OrderTransitionEvent 订单状态变更事件
type OrderTransitionEvent struct {
	Type          string    `json:"type"`
	ClientOrderID string    `json:"clientOrderId"`
	Symbol        string    `json:"symbol"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	FilledQty     float64   `json:"filledQty"`
	Timestamp     time.Time `json:"timestamp"`
}

// RiskEvent 风控拒绝/警告事件
type RiskEvent struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Policy    string    `json:"policy"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerEvent 熔断器事件
type BreakerEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink 事件接收端（只读消费，不回写）
type Sink interface {
	OrderTransition(ev OrderTransitionEvent)
	RiskRejection(ev RiskEvent)
	BreakerTrip(ev BreakerEvent)
}

// Nop 空实现
type Nop struct{}

func (Nop) OrderTransition(OrderTransitionEvent) {}
func (Nop) RiskRejection(RiskEvent)              {}
func (Nop) BreakerTrip(BreakerEvent)             {}
