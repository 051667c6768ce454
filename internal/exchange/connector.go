// Package exchange 交易所连接器接口与实现
package exchange

import (
	"context"
	"time"
)

// SubmitRequest 下单请求
type SubmitRequest struct {
	ClientOrderID string  `json:"clientOrderId"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Qty           float64 `json:"qty"`
	Price         float64 `json:"price,omitempty"`
	TimeInForce   string  `json:"timeInForce,omitempty"`
}

// OrderAck 交易所受理回报
type OrderAck struct {
	ClientOrderID   string `json:"clientOrderId"`
	ExchangeOrderID string `json:"exchangeOrderId"`
}

// FillEvent 成交推送
type FillEvent struct {
	ClientOrderID string    `json:"clientOrderId"`
	Qty           float64   `json:"qty"`
	Price         float64   `json:"price"`
	Fee           float64   `json:"fee"`
	FeeAsset      string    `json:"feeAsset"`
	Timestamp     time.Time `json:"timestamp"`
}

// ExpireEvent 订单失效推送（有效期到期，交易所侧关闭）
type ExpireEvent struct {
	ClientOrderID string    `json:"clientOrderId"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventHandler 异步回报处理端（由 Executor 实现）
type EventHandler interface {
	OnAck(ack OrderAck)
	OnFill(ev FillEvent)
	OnExpire(ev ExpireEvent)
}

// Connector 交易所连接器。
// SubmitOrder 返回交易所订单号；业务拒绝返回不可重试错误，
// 传输故障返回可重试错误（见 pkg/xerrors）。
type Connector interface {
	SubmitOrder(ctx context.Context, req *SubmitRequest) (string, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	OpenOrders(ctx context.Context, symbol string) ([]string, error)
}
