package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exchange/trader/pkg/xerrors"
)

// PriceSource 最新标记价格来源
type PriceSource func(symbol string) float64

// SimConfig 模拟连接器配置
type SimConfig struct {
	// SlippagePct 成交价相对标记价的滑点比例（DRY_RUN 设 0）
	SlippagePct float64
	// FillParts 每笔订单拆分的成交笔数，<=1 为一次性成交
	FillParts int
	// FeeRate 手续费率
	FeeRate float64
	// FeeAsset 手续费币种
	FeeAsset string
}

// SimConnector 本地模拟连接器（DRY_RUN / PAPER）。
// 提交后在同一调用内依次回报 ack 与成交，成交价取标记价加滑点。
type SimConnector struct {
	cfg     SimConfig
	price   PriceSource
	seq     atomic.Int64
	mu      sync.Mutex
	handler EventHandler
	open    map[string]string // exchangeOrderID -> symbol
}

// NewSimConnector 创建模拟连接器
func NewSimConnector(cfg SimConfig, price PriceSource) *SimConnector {
	if cfg.FillParts <= 0 {
		cfg.FillParts = 1
	}
	if cfg.FeeAsset == "" {
		cfg.FeeAsset = "USDT"
	}
	return &SimConnector{
		cfg:   cfg,
		price: price,
		open:  make(map[string]string),
	}
}

// SetHandler 注册回报处理端
func (c *SimConnector) SetHandler(h EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SubmitOrder 模拟受理并立即成交
func (c *SimConnector) SubmitOrder(ctx context.Context, req *SubmitRequest) (string, error) {
	if req.Qty <= 0 {
		return "", xerrors.Newf(xerrors.CodeOrderRejected, "invalid qty: %v", req.Qty)
	}

	mark := c.price(req.Symbol)
	if mark <= 0 {
		return "", xerrors.Newf(xerrors.CodeOrderRejected, "no mark price for %s", req.Symbol)
	}

	exchangeID := fmt.Sprintf("sim-%d", c.seq.Add(1))

	c.mu.Lock()
	c.open[exchangeID] = req.Symbol
	h := c.handler
	c.mu.Unlock()

	if h == nil {
		return exchangeID, nil
	}

	h.OnAck(OrderAck{ClientOrderID: req.ClientOrderID, ExchangeOrderID: exchangeID})

	// 买单滑点向上，卖单向下
	fillPrice := mark
	switch req.Side {
	case "BUY":
		fillPrice = mark * (1 + c.cfg.SlippagePct)
	case "SELL":
		fillPrice = mark * (1 - c.cfg.SlippagePct)
	}

	parts := c.cfg.FillParts
	partQty := req.Qty / float64(parts)
	for i := 0; i < parts; i++ {
		qty := partQty
		if i == parts-1 {
			// 末笔补齐，避免浮点拆分误差
			qty = req.Qty - partQty*float64(parts-1)
		}
		h.OnFill(FillEvent{
			ClientOrderID: req.ClientOrderID,
			Qty:           qty,
			Price:         fillPrice,
			Fee:           qty * fillPrice * c.cfg.FeeRate,
			FeeAsset:      c.cfg.FeeAsset,
			Timestamp:     time.Now(),
		})
	}

	c.mu.Lock()
	delete(c.open, exchangeID)
	c.mu.Unlock()

	return exchangeID, nil
}

// CancelOrder 模拟撤单
func (c *SimConnector) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.open[exchangeOrderID]; !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown exchange order: %s", exchangeOrderID)
	}
	delete(c.open, exchangeOrderID)
	return nil
}

// OpenOrders 返回模拟挂单
func (c *SimConnector) OpenOrders(ctx context.Context, symbol string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for id, sym := range c.open {
		if symbol == "" || sym == symbol {
			out = append(out, id)
		}
	}
	return out, nil
}
