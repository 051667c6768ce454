package tracker

import (
	"sync"
	"time"

	"github.com/exchange/trader/internal/telemetry"
	"github.com/exchange/trader/pkg/xerrors"
)

// epsilon 数量比较容差（避免浮点累加误差导致的 OVER_FILL 误判）
const epsilon = 1e-9

// Tracker 在途订单的唯一事实来源（内存存储 + 互斥锁）
type Tracker struct {
	mu         sync.Mutex
	orders     map[string]*Order // clientOrderID -> order
	byExchange map[string]string // exchangeOrderID -> clientOrderID
	history    []*Order          // 已关闭订单，最旧在前
	maxHistory int
	closed     int64 // 累计关闭数（含被淘汰的）
	sink       telemetry.Sink
	now        func() time.Time
}

// New 创建 Tracker，maxHistory 为历史缓冲区上限
func New(maxHistory int, sink telemetry.Sink) *Tracker {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Tracker{
		orders:     make(map[string]*Order),
		byExchange: make(map[string]string),
		history:    make([]*Order, 0, maxHistory),
		maxHistory: maxHistory,
		sink:       sink,
		now:        time.Now,
	}
}

// CreateOrder 登记新订单，初始状态 PENDING
func (t *Tracker) CreateOrder(clientOrderID, symbol string, side Side, typ OrderType, qty, price float64, tif TimeInForce) (*Order, error) {
	if clientOrderID == "" || symbol == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParam, "clientOrderID/symbol required")
	}
	if qty <= 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidQuantity, "qty must be positive: %v", qty)
	}
	if (typ == OrderTypeLimit || typ == OrderTypeStop) && price <= 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidPrice, "price required for %s order", typ)
	}
	if tif == "" {
		tif = TimeInForceGTC
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[clientOrderID]; ok {
		return nil, xerrors.Newf(xerrors.CodeDuplicateClientOrderId, "client order id already exists: %s", clientOrderID)
	}

	now := t.now()
	o := &Order{
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		RequestedQty:  qty,
		Price:         price,
		TimeInForce:   tif,
		State:         StatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.orders[clientOrderID] = o

	t.emit(o, "", StatePending)
	return o.Clone(), nil
}

// CreateChildOrder 登记保护性子单，记录父单回链。
// 回链仅用于报表，父子订单状态互不传导。
func (t *Tracker) CreateChildOrder(parentClientOrderID, clientOrderID, symbol string, side Side, typ OrderType, qty, price float64, tif TimeInForce) (*Order, error) {
	o, err := t.CreateOrder(clientOrderID, symbol, side, typ, qty, price, tif)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.orders[clientOrderID].ParentClientOrderID = parentClientOrderID
	t.mu.Unlock()

	o.ParentClientOrderID = parentClientOrderID
	return o, nil
}

// SetExchangeID 记录交易所订单号并进入 OPEN。
// 相同 ID 重复调用为幂等空操作，不同 ID 报错。
func (t *Tracker) SetExchangeID(clientOrderID, exchangeOrderID string) error {
	if exchangeOrderID == "" {
		return xerrors.New(xerrors.CodeInvalidParam, "exchangeOrderID required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if o.ExchangeOrderID != "" {
		if o.ExchangeOrderID == exchangeOrderID {
			return nil
		}
		return xerrors.Newf(xerrors.CodeExchangeIdAssigned, "exchange id already assigned: %s (got %s)", o.ExchangeOrderID, exchangeOrderID)
	}

	o.ExchangeOrderID = exchangeOrderID
	t.byExchange[exchangeOrderID] = clientOrderID

	if o.State == StatePending {
		t.transition(o, StateOpen)
	}
	return nil
}

// AddFill 追加一笔成交。成交总量达到委托量转 FILLED，否则转 PARTIALLY_FILLED。
func (t *Tracker) AddFill(clientOrderID string, qty, price, fee float64, feeAsset string) (*Order, error) {
	if qty <= 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidQuantity, "fill qty must be positive: %v", qty)
	}
	if price <= 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidPrice, "fill price must be positive: %v", price)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if o.State.IsTerminal() {
		return nil, xerrors.Newf(xerrors.CodeInvalidStateForFill, "order %s is terminal: %s", clientOrderID, o.State)
	}

	filled := o.FilledQty()
	if filled+qty > o.RequestedQty+epsilon {
		return nil, xerrors.Newf(xerrors.CodeOverFill, "fill %v exceeds remaining %v on %s", qty, o.RequestedQty-filled, clientOrderID)
	}

	o.Fills = append(o.Fills, Fill{
		Timestamp: t.now(),
		Qty:       qty,
		Price:     price,
		Fee:       fee,
		FeeAsset:  feeAsset,
	})

	if o.FilledQty() >= o.RequestedQty-epsilon {
		t.transition(o, StateFilled)
	} else {
		t.transition(o, StatePartiallyFilled)
	}
	return o.Clone(), nil
}

// CancelOrder 撤单，仅 PENDING/OPEN/PARTIALLY_FILLED 可撤
func (t *Tracker) CancelOrder(clientOrderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if !o.CanCancel() {
		return xerrors.Newf(xerrors.CodeInvalidStateForCancel, "cannot cancel order %s in state %s", clientOrderID, o.State)
	}

	t.transition(o, StateCancelled)
	return nil
}

// MarkRejected 交易所业务拒绝，PENDING -> REJECTED
func (t *Tracker) MarkRejected(clientOrderID, reason string) error {
	return t.markTerminal(clientOrderID, StateRejected, reason)
}

// MarkFailed 提交/传输失败，-> FAILED
func (t *Tracker) MarkFailed(clientOrderID, reason string) error {
	return t.markTerminal(clientOrderID, StateFailed, reason)
}

// MarkExpired 有效期失效，OPEN -> EXPIRED
func (t *Tracker) MarkExpired(clientOrderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if o.State != StateOpen {
		return xerrors.Newf(xerrors.CodeInvalidParam, "cannot expire order %s in state %s", clientOrderID, o.State)
	}

	t.transition(o, StateExpired)
	return nil
}

func (t *Tracker) markTerminal(clientOrderID string, to OrderState, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if o.State.IsTerminal() {
		return xerrors.Newf(xerrors.CodeInvalidParam, "order %s already terminal: %s", clientOrderID, o.State)
	}

	o.FailReason = reason
	t.transition(o, to)
	return nil
}

// CloseOrder 将终态订单移入历史缓冲区（保留最近 N 条，满则淘汰最旧）
func (t *Tracker) CloseOrder(clientOrderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	if !o.State.IsTerminal() {
		return xerrors.Newf(xerrors.CodeOrderNotTerminal, "order %s not terminal: %s", clientOrderID, o.State)
	}

	t.closeLocked(o)
	return nil
}

// Sweep 将静置超过 minAge 的终态订单批量移入历史缓冲区，返回关闭数量。
// 保留宽限期，避免晚到的回报与查询落在刚终结的订单上。
func (t *Tracker) Sweep(minAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-minAge)
	n := 0
	for _, o := range t.orders {
		if o.State.IsTerminal() && o.UpdatedAt.Before(cutoff) {
			t.closeLocked(o)
			n++
		}
	}
	return n
}

// closeLocked 执行关闭，调用方须持锁且已校验终态
func (t *Tracker) closeLocked(o *Order) {
	delete(t.orders, o.ClientOrderID)
	if o.ExchangeOrderID != "" {
		delete(t.byExchange, o.ExchangeOrderID)
	}

	t.history = append(t.history, o)
	if len(t.history) > t.maxHistory {
		t.history = t.history[1:]
	}
	t.closed++
}

// Get 按客户端订单号查询快照
func (t *Tracker) Get(clientOrderID string) (*Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeOrderNotFound, "unknown order: %s", clientOrderID)
	}
	return o.Clone(), nil
}

// GetByExchangeID 按交易所订单号查询快照
func (t *Tracker) GetByExchangeID(exchangeOrderID string) (*Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clientID, ok := t.byExchange[exchangeOrderID]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeOrderNotFound, "unknown exchange order: %s", exchangeOrderID)
	}
	return t.orders[clientID].Clone(), nil
}

// OpenOrders 返回未终态订单快照，symbol 为空返回全部
func (t *Tracker) OpenOrders(symbol string) []*Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Order
	for _, o := range t.orders {
		if o.State.IsTerminal() {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}

// History 返回历史订单快照，最新在前，limit<=0 不限制
func (t *Tracker) History(symbol string, limit int) []*Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Order
	for i := len(t.history) - 1; i >= 0; i-- {
		o := t.history[i]
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, o.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats 订单统计
type Stats struct {
	ByState           map[OrderState]int
	CommissionByAsset map[string]float64
	TotalClosed       int64
}

// GetStats 汇总在途与历史订单的统计
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		ByState:           make(map[OrderState]int),
		CommissionByAsset: make(map[string]float64),
		TotalClosed:       t.closed,
	}
	for _, o := range t.orders {
		s.ByState[o.State]++
		for asset, fee := range o.CommissionByAsset() {
			s.CommissionByAsset[asset] += fee
		}
	}
	for _, o := range t.history {
		s.ByState[o.State]++
		for asset, fee := range o.CommissionByAsset() {
			s.CommissionByAsset[asset] += fee
		}
	}
	return s
}

// transition 状态迁移，调用方须持锁
func (t *Tracker) transition(o *Order, to OrderState) {
	from := o.State
	o.State = to
	o.UpdatedAt = t.now()
	t.emit(o, from, to)
}

// emit 发布状态变更事件，调用方须持锁
func (t *Tracker) emit(o *Order, from, to OrderState) {
	t.sink.OrderTransition(telemetry.OrderTransitionEvent{
		Type:          telemetry.EventOrderTransition,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		From:          string(from),
		To:            string(to),
		FilledQty:     o.FilledQty(),
		Timestamp:     o.UpdatedAt,
	})
}
