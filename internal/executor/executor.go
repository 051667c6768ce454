package executor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/exchange/trader/internal/exchange"
	"github.com/exchange/trader/internal/metrics"
	"github.com/exchange/trader/internal/risk"
	"github.com/exchange/trader/internal/tracker"
	"github.com/exchange/trader/pkg/logger"
	"github.com/exchange/trader/pkg/snowflake"
	"github.com/exchange/trader/pkg/xerrors"
)

// Mode 执行模式（进程启动时固定，不支持单笔切换）
type Mode string

const (
	ModeDryRun Mode = "DRY_RUN"
	ModePaper  Mode = "PAPER"
	ModeLive   Mode = "LIVE"
)

// Intent 策略意图
type Intent string

const (
	IntentBuy  Intent = "BUY"
	IntentSell Intent = "SELL"
	IntentHold Intent = "HOLD"
)

// Decision 策略输出
type Decision struct {
	Intent     Intent
	SizeHint   float64 // [0,1]
	Confidence float64 // [0,1]
	Reason     string

	// StopDistance 止损距离（价格偏移），供风控校验与保护单
	StopDistance float64
	// ReduceOnly 减仓标记
	ReduceOnly bool
	// Leverage 隐含杠杆，0 按 1 处理
	Leverage float64
}

// Sizing 下单数量约束（交易所规格）
type Sizing struct {
	MinQty  float64
	MaxQty  float64
	QtyStep float64
}

// Size 计算下单数量：sizeHint × capital × confidence 后夹取到
// [MinQty, MaxQty]，再向下取整到步长。只舍不入，避免超出风控名义价值。
// 低于最小数量返回 0。
func (s Sizing) Size(sizeHint, confidence, capital float64) float64 {
	qty := sizeHint * capital * confidence
	if qty < s.MinQty {
		return 0
	}
	if s.MaxQty > 0 && qty > s.MaxQty {
		qty = s.MaxQty
	}
	if s.QtyStep > 0 {
		qty = math.Floor(qty/s.QtyStep) * s.QtyStep
	}
	if qty < s.MinQty {
		return 0
	}
	return qty
}

// Protective 保护性子单配置
type Protective struct {
	Enabled       bool
	StopLossPct   float64 // 相对成交均价的止损偏移
	TakeProfitPct float64 // 相对成交均价的止盈偏移，0 不挂止盈
}

// Result 单次执行结果。风控拒绝是预期结果，不作为 error 返回。
type Result struct {
	Approved     bool
	RiskMessages []string
	Order        *tracker.Order
}

// Executor 将策略决策转为订单：定价定量、风控校验、提交重试、回报对账
type Executor struct {
	mode       Mode
	symbol     string
	sizing     Sizing
	backoff    Backoff
	protective Protective

	conn    exchange.Connector
	tracker *tracker.Tracker
	risk    *risk.Manager
	ids     *snowflake.Generator
	log     *logger.Logger

	mu      sync.Mutex
	parents map[string]Protective // 待挂保护单的父单
}

// Config 执行器配置
type Config struct {
	Mode       Mode
	Symbol     string
	Sizing     Sizing
	Backoff    Backoff
	Protective Protective
}

// New 创建执行器
func New(cfg Config, conn exchange.Connector, trk *tracker.Tracker, riskMgr *risk.Manager, ids *snowflake.Generator, log *logger.Logger) *Executor {
	if cfg.Backoff.MaxRetries <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Executor{
		mode:       cfg.Mode,
		symbol:     cfg.Symbol,
		sizing:     cfg.Sizing,
		backoff:    cfg.Backoff,
		protective: cfg.Protective,
		conn:       conn,
		tracker:    trk,
		risk:       riskMgr,
		ids:        ids,
		log:        log,
		parents:    make(map[string]Protective),
	}
}

// Execute 执行一条策略决策。HOLD 返回 (nil, nil)。
// 风控拒绝返回 Result{Approved: false}，error 仅用于真实故障。
func (e *Executor) Execute(ctx context.Context, d Decision, acct *risk.AccountContext, markPrice float64) (*Result, error) {
	if d.Intent == IntentHold {
		return nil, nil
	}
	if d.Intent != IntentBuy && d.Intent != IntentSell {
		return nil, xerrors.Newf(xerrors.CodeInvalidParam, "unknown intent: %s", d.Intent)
	}
	if markPrice <= 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidPrice, "mark price must be positive: %v", markPrice)
	}

	qty := e.sizing.Size(d.SizeHint, d.Confidence, acct.Capital)
	if qty <= 0 {
		return nil, xerrors.Newf(xerrors.CodeQtyTooSmall, "sized qty below exchange minimum %v", e.sizing.MinQty)
	}

	side := tracker.SideBuy
	if d.Intent == IntentSell {
		side = tracker.SideSell
	}

	req := &risk.OrderRequest{
		Symbol:       e.symbol,
		Side:         side,
		Type:         tracker.OrderTypeMarket,
		Qty:          qty,
		Price:        markPrice,
		StopDistance: d.StopDistance,
		ReduceOnly:   d.ReduceOnly,
		Leverage:     d.Leverage,
	}
	approved, messages := e.risk.ValidateOrder(req, acct)
	if !approved {
		return &Result{Approved: false, RiskMessages: messages}, nil
	}

	clientID, err := e.ids.GenerateOrderID()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err)
	}

	o, err := e.tracker.CreateOrder(clientID, e.symbol, side, tracker.OrderTypeMarket, qty, 0, tracker.TimeInForceGTC)
	if err != nil {
		return nil, err
	}

	if e.protective.Enabled && !d.ReduceOnly {
		e.mu.Lock()
		e.parents[clientID] = e.protective
		e.mu.Unlock()
	}

	e.log.Infof("submitting order", map[string]interface{}{
		"clientOrderId": clientID,
		"symbol":        e.symbol,
		"side":          side,
		"qty":           qty,
		"mode":          e.mode,
		"reason":        d.Reason,
	})

	if err := e.submit(ctx, o); err != nil {
		final, _ := e.tracker.Get(clientID)
		return &Result{Approved: true, RiskMessages: messages, Order: final}, err
	}

	final, err := e.tracker.Get(clientID)
	if err != nil {
		return nil, err
	}
	return &Result{Approved: true, RiskMessages: messages, Order: final}, nil
}

// submit 提交订单。传输故障按退避策略重试，业务拒绝立即终止。
// 提交等待期间不持有任何 Tracker 锁。
func (e *Executor) submit(ctx context.Context, o *tracker.Order) error {
	req := &exchange.SubmitRequest{
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Qty:           o.RequestedQty,
		Price:         o.Price,
		TimeInForce:   string(o.TimeInForce),
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < e.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.backoff.Delay(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		exchangeID, err := e.conn.SubmitOrder(ctx, req)
		if err == nil {
			metrics.ObserveSubmitLatency(time.Since(start))
			metrics.IncOrdersSubmitted(o.Symbol, string(e.mode))
			return e.tracker.SetExchangeID(o.ClientOrderID, exchangeID)
		}

		if !xerrors.IsRetryable(err) {
			// 交易所业务拒绝，重试无意义
			if mErr := e.tracker.MarkRejected(o.ClientOrderID, err.Error()); mErr != nil {
				e.log.WithError(mErr).Error("mark rejected failed")
			}
			metrics.IncOrdersFailed(o.Symbol, string(tracker.StateRejected))
			return err
		}

		lastErr = err
		e.log.Warnf("order submit failed, will retry", map[string]interface{}{
			"clientOrderId": o.ClientOrderID,
			"attempt":       attempt + 1,
			"error":         err.Error(),
		})
	}

	if mErr := e.tracker.MarkFailed(o.ClientOrderID, lastErr.Error()); mErr != nil {
		e.log.WithError(mErr).Error("mark failed failed")
	}
	metrics.IncOrdersFailed(o.Symbol, string(tracker.StateFailed))
	return xerrors.Newf(xerrors.CodeSubmitFailed, "submit exhausted %d attempts: %v", e.backoff.MaxRetries, lastErr)
}

// Cancel 撤单：先校验并更新本地状态，再尽力撤交易所挂单
func (e *Executor) Cancel(ctx context.Context, clientOrderID string) error {
	o, err := e.tracker.Get(clientOrderID)
	if err != nil {
		return err
	}
	if err := e.tracker.CancelOrder(clientOrderID); err != nil {
		return err
	}
	if o.ExchangeOrderID != "" {
		if err := e.conn.CancelOrder(ctx, o.ExchangeOrderID); err != nil {
			e.log.WithError(err).WithField("clientOrderId", clientOrderID).Warn("exchange cancel failed")
		}
	}
	return nil
}

// OnAck 处理交易所受理回报。与提交路径的 SetExchangeID 幂等互容。
func (e *Executor) OnAck(ack exchange.OrderAck) {
	if err := e.tracker.SetExchangeID(ack.ClientOrderID, ack.ExchangeOrderID); err != nil {
		e.log.WithError(err).WithField("clientOrderId", ack.ClientOrderID).Error("ack reconcile failed")
	}
}

// OnFill 处理成交回报。父单完全成交后挂保护性子单。
func (e *Executor) OnFill(ev exchange.FillEvent) {
	o, err := e.tracker.AddFill(ev.ClientOrderID, ev.Qty, ev.Price, ev.Fee, ev.FeeAsset)
	if err != nil {
		e.log.WithError(err).WithField("clientOrderId", ev.ClientOrderID).Error("fill reconcile failed")
		return
	}

	if o.State != tracker.StateFilled {
		return
	}
	metrics.IncOrdersFilled(o.Symbol)

	e.mu.Lock()
	prot, ok := e.parents[o.ClientOrderID]
	delete(e.parents, o.ClientOrderID)
	e.mu.Unlock()

	if ok && o.ParentClientOrderID == "" {
		e.placeProtective(o, prot)
	}
}

// OnExpire 处理订单失效回报，OPEN -> EXPIRED。
// 失效的父单不再挂保护性子单。
func (e *Executor) OnExpire(ev exchange.ExpireEvent) {
	if err := e.tracker.MarkExpired(ev.ClientOrderID); err != nil {
		e.log.WithError(err).WithField("clientOrderId", ev.ClientOrderID).Error("expire reconcile failed")
		return
	}
	metrics.IncOrdersFailed(e.symbol, string(tracker.StateExpired))

	e.mu.Lock()
	delete(e.parents, ev.ClientOrderID)
	e.mu.Unlock()
}

// placeProtective 以成交均价为基准挂止损/止盈子单。
// 子单与父单相互独立，撤父单不会级联撤子单。
func (e *Executor) placeProtective(parent *tracker.Order, prot Protective) {
	avg := parent.AvgFillPrice()
	qty := parent.FilledQty()

	exitSide := tracker.SideSell
	slPrice := avg * (1 - prot.StopLossPct)
	tpPrice := avg * (1 + prot.TakeProfitPct)
	if parent.Side == tracker.SideSell {
		exitSide = tracker.SideBuy
		slPrice = avg * (1 + prot.StopLossPct)
		tpPrice = avg * (1 - prot.TakeProfitPct)
	}

	if prot.StopLossPct > 0 {
		e.submitChild(parent, exitSide, tracker.OrderTypeStop, qty, slPrice)
	}
	if prot.TakeProfitPct > 0 {
		e.submitChild(parent, exitSide, tracker.OrderTypeLimit, qty, tpPrice)
	}
}

func (e *Executor) submitChild(parent *tracker.Order, side tracker.Side, typ tracker.OrderType, qty, price float64) {
	clientID, err := e.ids.GenerateOrderID()
	if err != nil {
		e.log.WithError(err).Error("child order id generation failed")
		return
	}

	o, err := e.tracker.CreateChildOrder(parent.ClientOrderID, clientID, parent.Symbol, side, typ, qty, price, tracker.TimeInForceGTC)
	if err != nil {
		e.log.WithError(err).Error("child order create failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.submit(ctx, o); err != nil {
		e.log.WithError(err).WithField("parentClientOrderId", parent.ClientOrderID).Error("protective order submit failed")
	}
}

// Mode 当前执行模式
func (e *Executor) Mode() Mode {
	return e.mode
}

// FormatRiskMessages 拼接风控消息用于日志
func FormatRiskMessages(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	return fmt.Sprintf("[%s]", strings.Join(messages, "; "))
}
