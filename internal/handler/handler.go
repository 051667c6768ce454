// Package handler 决策消息处理
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exchange/trader/internal/exchange"
	"github.com/exchange/trader/internal/executor"
	"github.com/exchange/trader/internal/risk"
	"github.com/exchange/trader/internal/tracker"
	"github.com/exchange/trader/pkg/logger"
)

// 消息类型
const (
	MsgDecision     = "DECISION"
	MsgOutcome      = "OUTCOME"
	MsgCancel       = "CANCEL"
	MsgBreakerReset = "BREAKER_RESET"
)

// DecisionMessage 策略决策消息（从 Redis Stream 接收）。
// 账户上下文由调用方随消息提供，本核心不主动拉取。
type DecisionMessage struct {
	Type   string `json:"type"` // DECISION / OUTCOME / CANCEL / BREAKER_RESET
	Symbol string `json:"symbol"`

	// DECISION 字段
	Intent       string  `json:"intent"` // BUY / SELL / HOLD
	SizeHint     float64 `json:"sizeHint"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
	StopDistance float64 `json:"stopDistance,omitempty"`
	ReduceOnly   bool    `json:"reduceOnly,omitempty"`
	Leverage     float64 `json:"leverage,omitempty"`
	MarkPrice    float64 `json:"markPrice"`

	// OUTCOME 字段
	RealizedPnl float64 `json:"realizedPnl,omitempty"`

	// CANCEL 字段
	ClientOrderID string `json:"clientOrderId,omitempty"`

	Account *AccountSnapshot `json:"account,omitempty"`
}

// AccountSnapshot 账户上下文快照
type AccountSnapshot struct {
	Capital          float64            `json:"capital"`
	OpenPositions    map[string]float64 `json:"openPositions,omitempty"`
	PeakEquity       float64            `json:"peakEquity"`
	RealizedPnlToday float64            `json:"realizedPnlToday"`
	MarginLevelPct   *float64           `json:"marginLevelPct,omitempty"`
	FundingRatePct   *float64           `json:"fundingRatePct,omitempty"`
}

// toContext 转为风控账户上下文
func (a *AccountSnapshot) toContext() *risk.AccountContext {
	return &risk.AccountContext{
		Capital:          a.Capital,
		OpenPositions:    a.OpenPositions,
		PeakEquity:       a.PeakEquity,
		RealizedPnlToday: a.RealizedPnlToday,
		MarginLevelPct:   a.MarginLevelPct,
		FundingRatePct:   a.FundingRatePct,
	}
}

// Config 处理器配置
type Config struct {
	DecisionStream string
	Group          string
	Consumer       string
	Logger         *logger.Logger
	Prices         *exchange.PriceCache
	Tracker        *tracker.Tracker
}

// Handler 决策消息处理器：消费决策流，按 symbol 路由到执行器。
// 同时实现 exchange.EventHandler，把用户数据流回报路由到对应执行器。
type Handler struct {
	redis     *redis.Client
	executors map[string]*executor.Executor
	risk      *risk.Manager
	prices    *exchange.PriceCache
	tracker   *tracker.Tracker
	mu        sync.RWMutex
	log       *logger.Logger

	decisionStream string
	group          string
	consumer       string
}

// NewHandler 创建处理器
func NewHandler(redisClient *redis.Client, riskMgr *risk.Manager, cfg *Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.New("trader", nil)
	}
	return &Handler{
		redis:          redisClient,
		executors:      make(map[string]*executor.Executor),
		risk:           riskMgr,
		prices:         cfg.Prices,
		tracker:        cfg.Tracker,
		log:            log,
		decisionStream: cfg.DecisionStream,
		group:          cfg.Group,
		consumer:       cfg.Consumer,
	}
}

// Register 注册某个 symbol 的执行器（交易路由）
func (h *Handler) Register(symbol string, exec *executor.Executor) {
	h.mu.Lock()
	h.executors[symbol] = exec
	h.mu.Unlock()
}

// Start 创建消费者组并启动消费循环
func (h *Handler) Start(ctx context.Context) error {
	err := h.redis.XGroupCreateMkStream(ctx, h.decisionStream, h.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}

	go h.consumeLoop(ctx)
	return nil
}

func (h *Handler) consumeLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("consumeLoop panic", map[string]interface{}{
				"panic": r, "stack": string(debug.Stack()),
			})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results, err := h.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    h.group,
			Consumer: h.consumer,
			Streams:  []string{h.decisionStream, ">"},
			Count:    100,
			Block:    1000 * time.Millisecond,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			h.log.WithError(err).Warn("read decision stream error")
			continue
		}

		for _, result := range results {
			for _, msg := range result.Messages {
				h.processMessage(ctx, msg)
			}
		}
	}
}

func (h *Handler) processMessage(ctx context.Context, msg redis.XMessage) {
	// 处理失败也 ACK：决策消息有时效性，过期重放有害无益
	defer func() {
		if err := h.redis.XAck(ctx, h.decisionStream, h.group, msg.ID).Err(); err != nil {
			h.log.WithError(err).Warn("ack decision message failed")
		}
	}()

	data, ok := msg.Values["data"].(string)
	if !ok {
		h.log.WithField("msgId", msg.ID).Warn("decision message missing data field")
		return
	}

	var m DecisionMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		h.log.WithError(err).Warn("malformed decision message")
		return
	}

	switch m.Type {
	case MsgDecision:
		h.handleDecision(ctx, &m)
	case MsgOutcome:
		h.handleOutcome(&m)
	case MsgCancel:
		h.handleCancel(ctx, &m)
	case MsgBreakerReset:
		h.risk.Breaker().Reset()
		h.log.Info("circuit breaker reset by operator")
	default:
		h.log.WithField("type", m.Type).Warn("unknown decision message type")
	}
}

func (h *Handler) handleDecision(ctx context.Context, m *DecisionMessage) {
	exec := h.executor(m.Symbol)
	if exec == nil {
		h.log.WithField("symbol", m.Symbol).Warn("decision for unregistered symbol")
		return
	}
	if m.Account == nil {
		h.log.WithField("symbol", m.Symbol).Warn("decision missing account snapshot")
		return
	}

	if h.prices != nil {
		h.prices.Set(m.Symbol, m.MarkPrice)
	}

	d := executor.Decision{
		Intent:       executor.Intent(m.Intent),
		SizeHint:     m.SizeHint,
		Confidence:   m.Confidence,
		Reason:       m.Reason,
		StopDistance: m.StopDistance,
		ReduceOnly:   m.ReduceOnly,
		Leverage:     m.Leverage,
	}

	result, err := exec.Execute(ctx, d, m.Account.toContext(), m.MarkPrice)
	if err != nil {
		h.log.WithError(err).WithField("symbol", m.Symbol).Error("decision execution failed")
		return
	}
	if result == nil {
		return // HOLD
	}
	if !result.Approved {
		h.log.Infof("decision rejected by risk", map[string]interface{}{
			"symbol":  m.Symbol,
			"reasons": executor.FormatRiskMessages(result.RiskMessages),
		})
		return
	}
	h.log.Infof("decision executed", map[string]interface{}{
		"symbol":        m.Symbol,
		"clientOrderId": result.Order.ClientOrderID,
		"state":         result.Order.State,
	})
}

func (h *Handler) handleOutcome(m *DecisionMessage) {
	if m.Account == nil {
		h.log.Warn("outcome missing account snapshot")
		return
	}
	h.risk.RecordOutcome(m.RealizedPnl, m.Account.toContext())
}

func (h *Handler) handleCancel(ctx context.Context, m *DecisionMessage) {
	exec := h.executor(m.Symbol)
	if exec == nil {
		h.log.WithField("symbol", m.Symbol).Warn("cancel for unregistered symbol")
		return
	}
	if err := exec.Cancel(ctx, m.ClientOrderID); err != nil {
		h.log.WithError(err).WithField("clientOrderId", m.ClientOrderID).Warn("cancel failed")
	}
}

func (h *Handler) executor(symbol string) *executor.Executor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.executors[symbol]
}

// OnAck 将受理回报路由到持单执行器
func (h *Handler) OnAck(ack exchange.OrderAck) {
	if exec := h.executorFor(ack.ClientOrderID); exec != nil {
		exec.OnAck(ack)
	}
}

// OnFill 将成交回报路由到持单执行器
func (h *Handler) OnFill(ev exchange.FillEvent) {
	if exec := h.executorFor(ev.ClientOrderID); exec != nil {
		exec.OnFill(ev)
	}
}

// OnExpire 将失效回报路由到持单执行器
func (h *Handler) OnExpire(ev exchange.ExpireEvent) {
	if exec := h.executorFor(ev.ClientOrderID); exec != nil {
		exec.OnExpire(ev)
	}
}

func (h *Handler) executorFor(clientOrderID string) *executor.Executor {
	o, err := h.tracker.Get(clientOrderID)
	if err != nil {
		h.log.WithField("clientOrderId", clientOrderID).Warn("event for unknown order")
		return nil
	}
	exec := h.executor(o.Symbol)
	if exec == nil {
		h.log.WithField("symbol", o.Symbol).Warn("event for unregistered symbol")
	}
	return exec
}
