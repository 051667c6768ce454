package risk

import (
	"fmt"
	"time"

	"github.com/exchange/trader/internal/metrics"
	"github.com/exchange/trader/internal/telemetry"
	"github.com/exchange/trader/pkg/logger"
)

// ChainConfig 策略链阈值配置
type ChainConfig struct {
	MaxPositionPct      float64
	MaxLeverage         float64
	MaxDailyDrawdownPct float64
	RequireStopLoss     bool
	MarginWarnPct       float64
	MarginCriticalPct   float64
	MaxFundingRatePct   float64

	// HardBlockPolicies 列出 WARN 也视为拒绝的策略名
	HardBlockPolicies []string
}

// Manager 风控管理器：按固定顺序执行策略链，维护熔断器
type Manager struct {
	policies  []Policy
	hardBlock map[string]bool
	breaker   *Breaker
	sink      telemetry.Sink
	log       *logger.Logger
}

// NewManager 按标准顺序组装策略链。
// 熔断器门禁最先执行：停机状态下无须评估其余策略。
func NewManager(cfg ChainConfig, breaker *Breaker, sink telemetry.Sink, log *logger.Logger) *Manager {
	if sink == nil {
		sink = telemetry.Nop{}
	}

	policies := []Policy{
		&BreakerPolicy{Breaker: breaker},
		&MaxPositionSize{MaxPositionPct: cfg.MaxPositionPct},
		&MaxLeverage{Max: cfg.MaxLeverage},
		&DailyDrawdown{MaxDailyDrawdownPct: cfg.MaxDailyDrawdownPct},
	}
	if cfg.RequireStopLoss {
		policies = append(policies, &StopLossRequired{})
	}
	policies = append(policies,
		&MarginLevel{WarnThreshold: cfg.MarginWarnPct, CriticalThreshold: cfg.MarginCriticalPct},
		&FundingRateLimit{MaxFundingRatePct: cfg.MaxFundingRatePct},
	)

	hardBlock := make(map[string]bool, len(cfg.HardBlockPolicies))
	for _, name := range cfg.HardBlockPolicies {
		hardBlock[name] = true
	}

	return &Manager{
		policies:  policies,
		hardBlock: hardBlock,
		breaker:   breaker,
		sink:      sink,
		log:       log,
	}
}

// NewManagerWithPolicies 使用自定义策略链（测试用）
func NewManagerWithPolicies(policies []Policy, breaker *Breaker, sink telemetry.Sink, log *logger.Logger) *Manager {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Manager{
		policies:  policies,
		hardBlock: make(map[string]bool),
		breaker:   breaker,
		sink:      sink,
		log:       log,
	}
}

// ValidateOrder 执行策略链。首个 REJECT 短路并拒绝；
// WARN 累积随 APPROVE 返回，硬阻断策略的 WARN 按拒绝处理。
// 风控拒绝是预期结果，以 (false, messages) 返回而非 error。
func (m *Manager) ValidateOrder(req *OrderRequest, acct *AccountContext) (bool, []string) {
	var messages []string

	for _, p := range m.policies {
		outcome := p.Evaluate(req, acct)

		switch outcome.Verdict {
		case VerdictReject:
			m.reject(req, p.Name(), outcome.Message)
			return false, []string{fmt.Sprintf("%s: %s", p.Name(), outcome.Message)}

		case VerdictWarn:
			if m.hardBlock[p.Name()] {
				m.reject(req, p.Name(), outcome.Message)
				return false, []string{fmt.Sprintf("%s: %s", p.Name(), outcome.Message)}
			}
			messages = append(messages, fmt.Sprintf("%s: %s", p.Name(), outcome.Message))
			m.sink.RiskRejection(telemetry.RiskEvent{
				Type:      telemetry.EventRiskWarning,
				Symbol:    req.Symbol,
				Policy:    p.Name(),
				Message:   outcome.Message,
				Timestamp: nowUTC(),
			})
		}
	}

	m.breaker.RecordApproved()
	return true, messages
}

// RecordOutcome 记录已了结订单的盈亏，驱动熔断器计数
func (m *Manager) RecordOutcome(realizedPnl float64, acct *AccountContext) {
	m.breaker.RecordOutcome(realizedPnl, acct.PeakEquity)
}

// ResetDaily UTC 日切换时调用
func (m *Manager) ResetDaily() {
	m.breaker.ResetDaily()
	m.log.Info("daily risk counters reset")
}

// Breaker 返回熔断器（状态查询/显式复位用）
func (m *Manager) Breaker() *Breaker {
	return m.breaker
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// reject 记录并发布拒绝事件
func (m *Manager) reject(req *OrderRequest, policy, message string) {
	metrics.IncRiskRejections(policy)
	m.log.Warnf("order rejected by risk policy", map[string]interface{}{
		"symbol": req.Symbol,
		"policy": policy,
		"reason": message,
	})
	m.sink.RiskRejection(telemetry.RiskEvent{
		Type:      telemetry.EventRiskRejection,
		Symbol:    req.Symbol,
		Policy:    policy,
		Message:   message,
		Timestamp: nowUTC(),
	})
}
