// Package config 配置
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config 服务配置
type Config struct {
	// 服务
	ServiceName string
	HTTPPort    int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Streams
	DecisionStream  string
	EventStream     string
	EventStreamMax  int64
	ConsumerGroup   string
	ConsumerName    string

	// Worker
	WorkerID int64

	// 执行
	Mode            string // DRY_RUN / PAPER / LIVE
	Symbols         []string
	ExchangeBaseURL string // LIVE 模式下单网关地址
	InternalToken   string
	UserStreamURL   string // LIVE 模式用户数据流地址

	// 数量规格
	MinQty  float64
	MaxQty  float64
	QtyStep float64

	// 提交重试
	MaxRetries    int
	BaseDelayMs   int
	Multiplier    float64
	MaxDelayMs    int

	// 风控阈值
	MaxPositionPct      float64
	MaxLeverage         float64
	MaxDailyDrawdownPct float64
	RequireStopLoss     bool
	MarginWarnPct       float64
	MarginCriticalPct   float64
	MaxFundingRatePct   float64
	HardBlockPolicies   []string

	// 熔断器
	MaxDailyTrades        int
	HardDrawdownPct       float64
	MaxConsecutiveLosses  int
	BreakerClearsOnNewDay bool

	// 保护性子单
	ProtectiveEnabled bool
	StopLossPct       float64
	TakeProfitPct     float64

	// 订单历史
	MaxOrderHistory int

	// 模拟连接器
	SimSlippagePct float64
	SimFillParts   int
	SimFeeRate     float64
	SimFeeAsset    string
}

// Load 加载配置
func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "exchange-trader"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8086),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6380"), // 默认使用6380避免与本地Redis冲突
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DecisionStream: getEnv("DECISION_STREAM", "trader:decisions"),
		EventStream:    getEnv("EVENT_STREAM", "trader:events"),
		EventStreamMax: int64(getEnvInt("EVENT_STREAM_MAXLEN", 100000)),
		ConsumerGroup:  getEnv("CONSUMER_GROUP", "trader-group"),
		ConsumerName:   getEnv("CONSUMER_NAME", "trader-1"),

		WorkerID: int64(getEnvInt("WORKER_ID", 1)),

		Mode:            getEnv("TRADER_MODE", "DRY_RUN"),
		Symbols:         getEnvList("SYMBOLS", "BTCUSDT"),
		ExchangeBaseURL: getEnv("EXCHANGE_BASE_URL", ""),
		InternalToken:   getEnv("INTERNAL_TOKEN", ""),
		UserStreamURL:   getEnv("USER_STREAM_URL", ""),

		MinQty:  getEnvFloat("MIN_QTY", 0.0001),
		MaxQty:  getEnvFloat("MAX_QTY", 1000),
		QtyStep: getEnvFloat("QTY_STEP", 0.0001),

		MaxRetries:  getEnvInt("SUBMIT_MAX_RETRIES", 3),
		BaseDelayMs: getEnvInt("SUBMIT_BASE_DELAY_MS", 500),
		Multiplier:  getEnvFloat("SUBMIT_BACKOFF_MULTIPLIER", 2),
		MaxDelayMs:  getEnvInt("SUBMIT_MAX_DELAY_MS", 10000),

		MaxPositionPct:      getEnvFloat("RISK_MAX_POSITION_PCT", 0.02),
		MaxLeverage:         getEnvFloat("RISK_MAX_LEVERAGE", 3),
		MaxDailyDrawdownPct: getEnvFloat("RISK_MAX_DAILY_DRAWDOWN_PCT", 0.03),
		RequireStopLoss:     getEnvBool("RISK_REQUIRE_STOP_LOSS", false),
		MarginWarnPct:       getEnvFloat("RISK_MARGIN_WARN_PCT", 200),
		MarginCriticalPct:   getEnvFloat("RISK_MARGIN_CRITICAL_PCT", 120),
		MaxFundingRatePct:   getEnvFloat("RISK_MAX_FUNDING_RATE_PCT", 0.1),
		HardBlockPolicies:   getEnvList("RISK_HARD_BLOCK_POLICIES", ""),

		MaxDailyTrades:        getEnvInt("BREAKER_MAX_DAILY_TRADES", 50),
		HardDrawdownPct:       getEnvFloat("BREAKER_HARD_DRAWDOWN_PCT", 0.05),
		MaxConsecutiveLosses:  getEnvInt("BREAKER_MAX_CONSECUTIVE_LOSSES", 5),
		BreakerClearsOnNewDay: getEnvBool("BREAKER_CLEARS_ON_NEW_DAY", false),

		ProtectiveEnabled: getEnvBool("PROTECTIVE_ENABLED", false),
		StopLossPct:       getEnvFloat("PROTECTIVE_STOP_LOSS_PCT", 0.02),
		TakeProfitPct:     getEnvFloat("PROTECTIVE_TAKE_PROFIT_PCT", 0.04),

		MaxOrderHistory: getEnvInt("MAX_ORDER_HISTORY", 500),

		SimSlippagePct: getEnvFloat("SIM_SLIPPAGE_PCT", 0.0005),
		SimFillParts:   getEnvInt("SIM_FILL_PARTS", 1),
		SimFeeRate:     getEnvFloat("SIM_FEE_RATE", 0.001),
		SimFeeAsset:    getEnv("SIM_FEE_ASSET", "USDT"),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Mode {
	case "DRY_RUN", "PAPER", "LIVE":
	default:
		return fmt.Errorf("invalid TRADER_MODE: %s", c.Mode)
	}
	if c.Mode == "LIVE" {
		if c.ExchangeBaseURL == "" {
			return fmt.Errorf("EXCHANGE_BASE_URL required in LIVE mode")
		}
		if c.UserStreamURL == "" {
			return fmt.Errorf("USER_STREAM_URL required in LIVE mode")
		}
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must not be empty")
	}
	if c.MinQty <= 0 || c.QtyStep <= 0 {
		return fmt.Errorf("MIN_QTY and QTY_STEP must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("SUBMIT_MAX_RETRIES must be positive")
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("RISK_MAX_POSITION_PCT must be in (0, 1]")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
