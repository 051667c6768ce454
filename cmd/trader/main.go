package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/exchange/trader/internal/config"
	"github.com/exchange/trader/internal/exchange"
	"github.com/exchange/trader/internal/executor"
	"github.com/exchange/trader/internal/handler"
	"github.com/exchange/trader/internal/metrics"
	"github.com/exchange/trader/internal/risk"
	"github.com/exchange/trader/internal/telemetry"
	"github.com/exchange/trader/internal/tracker"
	"github.com/exchange/trader/pkg/logger"
	"github.com/exchange/trader/pkg/snowflake"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting %s...", cfg.ServiceName)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ids, err := snowflake.New(cfg.WorkerID)
	if err != nil {
		log.Fatalf("Failed to init snowflake: %v", err)
	}

	lg := logger.New(cfg.ServiceName, nil)

	// 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 测试 Redis 连接
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	// 事件流发布器
	publisher := telemetry.NewPublisher(redisClient, cfg.EventStream, cfg.EventStreamMax, lg)
	publisher.Start(ctx)

	// 订单追踪器（进程内唯一事实来源）
	trk := tracker.New(cfg.MaxOrderHistory, publisher)

	// 风控：熔断器 + 策略链
	breaker := risk.NewBreaker(risk.BreakerConfig{
		MaxDailyTrades:       cfg.MaxDailyTrades,
		HardDrawdownPct:      cfg.HardDrawdownPct,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		ClearsOnNewDay:       cfg.BreakerClearsOnNewDay,
	}, publisher)
	riskMgr := risk.NewManager(risk.ChainConfig{
		MaxPositionPct:      cfg.MaxPositionPct,
		MaxLeverage:         cfg.MaxLeverage,
		MaxDailyDrawdownPct: cfg.MaxDailyDrawdownPct,
		RequireStopLoss:     cfg.RequireStopLoss,
		MarginWarnPct:       cfg.MarginWarnPct,
		MarginCriticalPct:   cfg.MarginCriticalPct,
		MaxFundingRatePct:   cfg.MaxFundingRatePct,
		HardBlockPolicies:   cfg.HardBlockPolicies,
	}, breaker, publisher, lg)

	// 决策处理器
	prices := exchange.NewPriceCache()
	h := handler.NewHandler(redisClient, riskMgr, &handler.Config{
		DecisionStream: cfg.DecisionStream,
		Group:          cfg.ConsumerGroup,
		Consumer:       cfg.ConsumerName,
		Logger:         lg,
		Prices:         prices,
		Tracker:        trk,
	})

	// 每个 symbol 一条交易路由
	execCfg := executor.Config{
		Mode: executor.Mode(cfg.Mode),
		Sizing: executor.Sizing{
			MinQty:  cfg.MinQty,
			MaxQty:  cfg.MaxQty,
			QtyStep: cfg.QtyStep,
		},
		Backoff: executor.Backoff{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.BaseDelayMs) * time.Millisecond,
			Multiplier: cfg.Multiplier,
			MaxDelay:   time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		},
		Protective: executor.Protective{
			Enabled:       cfg.ProtectiveEnabled,
			StopLossPct:   cfg.StopLossPct,
			TakeProfitPct: cfg.TakeProfitPct,
		},
	}

	for _, symbol := range cfg.Symbols {
		conn := buildConnector(cfg, prices)
		c := execCfg
		c.Symbol = symbol
		exec := executor.New(c, conn, trk, riskMgr, ids, lg)
		if sim, ok := conn.(*exchange.SimConnector); ok {
			sim.SetHandler(exec)
		}
		h.Register(symbol, exec)
		log.Printf("Trading route registered: %s (%s)", symbol, cfg.Mode)
	}

	// LIVE 模式消费用户数据流
	if cfg.Mode == "LIVE" {
		stream := exchange.NewStreamClient(cfg.UserStreamURL, h, lg)
		go stream.Run(ctx)
	}

	// 启动决策消费
	if err := h.Start(ctx); err != nil {
		log.Fatalf("Failed to start handler: %v", err)
	}
	log.Printf("Handler started, consuming from %s", cfg.DecisionStream)

	// UTC 日切换重置风控计数
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc("0 0 * * *", riskMgr.ResetDaily); err != nil {
		log.Fatalf("Failed to schedule daily reset: %v", err)
	}
	// 终态订单定期归档到历史缓冲区（宽限 1 分钟，容忍晚到回报）
	if _, err := scheduler.AddFunc("@every 1m", func() {
		if n := trk.Sweep(time.Minute); n > 0 {
			lg.Infof("closed orders archived", map[string]interface{}{"count": n})
		}
	}); err != nil {
		log.Fatalf("Failed to schedule order sweep: %v", err)
	}
	scheduler.Start()

	// 在途订单数指标
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetOpenOrders(len(trk.OpenOrders("")))
			}
		}
	}()

	// HTTP 服务（健康检查 + 订单查询 + 指标）
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			status = "redis unavailable"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(trk.OpenOrders(r.URL.Query().Get("symbol")))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(trk.GetStats())
	})
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(trk.History(r.URL.Query().Get("symbol"), limit))
	})
	mux.HandleFunc("/breaker", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			breaker.Reset()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(breaker.GetState())
	})
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		log.Printf("HTTP server listening on :%d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Redis close error: %v", err)
	}
	log.Println("Shutdown complete")
}

// buildConnector 按模式选择连接器：DRY_RUN/PAPER 走本地模拟，LIVE 走下单网关
func buildConnector(cfg *config.Config, prices *exchange.PriceCache) exchange.Connector {
	switch cfg.Mode {
	case "LIVE":
		return exchange.NewRestConnector(cfg.ExchangeBaseURL, cfg.InternalToken)
	case "PAPER":
		return exchange.NewSimConnector(exchange.SimConfig{
			SlippagePct: cfg.SimSlippagePct,
			FillParts:   cfg.SimFillParts,
			FeeRate:     cfg.SimFeeRate,
			FeeAsset:    cfg.SimFeeAsset,
		}, prices.Get)
	default: // DRY_RUN 不加滑点
		return exchange.NewSimConnector(exchange.SimConfig{
			FillParts: cfg.SimFillParts,
			FeeRate:   cfg.SimFeeRate,
			FeeAsset:  cfg.SimFeeAsset,
		}, prices.Get)
	}
}
