package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exchange/trader/pkg/logger"
)

// Publisher 将交易事件异步发布到 Redis Stream。
// 事件先进缓冲通道，由后台循环写出；缓冲满时丢弃并记日志，
// 发布失败不影响交易路径。
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	log    *logger.Logger
	events chan interface{}
}

// NewPublisher 创建发布器
func NewPublisher(client *redis.Client, stream string, maxLen int64, log *logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log,
		events: make(chan interface{}, 1024),
	}
}

// Start 启动写出循环，ctx 取消后退出
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-p.events:
				p.write(ev)
			}
		}
	}()
}

// enqueue 入队，缓冲满则丢弃
func (p *Publisher) enqueue(ev interface{}) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("telemetry buffer full, event dropped")
	}
}

// write 写出单条事件
func (p *Publisher) write(ev interface{}) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Error("telemetry marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		p.log.WithError(err).WithField("stream", p.stream).Error("telemetry xadd failed")
	}
}

// OrderTransition 发布订单状态变更
func (p *Publisher) OrderTransition(ev OrderTransitionEvent) {
	p.enqueue(ev)
}

// RiskRejection 发布风控拒绝/警告
func (p *Publisher) RiskRejection(ev RiskEvent) {
	p.enqueue(ev)
}

// BreakerTrip 发布熔断事件
func (p *Publisher) BreakerTrip(ev BreakerEvent) {
	p.enqueue(ev)
}
