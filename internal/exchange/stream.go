package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/exchange/trader/pkg/logger"
)

// StreamClient consumes the exchange user-data stream over a single
// WebSocket connection and dispatches ack/fill/expire frames to the handler.
// The connection is re-dialed with a fixed backoff until ctx is done.
type StreamClient struct {
	url     string
	handler EventHandler
	log     *logger.Logger

	ReadTimeout  time.Duration
	PingInterval time.Duration
	RedialDelay  time.Duration
}

// streamFrame is the wire envelope for user-data events.
type streamFrame struct {
	Type string          `json:"type"` // "ack" | "fill" | "expire"
	Data json.RawMessage `json:"data"`
}

// NewStreamClient 创建用户数据流客户端
func NewStreamClient(url string, handler EventHandler, log *logger.Logger) *StreamClient {
	return &StreamClient{
		url:          url,
		handler:      handler,
		log:          log,
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		RedialDelay:  5 * time.Second,
	}
}

// Run blocks until ctx is cancelled, reconnecting on any read error.
func (c *StreamClient) Run(ctx context.Context) {
	for {
		if err := c.runOnce(ctx); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("user-data stream disconnected, redialing")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.RedialDelay):
		}
	}
}

func (c *StreamClient) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.WithField("url", c.url).Info("user-data stream connected")

	done := make(chan struct{})
	defer close(done)

	// Ping loop; also closes the conn when ctx is cancelled to unblock ReadMessage.
	go func() {
		ticker := time.NewTicker(c.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(raw)
	}
}

func (c *StreamClient) dispatch(raw []byte) {
	var frame streamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.WithError(err).Warn("malformed stream frame")
		return
	}

	switch frame.Type {
	case "ack":
		var ack OrderAck
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			c.log.WithError(err).Warn("malformed ack frame")
			return
		}
		c.handler.OnAck(ack)
	case "fill":
		var ev FillEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			c.log.WithError(err).Warn("malformed fill frame")
			return
		}
		c.handler.OnFill(ev)
	case "expire":
		var ev ExpireEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			c.log.WithError(err).Warn("malformed expire frame")
			return
		}
		c.handler.OnExpire(ev)
	default:
		// 忽略未知帧（心跳、余额推送等）
	}
}
