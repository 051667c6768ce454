package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/exchange/trader/pkg/logger"
)

func newTestPublisher(t *testing.T) (*Publisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	p := NewPublisher(client, "trader:events", 1000, logger.New("test", io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p.Start(ctx)
	return p, client
}

// waitForEntries 轮询等待异步写出完成
func waitForEntries(t *testing.T, client *redis.Client, want int) []redis.XMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := client.XRange(context.Background(), "trader:events", "-", "+").Result()
		if err == nil && len(msgs) >= want {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stream did not reach %d entries in time", want)
	return nil
}

func TestPublisher_OrderTransition(t *testing.T) {
	p, client := newTestPublisher(t)

	p.OrderTransition(OrderTransitionEvent{
		Type:          EventOrderTransition,
		ClientOrderID: "ord-1",
		Symbol:        "BTCUSDT",
		From:          "PENDING",
		To:            "OPEN",
		Timestamp:     time.Now().UTC(),
	})

	msgs := waitForEntries(t, client, 1)
	raw, ok := msgs[0].Values["data"].(string)
	if !ok {
		t.Fatalf("missing data field: %+v", msgs[0].Values)
	}

	var ev OrderTransitionEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.Type != EventOrderTransition || ev.ClientOrderID != "ord-1" || ev.To != "OPEN" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestPublisher_MultipleEventKinds(t *testing.T) {
	p, client := newTestPublisher(t)

	p.RiskRejection(RiskEvent{Type: EventRiskRejection, Symbol: "BTCUSDT", Policy: "MaxPositionSize", Message: "too large"})
	p.BreakerTrip(BreakerEvent{Type: EventBreakerTrip, Reason: "daily trade limit"})

	msgs := waitForEntries(t, client, 2)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
}

func TestPublisher_BufferFullDropsWithoutBlocking(t *testing.T) {
	// 不启动写出循环，塞满缓冲后继续入队不得阻塞
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewPublisher(client, "trader:events", 1000, logger.New("test", io.Discard))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			p.BreakerTrip(BreakerEvent{Type: EventBreakerTrip, Reason: "overflow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on full buffer")
	}
}
