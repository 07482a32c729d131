package pubsub

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	events, cancel, err := broker.Subscribe(ctx, "qr_display")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	ev, err := NewEvent("new_qr", map[string]string{"image": "data:image/png;base64,abc"})
	if err != nil {
		t.Fatalf("build event failed: %v", err)
	}
	if err := broker.Publish(ctx, "qr_display", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-events:
		if got.Name != "new_qr" {
			t.Fatalf("event name want new_qr got %s", got.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected an event on the subscription")
	}

	// 不同房间互不干扰
	if err := broker.Publish(ctx, "other_room", ev); err != nil {
		t.Fatalf("publish to other room failed: %v", err)
	}
	select {
	case got := <-events:
		t.Fatalf("unexpected cross-room event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBrokerCancelClosesChannel(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	events, cancel, err := broker.Subscribe(ctx, "qr_display")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()
	// cancel 幂等
	cancel()

	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	// 注销后发布不出错也不投递
	ev, err := NewEvent("qr_clear", map[string]string{"reason": "revoked"})
	if err != nil {
		t.Fatalf("build event failed: %v", err)
	}
	if err := broker.Publish(ctx, "qr_display", ev); err != nil {
		t.Fatalf("publish after cancel failed: %v", err)
	}
}

func TestMemoryBrokerDropsOldestWhenFull(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	events, cancel, err := broker.Subscribe(ctx, "qr_display")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	total := subscriberBufferSize + 4
	for i := 0; i < total; i++ {
		ev, err := NewEvent("new_qr", map[string]int{"seq": i})
		if err != nil {
			t.Fatalf("build event failed: %v", err)
		}
		if err := broker.Publish(ctx, "qr_display", ev); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	received := 0
drain:
	for {
		select {
		case <-events:
			received++
		default:
			break drain
		}
	}
	if received != subscriberBufferSize {
		t.Fatalf("buffered events want %d got %d", subscriberBufferSize, received)
	}

	// 溢出丢弃最旧事件后订阅仍然可用
	ev, err := NewEvent("new_qr", map[string]string{"after": "overflow"})
	if err != nil {
		t.Fatalf("build event failed: %v", err)
	}
	if err := broker.Publish(ctx, "qr_display", ev); err != nil {
		t.Fatalf("publish after overflow failed: %v", err)
	}
	select {
	case got := <-events:
		if got.Name != "new_qr" {
			t.Fatalf("event name want new_qr got %s", got.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber should keep receiving after overflow")
	}
}

func TestNewEventRejectsUnserializablePayload(t *testing.T) {
	if _, err := NewEvent("bad", func() {}); err == nil {
		t.Fatalf("function payload should fail to serialize")
	}
	ev, err := NewEvent("ok", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("build event failed: %v", err)
	}
	if fmt.Sprintf("%s", ev.Data) != `{"k":"v"}` {
		t.Fatalf("payload mismatch: %s", ev.Data)
	}
}
