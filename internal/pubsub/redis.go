package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/smileref/smileref/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBroker 基于 Redis Pub/Sub 的实现，支持多实例部署
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker 创建 Redis Broker
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "sr"
	}
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) channelName(room string) string {
	return fmt.Sprintf("%s:push:%s", b.prefix, room)
}

// Publish 向房间广播事件
func (b *RedisBroker) Publish(ctx context.Context, room string, event Event) error {
	if b == nil || b.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channelName(room), payload).Err()
}

// Subscribe 订阅房间事件
// 转发协程在 cancel 或上下文取消后退出
func (b *RedisBroker) Subscribe(ctx context.Context, room string) (<-chan Event, func(), error) {
	if b == nil || b.client == nil {
		return nil, nil, fmt.Errorf("redis broker not initialized")
	}
	sub := b.client.Subscribe(ctx, b.channelName(room))
	out := make(chan Event, subscriberBufferSize)

	done := make(chan struct{})
	go func() {
		defer close(out)
		msgCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warnw("pubsub_event_decode_failed", "room", room, "error", err)
					continue
				}
				select {
				case out <- event:
				default:
					logger.Debugw("pubsub_subscriber_slow_drop", "room", room, "event", event.Name)
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}
