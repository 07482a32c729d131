package pubsub

import (
	"context"
	"encoding/json"
)

// Event 推送事件
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// NewEvent 构造推送事件，payload 序列化失败时返回错误
func NewEvent(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: data}, nil
}

// Broker 房间级发布订阅抽象
// 单机部署用内存实现，多实例部署用 Redis 实现
type Broker interface {
	Publish(ctx context.Context, room string, event Event) error
	Subscribe(ctx context.Context, room string) (<-chan Event, func(), error)
}
