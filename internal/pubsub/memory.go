package pubsub

import (
	"context"
	"sync"
)

const subscriberBufferSize = 16

// MemoryBroker 进程内发布订阅实现
// 每个订阅者独立缓冲，队列满时丢弃最旧事件而不是阻塞发布方
type MemoryBroker struct {
	mu    sync.RWMutex
	rooms map[string]map[*memorySubscriber]struct{}
}

type memorySubscriber struct {
	ch chan Event
}

// NewMemoryBroker 创建内存 Broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		rooms: make(map[string]map[*memorySubscriber]struct{}),
	}
}

// Publish 向房间广播事件
func (b *MemoryBroker) Publish(_ context.Context, room string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.rooms[room] {
		select {
		case sub.ch <- event:
		default:
			// 队列满，丢弃最旧事件后再入队
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	return nil
}

// Subscribe 订阅房间事件，cancel 负责注销并关闭通道
func (b *MemoryBroker) Subscribe(_ context.Context, room string) (<-chan Event, func(), error) {
	sub := &memorySubscriber{ch: make(chan Event, subscriberBufferSize)}

	b.mu.Lock()
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[*memorySubscriber]struct{})
	}
	b.rooms[room][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.rooms[room], sub)
			if len(b.rooms[room]) == 0 {
				delete(b.rooms, room)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}
