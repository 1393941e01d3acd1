package task

import (
	"context"
	"errors"
	"sync"
)

// MemoryPublisher 使用 channel 保存事件，主要用于测试与单进程观察。
type MemoryPublisher struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemoryPublisher 创建一个内存事件通道。
func NewMemoryPublisher(size int) *MemoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &MemoryPublisher{ch: make(chan Event, size)}
}

// Publish 将事件放入缓冲区，缓冲区已满时直接返回错误而不阻塞任务。
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("事件通道已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- event:
		return nil
	default:
		return errors.New("事件缓冲已满")
	}
}

// Events 返回只读事件通道。
func (p *MemoryPublisher) Events() <-chan Event {
	return p.ch
}

// Consume 依次处理事件，直到 ctx 结束或通道关闭。
func (p *MemoryPublisher) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-p.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, event)
		}
	}
}

// Close 关闭内存通道。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		close(p.ch)
		p.closed = true
	}
	p.mu.Unlock()
	return nil
}

var (
	_ Publisher  = (*MemoryPublisher)(nil)
	_ Subscriber = (*MemoryPublisher)(nil)
)
