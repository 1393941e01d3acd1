package task

import (
	"context"
	"encoding/json"
	"time"
)

// Event 描述一次任务状态迁移，由编排器在每次迁移后投递。
type Event struct {
	TaskID     string    `json:"task_id"`
	SessionID  string    `json:"session_id,omitempty"`
	State      State     `json:"state"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent 根据任务当前状态构造事件。
func NewEvent(t *Task) Event {
	event := Event{
		TaskID:     t.ID,
		SessionID:  t.SessionID,
		State:      t.Status.State,
		OccurredAt: t.Status.Timestamp,
	}
	if t.Status.Message != nil {
		event.Message = t.Status.Message.Text()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

// EventHandler 处理从事件通道消费到的事件。
type EventHandler func(ctx context.Context, event Event) error

// Publisher 负责向外部投递任务事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Subscriber 从事件通道消费任务事件，直到 ctx 结束。
type Subscriber interface {
	Consume(ctx context.Context, handler EventHandler) error
	Close() error
}

// NopPublisher 丢弃所有事件，对应 events.driver=none。
type NopPublisher struct{}

// Publish 实现 Publisher 接口。
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher 接口。
func (NopPublisher) Close() error { return nil }

func encodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(raw []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(raw, &event)
	return event, err
}
