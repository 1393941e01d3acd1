package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewEventFromTask(t *testing.T) {
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := NewEvent(&Task{
		ID:        "t1",
		SessionID: "s1",
		Status:    Status{State: StateFailed, Message: NewAgentMessage("boom"), Timestamp: ts},
	})
	want := Event{TaskID: "t1", SessionID: "s1", State: StateFailed, Message: "boom", OccurredAt: ts}
	if diff := cmp.Diff(want, event); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryPublisherDropsWhenFull(t *testing.T) {
	pub := NewMemoryPublisher(1)
	ctx := context.Background()
	if err := pub.Publish(ctx, Event{TaskID: "t1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Publish(ctx, Event{TaskID: "t2"}); err == nil {
		t.Fatalf("expected full buffer error")
	}
	if got := (<-pub.Events()).TaskID; got != "t1" {
		t.Fatalf("unexpected event %s", got)
	}
	_ = pub.Close()
	if err := pub.Publish(ctx, Event{TaskID: "t3"}); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	pub := NewRedisPublisherWithClient(newRedisClient(t), "test:events", 100*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	states := []State{StateSubmitted, StateWorking, StateCompleted}
	for _, state := range states {
		if err := pub.Publish(ctx, Event{TaskID: "t1", State: state, OccurredAt: time.Now().UTC()}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var got []State
	stop := context.Canceled
	err := pub.Consume(ctx, func(_ context.Context, event Event) error {
		got = append(got, event.State)
		if len(got) == len(states) {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Fatalf("consume: %v", err)
	}
	if diff := cmp.Diff(states, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
