package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreUpsertAndGet(t *testing.T) {
	store := NewRedisStoreWithClient(newRedisClient(t), "test")
	ctx := context.Background()

	created, err := store.Upsert(ctx, UpsertParams{ID: "t1", SessionID: "s1", Message: userMessage("/tmp/a.pdf")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, err := store.Upsert(ctx, UpsertParams{ID: "t1", Message: userMessage("/tmp/b.pdf")})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.History[0].Parts[0].Text != "/tmp/a.pdf" || !again.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("existing task changed: %+v", again)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedisStoreMutate(t *testing.T) {
	store := NewRedisStoreWithClient(newRedisClient(t), "test")
	ctx := context.Background()
	_, _ = store.Upsert(ctx, UpsertParams{ID: "t1", Message: userMessage("in")})

	updated, err := store.Mutate(ctx, "t1", func(task *Task) error {
		task.Artifacts = []Artifact{{Parts: []Part{TextPart("out")}}}
		task.SetStatus(StateCompleted, NewAgentMessage("out"))
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.Status.State != StateCompleted {
		t.Fatalf("unexpected state %s", updated.Status.State)
	}

	snapshot, err := store.Mutate(ctx, "t1", func(task *Task) error {
		task.SetStatus(StateWorking, nil)
		return nil
	})
	if !errors.Is(err, ErrTaskTerminal) || snapshot == nil || snapshot.Status.State != StateCompleted {
		t.Fatalf("expected terminal snapshot, got %+v %v", snapshot, err)
	}

	boom := errors.New("boom")
	_, _ = store.Upsert(ctx, UpsertParams{ID: "t2", Message: userMessage("in")})
	if _, err := store.Mutate(ctx, "t2", func(*Task) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected func error, got %v", err)
	}
	if _, err := store.Mutate(ctx, "missing", func(*Task) error { return nil }); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedisStoreMutateConcurrent(t *testing.T) {
	store := NewRedisStoreWithClient(newRedisClient(t), "test")
	store.maxRetries = 1000
	ctx := context.Background()
	_, _ = store.Upsert(ctx, UpsertParams{ID: "t1", Message: userMessage("in")})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Mutate(ctx, "t1", func(task *Task) error {
				if task.Metadata == nil {
					task.Metadata = map[string]any{}
				}
				count, _ := task.Metadata["count"].(float64)
				task.Metadata["count"] = count + 1
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "t1")
	if got.Metadata["count"] != float64(10) {
		t.Fatalf("lost updates: %v", got.Metadata["count"])
	}
}

func TestRedisStoreListAndStats(t *testing.T) {
	store := NewRedisStoreWithClient(newRedisClient(t), "test")
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"t1", "t2"} {
		_, _ = store.Upsert(ctx, UpsertParams{ID: id, Message: userMessage(id)})
	}
	_, _ = store.Mutate(ctx, "t1", func(task *Task) error {
		task.SetStatus(StateCanceled, nil)
		return nil
	})

	tasks, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Canceled != 1 || stats.Submitted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
