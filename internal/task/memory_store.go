package task

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore 以内存方式保存任务状态，是默认的存储实现。
//
// mu 只保护 map 本身；每个任务的修改由各自的 entry 锁串行化，
// 长时间的 Mutate 不会阻塞其他任务。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	mu   sync.Mutex
	task *Task
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert 实现 Store 接口。
func (m *MemoryStore) Upsert(_ context.Context, params UpsertParams) (*Task, error) {
	if err := validateUpsert(params); err != nil {
		return nil, err
	}
	m.mu.Lock()
	entry, ok := m.entries[params.ID]
	if !ok {
		entry = &memoryEntry{task: newTask(params, m.now())}
		m.entries[params.ID] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task.Clone(), nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	entry, ok := m.lookup(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task.Clone(), nil
}

// Mutate 在任务锁内应用修改。
func (m *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*Task, error) {
	entry, ok := m.lookup(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, err := applyMutation(entry.task, fn, m.now())
	if err != nil {
		if errors.Is(err, ErrTaskTerminal) {
			return entry.task.Clone(), err
		}
		return nil, err
	}
	entry.task = next
	return next.Clone(), nil
}

// List 返回满足条件的任务。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	tasks := make([]*Task, 0)
	m.each(func(t *Task) {
		if opts.matches(t) {
			tasks = append(tasks, t.Clone())
		}
	})
	return sortAndPage(tasks, opts), nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	var stats TaskStats
	m.each(func(t *Task) {
		if opts.matches(t) {
			stats.add(t)
		}
	})
	return stats, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) lookup(id string) (*memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	return entry, ok
}

func (m *MemoryStore) each(fn func(*Task)) {
	m.mu.RLock()
	entries := make([]*memoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	for _, entry := range entries {
		entry.mu.Lock()
		fn(entry.task)
		entry.mu.Unlock()
	}
}

var _ Store = (*MemoryStore)(nil)
