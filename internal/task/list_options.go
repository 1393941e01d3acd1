package task

import (
	"sort"
	"strings"
	"time"
)

// SortOrder defines how results should be ordered when listing tasks.
type SortOrder int

const (
	// SortByUpdatedDesc orders tasks by UpdatedAt descending (most recent first).
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc orders tasks by UpdatedAt ascending (oldest first).
	SortByUpdatedAsc
)

// ListOptions controls how tasks are selected when querying the store.
type ListOptions struct {
	Limit        int
	Offset       int
	States       []State
	SessionID    string
	UpdatedGTE   time.Time
	UpdatedLTE   time.Time
	HasArtifacts *bool
	Order        SortOrder
	Query        string
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.States != nil {
		opts.States = normalizeStates(opts.States)
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of tasks returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching tasks before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithStates filters tasks by the provided states.
func WithStates(states ...State) ListOption {
	return func(opts *ListOptions) {
		opts.States = append(opts.States[:0], states...)
	}
}

// WithSession keeps tasks belonging to one A2A session.
func WithSession(sessionID string) ListOption {
	return func(opts *ListOptions) {
		opts.SessionID = sessionID
	}
}

// WithUpdatedSince filters tasks updated after the provided instant (inclusive).
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.UpdatedGTE = ts
	}
}

// WithUpdatedUntil filters tasks updated before the provided instant (inclusive).
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.UpdatedLTE = ts
	}
}

// WithArtifactPresence filters tasks by whether they already carry artifacts.
func WithArtifactPresence(has bool) ListOption {
	return func(opts *ListOptions) {
		opts.HasArtifacts = new(bool)
		*opts.HasArtifacts = has
	}
}

// WithSortOrder changes the returned order of tasks.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// WithQuery filters tasks by substring match on id, session and message text.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

// BuildListOptions applies option functions on top of defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStates(input []State) []State {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[State]struct{}, len(input))
	result := make([]State, 0, len(input))
	for _, state := range input {
		if !state.IsValid() {
			continue
		}
		if _, ok := seen[state]; ok {
			continue
		}
		seen[state] = struct{}{}
		result = append(result, state)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// matches 判断任务是否满足过滤条件，供内存与 Redis 实现共用。
func (opts ListOptions) matches(t *Task) bool {
	if len(opts.States) > 0 {
		found := false
		for _, state := range opts.States {
			if t.Status.State == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.SessionID != "" && t.SessionID != opts.SessionID {
		return false
	}
	if !opts.UpdatedGTE.IsZero() && t.UpdatedAt.Before(opts.UpdatedGTE) {
		return false
	}
	if !opts.UpdatedLTE.IsZero() && t.UpdatedAt.After(opts.UpdatedLTE) {
		return false
	}
	if opts.HasArtifacts != nil && (len(t.Artifacts) > 0) != *opts.HasArtifacts {
		return false
	}
	if opts.Query != "" {
		return matchesQuery(t, strings.ToLower(opts.Query))
	}
	return true
}

func matchesQuery(t *Task, query string) bool {
	candidates := []string{t.ID, t.SessionID}
	for _, msg := range t.History {
		candidates = append(candidates, msg.Text())
	}
	if t.Status.Message != nil {
		candidates = append(candidates, t.Status.Message.Text())
	}
	for _, candidate := range candidates {
		if candidate != "" && strings.Contains(strings.ToLower(candidate), query) {
			return true
		}
	}
	return false
}

// sortAndPage 对已过滤的任务排序并截取分页窗口。
func sortAndPage(tasks []*Task, opts ListOptions) []*Task {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			if opts.Order == SortByUpdatedAsc {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if opts.Order == SortByUpdatedAsc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	if opts.Offset >= len(tasks) {
		return []*Task{}
	}
	end := opts.Offset + opts.Limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[opts.Offset:end]
}
