package task

import (
	"context"
	"strings"
	"time"

	xerrors "mcp-a2a/internal/errors"
)

// UpsertParams 描述创建任务时需要的字段。
type UpsertParams struct {
	ID        string
	SessionID string
	Message   Message
	Metadata  map[string]any
}

// MutateFunc 在存储层持有任务锁期间修改任务拷贝。
type MutateFunc func(*Task) error

// Store 抽象了任务状态的持久化接口。
//
// 同一任务 ID 上的 Upsert 与 Mutate 必须串行化；不同 ID 之间互不阻塞。
// 所有返回值都是拷贝，调用方的修改不会影响存储中的记录。
type Store interface {
	// Upsert 在任务不存在时以 submitted 状态创建，存在时原样返回。
	Upsert(ctx context.Context, params UpsertParams) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	// Mutate 对任务应用 fn 并持久化结果。任务已处于终态时返回当前记录与 ErrTaskTerminal。
	Mutate(ctx context.Context, id string, fn MutateFunc) (*Task, error)
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}

func validateUpsert(params UpsertParams) error {
	if strings.TrimSpace(params.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	return nil
}

// newTask 根据 UpsertParams 构造初始任务记录。
func newTask(params UpsertParams, now time.Time) *Task {
	msg := cloneMessage(params.Message)
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	return &Task{
		ID:        params.ID,
		SessionID: params.SessionID,
		Status:    Status{State: StateSubmitted, Timestamp: now},
		History:   []Message{msg},
		Metadata:  cloneMetadata(params.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyMutation 在拷贝上执行 fn 并校验状态迁移，成功时返回新的记录。
func applyMutation(current *Task, fn MutateFunc, now time.Time) (*Task, error) {
	if current.Status.State.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if !CanTransition(current.Status.State, next.Status.State) {
		return nil, xerrors.Wrap(CodeInvalidTransition, ErrInvalidTransition,
			string(current.Status.State)+" -> "+string(next.Status.State))
	}
	// ID 与创建时间由存储层维护。
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now
	if next.Status.State != current.Status.State && !next.Status.Timestamp.After(current.Status.Timestamp) {
		next.Status.Timestamp = now
	}
	return next, nil
}
