package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"mcp-a2a/internal/a2a"
	xerrors "mcp-a2a/internal/errors"
	"mcp-a2a/internal/observability/alerting"
	"mcp-a2a/internal/observability/metrics"
	"mcp-a2a/internal/task"
	"mcp-a2a/internal/worker"
	"mcp-a2a/pkg/logger"
)

// ArtifactName 是成功任务产物的名称。
const ArtifactName = "english_text"

var (
	// ErrInvalidRequest 表示请求消息中没有可用的文本。
	ErrInvalidRequest = xerrors.New(xerrors.CodeInvalidRequest, "message must contain a non-empty text part")
	// ErrStreamingUnsupported 表示 tasks/sendSubscribe 不受支持。
	ErrStreamingUnsupported = xerrors.New(xerrors.CodeUnsupported, "streaming is not supported")

	errAlreadyDispatched = stdErrors.New("task already dispatched")
)

// TaskManager 处理 A2A 任务请求。每个任务最多触发一次后端调用。
type TaskManager struct {
	store     task.Store
	invoker   worker.Invoker
	publisher task.Publisher
	alerter   alerting.Dispatcher
	newID     func() string
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]*invocation
}

// Option 定义 TaskManager 的可选配置。
type Option func(*TaskManager)

// WithPublisher 配置任务事件的投递目标。
func WithPublisher(publisher task.Publisher) Option {
	return func(m *TaskManager) {
		if publisher != nil {
			m.publisher = publisher
		}
	}
}

// WithAlertDispatcher 配置失败告警。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(m *TaskManager) {
		m.alerter = dispatcher
	}
}

// WithIDGenerator 替换缺省的 UUID 生成器。
func WithIDGenerator(fn func() string) Option {
	return func(m *TaskManager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(m *TaskManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewTaskManager 创建编排器。
func NewTaskManager(store task.Store, invoker worker.Invoker, opts ...Option) *TaskManager {
	m := &TaskManager{
		store:     store,
		invoker:   invoker,
		publisher: task.NopPublisher{},
		newID:     uuid.NewString,
		running:   make(map[string]*invocation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.logger == nil {
		m.logger = logger.Named("agent")
	}
	return m
}

// OnSendTask 登记任务并同步执行，返回终态任务。
//
// 后端失败不会以 error 返回，而是体现为 failed 状态；只有请求非法、任务不存在与存储错误才返回 error。
func (m *TaskManager) OnSendTask(ctx context.Context, req *a2a.SendTaskRequest) (*a2a.SendTaskResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	params := req.Params
	input, ok := params.Message.FirstText()
	if !ok {
		return nil, ErrInvalidRequest
	}
	if params.ID == "" {
		params.ID = m.newID()
	}

	current, err := m.store.Upsert(ctx, task.UpsertParams{
		ID:        params.ID,
		SessionID: params.SessionID,
		Message:   params.Message,
		Metadata:  params.Metadata,
	})
	if err != nil {
		return nil, err
	}
	log := logger.ForTask(current.ID)
	if current.Status.State != task.StateSubmitted {
		log.Info("任务已在处理或已结束，直接返回", slog.String("state", string(current.Status.State)))
		return m.sendResponse(req, current, params.HistoryLength), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// 先登记再迁移到 working，保证 tasks/cancel 总能找到正在进行的调用。
	run := &invocation{cancel: cancel}
	owned := m.track(current.ID, run)
	working, err := m.store.Mutate(ctx, current.ID, func(t *task.Task) error {
		if t.Status.State != task.StateSubmitted {
			return errAlreadyDispatched
		}
		t.SetStatus(task.StateWorking, nil)
		return nil
	})
	if err != nil {
		if owned {
			m.untrack(current.ID, run)
		}
		if stdErrors.Is(err, errAlreadyDispatched) || stdErrors.Is(err, task.ErrTaskTerminal) {
			snapshot, getErr := m.store.Get(ctx, current.ID)
			if getErr != nil {
				return nil, getErr
			}
			return m.sendResponse(req, snapshot, params.HistoryLength), nil
		}
		return nil, err
	}
	if !owned {
		m.claim(working.ID, run)
	}
	defer m.untrack(working.ID, run)
	m.transitioned(ctx, working)

	out, invokeErr := m.invoker.Invoke(runCtx, input)

	// 调用方断开后任务仍需落到终态，这里不再跟随请求上下文取消。
	final, err := m.store.Mutate(context.WithoutCancel(ctx), working.ID, func(t *task.Task) error {
		if invokeErr != nil {
			t.SetStatus(task.StateFailed, task.NewAgentMessage(invokeErr.Error()))
			return nil
		}
		parts := []task.Part{task.TextPart(out)}
		t.Artifacts = append(t.Artifacts, task.Artifact{Name: ArtifactName, Parts: parts, Index: len(t.Artifacts)})
		msg := &task.Message{Role: task.RoleAgent, Parts: parts}
		t.History = append(t.History, *msg)
		t.SetStatus(task.StateCompleted, msg)
		return nil
	})
	switch {
	case err == nil:
		m.transitioned(ctx, final)
	case stdErrors.Is(err, task.ErrTaskTerminal) && final != nil:
		// 调用期间任务已被取消，保留取消状态。
		log.Info("任务在执行期间被取消", slog.String("state", string(final.Status.State)))
	default:
		return nil, err
	}

	if invokeErr != nil && final.Status.State == task.StateFailed {
		log.Warn("任务执行失败", xerrors.LogAttrs(invokeErr)...)
		m.alert(ctx, final.ID, invokeErr)
	}
	return m.sendResponse(req, final, params.HistoryLength), nil
}

// OnSendTaskSubscribe 流式接口不受支持。
func (m *TaskManager) OnSendTaskSubscribe(_ context.Context, _ *a2a.SendTaskStreamingRequest) (*a2a.SendTaskResponse, error) {
	return nil, ErrStreamingUnsupported
}

// OnGetTask 返回任务当前快照。
func (m *TaskManager) OnGetTask(ctx context.Context, req *a2a.GetTaskRequest) (*a2a.GetTaskResponse, error) {
	if req == nil || req.Params.ID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "task id is required")
	}
	current, err := m.store.Get(ctx, req.Params.ID)
	if err != nil {
		return nil, err
	}
	return &a2a.GetTaskResponse{
		JSONRPCMessage: a2a.NewJSONRPCMessage(req.ID),
		Result:         a2a.TrimHistory(current, req.Params.HistoryLength),
	}, nil
}

// OnCancelTask 取消未结束的任务，并中断正在进行的后端调用。
func (m *TaskManager) OnCancelTask(ctx context.Context, req *a2a.CancelTaskRequest) (*a2a.CancelTaskResponse, error) {
	if req == nil || req.Params.ID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "task id is required")
	}
	canceled, err := m.store.Mutate(ctx, req.Params.ID, func(t *task.Task) error {
		t.SetStatus(task.StateCanceled, task.NewAgentMessage("task canceled"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	run := m.running[canceled.ID]
	m.mu.Unlock()
	if run != nil {
		run.cancel()
	}
	m.transitioned(ctx, canceled)
	return &a2a.CancelTaskResponse{
		JSONRPCMessage: a2a.NewJSONRPCMessage(req.ID),
		Result:         canceled,
	}, nil
}

// InFlight 返回正在执行的任务数。
func (m *TaskManager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *TaskManager) sendResponse(req *a2a.SendTaskRequest, t *task.Task, historyLength *int) *a2a.SendTaskResponse {
	return &a2a.SendTaskResponse{
		JSONRPCMessage: a2a.NewJSONRPCMessage(req.ID),
		Result:         a2a.TrimHistory(t, historyLength),
	}
}

// invocation 是一次正在进行的后端调用，按指针区分同一任务的并发请求。
type invocation struct {
	cancel context.CancelFunc
}

// track 在该任务尚无登记时记录 run，返回是否登记成功。
func (m *TaskManager) track(id string, run *invocation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.running[id]; exists {
		return false
	}
	m.running[id] = run
	return true
}

// claim 覆盖已有登记，只在赢得 working 迁移后调用。
func (m *TaskManager) claim(id string, run *invocation) {
	m.mu.Lock()
	m.running[id] = run
	m.mu.Unlock()
}

func (m *TaskManager) untrack(id string, run *invocation) {
	m.mu.Lock()
	if m.running[id] == run {
		delete(m.running, id)
	}
	m.mu.Unlock()
}

// transitioned 记录一次状态迁移：审计日志、指标与事件。事件投递失败只记日志。
func (m *TaskManager) transitioned(ctx context.Context, t *task.Task) {
	state := string(t.Status.State)
	logger.Audit().Info("任务状态迁移",
		slog.String("task_id", t.ID),
		slog.String("session_id", t.SessionID),
		slog.String("state", state),
	)
	metrics.ObserveTaskTransition(state)
	if err := m.publisher.Publish(context.WithoutCancel(ctx), task.NewEvent(t)); err != nil {
		m.logger.Warn("任务事件投递失败",
			slog.String("task_id", t.ID),
			slog.String("state", state),
			slog.Any("error", err),
		)
	}
}

func (m *TaskManager) alert(ctx context.Context, taskID string, err error) {
	if m.alerter == nil {
		return
	}
	event, ok := alerting.EventFromError(taskID, "invoke", err)
	if !ok {
		return
	}
	if notifyErr := m.alerter.Notify(context.WithoutCancel(ctx), event); notifyErr != nil {
		m.logger.Error("告警通知失败", slog.String("task_id", taskID), slog.Any("error", notifyErr))
	}
}
