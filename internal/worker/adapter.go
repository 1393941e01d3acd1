package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	xerrors "mcp-a2a/internal/errors"
	"mcp-a2a/pkg/logger"
)

// Invoker 是编排器依赖的最小能力：输入一段文本，得到一段文本。
type Invoker interface {
	Invoke(ctx context.Context, input string) (string, error)
}

// Session 是一个可以多次调用、用完需要关闭的后端会话。
type Session interface {
	Invoke(ctx context.Context, input string) (string, error)
	Close() error
}

// Factory 为每次临时调用创建新的会话。
type Factory func(ctx context.Context) (Session, error)

// Mode 标识 Adapter 持有的后端形态。
type Mode string

const (
	ModeLongLived Mode = "session"
	ModeEphemeral Mode = "ephemeral"
)

// Observer 接收每次调用的结果，用于指标统计。
type Observer interface {
	ObserveInvocation(mode string, outcome string, elapsed time.Duration)
}

// Adapter 是 Invoker 的唯一实现，内部是长连接与临时会话二选一。
type Adapter struct {
	mode Mode

	mu      sync.Mutex
	session Session

	factory Factory

	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// Option 定义 Adapter 的可选配置。
type Option func(*Adapter)

// WithTimeout 为每次调用设置超时，<=0 表示不限制。
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = timeout
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver 注册调用观察者。
func WithObserver(observer Observer) Option {
	return func(a *Adapter) {
		a.observer = observer
	}
}

// NewLongLived 使用一个常驻会话构造 Adapter。会话上同一时间只有一次调用。
func NewLongLived(session Session, opts ...Option) *Adapter {
	a := &Adapter{mode: ModeLongLived, session: session}
	return a.apply(opts)
}

// NewEphemeral 使用会话工厂构造 Adapter，每次调用都会新建并关闭会话。
func NewEphemeral(factory Factory, opts ...Option) *Adapter {
	a := &Adapter{mode: ModeEphemeral, factory: factory}
	return a.apply(opts)
}

func (a *Adapter) apply(opts []Option) *Adapter {
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = logger.Named("worker")
	}
	return a
}

// Mode 返回当前形态。
func (a *Adapter) Mode() Mode { return a.mode }

// Invoke 调用后端。返回的错误总是 *Error；空输出同样视为失败。
func (a *Adapter) Invoke(ctx context.Context, input string) (out string, err error) {
	start := time.Now()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	defer func() {
		a.observe(start, err)
	}()

	switch a.mode {
	case ModeLongLived:
		out, err = a.invokeLongLived(ctx, input)
	case ModeEphemeral:
		out, err = a.invokeEphemeral(ctx, input)
	default:
		return "", newError(a.mode, "invoke", fmt.Errorf("unknown worker mode %q", a.mode))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", newError(a.mode, "invoke", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", newError(a.mode, "invoke", ErrEmptyOutput)
	}
	return out, nil
}

func (a *Adapter) invokeLongLived(ctx context.Context, input string) (string, error) {
	if a.session == nil {
		return "", errors.New("long-lived session is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return safeInvoke(ctx, a.session, input)
}

func (a *Adapter) invokeEphemeral(ctx context.Context, input string) (string, error) {
	if a.factory == nil {
		return "", errors.New("session factory is nil")
	}
	session, err := a.factory(ctx)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			a.logger.Warn("关闭临时会话失败", slog.Any("error", closeErr))
		}
	}()
	return safeInvoke(ctx, session, input)
}

// safeInvoke 把会话内的 panic 转成错误，保证任务能够落到终态。
func safeInvoke(ctx context.Context, session Session, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session panicked: %v", r)
		}
	}()
	return session.Invoke(ctx, input)
}

// Close 关闭长连接会话；临时模式下无事可做。
func (a *Adapter) Close() error {
	if a.mode != ModeLongLived || a.session == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Close()
}

func (a *Adapter) observe(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if workerErr, ok := AsError(err); ok && workerErr.Code() == xerrors.CodeTimeout {
			outcome = "timeout"
		}
	}
	elapsed := time.Since(start)
	if a.observer != nil {
		a.observer.ObserveInvocation(string(a.mode), outcome, elapsed)
	}
	a.logger.Debug("worker 调用结束",
		slog.String("mode", string(a.mode)),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
}

var _ Invoker = (*Adapter)(nil)
