package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mcp-a2a/internal/a2a"
	"mcp-a2a/internal/auth"
	"mcp-a2a/internal/config"
	"mcp-a2a/internal/observability/metrics"
	"mcp-a2a/internal/task"
	"mcp-a2a/pkg/logger"
)

// maxBodyBytes 限制单个 JSON-RPC 请求体大小。
const maxBodyBytes = 1 << 20

// TaskHandler 是 A2A 方法的处理方，由 agent.TaskManager 实现。
type TaskHandler interface {
	OnSendTask(ctx context.Context, req *a2a.SendTaskRequest) (*a2a.SendTaskResponse, error)
	OnSendTaskSubscribe(ctx context.Context, req *a2a.SendTaskStreamingRequest) (*a2a.SendTaskResponse, error)
	OnGetTask(ctx context.Context, req *a2a.GetTaskRequest) (*a2a.GetTaskResponse, error)
	OnCancelTask(ctx context.Context, req *a2a.CancelTaskRequest) (*a2a.CancelTaskResponse, error)
}

// Server 负责暴露 A2A 与 REST 接口。
type Server struct {
	cfg     config.ServerConfig
	handler TaskHandler
	store   task.Store
	card    a2a.AgentCard
	started time.Time
}

// NewServer 构造 API 服务实例。store 用于 REST 查询，可与 handler 共享。
func NewServer(cfg config.ServerConfig, handler TaskHandler, store task.Store, card a2a.AgentCard) *Server {
	return &Server{cfg: cfg, handler: handler, store: store, card: card, started: time.Now()}
}

// Handler 返回完整的路由，测试可直接挂到 httptest.Server 上。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", metrics.Instrument("jsonrpc", http.HandlerFunc(s.handleJSONRPC)))
	mux.Handle(a2a.AgentCardPath, metrics.Instrument("agent_card", http.HandlerFunc(s.handleAgentCard)))
	mux.Handle("/api/v1/tasks", metrics.Instrument("tasks", http.HandlerFunc(s.handleListTasks)))
	mux.Handle("/api/v1/tasks/", metrics.Instrument("task_detail", http.HandlerFunc(s.handleTaskDetail)))
	mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return auth.NewGuard(s.cfg.AuthTokens, a2a.AgentCardPath, "/healthz").Middleware(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("A2A 服务已启动", "addr", server.Addr, "url", s.card.URL)

	select {
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
