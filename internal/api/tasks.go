package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "mcp-a2a/internal/errors"
	"mcp-a2a/internal/task"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "任务存储未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tasks, err := s.store.List(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskDetail 处理 /api/v1/tasks/{id} 与 /api/v1/tasks/stats。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
	if id == "" {
		http.Error(w, "缺少任务 ID", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "任务存储未初始化", http.StatusServiceUnavailable)
		return
	}
	if id == "stats" {
		s.handleStats(w, r)
		return
	}

	t, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			http.Error(w, "任务不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.store.Stats(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if inflight, ok := s.handler.(interface{ InFlight() int }); ok {
		status["in_flight"] = inflight.InFlight()
	}
	if s.store != nil {
		if _, err := s.store.Stats(r.Context(), task.ListOptions{Limit: 1}); err != nil {
			status["status"] = "degraded"
			status["store_error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// listOptionsFromQuery 解析 state、session、limit、offset、order、q、has_artifacts、since、until 参数。
func listOptionsFromQuery(r *http.Request) (task.ListOptions, error) {
	query := r.URL.Query()
	var opts []task.ListOption

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须为非负整数")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := query.Get("state"); raw != "" {
		var states []task.State
		for _, item := range strings.Split(raw, ",") {
			state := task.State(strings.TrimSpace(item))
			if !state.IsValid() {
				return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务状态: "+string(state))
			}
			states = append(states, state)
		}
		opts = append(opts, task.WithStates(states...))
	}
	if raw := query.Get("session"); raw != "" {
		opts = append(opts, task.WithSession(raw))
	}
	switch strings.ToLower(query.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	default:
		return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "order 只能为 asc 或 desc")
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if raw := query.Get("has_artifacts"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "has_artifacts 必须为布尔值")
		}
		opts = append(opts, task.WithArtifactPresence(has))
	}
	for key, apply := range map[string]func(time.Time) task.ListOption{
		"since": task.WithUpdatedSince,
		"until": task.WithUpdatedUntil,
	} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return task.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, key+" 必须为 RFC3339 时间")
		}
		opts = append(opts, apply(ts))
	}
	return task.BuildListOptions(opts...), nil
}
