package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"mcp-a2a/internal/a2a"
	xerrors "mcp-a2a/internal/errors"
	"mcp-a2a/pkg/logger"
)

// handleJSONRPC 处理 POST / 上的 A2A 调用。协议错误同样以 200 返回，错误体放在 error 字段中。
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, a2a.NewErrorResponse(nil, a2a.NewInvalidRequestError(err.Error())))
		return
	}
	req, rpcErr := a2a.DecodeRequest(body)
	if rpcErr != nil {
		var id any
		if req != nil {
			id = req.ID
		}
		writeJSON(w, http.StatusOK, a2a.NewErrorResponse(id, rpcErr))
		return
	}

	result, err := s.dispatch(r, req)
	if err != nil {
		rpcErr := a2a.ErrorFrom(err)
		if rpcErr.Code == a2a.InternalErrorCode {
			logger.L().Error("处理 A2A 请求失败", append([]any{slog.String("method", req.Method)}, xerrors.LogAttrs(err)...)...)
		}
		writeJSON(w, http.StatusOK, a2a.NewErrorResponse(req.ID, rpcErr))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) dispatch(r *http.Request, req *a2a.JSONRPCRequest) (any, error) {
	ctx := r.Context()
	switch req.Method {
	case a2a.MethodTasksSend:
		typed := &a2a.SendTaskRequest{JSONRPCMessage: req.JSONRPCMessage, Method: req.Method}
		if rpcErr := a2a.DecodeParams(req, &typed.Params); rpcErr != nil {
			return nil, rpcErr
		}
		return s.handler.OnSendTask(ctx, typed)
	case a2a.MethodTasksSendSubscribe:
		typed := &a2a.SendTaskStreamingRequest{JSONRPCMessage: req.JSONRPCMessage, Method: req.Method}
		if rpcErr := a2a.DecodeParams(req, &typed.Params); rpcErr != nil {
			return nil, rpcErr
		}
		return s.handler.OnSendTaskSubscribe(ctx, typed)
	case a2a.MethodTasksGet:
		typed := &a2a.GetTaskRequest{JSONRPCMessage: req.JSONRPCMessage, Method: req.Method}
		if rpcErr := a2a.DecodeParams(req, &typed.Params); rpcErr != nil {
			return nil, rpcErr
		}
		return s.handler.OnGetTask(ctx, typed)
	case a2a.MethodTasksCancel:
		typed := &a2a.CancelTaskRequest{JSONRPCMessage: req.JSONRPCMessage, Method: req.Method}
		if rpcErr := a2a.DecodeParams(req, &typed.Params); rpcErr != nil {
			return nil, rpcErr
		}
		return s.handler.OnCancelTask(ctx, typed)
	default:
		return nil, a2a.NewMethodNotFoundError(req.Method)
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.card)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
