package a2a

import "mcp-a2a/internal/task"

// A2A 方法名。
const (
	MethodTasksSend          = "tasks/send"
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	MethodTasksGet           = "tasks/get"
	MethodTasksCancel        = "tasks/cancel"
)

// TaskSendParams 是 tasks/send 与 tasks/sendSubscribe 的参数。
type TaskSendParams struct {
	ID                  string         `json:"id"`
	SessionID           string         `json:"sessionId,omitempty"`
	Message             task.Message   `json:"message"`
	AcceptedOutputModes []string       `json:"acceptedOutputModes,omitempty"`
	HistoryLength       *int           `json:"historyLength,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams 是 tasks/get 的参数。
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams 只携带任务 id。
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SendTaskRequest struct {
	JSONRPCMessage
	Method string         `json:"method"`
	Params TaskSendParams `json:"params"`
}

func NewSendTaskRequest(id any, params TaskSendParams) *SendTaskRequest {
	return &SendTaskRequest{JSONRPCMessage: NewJSONRPCMessage(id), Method: MethodTasksSend, Params: params}
}

type SendTaskResponse struct {
	JSONRPCMessage
	Result *task.Task    `json:"result,omitempty"`
	Error  *JSONRPCError `json:"error,omitempty"`
}

type SendTaskStreamingRequest struct {
	JSONRPCMessage
	Method string         `json:"method"`
	Params TaskSendParams `json:"params"`
}

func NewSendTaskStreamingRequest(id any, params TaskSendParams) *SendTaskStreamingRequest {
	return &SendTaskStreamingRequest{JSONRPCMessage: NewJSONRPCMessage(id), Method: MethodTasksSendSubscribe, Params: params}
}

type GetTaskRequest struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params TaskQueryParams `json:"params"`
}

func NewGetTaskRequest(id any, params TaskQueryParams) *GetTaskRequest {
	return &GetTaskRequest{JSONRPCMessage: NewJSONRPCMessage(id), Method: MethodTasksGet, Params: params}
}

type GetTaskResponse struct {
	JSONRPCMessage
	Result *task.Task    `json:"result,omitempty"`
	Error  *JSONRPCError `json:"error,omitempty"`
}

type CancelTaskRequest struct {
	JSONRPCMessage
	Method string       `json:"method"`
	Params TaskIDParams `json:"params"`
}

func NewCancelTaskRequest(id any, params TaskIDParams) *CancelTaskRequest {
	return &CancelTaskRequest{JSONRPCMessage: NewJSONRPCMessage(id), Method: MethodTasksCancel, Params: params}
}

type CancelTaskResponse struct {
	JSONRPCMessage
	Result *task.Task    `json:"result,omitempty"`
	Error  *JSONRPCError `json:"error,omitempty"`
}

// TrimHistory 按 historyLength 截取任务历史：nil 表示原样返回，0 表示不返回历史。
func TrimHistory(t *task.Task, historyLength *int) *task.Task {
	if t == nil || historyLength == nil {
		return t
	}
	n := *historyLength
	if n <= 0 {
		t.History = nil
		return t
	}
	if len(t.History) > n {
		t.History = t.History[len(t.History)-n:]
	}
	return t
}
