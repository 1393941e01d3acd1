package a2a

import (
	"bytes"
	"encoding/json"
	"fmt"

	xerrors "mcp-a2a/internal/errors"
)

// Version 是唯一支持的 JSON-RPC 版本。
const Version = "2.0"

// JSONRPCMessage 是所有报文共有的头部。
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
}

// NewJSONRPCMessage 使用给定 id 构造报文头。
func NewJSONRPCMessage(id any) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: Version, ID: id}
}

// JSONRPCRequest 是尚未按方法解析参数的请求。
type JSONRPCRequest struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse 是通用响应，Result 与 Error 互斥。
type JSONRPCResponse struct {
	JSONRPCMessage
	Result any           `json:"result,omitempty"`
	Error  *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError 是协议层错误对象。
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error 让协议错误可以直接作为 Go error 传递。
func (e *JSONRPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC 2.0 标准错误码。
const (
	JSONParseErrorCode      = -32700
	InvalidRequestErrorCode = -32600
	MethodNotFoundErrorCode = -32601
	InvalidParamsErrorCode  = -32602
	InternalErrorCode       = -32603
)

// A2A 扩展错误码。
const (
	TaskNotFoundErrorCode                 = -32001
	TaskNotCancelableErrorCode            = -32002
	PushNotificationNotSupportedErrorCode = -32003
	UnsupportedOperationErrorCode         = -32004
	ContentTypeNotSupportedErrorCode      = -32005
)

func NewJSONParseError(data any) *JSONRPCError {
	return &JSONRPCError{Code: JSONParseErrorCode, Message: "Invalid JSON payload", Data: data}
}

func NewInvalidRequestError(data any) *JSONRPCError {
	return &JSONRPCError{Code: InvalidRequestErrorCode, Message: "Request payload validation error", Data: data}
}

func NewMethodNotFoundError(data any) *JSONRPCError {
	return &JSONRPCError{Code: MethodNotFoundErrorCode, Message: "Method not found", Data: data}
}

func NewInvalidParamsError(data any) *JSONRPCError {
	return &JSONRPCError{Code: InvalidParamsErrorCode, Message: "Invalid parameters", Data: data}
}

func NewInternalError(data any) *JSONRPCError {
	return &JSONRPCError{Code: InternalErrorCode, Message: "Internal error", Data: data}
}

func NewTaskNotFoundError(data any) *JSONRPCError {
	return &JSONRPCError{Code: TaskNotFoundErrorCode, Message: "Task not found", Data: data}
}

func NewTaskNotCancelableError(data any) *JSONRPCError {
	return &JSONRPCError{Code: TaskNotCancelableErrorCode, Message: "Task cannot be canceled", Data: data}
}

func NewUnsupportedOperationError(data any) *JSONRPCError {
	return &JSONRPCError{Code: UnsupportedOperationErrorCode, Message: "This operation is not supported", Data: data}
}

// ErrorFrom 把内部错误映射为协议错误；已经是协议错误的直接返回。
//
// CONFLICT 只会出现在取消终态任务时，因此映射为 TaskNotCancelable。
func ErrorFrom(err error) *JSONRPCError {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*JSONRPCError); ok {
		return rpcErr
	}
	coded, ok := xerrors.From(err)
	if !ok {
		return NewInternalError(err.Error())
	}
	detail := coded.Message()
	switch coded.Code() {
	case xerrors.CodeInvalidRequest:
		return NewInvalidRequestError(detail)
	case xerrors.CodeInvalidArgument:
		return NewInvalidParamsError(detail)
	case xerrors.CodeNotFound:
		return NewTaskNotFoundError(detail)
	case xerrors.CodeConflict:
		return NewTaskNotCancelableError(detail)
	case xerrors.CodeUnsupported:
		return NewUnsupportedOperationError(detail)
	default:
		return NewInternalError(detail)
	}
}

// DecodeRequest 解析请求体并校验报文头，方法参数留给后续按方法解析。
func DecodeRequest(body []byte) (*JSONRPCRequest, *JSONRPCError) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, NewJSONParseError("request body must be a JSON object")
	}
	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewJSONParseError(err.Error())
	}
	if req.JSONRPC != Version {
		return &req, NewInvalidRequestError("jsonrpc must be \"2.0\"")
	}
	if req.Method == "" {
		return &req, NewInvalidRequestError("method is required")
	}
	return &req, nil
}

// DecodeParams 把请求参数解析到 dst，失败返回 InvalidParams。
func DecodeParams(req *JSONRPCRequest, dst any) *JSONRPCError {
	if req == nil || len(req.Params) == 0 || string(req.Params) == "null" {
		return NewInvalidParamsError("params is required")
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params))
	if err := decoder.Decode(dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

// NewErrorResponse 构造只带错误的响应。
func NewErrorResponse(id any, err *JSONRPCError) JSONRPCResponse {
	return JSONRPCResponse{JSONRPCMessage: NewJSONRPCMessage(id), Error: err}
}
