package worker

import (
	"context"
	"errors"
	"fmt"

	xerrors "mcp-a2a/internal/errors"
)

// Error 描述一次 worker 调用失败，Unwrap 返回带错误码的底层错误。
type Error struct {
	Mode Mode
	Op   string
	err  *xerrors.Error
}

func newError(mode Mode, op string, cause error) *Error {
	code := xerrors.CodeWorkerFailure
	if errors.Is(cause, context.DeadlineExceeded) {
		code = xerrors.CodeTimeout
	}
	return &Error{Mode: mode, Op: op, err: xerrors.Wrap(code, cause, op,
		xerrors.WithMetadata("worker_mode", string(mode)),
		xerrors.WithMetadata("worker_op", op))}
}

func (e *Error) Error() string {
	return fmt.Sprintf("worker(%s) %s", e.Mode, e.err.Error())
}

// Unwrap 返回底层的统一错误。
func (e *Error) Unwrap() error { return e.err }

// Code 返回 WORKER_FAILURE 或 TIMEOUT。
func (e *Error) Code() xerrors.Code { return e.err.Code() }

// Cause 返回最初的失败原因。
func (e *Error) Cause() error { return errors.Unwrap(e.err) }

// AsError 判断 err 是否来自 worker。
func AsError(err error) (*Error, bool) {
	var workerErr *Error
	if errors.As(err, &workerErr) {
		return workerErr, true
	}
	return nil, false
}

// ErrEmptyOutput 表示后端正常返回但没有任何文本。
var ErrEmptyOutput = errors.New("worker returned empty output")
