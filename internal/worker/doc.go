// Package worker 把"文本进、文本出"的后端调用封装为统一的 Adapter。
//
// Adapter 只有两种形态：持有一个长连接会话（NewLongLived），或在每次调用时
// 通过 Factory 新建会话并在返回前关闭（NewEphemeral）。所有后端失败都以
// *Error 返回，错误码为 WORKER_FAILURE 或 TIMEOUT。
package worker
