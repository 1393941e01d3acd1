// Package a2a 定义 A2A 协议（tasks/send 草案）的 JSON-RPC 报文、错误码与智能体名片。
//
// 任务本身的数据结构复用 internal/task，本包只负责线上格式。
package a2a
