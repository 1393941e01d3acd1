// Package api 暴露 A2A JSON-RPC 入口、智能体名片以及任务查询、健康检查与指标等 REST 接口。
package api
