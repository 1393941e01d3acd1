// Package auth 为 A2A 接口提供可选的 Bearer Token 校验。
//
// 未配置任何令牌时中间件直接放行；agent card 与健康检查始终公开，
// 以便调用方在认证前发现服务。
package auth
