// Package metrics 基于 Prometheus client_golang 暴露 HTTP、任务状态与后端调用指标。
package metrics
