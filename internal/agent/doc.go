// Package agent 是任务编排器：校验 A2A 请求、登记任务、调用后端 worker，
// 并把任务推进到带产物的终态。
package agent
