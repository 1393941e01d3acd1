// Package llm 基于 eino 构建聊天模型，并以 ReAct 循环驱动模型调用 MCP 工具完成
// PDF 解析与英文翻译。
package llm
