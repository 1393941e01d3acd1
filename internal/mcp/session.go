package mcp

import (
	"context"
	"regexp"
	"strings"
)

// ExtractSession 直接调用 parse_pdf，不经过大模型。输入可以是裸路径，
// 也可以是 "Parse this PDF file: <path>" 这样的句子。
type ExtractSession struct {
	client *Client
}

// NewExtractSession 基于已建立的客户端创建会话，Close 时一并关闭客户端。
func NewExtractSession(client *Client) *ExtractSession {
	return &ExtractSession{client: client}
}

// Invoke 实现 worker.Session。
func (s *ExtractSession) Invoke(ctx context.Context, input string) (string, error) {
	return s.client.ParsePDF(ctx, PathFromInput(input))
}

// Close 实现 worker.Session。
func (s *ExtractSession) Close() error {
	return s.client.Close()
}

var pdfPathPattern = regexp.MustCompile(`(?i)["'` + "`" + `]?([^\s"'` + "`" + `]+\.pdf)["'` + "`" + `]?`)

// PathFromInput 从自然语言输入中找出 .pdf 路径，找不到时返回去掉首尾空白的原文。
func PathFromInput(input string) string {
	if m := pdfPathPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return strings.TrimSpace(input)
}
