// Package mcp 提供 PDF 解析的 MCP 工具服务端、客户端，以及把 MCP 工具桥接为 eino 工具的适配。
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"mcp-a2a/internal/pdf"
	"mcp-a2a/pkg/logger"
)

const (
	// ServerName 是 PDF 工具服务在握手时公布的名称。
	ServerName = "pdf-parser"
	// ToolParsePDF 是唯一的工具名。
	ToolParsePDF = "parse_pdf"
)

// ParsePDFParams 是 parse_pdf 的参数。
type ParsePDFParams struct {
	Path string `json:"path"`
}

// NewPDFServer 创建注册了 parse_pdf 的 MCP 服务端。
func NewPDFServer(extractor pdf.Extractor, version string) *mcpsdk.Server {
	if extractor == nil {
		extractor = pdf.FileExtractor{}
	}
	log := logger.Named("mcp-server")
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, &mcpsdk.ServerOptions{})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolParsePDF,
		Description: "Load a PDF from the given file path and return its full text, pages separated by a blank line.",
	}, func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[ParsePDFParams]) (*mcpsdk.CallToolResultFor[any], error) {
		path := strings.TrimSpace(params.Arguments.Path)
		if path == "" {
			return toolError(fmt.Errorf("path is required")), nil
		}
		text, err := extractor.Extract(ctx, path)
		if err != nil {
			log.Warn("PDF 解析失败", slog.String("path", path), slog.Any("error", err))
			return toolError(err), nil
		}
		log.Debug("PDF 解析完成", slog.String("path", path), slog.Int("chars", len(text)))
		return &mcpsdk.CallToolResultFor[any]{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	})
	return server
}

// toolError 以 IsError 结果返回失败，调用方（包括大模型）可以看到错误内容。
func toolError(err error) *mcpsdk.CallToolResultFor[any] {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

// ServeStdio 在标准输入输出上运行服务端，直到客户端断开或 ctx 结束。
func ServeStdio(ctx context.Context, server *mcpsdk.Server) error {
	return server.Run(ctx, mcpsdk.NewStdioTransport())
}
