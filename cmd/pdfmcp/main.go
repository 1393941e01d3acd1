package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcp-a2a/internal/mcp"
	"mcp-a2a/internal/pdf"
	"mcp-a2a/pkg/logger"
)

var version = "0.1.0"

// main 启动 stdio 上的 MCP PDF 解析服务，日志只能写 stderr，stdout 留给协议。
func main() {
	var logLevel string
	cmd := &cobra.Command{
		Use:           "pdfmcp",
		Short:         "MCP server exposing the parse_pdf tool over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.Config{
				Service:     "pdfmcp",
				Level:       logLevel,
				Format:      "text",
				OutputPaths: []string{"stderr"},
			}); err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server := mcp.NewPDFServer(pdf.FileExtractor{}, version)
			if err := mcp.ServeStdio(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", os.Getenv("PDFAGENT_LOG_LEVEL"), "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfmcp 运行失败: %v\n", err)
		os.Exit(1)
	}
}
