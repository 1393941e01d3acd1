// Package pdf 从 PDF 文件中按页提取纯文本。
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageSeparator 连接相邻页文本。
const PageSeparator = "\n\n"

// Extractor 抽象了 PDF 文本提取，方便在 MCP 工具中替换。
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc 让普通函数满足 Extractor。
type ExtractorFunc func(ctx context.Context, path string) (string, error)

// Extract 实现 Extractor。
func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// FileExtractor 读取本地文件系统中的 PDF。
type FileExtractor struct{}

// Extract 返回所有页面的文本，按页序以 PageSeparator 连接。空白页保留为空串。
func (FileExtractor) Extract(ctx context.Context, path string) (text string, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("pdf path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	// ledongthuc/pdf 在遇到损坏的对象时会 panic。
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", path, err)
	}
	defer file.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d of %s: %w", i, path, err)
		}
		pages = append(pages, strings.TrimRight(content, " \n"))
	}
	return JoinPages(pages), nil
}

// JoinPages 按页序拼接文本。
func JoinPages(pages []string) string {
	return strings.Join(pages, PageSeparator)
}
