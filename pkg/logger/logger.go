// Package logger 封装进程级的 slog 日志与审计日志。
//
// 文件输出统一经过 lumberjack 轮转；审计日志固定为 JSON，
// 记录任务状态迁移、鉴权拒绝和告警等需要留档的事件。
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 描述进程日志的输出方式。
type Config struct {
	// Service 作为 service 字段附加在每条记录上。
	Service string
	Level   string
	// Format 为 text 或 json，默认 json。
	Format string
	// OutputPaths 支持 stdout、stderr 或文件路径，为空时写 stdout。
	OutputPaths []string
	Rotation    Rotation
	Audit       AuditConfig
}

// Rotation 是文件输出的轮转参数，零值使用默认值。
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AuditConfig 控制审计日志。未启用时审计记录写入普通日志。
type AuditConfig struct {
	Enabled bool
	Path    string
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init 按配置重建全局日志器，之前打开的文件会被关闭。
func Init(cfg Config) error {
	rotation := cfg.Rotation.withDefaults()
	var opened []io.Closer

	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, rotation, &opened,
		&slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true})
	if err != nil {
		closeAll(opened)
		return err
	}
	base := slog.New(handler)
	if cfg.Service != "" {
		base = base.With(slog.String("service", cfg.Service))
	}

	audit := base
	if cfg.Audit.Enabled {
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			closeAll(opened)
			return errors.New("audit log path cannot be empty when enabled")
		}
		writer, err := rotatingFile(cfg.Audit.Path, rotation)
		if err != nil {
			closeAll(opened)
			return err
		}
		opened = append(opened, writer)
		audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
		if cfg.Service != "" {
			audit = audit.With(slog.String("service", cfg.Service))
		}
	}

	mu.Lock()
	previous := closers
	defaultLogger, auditLogger, closers = base, audit, opened
	mu.Unlock()
	closeAll(previous)
	return nil
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = 100
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 7
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = 30
	}
	return r
}

func buildHandler(format string, outputs []string, rotation Rotation, opened *[]io.Closer, opts *slog.HandlerOptions) (slog.Handler, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "stdout", "":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			writer, err := rotatingFile(out, rotation)
			if err != nil {
				return nil, err
			}
			*opened = append(*opened, writer)
			writers = append(writers, writer)
		}
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func rotatingFile(path string, rotation Rotation) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeAll(list []io.Closer) error {
	var err error
	for _, c := range list {
		err = errors.Join(err, c.Close())
	}
	return err
}

// L 返回全局日志器，未初始化时使用 stdout JSON。
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Audit 返回审计日志器。
func Audit() *slog.Logger {
	mu.RLock()
	l := auditLogger
	mu.RUnlock()
	if l == nil {
		return L()
	}
	return l
}

// Sync 关闭所有文件输出；之后写入的记录会由 lumberjack 重新打开文件。
func Sync() error {
	mu.Lock()
	list := closers
	closers = nil
	mu.Unlock()
	return closeAll(list)
}

// Reset 丢弃当前日志器，测试之间使用。
func Reset() {
	_ = Sync()
	mu.Lock()
	defaultLogger, auditLogger = nil, nil
	mu.Unlock()
}

// Named 返回带 component 字段的子日志器。
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// ForTask 返回带 task_id 字段的子日志器，贯穿单个任务的生命周期。
func ForTask(taskID string) *slog.Logger {
	return L().With(slog.String("task_id", taskID))
}
