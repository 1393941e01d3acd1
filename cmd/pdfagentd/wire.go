package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mcp-a2a/internal/config"
	"mcp-a2a/internal/llm"
	"mcp-a2a/internal/mcp"
	"mcp-a2a/internal/observability/alerting"
	"mcp-a2a/internal/observability/metrics"
	"mcp-a2a/internal/task"
	"mcp-a2a/internal/worker"
	"mcp-a2a/pkg/logger"
)

func newStore(cfg config.StorageConfig) (task.Store, error) {
	switch cfg.Driver {
	case "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(cfg.DSN)
	case "redis":
		return task.NewRedisStore(task.RedisStoreConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func newPublisher(cfg config.EventsConfig, redisCfg config.RedisConfig) (task.Publisher, error) {
	switch cfg.Driver {
	case "none":
		return task.NopPublisher{}, nil
	case "memory":
		return task.NewMemoryPublisher(cfg.Buffer), nil
	case "redis":
		return task.NewRedisPublisher(task.RedisPublisherConfig{
			Address:  redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			List:     cfg.RedisList,
		})
	case "rabbitmq":
		return task.NewRabbitMQPublisher(task.RabbitMQConfig{
			URL:     cfg.RabbitMQURL,
			Queue:   cfg.RabbitQueue,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}

func newAlerter(cfg config.AlertConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}

// newAdapter 根据 worker.mode 构造后端：ephemeral 每次调用新起 MCP 子进程，session 在启动时建立一次。
func newAdapter(ctx context.Context, cfg *config.Config) (*worker.Adapter, error) {
	factory, err := newSessionFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []worker.Option{
		worker.WithTimeout(cfg.Worker.Timeout),
		worker.WithObserver(metrics.WorkerObserver{}),
	}
	if cfg.Worker.Mode == config.WorkerModeSession {
		session, err := factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("启动常驻会话失败: %w", err)
		}
		return worker.NewLongLived(session, opts...), nil
	}
	return worker.NewEphemeral(factory, opts...), nil
}

func newSessionFactory(ctx context.Context, cfg *config.Config) (worker.Factory, error) {
	command := resolveMCPCommand(cfg.Worker.MCPCommand)
	args := cfg.Worker.MCPArgs

	if !cfg.Worker.TranslateEnabled() {
		return func(ctx context.Context) (worker.Session, error) {
			client, err := mcp.Dial(ctx, command, args...)
			if err != nil {
				return nil, err
			}
			return mcp.NewExtractSession(client), nil
		}, nil
	}

	chatModel, err := llm.NewChatModel(ctx, llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (worker.Session, error) {
		client, err := mcp.Dial(ctx, command, args...)
		if err != nil {
			return nil, err
		}
		tools, err := mcp.EinoTools(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		reactAgent, err := llm.NewAgent(ctx, chatModel, tools, llm.WithMaxSteps(cfg.Worker.MaxSteps))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return llm.NewSession(reactAgent, client), nil
	}, nil
}

// resolveMCPCommand 未配置时优先使用与当前程序同目录的 pdfmcp，否则交给 PATH 查找。
func resolveMCPCommand(command string) string {
	if command != "" {
		return command
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "pdfmcp")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	logger.L().Debug("未找到同目录的 pdfmcp，使用 PATH 查找")
	return "pdfmcp"
}
