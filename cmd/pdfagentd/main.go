package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mcp-a2a/internal/a2a"
	"mcp-a2a/internal/agent"
	"mcp-a2a/internal/api"
	"mcp-a2a/internal/auth"
	"mcp-a2a/internal/config"
	"mcp-a2a/pkg/logger"
)

var version = a2a.AgentVersion

type flags struct {
	configPath string
	host       string
	port       int
	model      string
	workerMode string
	translate  bool
	envFile    string
}

// main 是 A2A 守护进程的入口。
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfagentd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "pdfagentd",
		Short:         "A2A agent that reads PDF files and returns English text",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (default $PDFAGENT_CONFIG or configs/pdfagent.yaml)")
	cmd.Flags().StringVar(&f.host, "host", config.DefaultHost, "listen host")
	cmd.Flags().IntVar(&f.port, "port", config.DefaultPort, "listen port")
	cmd.Flags().StringVar(&f.model, "model", "", "chat model id (default $OPENAI_CHAT_MODEL_ID or "+config.DefaultModelID+")")
	cmd.Flags().StringVar(&f.workerMode, "worker-mode", "", "worker mode: ephemeral or session")
	cmd.Flags().BoolVar(&f.translate, "translate", true, "translate extracted text with the language model")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	return cmd
}

// loadConfig 依次合并 .env、配置文件、环境变量与命令行参数，命令行优先。
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	if changed("worker-mode") {
		cfg.Worker.Mode = f.workerMode
	}
	if changed("translate") {
		translate := f.translate
		cfg.Worker.Translate = &translate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Service:     "pdfagentd",
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Rotation: logger.Rotation{
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
		Audit: logger.AuditConfig{Enabled: cfg.Log.AuditPath != "", Path: cfg.Log.AuditPath},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.L()

	store, err := newStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("关闭任务存储失败", "error", err)
		}
	}()

	publisher, err := newPublisher(cfg.Events, cfg.Storage.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("关闭事件投递失败", "error", err)
		}
	}()

	adapter, err := newAdapter(ctx, cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	manager := agent.NewTaskManager(store, adapter,
		agent.WithPublisher(publisher),
		agent.WithAlertDispatcher(newAlerter(cfg.Alert)),
	)
	card := a2a.PDFAgentCard(cfg.Server.PublicURL())
	if auth.NewGuard(cfg.Server.AuthTokens).Enabled() {
		card.Authentication = &a2a.AgentAuthentication{Schemes: []string{auth.SchemeBearer}}
	}
	server := api.NewServer(cfg.Server, manager, store, card)

	log.Info("pdfagentd 启动",
		"version", version,
		"worker_mode", string(adapter.Mode()),
		"translate", cfg.Worker.TranslateEnabled(),
		"store", cfg.Storage.Driver,
		"events", cfg.Events.Driver,
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
