package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mcp-a2a/internal/config"
	xerrors "mcp-a2a/internal/errors"
	"mcp-a2a/internal/task"
	"mcp-a2a/internal/worker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdfagent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "server:\n  host: 0.0.0.0\n  port: 9000\nworker:\n  mode: session\n  translate: false\n")
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--port", "10010", "--worker-mode", "ephemeral", "--env-file", ""}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	f := flags{configPath: path, port: 10010, workerMode: "ephemeral"}

	cfg, err := loadConfig(cmd, f)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("host should come from the file, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 10010 || cfg.Worker.Mode != config.WorkerModeEphemeral {
		t.Fatalf("flags should win: %+v", cfg.Server)
	}
	if cfg.Worker.TranslateEnabled() {
		t.Fatalf("translate=false from file should be kept")
	}
}

func TestLoadConfigRejectsMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, "llm:\n  provider: openai\n")
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	_, err := loadConfig(cmd, flags{configPath: path})
	if !xerrors.HasCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	path := writeConfig(t, "llm:\n  provider: openai\n")
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(cmd, flags{configPath: path, envFile: envFile})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-dotenv" {
		t.Fatalf("api key should come from the env file, got %q", cfg.LLM.APIKey)
	}
}

func TestNewStoreAndPublisher(t *testing.T) {
	store, err := newStore(config.StorageConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*task.MemoryStore); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	if _, err := newStore(config.StorageConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}

	publisher, err := newPublisher(config.EventsConfig{Driver: "memory", Buffer: 4}, config.RedisConfig{})
	if err != nil {
		t.Fatalf("memory publisher: %v", err)
	}
	if _, ok := publisher.(*task.MemoryPublisher); !ok {
		t.Fatalf("unexpected publisher type %T", publisher)
	}
	if _, err := newPublisher(config.EventsConfig{Driver: "kafka"}, config.RedisConfig{}); err == nil {
		t.Fatalf("expected error for unknown events driver")
	}
}

func TestNewAdapterExtractOnly(t *testing.T) {
	cfg := config.Default()
	translate := false
	cfg.Worker.Translate = &translate
	cfg.Worker.MCPCommand = filepath.Join(t.TempDir(), "missing-pdfmcp")

	adapter, err := newAdapter(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter.Mode() != worker.ModeEphemeral {
		t.Fatalf("expected ephemeral mode, got %s", adapter.Mode())
	}
	_, err = adapter.Invoke(context.Background(), "/tmp/a.pdf")
	if !xerrors.HasCode(err, xerrors.CodeWorkerFailure) {
		t.Fatalf("missing subprocess should be a worker failure, got %v", err)
	}
}

func TestResolveMCPCommand(t *testing.T) {
	if got := resolveMCPCommand("/opt/pdfmcp"); got != "/opt/pdfmcp" {
		t.Fatalf("explicit command should be kept, got %q", got)
	}
	if got := resolveMCPCommand(""); filepath.Base(got) != "pdfmcp" {
		t.Fatalf("expected pdfmcp fallback, got %q", got)
	}
}
