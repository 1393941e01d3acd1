package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "mcp-a2a/internal/errors"
)

const (
	// EnvConfigPath 指定配置文件位置的环境变量。
	EnvConfigPath = "PDFAGENT_CONFIG"
	// DefaultConfigPath 是未指定配置文件时尝试读取的位置。
	DefaultConfigPath = "configs/pdfagent.yaml"

	DefaultHost    = "localhost"
	DefaultPort    = 10002
	DefaultModelID = "gpt-4.1-nano"
)

// Worker 模式。
const (
	WorkerModeEphemeral = "ephemeral"
	WorkerModeSession   = "session"
)

// Config 描述了 pdfagentd 启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Worker  WorkerConfig  `yaml:"worker"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
	Alert   AlertConfig   `yaml:"alert"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 控制 A2A 服务的监听地址与超时。
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AuthTokens 非空时要求请求携带 Bearer 令牌。
	AuthTokens []string `yaml:"auth_tokens"`
}

// Address 返回 host:port 形式的监听地址。
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PublicURL 返回 agent card 中公布的访问地址。
func (s ServerConfig) PublicURL() string {
	return fmt.Sprintf("http://%s:%d/", s.Host, s.Port)
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// WorkerConfig 描述任务执行侧的 MCP 子进程与调用方式。
type WorkerConfig struct {
	Mode      string        `yaml:"mode"`
	Translate *bool         `yaml:"translate"`
	Timeout   time.Duration `yaml:"timeout"`
	// MCPCommand 为空时使用当前可执行文件同目录下的 pdfmcp。
	MCPCommand string   `yaml:"mcp_command"`
	MCPArgs    []string `yaml:"mcp_args"`
	MaxSteps   int      `yaml:"max_steps"`
}

// TranslateEnabled 返回是否需要经过大模型翻译。
func (w WorkerConfig) TranslateEnabled() bool {
	return w.Translate == nil || *w.Translate
}

// StorageConfig 描述任务存储后端。
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig 同时服务于 redis 任务存储和 redis 事件投递。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EventsConfig 描述任务状态事件的投递方式。
type EventsConfig struct {
	Driver      string `yaml:"driver"`
	RedisList   string `yaml:"redis_list"`
	RabbitMQURL string `yaml:"rabbitmq_url"`
	RabbitQueue string `yaml:"rabbitmq_queue"`
	Buffer      int    `yaml:"buffer"`
}

// AlertConfig 控制任务失败告警；审计日志渠道始终开启。
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// LogConfig 对应 pkg/logger 的初始化参数。
type LogConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
	AuditPath   string   `yaml:"audit_path"`
	// 以下为文件输出的轮转参数，0 表示使用默认值。
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Load 解析指定路径的 YAML 配置文件。path 为空时读取 PDFAGENT_CONFIG 或默认位置，
// 默认位置不存在时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigPath
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析配置失败")
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取配置文件失败")
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Default 返回只包含默认值与环境变量覆盖的配置。
func Default() *Config {
	var cfg Config
	_ = cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(".")
	return &cfg
}

type lookupFunc func(string) (string, bool)

// applyEnv 使用环境变量覆盖配置文件中的值。
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PDFAGENT_HOST", &c.Server.Host)
	if v, ok := lookup("PDFAGENT_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeConfiguration, err, "PDFAGENT_PORT 不是合法端口")
		}
		c.Server.Port = port
	}
	if v, ok := lookup("PDFAGENT_AUTH_TOKENS"); ok && strings.TrimSpace(v) != "" {
		c.Server.AuthTokens = strings.Split(v, ",")
	}
	str("PDFAGENT_LLM_PROVIDER", &c.LLM.Provider)
	str("OPENAI_CHAT_MODEL_ID", &c.LLM.Model)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "claude":
			str("ANTHROPIC_API_KEY", &c.LLM.APIKey)
		case "ollama":
		default:
			str("OPENAI_API_KEY", &c.LLM.APIKey)
		}
	}
	str("PDFAGENT_WORKER_MODE", &c.Worker.Mode)
	str("PDFAGENT_MCP_COMMAND", &c.Worker.MCPCommand)
	str("PDFAGENT_STORE_DRIVER", &c.Storage.Driver)
	str("PDFAGENT_STORE_DSN", &c.Storage.DSN)
	str("PDFAGENT_REDIS_ADDR", &c.Storage.Redis.Addr)
	str("PDFAGENT_EVENTS_DRIVER", &c.Events.Driver)
	str("PDFAGENT_RABBITMQ_URL", &c.Events.RabbitMQURL)
	str("PDFAGENT_ALERT_WEBHOOK", &c.Alert.WebhookURL)
	str("PDFAGENT_LOG_LEVEL", &c.Log.Level)
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		// tasks/send 同步等待 worker，写超时需要覆盖一次完整调用。
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModelID
	}

	if c.Worker.Mode == "" {
		c.Worker.Mode = WorkerModeEphemeral
	}
	if c.Worker.MaxSteps <= 0 {
		c.Worker.MaxSteps = 6
	}
	if c.Worker.MCPCommand != "" && strings.ContainsRune(c.Worker.MCPCommand, filepath.Separator) &&
		!filepath.IsAbs(c.Worker.MCPCommand) {
		c.Worker.MCPCommand = filepath.Join(baseDir, c.Worker.MCPCommand)
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "pdfagent"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.RedisList == "" {
		c.Events.RedisList = "pdfagent:events"
	}
	if c.Events.RabbitQueue == "" {
		c.Events.RabbitQueue = "pdfagent.task.events"
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 64
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate 检查配置的一致性，所有失败都以 CONFIGURATION 错误返回。
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return configError("端口超出范围: %d", c.Server.Port)
	}

	switch c.Worker.Mode {
	case WorkerModeEphemeral, WorkerModeSession:
	default:
		return configError("未知的 worker 模式: %s", c.Worker.Mode)
	}

	switch c.LLM.Provider {
	case "openai", "claude":
		if c.Worker.TranslateEnabled() && c.LLM.APIKey == "" {
			return configError("缺少 %s 的 API Key", c.LLM.Provider)
		}
	case "ollama":
	default:
		return configError("未知的模型提供方: %s", c.LLM.Provider)
	}

	switch c.Storage.Driver {
	case "memory", "redis":
	case "mysql":
		if c.Storage.DSN == "" {
			return configError("mysql 存储需要 dsn")
		}
	default:
		return configError("未知的存储驱动: %s", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case "none", "memory", "redis":
	case "rabbitmq":
		if c.Events.RabbitMQURL == "" {
			return configError("rabbitmq 事件需要 rabbitmq_url")
		}
	default:
		return configError("未知的事件驱动: %s", c.Events.Driver)
	}
	return nil
}

func configError(format string, args ...any) error {
	return xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf(format, args...))
}
