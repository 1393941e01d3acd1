package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	xerrors "mcp-a2a/internal/errors"
)

// Provider 标识模型提供方。
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"

	// DefaultOllamaURL 是本地 ollama 的默认地址。
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultClaudeMaxTokens 是 claude 接口必填的输出上限。
	DefaultClaudeMaxTokens = 4096
)

// Config 描述创建聊天模型所需的信息。
type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string
}

// NewChatModel 根据提供方创建 eino 聊天模型。缺少凭据时返回 CONFIGURATION 错误。
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if apiKey == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, "缺少 OPENAI_API_KEY")
		}
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   cfg.Model,
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建 OpenAI 模型失败")
		}
		return m, nil

	case ProviderClaude:
		if apiKey == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, "缺少 ANTHROPIC_API_KEY")
		}
		m, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     cfg.Model,
			MaxTokens: DefaultClaudeMaxTokens,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建 Claude 模型失败")
		}
		return m, nil

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建 Ollama 模型失败")
		}
		return m, nil

	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "不支持的模型提供方: "+string(cfg.Provider))
	}
}
