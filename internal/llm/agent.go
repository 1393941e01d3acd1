package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"mcp-a2a/pkg/logger"
)

// SystemPrompt 要求模型只返回英文文本。
const SystemPrompt = "You are a helpful assistant that can parse PDF files and translate them to English. " +
	"Return the text in English. Do not add any other information other than the text in English."

// DefaultMaxSteps 是 ReAct 循环的默认最大轮数。
const DefaultMaxSteps = 6

// ErrNoAnswer 表示模型在最大轮数内没有给出最终答案。
var ErrNoAnswer = errors.New("model produced no final answer")

// Agent 以 ReAct 循环驱动模型：模型 -> (工具调用 -> 工具结果 -> 模型)* -> 最终答案。
type Agent struct {
	model     model.BaseChatModel
	toolsNode *compose.ToolsNode
	toolInfos []*schema.ToolInfo
	maxSteps  int
	prompt    string
	logger    *slog.Logger
}

// AgentOption 定义 Agent 的可选配置。
type AgentOption func(*Agent)

// WithMaxSteps 限制 ReAct 轮数。
func WithMaxSteps(steps int) AgentOption {
	return func(a *Agent) {
		if steps > 0 {
			a.maxSteps = steps
		}
	}
}

// WithSystemPrompt 替换系统提示词。
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *Agent) {
		if strings.TrimSpace(prompt) != "" {
			a.prompt = prompt
		}
	}
}

// NewAgent 绑定模型与工具。
func NewAgent(ctx context.Context, chatModel model.BaseChatModel, tools []tool.BaseTool, opts ...AgentOption) (*Agent, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	a := &Agent{
		model:    chatModel,
		maxSteps: DefaultMaxSteps,
		prompt:   SystemPrompt,
		logger:   logger.Named("llm"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if len(tools) > 0 {
		node, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{Tools: tools})
		if err != nil {
			return nil, fmt.Errorf("create tools node: %w", err)
		}
		a.toolsNode = node
		for _, t := range tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("tool info: %w", err)
			}
			a.toolInfos = append(a.toolInfos, info)
		}
	}
	return a, nil
}

// Run 执行一次完整的对话，返回模型最后一条不含工具调用的回复。
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(a.prompt),
		schema.UserMessage(input),
	}

	var opts []model.Option
	if len(a.toolInfos) > 0 {
		opts = append(opts, model.WithTools(a.toolInfos))
	}

	for step := 0; step < a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := a.model.Generate(ctx, messages, opts...)
		if err != nil {
			return "", fmt.Errorf("generate (step %d): %w", step+1, err)
		}
		messages = append(messages, resp)

		if len(resp.ToolCalls) == 0 || a.toolsNode == nil {
			return strings.TrimSpace(resp.Content), nil
		}

		for _, call := range resp.ToolCalls {
			a.logger.Debug("模型调用工具",
				slog.Int("step", step+1),
				slog.String("tool", call.Function.Name),
				slog.String("arguments", call.Function.Arguments),
			)
		}
		results, err := a.toolsNode.Invoke(ctx, resp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			// 工具执行失败时告知模型，由模型决定下一步。
			results = make([]*schema.Message, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				results = append(results, schema.ToolMessage(fmt.Sprintf("Error executing tool: %v", err), call.ID))
			}
		}
		messages = append(messages, results...)
	}
	return "", fmt.Errorf("%w after %d steps", ErrNoAnswer, a.maxSteps)
}

// Session 把 Agent 与其依赖的资源（通常是 MCP 客户端）组合成一个可关闭的会话。
type Session struct {
	agent  *Agent
	closer io.Closer
}

// NewSession 创建会话，closer 可以为空。
func NewSession(agent *Agent, closer io.Closer) *Session {
	return &Session{agent: agent, closer: closer}
}

// Invoke 实现 worker.Session。
func (s *Session) Invoke(ctx context.Context, input string) (string, error) {
	return s.agent.Run(ctx, input)
}

// Close 实现 worker.Session。
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
