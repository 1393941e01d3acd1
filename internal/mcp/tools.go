package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// einoTool 把一个 MCP 工具包装成 eino 可调用工具。
type einoTool struct {
	client *Client
	spec   ToolSpec
}

// EinoTools 列出会话中的全部工具并转换为 eino 工具。
func EinoTools(ctx context.Context, client *Client) ([]tool.BaseTool, error) {
	specs, err := client.Tools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]tool.BaseTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &einoTool{client: client, spec: spec})
	}
	return tools, nil
}

func (t *einoTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	params := make(map[string]*schema.ParameterInfo, len(t.spec.Params))
	for name, p := range t.spec.Params {
		params[name] = &schema.ParameterInfo{
			Type:     schema.DataType(p.Type),
			Desc:     p.Description,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        t.spec.Name,
		Desc:        t.spec.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 调用 MCP 工具。工具自身报告的失败作为文本返回给模型，便于模型自行修正。
func (t *einoTool) InvokableRun(ctx context.Context, argsJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
	}
	text, err := t.client.CallText(ctx, t.spec.Name, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return "Error: " + toolErr.Message, nil
		}
		return "", err
	}
	return text, nil
}

var _ tool.InvokableTool = (*einoTool)(nil)
