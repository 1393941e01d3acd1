package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClientName 是连接 MCP 服务时公布的客户端名称。
const ClientName = "pdfagent"

// closeGrace 是关闭会话后等待子进程自行退出的时间，超时后强制结束。
var closeGrace = 3 * time.Second

// ToolError 表示工具以 IsError 结果返回的失败。
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Client 封装一次 MCP 客户端会话。
type Client struct {
	session *mcpsdk.ClientSession

	closeOnce sync.Once
	closeErr  error
	// kill 用于强制结束子进程，内存传输下为空。
	kill context.CancelFunc
}

// Dial 以子进程方式启动 MCP 服务并通过 stdio 建立会话。
// ctx 结束时子进程会被强制结束。
func Dial(ctx context.Context, command string, args ...string) (*Client, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("mcp command is empty")
	}
	procCtx, kill := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, command, args...)
	cmd.Stderr = os.Stderr

	client, err := connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		kill()
		return nil, fmt.Errorf("start mcp server %s: %w", command, err)
	}
	client.kill = kill
	return client, nil
}

// Connect 使用任意传输建立会话，测试中配合内存传输使用。
func Connect(ctx context.Context, transport mcpsdk.Transport) (*Client, error) {
	return connect(ctx, transport)
}

// ConnectInProcess 在当前进程内启动服务端，并通过内存传输连接。
func ConnectInProcess(ctx context.Context, server *mcpsdk.Server) (*Client, error) {
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport)
	if err != nil {
		return nil, fmt.Errorf("connect in-process server: %w", err)
	}
	client, err := connect(ctx, clientTransport)
	if err != nil {
		_ = serverSession.Close()
		return nil, err
	}
	client.kill = func() { _ = serverSession.Close() }
	return client, nil
}

func connect(ctx context.Context, transport mcpsdk.Transport) (*Client, error) {
	c := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: "0.1.0"}, nil)
	session, err := c.Connect(ctx, transport)
	if err != nil {
		return nil, err
	}
	return &Client{session: session}, nil
}

// CallText 调用工具并拼接返回的文本内容。工具返回 IsError 时得到 *ToolError。
func (c *Client) CallText(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	text := contentText(result.Content)
	if result.IsError {
		return "", &ToolError{Tool: name, Message: text}
	}
	return text, nil
}

// ParsePDF 调用 parse_pdf。
func (c *Client) ParsePDF(ctx context.Context, path string) (string, error) {
	return c.CallText(ctx, ToolParsePDF, map[string]any{"path": path})
}

// ToolSpec 是工具的名称、描述与参数定义，参数定义从 JSON Schema 中解析得到。
type ToolSpec struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

// ParamSpec 描述单个参数。
type ParamSpec struct {
	Type        string
	Description string
	Required    bool
}

// Tools 列出服务端公布的工具。
func (c *Client) Tools(ctx context.Context) ([]ToolSpec, error) {
	result, err := c.session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	specs := make([]ToolSpec, 0, len(result.Tools))
	for _, tool := range result.Tools {
		spec := ToolSpec{Name: tool.Name, Description: tool.Description}
		params, err := decodeParams(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("decode schema of %s: %w", tool.Name, err)
		}
		spec.Params = params
		specs = append(specs, spec)
	}
	return specs, nil
}

// decodeParams 只关心顶层 properties 与 required。
func decodeParams(inputSchema any) (map[string]ParamSpec, error) {
	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	params := make(map[string]ParamSpec, len(decoded.Properties))
	for name, prop := range decoded.Properties {
		typ, _ := prop.Type.(string)
		if typ == "" {
			typ = "string"
		}
		params[name] = ParamSpec{Type: typ, Description: prop.Description}
	}
	for _, name := range decoded.Required {
		if p, ok := params[name]; ok {
			p.Required = true
			params[name] = p
		}
	}
	return params, nil
}

// Close 关闭会话并回收子进程；子进程在宽限期内未退出时会被强制结束。
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var timer *time.Timer
		if c.kill != nil {
			timer = time.AfterFunc(closeGrace, c.kill)
		}
		c.closeErr = c.session.Close()
		if timer != nil {
			timer.Stop()
			c.kill()
		}
	})
	return c.closeErr
}

func contentText(contents []mcpsdk.Content) string {
	texts := make([]string, 0, len(contents))
	for _, content := range contents {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	return strings.Join(texts, "\n")
}
