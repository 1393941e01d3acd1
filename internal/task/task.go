package task

import (
	"strings"
	"time"

	xerrors "mcp-a2a/internal/errors"
)

// State 表示任务在生命周期中的状态，取值与 A2A 协议保持一致。
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateCanceled      State = "canceled"
	StateFailed        State = "failed"
	StateUnknown       State = "unknown"
)

// IsTerminal 判断状态是否为终态。
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// IsValid 检查状态是否为支持的枚举值。
func (s State) IsValid() bool {
	switch s {
	case StateSubmitted, StateWorking, StateInputRequired, StateCompleted, StateCanceled, StateFailed, StateUnknown:
		return true
	default:
		return false
	}
}

func (s State) rank() int {
	switch s {
	case StateSubmitted, StateUnknown:
		return 0
	case StateWorking, StateInputRequired:
		return 1
	default:
		return 2
	}
}

// CanTransition 报告状态是否允许从 from 迁移到 to：只能朝终态单调前进，终态不可再变。
func CanTransition(from, to State) bool {
	if !to.IsValid() || from.IsTerminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// Role 标识消息的发送方。
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartTypeText 是目前唯一支持的消息片段类型。
const PartTypeText = "text"

// Part 是消息或产物中的一个片段。
type Part struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextPart 构造一个文本片段。
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// Message 是用户或智能体的一轮发言。
type Message struct {
	Role     Role           `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewAgentMessage 构造只包含一段文本的智能体消息。
func NewAgentMessage(text string) *Message {
	return &Message{Role: RoleAgent, Parts: []Part{TextPart(text)}}
}

// FirstText 返回第一个非空文本片段。
func (m Message) FirstText() (string, bool) {
	for _, part := range m.Parts {
		if part.Type != "" && part.Type != PartTypeText {
			continue
		}
		if strings.TrimSpace(part.Text) != "" {
			return part.Text, true
		}
	}
	return "", false
}

// Text 拼接消息中所有文本片段。
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Status 描述任务当前的状态及附带消息。
type Status struct {
	State     State     `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Artifact 是任务产出的结果。
type Artifact struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Index       int            `json:"index"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task 描述了一次 A2A 请求对应的任务记录。
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    Status         `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SetStatus 更新任务状态并刷新时间戳。
func (t *Task) SetStatus(state State, message *Message) {
	t.Status = Status{State: state, Message: message, Timestamp: time.Now().UTC()}
}

// Clone 返回任务的深拷贝，存储层只向外暴露拷贝。
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cloned := *t
	cloned.Status.Message = cloneMessagePtr(t.Status.Message)
	if t.Artifacts != nil {
		cloned.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, artifact := range t.Artifacts {
			artifact.Parts = cloneParts(artifact.Parts)
			artifact.Metadata = cloneMetadata(artifact.Metadata)
			cloned.Artifacts[i] = artifact
		}
	}
	if t.History != nil {
		cloned.History = make([]Message, len(t.History))
		for i, msg := range t.History {
			cloned.History[i] = cloneMessage(msg)
		}
	}
	cloned.Metadata = cloneMetadata(t.Metadata)
	return &cloned
}

func cloneMessagePtr(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := cloneMessage(*msg)
	return &cloned
}

func cloneMessage(msg Message) Message {
	msg.Parts = cloneParts(msg.Parts)
	msg.Metadata = cloneMetadata(msg.Metadata)
	return msg
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	cloned := make([]Part, len(parts))
	for i, part := range parts {
		part.Metadata = cloneMetadata(part.Metadata)
		cloned[i] = part
	}
	return cloned
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// CodeInvalidTransition 表示状态迁移违反了单调前进的约束。
const CodeInvalidTransition xerrors.Code = "TASK_INVALID_TRANSITION"

func init() {
	xerrors.Register(CodeInvalidTransition, xerrors.Attributes{
		Message:  "invalid task state transition",
		Severity: xerrors.SeverityWarning,
	})
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(xerrors.CodeNotFound, "task not found")
	// ErrTaskTerminal 表示任务已处于终态，不能再被修改。
	ErrTaskTerminal = xerrors.New(xerrors.CodeConflict, "task already in terminal state", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrInvalidTransition 表示修改函数试图让状态回退。
	ErrInvalidTransition = xerrors.New(CodeInvalidTransition, "invalid task state transition")
)
