package a2a

// AgentCapabilities 声明智能体支持的可选协议能力。
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentSkill 描述智能体对外提供的一项技能。
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentAuthentication 声明调用方需要使用的认证方式。
type AgentAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// AgentCard 发布在 /.well-known/agent.json，供调用方发现智能体。
type AgentCard struct {
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	URL                string               `json:"url"`
	Version            string               `json:"version"`
	Capabilities       AgentCapabilities    `json:"capabilities"`
	Authentication     *AgentAuthentication `json:"authentication,omitempty"`
	DefaultInputModes  []string             `json:"defaultInputModes"`
	DefaultOutputModes []string             `json:"defaultOutputModes"`
	Skills             []AgentSkill         `json:"skills"`
}

// AgentCardPath 是名片的固定发布路径。
const AgentCardPath = "/.well-known/agent.json"

const (
	AgentName    = "PDF to English Agent"
	AgentVersion = "0.1.0"
	SkillID      = "mcp-a2a-pdf-parser"
	ContentText  = "text"
)

// PDFAgentCard 返回本智能体的名片，url 为对外访问地址。
func PDFAgentCard(url string) AgentCard {
	modes := []string{ContentText}
	return AgentCard{
		Name:               AgentName,
		Description:        "This agent reads pdf files and returns English text",
		URL:                url,
		Version:            AgentVersion,
		Capabilities:       AgentCapabilities{Streaming: false},
		DefaultInputModes:  modes,
		DefaultOutputModes: modes,
		Skills: []AgentSkill{{
			ID:          SkillID,
			Name:        "PDF Tool",
			Description: "Parses PDF files and returns their text content.",
			Tags:        []string{"pdf", "parse", "extract"},
			Examples:    []string{"Parse this PDF file: <file_path>"},
			InputModes:  modes,
			OutputModes: modes,
		}},
	}
}
