package ai

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run a named tool with a single query argument.
type ToolCall struct {
	Name  string
	Query string
}

// Message is one entry of a provider-neutral conversation. Tool messages
// carry the output of the tool named by ToolName.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	ToolName  string
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
}

// Generation is the outcome of one model call: either final text, tool
// calls, or both.
type Generation struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

type LanguageModel interface {
	Generate(ctx context.Context, messages []Message, tools []ToolSpec) (*Generation, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
