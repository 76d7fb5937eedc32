package llm

import "context"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType tags a tool definition. Only functions exist today.
type ToolType string

const ToolTypeFunction ToolType = "function"

// FunctionDef describes a kernel function offered to the model.
// Parameters holds a JSON Schema object.
type FunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"`
}

// Tool is one entry of ChatRequest.Tools.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionCall names the function the model picked and its JSON encoded
// arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a function call requested by the model. ID links the call
// to the tool message that answers it.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one turn of a chat history. Tool results use RoleTool and
// set ToolCallID.
type Message struct {
	Role       Role       `json:"role" yaml:"role"`
	Content    string     `json:"content" yaml:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
}

// ChatRequest is the provider-neutral request built from RequestSettings.
// Zero sampling values leave the provider default in place.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// ChatResponse is a complete, non streamed reply.
type ChatResponse struct {
	Content string `json:"content"`
	// ToolMessage carries tool output some providers attach to a reply.
	ToolMessage string     `json:"tool_message,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	Usage       Usage      `json:"usage"`
}

// Usage counts tokens as reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one partial result of a streaming call. The final chunk
// has Done set; a chunk with Error set ends the stream abnormally.
type StreamChunk struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolMessage fragments concatenate like Content.
	ToolMessage string `json:"tool_message,omitempty"`
	Usage       *Usage `json:"usage,omitempty"`
	Done        bool   `json:"done,omitempty"`
	Error       error  `json:"-"`
}

// Provider is implemented by every model backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamingProvider is a Provider that can stream. The channel is closed
// after the Done or Error chunk.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// TextCompletion is the text-completion capability consumed by semantic
// functions without a chat template.
type TextCompletion interface {
	Complete(ctx context.Context, prompt string, settings *RequestSettings) (string, error)
	CompleteStream(ctx context.Context, prompt string, settings *RequestSettings) (<-chan StreamChunk, error)
}

// ChatCompletion is the chat capability consumed by semantic functions with
// a chat template.
type ChatCompletion interface {
	CompleteChat(ctx context.Context, messages []Message, settings *RequestSettings) (*ChatResponse, error)
	CompleteChatStream(ctx context.Context, messages []Message, settings *RequestSettings) (<-chan StreamChunk, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
