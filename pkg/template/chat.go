package template

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// chatMessage is one entry of the chat history. User and system messages
// are templates rendered the first time the history is rendered; model
// replies are stored verbatim.
type chatMessage struct {
	role      llm.Role
	template  *PromptTemplate
	content   string
	rendered  bool
	toolCalls []llm.ToolCall
	callID    string
}

func (m *chatMessage) message() llm.Message {
	content := m.content
	if !m.rendered && m.template != nil {
		content = m.template.Text()
	}
	return llm.Message{Role: m.role, Content: content, ToolCalls: m.toolCalls, ToolCallID: m.callID}
}

// ChatPromptTemplate is a prompt template that keeps a chat history.
type ChatPromptTemplate struct {
	*PromptTemplate

	mu       sync.Mutex
	messages []*chatMessage
	logger   *slog.Logger
}

// NewChatPromptTemplate returns a chat template seeded with the configured
// system prompt and messages.
func NewChatPromptTemplate(text string, engine Engine, config *PromptTemplateConfig) *ChatPromptTemplate {
	t := &ChatPromptTemplate{
		PromptTemplate: NewPromptTemplate(text, engine, config),
		logger:         slog.Default(),
	}
	if sys := t.config.ChatSystemPrompt(); sys != "" {
		t.AddSystemMessage(sys)
	}
	if t.config.Completion != nil {
		for _, m := range t.config.Completion.Messages {
			t.AddMessage(m.Role, m.Content, m.ToolCalls...)
		}
	}
	return t
}

// RestoreChat rebuilds a chat template from dumped messages. When the
// config carries a system prompt it replaces a leading system message.
func RestoreChat(messages []llm.Message, text string, engine Engine, config *PromptTemplateConfig) *ChatPromptTemplate {
	t := NewChatPromptTemplate(text, engine, config)
	sys := t.config.ChatSystemPrompt()
	if sys != "" && len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		if messages[0].Content != sys {
			t.logger.Info("template.chat.system_prompt.override",
				slog.String("old", messages[0].Content),
				slog.String("new", sys),
			)
		}
		messages = messages[1:]
	}
	for _, m := range messages {
		if m.Role == llm.RoleTool && m.ToolCallID != "" {
			t.AddToolMessage(m.ToolCallID, m.Content)
			continue
		}
		t.AddMessage(m.Role, m.Content, m.ToolCalls...)
	}
	return t
}

// SetLogger replaces the logger.
func (t *ChatPromptTemplate) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// AddMessage appends a message to the history.
func (t *ChatPromptTemplate) AddMessage(role llm.Role, content string, toolCalls ...llm.ToolCall) {
	m := &chatMessage{role: role, toolCalls: toolCalls}
	switch role {
	case llm.RoleUser, llm.RoleSystem:
		m.template = NewPromptTemplate(content, t.engine, t.config)
	default:
		m.content = content
		m.rendered = true
	}

	t.mu.Lock()
	t.messages = append(t.messages, m)
	t.mu.Unlock()
}

// AddToolMessage appends the result of the tool call callID.
func (t *ChatPromptTemplate) AddToolMessage(callID, content string) {
	t.mu.Lock()
	t.messages = append(t.messages, &chatMessage{role: llm.RoleTool, content: content, rendered: true, callID: callID})
	t.mu.Unlock()
}

// AddSystemMessage appends a system message.
func (t *ChatPromptTemplate) AddSystemMessage(content string) {
	t.AddMessage(llm.RoleSystem, content)
}

// AddUserMessage appends a user message.
func (t *ChatPromptTemplate) AddUserMessage(content string) {
	t.AddMessage(llm.RoleUser, content)
}

// AddAssistantMessage appends an assistant message.
func (t *ChatPromptTemplate) AddAssistantMessage(content string) {
	t.AddMessage(llm.RoleAssistant, content)
}

// RenderMessages renders the history for a new turn. The raw template is
// appended as a user message when the history is empty or ends with an
// assistant or system message; user and tool messages are answered as is.
// Pending messages are rendered in parallel, each exactly once.
func (t *ChatPromptTemplate) RenderMessages(ctx context.Context, kctx *orchestration.Context) ([]llm.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.messages); n == 0 || t.messages[n-1].role == llm.RoleAssistant || t.messages[n-1].role == llm.RoleSystem {
		t.messages = append(t.messages, &chatMessage{
			role:     llm.RoleUser,
			template: NewPromptTemplate(t.template, t.engine, t.config),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range t.messages {
		if m.rendered {
			continue
		}
		g.Go(func() error {
			out, err := m.template.Render(gctx, kctx)
			if err != nil {
				return err
			}
			m.content = out
			m.rendered = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t.dump(), nil
}

// Messages returns the history. Messages not rendered yet show their
// template text.
func (t *ChatPromptTemplate) Messages() []llm.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dump()
}

func (t *ChatPromptTemplate) dump() []llm.Message {
	out := make([]llm.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.message()
	}
	return out
}

var _ orchestration.ChatRenderer = (*ChatPromptTemplate)(nil)
