package llm

import (
	"context"
	"fmt"
)

// Client adapts a chat Provider to the TextCompletion and ChatCompletion
// capabilities. Providers without native streaming are streamed as a single
// chunk.
type Client struct {
	provider Provider
	model    string
}

// NewClient wraps provider, sending model unless settings override it.
func NewClient(provider Provider, model string) *Client {
	return &Client{provider: provider, model: model}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string, settings *RequestSettings) (string, error) {
	resp, err := c.CompleteChat(ctx, promptMessages(prompt, settings), settings)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// CompleteStream streams the completion of prompt.
func (c *Client) CompleteStream(ctx context.Context, prompt string, settings *RequestSettings) (<-chan StreamChunk, error) {
	return c.CompleteChatStream(ctx, promptMessages(prompt, settings), settings)
}

// CompleteChat sends messages to the provider.
func (c *Client) CompleteChat(ctx context.Context, messages []Message, settings *RequestSettings) (*ChatResponse, error) {
	resp, err := c.provider.Chat(ctx, settings.ChatRequest(c.model, messages))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return resp, nil
}

// CompleteChatStream streams the reply to messages.
func (c *Client) CompleteChatStream(ctx context.Context, messages []Message, settings *RequestSettings) (<-chan StreamChunk, error) {
	req := settings.ChatRequest(c.model, messages)
	if sp, ok := c.provider.(StreamingProvider); ok {
		return sp.ChatStream(ctx, req)
	}

	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	chunks := make(chan StreamChunk, 2)
	chunks <- StreamChunk{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls, ToolMessage: resp.ToolMessage}
	usage := resp.Usage
	chunks <- StreamChunk{Done: true, Usage: &usage}
	close(chunks)
	return chunks, nil
}

func promptMessages(prompt string, settings *RequestSettings) []Message {
	var msgs []Message
	if settings != nil && settings.ChatSystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: settings.ChatSystemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

var (
	_ TextCompletion = (*Client)(nil)
	_ ChatCompletion = (*Client)(nil)
)
