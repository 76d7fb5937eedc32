// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic adapts the Anthropic Messages API to the llm provider
// interfaces.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jllopis/semkernel/pkg/llm"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// Provider implements llm.StreamingProvider.
type Provider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	requestOpts []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens sets the reply limit for requests without one. The API
// requires a limit on every call.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) { p.maxTokens = tokens }
}

// WithBaseURL targets another endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.requestOpts = append(p.requestOpts, option.WithBaseURL(url)) }
}

// WithAPIKey overrides ANTHROPIC_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.requestOpts = append(p.requestOpts, option.WithAPIKey(apiKey)) }
}

// New creates a provider. Without WithAPIKey the key comes from
// ANTHROPIC_API_KEY.
func New(opts ...Option) *Provider {
	p := &Provider{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(p.requestOpts...)
	return p
}

// NewWithAPIKey is New with WithAPIKey applied first.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append([]Option{WithAPIKey(apiKey)}, opts...)...)
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	return fromMessage(msg), nil
}

// ChatStream implements llm.StreamingProvider. Text deltas are forwarded;
// tool calls and usage come with the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))

	chunks := make(chan llm.StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer stream.Close()
		send := func(c llm.StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				send(llm.StreamChunk{Error: fmt.Errorf("anthropic stream: %w", err)})
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				text, ok := ev.Delta.AsAny().(anthropic.TextDelta)
				if ok && text.Text != "" && !send(llm.StreamChunk{Role: llm.RoleAssistant, Content: text.Text}) {
					return
				}
			case anthropic.MessageStopEvent:
				final := fromMessage(&acc)
				send(llm.StreamChunk{Done: true, ToolCalls: final.ToolCalls, Usage: &final.Usage})
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(llm.StreamChunk{Error: fmt.Errorf("anthropic stream: %w", err)})
		}
	}()
	return chunks, nil
}

func (p *Provider) params(req llm.ChatRequest) anthropic.MessageNewParams {
	system, messages := toMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(p.model),
		MaxTokens:     p.maxTokens,
		Messages:      messages,
		StopSequences: req.Stop,
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toTool(tool))
	}
	return params
}

// toMessages lifts system messages into one prompt and folds consecutive
// tool results into a single user turn, as the API expects after a turn
// with parallel tool calls.
func toMessages(in []llm.Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(in))
	lastWasTool := false

	for _, msg := range in {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
			continue
		case llm.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			if lastWasTool {
				last := &out[len(out)-1]
				last.Content = append(last.Content, block)
			} else {
				out = append(out, anthropic.NewUserMessage(block))
			}
			lastWasTool = true
			continue
		case llm.RoleAssistant:
			out = append(out, toAssistant(msg))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
		lastWasTool = false
	}
	return strings.Join(system, "\n\n"), out
}

func toAssistant(msg llm.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		input := map[string]any{}
		_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
	}
	return anthropic.NewAssistantMessage(blocks...)
}

func toTool(tool llm.Tool) anthropic.ToolUnionParam {
	var schema anthropic.ToolInputSchemaParam
	if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
		_ = json.Unmarshal(raw, &schema)
	}
	param := &anthropic.ToolParam{Name: tool.Function.Name, InputSchema: schema}
	if tool.Function.Description != "" {
		param.Description = anthropic.String(tool.Function.Description)
	}
	return anthropic.ToolUnionParam{OfTool: param}
}

func fromMessage(msg *anthropic.Message) *llm.ChatResponse {
	out := &llm.ChatResponse{Usage: llm.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:       block.ID,
				Type:     llm.ToolTypeFunction,
				Function: llm.FunctionCall{Name: block.Name, Arguments: string(args)},
			})
		}
	}
	out.Content = text.String()
	return out
}

var _ llm.StreamingProvider = (*Provider)(nil)
