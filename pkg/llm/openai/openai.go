// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai adapts the OpenAI API, and any server speaking its chat
// completions protocol, to the llm provider interfaces.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/jllopis/semkernel/pkg/llm"
)

const (
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// Provider implements llm.StreamingProvider and llm.Embedder.
type Provider struct {
	client         openai.Client
	model          string
	embeddingModel string
	requestOpts    []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the chat model used when a request names none.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithEmbeddingModel sets the model used by Embed.
func WithEmbeddingModel(model string) Option {
	return func(p *Provider) { p.embeddingModel = model }
}

// WithBaseURL targets a compatible endpoint such as Azure, DashScope or a
// local proxy.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.requestOpts = append(p.requestOpts, option.WithBaseURL(url)) }
}

// WithAPIKey overrides OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) { p.requestOpts = append(p.requestOpts, option.WithAPIKey(apiKey)) }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(p *Provider) { p.requestOpts = append(p.requestOpts, option.WithOrganization(org)) }
}

// New creates a provider. Without WithAPIKey the key comes from
// OPENAI_API_KEY.
func New(opts ...Option) *Provider {
	p := &Provider{model: defaultModel, embeddingModel: defaultEmbeddingModel}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.requestOpts...)
	return p
}

// NewWithAPIKey is New with WithAPIKey applied first.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	return New(append([]Option{WithAPIKey(apiKey)}, opts...)...)
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	return fromCompletion(completion), nil
}

// ChatStream implements llm.StreamingProvider. Content is forwarded as it
// arrives. Tool calls and usage are assembled and sent with the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	params := p.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

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

		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			event := stream.Current()
			acc.AddChunk(event)
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(llm.StreamChunk{Role: llm.RoleAssistant, Content: event.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(llm.StreamChunk{Error: fmt.Errorf("openai stream: %w", err)})
			return
		}

		final := fromCompletion(&acc.ChatCompletion)
		done := llm.StreamChunk{Done: true, ToolCalls: final.ToolCalls}
		if final.Usage.TotalTokens > 0 {
			done.Usage = &final.Usage
		}
		send(done)
	}()
	return chunks, nil
}

// Embed implements llm.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embed: empty response")
	}
	out := make([]float32, 0, len(resp.Data[0].Embedding))
	for _, v := range resp.Data[0].Embedding {
		out = append(out, float32(v))
	}
	return out, nil
}

func (p *Provider) params(req llm.ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{Model: p.model}
	if req.Model != "" {
		params.Model = req.Model
	}
	for _, msg := range req.Messages {
		params.Messages = append(params.Messages, toMessage(msg))
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toTool(tool))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func toMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	case llm.RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content)
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if msg.Content != "" {
			assistant.Content.OfString = param.NewOpt(msg.Content)
		}
		for _, call := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   call.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openai.UserMessage(msg.Content)
	}
}

// toTool passes the JSON schema through a round trip because the SDK types
// parameters as a plain map.
func toTool(tool llm.Tool) openai.ChatCompletionToolParam {
	var schema openai.FunctionParameters
	if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
		_ = json.Unmarshal(raw, &schema)
	}
	def := openai.FunctionDefinitionParam{Name: tool.Function.Name, Parameters: schema}
	if tool.Function.Description != "" {
		def.Description = openai.String(tool.Function.Description)
	}
	return openai.ChatCompletionToolParam{Type: "function", Function: def}
}

func fromCompletion(c *openai.ChatCompletion) *llm.ChatResponse {
	out := &llm.ChatResponse{Usage: llm.Usage{
		PromptTokens:     int(c.Usage.PromptTokens),
		CompletionTokens: int(c.Usage.CompletionTokens),
		TotalTokens:      int(c.Usage.TotalTokens),
	}}
	if len(c.Choices) == 0 {
		return out
	}
	msg := c.Choices[0].Message
	out.Content = msg.Content
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:       call.ID,
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: call.Function.Name, Arguments: call.Function.Arguments},
		})
	}
	return out
}

var (
	_ llm.StreamingProvider = (*Provider)(nil)
	_ llm.Embedder          = (*Provider)(nil)
)
