// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini chat, streaming and embedding
// client.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/jllopis/semkernel/pkg/llm"
)

// Provider implements llm.StreamingProvider and llm.Embedder for the Gemini
// API.
type Provider struct {
	client         *genai.Client
	model          string
	embeddingModel string
	config         genai.ClientConfig
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithEmbeddingModel sets the model used by Embed.
func WithEmbeddingModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

// WithAPIKey sets the API key. GOOGLE_API_KEY or GEMINI_API_KEY is used
// otherwise.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.config.APIKey = key }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.config.HTTPOptions.BaseURL = url }
}

// New creates a Gemini provider.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		model:          "gemini-2.5-flash",
		embeddingModel: "text-embedding-004",
		config:         genai.ClientConfig{Backend: genai.BackendGeminiAPI},
	}
	for _, opt := range opts {
		opt(p)
	}
	client, err := genai.NewClient(ctx, &p.config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, config := p.request(req)
	resp, err := p.client.Models.GenerateContent(ctx, p.modelFor(req), contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return convertResponse(resp), nil
}

// ChatStream implements llm.StreamingProvider.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	contents, config := p.request(req)
	chunks := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunks)
		send := func(c llm.StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *llm.Usage
		var calls []llm.ToolCall
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.modelFor(req), contents, config) {
			if err != nil {
				send(llm.StreamChunk{Error: fmt.Errorf("gemini stream failed: %w", err)})
				return
			}
			part := convertResponse(resp)
			if resp.UsageMetadata != nil {
				usage = &part.Usage
			}
			calls = append(calls, part.ToolCalls...)
			if part.Content == "" {
				continue
			}
			if !send(llm.StreamChunk{Role: llm.RoleAssistant, Content: part.Content}) {
				return
			}
		}
		send(llm.StreamChunk{Done: true, ToolCalls: calls, Usage: usage})
	}()

	return chunks, nil
}

// Embed implements llm.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: text}},
	}}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embed returned no embedding")
	}
	return resp.Embeddings[0].Values, nil
}

func (p *Provider) modelFor(req llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *Provider) request(req llm.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, system := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{StopSequences: req.Stop}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.TopP > 0 {
		v := float32(req.TopP)
		config.TopP = &v
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(req.Tools)}}
	}
	return contents, config
}

// convertMessages splits off the system prompt. Gemini keys function
// responses by function name, which the tool call id carries.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = msg.Content
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			contents = append(contents, content)
		case llm.RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: msg.ToolCallID, Response: result},
				}},
			})
		}
	}
	return contents, system
}

func convertTools(tools []llm.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema *genai.Schema
		if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
			_ = json.Unmarshal(raw, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{}
	if resp == nil {
		return out
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		out.Content += part.Text
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:   part.FunctionCall.Name,
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return out
}

var (
	_ llm.StreamingProvider = (*Provider)(nil)
	_ llm.Embedder          = (*Provider)(nil)
)
