// Package ollama talks to a local Ollama server for chat, streaming and
// embeddings.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/semkernel/pkg/llm"
)

// DefaultBaseURL is where Ollama listens unless told otherwise.
const DefaultBaseURL = "http://localhost:11434"

// Provider implements llm.StreamingProvider and llm.Embedder.
type Provider struct {
	baseURL        string
	model          string
	embeddingModel string
	client         *http.Client
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

// WithHTTPClient replaces the default client, which times out after two
// minutes.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// New creates a Provider for the server at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:        strings.TrimRight(baseURL, "/"),
		embeddingModel: "nomic-embed-text",
		client:         &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []llm.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []llm.Tool     `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatEvent is a whole reply, or one NDJSON line of a streamed one.
type chatEvent struct {
	Message         llm.Message `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

func (e chatEvent) usage() llm.Usage {
	return llm.Usage{
		PromptTokens:     e.PromptEvalCount,
		CompletionTokens: e.EvalCount,
		TotalTokens:      e.PromptEvalCount + e.EvalCount,
	}
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.post(ctx, "/api/chat", p.chatRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ev chatEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return &llm.ChatResponse{
		Content:   ev.Message.Content,
		ToolCalls: ev.Message.ToolCalls,
		Usage:     ev.usage(),
	}, nil
}

// ChatStream implements llm.StreamingProvider. Ollama sends whole tool
// calls, so they are delivered with the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.post(ctx, "/api/chat", p.chatRequest(req, true))
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()
		send := func(c llm.StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var calls []llm.ToolCall
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var ev chatEvent
			if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
				continue
			}
			if ev.Error != "" {
				send(llm.StreamChunk{Error: fmt.Errorf("ollama stream: %s", ev.Error)})
				return
			}
			if len(ev.Message.ToolCalls) > 0 {
				calls = ev.Message.ToolCalls
			}
			if ev.Done {
				usage := ev.usage()
				send(llm.StreamChunk{Done: true, ToolCalls: calls, Usage: &usage})
				return
			}
			if ev.Message.Content != "" {
				if !send(llm.StreamChunk{Role: llm.RoleAssistant, Content: ev.Message.Content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			send(llm.StreamChunk{Error: fmt.Errorf("ollama stream: %w", err)})
			return
		}
		send(llm.StreamChunk{Error: io.ErrUnexpectedEOF})
	}()
	return chunks, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements llm.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.post(ctx, "/api/embed", embedRequest{Model: p.embeddingModel, Input: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama embedding: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}
	return out.Embeddings[0], nil
}

func (p *Provider) chatRequest(req llm.ChatRequest, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	out := chatRequest{Model: model, Messages: req.Messages, Stream: stream, Tools: req.Tools}

	options := map[string]any{}
	if req.Temperature != 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP != 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	if len(options) > 0 {
		out.Options = options
	}
	return out
}

// post sends body as JSON. Non-200 replies become errors carrying the body.
func (p *Provider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

var (
	_ llm.StreamingProvider = (*Provider)(nil)
	_ llm.Embedder          = (*Provider)(nil)
)
