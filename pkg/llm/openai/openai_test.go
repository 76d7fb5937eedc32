// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jllopis/semkernel/pkg/llm"
)

func TestDefaults(t *testing.T) {
	p := New()
	if p.model != defaultModel || p.embeddingModel != defaultEmbeddingModel {
		t.Errorf("unexpected defaults %q %q", p.model, p.embeddingModel)
	}
	p = NewWithAPIKey("k", WithModel("qwen-plus"), WithEmbeddingModel("text-embedding-v3"), WithBaseURL("http://localhost:1/v1"))
	if p.model != "qwen-plus" || p.embeddingModel != "text-embedding-v3" {
		t.Errorf("options not applied: %q %q", p.model, p.embeddingModel)
	}
	if len(p.requestOpts) != 2 {
		t.Errorf("expected key and base url request options, got %d", len(p.requestOpts))
	}
}

func TestParams(t *testing.T) {
	p := New(WithModel("gpt-default"))
	params := p.params(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "add 1 and 2"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Function: llm.FunctionCall{Name: "math-add", Arguments: `{"a":"1"}`},
			}}},
			{Role: llm.RoleTool, Content: "3", ToolCallID: "call_1"},
		},
		Tools: []llm.Tool{{Function: llm.FunctionDef{
			Name:       "math-add",
			Parameters: map[string]any{"type": "object"},
		}}},
		MaxTokens: 16,
	})
	if params.Model != "gpt-default" {
		t.Errorf("model = %v", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if a := params.Messages[2].OfAssistant; a == nil || len(a.ToolCalls) != 1 || a.ToolCalls[0].Function.Name != "math-add" {
		t.Errorf("assistant tool call not converted: %+v", params.Messages[2])
	}
	if params.Messages[3].OfTool == nil {
		t.Errorf("tool message not converted")
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Parameters["type"] != "object" {
		t.Errorf("tool not converted: %+v", params.Tools)
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "gpt-test" {
				t.Errorf("unexpected model %v", body["model"])
			}
			if body["stream"] == true {
				writeStream(w)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
				"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Paris"}}],
				"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","model":"e","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
				"usage":{"prompt_tokens":1,"total_tokens":1}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func writeStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	events := []string{
		`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":"Pa"}}]}`,
		`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"ris"}}]}`,
		`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"geo-lookup","arguments":"{\"city\":"}}]}}]}`,
		`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	}
	for _, ev := range events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestChatAndEmbed(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()
	p := NewWithAPIKey("test", WithBaseURL(srv.URL+"/"), WithModel("gpt-test"))

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "capital of France?"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Paris" || resp.Usage.TotalTokens != 4 {
		t.Errorf("unexpected response %+v", resp)
	}

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestChatStream(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()
	p := NewWithAPIKey("test", WithBaseURL(srv.URL+"/"), WithModel("gpt-test"))

	chunks, err := p.ChatStream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "where?"}},
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var text strings.Builder
	var last llm.StreamChunk
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("stream error: %v", c.Error)
		}
		text.WriteString(c.Content)
		last = c
	}
	if text.String() != "Paris" {
		t.Errorf("content = %q", text.String())
	}
	if !last.Done || len(last.ToolCalls) != 1 {
		t.Fatalf("unexpected final chunk %+v", last)
	}
	if call := last.ToolCalls[0]; call.Function.Name != "geo-lookup" || call.Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("tool call not assembled: %+v", call)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", last.Usage)
	}
}
