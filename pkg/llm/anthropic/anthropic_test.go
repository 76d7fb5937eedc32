// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/jllopis/semkernel/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p.model != defaultModel || p.maxTokens != defaultMaxTokens {
		t.Errorf("unexpected defaults %s %d", p.model, p.maxTokens)
	}
}

func TestOptions(t *testing.T) {
	p := NewWithAPIKey("test-key", WithModel("claude-opus-4-20250514"), WithMaxTokens(8192), WithBaseURL("http://localhost:1"))
	if p.model != "claude-opus-4-20250514" {
		t.Errorf("unexpected model %s", p.model)
	}
	if p.maxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", p.maxTokens)
	}
	if len(p.requestOpts) != 2 {
		t.Errorf("expected 2 request options, got %d", len(p.requestOpts))
	}
}

func TestParamsSplitsSystemMessages(t *testing.T) {
	p := New()
	params := p.params(llm.ChatRequest{
		MaxTokens: 100,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	})
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Errorf("expected system prompt to be lifted, got %+v", params.System)
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected 1 conversational message, got %d", len(params.Messages))
	}
	if params.MaxTokens != 100 {
		t.Errorf("expected request max tokens to win, got %d", params.MaxTokens)
	}
}

func TestToMessagesFoldsToolResults(t *testing.T) {
	system, msgs := toMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleSystem, Content: "answer in French"},
		{Role: llm.RoleUser, Content: "time and weather?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "toolu_1", Function: llm.FunctionCall{Name: "time-today", Arguments: `{}`}},
			{ID: "toolu_2", Function: llm.FunctionCall{Name: "weather-now", Arguments: `{"city":"Paris"}`}},
		}},
		{Role: llm.RoleTool, Content: "Monday", ToolCallID: "toolu_1"},
		{Role: llm.RoleTool, Content: "sunny", ToolCallID: "toolu_2"},
		{Role: llm.RoleAssistant, Content: "Lundi, ensoleillé"},
	})
	if system != "be terse\n\nanswer in French" {
		t.Errorf("system = %q", system)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(msgs))
	}
	if got := len(msgs[1].Content); got != 2 {
		t.Errorf("assistant turn should carry two tool uses, got %d blocks", got)
	}
	if got := len(msgs[2].Content); got != 2 {
		t.Errorf("tool results should share one user turn, got %d blocks", got)
	}
	if msgs[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool results must be sent as user, got %s", msgs[2].Role)
	}
}

func TestChatAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "claude-test" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Par"},{"type":"text","text":"is"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewWithAPIKey("test", WithBaseURL(srv.URL), WithModel("claude-test"))
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "capital of France?"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Paris" {
		t.Errorf("expected Paris, got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("expected 7 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestChatStreamAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := [][2]string{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":5,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Par"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"is"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
		}
	}))
	defer srv.Close()

	p := NewWithAPIKey("test", WithBaseURL(srv.URL), WithModel("claude-test"))
	chunks, err := p.ChatStream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "capital of France?"}},
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var text string
	var last llm.StreamChunk
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("stream error: %v", c.Error)
		}
		text += c.Content
		last = c
	}
	if text != "Paris" {
		t.Errorf("expected Paris, got %q", text)
	}
	if !last.Done || last.Usage == nil || last.Usage.TotalTokens != 7 {
		t.Errorf("unexpected final chunk %+v", last)
	}
}
