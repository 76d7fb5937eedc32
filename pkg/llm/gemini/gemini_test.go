package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/jllopis/semkernel/pkg/llm"
)

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleUser, Content: "Add 1 and 2"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID:       "math-add",
			Function: llm.FunctionCall{Name: "math-add", Arguments: `{"a":"1","b":"2"}`},
		}}},
		{Role: llm.RoleTool, Content: "3", ToolCallID: "math-add"},
	})

	if system != "You are helpful" {
		t.Errorf("unexpected system instruction %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if call := contents[1].Parts[0].FunctionCall; call == nil || call.Args["b"] != "2" {
		t.Errorf("unexpected function call part: %+v", contents[1].Parts[0])
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "math-add" {
		t.Fatalf("unexpected function response: %+v", contents[2].Parts[0])
	}
	// 3 is valid JSON but not an object.
	if resp.Response["result"] != "3" {
		t.Errorf("expected wrapped result, got %v", resp.Response)
	}
}

func TestConvertTools(t *testing.T) {
	decls := convertTools([]llm.Tool{{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        "weather-today",
			Description: "Weather for a city",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
			},
		},
	}})
	if len(decls) != 1 || decls[0].Name != "weather-today" {
		t.Fatalf("unexpected declarations: %+v", decls)
	}
	if decls[0].Parameters == nil || decls[0].Parameters.Properties["city"] == nil {
		t.Fatalf("parameters not converted: %+v", decls[0].Parameters)
	}
}

func TestConvertResponse(t *testing.T) {
	resp := convertResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Hello "},
				{Text: "there"},
				{FunctionCall: &genai.FunctionCall{Name: "time-now", Args: map[string]any{}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5,
		},
	})
	if resp.Content != "Hello there" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "time-now" {
		t.Errorf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if got := convertResponse(nil); got.Content != "" {
		t.Errorf("expected empty response")
	}
}

func TestChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "pong"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 1, "totalTokenCount": 5}
		}`)
	}))
	defer srv.Close()

	p, err := New(context.Background(), WithAPIKey("test"), WithBaseURL(srv.URL), WithModel("gemini-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := llm.NewClient(p, "").CompleteChat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "ping"},
	}, nil)
	if err != nil {
		t.Fatalf("CompleteChat: %v", err)
	}
	if resp.Content != "pong" || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Errorf("system instruction not sent: %v", body)
	}
}
