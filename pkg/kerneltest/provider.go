// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package kerneltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// ScenarioProvider is an llm.Provider that answers from a script and
// records every request.
type ScenarioProvider struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	next      int
	requests  []llm.ChatRequest
	fallback  error
}

// ScriptedResponse is one scripted reply.
type ScriptedResponse struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
	Usage     llm.Usage
	// When, if set, must accept the request for this reply to be used.
	// Rejected replies are dropped.
	When func(req llm.ChatRequest) bool
}

// NewScenarioProvider returns a provider replying with responses in order.
func NewScenarioProvider(responses ...string) *ScenarioProvider {
	p := &ScenarioProvider{}
	for _, r := range responses {
		p.AddResponse(r)
	}
	return p
}

// AddResponse queues a text reply.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddToolCallResponse queues a reply asking for tool calls.
func (p *ScenarioProvider) AddToolCallResponse(calls ...llm.ToolCall) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{ToolCalls: calls})
}

// AddErrorResponse queues a provider failure.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Err: err})
}

// AddScriptedResponse queues resp.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WhenExhausted sets the error returned once the script is used up.
func (p *ScenarioProvider) WhenExhausted(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = err
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	for p.next < len(p.responses) {
		resp := p.responses[p.next]
		p.next++
		if resp.When != nil && !resp.When(req) {
			continue
		}
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &llm.ChatResponse{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: resp.Usage}, nil
	}
	if p.fallback != nil {
		return nil, p.fallback
	}
	return nil, fmt.Errorf("no scripted response left for call %d", len(p.requests))
}

// Requests returns a copy of the recorded requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Prompts returns the last message of every recorded request.
func (p *ScenarioProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, req := range p.requests {
		if n := len(req.Messages); n > 0 {
			out = append(out, req.Messages[n-1].Content)
		}
	}
	return out
}

// CallCount returns the number of Chat calls.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reset rewinds the script and forgets the requests.
func (p *ScenarioProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = 0
	p.requests = nil
}

// ToolCallBuilder builds the tool call a model would make for a kernel
// function.
type ToolCallBuilder struct {
	id   string
	name string
	args map[string]any
}

// NewToolCall targets skill.function.
func NewToolCall(skill, function string) *ToolCallBuilder {
	view := orchestration.FunctionView{SkillName: skill, Name: function}
	return &ToolCallBuilder{name: view.ToolName(), args: make(map[string]any)}
}

// WithID sets the call id.
func (b *ToolCallBuilder) WithID(id string) *ToolCallBuilder {
	b.id = id
	return b
}

// WithArg adds an argument.
func (b *ToolCallBuilder) WithArg(key string, value any) *ToolCallBuilder {
	b.args[key] = value
	return b
}

// Build returns the call.
func (b *ToolCallBuilder) Build() llm.ToolCall {
	args, _ := json.Marshal(b.args)
	return llm.ToolCall{
		ID:   b.id,
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{
			Name:      b.name,
			Arguments: string(args),
		},
	}
}
