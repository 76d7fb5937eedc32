package template

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

type lookup map[string]*orchestration.Function

func (l lookup) Function(skill, name string) (*orchestration.Function, error) {
	if fn, ok := l[skill+"."+name]; ok {
		return fn, nil
	}
	return nil, kerrors.New(kerrors.CodeFunctionNotAvailable, skill+"."+name, nil)
}

func (l lookup) HasFunction(skill, name string) bool {
	_, ok := l[skill+"."+name]
	return ok
}

func (l lookup) Functions() []*orchestration.Function { return nil }

func (l lookup) View(bool, bool) orchestration.FunctionsView { return orchestration.NewFunctionsView() }

func newContext(t *testing.T, input string, vars map[string]string, fns lookup) *orchestration.Context {
	t.Helper()
	v := orchestration.NewVariables(input)
	for k, val := range vars {
		require.NoError(t, v.Set(k, val))
	}
	return orchestration.NewContext(v, nil, fns)
}

func TestEngineRenderVariables(t *testing.T) {
	e := NewEngine(nil)
	kctx := newContext(t, "Paris", map[string]string{"Lang": "French"}, nil)

	out, err := e.Render(context.Background(), "Say {{$input}} in {{ $lang }}.{{$missing}}", kctx)
	require.NoError(t, err)
	assert.Equal(t, "Say Paris in French.", out)
}

func TestEngineRenderFunctionCalls(t *testing.T) {
	upper, err := orchestration.NewNativeFunction("text", orchestration.NativeDefinition{Name: "upper", Fn: strings.ToUpper})
	require.NoError(t, err)
	fns := lookup{"text.upper": upper}
	e := NewEngine(nil)
	kctx := newContext(t, "abc", map[string]string{"name": "bob"}, fns)

	tests := []struct {
		text string
		want string
	}{
		{text: "{{text.upper}}", want: "ABC"},
		{text: "hi {{text.upper $name}}!", want: "hi BOB!"},
		{text: "{{text.upper 'quoted value'}}", want: "QUOTED VALUE"},
		{text: `{{text.upper "dq"}}`, want: "DQ"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			out, err := e.Render(context.Background(), tt.text, kctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
	assert.Equal(t, "abc", kctx.Result(), "function blocks must not change the caller context")
}

func TestEngineRenderErrors(t *testing.T) {
	e := NewEngine(nil)
	kctx := newContext(t, "", nil, lookup{})

	_, err := e.Render(context.Background(), "{{nope.fn}}", kctx)
	assert.True(t, kerrors.Is(err, kerrors.CodeFunctionNotAvailable))

	_, err = e.Render(context.Background(), "{{a.b.c}}", kctx)
	assert.True(t, kerrors.Is(err, kerrors.CodeInvalidInput))

	_, err = e.Render(context.Background(), "{{fn 'open}}", kctx)
	assert.True(t, kerrors.Is(err, kerrors.CodeInvalidInput))
}

func TestEngineUnclosedBlockIsText(t *testing.T) {
	out, err := NewEngine(nil).Render(context.Background(), "a {{ b", newContext(t, "", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "a {{ b", out)
}

func TestPromptTemplateParameters(t *testing.T) {
	cfg := NewConfig()
	cfg.Parameters = []orchestration.ParameterView{{Name: "input", Description: "The input", DefaultValue: "x"}}
	tmpl := NewPromptTemplate("{{$input}} {{$city}} {{text.upper $Lang}} {{$city}}", nil, cfg)

	params := tmpl.Parameters()
	require.Len(t, params, 3)
	assert.Equal(t, "input", params[0].Name)
	assert.Equal(t, "The input", params[0].Description)
	assert.Equal(t, "city", params[1].Name)
	assert.Equal(t, "lang", params[2].Name)
}

func TestParseConfigJSON(t *testing.T) {
	data := []byte(`{
		"schema": 1,
		"type": "completion",
		"description": "Summarize text",
		"completion": {"max_tokens": 256, "temperature": 0.2, "stop_sequences": ["###"], "chat_system_prompt": "Be brief", "seed": 7},
		"default_services": ["gpt"],
		"parameters": [{"name": "input", "description": "Text", "defaultValue": ""}]
	}`)
	cfg, err := ParseConfigJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "Summarize text", cfg.Description)
	assert.Equal(t, 256, cfg.Completion.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, []string{"###"}, cfg.Completion.StopSequences)
	assert.Equal(t, "Be brief", cfg.ChatSystemPrompt())
	assert.EqualValues(t, 7, cfg.Completion.Extension["seed"])
	assert.Equal(t, []string{"gpt"}, cfg.DefaultServices)
	require.Len(t, cfg.Parameters, 1)
}

func TestParseConfigYAML(t *testing.T) {
	data := []byte(`
description: Translate
completion:
  max_tokens: 100
  messages:
    - role: user
      content: hello
input:
  parameters:
    - name: lang
      description: Target language
      defaultValue: French
`)
	cfg, err := ParseConfigYAML(data)
	require.NoError(t, err)
	assert.Equal(t, TypeCompletion, cfg.Type)
	assert.Equal(t, 100, cfg.Completion.MaxTokens)
	require.Len(t, cfg.Completion.Messages, 1)
	assert.Equal(t, llm.RoleUser, cfg.Completion.Messages[0].Role)
	require.Len(t, cfg.Parameters, 1)
	assert.Equal(t, "French", cfg.Parameters[0].DefaultValue)
}

func TestParseConfigMissingParameterFields(t *testing.T) {
	tests := map[string]string{
		"no name":        `{"parameters":[{"description":"d","defaultValue":""}]}`,
		"no description": `{"parameters":[{"name":"a","defaultValue":""}]}`,
		"no default":     `{"parameters":[{"name":"a","description":"d"}]}`,
		"bad json":       `{`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfigJSON([]byte(doc))
			require.Error(t, err)
			assert.True(t, kerrors.Is(err, kerrors.CodeConfiguration))
		})
	}
}

func TestChatRenderAppendsTemplateAsUser(t *testing.T) {
	cfg := NewConfig()
	cfg.Completion.ChatSystemPrompt = "S"
	chat := NewChatPromptTemplate("Hello {{$input}}", nil, cfg)

	msgs, err := chat.RenderMessages(context.Background(), newContext(t, "Ann", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "S"},
		{Role: llm.RoleUser, Content: "Hello Ann"},
	}, msgs)

	// A trailing user message suppresses the automatic append.
	chat.AddUserMessage("Again {{$input}}")
	msgs, err = chat.RenderMessages(context.Background(), newContext(t, "Bob", nil, nil))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hello Ann", msgs[1].Content, "rendered messages are not rendered again")
	assert.Equal(t, "Again Bob", msgs[2].Content)
}

func TestChatMessagesRenderOnce(t *testing.T) {
	var calls atomic.Int32
	counter, err := orchestration.NewNativeFunction("c", orchestration.NativeDefinition{Name: "count", Fn: func() string {
		calls.Add(1)
		return "n"
	}})
	require.NoError(t, err)
	kctx := newContext(t, "", nil, lookup{"c.count": counter})

	chat := NewChatPromptTemplate("{{c.count}}", nil, nil)
	chat.AddSystemMessage("{{c.count}}")
	chat.AddUserMessage("{{c.count}}")

	_, err = chat.RenderMessages(context.Background(), kctx)
	require.NoError(t, err)
	_, err = chat.RenderMessages(context.Background(), kctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestChatRoundTrip(t *testing.T) {
	chat := NewChatPromptTemplate("ignored", nil, nil)
	chat.AddSystemMessage("S")
	chat.AddUserMessage("U")
	_, err := chat.RenderMessages(context.Background(), newContext(t, "", nil, nil))
	require.NoError(t, err)
	chat.AddAssistantMessage("R")

	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "S"},
		{Role: llm.RoleUser, Content: "U"},
		{Role: llm.RoleAssistant, Content: "R"},
	}
	assert.Equal(t, want, chat.Messages())

	restored := RestoreChat(chat.Messages(), "ignored", nil, nil)
	assert.Equal(t, want, restored.Messages())
}

func TestRestoreChatSystemPromptOverride(t *testing.T) {
	cfg := NewConfig()
	cfg.Completion.ChatSystemPrompt = "new system"
	dumped := []llm.Message{
		{Role: llm.RoleSystem, Content: "old system"},
		{Role: llm.RoleUser, Content: "U"},
	}
	restored := RestoreChat(dumped, "t", nil, cfg)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "new system"},
		{Role: llm.RoleUser, Content: "U"},
	}, restored.Messages())
}

func TestChatTemplateDrivesSemanticFunction(t *testing.T) {
	provider := &llm.MockProvider{Response: "Bonjour"}
	chat := NewChatPromptTemplate("Translate {{$input}}", nil, nil)
	fn, err := orchestration.NewSemanticFunction("lang", orchestration.SemanticDefinition{Name: "translate", Template: chat})
	require.NoError(t, err)
	require.NoError(t, fn.SetChatService(llm.NewClient(provider, "m")))

	kctx, err := fn.Invoke(context.Background(), orchestration.WithInput("Hello"))
	require.NoError(t, err)
	require.False(t, kctx.ErrorOccurred())
	assert.Equal(t, "Bonjour", kctx.Result())
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "Translate Hello"},
		{Role: llm.RoleAssistant, Content: "Bonjour"},
	}, chat.Messages())
}

func TestChatToolMessageIsNotFollowedByTemplate(t *testing.T) {
	chat := NewChatPromptTemplate("Ask {{$input}}", nil, nil)
	kctx := newContext(t, "x", nil, nil)
	_, err := chat.RenderMessages(context.Background(), kctx)
	require.NoError(t, err)

	call := llm.ToolCall{ID: "call_1", Type: llm.ToolTypeFunction, Function: llm.FunctionCall{Name: "time-now"}}
	chat.AddMessage(llm.RoleAssistant, "", call)
	chat.AddToolMessage("call_1", "12:00")

	msgs, err := chat.RenderMessages(context.Background(), kctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, Content: "12:00", ToolCallID: "call_1"}, msgs[2])

	restored := RestoreChat(chat.Messages(), "Ask {{$input}}", nil, nil)
	assert.Equal(t, chat.Messages(), restored.Messages())
}
