package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/memory"
)

// Kind tags a Function as native or semantic.
type Kind int

const (
	// KindNative functions run Go code.
	KindNative Kind = iota
	// KindSemantic functions render a prompt and call an AI client.
	KindSemantic
)

func (k Kind) String() string {
	if k == KindSemantic {
		return "semantic"
	}
	return "native"
}

// PromptRenderer renders a prompt template against a Context.
type PromptRenderer interface {
	Render(ctx context.Context, kctx *Context) (string, error)
}

// ChatRenderer is a PromptRenderer that keeps a chat history. Semantic
// functions built on a ChatRenderer use the chat client.
type ChatRenderer interface {
	PromptRenderer
	RenderMessages(ctx context.Context, kctx *Context) ([]llm.Message, error)
	AddMessage(role llm.Role, content string, toolCalls ...llm.ToolCall)
}

// NativeDefinition describes a Go function to expose as a kernel function.
//
// Fn may take, in this order, an optional context.Context followed by any
// of *Context and string (the input variable). It may return nothing, a
// string (written to input) or a *Context (replacing the current one),
// optionally followed by an error.
type NativeDefinition struct {
	Name        string
	Description string
	Input       *ParameterView
	Parameters  []ParameterView
	Fn          any
}

// SemanticDefinition describes a prompt-backed function.
type SemanticDefinition struct {
	Name        string
	Description string
	Parameters  []ParameterView
	Template    PromptRenderer
}

var tracer = otel.Tracer("semkernel/orchestration")

// Function is a native or semantic unit of work sharing one invocation
// contract.
type Function struct {
	kind        Kind
	name        string
	skillName   string
	description string
	parameters  []ParameterView
	skills      FunctionLookup
	logger      *slog.Logger

	// native
	fn    reflect.Value
	shape nativeShape

	// semantic
	template   PromptRenderer
	chat       ChatRenderer
	textClient llm.TextCompletion
	chatClient llm.ChatCompletion
	settings   *llm.RequestSettings
}

// NewNativeFunction builds a native function in skill. The shape of def.Fn
// is checked here and never again.
func NewNativeFunction(skill string, def NativeDefinition) (*Function, error) {
	if def.Fn == nil {
		return nil, kerrors.New(kerrors.CodeInvalidFunctionType, fmt.Sprintf("native function %q has no implementation", def.Name), nil)
	}
	fnValue := reflect.ValueOf(def.Fn)
	shape, err := inferShape(fnValue.Type())
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidFunctionType, fmt.Sprintf("native function %q", def.Name), err)
	}

	params := make([]ParameterView, 0, len(def.Parameters)+1)
	if def.Input != nil {
		in := *def.Input
		in.Name = MainKey
		params = append(params, in)
	}
	params = append(params, def.Parameters...)

	return &Function{
		kind:        KindNative,
		name:        def.Name,
		skillName:   normalizeSkill(skill),
		description: def.Description,
		parameters:  params,
		fn:          fnValue,
		shape:       shape,
		logger:      slog.Default(),
	}, nil
}

// NewSemanticFunction builds a semantic function in skill. It is not
// callable until a client is attached with SetAIService or SetChatService.
func NewSemanticFunction(skill string, def SemanticDefinition) (*Function, error) {
	if def.Template == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("semantic function %q has no prompt template", def.Name), nil)
	}
	f := &Function{
		kind:        KindSemantic,
		name:        def.Name,
		skillName:   normalizeSkill(skill),
		description: def.Description,
		parameters:  append([]ParameterView(nil), def.Parameters...),
		template:    def.Template,
		settings:    &llm.RequestSettings{},
		logger:      slog.Default(),
	}
	if chat, ok := def.Template.(ChatRenderer); ok {
		f.chat = chat
	}
	return f, nil
}

func normalizeSkill(skill string) string {
	if skill == "" {
		return GlobalSkill
	}
	return skill
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// SkillName returns the skill the function belongs to.
func (f *Function) SkillName() string { return f.skillName }

// Description returns the human description.
func (f *Function) Description() string { return f.description }

// Kind returns the function kind.
func (f *Function) Kind() Kind { return f.kind }

// IsSemantic reports whether the function is prompt-backed.
func (f *Function) IsSemantic() bool { return f.kind == KindSemantic }

// IsNative reports whether the function runs Go code.
func (f *Function) IsNative() bool { return f.kind == KindNative }

// IsChat reports whether a semantic function keeps a chat history.
func (f *Function) IsChat() bool { return f.chat != nil }

// Parameters returns the declared parameters.
func (f *Function) Parameters() []ParameterView {
	return append([]ParameterView(nil), f.parameters...)
}

// RequestSettings returns the settings bound to a semantic function.
func (f *Function) RequestSettings() *llm.RequestSettings { return f.settings }

// Template returns the prompt template of a semantic function.
func (f *Function) Template() PromptRenderer { return f.template }

// Describe returns the function view.
func (f *Function) Describe() FunctionView {
	return FunctionView{
		Name:        f.name,
		SkillName:   f.skillName,
		Description: f.description,
		IsSemantic:  f.IsSemantic(),
		IsAsync:     true,
		Parameters:  f.Parameters(),
	}
}

// SetLogger sets the logger used for invocation diagnostics.
func (f *Function) SetLogger(logger *slog.Logger) *Function {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// SetDefaultSkillCollection injects the registry view used when a Context
// carries none.
func (f *Function) SetDefaultSkillCollection(skills FunctionLookup) *Function {
	f.skills = skills
	return f
}

// SetAIService attaches the text completion client.
func (f *Function) SetAIService(client llm.TextCompletion) error {
	if err := f.verifySemantic("SetAIService"); err != nil {
		return err
	}
	if client == nil {
		return kerrors.New(kerrors.CodeConfiguration, "text completion client cannot be nil", nil)
	}
	f.textClient = client
	return nil
}

// SetChatService attaches the chat completion client.
func (f *Function) SetChatService(client llm.ChatCompletion) error {
	if err := f.verifySemantic("SetChatService"); err != nil {
		return err
	}
	if client == nil {
		return kerrors.New(kerrors.CodeConfiguration, "chat completion client cannot be nil", nil)
	}
	f.chatClient = client
	return nil
}

// SetAIConfiguration replaces the request settings.
func (f *Function) SetAIConfiguration(settings *llm.RequestSettings) error {
	if err := f.verifySemantic("SetAIConfiguration"); err != nil {
		return err
	}
	f.settings = settings.Clone()
	return nil
}

// SetChatConfiguration replaces the request settings of a chat function.
func (f *Function) SetChatConfiguration(settings *llm.RequestSettings) error {
	return f.SetAIConfiguration(settings)
}

func (f *Function) verifySemantic(op string) error {
	if f.kind != KindSemantic {
		return kerrors.New(kerrors.CodeInvalidFunctionType,
			fmt.Sprintf("%s is only available on semantic functions, %s is native", op, f.qualifiedName()), nil)
	}
	return nil
}

func (f *Function) qualifiedName() string {
	return f.Describe().FullyQualifiedName()
}

// bound reports whether a semantic function has the client its template
// needs.
func (f *Function) bound() error {
	if f.chat != nil && f.chatClient != nil {
		return nil
	}
	if f.chat == nil && f.textClient != nil {
		return nil
	}
	return kerrors.New(kerrors.CodeConfiguration,
		fmt.Sprintf("AI LLM service is not set for semantic function %s", f.qualifiedName()), nil)
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	kctx      *Context
	variables *Variables
	input     *string
	memory    memory.SemanticTextMemory
	settings  *llm.RequestSettings
}

// WithContext runs the function against an existing Context.
func WithContext(kctx *Context) InvokeOption {
	return func(o *invokeOptions) { o.kctx = kctx }
}

// WithVariables seeds a new Context, or fills gaps in the one passed with
// WithContext.
func WithVariables(v *Variables) InvokeOption {
	return func(o *invokeOptions) { o.variables = v }
}

// WithInput sets the input variable before invocation.
func WithInput(input string) InvokeOption {
	return func(o *invokeOptions) { o.input = &input }
}

// WithMemory sets the semantic memory of the Context.
func WithMemory(mem memory.SemanticTextMemory) InvokeOption {
	return func(o *invokeOptions) { o.memory = mem }
}

// WithSettings overrides the bound request settings for this call.
func WithSettings(s *llm.RequestSettings) InvokeOption {
	return func(o *invokeOptions) { o.settings = s }
}

func (f *Function) prepare(opts []InvokeOption) (*Context, *llm.RequestSettings) {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}

	kctx := o.kctx
	if kctx == nil {
		vars := o.variables
		if vars == nil {
			vars = NewVariables("")
		}
		kctx = NewContext(vars, o.memory, f.skills)
	} else {
		kctx.Variables.Merge(o.variables, false)
		if o.memory != nil {
			kctx.SetMemory(o.memory)
		}
	}
	if o.input != nil {
		kctx.Variables.Update(*o.input)
	}
	if kctx.Skills() == nil {
		kctx.SetSkills(f.skills)
	}

	settings := o.settings
	if settings == nil {
		settings = f.settings
	}
	return kctx, settings
}

// Invoke runs the function and returns the resulting Context.
//
// Semantic faults are recorded on the Context and a nil error is returned.
// Native faults are recorded on the Context and also returned as a
// CodeInvocation error wrapping the original fault.
func (f *Function) Invoke(ctx context.Context, opts ...InvokeOption) (*Context, error) {
	kctx, settings := f.prepare(opts)
	if f.kind == KindSemantic {
		return f.invokeSemantic(ctx, kctx, settings), nil
	}
	return f.invokeNative(ctx, kctx)
}

func (f *Function) invokeNative(ctx context.Context, kctx *Context) (*Context, error) {
	out, err := f.callNative(ctx, kctx)
	if err != nil {
		kctx.Fail(err.Error(), err)
		f.logger.Error("function.native.failed",
			slog.String("function", f.qualifiedName()),
			slog.String("error", err.Error()),
		)
		return kctx, kerrors.New(kerrors.CodeInvocation,
			fmt.Sprintf("function %s failed", f.qualifiedName()), err)
	}
	return out, nil
}

func (f *Function) invokeSemantic(ctx context.Context, kctx *Context, settings *llm.RequestSettings) *Context {
	ctx, span := tracer.Start(ctx, "Function.Semantic",
		trace.WithAttributes(
			attribute.String("semkernel.skill", f.skillName),
			attribute.String("semkernel.function", f.name),
			attribute.Bool("semkernel.chat", f.chat != nil),
		),
	)
	defer span.End()

	if err := f.bound(); err != nil {
		f.fail(span, kctx, err)
		return kctx
	}

	if f.chat == nil {
		prompt, err := f.template.Render(ctx, kctx)
		if err != nil {
			f.fail(span, kctx, err)
			return kctx
		}
		completion, err := f.textClient.Complete(ctx, prompt, settings)
		if err != nil {
			f.fail(span, kctx, err)
			return kctx
		}
		kctx.Variables.Update(completion)
		return kctx
	}

	messages, err := f.chat.RenderMessages(ctx, kctx)
	if err != nil {
		f.fail(span, kctx, err)
		return kctx
	}
	resp, err := f.chatClient.CompleteChat(ctx, messages, settings)
	if err != nil {
		f.fail(span, kctx, err)
		return kctx
	}
	f.recordReply(kctx, resp.Content, resp.ToolMessage, resp.ToolCalls)
	return kctx
}

// recordReply appends a chat reply to the history and the Context. Tool
// calls are stashed for the caller and never executed here.
func (f *Function) recordReply(kctx *Context, content, toolMessage string, toolCalls []llm.ToolCall) {
	if toolMessage != "" {
		kctx.SetObject(ObjectToolMessage, toolMessage)
		f.chat.AddMessage(llm.RoleTool, toolMessage)
	}
	f.chat.AddMessage(llm.RoleAssistant, content, toolCalls...)
	kctx.Variables.Update(content)
	if len(toolCalls) > 0 {
		kctx.SetObject(ObjectFunctionCall, toolCalls)
	}
}

func (f *Function) fail(span trace.Span, kctx *Context, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	kctx.Fail(err.Error(), err)
	f.logger.Error("function.semantic.failed",
		slog.String("function", f.qualifiedName()),
		slog.String("error", err.Error()),
	)
}

// InvokeStream runs the function and streams its output. The Context is
// updated before the final chunk is delivered, so a consumer that drains
// the channel sees the complete result in it. A fault marks the Context
// failed and arrives as a last chunk whose Error is a CodeInvocation
// error; chunks already delivered stay delivered. A chat function stores
// tool output carried by the chunks under ObjectToolMessage, as Invoke does.
//
// The returned error is set only when the function cannot start, such as a
// semantic function with no client attached.
func (f *Function) InvokeStream(ctx context.Context, opts ...InvokeOption) (*Context, <-chan llm.StreamChunk, error) {
	kctx, settings := f.prepare(opts)

	if f.kind == KindSemantic {
		if err := f.bound(); err != nil {
			kctx.Fail(err.Error(), err)
			return kctx, nil, f.streamFault(err)
		}
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		if f.kind == KindNative {
			f.streamNative(ctx, kctx, out)
			return
		}
		f.streamSemantic(ctx, kctx, settings, out)
	}()
	return kctx, out, nil
}

func (f *Function) streamFault(err error) error {
	return kerrors.New(kerrors.CodeInvocation, "error occurred while invoking stream function", err).
		WithAttribute("function", f.qualifiedName())
}

func (f *Function) streamNative(ctx context.Context, kctx *Context, out chan<- llm.StreamChunk) {
	result, err := f.callNative(ctx, kctx)
	if err != nil {
		kctx.Fail(err.Error(), err)
		send(ctx, out, llm.StreamChunk{Error: f.streamFault(err)})
		return
	}
	if result != kctx {
		// Context switching is not observable by a stream consumer holding
		// the original Context, so the outcome is copied back.
		kctx.Variables.Merge(result.Variables, true)
	}
	if !send(ctx, out, llm.StreamChunk{Role: llm.RoleAssistant, Content: kctx.Result()}) {
		return
	}
	send(ctx, out, llm.StreamChunk{Done: true})
}

func (f *Function) streamSemantic(ctx context.Context, kctx *Context, settings *llm.RequestSettings, out chan<- llm.StreamChunk) {
	ctx, span := tracer.Start(ctx, "Function.Semantic",
		trace.WithAttributes(
			attribute.String("semkernel.skill", f.skillName),
			attribute.String("semkernel.function", f.name),
			attribute.Bool("semkernel.chat", f.chat != nil),
			attribute.Bool("semkernel.stream", true),
		),
	)
	defer span.End()

	abort := func(err error) {
		f.fail(span, kctx, err)
		send(ctx, out, llm.StreamChunk{Error: f.streamFault(err)})
	}

	var (
		source <-chan llm.StreamChunk
		err    error
	)
	if f.chat != nil {
		var messages []llm.Message
		messages, err = f.chat.RenderMessages(ctx, kctx)
		if err != nil {
			abort(err)
			return
		}
		source, err = f.chatClient.CompleteChatStream(ctx, messages, settings)
	} else {
		var prompt string
		prompt, err = f.template.Render(ctx, kctx)
		if err != nil {
			abort(err)
			return
		}
		source, err = f.textClient.CompleteStream(ctx, prompt, settings)
	}
	if err != nil {
		abort(err)
		return
	}

	var (
		completion  strings.Builder
		toolMessage strings.Builder
		toolCalls   []llm.ToolCall
		usage       *llm.Usage
	)
	for chunk := range source {
		if chunk.Error != nil {
			abort(chunk.Error)
			return
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		toolCalls = append(toolCalls, chunk.ToolCalls...)
		toolMessage.WriteString(chunk.ToolMessage)
		if chunk.Content != "" {
			completion.WriteString(chunk.Content)
			if !send(ctx, out, llm.StreamChunk{Role: llm.RoleAssistant, Content: chunk.Content}) {
				kctx.Fail(ctx.Err().Error(), ctx.Err())
				return
			}
		}
		if chunk.Done {
			break
		}
	}

	if f.chat != nil {
		f.recordReply(kctx, completion.String(), toolMessage.String(), toolCalls)
	} else {
		kctx.Variables.Update(completion.String())
	}
	send(ctx, out, llm.StreamChunk{Done: true, ToolCalls: toolCalls, ToolMessage: toolMessage.String(), Usage: usage})
}

// send delivers chunk unless ctx is cancelled first.
func send(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// String returns the fully qualified name.
func (f *Function) String() string { return f.qualifiedName() }
