package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/semkernel/pkg/core"
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// DefaultMaxFunctionCalls bounds ChatWithFunctionCalls when no limit is
// given.
const DefaultMaxFunctionCalls = 5

// ToolFilter selects the functions offered to a model. Names in the
// function lists use the "skill-function" tool naming. Include lists
// exclude everything they do not name.
type ToolFilter struct {
	IncludeSkills    []string
	ExcludeSkills    []string
	IncludeFunctions []string
	ExcludeFunctions []string
	// Allow, when set, has the last word on functions the lists keep.
	Allow func(orchestration.FunctionView) bool
}

func (f ToolFilter) validate() error {
	if len(f.IncludeSkills) > 0 && len(f.ExcludeSkills) > 0 {
		return kerrors.New(kerrors.CodeInvalidInput, "cannot use both include and exclude skill filters", nil)
	}
	if len(f.IncludeFunctions) > 0 && len(f.ExcludeFunctions) > 0 {
		return kerrors.New(kerrors.CodeInvalidInput, "cannot use both include and exclude function filters", nil)
	}
	return nil
}

func (f ToolFilter) allows(view orchestration.FunctionView) bool {
	skill := strings.ToLower(view.SkillName)
	name := strings.ToLower(view.ToolName())
	if containsFold(f.ExcludeSkills, skill) || (len(f.IncludeSkills) > 0 && !containsFold(f.IncludeSkills, skill)) {
		return false
	}
	if containsFold(f.ExcludeFunctions, name) || (len(f.IncludeFunctions) > 0 && !containsFold(f.IncludeFunctions, name)) {
		return false
	}
	return f.Allow == nil || f.Allow(view)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ToolDefinitions describes the registered functions as tools a chat model
// may ask to call.
func (k *Kernel) ToolDefinitions(filter ToolFilter) ([]llm.Tool, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	var tools []llm.Tool
	for _, fn := range k.skills.Functions() {
		view := fn.Describe()
		if !filter.allows(view) {
			continue
		}
		tools = append(tools, view.ToolDefinition())
	}
	return tools, nil
}

// ArgumentsToVariables decodes the JSON arguments of a tool call. Keys are
// lower-cased and non-string values keep their JSON form.
func ArgumentsToVariables(arguments string) (*orchestration.Variables, error) {
	vars := orchestration.NewVariables("")
	if strings.TrimSpace(arguments) == "" {
		return vars, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "tool call arguments are not a JSON object", err)
	}
	for name, value := range args {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case nil:
			s = ""
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("tool call argument %q", name), err)
			}
			s = string(raw)
		}
		if err := vars.Set(name, s); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

// ExecuteFunctionCall runs the function a model asked for and returns the
// resulting Context. The call arguments become the Context variables.
func (k *Kernel) ExecuteFunctionCall(ctx context.Context, call llm.ToolCall) (*orchestration.Context, error) {
	skill, name := orchestration.ParseToolName(call.Function.Name)
	fn, err := k.Func(skill, name)
	if err != nil {
		return nil, err
	}
	vars, err := ArgumentsToVariables(call.Function.Arguments)
	if err != nil {
		return nil, err
	}
	kctx, err := k.Run(ctx, []*orchestration.Function{fn}, WithInputVariables(vars))
	if err != nil {
		return nil, err
	}
	k.logger.Info("kernel.tool.executed",
		slog.String("tool", call.Function.Name),
		slog.String("call_id", call.ID),
		slog.Bool("failed", kctx.ErrorOccurred()),
	)
	return kctx, nil
}

type toolMessageRecorder interface {
	AddToolMessage(callID, content string)
}

// ChatWithFunctionCalls invokes a chat function with the registry offered
// as tools. Each tool call the model makes is executed, its result added to
// the chat history and the function invoked again. After maxCalls rounds
// the function is invoked once more without tools.
func (k *Kernel) ChatWithFunctionCalls(ctx context.Context, chatFn *orchestration.Function, kctx *orchestration.Context, filter ToolFilter, maxCalls int) (*orchestration.Context, error) {
	if chatFn == nil || !chatFn.IsChat() {
		return nil, kerrors.New(kerrors.CodeInvalidFunctionType, "function calling needs a chat function", nil)
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxFunctionCalls
	}
	tools, err := k.ToolDefinitions(filter)
	if err != nil {
		return nil, err
	}
	chat := chatFn.Template().(orchestration.ChatRenderer)
	if kctx == nil {
		kctx = k.CreateNewContext(nil)
	}

	ctx, runID := core.EnsureRunID(ctx)
	for round := 0; ; round++ {
		settings := chatFn.RequestSettings().Clone()
		if round < maxCalls {
			settings.Tools = tools
		} else {
			settings.Tools = nil
		}

		kctx = k.invoke(ctx, runID, round, chatFn, kctx, orchestration.WithSettings(settings))
		if kctx.ErrorOccurred() {
			return kctx, nil
		}

		raw, ok := kctx.Object(orchestration.ObjectFunctionCall)
		calls, _ := raw.([]llm.ToolCall)
		if !ok || len(calls) == 0 {
			return kctx, nil
		}
		delete(kctx.Objects(), orchestration.ObjectFunctionCall)

		for _, call := range calls {
			result, err := k.ExecuteFunctionCall(ctx, call)
			content := ""
			switch {
			case err != nil:
				content = "error: " + err.Error()
			case result.ErrorOccurred():
				content = "error: " + result.LastErrorDescription()
			default:
				content = result.Result()
			}
			if rec, ok := chat.(toolMessageRecorder); ok {
				rec.AddToolMessage(call.ID, content)
			} else {
				chat.AddMessage(llm.RoleTool, content)
			}
		}
	}
}
