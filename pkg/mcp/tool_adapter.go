package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolSource lists and calls the tools of an MCP server.
type ToolSource interface {
	ToolCaller
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

var invalidNameChars = regexp.MustCompile(`[^0-9A-Za-z_]+`)

// FunctionName maps an MCP tool name onto the function name grammar.
func FunctionName(tool string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(tool, "_"), "_")
}

// NativeDefinition describes tool as a native function that calls it
// through caller. Tool arguments are read from the Context variables named
// after the schema properties; a single required property falls back to
// the input.
func NativeDefinition(tool mcp.Tool, caller ToolCaller) (orchestration.NativeDefinition, error) {
	if tool.Name == "" {
		return orchestration.NativeDefinition{}, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return orchestration.NativeDefinition{}, errors.New("tool caller is required")
	}
	name := FunctionName(tool.Name)
	if name == "" {
		return orchestration.NativeDefinition{}, kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("mcp tool %q has no usable function name", tool.Name), nil)
	}

	params := parameters(tool.InputSchema)
	return orchestration.NativeDefinition{
		Name:        name,
		Description: tool.Description,
		Parameters:  params,
		Fn: func(ctx context.Context, kctx *orchestration.Context) (string, error) {
			args, err := arguments(tool.InputSchema, params, kctx.Variables)
			if err != nil {
				return "", err
			}
			result, err := caller.CallTool(ctx, tool.Name, args)
			if err != nil {
				return "", err
			}
			return resultText(result)
		},
	}, nil
}

// ImportTools registers every tool of src as a native function of skill.
func ImportTools(ctx context.Context, k *kernel.Kernel, src ToolSource, skill string) (map[string]*orchestration.Function, error) {
	tools, err := src.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]orchestration.NativeDefinition, 0, len(tools))
	for _, tool := range tools {
		def, err := NativeDefinition(tool, src)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	fns, err := k.ImportSkill(defs, skill)
	if err != nil {
		return nil, err
	}
	k.Logger().Info("mcp.tools.imported", slog.String("skill", skill), slog.Int("tools", len(fns)))
	return fns, nil
}

func parameters(schema mcp.ToolInputSchema) []orchestration.ParameterView {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]orchestration.ParameterView, 0, len(names))
	for _, name := range names {
		p := orchestration.ParameterView{Name: name, Required: required[name]}
		if prop, ok := schema.Properties[name].(map[string]any); ok {
			p.Description, _ = prop["description"].(string)
			p.Type, _ = prop["type"].(string)
			if def, ok := prop["default"]; ok {
				p.DefaultValue = fmt.Sprint(def)
			}
		}
		params = append(params, p)
	}
	return params
}

func arguments(schema mcp.ToolInputSchema, params []orchestration.ParameterView, vars *orchestration.Variables) (map[string]any, error) {
	args := make(map[string]any, len(params))
	for _, p := range params {
		raw, ok := vars.Get(p.Name)
		if !ok {
			continue
		}
		v, err := convert(p, raw)
		if err != nil {
			return nil, err
		}
		args[p.Name] = v
	}

	if len(schema.Required) == 1 {
		key := schema.Required[0]
		if _, ok := args[key]; !ok && vars.Input() != "" {
			p := orchestration.ParameterView{Name: key}
			for _, candidate := range params {
				if candidate.Name == key {
					p = candidate
				}
			}
			v, err := convert(p, vars.Input())
			if err != nil {
				return nil, err
			}
			args[key] = v
		}
	}

	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return nil, kerrors.New(kerrors.CodeInvalidInput,
				fmt.Sprintf("mcp tool args: missing required field %q", key), nil)
		}
	}
	return args, nil
}

// convert turns a variable value into the JSON type the schema declares.
func convert(p orchestration.ParameterView, raw string) (any, error) {
	var (
		v   any
		err error
	)
	switch p.Type {
	case "number":
		v, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case "integer":
		v, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case "boolean":
		v, err = strconv.ParseBool(strings.TrimSpace(raw))
	case "object", "array":
		err = json.Unmarshal([]byte(raw), &v)
	default:
		return raw, nil
	}
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput,
			fmt.Sprintf("mcp tool args: %q is not a valid %s", p.Name, p.Type), err)
	}
	return v, nil
}

func resultText(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New("mcp tool result is nil")
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content))
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	if result.StructuredContent != nil {
		out, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("encode structured content: %w", err)
		}
		return string(out), nil
	}
	return "", nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
