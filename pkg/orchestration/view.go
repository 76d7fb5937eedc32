package orchestration

import (
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/jllopis/semkernel/pkg/llm"
)

// GlobalSkill is the skill name holding functions registered without one.
const GlobalSkill = "_GLOBAL_FUNCTIONS_"

// toolNameSeparator joins skill and function names in tool definitions.
const toolNameSeparator = "-"

// FunctionLookup is the read-only registry view handed to functions so they
// can find and invoke siblings.
type FunctionLookup interface {
	Function(skill, name string) (*Function, error)
	HasFunction(skill, name string) bool
	Functions() []*Function
	View(includeSemantic, includeNative bool) FunctionsView
}

// ParameterView describes one function parameter. It is metadata for
// introspection and planning; values are not validated against it.
type ParameterView struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	DefaultValue string `json:"defaultValue" yaml:"default_value"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// FunctionView is the immutable description of a function.
type FunctionView struct {
	Name        string          `json:"name"`
	SkillName   string          `json:"skill_name"`
	Description string          `json:"description"`
	IsSemantic  bool            `json:"is_semantic"`
	IsAsync     bool            `json:"is_asynchronous"`
	Parameters  []ParameterView `json:"parameters"`
}

// FullyQualifiedName returns "skill.name", or just name for global functions.
func (v FunctionView) FullyQualifiedName() string {
	if v.SkillName == "" || v.SkillName == GlobalSkill {
		return v.Name
	}
	return v.SkillName + "." + v.Name
}

// ToolName returns the name used when the function is offered to a model
// as a tool.
func (v FunctionView) ToolName() string {
	if v.SkillName == "" || v.SkillName == GlobalSkill {
		return v.Name
	}
	return v.SkillName + toolNameSeparator + v.Name
}

// ParseToolName splits a tool name produced by ToolName.
func ParseToolName(name string) (skill, function string) {
	if i := strings.Index(name, toolNameSeparator); i >= 0 {
		return name[:i], name[i+len(toolNameSeparator):]
	}
	return GlobalSkill, name
}

// ParametersSchema returns the JSON schema of the function's parameters.
func (v FunctionView) ParametersSchema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, p := range v.Parameters {
		prop := &jsonschema.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
		if p.DefaultValue != "" {
			prop.Default = p.DefaultValue
		}
		schema.Properties.Set(p.Name, prop)
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

// ToolDefinition returns the function as an llm.Tool.
func (v FunctionView) ToolDefinition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        v.ToolName(),
			Description: v.Description,
			Parameters:  v.ParametersSchema(),
		},
	}
}

func schemaType(t string) string {
	switch strings.ToLower(t) {
	case "number", "float", "double":
		return "number"
	case "integer", "int":
		return "integer"
	case "boolean", "bool":
		return "boolean"
	default:
		return "string"
	}
}

// FunctionsView groups function descriptions by skill.
type FunctionsView struct {
	Semantic map[string][]FunctionView `json:"semantic_functions"`
	Native   map[string][]FunctionView `json:"native_functions"`
}

// NewFunctionsView returns an empty view.
func NewFunctionsView() FunctionsView {
	return FunctionsView{
		Semantic: make(map[string][]FunctionView),
		Native:   make(map[string][]FunctionView),
	}
}

// Add places view in the semantic or native group.
func (fv FunctionsView) Add(view FunctionView) {
	if view.IsSemantic {
		fv.Semantic[view.SkillName] = append(fv.Semantic[view.SkillName], view)
		return
	}
	fv.Native[view.SkillName] = append(fv.Native[view.SkillName], view)
}

// IsSemantic reports whether skill.name is listed as semantic. The second
// result is false when the function is not in the view at all.
func (fv FunctionsView) IsSemantic(skill, name string) (isSemantic, found bool) {
	for _, v := range fv.Semantic[skill] {
		if v.Name == name {
			return true, true
		}
	}
	for _, v := range fv.Native[skill] {
		if v.Name == name {
			return false, true
		}
	}
	return false, false
}
