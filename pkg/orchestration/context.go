package orchestration

import (
	"fmt"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/memory"
)

// Reserved object bag keys.
const (
	// ObjectFunctionCall holds the []llm.ToolCall a chat model asked for.
	ObjectFunctionCall = "function_call"
	// ObjectToolMessage holds the tool payload carried by a chat reply.
	ObjectToolMessage = "tool_message"
)

// Context is the mutable state threaded through a pipeline. It is owned by
// one pipeline at a time and has no internal locking.
type Context struct {
	Variables *Variables

	memory  memory.SemanticTextMemory
	skills  FunctionLookup
	objects map[string]any

	errorOccurred        bool
	lastErrorDescription string
	lastError            error
}

// NewContext creates a Context. Nil variables become an empty set and nil
// memory becomes memory.Null.
func NewContext(variables *Variables, mem memory.SemanticTextMemory, skills FunctionLookup) *Context {
	if variables == nil {
		variables = NewVariables("")
	}
	if mem == nil {
		mem = memory.Null
	}
	return &Context{
		Variables: variables,
		memory:    mem,
		skills:    skills,
		objects:   make(map[string]any),
	}
}

// Fail marks the context failed. The flag is never cleared.
func (c *Context) Fail(description string, err error) {
	c.errorOccurred = true
	c.lastErrorDescription = description
	c.lastError = err
}

// ErrorOccurred reports whether Fail was called.
func (c *Context) ErrorOccurred() bool { return c.errorOccurred }

// LastErrorDescription returns the description passed to Fail.
func (c *Context) LastErrorDescription() string { return c.lastErrorDescription }

// LastError returns the error passed to Fail.
func (c *Context) LastError() error { return c.lastError }

// Result returns the input variable.
func (c *Context) Result() string { return c.Variables.Input() }

// Memory returns the semantic memory available to functions.
func (c *Context) Memory() memory.SemanticTextMemory { return c.memory }

// SetMemory replaces the semantic memory.
func (c *Context) SetMemory(mem memory.SemanticTextMemory) {
	if mem == nil {
		mem = memory.Null
	}
	c.memory = mem
}

// Skills returns the read-only registry view, which may be nil.
func (c *Context) Skills() FunctionLookup { return c.skills }

// SetSkills replaces the registry view.
func (c *Context) SetSkills(skills FunctionLookup) { c.skills = skills }

// Object returns the value stored under key in the object bag.
func (c *Context) Object(key string) (any, bool) {
	v, ok := c.objects[key]
	return v, ok
}

// SetObject stores value under key in the object bag.
func (c *Context) SetObject(key string, value any) { c.objects[key] = value }

// Objects returns the object bag.
func (c *Context) Objects() map[string]any { return c.objects }

// Func looks up a function through the registry view. An empty skill name
// resolves against the global skill.
func (c *Context) Func(skill, name string) (*Function, error) {
	if c.skills == nil {
		return nil, kerrors.New(kerrors.CodeFunctionNotAvailable, "context has no skill collection", nil)
	}
	if skill == "" {
		skill = GlobalSkill
	}
	return c.skills.Function(skill, name)
}

// IsFunctionRegistered reports whether skill.name (or global name) exists.
// It returns the function when found.
func (c *Context) IsFunctionRegistered(skill, name string) (bool, *Function) {
	if c.skills == nil {
		return false, nil
	}
	if c.skills.HasFunction(skill, name) {
		fn, _ := c.skills.Function(skill, name)
		return true, fn
	}
	if c.skills.HasFunction(GlobalSkill, name) {
		fn, _ := c.skills.Function(GlobalSkill, name)
		return true, fn
	}
	return false, nil
}

// String returns the result, or the error description for failed contexts.
func (c *Context) String() string {
	if c.errorOccurred {
		return fmt.Sprintf("Error: %s", c.lastErrorDescription)
	}
	return c.Result()
}
