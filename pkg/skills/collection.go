// Package skills holds the function registry of a kernel and the loader
// for prompt-based skill directories.
package skills

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// GlobalSkill is the group of functions registered without a skill.
const GlobalSkill = orchestration.GlobalSkill

var identifierPattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

// ValidateName checks a skill or function name against the identifier
// grammar.
func ValidateName(kind, name string) error {
	if name == "" {
		return kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("%s name cannot be empty", kind), nil)
	}
	if !identifierPattern.MatchString(name) {
		return kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("invalid %s name %q: only ASCII letters, digits and underscores are allowed", kind, name), nil)
	}
	return nil
}

// Collection is the registry of native and semantic functions, grouped by
// skill. Lookups are case-insensitive. Each kernel owns its own
// Collection.
type Collection struct {
	mu       sync.RWMutex
	native   map[string]map[string]*orchestration.Function
	semantic map[string]map[string]*orchestration.Function
}

// NewCollection returns an empty registry.
func NewCollection() *Collection {
	return &Collection{
		native:   make(map[string]map[string]*orchestration.Function),
		semantic: make(map[string]map[string]*orchestration.Function),
	}
}

// Add registers fn under its skill. Names are validated and (skill, name)
// must be unique across native and semantic functions.
func (c *Collection) Add(fn *orchestration.Function) error {
	return c.AddAll(fn)
}

// AddAll registers fns as one batch. When any of them is invalid or
// collides with a registered function, or with another one in the batch,
// none is registered.
func (c *Collection) AddAll(fns ...*orchestration.Function) error {
	for _, fn := range fns {
		if err := validate(fn); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make(map[[2]string]bool, len(fns))
	for _, fn := range fns {
		key := [2]string{strings.ToLower(fn.SkillName()), strings.ToLower(fn.Name())}
		if batch[key] || c.has(c.native, key[0], key[1]) || c.has(c.semantic, key[0], key[1]) {
			return kerrors.New(kerrors.CodeDuplicateRegistration,
				fmt.Sprintf("function %s.%s is already registered", fn.SkillName(), fn.Name()), nil).
				WithAttribute("skill", fn.SkillName()).
				WithAttribute("function", fn.Name())
		}
		batch[key] = true
	}

	for _, fn := range fns {
		s, n := strings.ToLower(fn.SkillName()), strings.ToLower(fn.Name())
		target := c.native
		if fn.IsSemantic() {
			target = c.semantic
		}
		if target[s] == nil {
			target[s] = make(map[string]*orchestration.Function)
		}
		target[s][n] = fn
	}
	return nil
}

func validate(fn *orchestration.Function) error {
	if fn == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "function cannot be nil", nil)
	}
	if skill := fn.SkillName(); skill != GlobalSkill {
		if err := ValidateName("skill", skill); err != nil {
			return err
		}
	}
	return ValidateName("function", fn.Name())
}

// AddNative registers a native function. It fails when fn is semantic.
func (c *Collection) AddNative(fn *orchestration.Function) error {
	if fn != nil && !fn.IsNative() {
		return kerrors.New(kerrors.CodeInvalidFunctionType, fmt.Sprintf("%s is not a native function", fn), nil)
	}
	return c.Add(fn)
}

// AddSemantic registers a semantic function. It fails when fn is native.
func (c *Collection) AddSemantic(fn *orchestration.Function) error {
	if fn != nil && !fn.IsSemantic() {
		return kerrors.New(kerrors.CodeInvalidFunctionType, fmt.Sprintf("%s is not a semantic function", fn), nil)
	}
	return c.Add(fn)
}

func (c *Collection) has(m map[string]map[string]*orchestration.Function, skill, name string) bool {
	_, ok := m[skill][name]
	return ok
}

func (c *Collection) get(m map[string]map[string]*orchestration.Function, skill, name string) (*orchestration.Function, bool) {
	if skill == "" {
		skill = GlobalSkill
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := m[strings.ToLower(skill)][strings.ToLower(name)]
	return fn, ok
}

// Function returns skill.name, native or semantic.
func (c *Collection) Function(skill, name string) (*orchestration.Function, error) {
	if fn, ok := c.get(c.native, skill, name); ok {
		return fn, nil
	}
	if fn, ok := c.get(c.semantic, skill, name); ok {
		return fn, nil
	}
	return nil, notAvailable(skill, name)
}

// Native returns the native function skill.name.
func (c *Collection) Native(skill, name string) (*orchestration.Function, error) {
	if fn, ok := c.get(c.native, skill, name); ok {
		return fn, nil
	}
	return nil, notAvailable(skill, name)
}

// Semantic returns the semantic function skill.name.
func (c *Collection) Semantic(skill, name string) (*orchestration.Function, error) {
	if fn, ok := c.get(c.semantic, skill, name); ok {
		return fn, nil
	}
	return nil, notAvailable(skill, name)
}

func notAvailable(skill, name string) error {
	if skill == "" {
		skill = GlobalSkill
	}
	return kerrors.New(kerrors.CodeFunctionNotAvailable,
		fmt.Sprintf("function not available: %s.%s", skill, name), nil)
}

// HasFunction reports whether skill.name is registered.
func (c *Collection) HasFunction(skill, name string) bool {
	return c.HasNative(skill, name) || c.HasSemantic(skill, name)
}

// HasNative reports whether skill.name is a registered native function.
func (c *Collection) HasNative(skill, name string) bool {
	_, ok := c.get(c.native, skill, name)
	return ok
}

// HasSemantic reports whether skill.name is a registered semantic function.
func (c *Collection) HasSemantic(skill, name string) bool {
	_, ok := c.get(c.semantic, skill, name)
	return ok
}

// Functions returns every registered function sorted by skill and name.
func (c *Collection) Functions() []*orchestration.Function {
	c.mu.RLock()
	var out []*orchestration.Function
	for _, m := range []map[string]map[string]*orchestration.Function{c.native, c.semantic} {
		for _, fns := range m {
			for _, fn := range fns {
				out = append(out, fn)
			}
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SkillName() != out[j].SkillName() {
			return out[i].SkillName() < out[j].SkillName()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Skills returns the names of the registered skills, sorted.
func (c *Collection) Skills() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fn := range c.Functions() {
		if !seen[fn.SkillName()] {
			seen[fn.SkillName()] = true
			out = append(out, fn.SkillName())
		}
	}
	return out
}

// View describes the registered functions.
func (c *Collection) View(includeSemantic, includeNative bool) orchestration.FunctionsView {
	view := orchestration.NewFunctionsView()
	for _, fn := range c.Functions() {
		if (fn.IsSemantic() && includeSemantic) || (fn.IsNative() && includeNative) {
			view.Add(fn.Describe())
		}
	}
	return view
}

// ReadOnly returns a view that cannot register functions.
func (c *Collection) ReadOnly() orchestration.FunctionLookup {
	return readOnly{c: c}
}

type readOnly struct {
	c *Collection
}

func (r readOnly) Function(skill, name string) (*orchestration.Function, error) {
	return r.c.Function(skill, name)
}

func (r readOnly) HasFunction(skill, name string) bool { return r.c.HasFunction(skill, name) }

func (r readOnly) Functions() []*orchestration.Function { return r.c.Functions() }

func (r readOnly) View(includeSemantic, includeNative bool) orchestration.FunctionsView {
	return r.c.View(includeSemantic, includeNative)
}

var (
	_ orchestration.FunctionLookup = (*Collection)(nil)
	_ orchestration.FunctionLookup = readOnly{}
)
