// Package template renders prompt templates against an orchestration
// Context. Templates mix plain text with blocks: {{$name}} reads a
// variable, {{skill.function}} calls a registered function with the
// current input, and {{skill.function $name}} or {{skill.function 'text'}}
// calls it with another input.
package template

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Engine renders template text.
type Engine interface {
	Render(ctx context.Context, text string, kctx *orchestration.Context) (string, error)
	// Variables returns the variable names referenced by text, in order of
	// first appearance.
	Variables(text string) []string
}

type blockKind int

const (
	blockText blockKind = iota
	blockVar
	blockValue
	blockCode
)

type block struct {
	kind blockKind
	text string
	// code blocks
	skill    string
	function string
	arg      *block
}

var (
	varNamePattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)
	funcIDPattern  = regexp.MustCompile(`^[0-9A-Za-z_]+(\.[0-9A-Za-z_]+)?$`)
)

// DefaultEngine is the built-in Engine.
type DefaultEngine struct {
	logger *slog.Logger
}

// NewEngine returns the default engine. A nil logger uses slog.Default.
func NewEngine(logger *slog.Logger) *DefaultEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultEngine{logger: logger}
}

// Render implements Engine.
func (e *DefaultEngine) Render(ctx context.Context, text string, kctx *orchestration.Context) (string, error) {
	blocks, err := tokenize(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, b := range blocks {
		switch b.kind {
		case blockText, blockValue:
			sb.WriteString(b.text)
		case blockVar:
			sb.WriteString(e.variable(kctx, b.text))
		case blockCode:
			out, err := e.call(ctx, kctx, b)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
	}
	return sb.String(), nil
}

// Variables implements Engine.
func (e *DefaultEngine) Variables(text string) []string {
	blocks, err := tokenize(text)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.ToLower(name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, b := range blocks {
		switch {
		case b.kind == blockVar:
			add(b.text)
		case b.kind == blockCode && b.arg != nil && b.arg.kind == blockVar:
			add(b.arg.text)
		}
	}
	return out
}

func (e *DefaultEngine) variable(kctx *orchestration.Context, name string) string {
	if kctx == nil {
		return ""
	}
	v, ok := kctx.Variables.Get(name)
	if !ok {
		e.logger.Warn("template.variable.missing", slog.String("variable", name))
	}
	return v
}

func (e *DefaultEngine) call(ctx context.Context, kctx *orchestration.Context, b block) (string, error) {
	if kctx == nil {
		return "", kerrors.New(kerrors.CodeFunctionNotAvailable, "template function call without context", nil)
	}
	fn, err := kctx.Func(b.skill, b.function)
	if err != nil {
		return "", err
	}

	vars := kctx.Variables.Clone()
	if b.arg != nil {
		switch b.arg.kind {
		case blockVar:
			vars.Update(e.variable(kctx, b.arg.text))
		case blockValue:
			vars.Update(b.arg.text)
		}
	}

	sub := orchestration.NewContext(vars, kctx.Memory(), kctx.Skills())
	out, _ := fn.Invoke(ctx, orchestration.WithContext(sub))
	if out.ErrorOccurred() {
		return "", kerrors.New(kerrors.CodeInvocation,
			fmt.Sprintf("function %s failed while rendering template", fn), out.LastError())
	}
	return out.Result(), nil
}

// tokenize splits text into blocks. Text that does not close a block is
// kept as plain text.
func tokenize(text string) ([]block, error) {
	var (
		blocks []block
		rest   = text
	)
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			break
		}
		end += start + 2

		if start > 0 {
			blocks = append(blocks, block{kind: blockText, text: rest[:start]})
		}
		b, err := parseBlock(strings.TrimSpace(rest[start+2 : end]))
		if err != nil {
			return nil, err
		}
		if b != nil {
			blocks = append(blocks, *b)
		}
		rest = rest[end+2:]
	}
	if rest != "" {
		blocks = append(blocks, block{kind: blockText, text: rest})
	}
	return blocks, nil
}

func parseBlock(content string) (*block, error) {
	if content == "" {
		return nil, nil
	}
	if content[0] == '$' || content[0] == '\'' || content[0] == '"' {
		return parseArg(content)
	}

	head, tail, _ := strings.Cut(content, " ")
	if !funcIDPattern.MatchString(head) {
		return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("invalid function name %q in template", head), nil)
	}
	b := &block{kind: blockCode, text: content}
	if skill, fn, ok := strings.Cut(head, "."); ok {
		b.skill, b.function = skill, fn
	} else {
		b.function = head
	}

	if tail = strings.TrimSpace(tail); tail != "" {
		arg, err := parseArg(tail)
		if err != nil {
			return nil, err
		}
		b.arg = arg
	}
	return b, nil
}

func parseArg(content string) (*block, error) {
	switch content[0] {
	case '$':
		name := content[1:]
		if !varNamePattern.MatchString(name) {
			return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("invalid variable name %q in template", name), nil)
		}
		return &block{kind: blockVar, text: name}, nil
	case '\'', '"':
		quote := content[0]
		if len(content) < 2 || content[len(content)-1] != quote {
			return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("unterminated value %s in template", content), nil)
		}
		return &block{kind: blockValue, text: content[1 : len(content)-1]}, nil
	default:
		return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("unexpected template argument %q", content), nil)
	}
}

var _ Engine = (*DefaultEngine)(nil)
