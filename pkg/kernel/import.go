package kernel

import (
	"fmt"
	"log/slog"
	"strings"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/skills"
)

// NativeSkill is a group of native functions that can be imported as one
// skill.
type NativeSkill interface {
	NativeFunctions() []orchestration.NativeDefinition
}

// ImportSkill registers every function of skill under name. skill is a
// NativeSkill or a []orchestration.NativeDefinition. Names must be unique
// within the skill and must not collide with registered functions; nothing
// is registered when they do.
func (k *Kernel) ImportSkill(skill any, name string) (map[string]*orchestration.Function, error) {
	var defs []orchestration.NativeDefinition
	switch s := skill.(type) {
	case NativeSkill:
		defs = s.NativeFunctions()
	case []orchestration.NativeDefinition:
		defs = s
	default:
		return nil, kerrors.New(kerrors.CodeInvalidFunctionType,
			fmt.Sprintf("cannot import skill of type %T", skill), nil)
	}

	if strings.TrimSpace(name) == "" {
		name = skills.GlobalSkill
		k.logger.Debug("kernel.skill.import", slog.String("skill", name), slog.Bool("global", true))
	} else {
		k.logger.Debug("kernel.skill.import", slog.String("skill", name))
	}

	seen := make(map[string]bool, len(defs))
	fns := make([]*orchestration.Function, 0, len(defs))
	for _, def := range defs {
		key := strings.ToLower(def.Name)
		if seen[key] {
			return nil, kerrors.New(kerrors.CodeDuplicateRegistration,
				"overloaded functions are not supported, please differentiate function names", nil).
				WithAttribute("skill", name).
				WithAttribute("function", def.Name)
		}
		seen[key] = true
		if err := validateNames(name, def.Name); err != nil {
			return nil, err
		}
		fn, err := orchestration.NewNativeFunction(name, def)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}

	if err := k.registerAll(fns...); err != nil {
		return nil, err
	}
	out := make(map[string]*orchestration.Function, len(fns))
	for _, fn := range fns {
		out[fn.Name()] = fn
	}
	k.logger.Debug("kernel.skill.imported", slog.String("skill", name), slog.Int("functions", len(out)))
	return out, nil
}
