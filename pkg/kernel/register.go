package kernel

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/resilience"
	"github.com/jllopis/semkernel/pkg/skills"
	"github.com/jllopis/semkernel/pkg/template"
)

const defaultDescription = "Generic function, unknown purpose"

// SemanticFunctionConfig pairs a prompt template with its configuration.
// Template is usually a *template.PromptTemplate or a
// *template.ChatPromptTemplate; the latter makes a chat function.
type SemanticFunctionConfig struct {
	Config   *template.PromptTemplateConfig
	Template orchestration.PromptRenderer
}

// IsChat reports whether the template keeps a chat history.
func (c SemanticFunctionConfig) IsChat() bool {
	_, ok := c.Template.(orchestration.ChatRenderer)
	return ok
}

// NewSemanticFunctionConfig builds a config for text rendered with the
// kernel template engine.
func (k *Kernel) NewSemanticFunctionConfig(text string, cfg *template.PromptTemplateConfig, chat bool) SemanticFunctionConfig {
	if cfg == nil {
		cfg = template.NewConfig()
	}
	if chat {
		tmpl := template.NewChatPromptTemplate(text, k.engine, cfg)
		tmpl.SetLogger(k.logger)
		return SemanticFunctionConfig{Config: cfg, Template: tmpl}
	}
	return SemanticFunctionConfig{Config: cfg, Template: template.NewPromptTemplate(text, k.engine, cfg)}
}

// RegisterNativeFunction registers def under skill. An empty skill uses
// the global skill.
func (k *Kernel) RegisterNativeFunction(skill string, def orchestration.NativeDefinition) (*orchestration.Function, error) {
	if err := validateNames(skill, def.Name); err != nil {
		return nil, err
	}
	fn, err := orchestration.NewNativeFunction(skill, def)
	if err != nil {
		return nil, err
	}
	if err := k.RegisterFunction(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// RegisterSemanticFunction builds a semantic function from cfg, binds it
// to an AI service and registers it.
func (k *Kernel) RegisterSemanticFunction(skill, name string, cfg SemanticFunctionConfig) (*orchestration.Function, error) {
	if err := validateNames(skill, name); err != nil {
		return nil, err
	}
	fn, err := k.createSemanticFunction(skill, name, cfg)
	if err != nil {
		return nil, err
	}
	if err := k.RegisterFunction(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// RegisterFunction registers an already built function and wires it to the
// kernel registry and logger.
func (k *Kernel) RegisterFunction(fn *orchestration.Function) error {
	return k.registerAll(fn)
}

// registerAll registers fns as one batch; on error none is registered.
func (k *Kernel) registerAll(fns ...*orchestration.Function) error {
	for _, fn := range fns {
		if fn == nil {
			return kerrors.New(kerrors.CodeInvalidInput, "function cannot be nil", nil)
		}
		if k.skills.HasFunction(fn.SkillName(), fn.Name()) {
			return kerrors.New(kerrors.CodeDuplicateRegistration,
				fmt.Sprintf("function %s is already registered", fn), nil).
				WithAttribute("skill", fn.SkillName()).
				WithAttribute("function", fn.Name())
		}
	}
	for _, fn := range fns {
		fn.SetDefaultSkillCollection(k.Skills())
		fn.SetLogger(k.logger)
	}
	if err := k.skills.AddAll(fns...); err != nil {
		return err
	}
	for _, fn := range fns {
		k.logger.Debug("kernel.function.registered",
			slog.String("skill", fn.SkillName()),
			slog.String("function", fn.Name()),
			slog.String("kind", fn.Kind().String()),
		)
	}
	return nil
}

// RegisterSemanticSource registers a prompt function loaded from disk.
func (k *Kernel) RegisterSemanticSource(src skills.SemanticSource) (*orchestration.Function, error) {
	return k.RegisterSemanticFunction(src.Skill, src.Name, k.NewSemanticFunctionConfig(src.Template, src.Config, false))
}

// ImportSemanticSkillFromDirectory loads and registers every prompt
// function of the given skill directories under root.
func (k *Kernel) ImportSemanticSkillFromDirectory(root string, skillDirs ...string) (map[string]*orchestration.Function, error) {
	out := make(map[string]*orchestration.Function)
	for _, dir := range skillDirs {
		sources, err := skills.LoadSemanticSkill(filepath.Join(root, dir))
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			fn, err := k.RegisterSemanticSource(src)
			if err != nil {
				return nil, err
			}
			out[fn.Name()] = fn
		}
	}
	return out, nil
}

// SemanticOption configures CreateSemanticFunction.
type SemanticOption func(*semanticOptions)

type semanticOptions struct {
	name        string
	skill       string
	description string
	settings    *llm.RequestSettings
	chat        bool
}

// WithFunctionName names the function. The default is a random f_ name.
func WithFunctionName(name string) SemanticOption {
	return func(o *semanticOptions) { o.name = name }
}

// WithSkillName places the function in skill.
func WithSkillName(skill string) SemanticOption {
	return func(o *semanticOptions) { o.skill = skill }
}

// WithDescription describes the function.
func WithDescription(description string) SemanticOption {
	return func(o *semanticOptions) { o.description = description }
}

// WithRequestSettings replaces the default completion settings.
func WithRequestSettings(settings *llm.RequestSettings) SemanticOption {
	return func(o *semanticOptions) { o.settings = settings }
}

// AsChat builds the function on a chat template.
func AsChat() SemanticOption {
	return func(o *semanticOptions) { o.chat = true }
}

// CreateSemanticFunction registers a semantic function from a prompt
// template string.
func (k *Kernel) CreateSemanticFunction(text string, opts ...SemanticOption) (*orchestration.Function, error) {
	o := semanticOptions{
		name:        "f_" + strings.ReplaceAll(uuid.NewString(), "-", "_"),
		description: defaultDescription,
		settings:    &llm.RequestSettings{MaxTokens: 256, TopP: 1},
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := template.ConfigFromSettings(o.settings)
	cfg.Description = o.description
	return k.RegisterSemanticFunction(o.skill, o.name, k.NewSemanticFunctionConfig(text, cfg, o.chat))
}

func (k *Kernel) createSemanticFunction(skill, name string, sc SemanticFunctionConfig) (*orchestration.Function, error) {
	if sc.Template == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "semantic function config has no template", nil)
	}
	cfg := sc.Config
	if cfg == nil {
		cfg = template.NewConfig()
	}
	if cfg.Type != template.TypeCompletion {
		return nil, kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("function type not supported: %s", cfg.Type), nil)
	}

	var params []orchestration.ParameterView
	if p, ok := sc.Template.(interface {
		Parameters() []orchestration.ParameterView
	}); ok {
		params = p.Parameters()
	}

	fn, err := orchestration.NewSemanticFunction(skill, orchestration.SemanticDefinition{
		Name:        name,
		Description: cfg.Description,
		Parameters:  params,
		Template:    sc.Template,
	})
	if err != nil {
		return nil, err
	}
	if err := fn.SetAIConfiguration(cfg.Completion); err != nil {
		return nil, err
	}

	serviceID := ""
	if len(cfg.DefaultServices) > 0 {
		serviceID = cfg.DefaultServices[0]
	}
	if err := k.bind(fn, sc.IsChat(), serviceID); err != nil {
		return nil, err
	}
	return fn, nil
}

// bind resolves the service factory, builds the client once and attaches
// it to fn.
func (k *Kernel) bind(fn *orchestration.Function, chat bool, serviceID string) error {
	if chat {
		factory, err := k.services.ChatCompletionFactory(serviceID)
		if err != nil {
			return bindError("chat", fn, err)
		}
		client, err := factory(k)
		if err != nil {
			return bindError("chat", fn, err)
		}
		if k.retry != nil {
			client = resilience.WrapChatCompletion(client, k.policy())
		}
		return fn.SetChatService(client)
	}

	factory, err := k.services.TextCompletionFactory(serviceID)
	if err != nil {
		return bindError("text completion", fn, err)
	}
	client, err := factory(k)
	if err != nil {
		return bindError("text completion", fn, err)
	}
	if k.retry != nil {
		client = resilience.WrapTextCompletion(client, k.policy())
	}
	return fn.SetAIService(client)
}

func (k *Kernel) policy() resilience.Policy {
	p := *k.retry
	if p.Logger == nil {
		p.Logger = k.logger
	}
	return p
}

func bindError(kind string, fn *orchestration.Function, err error) error {
	return kerrors.New(kerrors.CodeConfiguration,
		fmt.Sprintf("could not load %s service, unable to prepare semantic function. Function description: %s", kind, fn.Description()), err).
		WithAttribute("function", fn.String())
}

func validateNames(skill, name string) error {
	if skill != "" && skill != skills.GlobalSkill {
		if err := skills.ValidateName("skill", skill); err != nil {
			return err
		}
	}
	return skills.ValidateName("function", name)
}
