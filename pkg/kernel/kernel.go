// Package kernel composes native and semantic functions into pipelines that
// share one Context, with invocation events, AI service binding and
// streaming of the last pipeline stage.
package kernel

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/semkernel/pkg/core"
	"github.com/jllopis/semkernel/pkg/memory"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/resilience"
	"github.com/jllopis/semkernel/pkg/services"
	"github.com/jllopis/semkernel/pkg/skills"
	"github.com/jllopis/semkernel/pkg/telemetry"
	"github.com/jllopis/semkernel/pkg/template"
)

// Kernel owns a function registry, an AI service registry and a semantic
// memory. Kernels are independent of each other.
type Kernel struct {
	logger   *slog.Logger
	skills   *skills.Collection
	services *services.Registry
	engine   template.Engine
	retry    *resilience.Policy
	metrics  *telemetry.InvocationMetrics
	tracer   trace.Tracer
	emitter  core.EventEmitter

	memMu  sync.RWMutex
	memory memory.SemanticTextMemory

	handlers handlers
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger. Functions registered on the kernel
// inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithTemplateEngine sets the engine used for prompts registered from text.
func WithTemplateEngine(engine template.Engine) Option {
	return func(k *Kernel) {
		if engine != nil {
			k.engine = engine
		}
	}
}

// WithMemory sets the semantic memory handed to every new Context.
func WithMemory(mem memory.SemanticTextMemory) Option {
	return func(k *Kernel) { k.memory = mem }
}

// WithRetry wraps every AI client bound by the kernel with policy.
func WithRetry(policy resilience.Policy) Option {
	return func(k *Kernel) { k.retry = &policy }
}

// WithMetrics records invocation metrics.
func WithMetrics(metrics *telemetry.InvocationMetrics) Option {
	return func(k *Kernel) { k.metrics = metrics }
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(k *Kernel) {
		if tracer != nil {
			k.tracer = tracer
		}
	}
}

// WithSkills uses an existing function registry.
func WithSkills(collection *skills.Collection) Option {
	return func(k *Kernel) {
		if collection != nil {
			k.skills = collection
		}
	}
}

// WithServices uses an existing AI service registry.
func WithServices(registry *services.Registry) Option {
	return func(k *Kernel) {
		if registry != nil {
			k.services = registry
		}
	}
}

// WithEventEmitter receives a core.Event for every pipeline step.
func WithEventEmitter(emitter core.EventEmitter) Option {
	return func(k *Kernel) {
		if emitter != nil {
			k.emitter = emitter
		}
	}
}

// New creates a kernel with an empty registry and no AI services.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		logger:  slog.Default(),
		tracer:  otel.Tracer("semkernel/kernel"),
		emitter: core.NoopEventEmitter{},
		memory:  memory.Null,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.skills == nil {
		k.skills = skills.NewCollection()
	}
	if k.services == nil {
		k.services = services.NewRegistry(k.logger)
	}
	if k.engine == nil {
		k.engine = template.NewEngine(k.logger)
	}
	if k.memory == nil {
		k.memory = memory.Null
	}
	return k
}

// Logger returns the kernel logger. Service factories receive the kernel
// through this method.
func (k *Kernel) Logger() *slog.Logger { return k.logger }

// Skills returns a read-only view of the registry.
func (k *Kernel) Skills() orchestration.FunctionLookup { return k.skills.ReadOnly() }

// Collection returns the registry itself.
func (k *Kernel) Collection() *skills.Collection { return k.skills }

// Services returns the AI service registry.
func (k *Kernel) Services() *services.Registry { return k.services }

// TemplateEngine returns the prompt engine.
func (k *Kernel) TemplateEngine() template.Engine { return k.engine }

// Func returns skill.name, native functions first.
func (k *Kernel) Func(skill, name string) (*orchestration.Function, error) {
	if fn, err := k.skills.Native(skill, name); err == nil {
		return fn, nil
	}
	return k.skills.Semantic(skill, name)
}

// Memory returns the semantic memory.
func (k *Kernel) Memory() memory.SemanticTextMemory {
	k.memMu.RLock()
	defer k.memMu.RUnlock()
	return k.memory
}

// RegisterMemory replaces the semantic memory used by new Contexts.
func (k *Kernel) RegisterMemory(mem memory.SemanticTextMemory) {
	if mem == nil {
		mem = memory.Null
	}
	k.memMu.Lock()
	k.memory = mem
	k.memMu.Unlock()
}

// CreateNewContext returns a Context wired to the kernel memory and
// registry.
func (k *Kernel) CreateNewContext(variables *orchestration.Variables) *orchestration.Context {
	return orchestration.NewContext(variables, k.Memory(), k.Skills())
}

var _ services.Host = (*Kernel)(nil)
