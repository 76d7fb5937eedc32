package template

import (
	"context"

	"github.com/jllopis/semkernel/pkg/orchestration"
)

// PromptTemplate is a single prompt rendered by an Engine.
type PromptTemplate struct {
	template string
	engine   Engine
	config   *PromptTemplateConfig
}

// NewPromptTemplate binds text to engine and config. Nil values get the
// default engine and an empty completion config.
func NewPromptTemplate(text string, engine Engine, config *PromptTemplateConfig) *PromptTemplate {
	if engine == nil {
		engine = NewEngine(nil)
	}
	if config == nil {
		config = NewConfig()
	}
	return &PromptTemplate{template: text, engine: engine, config: config}
}

// Text returns the raw template.
func (t *PromptTemplate) Text() string { return t.template }

// Config returns the template configuration.
func (t *PromptTemplate) Config() *PromptTemplateConfig { return t.config }

// Engine returns the engine used for rendering.
func (t *PromptTemplate) Engine() Engine { return t.engine }

// Render implements orchestration.PromptRenderer.
func (t *PromptTemplate) Render(ctx context.Context, kctx *orchestration.Context) (string, error) {
	return t.engine.Render(ctx, t.template, kctx)
}

// Parameters returns the configured parameters followed by the template
// variables the configuration does not declare.
func (t *PromptTemplate) Parameters() []orchestration.ParameterView {
	seen := make(map[string]bool)
	var out []orchestration.ParameterView
	for _, p := range t.config.Parameters {
		out = append(out, orchestration.ParameterView{
			Name:         p.Name,
			Description:  p.Description,
			DefaultValue: p.DefaultValue,
			Type:         p.Type,
			Required:     p.Required,
		})
		seen[p.Name] = true
	}
	for _, name := range t.engine.Variables(t.template) {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, orchestration.ParameterView{Name: name})
	}
	return out
}

var _ orchestration.PromptRenderer = (*PromptTemplate)(nil)
