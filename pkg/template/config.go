package template

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// TypeCompletion is the only supported prompt type.
const TypeCompletion = "completion"

// PromptTemplateConfig is the configuration shipped next to a prompt.
type PromptTemplateConfig struct {
	Schema          int                           `json:"schema" yaml:"schema"`
	Type            string                        `json:"type" yaml:"type"`
	Description     string                        `json:"description" yaml:"description"`
	Completion      *llm.RequestSettings          `json:"completion" yaml:"completion"`
	DefaultServices []string                      `json:"default_services,omitempty" yaml:"default_services,omitempty"`
	Parameters      []orchestration.ParameterView `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// NewConfig returns a completion config with empty settings.
func NewConfig() *PromptTemplateConfig {
	return &PromptTemplateConfig{
		Schema:     1,
		Type:       TypeCompletion,
		Completion: &llm.RequestSettings{},
	}
}

// ConfigFromSettings returns a completion config carrying settings.
func ConfigFromSettings(settings *llm.RequestSettings) *PromptTemplateConfig {
	cfg := NewConfig()
	cfg.Completion = settings.Clone()
	return cfg
}

// ChatSystemPrompt returns the configured system prompt, if any.
func (c *PromptTemplateConfig) ChatSystemPrompt() string {
	if c == nil || c.Completion == nil {
		return ""
	}
	return c.Completion.ChatSystemPrompt
}

// rawConfig mirrors the file layout; pointer fields detect missing keys.
type rawConfig struct {
	Schema          *int            `json:"schema" yaml:"schema"`
	Type            string          `json:"type" yaml:"type"`
	Description     string          `json:"description" yaml:"description"`
	Completion      map[string]any  `json:"completion" yaml:"completion"`
	DefaultServices []string        `json:"default_services" yaml:"default_services"`
	Parameters      []rawParameter  `json:"parameters" yaml:"parameters"`
	InputParameters *rawInputConfig `json:"input" yaml:"input"`
}

type rawInputConfig struct {
	Parameters []rawParameter `json:"parameters" yaml:"parameters"`
}

type rawParameter struct {
	Name         *string `json:"name" yaml:"name"`
	Description  *string `json:"description" yaml:"description"`
	DefaultValue *string `json:"defaultValue" yaml:"defaultValue"`
	Type         string  `json:"type" yaml:"type"`
	Required     bool    `json:"required" yaml:"required"`
}

// ParseConfigJSON parses a config.json document.
func ParseConfigJSON(data []byte) (*PromptTemplateConfig, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "invalid prompt config JSON", err)
	}
	return raw.build()
}

// ParseConfigYAML parses a config.yaml document.
func ParseConfigYAML(data []byte) (*PromptTemplateConfig, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "invalid prompt config YAML", err)
	}
	return raw.build()
}

func (r rawConfig) build() (*PromptTemplateConfig, error) {
	cfg := NewConfig()
	if r.Schema != nil {
		cfg.Schema = *r.Schema
	}
	if r.Type != "" {
		cfg.Type = r.Type
	}
	cfg.Description = r.Description
	cfg.DefaultServices = r.DefaultServices

	if r.Completion != nil {
		settings, err := llm.SettingsFromMap(r.Completion)
		if err != nil {
			return nil, kerrors.New(kerrors.CodeConfiguration, "invalid completion settings", err)
		}
		cfg.Completion = settings
	}

	params := r.Parameters
	if r.InputParameters != nil {
		params = append(params, r.InputParameters.Parameters...)
	}
	for _, p := range params {
		if p.Name == nil || *p.Name == "" {
			return nil, kerrors.New(kerrors.CodeConfiguration,
				fmt.Sprintf("the input parameter doesn't have a name (function: %s)", cfg.Description), nil)
		}
		if p.Description == nil {
			return nil, kerrors.New(kerrors.CodeConfiguration,
				fmt.Sprintf("input parameter %q doesn't have a description (function: %s)", *p.Name, cfg.Description), nil)
		}
		if p.DefaultValue == nil {
			return nil, kerrors.New(kerrors.CodeConfiguration,
				fmt.Sprintf("input parameter %q doesn't have a default value (function: %s)", *p.Name, cfg.Description), nil)
		}
		cfg.Parameters = append(cfg.Parameters, orchestration.ParameterView{
			Name:         *p.Name,
			Description:  *p.Description,
			DefaultValue: *p.DefaultValue,
			Type:         p.Type,
			Required:     p.Required,
		})
	}
	return cfg, nil
}
