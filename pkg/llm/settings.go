package llm

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// RequestSettings are the completion settings bound to a semantic function.
// Known keys are decoded into fields; anything else lands in Extension and
// stays available to provider adapters through DecodeExtension.
type RequestSettings struct {
	ServiceID         string         `json:"service_id,omitempty" mapstructure:"service_id"`
	ModelID           string         `json:"model_id,omitempty" mapstructure:"model_id"`
	MaxTokens         int            `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Temperature       float64        `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP              float64        `json:"top_p,omitempty" mapstructure:"top_p"`
	PresencePenalty   float64        `json:"presence_penalty,omitempty" mapstructure:"presence_penalty"`
	FrequencyPenalty  float64        `json:"frequency_penalty,omitempty" mapstructure:"frequency_penalty"`
	StopSequences     []string       `json:"stop_sequences,omitempty" mapstructure:"stop_sequences"`
	NumberOfResponses int            `json:"number_of_responses,omitempty" mapstructure:"number_of_responses"`
	ChatSystemPrompt  string         `json:"chat_system_prompt,omitempty" mapstructure:"chat_system_prompt"`
	Messages          []Message      `json:"messages,omitempty" mapstructure:"messages"`
	Tools             []Tool         `json:"-" mapstructure:"-"`
	Extension         map[string]any `json:"extension_data,omitempty" mapstructure:",remain"`
}

// SettingsFromMap decodes a loosely typed option map into RequestSettings.
func SettingsFromMap(m map[string]any) (*RequestSettings, error) {
	s := &RequestSettings{}
	if err := decode(m, s); err != nil {
		return nil, fmt.Errorf("decode request settings: %w", err)
	}
	return s, nil
}

// DecodeExtension decodes the provider-specific options into target.
func (s *RequestSettings) DecodeExtension(target any) error {
	if s == nil || len(s.Extension) == 0 {
		return nil
	}
	return decode(s.Extension, target)
}

// Clone returns a deep copy of the settings.
func (s *RequestSettings) Clone() *RequestSettings {
	if s == nil {
		return &RequestSettings{}
	}
	out := *s
	out.StopSequences = append([]string(nil), s.StopSequences...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.Tools = append([]Tool(nil), s.Tools...)
	if s.Extension != nil {
		out.Extension = make(map[string]any, len(s.Extension))
		for k, v := range s.Extension {
			out.Extension[k] = v
		}
	}
	return &out
}

// ChatRequest builds a provider request from the settings.
func (s *RequestSettings) ChatRequest(model string, messages []Message) ChatRequest {
	req := ChatRequest{Model: model, Messages: messages}
	if s == nil {
		return req
	}
	if s.ModelID != "" {
		req.Model = s.ModelID
	}
	req.Temperature = s.Temperature
	req.TopP = s.TopP
	req.MaxTokens = s.MaxTokens
	req.Stop = s.StopSequences
	req.Tools = s.Tools
	return req
}

// UnmarshalJSON routes JSON through the same decoder as SettingsFromMap so
// unknown keys are preserved in Extension.
func (s *RequestSettings) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if ext, ok := m["extension_data"].(map[string]any); ok {
		delete(m, "extension_data")
		for k, v := range ext {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	*s = RequestSettings{}
	return decode(m, s)
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML prompt configs.
func (s *RequestSettings) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*s = RequestSettings{}
	return decode(m, s)
}

func decode(input map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
