// Package config loads the kernel host configuration from defaults, an
// optional YAML file, an optional profile file, SEMKERNEL_ environment
// variables and command line overrides, in that order.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: SEMKERNEL_LOG__LEVEL sets log.level.
const EnvPrefix = "SEMKERNEL_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Services   []ServiceConfig  `koanf:"services"`
	Memory     MemoryConfig     `koanf:"memory"`
	Retry      RetryConfig      `koanf:"retry"`
	Audit      AuditConfig      `koanf:"audit"`
	Skills     SkillsConfig     `koanf:"skills"`
	MCP        MCPConfig        `koanf:"mcp"`
	Governance GovernanceConfig `koanf:"governance"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
	// OpenAPI maps a skill name to the API whose operations it exposes.
	OpenAPI map[string]OpenAPIConfig `koanf:"openapi"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // none, stdout, otlp
	ServiceName        string            `koanf:"service_name"`
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	OTLPUser           string            `koanf:"otlp_user"`
	OTLPToken          string            `koanf:"otlp_token"`

	// SampleRatio in (0,1) samples that share of runs.
	SampleRatio           float64 `koanf:"sample_ratio"`
	MetricIntervalSeconds int     `koanf:"metric_interval_seconds"`
}

// Headers returns the OTLP headers, adding basic auth when a user and
// token are configured.
func (t TelemetryConfig) Headers() map[string]string {
	headers := make(map[string]string, len(t.OTLPHeaders)+1)
	for k, v := range t.OTLPHeaders {
		headers[k] = v
	}
	if t.OTLPUser != "" && t.OTLPToken != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(t.OTLPUser + ":" + t.OTLPToken))
		headers["authorization"] = "Basic " + auth
	}
	return headers
}

// ServiceConfig declares one AI service of the kernel.
type ServiceConfig struct {
	ID         string `koanf:"id"`
	Capability string `koanf:"capability"` // chat, text, embedding
	Provider   string `koanf:"provider"`   // openai, anthropic, gemini, qwen, ollama, mock
	Model      string `koanf:"model"`
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	Default    bool   `koanf:"default"`
	// Response is the canned reply of the mock provider.
	Response string `koanf:"response"`
}

type MemoryConfig struct {
	Provider         string `koanf:"provider"` // none, inmemory, chromem, qdrant
	QdrantAddr       string `koanf:"qdrant_addr"`
	PersistPath      string `koanf:"persist_path"`
	Compress         bool   `koanf:"compress"`
	EmbeddingService string `koanf:"embedding_service"`
}

type RetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	MaxAttempts    int     `koanf:"max_attempts"`
	InitialDelayMS int     `koanf:"initial_delay_ms"`
	MaxDelayMS     int     `koanf:"max_delay_ms"`
	Multiplier     float64 `koanf:"multiplier"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`

	// BreakerFailures consecutive failures open a circuit breaker shared by
	// the kernel's AI clients. Zero disables it.
	BreakerFailures    int `koanf:"breaker_failures"`
	BreakerOpenSeconds int `koanf:"breaker_open_seconds"`
}

type AuditConfig struct {
	Enabled bool `koanf:"enabled"`
	// Path of the SQLite database. Events stay in memory when empty.
	Path string `koanf:"path"`
}

type SkillsConfig struct {
	Directory string   `koanf:"directory"`
	Load      []string `koanf:"load"`
	Core      bool     `koanf:"core"`
}

// GovernanceConfig restricts which functions pipelines and models may
// call. Policies are evaluated in order and the first match wins.
type GovernanceConfig struct {
	Default  string         `koanf:"default"` // allow, deny
	Policies []PolicyConfig `koanf:"policies"`
}

// PolicyConfig matches "skill.function" with a glob pattern.
type PolicyConfig struct {
	ID       string `koanf:"id"`
	Effect   string `koanf:"effect"` // allow, deny, skip
	Function string `koanf:"function"`
	Reason   string `koanf:"reason"`
}

// Enabled reports whether any policy applies.
func (g GovernanceConfig) Enabled() bool {
	return len(g.Policies) > 0 || strings.EqualFold(g.Default, "deny")
}

// GuardrailsConfig inspects what semantic functions read and answer.
type GuardrailsConfig struct {
	PromptInjection   bool     `koanf:"prompt_injection"`
	InjectionPatterns []string `koanf:"injection_patterns"`
	PII               string   `koanf:"pii"` // none, mask, redact
	FailOpen          bool     `koanf:"fail_open"`
}

// OpenAPIConfig points at an OpenAPI 3 document, a file or an http(s) URL.
type OpenAPIConfig struct {
	Spec         string `koanf:"spec"`
	BaseURL      string `koanf:"base_url"`
	BearerToken  string `koanf:"bearer_token"`
	APIKey       string `koanf:"api_key"`
	APIKeyHeader string `koanf:"api_key_header"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
	Serve   MCPServeConfig             `koanf:"serve"`
}

// MCPServerConfig is a remote MCP server whose tools become native
// functions of the skill named after the map key.
type MCPServerConfig struct {
	Transport      string            `koanf:"transport"` // stdio, http
	Command        string            `koanf:"command"`
	Args           []string          `koanf:"args"`
	Env            []string          `koanf:"env"` // KEY=value, stdio only
	URL            string            `koanf:"url"`
	Headers        map[string]string `koanf:"headers"` // http only
	TimeoutSeconds int               `koanf:"timeout_seconds"`
}

// MCPServeConfig controls how kernel functions are served over MCP.
type MCPServeConfig struct {
	Name      string `koanf:"name"`
	Transport string `koanf:"transport"` // stdio, http
	Addr      string `koanf:"addr"`
}

func defaults(kc *koanf.Koanf) {
	_ = kc.Set("log.level", "info")
	_ = kc.Set("log.format", "text")
	_ = kc.Set("telemetry.exporter", "none")
	_ = kc.Set("telemetry.service_name", "semkernel")
	_ = kc.Set("telemetry.otlp_endpoint", "localhost:4317")
	_ = kc.Set("telemetry.otlp_insecure", true)

	_ = kc.Set("memory.provider", "none")
	_ = kc.Set("memory.qdrant_addr", "localhost:6334")

	_ = kc.Set("retry.enabled", false)
	_ = kc.Set("retry.max_attempts", 3)
	_ = kc.Set("retry.initial_delay_ms", 200)
	_ = kc.Set("retry.max_delay_ms", 5000)
	_ = kc.Set("retry.multiplier", 2.0)

	_ = kc.Set("skills.core", true)

	_ = kc.Set("governance.default", "allow")
	_ = kc.Set("guardrails.pii", "none")

	_ = kc.Set("mcp.serve.name", "semkernel")
	_ = kc.Set("mcp.serve.transport", "stdio")
	_ = kc.Set("mcp.serve.addr", ":8090")
}

// Load reads the configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile reads path, then config.<profile>.yaml next to it when
// that file exists, then the environment.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI reads the configuration using --config, --profile (or --env)
// and repeated --set key=value flags from args. Unknown flags are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, sets)
}

func load(path, profile string, sets map[string]any) (*Config, error) {
	kc := koanf.New(".")
	defaults(kc)

	if path != "" {
		if err := kc.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if p := profileConfigPath(path, profile); p != "" {
			if err := kc.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile config %s: %w", p, err)
			}
		}
	}

	if err := kc.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, value := range sets {
		if err := kc.Set(key, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := kc.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SEMKERNEL_MEMORY__QDRANT_ADDR to memory.qdrant_addr.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// profileConfigPath returns the profile file next to base, or "" when
// there is none.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	sets := make(map[string]any)

	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("missing value for %s", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return opts, nil, fmt.Errorf("invalid --set value %q, expected key=value", value)
			}
			sets[key] = overrideValue(raw)
		}
	}
	return opts, sets, nil
}

// overrideValue decodes JSON objects and arrays. Scalars stay strings and
// are converted when the config is decoded.
func overrideValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}
