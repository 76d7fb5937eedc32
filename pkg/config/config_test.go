package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected telemetry exporter none, got %s", cfg.Telemetry.Exporter)
	}
	if cfg.Memory.Provider != "none" {
		t.Errorf("expected memory provider none, got %s", cfg.Memory.Provider)
	}
	if cfg.Retry.Enabled || cfg.Retry.MaxAttempts != 3 || cfg.Retry.Multiplier != 2.0 {
		t.Errorf("unexpected retry defaults %+v", cfg.Retry)
	}
	if !cfg.Skills.Core {
		t.Errorf("expected core skills enabled by default")
	}
	if cfg.MCP.Serve.Transport != "stdio" {
		t.Errorf("expected stdio serve transport, got %s", cfg.MCP.Serve.Transport)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semkernel.yaml")
	writeFile(t, path, `
log:
  level: debug
services:
  - id: gpt
    capability: chat
    provider: openai
    model: gpt-4o-mini
    default: true
  - id: embed
    capability: embedding
    provider: ollama
    model: nomic-embed-text
memory:
  provider: chromem
  embedding_service: embed
audit:
  enabled: true
  path: /tmp/audit.db
skills:
  directory: ./skills
  load: [FunSkill, WriterSkill]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 services, got %+v", cfg.Services)
	}
	if cfg.Services[0].ID != "gpt" || !cfg.Services[0].Default || cfg.Services[0].Capability != "chat" {
		t.Errorf("unexpected first service %+v", cfg.Services[0])
	}
	if cfg.Memory.Provider != "chromem" || cfg.Memory.EmbeddingService != "embed" {
		t.Errorf("unexpected memory %+v", cfg.Memory)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Path != "/tmp/audit.db" {
		t.Errorf("unexpected audit %+v", cfg.Audit)
	}
	if len(cfg.Skills.Load) != 2 || cfg.Skills.Load[1] != "WriterSkill" {
		t.Errorf("unexpected skills %+v", cfg.Skills)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SEMKERNEL_LOG__LEVEL", "warn")
	t.Setenv("SEMKERNEL_MEMORY__QDRANT_ADDR", "qdrant:6334")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("expected level warn from env, got %s", cfg.Log.Level)
	}
	if cfg.Memory.QdrantAddr != "qdrant:6334" {
		t.Errorf("expected qdrant addr from env, got %s", cfg.Memory.QdrantAddr)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, `
memory:
  provider: inmemory
  qdrant_addr: base:6334
log:
  level: info
`)
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), `
memory:
  provider: chromem
log:
  level: debug
`)
	writeFile(t, filepath.Join(tmpDir, "config.prod.yaml"), `
memory:
  provider: qdrant
log:
  level: warn
`)

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
	}{
		{name: "no profile - base only", profile: "", wantProvider: "inmemory", wantLogLevel: "info"},
		{name: "dev profile", profile: "dev", wantProvider: "chromem", wantLogLevel: "debug"},
		{name: "prod profile", profile: "prod", wantProvider: "qdrant", wantLogLevel: "warn"},
		{name: "nonexistent profile - falls back to base", profile: "staging", wantProvider: "inmemory", wantLogLevel: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.Memory.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.Memory.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.Memory.QdrantAddr != "base:6334" {
				t.Errorf("qdrant addr should be inherited from base, got %s", cfg.Memory.QdrantAddr)
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, `
memory:
  provider: inmemory
telemetry:
  exporter: stdout
`)
	t.Setenv("SEMKERNEL_MEMORY__PROVIDER", "qdrant")

	cfg, err := LoadWithCLI([]string{
		"run", "--config", path,
		"--set", "memory.provider=chromem",
		"--set", "audit.enabled=true",
		"--set", "telemetry.otlp_timeout_seconds=12",
		"--set=retry.max_attempts=5",
		`--set`, `mcp.servers={"demo":{"transport":"http","url":"http://localhost:8080"}}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.Memory.Provider != "chromem" {
		t.Fatalf("expected cli override provider, got %s", cfg.Memory.Provider)
	}
	if !cfg.Audit.Enabled {
		t.Fatalf("expected audit.enabled=true")
	}
	if cfg.Telemetry.OTLPTimeoutSeconds != 12 {
		t.Fatalf("expected telemetry timeout override")
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected retry override, got %d", cfg.Retry.MaxAttempts)
	}
	server, ok := cfg.MCP.Servers["demo"]
	if !ok {
		t.Fatalf("expected demo MCP server override")
	}
	if server.URL != "http://localhost:8080" || server.Transport != "http" {
		t.Fatalf("unexpected MCP server %+v", server)
	}
}

func TestLoadWithCLIProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	writeFile(t, basePath, "memory:\n  provider: inmemory\n")
	writeFile(t, filepath.Join(tmpDir, "config.dev.yaml"), "memory:\n  provider: chromem\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "profile flag", args: []string{"--config", basePath, "--profile", "dev"}},
		{name: "env flag alias", args: []string{"--config", basePath, "--env", "dev"}},
		{name: "profile with equals", args: []string{"--config=" + basePath, "--profile=dev"}},
		{name: "env with equals", args: []string{"--config=" + basePath, "--env=dev"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithCLI(tc.args)
			if err != nil {
				t.Fatalf("LoadWithCLI failed: %v", err)
			}
			if cfg.Memory.Provider != "chromem" {
				t.Errorf("provider: got %s, want chromem", cfg.Memory.Provider)
			}
		})
	}
}

func TestLoadWithCLITelemetryHeaders(t *testing.T) {
	cfg, err := LoadWithCLI([]string{
		"--set", "telemetry.exporter=otlp",
		"--set", "telemetry.otlp_endpoint=collector:4317",
		"--set", "telemetry.otlp_headers.x-api-key=secret-token",
		"--set", "telemetry.otlp_user=admin",
		"--set", "telemetry.otlp_token=password123",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}

	if cfg.Telemetry.Exporter != "otlp" || cfg.Telemetry.OTLPEndpoint != "collector:4317" {
		t.Errorf("unexpected telemetry %+v", cfg.Telemetry)
	}
	headers := cfg.Telemetry.Headers()
	if headers["x-api-key"] != "secret-token" {
		t.Errorf("expected x-api-key=secret-token, got %s", headers["x-api-key"])
	}
	// base64("admin:password123")
	if headers["authorization"] != "Basic YWRtaW46cGFzc3dvcmQxMjM=" {
		t.Errorf("unexpected authorization header %q", headers["authorization"])
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	writeFile(t, devPath, "test")
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{name: "existing profile", base: basePath, profile: "dev", wantPath: devPath},
		{name: "nonexistent profile", base: basePath, profile: "prod", wantPath: ""},
		{name: "empty profile", base: basePath, profile: "", wantPath: ""},
		{name: "empty base", base: "", profile: "dev", wantPath: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileConfigPath(tc.base, tc.profile); got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
