package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/semkernel/pkg/audit"
	"github.com/jllopis/semkernel/pkg/config"
	"github.com/jllopis/semkernel/pkg/core"
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/resilience"
	"github.com/jllopis/semkernel/pkg/services"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Services = []config.ServiceConfig{{
		ID: "mock", Capability: "chat", Provider: "mock", Response: "canned", Default: true,
	}}
	return cfg
}

func newRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), cfg, WithLogger(quietLogger()), WithoutTelemetry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestNewRegistersServicesAndCoreSkills(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Audit.Enabled = true
	rt := newRuntime(t, cfg)
	k := rt.Kernel

	for _, name := range [][2]string{{"text", "uppercase"}, {"math", "add"}, {"time", "now"}, {"memory", "recall"}, {"wait", "seconds"}, {"ConversationSummarySkill", "summarizeChunk"}} {
		_, err := k.Func(name[0], name[1])
		assert.NoError(t, err, "%s.%s", name[0], name[1])
	}

	fn, err := k.CreateSemanticFunction("Say {{$input}}", kernel.WithSkillName("demo"), kernel.WithFunctionName("say"))
	require.NoError(t, err)
	upper, err := k.Func("text", "uppercase")
	require.NoError(t, err)

	kctx, err := k.Run(context.Background(), []*orchestration.Function{fn, upper}, kernel.WithInput("hi"))
	require.NoError(t, err)
	require.False(t, kctx.ErrorOccurred(), kctx.LastErrorDescription())
	assert.Equal(t, "CANNED", kctx.Result())

	require.NotNil(t, rt.Audit)
	events, err := rt.Audit.List(context.Background(), audit.Filter{Function: "say"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	assert.Equal(t, []string{"audit", "kernel"}, rt.Health.Components())
	_, overall := rt.Health.CheckAll(context.Background())
	assert.Equal(t, core.HealthHealthy, overall)
}

func TestNewRegistersProviders(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Services = append(cfg.Services,
		config.ServiceConfig{ID: "gem", Capability: "chat", Provider: "gemini", Model: "gemini-2.5-flash", APIKey: "k"},
		config.ServiceConfig{ID: "gem-embed", Capability: "embedding", Provider: "gemini", APIKey: "k"},
		config.ServiceConfig{ID: "qwen", Capability: "chat", Provider: "qwen", Model: "qwen-plus", APIKey: "k"},
	)
	rt := newRuntime(t, cfg)

	for _, id := range []string{"mock", "gem", "qwen"} {
		_, err := rt.Kernel.GetAIService(services.ChatCompletion, id)
		assert.NoError(t, err, id)
	}
	_, err := rt.Kernel.GetAIService(services.Embedding, "gem-embed")
	assert.NoError(t, err)

	assert.Equal(t, DashScopeBaseURL, providerBaseURL(config.ServiceConfig{Provider: "Qwen"}))
	assert.Equal(t, "http://x", providerBaseURL(config.ServiceConfig{Provider: "qwen", BaseURL: "http://x"}))
}

func TestNewWithoutCoreSkills(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Skills.Core = false
	rt := newRuntime(t, cfg)
	assert.Empty(t, rt.Kernel.Skills().Functions())
	assert.Nil(t, rt.Audit)

	results, overall := rt.Health.CheckAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "kernel", results[0].Component)
	assert.Equal(t, core.HealthDegraded, overall)
}

func TestNewSQLiteAudit(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Audit = config.AuditConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "audit.db")}
	rt := newRuntime(t, cfg)

	upper, err := rt.Kernel.Func("text", "uppercase")
	require.NoError(t, err)
	_, err = rt.Kernel.Run(context.Background(), []*orchestration.Function{upper}, kernel.WithInput("x"))
	require.NoError(t, err)

	_, ok := rt.Audit.(*audit.SQLiteStore)
	require.True(t, ok)
	events, err := rt.Audit.List(context.Background(), audit.Filter{Skill: "text"})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNewMemoryWithOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.5, 0.5, 0.1}}})
	}))
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.Services = append(cfg.Services, config.ServiceConfig{
		ID: "embed", Capability: "embedding", Provider: "ollama", Model: "nomic-embed-text", BaseURL: srv.URL,
	})
	cfg.Memory = config.MemoryConfig{Provider: "inmemory", EmbeddingService: "embed"}
	rt := newRuntime(t, cfg)

	mem := rt.Kernel.Memory()
	require.NoError(t, mem.SaveInformation(context.Background(), "facts", "the sky is blue", "sky"))
	results, err := mem.Search(context.Background(), "facts", "what color is the sky", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "the sky is blue", results[0].Text)
}

func TestNewChromemMemory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1, 0}}})
	}))
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.Services = append(cfg.Services, config.ServiceConfig{
		ID: "embed", Capability: "embedding", Provider: "ollama", BaseURL: srv.URL, Default: true,
	})
	cfg.Memory = config.MemoryConfig{Provider: "chromem", PersistPath: filepath.Join(t.TempDir(), "chromem")}
	rt := newRuntime(t, cfg)

	require.NoError(t, rt.Kernel.Memory().SaveInformation(context.Background(), "notes", "remember the milk", "milk"))
	got, err := rt.Kernel.Memory().Get(context.Background(), "notes", "milk")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "remember the milk", got.Text)
}

func TestNewLoadsSkillDirectory(t *testing.T) {
	root := t.TempDir()
	for _, f := range []struct{ path, content string }{
		{"WriterSkill/Poem/skprompt.txt", "Write a poem about {{$input}}"},
		{"WriterSkill/Poem/config.json", `{"description": "Writes a poem"}`},
		{"FunSkill/Joke/skprompt.txt", "Tell a joke about {{$input}}"},
	} {
		p := filepath.Join(root, f.path)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f.content), 0o644))
	}

	t.Run("all skills", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Skills = config.SkillsConfig{Directory: root}
		rt := newRuntime(t, cfg)
		assert.True(t, rt.Kernel.Skills().HasFunction("WriterSkill", "Poem"))
		assert.True(t, rt.Kernel.Skills().HasFunction("FunSkill", "Joke"))

		fn, err := rt.Kernel.Func("writerskill", "poem")
		require.NoError(t, err)
		kctx, err := rt.Kernel.Run(context.Background(), []*orchestration.Function{fn}, kernel.WithInput("cats"))
		require.NoError(t, err)
		assert.Equal(t, "canned", kctx.Result())
	})

	t.Run("listed skills", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Skills = config.SkillsConfig{Directory: root, Load: []string{"FunSkill"}}
		rt := newRuntime(t, cfg)
		assert.False(t, rt.Kernel.Skills().HasFunction("WriterSkill", "Poem"))
		assert.True(t, rt.Kernel.Skills().HasFunction("FunSkill", "Joke"))
	})
}

func TestNewImportsOpenAPISkill(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		_, _ = io.WriteString(w, "up")
	}))
	defer api.Close()

	doc := filepath.Join(t.TempDir(), "status.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(`openapi: "3.0.0"
info: {title: Status, version: "1"}
paths:
  /status:
    get:
      operationId: getStatus
      summary: Report service status
`), 0o644))

	cfg := baseConfig(t)
	cfg.OpenAPI = map[string]config.OpenAPIConfig{
		"status": {Spec: doc, BaseURL: api.URL, APIKey: "secret", APIKeyHeader: "X-Key"},
	}
	rt := newRuntime(t, cfg)

	fn, err := rt.Kernel.Func("status", "getStatus")
	require.NoError(t, err)
	assert.Equal(t, "Report service status", fn.Description())
	kctx, err := rt.Kernel.Run(context.Background(), []*orchestration.Function{fn})
	require.NoError(t, err)
	assert.False(t, kctx.ErrorOccurred())
	assert.Equal(t, "up", kctx.Result())
}

func TestNewImportsMCPTools(t *testing.T) {
	server := mcpserver.NewMCPServer("tools", "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return mcpgo.NewToolResultText("pong"), nil
	})
	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	defer httpServer.Close()

	cfg := baseConfig(t)
	cfg.MCP.Servers = map[string]config.MCPServerConfig{
		"remote-tools": {Transport: "http", URL: httpServer.URL, TimeoutSeconds: 5},
	}
	rt := newRuntime(t, cfg)

	fn, err := rt.Kernel.Func("remote_tools", "ping")
	require.NoError(t, err)
	kctx, err := rt.Kernel.Run(context.Background(), []*orchestration.Function{fn})
	require.NoError(t, err)
	assert.Equal(t, "pong", kctx.Result())

	results, overall := rt.Health.CheckAll(context.Background())
	assert.Equal(t, core.HealthHealthy, overall)
	require.Len(t, results, 2)
	assert.Equal(t, "mcp/remote-tools", results[1].Component)

	httpServer.Close()
	results, overall = rt.Health.CheckAll(context.Background())
	assert.Equal(t, core.HealthUnhealthy, overall)
	assert.Equal(t, core.HealthUnhealthy, results[1].Status)
}

func TestNewErrors(t *testing.T) {
	tests := map[string]func(cfg *config.Config){
		"unknown provider": func(cfg *config.Config) {
			cfg.Services = []config.ServiceConfig{{ID: "x", Provider: "nope"}}
		},
		"unknown capability": func(cfg *config.Config) {
			cfg.Services = []config.ServiceConfig{{ID: "x", Provider: "mock", Capability: "vision"}}
		},
		"empty service id": func(cfg *config.Config) {
			cfg.Services = []config.ServiceConfig{{Provider: "mock"}}
		},
		"unknown memory provider": func(cfg *config.Config) {
			cfg.Memory.Provider = "redis"
		},
		"memory without embedder": func(cfg *config.Config) {
			cfg.Memory.Provider = "inmemory"
		},
		"embedding without support": func(cfg *config.Config) {
			cfg.Services = append(cfg.Services, config.ServiceConfig{ID: "e", Capability: "embedding", Provider: "anthropic", Default: true})
			cfg.Memory.Provider = "inmemory"
		},
		"missing openapi document": func(cfg *config.Config) {
			cfg.OpenAPI = map[string]config.OpenAPIConfig{"x": {Spec: "/does/not/exist.yaml"}}
		},
		"unknown mcp transport": func(cfg *config.Config) {
			cfg.MCP.Servers = map[string]config.MCPServerConfig{"x": {Transport: "carrier-pigeon"}}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(t)
			mutate(cfg)
			_, err := New(context.Background(), cfg, WithLogger(quietLogger()), WithoutTelemetry())
			require.Error(t, err)
		})
	}

	_, err := New(context.Background(), nil)
	assert.True(t, kerrors.Is(err, kerrors.CodeConfiguration))
}

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(config.RetryConfig{MaxAttempts: 5, InitialDelayMS: 10, MaxDelayMS: 100, Multiplier: 3, TimeoutSeconds: 2}, quietLogger())
	assert.Equal(t, 5, p.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.Retry.InitialDelay)
	assert.Equal(t, 100*time.Millisecond, p.Retry.MaxDelay)
	assert.Equal(t, 3.0, p.Retry.Multiplier)
	assert.Equal(t, 2*time.Second, p.Timeout)

	assert.Nil(t, p.Breaker)

	p = retryPolicy(config.RetryConfig{}, nil)
	assert.Equal(t, 3, p.Retry.MaxAttempts)
	assert.Zero(t, p.Timeout)

	p = retryPolicy(config.RetryConfig{BreakerFailures: 4, BreakerOpenSeconds: 10}, nil)
	require.NotNil(t, p.Breaker)
	assert.Equal(t, "ai_services", p.Breaker.Name())
	assert.Equal(t, resilience.StateClosed, p.Breaker.State())
}

func TestNewWithTelemetryNone(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Retry.Enabled = true
	rt, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, rt.Close(context.Background()))
}

func TestNewAttachesGovernanceAndGuardrails(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Services[0].Response = "reach me at ops@example.com"
	cfg.Governance.Policies = []config.PolicyConfig{{ID: "no-math", Effect: "deny", Function: "math.*"}}
	cfg.Guardrails.PII = "mask"
	rt := newRuntime(t, cfg)
	k := rt.Kernel
	require.NotNil(t, rt.Policy)

	fn, err := k.CreateSemanticFunction("{{$input}}", kernel.WithSkillName("demo"), kernel.WithFunctionName("contact"))
	require.NoError(t, err)
	kctx, err := k.Run(context.Background(), []*orchestration.Function{fn}, kernel.WithInput("who?"))
	require.NoError(t, err)
	require.False(t, kctx.ErrorOccurred(), kctx.LastErrorDescription())
	assert.Equal(t, "reach me at [EMAIL]", kctx.Result())

	add, err := k.Func("math", "add")
	require.NoError(t, err)
	kctx, err = k.Run(context.Background(), []*orchestration.Function{add}, kernel.WithInput("1"))
	require.NoError(t, err)
	assert.True(t, kctx.ErrorOccurred())
	assert.Contains(t, kctx.LastErrorDescription(), "no-math")

	tools, err := k.ToolDefinitions(rt.ToolFilter(kernel.ToolFilter{}))
	require.NoError(t, err)
	for _, tool := range tools {
		assert.NotContains(t, tool.Function.Name, "math-")
	}
}
