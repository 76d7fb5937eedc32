// Package bootstrap builds a ready-to-use Kernel from a config.Config:
// AI services, semantic memory, retry policy, audit trail, telemetry,
// core skills, prompt skill directories, OpenAPI skills and remote MCP tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/semkernel/pkg/audit"
	"github.com/jllopis/semkernel/pkg/config"
	"github.com/jllopis/semkernel/pkg/connectors"
	"github.com/jllopis/semkernel/pkg/core"
	"github.com/jllopis/semkernel/pkg/coreskills"
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/governance"
	"github.com/jllopis/semkernel/pkg/guardrails"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/mcp"
	"github.com/jllopis/semkernel/pkg/memory"
	"github.com/jllopis/semkernel/pkg/memory/chromem"
	"github.com/jllopis/semkernel/pkg/memory/qdrant"
	"github.com/jllopis/semkernel/pkg/resilience"
	"github.com/jllopis/semkernel/pkg/skills"
	"github.com/jllopis/semkernel/pkg/telemetry"
)

// Version is reported to telemetry and MCP peers.
const Version = "0.1.0"

// Runtime is a configured kernel and the resources it holds.
type Runtime struct {
	Kernel *kernel.Kernel
	// Audit is nil unless auditing is enabled.
	Audit  audit.Store
	Logger *slog.Logger
	// Health checks the kernel, memory store, audit store and MCP servers.
	Health *core.HealthRegistry
	// Policy is nil unless governance policies are configured.
	Policy *governance.RuleSet

	closers  []func() error
	shutdown telemetry.ShutdownFunc
}

// Option configures New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	logOutput io.Writer
	skipOTel  bool
}

// WithLogger uses logger instead of configuring slog from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogOutput sets where logs are written. The default is stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithoutTelemetry skips the OpenTelemetry SDK setup.
func WithoutTelemetry() Option {
	return func(o *options) { o.skipOTel = true }
}

// New builds the runtime described by cfg. On error every resource opened
// so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "configuration cannot be nil", nil)
	}
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		Logger: o.logger,
		Health: core.NewHealthRegistry(5*time.Second, 0),
	}
	if rt.Logger == nil {
		rt.Logger = telemetry.ConfigureSlog(o.logOutput, cfg.Log.Level, cfg.Log.Format)
	}

	if err := rt.build(ctx, cfg, o); err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, cfg *config.Config, o options) error {
	kopts := []kernel.Option{kernel.WithLogger(rt.Logger)}

	if !o.skipOTel {
		shutdown, err := telemetry.Setup(ctx, telemetry.Config{
			ServiceName:    serviceName(cfg),
			Version:        Version,
			Exporter:       cfg.Telemetry.Exporter,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
			OTLPTimeout:    time.Duration(cfg.Telemetry.OTLPTimeoutSeconds) * time.Second,
			OTLPHeaders:    cfg.Telemetry.Headers(),
			SampleRatio:    cfg.Telemetry.SampleRatio,
			MetricInterval: time.Duration(cfg.Telemetry.MetricIntervalSeconds) * time.Second,
			Output:         o.logOutput,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		rt.shutdown = shutdown
		metrics, err := telemetry.NewInvocationMetrics()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		kopts = append(kopts, kernel.WithMetrics(metrics))
	}

	if cfg.Retry.Enabled {
		kopts = append(kopts, kernel.WithRetry(retryPolicy(cfg.Retry, rt.Logger)))
	}

	if cfg.Audit.Enabled {
		store, err := rt.auditStore(cfg.Audit)
		if err != nil {
			return err
		}
		rt.Audit = store
		rt.Health.Register("audit", core.CheckError(func(ctx context.Context) error {
			_, err := store.List(ctx, audit.Filter{Limit: 1})
			return err
		}))
		kopts = append(kopts, kernel.WithEventEmitter(audit.NewEmitter(store, rt.Logger)))
	}

	k := kernel.New(kopts...)
	rt.Kernel = k
	rt.Health.Register("kernel", kernelHealth(k))

	if cfg.Governance.Enabled() {
		rt.Policy = governance.RuleSetFromConfig(cfg.Governance)
		rt.Policy.Attach(k, rt.Logger)
		rt.Logger.Info("bootstrap.governance", slog.Int("policies", len(cfg.Governance.Policies)))
	}
	if guard := newGuard(cfg.Guardrails); !guard.Empty() {
		guard.Attach(k, rt.Logger)
		rt.Logger.Info("bootstrap.guardrails",
			slog.Bool("prompt_injection", cfg.Guardrails.PromptInjection),
			slog.String("pii", cfg.Guardrails.PII),
		)
	}

	if err := registerServices(k, cfg.Services); err != nil {
		return err
	}
	if err := rt.useMemory(k, cfg.Memory); err != nil {
		return err
	}

	if cfg.Skills.Core {
		if err := coreskills.Register(k); err != nil {
			return err
		}
		if hasChatOrText(cfg.Services) {
			if _, err := coreskills.NewConversationSummary(k); err != nil {
				return err
			}
		}
	}
	if cfg.Skills.Directory != "" {
		n, err := loadSkills(k, cfg.Skills)
		if err != nil {
			return err
		}
		rt.Logger.Info("bootstrap.skills.loaded",
			slog.String("directory", cfg.Skills.Directory),
			slog.Int("functions", n),
		)
	}

	if err := rt.importOpenAPI(ctx, k, cfg.OpenAPI); err != nil {
		return err
	}
	return rt.importMCP(ctx, k, cfg.MCP.Servers)
}

func newGuard(gc config.GuardrailsConfig) *guardrails.Guard {
	opts := []guardrails.Option{guardrails.WithFailOpen(gc.FailOpen)}
	if gc.PromptInjection {
		opts = append(opts, guardrails.WithPromptInjectionDetector(gc.InjectionPatterns...))
	}
	if mode, ok := guardrails.ParsePIIMode(gc.PII); ok {
		opts = append(opts, guardrails.WithPIIFilter(mode))
	}
	return guardrails.New(opts...)
}

func serviceName(cfg *config.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return "semkernel"
}

func retryPolicy(rc config.RetryConfig, logger *slog.Logger) resilience.Policy {
	retry := resilience.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		retry = retry.WithMaxAttempts(rc.MaxAttempts)
	}
	if rc.InitialDelayMS > 0 {
		retry = retry.WithInitialDelay(time.Duration(rc.InitialDelayMS) * time.Millisecond)
	}
	if rc.MaxDelayMS > 0 {
		retry = retry.WithMaxDelay(time.Duration(rc.MaxDelayMS) * time.Millisecond)
	}
	if rc.Multiplier > 0 {
		retry.Multiplier = rc.Multiplier
	}
	policy := resilience.Policy{
		Retry:   retry,
		Timeout: time.Duration(rc.TimeoutSeconds) * time.Second,
		Logger:  logger,
	}
	if rc.BreakerFailures > 0 {
		if logger == nil {
			logger = slog.Default()
		}
		policy.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: rc.BreakerFailures,
			Timeout:          time.Duration(rc.BreakerOpenSeconds) * time.Second,
			Name:             "ai_services",
			OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
				logger.Warn("resilience.breaker",
					slog.String("breaker", name),
					slog.String("from", string(from)),
					slog.String("to", string(to)))
			},
		})
	}
	return policy
}

func (rt *Runtime) auditStore(ac config.AuditConfig) (audit.Store, error) {
	if ac.Path == "" {
		return audit.NewMemoryStore(), nil
	}
	store, err := audit.OpenSQLite(ac.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

func (rt *Runtime) useMemory(k *kernel.Kernel, mc config.MemoryConfig) error {
	var store memory.VectorStore
	switch strings.ToLower(mc.Provider) {
	case "", "none":
		return nil
	case "inmemory":
		store = memory.NewInMemoryStore()
	case "chromem":
		if mc.PersistPath == "" {
			store = chromem.New()
			break
		}
		s, err := chromem.NewPersistent(mc.PersistPath, mc.Compress)
		if err != nil {
			return kerrors.New(kerrors.CodeMemoryError, "open chromem store", err)
		}
		store = s
	case "qdrant":
		s, err := qdrant.New(mc.QdrantAddr)
		if err != nil {
			return kerrors.New(kerrors.CodeMemoryError, "connect qdrant", err)
		}
		rt.closers = append(rt.closers, s.Close)
		store = s
	default:
		return kerrors.New(kerrors.CodeConfiguration,
			fmt.Sprintf("unknown memory provider %q", mc.Provider), nil)
	}

	if mc.EmbeddingService != "" {
		if err := k.SetDefaultTextEmbeddingGenerationService(mc.EmbeddingService); err != nil {
			return err
		}
	}
	if err := k.UseMemory(store, nil); err != nil {
		return err
	}
	rt.Health.Register("memory", core.CheckError(func(ctx context.Context) error {
		_, err := store.Collections(ctx)
		return err
	}))
	rt.Logger.Info("bootstrap.memory", slog.String("provider", mc.Provider))
	return nil
}

func (rt *Runtime) importOpenAPI(ctx context.Context, k *kernel.Kernel, apis map[string]config.OpenAPIConfig) error {
	names := make([]string, 0, len(apis))
	for name := range apis {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ac := apis[name]
		opts := []connectors.Option{connectors.WithLogger(rt.Logger)}
		if ac.BaseURL != "" {
			opts = append(opts, connectors.WithBaseURL(ac.BaseURL))
		}
		switch {
		case ac.BearerToken != "":
			opts = append(opts, connectors.WithBearerToken(ac.BearerToken))
		case ac.APIKey != "":
			opts = append(opts, connectors.WithAPIKey(ac.APIKey, ac.APIKeyHeader))
		}
		api, err := connectors.LoadOpenAPISkill(ctx, ac.Spec, opts...)
		if err != nil {
			return fmt.Errorf("openapi skill %s: %w", name, err)
		}
		fns, err := api.Register(k, name)
		if err != nil {
			return fmt.Errorf("openapi skill %s: %w", name, err)
		}
		rt.Logger.Info("bootstrap.openapi", slog.String("skill", name), slog.Int("functions", len(fns)))
	}
	return nil
}

func (rt *Runtime) importMCP(ctx context.Context, k *kernel.Kernel, servers map[string]config.MCPServerConfig) error {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := servers[name]
		var opts []mcp.ClientOption
		if sc.TimeoutSeconds > 0 {
			opts = append(opts, mcp.WithTimeout(time.Duration(sc.TimeoutSeconds)*time.Second))
		}
		if len(sc.Env) > 0 {
			opts = append(opts, mcp.WithEnv(sc.Env...))
		}
		if len(sc.Headers) > 0 {
			opts = append(opts, mcp.WithHeaders(sc.Headers))
		}

		var (
			client *mcp.Client
			err    error
		)
		switch strings.ToLower(sc.Transport) {
		case "stdio", "":
			client, err = mcp.DialStdio(ctx, sc.Command, sc.Args, opts...)
		case "http":
			client, err = mcp.DialHTTP(ctx, sc.URL, opts...)
		default:
			err = kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("unknown transport %q", sc.Transport), nil)
		}
		if err != nil {
			return fmt.Errorf("mcp server %s: %w", name, err)
		}
		rt.closers = append(rt.closers, client.Close)
		rt.Health.Register("mcp/"+name, core.CheckError(client.Ping))

		if _, err := mcp.ImportTools(ctx, k, client, mcp.FunctionName(name)); err != nil {
			return fmt.Errorf("mcp server %s: %w", name, err)
		}
	}
	return nil
}

// ToolFilter adds the governance policy, if any, to filter.
func (rt *Runtime) ToolFilter(filter kernel.ToolFilter) kernel.ToolFilter {
	if rt.Policy != nil && filter.Allow == nil {
		filter.Allow = rt.Policy.Allows
	}
	return filter
}

// Close releases stores, MCP clients and telemetry exporters.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		rt.shutdown = nil
	}
	return errors.Join(errs...)
}

// kernelHealth is degraded while no function is registered.
func kernelHealth(k *kernel.Kernel) core.HealthChecker {
	return core.HealthCheckFunc(func(context.Context) core.HealthResult {
		n := len(k.Skills().Functions())
		if n == 0 {
			return core.HealthResult{Status: core.HealthDegraded, Message: "no functions registered"}
		}
		return core.HealthResult{Status: core.HealthHealthy, Message: fmt.Sprintf("%d functions", n)}
	})
}

func hasChatOrText(list []config.ServiceConfig) bool {
	for _, sc := range list {
		switch strings.ToLower(sc.Capability) {
		case CapabilityChat, CapabilityText, "":
			return true
		}
	}
	return false
}

// loadSkills imports the listed skill directories, or every skill under
// the directory when none is listed.
func loadSkills(k *kernel.Kernel, sc config.SkillsConfig) (int, error) {
	if len(sc.Load) > 0 {
		fns, err := k.ImportSemanticSkillFromDirectory(sc.Directory, sc.Load...)
		return len(fns), err
	}
	sources, err := skills.LoadDir(sc.Directory)
	if err != nil {
		return 0, kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("load skills from %s", sc.Directory), err)
	}
	for _, src := range sources {
		if _, err := k.RegisterSemanticSource(src); err != nil {
			return 0, err
		}
	}
	return len(sources), nil
}
