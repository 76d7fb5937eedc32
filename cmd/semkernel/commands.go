package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jllopis/semkernel/pkg/audit"
	"github.com/jllopis/semkernel/pkg/bootstrap"
	"github.com/jllopis/semkernel/pkg/config"
	"github.com/jllopis/semkernel/pkg/core"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/mcp"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// RunCmd runs functions in order, feeding each result to the next.
type RunCmd struct {
	Functions []string          `arg:"" optional:"" help:"Functions to run, as skill.function. A bare name is a global function."`
	Prompt    string            `short:"p" help:"Prompt template appended to the pipeline as a semantic function."`
	Chat      bool              `help:"Build the prompt function on a chat template."`
	Input     string            `short:"i" help:"Initial input. Use - to read standard input."`
	Var       map[string]string `short:"v" help:"Context variable." placeholder:"NAME=VALUE"`
	Stream    bool              `help:"Stream the output of the last function."`
}

func (c *RunCmd) Run(ctx context.Context, cli *CLI, con *console) error {
	_, rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	fns, err := c.pipeline(rt.Kernel)
	if err != nil {
		return err
	}
	vars, err := c.variables(con.in)
	if err != nil {
		return err
	}

	if c.Stream {
		return c.stream(ctx, rt.Kernel, fns, vars, con.out)
	}

	kctx, err := rt.Kernel.Run(ctx, fns, kernel.WithInputVariables(vars))
	if err != nil {
		return err
	}
	if kctx.ErrorOccurred() {
		return fmt.Errorf("run failed: %s", kctx.LastErrorDescription())
	}
	fmt.Fprintln(con.out, kctx.Result())
	return nil
}

func (c *RunCmd) stream(ctx context.Context, k *kernel.Kernel, fns []*orchestration.Function, vars *orchestration.Variables, out io.Writer) error {
	kctx, chunks, err := k.RunStream(ctx, fns, kernel.WithInputVariables(vars))
	if err != nil {
		return err
	}
	var streamErr error
	for chunk := range chunks {
		if chunk.Error != nil {
			streamErr = chunk.Error
			continue
		}
		fmt.Fprint(out, chunk.Content)
	}
	fmt.Fprintln(out)
	if streamErr != nil {
		return streamErr
	}
	if kctx.ErrorOccurred() {
		return fmt.Errorf("run failed: %s", kctx.LastErrorDescription())
	}
	return nil
}

func (c *RunCmd) pipeline(k *kernel.Kernel) ([]*orchestration.Function, error) {
	fns := make([]*orchestration.Function, 0, len(c.Functions)+1)
	for _, ref := range c.Functions {
		skill, name, ok := strings.Cut(ref, ".")
		if !ok {
			skill, name = orchestration.GlobalSkill, ref
		}
		fn, err := k.Func(skill, name)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if c.Prompt != "" {
		var opts []kernel.SemanticOption
		if c.Chat {
			opts = append(opts, kernel.AsChat())
		}
		fn, err := k.CreateSemanticFunction(c.Prompt, opts...)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if len(fns) == 0 {
		return nil, errors.New("nothing to run: name at least one function or pass --prompt")
	}
	return fns, nil
}

func (c *RunCmd) variables(in io.Reader) (*orchestration.Variables, error) {
	input := c.Input
	if input == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		input = strings.TrimRight(string(data), "\n")
	}
	vars := orchestration.NewVariables(input)
	for name, value := range c.Var {
		if err := vars.Set(name, value); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

// FunctionsCmd lists the registered functions.
type FunctionsCmd struct {
	Kind string `help:"Kind of functions to list." enum:"all,semantic,native" default:"all"`
	JSON bool   `help:"Print the functions view as JSON."`
}

func (c *FunctionsCmd) Run(ctx context.Context, cli *CLI, con *console) error {
	_, rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	view := rt.Kernel.Skills().View(c.Kind != "native", c.Kind != "semantic")
	if c.JSON {
		return writeJSON(con.out, view)
	}

	var rows []orchestration.FunctionView
	for _, group := range []map[string][]orchestration.FunctionView{view.Semantic, view.Native} {
		for _, list := range group {
			rows = append(rows, list...)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SkillName != rows[j].SkillName {
			return rows[i].SkillName < rows[j].SkillName
		}
		return rows[i].Name < rows[j].Name
	})

	tw := tabwriter.NewWriter(con.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tFUNCTION\tKIND\tDESCRIPTION")
	for _, v := range rows {
		kind := "native"
		if v.IsSemantic {
			kind = "semantic"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.SkillName, v.Name, kind, v.Description)
	}
	return tw.Flush()
}

// ToolsCmd prints tool definitions.
type ToolsCmd struct {
	IncludeSkill []string `help:"Only offer functions of these skills."`
	ExcludeSkill []string `help:"Never offer functions of these skills."`
}

func (c *ToolsCmd) filter() kernel.ToolFilter {
	return kernel.ToolFilter{IncludeSkills: c.IncludeSkill, ExcludeSkills: c.ExcludeSkill}
}

func (c *ToolsCmd) Run(ctx context.Context, cli *CLI, con *console) error {
	_, rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	tools, err := rt.Kernel.ToolDefinitions(rt.ToolFilter(c.filter()))
	if err != nil {
		return err
	}
	return writeJSON(con.out, tools)
}

// ServeMCPCmd serves kernel functions over MCP until interrupted.
type ServeMCPCmd struct {
	ToolsCmd `embed:""`

	Transport string `help:"MCP transport, stdio or http. Defaults to mcp.serve.transport."`
	Addr      string `help:"Listen address for the http transport. Defaults to mcp.serve.addr."`
	Watch     bool   `help:"Reload the log level when the config file changes."`
}

func (c *ServeMCPCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	srv := mcp.NewServer(cfg.MCP.Serve.Name, bootstrap.Version)
	if _, err := srv.ExposeKernel(rt.Kernel, rt.ToolFilter(c.filter())); err != nil {
		return err
	}

	if c.Watch {
		if cli.Config == "" {
			return errors.New("--watch needs --config")
		}
		w, err := config.NewWatcher(cli.Config,
			config.WithWatchLogger(rt.Logger),
			config.WithWatchProfile(cli.Profile),
		)
		if err != nil {
			return err
		}
		w.OnChange(reloadLogLevel(rt))
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	transport := firstNonEmpty(c.Transport, cfg.MCP.Serve.Transport)
	switch transport {
	case "stdio":
		return srv.ServeStdio(ctx)
	case "http":
		return srv.ServeStreamableHTTP(ctx, firstNonEmpty(c.Addr, cfg.MCP.Serve.Addr))
	default:
		return fmt.Errorf("unknown mcp transport %q", transport)
	}
}

// AuditCmd lists events from the SQLite audit store.
type AuditCmd struct {
	RunID    string `name:"run" help:"Only events of this run."`
	Skill    string `help:"Only events of this skill."`
	Function string `help:"Only events of this function."`
	Type     string `help:"Only events of this type, e.g. kernel.function.invoked."`
	Limit    int    `help:"Maximum number of events." default:"100"`
	JSON     bool   `help:"Print events as JSON."`
}

func (c *AuditCmd) Run(ctx context.Context, cli *CLI, con *console) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.Path == "" {
		return errors.New("audit.path is not set: events are only kept in memory")
	}
	store, err := audit.OpenSQLite(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.List(ctx, audit.Filter{
		RunID:    c.RunID,
		Skill:    c.Skill,
		Function: c.Function,
		Type:     core.EventType(c.Type),
		Limit:    c.Limit,
	})
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(con.out, events)
	}

	tw := tabwriter.NewWriter(con.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tSTEP\tTYPE\tFUNCTION")
	for _, ev := range events {
		fn := ev.Function
		if ev.Skill != "" {
			fn = ev.Skill + "." + ev.Function
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			ev.Timestamp.Format(time.RFC3339), ev.RunID, ev.Step, ev.Type, fn)
	}
	return tw.Flush()
}

// HealthCmd runs the runtime health checks. It fails when a component is
// unhealthy.
type HealthCmd struct {
	JSON bool `help:"Print results as JSON."`
}

func (c *HealthCmd) Run(ctx context.Context, cli *CLI, con *console) error {
	_, rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	results, overall := rt.Health.CheckAll(ctx)
	if c.JSON {
		if err := writeJSON(con.out, map[string]any{"status": overall, "components": results}); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(con.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COMPONENT\tSTATUS\tDURATION\tMESSAGE")
		for _, res := range results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Component, res.Status, res.Duration.Round(time.Millisecond), res.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if overall == core.HealthUnhealthy {
		return fmt.Errorf("status %s", overall)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
