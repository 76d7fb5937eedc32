// Command semkernel runs kernel pipelines, lists registered functions,
// serves them over MCP and inspects the audit trail.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/jllopis/semkernel/pkg/bootstrap"
	"github.com/jllopis/semkernel/pkg/config"
	"github.com/jllopis/semkernel/pkg/telemetry"
)

// CLI is the root command.
type CLI struct {
	Run       RunCmd       `cmd:"" help:"Run a pipeline of functions."`
	Functions FunctionsCmd `cmd:"" help:"List registered functions."`
	Tools     ToolsCmd     `cmd:"" help:"Print the tool definitions offered to models."`
	ServeMCP  ServeMCPCmd  `cmd:"" name:"serve-mcp" help:"Serve kernel functions as MCP tools."`
	Audit     AuditCmd     `cmd:"" help:"List recorded pipeline events."`
	Health    HealthCmd    `cmd:"" help:"Check the kernel and the components it depends on."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	Config   string   `short:"c" help:"Path to config file." type:"path" env:"SEMKERNEL_CONFIG"`
	Profile  string   `help:"Config profile loaded next to the config file."`
	Set      []string `help:"Override a config key." placeholder:"KEY=VALUE" sep:"none"`
	LogLevel string   `help:"Override the log level (debug, info, warn, error)."`
}

// console carries the command streams.
type console struct {
	in  io.Reader
	out io.Writer
}

func newParser(ctx context.Context, cli *CLI, con *console) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("semkernel"),
		kong.Description("Semantic kernel host: run skills, serve them over MCP, inspect runs."),
		kong.UsageOnError(),
		kong.Writers(con.out, os.Stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(con),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	parser, err := newParser(ctx, &cli, &console{in: os.Stdin, out: os.Stdout})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	parser.FatalIfErrorf(kctx.Run(&cli))
}

// configArgs turns the global flags into config loader arguments.
func (c *CLI) configArgs() []string {
	var args []string
	if c.Config != "" {
		args = append(args, "--config", c.Config)
	}
	if c.Profile != "" {
		args = append(args, "--profile", c.Profile)
	}
	for _, s := range c.Set {
		args = append(args, "--set", s)
	}
	return args
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(c.configArgs())
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	return cfg, nil
}

// runtime loads the configuration and builds the kernel it describes.
func (c *CLI) runtime(ctx context.Context) (*config.Config, *bootstrap.Runtime, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rt, nil
}

func closeRuntime(rt *bootstrap.Runtime) {
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Warn("semkernel.close", "error", err.Error())
	}
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(con *console) error {
	fmt.Fprintf(con.out, "semkernel %s\n", bootstrap.Version)
	return nil
}

// reloadLogLevel applies the log level of a reloaded configuration.
func reloadLogLevel(rt *bootstrap.Runtime) func(*config.Config) {
	return func(cfg *config.Config) {
		telemetry.SetLogLevel(cfg.Log.Level)
		rt.Logger.Info("semkernel.config.reloaded", "log_level", cfg.Log.Level)
	}
}
