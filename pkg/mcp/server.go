package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/llm"
)

// Server serves kernel functions as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		logger: slog.Default(),
	}
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ExposeKernel registers the functions of k selected by filter as tools.
// Tool names use the skill-function naming and calls run through
// Kernel.ExecuteFunctionCall. It returns the number of tools added.
func (s *Server) ExposeKernel(k *kernel.Kernel, filter kernel.ToolFilter) (int, error) {
	defs, err := k.ToolDefinitions(filter)
	if err != nil {
		return 0, err
	}
	s.logger = k.Logger()
	for _, def := range defs {
		schema, err := json.Marshal(def.Function.Parameters)
		if err != nil {
			return 0, fmt.Errorf("encode schema of %s: %w", def.Function.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(def.Function.Name, def.Function.Description, schema)
		s.mcpServer.AddTool(tool, s.handler(k, def.Function.Name))
	}
	s.logger.Info("mcp.server.tools", slog.Int("tools", len(defs)))
	return len(defs), nil
}

func (s *Server) handler(k *kernel.Kernel, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		kctx, err := k.ExecuteFunctionCall(ctx, llm.ToolCall{
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: name, Arguments: string(args)},
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if kctx.ErrorOccurred() {
			return mcp.NewToolResultError(kctx.LastErrorDescription()), nil
		}
		return mcp.NewToolResultText(kctx.Result()), nil
	}
}

// ServeStdio serves on stdin and stdout until ctx is done or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
}

// ServeStreamableHTTP serves Streamable HTTP on addr until ctx is done.
func (s *Server) ServeStreamableHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()
	s.logger.Info("mcp.server.listen", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
