// Package mcp bridges the kernel and the Model Context Protocol: tools of
// an MCP server become native functions, and kernel functions are served
// as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/semkernel/pkg/resilience"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 30 * time.Second

	clientName    = "semkernel"
	clientVersion = "0.1.0"
)

type settings struct {
	timeout  time.Duration
	retry    resilience.RetryConfig
	cacheTTL time.Duration
	protocol string
	env      []string
	headers  map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*settings)

// WithTimeout bounds each request, including the handshake.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRetry replaces the retry policy of list and call requests.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(s *settings) {
		if rc.IsRecoverable == nil {
			rc.IsRecoverable = recoverable
		}
		s.retry = rc
	}
}

// WithToolCacheTTL sets how long ListTools results are reused. Zero
// disables the cache.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(s *settings) {
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithProtocolVersion pins the protocol version sent in the handshake.
func WithProtocolVersion(version string) ClientOption {
	return func(s *settings) {
		if version != "" {
			s.protocol = version
		}
	}
}

// WithEnv sets KEY=value pairs for a stdio server process.
func WithEnv(env ...string) ClientOption {
	return func(s *settings) { s.env = append(s.env, env...) }
}

// WithHeaders adds HTTP headers to every Streamable HTTP request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(s *settings) {
		if s.headers == nil {
			s.headers = map[string]string{}
		}
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

func newSettings(opts []ClientOption) settings {
	s := settings{
		timeout:  defaultTimeout,
		retry:    resilience.DefaultRetryConfig().WithIsRecoverable(recoverable),
		cacheTTL: defaultCacheTTL,
		protocol: mcp.LATEST_PROTOCOL_VERSION,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Client wraps an mcp-go client with timeouts, retries and a tool cache.
type Client struct {
	conn client.MCPClient
	settings

	mu      sync.Mutex
	tools   []mcp.Tool
	expires time.Time
}

// NewClient wraps an already initialized MCP client.
func NewClient(conn client.MCPClient, opts ...ClientOption) *Client {
	return &Client{conn: conn, settings: newSettings(opts)}
}

// DialStdio starts command as a subprocess and performs the handshake.
func DialStdio(ctx context.Context, command string, args []string, opts ...ClientOption) (*Client, error) {
	s := newSettings(opts)
	conn, err := client.NewStdioMCPClient(command, s.env, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", command, err)
	}
	return handshake(ctx, conn, s)
}

// DialHTTP connects to a Streamable HTTP server and performs the handshake.
func DialHTTP(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	s := newSettings(opts)
	var topts []transport.StreamableHTTPCOption
	if len(s.headers) > 0 {
		topts = append(topts, transport.WithHTTPHeaders(s.headers))
	}
	conn, err := client.NewStreamableHttpClient(url, topts...)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server %s: %w", url, err)
	}
	return handshake(ctx, conn, s)
}

func handshake(ctx context.Context, conn *client.Client, s settings) (*Client, error) {
	if err := conn.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mcp start: %w", err)
	}
	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = s.protocol
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := conn.Initialize(hctx, req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}
	return &Client{conn: conn, settings: s}, nil
}

// ListTools returns the server tools, from cache while it is fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if tools, ok := c.cached(); ok {
		return tools, nil
	}
	resp, err := resilience.Retry(ctx, c.retry, func() (*mcp.ListToolsResult, error) {
		rctx, cancel := c.requestContext(ctx)
		defer cancel()
		return c.conn.ListTools(rctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.remember(resp.Tools)
	return resp.Tools, nil
}

// CallTool invokes a server tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return resilience.Retry(ctx, c.retry, func() (*mcp.CallToolResult, error) {
		rctx, cancel := c.requestContext(ctx)
		defer cancel()
		return c.conn.CallTool(rctx, req)
	})
}

// Ping checks the server is reachable. It is not retried.
func (c *Client) Ping(ctx context.Context) error {
	rctx, cancel := c.requestContext(ctx)
	defer cancel()
	return c.conn.Ping(rctx)
}

// InvalidateTools drops the cached tool list.
func (c *Client) InvalidateTools() {
	c.mu.Lock()
	c.tools, c.expires = nil, time.Time{}
	c.mu.Unlock()
}

// Close ends the session and stops a stdio server process.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) cached() ([]mcp.Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheTTL == 0 || c.tools == nil || time.Now().After(c.expires) {
		return nil, false
	}
	return slices.Clone(c.tools), true
}

func (c *Client) remember(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	c.tools = slices.Clone(tools)
	if c.tools == nil {
		c.tools = []mcp.Tool{}
	}
	c.expires = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func recoverable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
