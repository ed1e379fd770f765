package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// Client talks to a BrainStem gateway (or any MCP server) as a caller:
// handshake, tool discovery, and invocation. Used by the CLI commands
// and by nodes delegating calls to peers.
type Client struct {
	name    string
	version string
	c       mcpclient.MCPClient

	mu    sync.RWMutex
	tools []mcplib.Tool
}

// NewStdioClient spawns command with args and speaks MCP over its
// stdin/stdout.
func NewStdioClient(name, version, command string, env []string, args ...string) (*Client, error) {
	c, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp stdio client: %w", err)
	}
	return &Client{name: name, version: version, c: c}, nil
}

// NewHTTPClient connects to a gateway's streamable HTTP endpoint.
// headers may carry an API key for authenticated gateways.
func NewHTTPClient(name, version, url string, headers map[string]string) (*Client, error) {
	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	c, err := mcpclient.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("mcp http client: %w", err)
	}
	return &Client{name: name, version: version, c: c}, nil
}

// Connect performs the initialize handshake and caches the server's
// tool list.
func (c *Client) Connect(ctx context.Context) (*mcplib.InitializeResult, error) {
	initReq := mcplib.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcplib.Implementation{
		Name:    c.name,
		Version: c.version,
	}
	result, err := c.c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	if err := c.RefreshTools(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// RefreshTools re-fetches the server's tool list.
func (c *Client) RefreshTools(ctx context.Context) error {
	res, err := c.c.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp tools/list: %w", err)
	}
	c.mu.Lock()
	c.tools = res.Tools
	c.mu.Unlock()
	return nil
}

// Tools returns the cached tool list from the last Connect or
// RefreshTools.
func (c *Client) Tools() []mcplib.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcplib.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Call invokes a remote tool by name.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (*mcplib.CallToolResult, error) {
	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	return res, nil
}

// Close tears down the connection. For stdio clients this also reaps
// the spawned process.
func (c *Client) Close() error {
	return c.c.Close()
}
