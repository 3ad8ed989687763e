// Package mcpproxy exposes a single call_tool(server, tool, args) capability
// against configured Model Context Protocol servers, lazily starting one
// stdio client per server and recording per-tool latency/success metrics.
// Client lifecycle is adapted from internal/mcp's conductor-era Client —
// trimmed to the tool-call surface this proxy actually needs.
package mcpproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gobby-dev/gobby/internal/model"
)

// toolClient is the narrow surface Proxy needs from a running MCP server
// connection, satisfied by *stdioClient and swappable in tests.
type toolClient interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)
	Close() error
}

// stdioClient wraps a mark3labs/mcp-go stdio connection to one configured
// MCP server.
type stdioClient struct {
	serverName string
	client     *client.Client
	timeout    time.Duration
}

// dialStdio launches srv.Command and completes the MCP initialize
// handshake. Only srv.Transport == model.MCPTransportStdio is supported;
// SSE servers are out of scope (§1 client-capability boundary).
func dialStdio(ctx context.Context, srv *model.MCPServer) (*stdioClient, error) {
	if srv.Transport != model.MCPTransportStdio {
		return nil, fmt.Errorf("mcpproxy: unsupported transport %q for server %q", srv.Transport, srv.Name)
	}
	if srv.Command == "" {
		return nil, fmt.Errorf("mcpproxy: server %q has no command configured", srv.Name)
	}

	env := make([]string, 0, len(srv.Env))
	for k, v := range srv.Env {
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(srv.Command, env, srv.Args...)
	if err != nil {
		return nil, fmt.Errorf("create mcp client for %q: %w", srv.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client for %q: %w", srv.Name, err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "gobby",
				Version: "0.1.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %q: %w", srv.Name, err)
	}

	return &stdioClient{serverName: srv.Name, client: c, timeout: 30 * time.Second}, nil
}

// CallTool executes a tool call and flattens the MCP content blocks into a
// plain map — the "dict" the call_tool capability is specified to return.
func (c *stdioClient) CallTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %q on %q: %w", toolName, c.serverName, err)
	}

	content := make([]map[string]any, 0, len(result.Content))
	for _, item := range result.Content {
		if text, ok := mcp.AsTextContent(item); ok {
			content = append(content, map[string]any{"type": text.Type, "text": text.Text})
			continue
		}
		if img, ok := mcp.AsImageContent(item); ok {
			content = append(content, map[string]any{"type": img.Type, "data": img.Data, "mime_type": img.MIMEType})
			continue
		}
		content = append(content, map[string]any{"type": "unknown"})
	}

	return map[string]any{
		"content":  content,
		"is_error": result.IsError,
	}, nil
}

func (c *stdioClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
