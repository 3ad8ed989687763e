package mcpproxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gobby-dev/gobby/internal/model"
)

// Servers is the subset of internal/storage.Store needed to resolve a
// configured MCP server.
type Servers interface {
	GetMCPServerByName(ctx context.Context, projectID, name string) (*model.MCPServer, error)
	ListMCPServersByProject(ctx context.Context, projectID string) ([]*model.MCPServer, error)
}

// Metrics is the subset of internal/storage.Store the proxy records every
// call against.
type Metrics interface {
	RecordToolCall(ctx context.Context, projectID, serverName, toolName string, latencyMS int64, success bool) error
	GetToolMetrics(ctx context.Context, projectID, serverName, toolName string) ([]*model.ToolMetrics, model.ToolMetricsSummary, error)
	GetTopTools(ctx context.Context, projectID string, limit int, orderBy string) ([]*model.ToolMetrics, error)
}

// dialer starts a connection to a configured server; overridden in tests to
// avoid spawning a real subprocess.
type dialer func(ctx context.Context, srv *model.MCPServer) (toolClient, error)

// Proxy resolves, lazily connects to, and invokes tools on configured MCP
// servers, recording latency and success/failure counters for every call.
// One process-wide token-bucket limiter (20 calls/s, burst 40) paces
// CallTool, including the subprocess launch a first call triggers; it
// limits the call rate, not the number of calls in flight.
type Proxy struct {
	servers Servers
	metrics Metrics
	logger  *slog.Logger
	dial    dialer
	limiter *rate.Limiter

	mu    sync.Mutex
	conns map[string]toolClient // keyed by model.MCPServer.ID
}

// New constructs a Proxy over servers and metrics. logger may be nil.
func New(servers Servers, metrics Metrics, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		servers: servers,
		metrics: metrics,
		logger:  logger,
		dial: func(ctx context.Context, srv *model.MCPServer) (toolClient, error) {
			return dialStdio(ctx, srv)
		},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		conns:   make(map[string]toolClient),
	}
}

// CallTool resolves serverName within projectID (falling back to a
// globally-shared server of the same name), lazily starts its connection if
// needed, invokes toolName with args, and records the outcome in Metrics
// regardless of success. This is the call_tool(server, tool, args) -> dict
// capability the rest of Gobby consumes.
func (p *Proxy) CallTool(ctx context.Context, projectID, serverName, toolName string, args map[string]any) (map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("mcpproxy: rate limit wait: %w", err)
	}

	srv, err := p.servers.GetMCPServerByName(ctx, projectID, serverName)
	if err != nil {
		return nil, fmt.Errorf("resolve mcp server %q: %w", serverName, err)
	}
	if !srv.Enabled {
		return nil, fmt.Errorf("mcp server %q is disabled", serverName)
	}

	conn, err := p.connFor(ctx, srv)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, callErr := conn.CallTool(ctx, toolName, args)
	latency := time.Since(start)

	if recErr := p.metrics.RecordToolCall(ctx, projectID, serverName, toolName, latency.Milliseconds(), callErr == nil); recErr != nil {
		p.logger.Error("record tool call metrics failed", "server", serverName, "tool", toolName, "error", recErr)
	}

	if callErr != nil {
		// A dead connection gets dropped so the next call reconnects
		// instead of repeatedly failing against a crashed subprocess.
		p.dropConn(srv.ID)
		return nil, callErr
	}
	return result, nil
}

func (p *Proxy) connFor(ctx context.Context, srv *model.MCPServer) (toolClient, error) {
	key := srv.ID

	p.mu.Lock()
	if conn, ok := p.conns[key]; ok {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.dial(ctx, srv)
	if err != nil {
		return nil, fmt.Errorf("connect to mcp server %q: %w", srv.Name, err)
	}

	p.mu.Lock()
	if existing, ok := p.conns[key]; ok {
		p.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	p.conns[key] = conn
	p.mu.Unlock()
	return conn, nil
}

func (p *Proxy) dropConn(serverID string) {
	key := serverID
	p.mu.Lock()
	conn, ok := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Close shuts down every open server connection, called during daemon
// shutdown.
func (p *Proxy) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]toolClient)
	p.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
