package model

import "time"

// MCPTransport selects how internal/mcpproxy launches or dials a server.
type MCPTransport string

const (
	MCPTransportStdio MCPTransport = "stdio"
	MCPTransportSSE   MCPTransport = "sse"
)

// MCPServer is a configured Model Context Protocol server, scoped to a
// project or shared globally when ProjectID is empty. Unique on
// (ProjectID, Name).
type MCPServer struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id,omitempty"`
	Name      string            `json:"name"`
	Transport MCPTransport      `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Enabled   bool              `json:"enabled"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
