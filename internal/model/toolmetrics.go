package model

import "time"

// ToolMetrics aggregates call counts and latency for one (project, server,
// tool) tuple, accumulated by every CallTool invocation in internal/mcpproxy.
type ToolMetrics struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id,omitempty"`
	ServerName    string    `json:"server_name"`
	ToolName      string    `json:"tool_name"`
	CallCount     int       `json:"call_count"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	TotalLatencyMS int64    `json:"total_latency_ms"`
	AvgLatencyMS  float64   `json:"avg_latency_ms"`
	LastCalledAt  time.Time `json:"last_called_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SuccessRate returns SuccessCount/CallCount, or 0 when no calls were made.
func (m *ToolMetrics) SuccessRate() float64 {
	if m.CallCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.CallCount)
}

// ToolMetricsSummary aggregates across a filtered set of ToolMetrics rows.
type ToolMetricsSummary struct {
	TotalCalls         int     `json:"total_calls"`
	TotalSuccess       int     `json:"total_success"`
	TotalFailure       int     `json:"total_failure"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
}
