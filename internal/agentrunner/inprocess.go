package agentrunner

import (
	"context"
	"fmt"

	"github.com/gobby-dev/gobby/pkg/agent"
)

// AgentAdapter wraps pkg/agent.Agent's ReAct loop behind InProcessExecutor,
// the narrower seam Runner spawns against for in_process mode — Runner
// doesn't need to know about messages, tool calls, or token accounting,
// only whether the run succeeded.
type AgentAdapter struct {
	agent *agent.Agent
}

// NewAgentAdapter wraps an already-configured agent.Agent.
func NewAgentAdapter(a *agent.Agent) *AgentAdapter {
	return &AgentAdapter{agent: a}
}

// Run drives the wrapped agent to completion.
func (a *AgentAdapter) Run(ctx context.Context, systemPrompt, userPrompt string) error {
	result, err := a.agent.Run(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("agent run did not succeed: %s", result.Error)
	}
	return nil
}
