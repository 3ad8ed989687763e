package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/pipeline"
)

// Dispatcher executes one due CronJob according to its ActionType,
// returning whatever run/execution id resulted so the caller can persist
// it on the CronRun record.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.CronJob) (agentRunID, pipelineExecID, output string, err error)
}

// shellActionConfig is the action_config shape for model.CronActionShell.
type shellActionConfig struct {
	Command string `json:"command"`
}

// agentSpawnActionConfig is the action_config shape for
// model.CronActionAgentSpawn, mirroring action.SpawnRequest.
type agentSpawnActionConfig struct {
	Agent     string `json:"agent"`
	Task      string `json:"task"`
	Prompt    string `json:"prompt"`
	Workflow  string `json:"workflow"`
	Mode      string `json:"mode"`
	Isolation string `json:"isolation"`
}

// pipelineRunActionConfig is the action_config shape for
// model.CronActionPipelineRun.
type pipelineRunActionConfig struct {
	Name            string                 `json:"name"`
	Inputs          map[string]interface{} `json:"inputs"`
	AwaitCompletion bool                   `json:"await_completion"`
}

// defaultDispatcher routes a CronJob's ActionType to the three existing
// action boundaries (shell exec, agent spawn, pipeline run) already used
// by internal/action's workflow handlers, so a scheduled job exercises
// exactly the same collaborators a hook-triggered action would.
type defaultDispatcher struct {
	shell    pipeline.CommandRunner
	agents   action.AgentSpawner
	pipeline action.PipelineExecutor
}

// NewDispatcher builds a Dispatcher from the three action boundaries. Any
// of them may be nil, in which case jobs of the matching ActionType fail
// with a "not configured" error rather than panicking.
func NewDispatcher(shell pipeline.CommandRunner, agents action.AgentSpawner, pipelineExec action.PipelineExecutor) Dispatcher {
	return &defaultDispatcher{shell: shell, agents: agents, pipeline: pipelineExec}
}

func (d *defaultDispatcher) Dispatch(ctx context.Context, job *model.CronJob) (string, string, string, error) {
	switch job.ActionType {
	case model.CronActionShell:
		return d.dispatchShell(ctx, job)
	case model.CronActionAgentSpawn:
		return d.dispatchAgentSpawn(ctx, job)
	case model.CronActionPipelineRun:
		return d.dispatchPipelineRun(ctx, job)
	default:
		return "", "", "", fmt.Errorf("scheduler: unknown action_type %q", job.ActionType)
	}
}

func (d *defaultDispatcher) dispatchShell(ctx context.Context, job *model.CronJob) (string, string, string, error) {
	if d.shell == nil {
		return "", "", "", fmt.Errorf("scheduler: shell runner not configured")
	}
	var cfg shellActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return "", "", "", fmt.Errorf("scheduler: invalid shell action_config: %w", err)
	}
	if cfg.Command == "" {
		return "", "", "", fmt.Errorf("scheduler: shell action_config missing command")
	}
	stdout, stderr, exitCode, err := d.shell.Run(ctx, cfg.Command)
	output := stdout
	if stderr != "" {
		output += "\n" + stderr
	}
	if err != nil {
		return "", "", output, err
	}
	if exitCode != 0 {
		return "", "", output, fmt.Errorf("scheduler: command exited %d", exitCode)
	}
	return "", "", output, nil
}

func (d *defaultDispatcher) dispatchAgentSpawn(ctx context.Context, job *model.CronJob) (string, string, string, error) {
	if d.agents == nil {
		return "", "", "", fmt.Errorf("scheduler: agent spawner not configured")
	}
	var cfg agentSpawnActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return "", "", "", fmt.Errorf("scheduler: invalid agent_spawn action_config: %w", err)
	}
	runID, err := d.agents.Spawn(ctx, action.SpawnRequest{
		Agent:     cfg.Agent,
		Task:      cfg.Task,
		Prompt:    cfg.Prompt,
		Workflow:  cfg.Workflow,
		Mode:      cfg.Mode,
		Isolation: cfg.Isolation,
		SessionID: "cron:" + job.ID,
	})
	if err != nil {
		return "", "", "", err
	}
	return runID, "", "", nil
}

func (d *defaultDispatcher) dispatchPipelineRun(ctx context.Context, job *model.CronJob) (string, string, string, error) {
	if d.pipeline == nil {
		return "", "", "", fmt.Errorf("scheduler: pipeline executor not configured")
	}
	var cfg pipelineRunActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return "", "", "", fmt.Errorf("scheduler: invalid pipeline_run action_config: %w", err)
	}
	if cfg.Name == "" {
		return "", "", "", fmt.Errorf("scheduler: pipeline_run action_config missing name")
	}
	execID, err := d.pipeline.Run(ctx, cfg.Name, cfg.Inputs, cfg.AwaitCompletion)
	if err != nil {
		return "", "", "", err
	}
	return "", execID, "", nil
}
