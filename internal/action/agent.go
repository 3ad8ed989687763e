package action

import "context"

// spawnAgent implements spawn_agent: proxies to the AgentRunner (§4.8). A
// nil Agents collaborator means the action is a no-op, which lets workflow
// definitions be validated and dry-run without a live runner wired in.
func spawnAgent(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Agents == nil {
		return Result{"spawn_agent": "skipped", "reason": "no agent runner configured"}, nil
	}

	req := SpawnRequest{
		Agent:     stringInput(inputs, "agent"),
		Task:      stringInput(inputs, "task"),
		Prompt:    stringInput(inputs, "prompt"),
		Workflow:  stringInput(inputs, "workflow"),
		Mode:      stringInput(inputs, "mode"),
		Isolation: stringInput(inputs, "isolation"),
		SessionID: actx.SessionID,
	}

	runID, err := actx.Agents.Spawn(ctx, req)
	if err != nil {
		return nil, err
	}
	return Result{"spawn_agent": runID}, nil
}

// runPipeline implements run_pipeline: proxies to the pipeline executor
// (§4.9). When awaitCompletion is true and a workflow state is attached,
// the handler records the execution id as `pending_pipeline` in the
// state's variables; resuming once the execution finishes is left to the
// caller.
func runPipeline(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Pipeline == nil {
		return Result{"run_pipeline": "skipped", "reason": "no pipeline executor configured"}, nil
	}

	name := stringInput(inputs, "name")
	if name == "" {
		return nil, nil
	}
	pipelineInputs, _ := inputs["inputs"].(map[string]interface{})
	awaitCompletion, _ := inputs["await_completion"].(bool)

	executionID, err := actx.Pipeline.Run(ctx, name, pipelineInputs, awaitCompletion)
	if err != nil {
		return nil, err
	}

	if awaitCompletion && actx.State != nil {
		if actx.State.Variables == nil {
			actx.State.Variables = map[string]any{}
		}
		actx.State.Variables["pending_pipeline"] = executionID
	}
	return Result{"run_pipeline": executionID}, nil
}

func stringInput(inputs map[string]interface{}, key string) string {
	s, _ := inputs[key].(string)
	return s
}
