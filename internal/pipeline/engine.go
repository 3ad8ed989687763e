// Package pipeline executes the DAG-of-steps pipeline definitions parsed
// by internal/workflowdef: exec/prompt/invoke_pipeline steps run in
// declared order, each gated by an optional condition and an optional
// approval pause, with webhook notifications at the lifecycle edges
// spec.md §4.9 describes.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gobby-dev/gobby/internal/expression"
	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// maxInvokeDepth bounds invoke_pipeline recursion so a pipeline that
// invokes itself (directly or through a cycle) can't recurse forever.
const maxInvokeDepth = 5

type invokeDepthKey struct{}

func invokeDepth(ctx context.Context) int {
	depth, _ := ctx.Value(invokeDepthKey{}).(int)
	return depth
}

func withInvokeDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, invokeDepthKey{}, depth)
}

// Store is the persistence seam Engine depends on, narrowed to the
// pipeline/step execution methods internal/storage already implements.
type Store interface {
	CreatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error
	GetPipelineExecution(ctx context.Context, id string) (*model.PipelineExecution, error)
	GetPipelineExecutionByResumeToken(ctx context.Context, token string) (*model.PipelineExecution, error)
	ListPipelineExecutionsByProject(ctx context.Context, projectID string) ([]*model.PipelineExecution, error)
	UpdatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error
	CreateStepExecution(ctx context.Context, se *model.StepExecution) error
	GetStepExecution(ctx context.Context, id string) (*model.StepExecution, error)
	GetStepExecutionByApprovalToken(ctx context.Context, token string) (*model.StepExecution, error)
	ListStepExecutions(ctx context.Context, executionID string) ([]*model.StepExecution, error)
	UpdateStepExecution(ctx context.Context, se *model.StepExecution) error
}

// Loader resolves a pipeline definition by name, typically backed by a
// directory of YAML files under a project's pipelines/ directory.
type Loader interface {
	Get(name string) (*workflowdef.PipelineDefinition, error)
}

// CommandRunner executes an exec step's shell command.
type CommandRunner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error)
}

// LLM completes a prompt step.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine runs pipeline executions to completion or to their next approval
// gate.
type Engine struct {
	store     Store
	loader    Loader
	commands  CommandRunner
	llm       LLM
	webhooks  *WebhookSender
	evaluator *expression.Evaluator
	logger    *slog.Logger
}

// New constructs an Engine. logger may be nil, in which case slog.Default
// is used.
func New(store Store, loader Loader, commands CommandRunner, llm LLM, webhooks *WebhookSender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		loader:    loader,
		commands:  commands,
		llm:       llm,
		webhooks:  webhooks,
		evaluator: expression.New(),
		logger:    logger,
	}
}

// Run starts a new execution of the named pipeline. When awaitCompletion
// is true, Run blocks until the pipeline finishes, fails, or hits an
// approval gate (surfaced as a *gobbyerrors.ApprovalRequiredError, not a
// hard failure — the execution id it names is still valid and resumable
// via Approve). When false, the pipeline runs in a detached goroutine and
// Run returns as soon as the execution row is created.
func (e *Engine) Run(ctx context.Context, name string, inputs map[string]interface{}, awaitCompletion bool) (string, error) {
	if invokeDepth(ctx) > maxInvokeDepth {
		return "", gobbyerrors.NewDepthExceededError("pipeline", invokeDepth(ctx), maxInvokeDepth)
	}

	def, err := e.loader.Get(name)
	if err != nil {
		return "", err
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return "", gobbyerrors.Wrap(err, "marshal pipeline inputs")
	}

	pe := &model.PipelineExecution{
		ID:           model.NewPipelineExecutionID(),
		PipelineName: def.Name,
		Status:       model.PipelineExecutionRunning,
		InputsJSON:   string(inputsJSON),
	}
	if err := e.store.CreatePipelineExecution(ctx, pe); err != nil {
		return "", err
	}

	run := func() error {
		return e.execute(context.WithoutCancel(ctx), def, pe, inputs, 0)
	}

	if !awaitCompletion {
		go func() {
			if err := run(); err != nil && !gobbyerrors.IsApprovalRequired(err) {
				e.logger.Error("pipeline execution failed", "pipeline", def.Name, "execution_id", pe.ID, "error", err)
			}
		}()
		return pe.ID, nil
	}

	if err := run(); err != nil {
		return pe.ID, err
	}
	return pe.ID, nil
}

// Approve resumes an execution paused at an approval gate identified by
// token, continuing from the step after the one that paused it.
func (e *Engine) Approve(ctx context.Context, token, approvedBy string) (string, error) {
	se, err := e.store.GetStepExecutionByApprovalToken(ctx, token)
	if err != nil {
		return "", err
	}
	if se.Status != model.StepExecutionWaitingApproval {
		return "", gobbyerrors.NewConflictError("step_execution", "step is not waiting on approval")
	}

	pe, err := e.store.GetPipelineExecution(ctx, se.ExecutionID)
	if err != nil {
		return "", err
	}
	def, err := e.loader.Get(pe.PipelineName)
	if err != nil {
		return "", err
	}

	now := time.Now()
	se.Status = model.StepExecutionCompleted
	se.ApprovedBy = approvedBy
	se.ApprovedAt = &now
	se.CompletedAt = &now
	if err := e.store.UpdateStepExecution(ctx, se); err != nil {
		return "", err
	}

	pe.Status = model.PipelineExecutionRunning
	if err := e.store.UpdatePipelineExecution(ctx, pe); err != nil {
		return "", err
	}

	inputs := map[string]interface{}{}
	_ = json.Unmarshal([]byte(pe.InputsJSON), &inputs)

	idx := stepIndex(def, se.StepID)
	go func() {
		if err := e.execute(context.WithoutCancel(ctx), def, pe, inputs, idx+1); err != nil && !gobbyerrors.IsApprovalRequired(err) {
			e.logger.Error("resumed pipeline execution failed", "pipeline", def.Name, "execution_id", pe.ID, "error", err)
		}
	}()

	return pe.ID, nil
}

func stepIndex(def *workflowdef.PipelineDefinition, id string) int {
	for i, s := range def.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// execute runs def.Steps[fromIndex:] against pe, persisting a StepExecution
// row per step and stopping at the first failed or gated step.
func (e *Engine) execute(ctx context.Context, def *workflowdef.PipelineDefinition, pe *model.PipelineExecution, inputs map[string]interface{}, fromIndex int) error {
	outputs := e.loadCompletedOutputs(ctx, pe.ID)
	evalCtx := buildStepContext(inputs, outputs)

	for i := fromIndex; i < len(def.Steps); i++ {
		step := def.Steps[i]

		if step.Condition != "" {
			matched, err := e.evaluator.Evaluate(step.Condition, evalCtx)
			if err != nil {
				return e.fail(ctx, pe, fmt.Sprintf("evaluating condition for step %s: %s", step.ID, err))
			}
			if !matched {
				se := &model.StepExecution{ID: model.NewID(), ExecutionID: pe.ID, StepID: step.ID, Status: model.StepExecutionSkipped}
				_ = e.store.CreateStepExecution(ctx, se)
				continue
			}
		}

		if step.Approval != nil && step.Approval.Required {
			token := generateToken()
			se := &model.StepExecution{
				ID: model.NewID(), ExecutionID: pe.ID, StepID: step.ID,
				Status: model.StepExecutionWaitingApproval, ApprovalToken: token,
			}
			if err := e.store.CreateStepExecution(ctx, se); err != nil {
				return err
			}
			pe.Status = model.PipelineExecutionWaitingApproval
			pe.ResumeToken = token
			if err := e.store.UpdatePipelineExecution(ctx, pe); err != nil {
				return err
			}
			if def.Webhooks != nil && def.Webhooks.OnApprovalPending != nil {
				e.webhooks.Send(ctx, def.Webhooks.OnApprovalPending, map[string]interface{}{
					"execution_id":   pe.ID,
					"pipeline":       def.Name,
					"step_id":        step.ID,
					"approval_token": token,
					"message":        step.Approval.Message,
				})
			}
			return gobbyerrors.NewApprovalRequiredError(pe.ID, step.ID, token)
		}

		started := time.Now()
		se := &model.StepExecution{ID: model.NewID(), ExecutionID: pe.ID, StepID: step.ID, Status: model.StepExecutionRunning, StartedAt: &started}
		if err := e.store.CreateStepExecution(ctx, se); err != nil {
			return err
		}

		out, err := e.runStep(ctx, step, evalCtx, pe)
		completed := time.Now()
		se.CompletedAt = &completed

		if err != nil {
			se.Status = model.StepExecutionFailed
			se.Error = err.Error()
			_ = e.store.UpdateStepExecution(ctx, se)
			return e.fail(ctx, pe, fmt.Sprintf("step %s failed: %s", step.ID, err))
		}

		outJSON, _ := json.Marshal(out)
		se.Status = model.StepExecutionCompleted
		se.OutputJSON = string(outJSON)
		if err := e.store.UpdateStepExecution(ctx, se); err != nil {
			return err
		}

		outputs[step.ID] = out
		evalCtx[step.ID] = map[string]interface{}{"output": out}
	}

	outputsMap := resolveOutputBindings(def.Outputs, outputs)
	outJSON, _ := json.Marshal(outputsMap)
	now := time.Now()
	pe.Status = model.PipelineExecutionCompleted
	pe.OutputsJSON = string(outJSON)
	pe.ResumeToken = ""
	pe.CompletedAt = &now
	if err := e.store.UpdatePipelineExecution(ctx, pe); err != nil {
		return err
	}

	if def.Webhooks != nil && def.Webhooks.OnComplete != nil {
		e.webhooks.Send(ctx, def.Webhooks.OnComplete, map[string]interface{}{
			"execution_id": pe.ID,
			"pipeline":     def.Name,
			"outputs":      outputsMap,
		})
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, pe *model.PipelineExecution, reason string) error {
	now := time.Now()
	pe.Status = model.PipelineExecutionFailed
	pe.CompletedAt = &now
	_ = e.store.UpdatePipelineExecution(ctx, pe)

	def, lookupErr := e.loader.Get(pe.PipelineName)
	if lookupErr == nil && def.Webhooks != nil && def.Webhooks.OnFailure != nil {
		e.webhooks.Send(ctx, def.Webhooks.OnFailure, map[string]interface{}{
			"execution_id": pe.ID,
			"pipeline":     pe.PipelineName,
			"reason":       reason,
		})
	}
	return gobbyerrors.New(reason)
}

func (e *Engine) runStep(ctx context.Context, step workflowdef.PipelineStepDefinition, evalCtx map[string]interface{}, pe *model.PipelineExecution) (map[string]interface{}, error) {
	switch step.Kind() {
	case "exec":
		command := resolveRefs(step.Exec, evalCtx)
		stdout, stderr, exitCode, err := e.commands.Run(ctx, command)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"stdout": stdout, "stderr": stderr, "exit_code": exitCode}, nil

	case "prompt":
		prompt := resolveRefs(step.Prompt, evalCtx)
		text, err := e.llm.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"text": text}, nil

	case "invoke_pipeline":
		nested := resolveStepInputs(step.Input, evalCtx)
		nestedCtx := withInvokeDepth(ctx, invokeDepth(ctx)+1)
		nestedID, err := e.Run(nestedCtx, step.InvokePipeline, nested, true)
		if err != nil && !gobbyerrors.IsApprovalRequired(err) {
			return nil, err
		}
		nestedPE, lookupErr := e.store.GetPipelineExecution(ctx, nestedID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		var nestedOutputs map[string]interface{}
		_ = json.Unmarshal([]byte(nestedPE.OutputsJSON), &nestedOutputs)
		return map[string]interface{}{"execution_id": nestedID, "status": string(nestedPE.Status), "outputs": nestedOutputs}, nil

	default:
		return nil, gobbyerrors.NewValidationError("steps", fmt.Sprintf("step %q has no runnable kind", step.ID), "")
	}
}

func resolveStepInputs(input map[string]interface{}, evalCtx map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(input))
	for k, v := range input {
		if s, ok := v.(string); ok {
			out[k] = resolveRefs(s, evalCtx)
			continue
		}
		out[k] = v
	}
	return out
}

func (e *Engine) loadCompletedOutputs(ctx context.Context, executionID string) map[string]map[string]interface{} {
	outputs := make(map[string]map[string]interface{})
	steps, err := e.store.ListStepExecutions(ctx, executionID)
	if err != nil {
		return outputs
	}
	for _, se := range steps {
		if se.Status != model.StepExecutionCompleted || se.OutputJSON == "" {
			continue
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(se.OutputJSON), &out); err == nil {
			outputs[se.StepID] = out
		}
	}
	return outputs
}

func buildStepContext(inputs map[string]interface{}, outputs map[string]map[string]interface{}) map[string]interface{} {
	ctx := make(map[string]interface{}, len(inputs)+len(outputs)+1)
	ctx["input"] = inputs
	for k, v := range inputs {
		ctx[k] = v
	}
	for stepID, out := range outputs {
		ctx[stepID] = map[string]interface{}{"output": out}
	}
	return ctx
}

// dollarRefPattern matches `$step_id.output.field` / `$step_id.output`
// references embedded in exec commands, prompts, and invoke_pipeline
// input values.
var dollarRefPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)((?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)`)

// resolveRefs substitutes every `$id.path` reference in s with its
// resolved value from ctx, stringified; references that don't resolve are
// left as-is so a typo is visible in the rendered output rather than
// silently blanked.
func resolveRefs(s string, ctx map[string]interface{}) string {
	return dollarRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := dollarRefPattern.FindStringSubmatch(match)
		root := parts[1]
		path := strings.TrimPrefix(parts[2], ".")

		val, ok := ctx[root]
		if !ok {
			return match
		}
		if path == "" {
			return stringifyValue(val)
		}
		for _, segment := range strings.Split(path, ".") {
			m, ok := val.(map[string]interface{})
			if !ok {
				return match
			}
			val, ok = m[segment]
			if !ok {
				return match
			}
		}
		return stringifyValue(val)
	})
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func resolveOutputBindings(bindings []workflowdef.OutputBinding, outputs map[string]map[string]interface{}) map[string]interface{} {
	ctx := make(map[string]interface{}, len(outputs))
	for stepID, out := range outputs {
		ctx[stepID] = map[string]interface{}{"output": out}
	}
	result := make(map[string]interface{}, len(bindings))
	for _, b := range bindings {
		resolved := resolveRefs(b.From, ctx)
		result[b.Name] = resolved
	}
	return result
}

func generateToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
