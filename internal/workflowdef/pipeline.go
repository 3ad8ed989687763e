package workflowdef

import (
	"fmt"

	"gopkg.in/yaml.v3"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// PipelineDefinition is one pipeline YAML document: a DAG of steps
// executed in declared order (spec.md §4.9).
type PipelineDefinition struct {
	Name    string                     `yaml:"name" json:"name"`
	Type    string                     `yaml:"type" json:"type"`
	Version string                     `yaml:"version,omitempty" json:"version,omitempty"`
	Inputs  []InputDefinition          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []OutputBinding            `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Steps   []PipelineStepDefinition   `yaml:"steps" json:"steps"`
	Webhooks *PipelineWebhooks         `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// InputDefinition is one declared pipeline input parameter.
type InputDefinition struct {
	Name     string      `yaml:"name" json:"name"`
	Type     string      `yaml:"type,omitempty" json:"type,omitempty"`
	Required bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// OutputBinding maps a pipeline output name to a `$step_id.output[.field]`
// reference resolved after the pipeline completes.
type OutputBinding struct {
	Name string `yaml:"name" json:"name"`
	From string `yaml:"from" json:"from"`
}

// ApprovalConfig gates a step behind a resume token.
type ApprovalConfig struct {
	Required bool   `yaml:"required" json:"required"`
	Message  string `yaml:"message,omitempty" json:"message,omitempty"`
}

// PipelineStepDefinition is one DAG node. Exactly one of Exec/Prompt/
// InvokePipeline must be set.
type PipelineStepDefinition struct {
	ID             string                 `yaml:"id" json:"id"`
	Exec           string                 `yaml:"exec,omitempty" json:"exec,omitempty"`
	Prompt         string                 `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	InvokePipeline string                 `yaml:"invoke_pipeline,omitempty" json:"invoke_pipeline,omitempty"`
	Tools          []string               `yaml:"tools,omitempty" json:"tools,omitempty"`
	Input          map[string]interface{} `yaml:"input,omitempty" json:"input,omitempty"`
	Condition      string                 `yaml:"condition,omitempty" json:"condition,omitempty"`
	Approval       *ApprovalConfig        `yaml:"approval,omitempty" json:"approval,omitempty"`
}

// Kind identifies which of exec/prompt/invoke_pipeline is set.
func (s PipelineStepDefinition) Kind() string {
	switch {
	case s.Exec != "":
		return "exec"
	case s.Prompt != "":
		return "prompt"
	case s.InvokePipeline != "":
		return "invoke_pipeline"
	default:
		return ""
	}
}

// WebhookConfig is one webhook endpoint with its retry policy.
type WebhookConfig struct {
	URL        string            `yaml:"url" json:"url"`
	Method     string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout    string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryCount int               `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
	RetryDelay string            `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
	CanBlock   bool              `yaml:"can_block,omitempty" json:"can_block,omitempty"`
}

// PipelineWebhooks are the lifecycle webhook hooks for one pipeline.
type PipelineWebhooks struct {
	OnApprovalPending *WebhookConfig `yaml:"on_approval_pending,omitempty" json:"on_approval_pending,omitempty"`
	OnComplete        *WebhookConfig `yaml:"on_complete,omitempty" json:"on_complete,omitempty"`
	OnFailure         *WebhookConfig `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// ParsePipeline decodes a pipeline definition from YAML bytes and
// validates it.
func ParsePipeline(data []byte) (*PipelineDefinition, error) {
	var def PipelineDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, gobbyerrors.NewValidationError("pipeline_definition", fmt.Sprintf("invalid YAML: %s", err), "check pipeline YAML syntax")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks: a name, at least one step, unique step IDs, and exactly
// one of exec/prompt/invoke_pipeline set per step.
func (d *PipelineDefinition) Validate() error {
	if d.Name == "" {
		return gobbyerrors.NewValidationError("name", "pipeline definition requires a name", "add a top-level `name` field")
	}
	if len(d.Steps) == 0 {
		return gobbyerrors.NewValidationError("steps", "pipeline definition requires at least one step", "add a `steps` list")
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return gobbyerrors.NewValidationError("steps", "step is missing an id", "every step needs a unique `id`")
		}
		if seen[s.ID] {
			return gobbyerrors.NewValidationError("steps", fmt.Sprintf("duplicate step id %q", s.ID), "step ids must be unique within a pipeline")
		}
		seen[s.ID] = true

		set := 0
		if s.Exec != "" {
			set++
		}
		if s.Prompt != "" {
			set++
		}
		if s.InvokePipeline != "" {
			set++
		}
		if set != 1 {
			return gobbyerrors.NewValidationError("steps", fmt.Sprintf("step %q must set exactly one of exec, prompt, invoke_pipeline", s.ID), "remove extra step kinds or add one")
		}
	}
	return nil
}

// StepByID looks up a step by id.
func (d *PipelineDefinition) StepByID(id string) (*PipelineStepDefinition, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
