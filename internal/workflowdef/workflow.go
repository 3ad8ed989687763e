// Package workflowdef parses the declarative YAML workflow and pipeline
// definitions spec.md §4.7/§4.9 describe, grounded on the teacher's
// Definition type (pkg/workflow/definition.go) but narrowed to Gobby's
// event-driven trigger/step-machine grammar rather than the teacher's
// webhook/schedule/file-watch CI-pipeline trigger surface.
package workflowdef

import (
	"fmt"

	"gopkg.in/yaml.v3"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// WorkflowDefinition is one workflow YAML document.
type WorkflowDefinition struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string                 `yaml:"version,omitempty" json:"version,omitempty"`
	Priority    int                    `yaml:"priority,omitempty" json:"priority,omitempty"`
	Variables   map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`
	Triggers    TriggerSet             `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Steps       []StepDefinition       `yaml:"steps" json:"steps"`
}

// TriggerSet maps a hook event type (on_session_start, on_before_tool, …)
// to the actions run when that event fires while this workflow instance is
// active, independent of the step machine.
type TriggerSet map[string][]ActionConfig

// ActionConfig is one `{action: name, ...params}` entry in a trigger or
// on_enter/on_exit list. Params is the action's config, keyed by name,
// with `action` and `when` pulled out as named fields.
type ActionConfig struct {
	Action string                 `yaml:"action" json:"action"`
	When   string                 `yaml:"when,omitempty" json:"when,omitempty"`
	Params map[string]interface{} `yaml:"-" json:"-"`
}

// UnmarshalYAML captures every key beyond action/when into Params so action
// configs stay schema-free (each action owns its own input keys).
func (a *ActionConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if v, ok := raw["action"].(string); ok {
		a.Action = v
		delete(raw, "action")
	}
	if v, ok := raw["when"].(string); ok {
		a.When = v
		delete(raw, "when")
	}
	a.Params = raw
	return nil
}

// RuleDefinition is a step's `rules: [{when, action, message?}]` entry,
// evaluated in BEFORE_TOOL tool-restriction precedence after blocked_tools
// and the allowed_tools whitelist.
type RuleDefinition struct {
	When    string `yaml:"when" json:"when"`
	Action  string `yaml:"action" json:"action"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// TransitionDefinition is a step's `transitions: [{to, when}]` entry.
type TransitionDefinition struct {
	To   string `yaml:"to" json:"to"`
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// StepDefinition is one step machine state.
type StepDefinition struct {
	Name          string                 `yaml:"name" json:"name"`
	AllowedTools  AllowedTools           `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	BlockedTools  []string               `yaml:"blocked_tools,omitempty" json:"blocked_tools,omitempty"`
	Rules         []RuleDefinition       `yaml:"rules,omitempty" json:"rules,omitempty"`
	Transitions   []TransitionDefinition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	StatusMessage string                 `yaml:"status_message,omitempty" json:"status_message,omitempty"`
	OnEnter       []ActionConfig         `yaml:"on_enter,omitempty" json:"on_enter,omitempty"`
	OnExit        []ActionConfig         `yaml:"on_exit,omitempty" json:"on_exit,omitempty"`
}

// AllowedTools is either the literal string "all" or an explicit whitelist.
type AllowedTools struct {
	All  bool
	List []string
}

// UnmarshalYAML accepts either the scalar "all" or a sequence of tool names.
func (a *AllowedTools) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		a.All = s == "all"
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	a.List = list
	return nil
}

// Allows reports whether toolName is permitted by this whitelist.
func (a AllowedTools) Allows(toolName string) bool {
	if a.All {
		return true
	}
	for _, t := range a.List {
		if t == toolName {
			return true
		}
	}
	return false
}

// Parse decodes a workflow definition from YAML bytes and validates it.
func Parse(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, gobbyerrors.NewValidationError("workflow_definition", fmt.Sprintf("invalid YAML: %s", err), "check workflow YAML syntax")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural invariants Parse relies on: a name, at
// least one step, unique step names, and transitions that target existing
// steps.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return gobbyerrors.NewValidationError("name", "workflow definition requires a name", "add a top-level `name` field")
	}
	if len(d.Steps) == 0 {
		return gobbyerrors.NewValidationError("steps", "workflow definition requires at least one step", "add a `steps` list")
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" {
			return gobbyerrors.NewValidationError("steps", "step is missing a name", "every step needs a unique `name`")
		}
		if seen[s.Name] {
			return gobbyerrors.NewValidationError("steps", fmt.Sprintf("duplicate step name %q", s.Name), "step names must be unique within a workflow")
		}
		seen[s.Name] = true
	}

	for _, s := range d.Steps {
		for _, t := range s.Transitions {
			if !seen[t.To] {
				return gobbyerrors.NewValidationError("steps", fmt.Sprintf("step %q transitions to unknown step %q", s.Name, t.To), "transition targets must name an existing step")
			}
		}
	}
	return nil
}

// StepByName looks up a step by name.
func (d *WorkflowDefinition) StepByName(name string) (*StepDefinition, bool) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
