package action

import (
	"context"
	"fmt"
	"time"
)

// setVariable implements set_variable: render `value` (if a string) as a
// template, then assign it into state.Variables[name].
func setVariable(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	name, _ := inputs["name"].(string)
	if name == "" || actx.State == nil {
		return nil, nil
	}

	value := inputs["value"]
	if s, ok := value.(string); ok && actx.Templates != nil {
		value = actx.Templates.Render(s, map[string]interface{}{"variables": actx.State.Variables})
	}

	if actx.State.Variables == nil {
		actx.State.Variables = map[string]any{}
	}
	actx.State.Variables[name] = value
	return Result{"set_variable": name}, nil
}

// incrementVariable implements increment_variable: add `by` (default 1) to
// a numeric variable, defaulting the starting value to 0.
func incrementVariable(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	name, _ := inputs["name"].(string)
	if name == "" || actx.State == nil {
		return nil, nil
	}

	by := 1.0
	if v, ok := inputs["by"]; ok {
		if f, ok := toFloat(v); ok {
			by = f
		}
	}

	if actx.State.Variables == nil {
		actx.State.Variables = map[string]any{}
	}
	current := 0.0
	if v, ok := actx.State.Variables[name]; ok {
		if f, ok := toFloat(v); ok {
			current = f
		}
	}
	newVal := current + by
	actx.State.Variables[name] = newVal
	return Result{"increment_variable": name, "value": newVal}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// transitionTo implements transition_to: an explicit step transition,
// typically unnecessary since the engine already handles transitions via
// step.transitions — reserved for actions that must force one outside the
// normal evaluation flow.
func transitionTo(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	step, _ := inputs["step"].(string)
	if step == "" || actx.State == nil {
		return nil, fmt.Errorf("transition_to: step is required")
	}
	actx.State.Step = step
	actx.State.StepActionCount = 0
	actx.State.StepEnteredAt = time.Now()
	return Result{"transition_to": step}, nil
}
