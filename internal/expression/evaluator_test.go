package expression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/expression"
)

func TestEvaluateEmptyExpressionIsUnconditional(t *testing.T) {
	e := expression.New()
	got, err := e.Evaluate("", nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateComparisonAndBoolean(t *testing.T) {
	e := expression.New()
	ctx := map[string]interface{}{
		"mode":  "strict",
		"count": 5,
	}

	got, err := e.Evaluate(`mode == "strict" && count > 3`, ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`count < 3`, ctx)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateMembership(t *testing.T) {
	e := expression.New()
	ctx := map[string]interface{}{
		"tags": []interface{}{"go", "cli"},
	}

	got, err := e.Evaluate(`"go" in tags`, ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`has(tags, "cli")`, ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`includes(tags, "missing")`, ctx)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = e.Evaluate(`length(tags) == 2`, ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateAttributeAccess(t *testing.T) {
	e := expression.New()
	ctx := map[string]interface{}{
		"session": map[string]interface{}{"status": "active"},
	}

	got, err := e.Evaluate(`session.status == "active"`, ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateBadSyntaxFailsClosed(t *testing.T) {
	e := expression.New()
	got, err := e.Evaluate(`mode ===`, nil)
	require.Error(t, err)
	assert.False(t, got)
}

func TestEvaluateUndefinedVariableIsFalsy(t *testing.T) {
	e := expression.New()
	got, err := e.Evaluate(`missing == "x"`, map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateNonBooleanResultFailsClosed(t *testing.T) {
	e := expression.New()
	got, err := e.Evaluate(`1 + 1`, nil)
	require.Error(t, err)
	assert.False(t, got)
}

func TestCompiledExpressionsAreCached(t *testing.T) {
	e := expression.New()
	_, err := e.Evaluate(`count > 0`, map[string]interface{}{"count": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.Evaluate(`count > 0`, map[string]interface{}{"count": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
