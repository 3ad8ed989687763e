package expression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gobby-dev/gobby/internal/expression"
)

func TestTemplateRenderSubstitutesVariable(t *testing.T) {
	tmpl := expression.NewTemplateEngine()
	ctx := map[string]interface{}{"name": "gobby"}

	got := tmpl.Render("hello {{ name }}", ctx)
	assert.Equal(t, "hello gobby", got)
}

func TestTemplateRenderResolvesDottedPath(t *testing.T) {
	tmpl := expression.NewTemplateEngine()
	ctx := map[string]interface{}{"session": map[string]interface{}{"title": "refactor auth"}}

	got := tmpl.Render("session: {{ session.title }}", ctx)
	assert.Equal(t, "session: refactor auth", got)
}

func TestTemplateRenderAppliesDefaultFilterWhenMissing(t *testing.T) {
	tmpl := expression.NewTemplateEngine()

	got := tmpl.Render(`{{ missing | default("n/a") }}`, map[string]interface{}{})
	assert.Equal(t, "n/a", got)
}

func TestTemplateRenderFallsBackToRawOnUnresolvedWithoutDefault(t *testing.T) {
	tmpl := expression.NewTemplateEngine()

	got := tmpl.Render("value: {{ missing.path }}", map[string]interface{}{})
	assert.Equal(t, "value: {{ missing.path }}", got)
}

func TestTemplateRenderEmptyTemplate(t *testing.T) {
	tmpl := expression.NewTemplateEngine()
	assert.Equal(t, "", tmpl.Render("", map[string]interface{}{"x": 1}))
}
