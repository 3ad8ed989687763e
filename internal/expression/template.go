package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templatePattern matches {{ var }} and {{ var | default("x") }} placeholders.
var templatePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// TemplateEngine renders `{{ var }}` placeholders with an optional
// `| default("x")` filter against a name-resolution context.
type TemplateEngine struct{}

// NewTemplateEngine constructs a TemplateEngine. It holds no state; it
// exists as a named type so callers (ActionContext, workflow steps) can
// depend on an interface rather than a bare function.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{}
}

// Render substitutes every {{ var }} / {{ var | default("x") }} placeholder
// in tmpl with its value from ctx. A placeholder whose path cannot be
// resolved renders as its default filter value if one was given, or is
// left verbatim otherwise — rendering never fails; at worst it is a
// best-effort pass-through of the raw template text.
func (e *TemplateEngine) Render(tmpl string, ctx map[string]interface{}) string {
	if tmpl == "" {
		return tmpl
	}
	return templatePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		body := strings.TrimSpace(match[2 : len(match)-2])
		path, def, hasDefault := splitDefaultFilter(body)

		value, ok := resolvePath(strings.TrimPrefix(strings.TrimSpace(path), "."), ctx)
		if !ok || value == nil {
			if hasDefault {
				return def
			}
			return match
		}
		return stringify(value)
	})
}

// splitDefaultFilter splits "var | default(\"x\")" into ("var", "x", true),
// or returns (body, "", false) when no default filter is present.
func splitDefaultFilter(body string) (path string, def string, hasDefault bool) {
	idx := strings.Index(body, "|")
	if idx < 0 {
		return body, "", false
	}
	path = strings.TrimSpace(body[:idx])
	filter := strings.TrimSpace(body[idx+1:])

	if !strings.HasPrefix(filter, "default(") || !strings.HasSuffix(filter, ")") {
		return path, "", false
	}
	arg := strings.TrimSuffix(strings.TrimPrefix(filter, "default("), ")")
	arg = strings.TrimSpace(arg)
	if unquoted, err := strconv.Unquote(arg); err == nil {
		arg = unquoted
	}
	return path, arg, true
}

// resolvePath walks a dot-separated path through nested maps, e.g.
// "session.title" => ctx["session"].(map[string]interface{})["title"].
func resolvePath(path string, ctx map[string]interface{}) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = ctx
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		current = val
	}
	return current, true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
