// Package adapter translates each supported CLI front-end's native hook
// payload into the unified event.HookEvent/event.HookResponse shapes, and
// back again. Adapters never touch SQLite or workflow state directly —
// they only marshal, delegating all handling to a Handler.
package adapter

import (
	"context"

	"github.com/gobby-dev/gobby/internal/event"
)

// Source names, matching Session.Source.
const (
	SourceClaude  = "claude"
	SourceGemini  = "gemini"
	SourceCodex   = "codex"
	SourceCursor  = "cursor"
	SourceCopilot = "copilot"
)

// Handler processes a unified HookEvent and returns the composed
// HookResponse. internal/hook.Manager implements this.
type Handler interface {
	Handle(ctx context.Context, evt *event.HookEvent) (*event.HookResponse, error)
}

// Adapter is the per-CLI hook translation shim described for each
// front-end: two pure translation functions plus one orchestrating method
// that composes them around a Handler.
type Adapter interface {
	// Source identifies which CLI this adapter serves.
	Source() string

	// TranslateToHookEvent normalizes a native hook payload into a
	// HookEvent. Unknown native hook names map to event.HookTypeNotification.
	TranslateToHookEvent(native map[string]any) (*event.HookEvent, error)

	// TranslateFromHookResponse renders a unified HookResponse back into
	// the shape this CLI expects for the given native hook name.
	TranslateFromHookResponse(resp *event.HookResponse, nativeHookName string) map[string]any

	// HandleNative composes the two translations around a Handler call,
	// the single entry point the HTTP layer invokes per adapter.
	HandleNative(ctx context.Context, handler Handler, native map[string]any) (map[string]any, error)
}

// Registry maps an adapter name (as used in the POST /hooks/<adapter> URL
// path) to its Adapter implementation.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry pre-populated with every built-in adapter.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(NewClaudeAdapter())
	r.Register(NewCopilotAdapter())
	r.Register(NewGenericAdapter(SourceGemini))
	r.Register(NewGenericAdapter(SourceCodex))
	r.Register(NewGenericAdapter(SourceCursor))
	return r
}

// Register adds or replaces the adapter for its own Source() name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Source()] = a
}

// Get returns the adapter registered under name, and whether it exists.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// mapString reads a string field from a native payload map, tolerating a
// missing or non-string value by returning "".
func mapString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// mapGet reads a nested map field, returning an empty map when absent or
// of the wrong type so callers can index into it unconditionally.
func mapGet(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return map[string]any{}
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return nested
}
