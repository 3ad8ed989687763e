// Package registry holds the process-wide, in-memory index of currently
// running agents. It is the only place RunningAgent values live — nothing
// here is persisted, and every entry is destroyed on exit or cleanup.
package registry

import (
	"sync"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
)

// EventType identifies why a registry callback fired.
type EventType string

const (
	EventAdded          EventType = "added"
	EventRemoved        EventType = "removed"
	EventCleanedUp       EventType = "cleaned_up"
)

// EventCallback is invoked after add/remove/cleanup, always outside the
// registry's internal lock to avoid deadlock and reentrancy. data carries
// the agent's snapshot plus, for EventRemoved, the terminating status
// under the "status" key.
type EventCallback func(eventType EventType, runID string, data map[string]any)

// Registry is a thread-safe index of live RunningAgent processes, keyed by
// run id.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*model.RunningAgent
	callbacks []EventCallback

	now func() time.Time
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*model.RunningAgent),
		now:    time.Now,
	}
}

// SetClock overrides the registry's time source, for deterministic tests
// of CleanupStale.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// OnEvent registers a callback fired on add, remove, and cleanup.
func (r *Registry) OnEvent(cb EventCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

func (r *Registry) fire(eventType EventType, runID string, data map[string]any) {
	r.mu.RLock()
	cbs := make([]EventCallback, len(r.callbacks))
	copy(cbs, r.callbacks)
	r.mu.RUnlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					// Callback panics are logged and swallowed by the caller
					// wiring logging in; the registry itself has no logger
					// dependency, so it only guarantees the panic can't
					// escape and corrupt registry state.
					_ = rec
				}
			}()
			cb(eventType, runID, data)
		}()
	}
}

func snapshotData(snap model.RunSnapshot) map[string]any {
	return map[string]any{
		"run_id":            snap.RunID,
		"session_id":        snap.SessionID,
		"parent_session_id": snap.ParentSessionID,
		"mode":              snap.Mode,
		"started_at":        snap.StartedAt,
		"pid":               snap.PID,
		"provider":          snap.Provider,
		"workflow_name":     snap.WorkflowName,
		"worktree_id":       snap.WorktreeID,
		"task":              snap.Task,
	}
}

// Add registers a new running agent. Replaces any existing entry with the
// same RunID.
func (r *Registry) Add(agent *model.RunningAgent) {
	r.mu.Lock()
	r.agents[agent.RunID] = agent
	snap := agent.Snapshot()
	r.mu.Unlock()

	r.fire(EventAdded, agent.RunID, snapshotData(snap))
}

// Get returns the agent for runID, and whether it was found.
func (r *Registry) Get(runID string) (*model.RunningAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[runID]
	return a, ok
}

// Remove deletes runID from the registry and fires EventRemoved, with the
// terminating status included in the callback data under "status".
func (r *Registry) Remove(runID string, status string) (model.RunSnapshot, bool) {
	r.mu.Lock()
	a, ok := r.agents[runID]
	if !ok {
		r.mu.Unlock()
		return model.RunSnapshot{}, false
	}
	delete(r.agents, runID)
	snap := a.Snapshot()
	r.mu.Unlock()

	data := snapshotData(snap)
	data["status"] = status
	r.fire(EventRemoved, runID, data)
	return snap, true
}

// GetBySession returns every running agent for sessionID.
func (r *Registry) GetBySession(sessionID string) []*model.RunningAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.RunningAgent
	for _, a := range r.agents {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}

// GetByPID returns the running agent with the given OS pid, if any.
func (r *Registry) GetByPID(pid int) (*model.RunningAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.PID == pid {
			return a, true
		}
	}
	return nil, false
}

// ListByParent returns every running agent whose ParentSessionID matches.
func (r *Registry) ListByParent(parentSessionID string) []*model.RunningAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.RunningAgent
	for _, a := range r.agents {
		if a.ParentSessionID == parentSessionID {
			out = append(out, a)
		}
	}
	return out
}

// ListByMode returns every running agent in the given mode.
func (r *Registry) ListByMode(mode model.AgentMode) []*model.RunningAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.RunningAgent
	for _, a := range r.agents {
		if a.Mode == mode {
			out = append(out, a)
		}
	}
	return out
}

// ListAll returns every running agent.
func (r *Registry) ListAll() []*model.RunningAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.RunningAgent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// CountByParent counts running agents whose ParentSessionID matches.
func (r *Registry) CountByParent(parentSessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.ParentSessionID == parentSessionID {
			n++
		}
	}
	return n
}

// CleanupByPIDs removes every entry whose PID is in deadPIDs, firing
// EventCleanedUp for each.
func (r *Registry) CleanupByPIDs(deadPIDs map[int]bool) []model.RunSnapshot {
	r.mu.Lock()
	var removed []*model.RunningAgent
	for runID, a := range r.agents {
		if a.PID != 0 && deadPIDs[a.PID] {
			removed = append(removed, a)
			delete(r.agents, runID)
		}
	}
	r.mu.Unlock()

	snaps := make([]model.RunSnapshot, 0, len(removed))
	for _, a := range removed {
		snap := a.Snapshot()
		snaps = append(snaps, snap)
		r.fire(EventCleanedUp, a.RunID, snapshotData(snap))
	}
	return snaps
}

// CleanupStale removes every entry whose StartedAt is older than maxAge,
// firing EventCleanedUp for each.
func (r *Registry) CleanupStale(maxAge time.Duration) []model.RunSnapshot {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	var removed []*model.RunningAgent
	for runID, a := range r.agents {
		if a.StartedAt.Before(cutoff) {
			removed = append(removed, a)
			delete(r.agents, runID)
		}
	}
	r.mu.Unlock()

	snaps := make([]model.RunSnapshot, 0, len(removed))
	for _, a := range removed {
		snap := a.Snapshot()
		snaps = append(snaps, snap)
		r.fire(EventCleanedUp, a.RunID, snapshotData(snap))
	}
	return snaps
}

// Clear removes every entry without firing any callbacks, for test/shutdown
// use.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*model.RunningAgent)
}
