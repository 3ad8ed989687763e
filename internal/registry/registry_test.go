package registry_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/registry"
)

func TestAddGetRemove(t *testing.T) {
	r := registry.New()
	agent := &model.RunningAgent{RunID: "r1", SessionID: "s1", Mode: model.AgentModeInProcess, StartedAt: time.Now()}
	r.Add(agent)

	got, ok := r.Get("r1")
	require.True(t, ok)
	require.Equal(t, "s1", got.SessionID)

	_, ok = r.Remove("r1", "completed")
	require.True(t, ok)

	_, ok = r.Get("r1")
	require.False(t, ok)
}

func TestCallbacksFireInOrderAndSwallowPanics(t *testing.T) {
	r := registry.New()

	var mu sync.Mutex
	var events []string
	r.OnEvent(func(eventType registry.EventType, runID string, data map[string]any) {
		mu.Lock()
		events = append(events, string(eventType))
		mu.Unlock()
		panic("boom")
	})

	r.Add(&model.RunningAgent{RunID: "r1", SessionID: "s1", StartedAt: time.Now()})
	r.Remove("r1", "failed")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"added", "removed"}, events)
}

func TestRemoveIncludesStatusInCallbackData(t *testing.T) {
	r := registry.New()
	var got map[string]any
	r.OnEvent(func(eventType registry.EventType, runID string, data map[string]any) {
		if eventType == registry.EventRemoved {
			got = data
		}
	})
	r.Add(&model.RunningAgent{RunID: "r1", SessionID: "s1", StartedAt: time.Now()})
	r.Remove("r1", "failed")

	require.Equal(t, "failed", got["status"])
}

func TestListByParentAndCountByParent(t *testing.T) {
	r := registry.New()
	r.Add(&model.RunningAgent{RunID: "r1", ParentSessionID: "p1", StartedAt: time.Now()})
	r.Add(&model.RunningAgent{RunID: "r2", ParentSessionID: "p1", StartedAt: time.Now()})
	r.Add(&model.RunningAgent{RunID: "r3", ParentSessionID: "p2", StartedAt: time.Now()})

	require.Len(t, r.ListByParent("p1"), 2)
	require.Equal(t, 2, r.CountByParent("p1"))
	require.Equal(t, 1, r.CountByParent("p2"))
}

func TestCleanupByPIDs(t *testing.T) {
	r := registry.New()
	r.Add(&model.RunningAgent{RunID: "r1", PID: 100, StartedAt: time.Now()})
	r.Add(&model.RunningAgent{RunID: "r2", PID: 200, StartedAt: time.Now()})

	removed := r.CleanupByPIDs(map[int]bool{100: true})
	require.Len(t, removed, 1)
	require.Equal(t, "r1", removed[0].RunID)

	_, ok := r.Get("r2")
	require.True(t, ok)
}

func TestCleanupStale(t *testing.T) {
	r := registry.New()
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return fixedNow })

	r.Add(&model.RunningAgent{RunID: "old", StartedAt: fixedNow.Add(-2 * time.Hour)})
	r.Add(&model.RunningAgent{RunID: "new", StartedAt: fixedNow.Add(-1 * time.Minute)})

	removed := r.CleanupStale(time.Hour)
	require.Len(t, removed, 1)
	require.Equal(t, "old", removed[0].RunID)

	_, ok := r.Get("new")
	require.True(t, ok)
}

func TestClearRemovesEverythingWithoutCallbacks(t *testing.T) {
	r := registry.New()
	fired := false
	r.OnEvent(func(eventType registry.EventType, runID string, data map[string]any) {
		fired = true
	})
	r.Add(&model.RunningAgent{RunID: "r1", StartedAt: time.Now()})
	fired = false // ignore the Add callback
	r.Clear()
	require.False(t, fired)
	require.Empty(t, r.ListAll())
}
