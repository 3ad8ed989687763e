package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/memory"
	"github.com/gobby-dev/gobby/internal/model"
)

type fakeStore struct {
	byProject map[string][]*model.Memory
}

func newFakeStore() *fakeStore { return &fakeStore{byProject: map[string][]*model.Memory{}} }

func (f *fakeStore) CreateMemory(ctx context.Context, m *model.Memory) error {
	f.byProject[m.ProjectID] = append(f.byProject[m.ProjectID], m)
	return nil
}

func (f *fakeStore) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	for _, ms := range f.byProject {
		for _, m := range ms {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) ListMemoriesByProject(ctx context.Context, projectID string) ([]*model.Memory, error) {
	return f.byProject[projectID], nil
}

func (f *fakeStore) DeleteMemory(ctx context.Context, id string) error {
	for proj, ms := range f.byProject {
		for i, m := range ms {
			if m.ID == id {
				f.byProject[proj] = append(ms[:i], ms[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

type fakeSessions struct {
	byID map[string]*model.Session
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	return f.byID[id], nil
}

func TestSaveDedupsByContent(t *testing.T) {
	store := newFakeStore()
	svc := memory.New(store, nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "proj-1", "remember this"))
	require.NoError(t, svc.Save(ctx, "proj-1", "remember this"))

	got, err := store.ListMemoriesByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.MemoryTypeNote, got[0].MemoryType)
	require.Equal(t, model.MemorySourceManual, got[0].SourceType)
}

func TestRecallRelevantRanksByOverlap(t *testing.T) {
	store := newFakeStore()
	svc := memory.New(store, nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "proj-1", "the database migration uses sqlite"))
	require.NoError(t, svc.Save(ctx, "proj-1", "the frontend uses react and typescript"))

	items, err := svc.RecallRelevant(ctx, "proj-1", "sqlite migration question", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Contains(t, items[0], "sqlite")
}

func TestProjectContextJoinsOnlyProjectContextMemories(t *testing.T) {
	store := newFakeStore()
	svc := memory.New(store, nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.CreateMemory(ctx, &model.Memory{ID: "m1", ProjectID: "proj-1", Content: "this repo is a daemon", MemoryType: model.MemoryTypeProjectContext}))
	require.NoError(t, store.CreateMemory(ctx, &model.Memory{ID: "m2", ProjectID: "proj-1", Content: "unrelated note", MemoryType: model.MemoryTypeNote}))

	text, err := svc.ProjectContext(ctx, "proj-1")
	require.NoError(t, err)
	require.Contains(t, text, "this repo is a daemon")
	require.NotContains(t, text, "unrelated note")
}

func TestExtractFromSessionSavesGoalAndFiles(t *testing.T) {
	dir := t.TempDir()
	transcript := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(transcript, []byte(
		`{"type":"message","message":{"role":"user","content":"fix the login bug"}}`+"\n"+
			`{"type":"message","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"auth.go"}}]}}`+"\n",
	), 0o644))

	store := newFakeStore()
	sessions := &fakeSessions{byID: map[string]*model.Session{
		"sess-1": {ID: "sess-1", ProjectID: "proj-1", JSONLPath: transcript},
	}}
	parser := func(path string) (*model.HandoffContext, error) {
		return &model.HandoffContext{InitialGoal: "fix the login bug", FilesModified: []string{"auth.go"}}, nil
	}
	svc := memory.New(store, sessions, parser, nil, nil)

	saved, err := svc.ExtractFromSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, saved, 2)

	got, err := store.ListMemoriesByProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		require.Equal(t, model.MemorySourceSessionExtract, m.SourceType)
		require.Equal(t, "sess-1", m.SourceSessionID)
	}
}

func TestSyncExportThenImportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	syncDir := func(projectID string) string { return filepath.Join(dir, projectID) }

	store := newFakeStore()
	require.NoError(t, store.CreateMemory(context.Background(), &model.Memory{ID: "m1", ProjectID: "proj-1", Content: "exported note", MemoryType: model.MemoryTypeNote}))

	svc := memory.New(store, nil, nil, syncDir, nil)
	n, err := svc.SyncExport(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// proj-2 maps to its own, empty sync directory, so nothing is imported.
	n, err = svc.SyncImport(context.Background(), "proj-2")
	require.NoError(t, err)
	require.Equal(t, 0, n, "proj-2 has its own empty sync dir")

	n, err = svc.SyncImport(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Equal(t, 0, n, "content already present, nothing new to import")
}
