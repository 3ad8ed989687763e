package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/storage"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &model.Project{ID: model.NewID(), Name: "gobby", RepoPath: "/repos/gobby"}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.RepoPath, got.RepoPath)
	require.False(t, got.CreatedAt.IsZero())
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	require.True(t, gobbyerrors.IsNotFound(err))
}

func TestUpsertProjectByRepoPathIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.Project{ID: model.NewID(), Name: "gobby", RepoPath: "/repos/gobby"}
	got1, err := s.UpsertProjectByRepoPath(ctx, first)
	require.NoError(t, err)
	require.Equal(t, first.ID, got1.ID)

	second := &model.Project{ID: model.NewID(), Name: "gobby-dup", RepoPath: "/repos/gobby"}
	got2, err := s.UpsertProjectByRepoPath(ctx, second)
	require.NoError(t, err)
	require.Equal(t, first.ID, got2.ID, "second upsert should return the existing project")
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &model.Project{ID: model.NewID(), Name: "a", RepoPath: "/a"}))
	require.NoError(t, s.CreateProject(ctx, &model.Project{ID: model.NewID(), Name: "b", RepoPath: "/b"}))

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}
