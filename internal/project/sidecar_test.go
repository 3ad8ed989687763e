package project_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/project"
)

func TestWriteSidecarIfAbsentThenReadBack(t *testing.T) {
	dir := t.TempDir()
	sc := &model.ProjectSidecar{ID: "p1", Name: "gobby"}
	require.NoError(t, project.WriteSidecarIfAbsent(dir, sc))

	got, err := project.ReadSidecar(dir)
	require.NoError(t, err)
	require.Equal(t, "p1", got.ID)
}

func TestWriteSidecarIfAbsentDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, project.WriteSidecarIfAbsent(dir, &model.ProjectSidecar{ID: "original"}))
	require.NoError(t, project.WriteSidecarIfAbsent(dir, &model.ProjectSidecar{ID: "new"}))

	got, err := project.ReadSidecar(dir)
	require.NoError(t, err)
	require.Equal(t, "original", got.ID)
}
