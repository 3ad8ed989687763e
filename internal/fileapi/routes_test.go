package fileapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
)

type fakeProjects struct {
	byID map[string]*model.Project
}

func (f *fakeProjects) Get(ctx context.Context, id string) (*model.Project, error) {
	return f.byID[id], nil
}

func (f *fakeProjects) List(ctx context.Context) ([]*model.Project, error) {
	out := make([]*model.Project, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func noGit(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, bool) {
	return "", false
}

func newTestRouter(t *testing.T, repoPath string) *Router {
	t.Helper()
	r := New(&fakeProjects{byID: map[string]*model.Project{
		"proj-1": {ID: "proj-1", Name: "demo", RepoPath: repoPath},
	}}, nil)
	r.git = noGit
	return r
}

func TestTreeRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	router := newTestRouter(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/tree?project_id=proj-1&path=../../etc", nil)
	w := httptest.NewRecorder()
	router.tree(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTreeHidesGitDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hi"), 0o644))
	router := newTestRouter(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/tree?project_id=proj-1&path=", nil)
	w := httptest.NewRecorder()
	router.tree(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), ".git")
	require.Contains(t, w.Body.String(), "readme.md")
}

func TestWriteRefusesGitDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	router := newTestRouter(t, dir)

	req := httptest.NewRequest(http.MethodPost, "/write", strings.NewReader(
		`{"project_id":"proj-1","path":".git/config","content":"x"}`))
	w := httptest.NewRecorder()
	router.write(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadReturnsContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))
	router := newTestRouter(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/read?project_id=proj-1&path=note.txt", nil)
	w := httptest.NewRecorder()
	router.read(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hello")
}
