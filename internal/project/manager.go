// Package project implements thin CRUD over the Project entity, keyed on
// its repository root path and backed by a `.gobby/project.json` sidecar
// the caller maintains on disk.
package project

import (
	"context"

	"github.com/gobby-dev/gobby/internal/model"
)

// Store is the subset of internal/storage.Store the manager needs.
type Store interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetProjectByRepoPath(ctx context.Context, repoPath string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)
	UpsertProjectByRepoPath(ctx context.Context, p *model.Project) (*model.Project, error)
}

// Manager wraps Store for project discovery and lookup.
type Manager struct {
	store Store
}

// New constructs a Manager over store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Get fetches a project by id.
func (m *Manager) Get(ctx context.Context, id string) (*model.Project, error) {
	return m.store.GetProject(ctx, id)
}

// GetByRepoPath fetches a project by its repository root.
func (m *Manager) GetByRepoPath(ctx context.Context, repoPath string) (*model.Project, error) {
	return m.store.GetProjectByRepoPath(ctx, repoPath)
}

// List returns every known project.
func (m *Manager) List(ctx context.Context) ([]*model.Project, error) {
	return m.store.ListProjects(ctx)
}

// EnsureForRepo returns the existing project for repoPath, creating one
// named name if none exists yet — the path taken the first time a CLI
// front-end fires a hook from a new repository.
func (m *Manager) EnsureForRepo(ctx context.Context, repoPath, name string) (*model.Project, error) {
	return m.store.UpsertProjectByRepoPath(ctx, &model.Project{
		ID:       model.NewID(),
		Name:     name,
		RepoPath: repoPath,
	})
}
