package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gobby-dev/gobby/internal/model"
)

// SidecarPath returns the `.gobby/project.json` path under repoPath.
func SidecarPath(repoPath string) string {
	return filepath.Join(repoPath, ".gobby", "project.json")
}

// ReadSidecar loads the project.json sidecar under repoPath, if present.
func ReadSidecar(repoPath string) (*model.ProjectSidecar, error) {
	data, err := os.ReadFile(SidecarPath(repoPath))
	if err != nil {
		return nil, err
	}
	var sc model.ProjectSidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// WriteSidecarIfAbsent writes a project.json sidecar under repoPath unless
// one already exists, so a worktree that inherits its parent repo's
// sidecar never clobbers it.
func WriteSidecarIfAbsent(repoPath string, sc *model.ProjectSidecar) error {
	path := SidecarPath(repoPath)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
