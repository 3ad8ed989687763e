package agentrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gobby-dev/gobby/internal/model"
)

// GitIsolator stages a worktree or plain clone checkout for a spawned
// agent, the same os/exec-driven git idiom internal/gitutils uses for
// read-only status queries.
type GitIsolator struct {
	// Root is the parent directory under which worktrees/clones are
	// created, one subdirectory per run id.
	Root string
}

// NewGitIsolator constructs an isolator rooted at root.
func NewGitIsolator(root string) *GitIsolator {
	return &GitIsolator{Root: root}
}

// Prepare stages the requested isolation kind for runID off repoPath at
// baseBranch, writing a `.gobby/project.json` sidecar so a child workflow
// running inside the checkout can locate the parent project. An existing
// sidecar is never overwritten.
func (g *GitIsolator) Prepare(ctx context.Context, kind Kind, repoPath, baseBranch, runID string) (*IsolationResult, error) {
	if baseBranch == "" {
		baseBranch = "HEAD"
	}
	dest := filepath.Join(g.Root, runID)
	branch := fmt.Sprintf("gobby/%s", runID)

	switch kind {
	case IsolationWorktree:
		if err := runGit(ctx, repoPath, "worktree", "add", "-b", branch, dest, baseBranch); err != nil {
			return nil, err
		}
	case IsolationClone:
		if err := runGit(ctx, repoPath, "clone", "--branch", baseBranch, repoPath, dest); err != nil {
			return nil, err
		}
		if err := runGit(ctx, dest, "checkout", "-b", branch); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported isolation kind %q", kind)
	}

	if err := writeProjectSidecar(dest, repoPath); err != nil {
		return nil, err
	}

	return &IsolationResult{WorktreeID: runID, BranchName: branch, Path: dest}, nil
}

func writeProjectSidecar(dest, parentRepoPath string) error {
	dir := filepath.Join(dest, ".gobby")
	sidecarPath := filepath.Join(dir, "project.json")
	if _, err := os.Stat(sidecarPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .gobby directory: %w", err)
	}
	sidecar := model.ProjectSidecar{
		ID:                model.NewID(),
		Name:              filepath.Base(dest),
		ParentProjectPath: parentRepoPath,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath, data, 0o644)
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %v: %w: %s", args, err, stderr.String())
	}
	return nil
}
