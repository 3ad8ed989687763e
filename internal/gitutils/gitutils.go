// Package gitutils runs a handful of read-only git subcommands against a
// repository checkout, used by the task close-time dirty-tree check and by
// handoff-context extraction to enrich a transcript with live git state.
package gitutils

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Checker runs git against one repository root.
type Checker struct {
	RepoPath string
}

// New constructs a Checker rooted at repoPath.
func New(repoPath string) *Checker {
	return &Checker{RepoPath: repoPath}
}

// HasUncommittedChanges reports whether any tracked file in repoPath has
// pending changes (staged or unstaged). Satisfies task.GitStatusChecker.
func (c *Checker) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	out, err := run(ctx, repoPath, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Status returns `git status --porcelain` output for repoPath, or "" if the
// tree is clean or repoPath isn't a git checkout.
func Status(ctx context.Context, repoPath string) string {
	out, err := run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Commit is one git log entry.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// RecentCommits returns up to limit commits from repoPath's current HEAD,
// most recent first. Returns nil (not an error) if repoPath isn't a git
// checkout or has no commits yet.
func RecentCommits(ctx context.Context, repoPath string, limit int) []Commit {
	if limit <= 0 {
		limit = 5
	}
	out, err := run(ctx, repoPath, "log", fmt.Sprintf("-%d", limit), "--format=%H\x1f%s")
	if err != nil {
		return nil
	}
	var commits []Commit
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 2)
		if len(parts) != 2 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Message: parts[1]})
	}
	return commits
}

func run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
