// Package promptloader implements the prompt tier resolution spec.md §4.3
// describes for the Prompt entity: bundled, user, and project directories
// of Markdown-with-YAML-frontmatter files, synced into the database and
// resolved project > user > bundled. It is the daemon's filesystem-to-SQL
// bridge for prompts and skills, watched live with fsnotify so an edited
// prompt file takes effect without a daemon restart, grounded on the
// teacher's `internal/mcp/watcher.go` fsnotify-driven file watcher,
// adapted here from debounced MCP-server-source restart to directory-level
// prompt upsert/delete reconciliation.
package promptloader

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gobby-dev/gobby/internal/model"
)

// Store is the subset of internal/storage.Store the loader needs.
type Store interface {
	UpsertPrompt(ctx context.Context, p *model.Prompt) error
	ResolvePrompt(ctx context.Context, path, projectID string) (*model.Prompt, error)
	ListPromptsByCategory(ctx context.Context, category string) ([]*model.Prompt, error)
	DeletePrompt(ctx context.Context, path string, tier model.PromptTier, projectID string) error
}

// Dirs names the three prompt-tier source directories. Any entry left
// empty disables that tier's sync.
type Dirs struct {
	Bundled string
	User    string
	Project string
	// ProjectID is the project_id prompts loaded from Project are stored
	// under; required whenever Project is set.
	ProjectID string
}

// Loader syncs Dirs' on-disk prompt files into Store and serves resolution
// through it. Bundled/User load once at Start; Project (and User, since a
// developer may edit shared prompts live) are watched with fsnotify for
// the process lifetime.
type Loader struct {
	store  Store
	dirs   Dirs
	logger *slog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// New constructs a Loader. Call Start to perform the initial sync and
// begin watching.
func New(store Store, dirs Dirs, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, dirs: dirs, logger: logger}
}

// Resolve delegates to Store.ResolvePrompt, the project > user > bundled
// precedence already implemented there.
func (l *Loader) Resolve(ctx context.Context, path, projectID string) (*model.Prompt, error) {
	return l.store.ResolvePrompt(ctx, path, projectID)
}

// ListPromptsByCategory delegates to Store, satisfying internal/hook's
// Prompts interface alongside Resolve/ResolvePrompt.
func (l *Loader) ListPromptsByCategory(ctx context.Context, category string) ([]*model.Prompt, error) {
	return l.store.ListPromptsByCategory(ctx, category)
}

// ResolvePrompt is an alias for Resolve matching internal/hook.Prompts'
// exact method name.
func (l *Loader) ResolvePrompt(ctx context.Context, path, projectID string) (*model.Prompt, error) {
	return l.Resolve(ctx, path, projectID)
}

// Start performs the initial directory sync for every configured tier and
// begins watching User/Project for live edits. Returns immediately;
// watching runs until ctx is canceled or Close is called.
func (l *Loader) Start(ctx context.Context) error {
	for _, tierDir := range []struct {
		dir  string
		tier model.PromptTier
	}{
		{l.dirs.Bundled, model.PromptTierBundled},
		{l.dirs.User, model.PromptTierUser},
		{l.dirs.Project, model.PromptTierProject},
	} {
		if tierDir.dir == "" {
			continue
		}
		if err := l.syncDir(ctx, tierDir.dir, tierDir.tier); err != nil {
			l.logger.Warn("prompt directory sync failed", "dir", tierDir.dir, "tier", tierDir.tier, "error", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating prompt watcher: %w", err)
	}
	l.watcher = watcher

	for _, dir := range []string{l.dirs.User, l.dirs.Project} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			l.logger.Warn("watching prompt directory failed", "dir", dir, "error", err)
		}
	}

	go l.watchLoop(ctx)
	return nil
}

// Close stops the filesystem watcher.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *Loader) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleFSEvent(ctx, ev)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("prompt watcher error", "error", err)
		}
	}
}

func (l *Loader) handleFSEvent(ctx context.Context, ev fsnotify.Event) {
	if !isPromptFile(ev.Name) {
		return
	}

	tier, projectID := l.tierFor(ev.Name)
	if tier == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if err := l.store.DeletePrompt(ctx, promptPath(ev.Name, tier, projectID), tier, projectID); err != nil {
			l.logger.Warn("deleting prompt failed", "file", ev.Name, "error", err)
		}
		return
	}

	p, err := loadPromptFile(ev.Name, tier, projectID)
	if err != nil {
		l.logger.Warn("loading prompt file failed", "file", ev.Name, "error", err)
		return
	}
	if err := l.store.UpsertPrompt(ctx, p); err != nil {
		l.logger.Warn("upserting prompt failed", "file", ev.Name, "error", err)
	}
}

func (l *Loader) tierFor(file string) (model.PromptTier, string) {
	dir := filepath.Dir(file)
	switch {
	case l.dirs.Project != "" && dir == l.dirs.Project:
		return model.PromptTierProject, l.dirs.ProjectID
	case l.dirs.User != "" && dir == l.dirs.User:
		return model.PromptTierUser, ""
	default:
		return "", ""
	}
}

func (l *Loader) syncDir(ctx context.Context, dir string, tier model.PromptTier) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	projectID := ""
	if tier == model.PromptTierProject {
		projectID = l.dirs.ProjectID
	}

	for _, e := range entries {
		if e.IsDir() || !isPromptFile(e.Name()) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		p, err := loadPromptFile(full, tier, projectID)
		if err != nil {
			l.logger.Warn("loading prompt file failed", "file", full, "error", err)
			continue
		}
		if err := l.store.UpsertPrompt(ctx, p); err != nil {
			return fmt.Errorf("upserting %s: %w", full, err)
		}
	}
	return nil
}

func isPromptFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

// frontmatter is the YAML header a prompt Markdown file opens with,
// delimited by `---` lines; everything after the closing delimiter is the
// prompt's rendered content.
type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Category    string   `yaml:"category"`
	Variables   []string `yaml:"variables"`
}

func loadPromptFile(path string, tier model.PromptTier, projectID string) (*model.Prompt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fm, content, err := splitFrontmatter(f)
	if err != nil {
		return nil, err
	}

	return &model.Prompt{
		Path:        promptPath(path, tier, projectID),
		Tier:        tier,
		ProjectID:   projectID,
		Name:        fm.Name,
		Description: fm.Description,
		Version:     fm.Version,
		Category:    fm.Category,
		Content:     content,
		Variables:   fm.Variables,
		SourceFile:  path,
	}, nil
}

// splitFrontmatter reads a `---\n<yaml>\n---\n<content>` file. A file with
// no leading `---` line is treated as having no frontmatter: its entire
// body becomes Content and fm is the zero value.
func splitFrontmatter(f *os.File) (frontmatter, string, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var fm frontmatter
	if !scanner.Scan() {
		return fm, "", scanner.Err()
	}
	first := scanner.Text()
	if strings.TrimSpace(first) != "---" {
		var body strings.Builder
		body.WriteString(first)
		for scanner.Scan() {
			body.WriteString("\n")
			body.WriteString(scanner.Text())
		}
		return fm, body.String(), scanner.Err()
	}

	var yamlLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		yamlLines = append(yamlLines, line)
	}
	if closed {
		if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &fm); err != nil {
			return fm, "", fmt.Errorf("parsing frontmatter: %w", err)
		}
	}

	var body strings.Builder
	for scanner.Scan() {
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(scanner.Text())
	}
	return fm, strings.TrimSpace(body.String()), scanner.Err()
}

// promptPath derives a stable Prompt.Path from a source file's basename
// (minus extension). The same logical path is shared across tiers so
// ResolvePrompt's project > user > bundled precedence can find a bundled
// "review" prompt shadowed by a project "review" prompt — tier and
// project_id, not the path, are what Upsert's unique key discriminates on.
func promptPath(sourceFile string, tier model.PromptTier, projectID string) string {
	return strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
}
