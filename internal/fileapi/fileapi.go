// Package fileapi implements the project file browser spec.md §4.13
// describes: directory listing, file reads, image serving, git status/diff,
// and guarded writes, scoped to a project's repository root. Path
// resolution and git-visibility filtering follow
// original_source/src/gobby/servers/routes/files.py exactly, ported from
// subprocess-shelled git calls to Go's os/exec.
package fileapi

import (
	"context"
	"log/slog"
	"mime"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gobby-dev/gobby/internal/model"
)

// defaultIgnoreGlobs fall back to hiding the usual noise directories in a
// project that isn't a git repository (so trackedFiles has nothing to
// filter against); doublestar's `**` matches across path separators the
// way .gitignore patterns do.
var defaultIgnoreGlobs = []string{
	"**/node_modules/**", "**/.venv/**", "**/__pycache__/**",
	"**/*.pyc", "**/dist/**", "**/build/**",
}

// imageExtensions are served directly and never returned as text content.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".bmp": true,
}

// binaryExtensions are reported with metadata only; their content is never
// read into a JSON response.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".o": true, ".a": true, ".zip": true, ".tar": true, ".gz": true,
	".bz2": true, ".xz": true, ".7z": true, ".rar": true, ".woff": true,
	".woff2": true, ".ttf": true, ".otf": true, ".eot": true, ".pdf": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true,
	".pptx": true, ".mp3": true, ".mp4": true, ".wav": true, ".avi": true,
	".mov": true, ".mkv": true, ".flac": true, ".pyc": true, ".class": true,
	".wasm": true,
}

// defaultMaxReadSize caps how many bytes /read returns inline.
const defaultMaxReadSize = 1_048_576

// Projects is the subset of internal/project.Manager the browser needs to
// resolve a project id to its repository root.
type Projects interface {
	Get(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context) ([]*model.Project, error)
}

// gitRunner shells out to git, swappable in tests.
type gitRunner func(ctx context.Context, dir string, timeout time.Duration, args ...string) (stdout string, ok bool)

func execGit(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err == nil
}

// Router serves the project file browser under /api/files.
type Router struct {
	Projects     Projects
	Logger       *slog.Logger
	IgnoreGlobs  []string
	git          gitRunner
}

// New constructs a Router. logger may be nil. IgnoreGlobs defaults to
// defaultIgnoreGlobs; set Router.IgnoreGlobs after construction to
// override.
func New(projects Projects, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{Projects: projects, Logger: logger, IgnoreGlobs: defaultIgnoreGlobs, git: execGit}
}

// ignoreMatch reports whether relPath matches one of router's ignore
// globs, used as the visibility fallback when a directory has no git
// info for trackedFiles to filter against.
func (router *Router) ignoreMatch(relPath string) bool {
	for _, g := range router.IgnoreGlobs {
		if ok, err := doublestar.Match(g, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// entry mirrors one listing row from /tree.
type entry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsDir     bool   `json:"is_dir"`
	Size      int64  `json:"size,omitempty"`
	Extension string `json:"extension,omitempty"`
}

func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
