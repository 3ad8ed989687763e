package fileapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Routes registers the file browser endpoints on r, matching
// internal/httpapi.FilesRouter so it can be mounted at /api/files.
func (router *Router) Routes(r chi.Router) {
	r.Get("/projects", router.listProjects)
	r.Get("/tree", router.tree)
	r.Get("/read", router.read)
	r.Get("/image", router.image)
	r.Post("/write", router.write)
	r.Get("/git-status", router.gitStatus)
	r.Get("/git-diff", router.gitDiff)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveProject looks up the project and repository root for an
// "?project_id=" query param, writing the 404 response itself when absent.
func (router *Router) resolveProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("project_id")
	project, err := router.Projects.Get(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "looking up project failed")
		return "", false
	}
	if project == nil || project.RepoPath == "" {
		writeErr(w, http.StatusNotFound, "project not found")
		return "", false
	}
	return project.RepoPath, true
}

// resolveSafePath joins repoRoot and relPath, refusing anything that would
// escape repoRoot after resolution — the same traversal guard
// original_source's _resolve_safe_path enforces.
func resolveSafePath(repoRoot, relPath string) (string, bool) {
	base, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", false
	}
	target := filepath.Join(base, relPath)
	target, err = filepath.Abs(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func (router *Router) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := router.Projects.List(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "listing projects failed")
		return
	}
	type projectEntry struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RepoPath string `json:"repo_path"`
	}
	out := make([]projectEntry, 0, len(projects))
	for _, p := range projects {
		if p.RepoPath == "" {
			continue
		}
		if info, err := os.Stat(p.RepoPath); err != nil || !info.IsDir() {
			continue
		}
		out = append(out, projectEntry{ID: p.ID, Name: p.Name, RepoPath: p.RepoPath})
	}
	writeJSON(w, http.StatusOK, out)
}

func (router *Router) tree(w http.ResponseWriter, r *http.Request) {
	repoRoot, ok := router.resolveProject(w, r)
	if !ok {
		return
	}
	target, ok := resolveSafePath(repoRoot, r.URL.Query().Get("path"))
	if !ok {
		writeErr(w, http.StatusForbidden, "path traversal not allowed")
		return
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		writeErr(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	children, err := os.ReadDir(target)
	if err != nil {
		writeErr(w, http.StatusForbidden, "permission denied")
		return
	}

	gitFiles, hasGit := router.trackedFiles(r.Context(), repoRoot)

	entries := make([]entry, 0, len(children))
	for _, child := range children {
		rel, err := filepath.Rel(repoRoot, filepath.Join(target, child.Name()))
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		isDir := child.IsDir()
		if !isVisible(rel, gitFiles, hasGit, isDir) {
			continue
		}
		if !hasGit && router.ignoreMatch(rel) {
			continue
		}
		e := entry{Name: child.Name(), Path: rel, IsDir: isDir}
		if !isDir {
			if info, err := child.Info(); err == nil {
				e.Size = info.Size()
			}
			e.Extension = strings.ToLower(filepath.Ext(child.Name()))
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	writeJSON(w, http.StatusOK, entries)
}

// isVisible hides .git and, when git info is available, anything not
// tracked or not present in an untracked-but-not-ignored listing.
func isVisible(relPath string, gitFiles map[string]bool, hasGit, isDir bool) bool {
	for _, part := range strings.Split(relPath, "/") {
		if part == ".git" {
			return false
		}
	}
	if !hasGit {
		return true
	}
	if isDir {
		prefix := strings.TrimSuffix(relPath, "/") + "/"
		for f := range gitFiles {
			if strings.HasPrefix(f, prefix) {
				return true
			}
		}
		return false
	}
	return gitFiles[relPath]
}

// trackedFiles returns the union of `git ls-files` and
// `git ls-files --others --exclude-standard`, or (nil, false) when the
// directory isn't a working git repo.
func (router *Router) trackedFiles(ctx context.Context, repoRoot string) (map[string]bool, bool) {
	tracked, ok := router.git(ctx, repoRoot, 10*time.Second, "ls-files")
	if !ok {
		return nil, false
	}
	files := make(map[string]bool)
	for _, line := range strings.Split(tracked, "\n") {
		if line != "" {
			files[line] = true
		}
	}
	if untracked, ok := router.git(ctx, repoRoot, 10*time.Second, "ls-files", "--others", "--exclude-standard"); ok {
		for _, line := range strings.Split(untracked, "\n") {
			if line != "" {
				files[line] = true
			}
		}
	}
	return files, true
}

func (router *Router) read(w http.ResponseWriter, r *http.Request) {
	repoRoot, ok := router.resolveProject(w, r)
	if !ok {
		return
	}
	target, ok := resolveSafePath(repoRoot, r.URL.Query().Get("path"))
	if !ok {
		writeErr(w, http.StatusForbidden, "path traversal not allowed")
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}

	maxSize := int64(defaultMaxReadSize)
	if raw := r.URL.Query().Get("max_size"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxSize = n
		}
	}

	ext := strings.ToLower(filepath.Ext(target))
	isImage := imageExtensions[ext]
	isBinary := binaryExtensions[ext] || isImage

	result := map[string]any{
		"size":      info.Size(),
		"truncated": false,
		"binary":    isBinary,
		"image":     isImage,
		"mime_type": mimeTypeFor(target),
		"extension": ext,
		"name":      filepath.Base(target),
	}
	if isBinary {
		result["content"] = nil
		writeJSON(w, http.StatusOK, result)
		return
	}

	f, err := os.Open(target)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	truncated := int64(len(raw)) > maxSize
	if truncated {
		raw = raw[:maxSize]
	}
	result["content"] = string(raw)
	result["truncated"] = truncated
	writeJSON(w, http.StatusOK, result)
}

func (router *Router) image(w http.ResponseWriter, r *http.Request) {
	repoRoot, ok := router.resolveProject(w, r)
	if !ok {
		return
	}
	target, ok := resolveSafePath(repoRoot, r.URL.Query().Get("path"))
	if !ok {
		writeErr(w, http.StatusForbidden, "path traversal not allowed")
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		writeErr(w, http.StatusNotFound, "file not found")
		return
	}
	ext := strings.ToLower(filepath.Ext(target))
	if !imageExtensions[ext] {
		writeErr(w, http.StatusBadRequest, "not an image file")
		return
	}
	w.Header().Set("Content-Type", mimeTypeFor(target))
	http.ServeFile(w, r, target)
}

func (router *Router) write(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	project, err := router.Projects.Get(r.Context(), body.ProjectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "looking up project failed")
		return
	}
	if project == nil || project.RepoPath == "" {
		writeErr(w, http.StatusNotFound, "project not found")
		return
	}

	target, ok := resolveSafePath(project.RepoPath, body.Path)
	if !ok {
		writeErr(w, http.StatusForbidden, "path traversal not allowed")
		return
	}
	rel, _ := filepath.Rel(project.RepoPath, target)
	rel = filepath.ToSlash(rel)
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		writeErr(w, http.StatusForbidden, "cannot write to .git directory")
		return
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		writeErr(w, http.StatusNotFound, "parent directory does not exist")
		return
	}
	if err := os.WriteFile(target, []byte(body.Content), 0o644); err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to write file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"size":    len(body.Content),
		"path":    body.Path,
	})
}

func (router *Router) gitStatus(w http.ResponseWriter, r *http.Request) {
	repoRoot, ok := router.resolveProject(w, r)
	if !ok {
		return
	}
	result := map[string]any{"branch": nil, "files": map[string]string{}}

	if branch, ok := router.git(r.Context(), repoRoot, 5*time.Second, "rev-parse", "--abbrev-ref", "HEAD"); ok {
		result["branch"] = strings.TrimSpace(branch)
	}
	if status, ok := router.git(r.Context(), repoRoot, 10*time.Second, "status", "--porcelain"); ok {
		files := make(map[string]string)
		for _, line := range strings.Split(status, "\n") {
			if len(line) < 4 {
				continue
			}
			code := strings.TrimSpace(line[0:2])
			if code == "" {
				code = "?"
			}
			path := line[3:]
			if idx := strings.Index(path, " -> "); idx != -1 {
				path = path[idx+4:]
			}
			if path != "" {
				files[path] = code
			}
		}
		result["files"] = files
	}
	writeJSON(w, http.StatusOK, result)
}

func (router *Router) gitDiff(w http.ResponseWriter, r *http.Request) {
	repoRoot, ok := router.resolveProject(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if _, ok := resolveSafePath(repoRoot, path); !ok {
		writeErr(w, http.StatusForbidden, "path traversal not allowed")
		return
	}

	diff, _ := router.git(r.Context(), repoRoot, 10*time.Second, "diff", "HEAD", "--", path)
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff, "path": path})
}
