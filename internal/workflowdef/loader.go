package workflowdef

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirLoader loads every `*.yaml`/`*.yml` workflow definition under a
// directory, caching parsed definitions until Reload is called, mirroring
// internal/pipeline.DirLoader's cache-until-reload discipline for the
// workflow side of the definition surface.
type DirLoader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*WorkflowDefinition
}

// NewDirLoader returns a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir}
}

// All returns every workflow definition found under dir, loading them on
// first call and serving the cache thereafter.
func (l *DirLoader) All() (map[string]*WorkflowDefinition, error) {
	l.mu.RLock()
	if l.cache != nil {
		defer l.mu.RUnlock()
		return l.cache, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != nil {
		return l.cache, nil
	}

	defs := make(map[string]*WorkflowDefinition)
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.cache = defs
			return defs, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, err
		}
		def, err := Parse(data)
		if err != nil {
			return nil, err
		}
		defs[def.Name] = def
	}

	l.cache = defs
	return defs, nil
}

// Reload drops the cache so the next All re-reads from disk.
func (l *DirLoader) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = nil
}
