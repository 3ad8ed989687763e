package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// DirLoader resolves pipeline definitions from `<dir>/<name>.yaml` (or
// `.yml`), caching parsed definitions until Reload is called — pipeline
// YAML is edited far less often than it's run.
type DirLoader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*workflowdef.PipelineDefinition
}

// NewDirLoader returns a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir, cache: make(map[string]*workflowdef.PipelineDefinition)}
}

// Get resolves name to a parsed, validated pipeline definition.
func (l *DirLoader) Get(name string) (*workflowdef.PipelineDefinition, error) {
	l.mu.RLock()
	if def, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return def, nil
	}
	l.mu.RUnlock()

	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		def, err := workflowdef.ParsePipeline(data)
		if err != nil {
			return nil, fmt.Errorf("parsing pipeline %q: %w", name, err)
		}
		l.mu.Lock()
		l.cache[name] = def
		l.mu.Unlock()
		return def, nil
	}
	return nil, gobbyerrors.NewNotFoundError("pipeline", name)
}

// Reload drops the cache so the next Get re-reads from disk.
func (l *DirLoader) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*workflowdef.PipelineDefinition)
}
