// Package memory implements the MemoryService boundary spec.md §4.6's
// memory_* action family calls through: a project's durable notes, synced
// to SQLite via internal/storage and, when a sync directory is configured,
// mirrored to Markdown files an operator can read or edit directly.
//
// The example corpus carries no vector-similarity or embedding client for
// any language (see DESIGN.md), so RecallRelevant is not semantic search:
// it is the same Jaccard token-overlap heuristic internal/hook uses to
// suggest skills, scored against every memory in ListMemoriesByProject.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobby-dev/gobby/internal/model"
)

// Store is the subset of internal/storage.Store the service needs.
type Store interface {
	CreateMemory(ctx context.Context, m *model.Memory) error
	GetMemory(ctx context.Context, id string) (*model.Memory, error)
	ListMemoriesByProject(ctx context.Context, projectID string) ([]*model.Memory, error)
	DeleteMemory(ctx context.Context, id string) error
}

// Sessions is the subset of internal/session.Manager ExtractFromSession
// needs to locate a session's transcript.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.Session, error)
}

// TranscriptParser pulls durable facts out of a session transcript.
// internal/action.ParseTranscript has this signature; internal/daemon
// passes it in as a func value, so this package does not import
// internal/action.
type TranscriptParser func(path string) (*model.HandoffContext, error)

// Service implements action.MemoryService.
type Service struct {
	store    Store
	sessions Sessions
	parser   TranscriptParser
	syncDir  func(projectID string) string
	logger   *slog.Logger
}

// New constructs a Service. sessions and parser may be nil, disabling
// ExtractFromSession. syncDir may be nil, disabling SyncImport/SyncExport;
// otherwise it maps a project id to the directory its memories mirror to
// as "<id>.md" files, analogous to internal/promptloader's tier dirs.
func New(store Store, sessions Sessions, parser TranscriptParser, syncDir func(string) string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sessions: sessions, parser: parser, syncDir: syncDir, logger: logger}
}

// Save records content as a note, deduplicating against the project's
// existing memories by exact content match as spec.md §4.6 requires.
func (s *Service) Save(ctx context.Context, projectID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	existing, err := s.store.ListMemoriesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("checking existing memories: %w", err)
	}
	for _, m := range existing {
		if m.Content == content {
			return nil
		}
	}

	return s.store.CreateMemory(ctx, &model.Memory{
		ID:         model.NewID(),
		ProjectID:  projectID,
		Content:    content,
		MemoryType: model.MemoryTypeNote,
		SourceType: model.MemorySourceManual,
		Tags:       []string{},
	})
}

// RecallRelevant returns the project's memories whose token overlap with
// query is highest, most relevant first, capped at limit.
func (s *Service) RecallRelevant(ctx context.Context, projectID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := s.store.ListMemoriesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	queryTokens := tokenSet(query)
	type scored struct {
		content string
		score   float64
	}
	ranked := make([]scored, 0, len(all))
	for _, m := range all {
		score := 0.0
		if len(queryTokens) > 0 {
			score = overlapScore(queryTokens, tokenSet(m.Content))
		}
		ranked = append(ranked, scored{content: m.Content, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.content
	}
	return out, nil
}

// ProjectContext concatenates the project's project_context-tagged
// memories, newest first, into one block suitable for inject_context.
func (s *Service) ProjectContext(ctx context.Context, projectID string) (string, error) {
	all, err := s.store.ListMemoriesByProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, m := range all {
		if m.MemoryType == model.MemoryTypeProjectContext {
			parts = append(parts, m.Content)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// ExtractFromSession parses the session's transcript for durable facts
// (its initial goal and files touched) and saves each as a session_extract
// memory, returning what it saved.
func (s *Service) ExtractFromSession(ctx context.Context, sessionID string) ([]string, error) {
	if s.sessions == nil || s.parser == nil {
		return nil, nil
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil || sess == nil || sess.JSONLPath == "" || sess.ProjectID == "" {
		return nil, err
	}

	handoff, err := s.parser(sess.JSONLPath)
	if err != nil {
		return nil, err
	}

	var candidates []string
	if strings.TrimSpace(handoff.InitialGoal) != "" {
		candidates = append(candidates, "Goal: "+handoff.InitialGoal)
	}
	if len(handoff.FilesModified) > 0 {
		candidates = append(candidates, "Touched files: "+strings.Join(handoff.FilesModified, ", "))
	}

	existing, err := s.store.ListMemoriesByProject(ctx, sess.ProjectID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.Content] = true
	}

	var saved []string
	for _, content := range candidates {
		if seen[content] {
			continue
		}
		if err := s.store.CreateMemory(ctx, &model.Memory{
			ID:              model.NewID(),
			ProjectID:       sess.ProjectID,
			Content:         content,
			MemoryType:      model.MemoryTypeSessionSummary,
			SourceType:      model.MemorySourceSessionExtract,
			SourceSessionID: sessionID,
			Tags:            []string{},
		}); err != nil {
			return saved, fmt.Errorf("saving extracted memory: %w", err)
		}
		saved = append(saved, content)
	}
	return saved, nil
}

// SyncImport reads "<memory-id-or-slug>.md" files from the project's sync
// directory and upserts any whose content isn't already stored, returning
// the count imported. Mirrors internal/promptloader's directory-to-SQL
// sync, one-shot instead of watched since memory files change rarely.
func (s *Service) SyncImport(ctx context.Context, projectID string) (int, error) {
	dir := s.dirFor(projectID)
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading memory sync dir: %w", err)
	}

	existing, err := s.store.ListMemoriesByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.Content] = true
	}

	imported := 0
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn("reading memory sync file failed", "file", e.Name(), "error", err)
			continue
		}
		content := strings.TrimSpace(string(raw))
		if content == "" || seen[content] {
			continue
		}
		if err := s.store.CreateMemory(ctx, &model.Memory{
			ID:         model.NewID(),
			ProjectID:  projectID,
			Content:    content,
			MemoryType: model.MemoryTypeNote,
			SourceType: model.MemorySourceSyncImport,
			Tags:       []string{},
		}); err != nil {
			return imported, fmt.Errorf("importing %s: %w", e.Name(), err)
		}
		seen[content] = true
		imported++
	}
	return imported, nil
}

// SyncExport writes every one of the project's memories to the sync
// directory as "<id>.md", one file per memory, returning the count written.
func (s *Service) SyncExport(ctx context.Context, projectID string) (int, error) {
	dir := s.dirFor(projectID)
	if dir == "" {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating memory sync dir: %w", err)
	}

	all, err := s.store.ListMemoriesByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, m := range all {
		path := filepath.Join(dir, m.ID+".md")
		if err := os.WriteFile(path, []byte(m.Content+"\n"), 0o644); err != nil {
			return exported, fmt.Errorf("exporting %s: %w", m.ID, err)
		}
		exported++
	}
	return exported, nil
}

func (s *Service) dirFor(projectID string) string {
	if s.syncDir == nil {
		return ""
	}
	return s.syncDir(projectID)
}

// tokenSet and overlapScore duplicate internal/hook's skill-suggestion
// scorer: same Jaccard-index heuristic, applied here to memory recall
// instead of skill names, kept package-local because internal/hook's
// copies are unexported.
func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			set[f] = true
		}
	}
	return set
}

func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
