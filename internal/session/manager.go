// Package session implements thin CRUD over the Session entity, plus the
// two invariants that go beyond plain CRUD: upsert-on-unique-tuple
// registration and parent-handoff discovery.
package session

import (
	"context"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
)

// Store is the subset of internal/storage.Store the manager needs.
type Store interface {
	UpsertSession(ctx context.Context, sess *model.Session) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetSessionByExternalID(ctx context.Context, externalID, machineID, source string) (*model.Session, error)
	UpdateSession(ctx context.Context, sess *model.Session) error
	ListSessionsByProject(ctx context.Context, projectID string) ([]*model.Session, error)
	FindChildSessions(ctx context.Context, parentID string) ([]*model.Session, error)
}

// FindParentConfig tunes the find_parent retry-poll loop.
type FindParentConfig struct {
	MaxAttempts int
	SleepBetween time.Duration
}

// DefaultFindParentConfig matches the "retry with 1s sleep up to N
// attempts" behavior the spec calls for to tolerate a race with the prior
// session's PRE_COMPACT/end hook still being processed.
var DefaultFindParentConfig = FindParentConfig{MaxAttempts: 5, SleepBetween: time.Second}

// Manager wraps Store with the Session invariants.
type Manager struct {
	store Store
}

// New constructs a Manager over store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Register upserts a session on the (external_id, machine_id, source)
// tuple, preserving already-populated fields the caller leaves blank.
func (m *Manager) Register(ctx context.Context, sess *model.Session) (*model.Session, error) {
	return m.store.UpsertSession(ctx, sess)
}

// Get fetches a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	return m.store.GetSession(ctx, id)
}

// GetByExternalID looks up a session by its unique tuple.
func (m *Manager) GetByExternalID(ctx context.Context, externalID, machineID, source string) (*model.Session, error) {
	return m.store.GetSessionByExternalID(ctx, externalID, machineID, source)
}

// Update persists sess's mutable fields.
func (m *Manager) Update(ctx context.Context, sess *model.Session) error {
	return m.store.UpdateSession(ctx, sess)
}

// ListByProject returns every session for a project, most recently
// updated first.
func (m *Manager) ListByProject(ctx context.Context, projectID string) ([]*model.Session, error) {
	return m.store.ListSessionsByProject(ctx, projectID)
}

// SetStatus transitions sess.Status and persists it. Implements the
// hook-driven status machine: BEFORE_AGENT -> active, AFTER_AGENT/STOP ->
// paused, PRE_COMPACT -> handoff_ready, successful parent handoff ->
// expired.
func (m *Manager) SetStatus(ctx context.Context, sess *model.Session, status model.SessionStatus) error {
	sess.Status = status
	return m.store.UpdateSession(ctx, sess)
}

// FindParent locates the most-recently-updated handoff_ready session on
// the same (machine_id, project_id, source) tuple as a candidate parent
// for a newly registering session, retrying with a sleep between
// attempts to tolerate a race with the prior session's PRE_COMPACT/end
// hook still being processed. Returns nil, nil if no candidate ever
// appears within MaxAttempts.
func (m *Manager) FindParent(ctx context.Context, machineID, projectID, source string, cfg FindParentConfig) (*model.Session, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultFindParentConfig
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		candidates, err := m.store.ListSessionsByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}

		var best *model.Session
		for _, c := range candidates {
			if c.MachineID != machineID || c.Source != source {
				continue
			}
			if c.Status != model.SessionStatusHandoffReady {
				continue
			}
			if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
				best = c
			}
		}
		if best != nil {
			return best, nil
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.SleepBetween):
			}
		}
	}
	return nil, nil
}

// FindChildren returns sessions whose ParentSessionID is parentID.
func (m *Manager) FindChildren(ctx context.Context, parentID string) ([]*model.Session, error) {
	return m.store.FindChildSessions(ctx, parentID)
}
