// Package sessions runs the session lifecycle over a store.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/rangelog/internal/auth"
	"github.com/joescharf/rangelog/internal/completion"
	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/stats"
	"github.com/joescharf/rangelog/internal/store"
	"github.com/joescharf/rangelog/internal/training"
)

// DefaultStaleAfter is the age past which an active session is treated as
// abandoned when the owner starts a new one.
const DefaultStaleAfter = 24 * time.Hour

// AutoCloser receives the signal that a training may have become closable.
type AutoCloser interface {
	RecheckAutoClose(ctx context.Context, trainingID string) (models.TrainingStatus, error)
}

// Manager orchestrates sessions over a store.
type Manager struct {
	store      store.Store
	closer     AutoCloser
	locker     OwnerLocker
	now        func() time.Time
	logger     *slog.Logger
	staleAfter time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithAutoCloser sets the training auto-close collaborator.
func WithAutoCloser(c AutoCloser) Option { return func(m *Manager) { m.closer = c } }

// WithLocker sets the per-owner lock used around session creation.
func WithLocker(l OwnerLocker) Option { return func(m *Manager) { m.locker = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithStaleAfter overrides DefaultStaleAfter. Non-positive values are ignored.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// NewManager creates a new sessions manager.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		closer:     training.Nop{},
		locker:     NewLocalLocker(),
		now:        time.Now,
		logger:     slog.Default(),
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) clock() time.Time { return m.now().UTC() }

func requireOwner(ctx context.Context) (string, error) {
	owner := auth.OwnerID(ctx)
	if owner == "" {
		return "", ErrNotAuthenticated
	}
	return owner, nil
}

// GetSession returns a session owned by the caller. Sessions of other owners
// are reported as not found.
func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return m.ownedSession(ctx, owner, id)
}

func (m *Manager) ownedSession(ctx context.Context, owner, id string) (*models.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if s.OwnerID != owner {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListSessions returns the caller's sessions, newest first. An empty status
// lists every status.
func (m *Manager) ListSessions(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	filter := store.SessionFilter{OwnerID: owner}
	if status != "" {
		filter.Statuses = []models.SessionStatus{status}
	}
	list, err := m.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return list, nil
}

// ListTargets returns a session's targets in sequence order with results.
func (m *Manager) ListTargets(ctx context.Context, sessionID string) ([]*models.Target, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := m.ownedSession(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	targets, err := m.store.ListTargets(ctx, sessionID)
	if err != nil {
		return nil, storeErr("list targets", err)
	}
	return targets, nil
}

// GetSessionStats recomputes a session's statistics from its targets.
func (m *Manager) GetSessionStats(ctx context.Context, sessionID string) (models.SessionStats, error) {
	targets, err := m.ListTargets(ctx, sessionID)
	if err != nil {
		return models.SessionStats{}, err
	}
	return stats.Aggregate(targets), nil
}

// GetScore returns the session's drill score. The bool is false when the
// drill has no scoring configured.
func (m *Manager) GetScore(ctx context.Context, sessionID string) (float64, bool, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return 0, false, err
	}
	s, err := m.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return 0, false, err
	}
	src, err := m.ResolveDrill(ctx, s)
	if err != nil {
		return 0, false, err
	}
	st, err := m.sessionStats(ctx, s.ID)
	if err != nil {
		return 0, false, err
	}
	score, ok := drill.Score(st, src.Config)
	return score, ok, nil
}

// ResolveDrill loads the drill configuration source of a session.
func (m *Manager) ResolveDrill(ctx context.Context, s *models.Session) (drill.Source, error) {
	var (
		instance *models.TrainingDrill
		template *models.DrillTemplate
		err      error
	)
	if s.DrillID != "" {
		if instance, err = m.store.GetTrainingDrill(ctx, s.DrillID); err != nil {
			return drill.Source{}, storeErr("get training drill", err)
		}
	} else if s.DrillTemplateID != "" {
		if template, err = m.store.GetDrillTemplate(ctx, s.DrillTemplateID); err != nil {
			return drill.Source{}, storeErr("get drill template", err)
		}
	}
	src, ok := drill.Pick(instance, template, s.CustomDrill)
	if !ok {
		return drill.Source{}, ErrMissingDrillConfiguration
	}
	return src, nil
}

// Evaluate previews the completion gates for a session without recording
// anything. Active sessions are measured up to now.
func (m *Manager) Evaluate(ctx context.Context, sessionID string) (completion.Result, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return completion.Result{}, err
	}
	s, err := m.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return completion.Result{}, err
	}
	result, _, err := m.evaluate(ctx, s)
	return result, err
}

func (m *Manager) evaluate(ctx context.Context, s *models.Session) (completion.Result, drill.Source, error) {
	src, err := m.ResolveDrill(ctx, s)
	if err != nil {
		return completion.Result{}, src, err
	}
	st, err := m.sessionStats(ctx, s.ID)
	if err != nil {
		return completion.Result{}, src, err
	}
	ended := m.clock()
	if s.EndedAt != nil {
		ended = *s.EndedAt
	}
	return completion.Evaluate(src.Config, st, s.StartedAt, ended), src, nil
}

func (m *Manager) sessionStats(ctx context.Context, sessionID string) (models.SessionStats, error) {
	targets, err := m.store.ListTargets(ctx, sessionID)
	if err != nil {
		return models.SessionStats{}, storeErr("list targets", err)
	}
	return stats.Aggregate(targets), nil
}
