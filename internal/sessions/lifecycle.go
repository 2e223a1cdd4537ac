package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/store"
)

// CreateRequest describes a new session. Exactly one drill configuration
// must be resolvable from DrillID, DrillTemplateID or CustomDrill.
type CreateRequest struct {
	TeamID          string
	TrainingID      string
	DrillID         string
	DrillTemplateID string
	CustomDrill     *models.DrillConfig
	Mode            models.SessionMode
}

// CreateSession starts a session for the caller. Any other active session of
// the caller is superseded first. Within a training, an existing active
// session running the same drill (or any drill, when none is requested) is
// returned unchanged.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*models.Session, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = models.SessionModeSolo
	}

	unlock, err := m.locker.Lock(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("lock owner %s: %w", owner, err)
	}
	defer unlock()

	var instance *models.TrainingDrill
	if req.DrillID != "" {
		instance, err = m.store.GetTrainingDrill(ctx, req.DrillID)
		if err != nil {
			return nil, storeErr("get training drill", err)
		}
		switch {
		case req.TrainingID == "":
			req.TrainingID = instance.TrainingID
		case instance.TrainingID != req.TrainingID:
			return nil, fmt.Errorf("drill %s, training %s: %w", req.DrillID, req.TrainingID, ErrDrillTrainingMismatch)
		}
	}

	if req.TrainingID != "" {
		if _, err := m.store.GetTraining(ctx, req.TrainingID); err != nil {
			return nil, storeErr("get training", err)
		}

		existing, err := m.store.ListSessions(ctx, store.SessionFilter{
			OwnerID:    owner,
			TrainingID: req.TrainingID,
			Statuses:   []models.SessionStatus{models.SessionStatusActive},
			Limit:      1,
		})
		if err != nil {
			return nil, storeErr("list sessions", err)
		}
		if len(existing) > 0 {
			cur := existing[0]
			if req.DrillID == "" || req.DrillID == cur.DrillID {
				return cur, nil
			}
			return nil, &ConflictError{
				TrainingID:     req.TrainingID,
				SessionID:      cur.ID,
				ActiveDrillID:  cur.DrillID,
				RequestedDrill: req.DrillID,
			}
		}

		if instance == nil {
			drills, err := m.store.ListTrainingDrills(ctx, req.TrainingID)
			if err != nil {
				return nil, storeErr("list training drills", err)
			}
			if len(drills) > 0 {
				return nil, fmt.Errorf("training %s: %w", req.TrainingID, ErrDrillSelectionRequired)
			}
		}
	}

	var template *models.DrillTemplate
	if instance == nil && req.DrillTemplateID != "" {
		template, err = m.store.GetDrillTemplate(ctx, req.DrillTemplateID)
		if err != nil {
			return nil, storeErr("get drill template", err)
		}
		if template.OwnerID != owner {
			return nil, fmt.Errorf("drill template %s: %w", req.DrillTemplateID, ErrNotFound)
		}
	}
	src, ok := drill.Pick(instance, template, req.CustomDrill)
	if !ok {
		return nil, ErrMissingDrillConfiguration
	}

	if err := m.supersede(ctx, owner); err != nil {
		return nil, err
	}

	session := &models.Session{
		OwnerID:    owner,
		TeamID:     req.TeamID,
		TrainingID: req.TrainingID,
		Mode:       req.Mode,
		Status:     models.SessionStatusActive,
		StartedAt:  m.clock(),
	}
	switch src.Kind {
	case drill.SourceInstance:
		session.DrillID = src.ID
	case drill.SourceTemplate:
		session.DrillTemplateID = src.ID
	case drill.SourceCustom:
		cfg := src.Config
		session.CustomDrill = &cfg
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, storeErr("create session", err)
	}
	m.logger.Info("session started", "session_id", session.ID, "owner_id", owner, "drill", src.Name, "source", src.Kind)
	return session, nil
}

// supersede ends every active session of owner. Stale sessions are
// cancelled; recent ones complete through the normal end path.
func (m *Manager) supersede(ctx context.Context, owner string) error {
	active, err := m.store.ListSessions(ctx, store.SessionFilter{
		OwnerID:  owner,
		Statuses: []models.SessionStatus{models.SessionStatusActive},
	})
	if err != nil {
		return storeErr("list active sessions", err)
	}

	now := m.clock()
	for _, s := range active {
		age := now.Sub(s.StartedAt)
		if age > m.staleAfter {
			if err := m.transition(ctx, s, models.SessionStatusCancelled); err != nil {
				return err
			}
			m.logger.Warn("stale session cancelled", "session_id", s.ID, "age", age.Round(time.Minute).String())
			m.recheck(ctx, s)
			continue
		}
		if err := m.finish(ctx, s); err != nil {
			return err
		}
		m.logger.Info("session superseded", "session_id", s.ID)
	}
	return nil
}

// EndSession completes an active session owned by the caller. When the
// session runs a training drill, the completion gates are evaluated and a
// completion record is stored if they all pass. Bookkeeping after the status
// change never fails the call.
func (m *Manager) EndSession(ctx context.Context, id string) (*models.Session, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.ownedSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, fmt.Errorf("session %s is already %s: %w", id, s.Status, ErrSessionEnded)
	}
	if err := m.finish(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CancelSession abandons an active session. No completion is evaluated, but
// a linked training is still rechecked.
func (m *Manager) CancelSession(ctx context.Context, id string) (*models.Session, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.ownedSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, fmt.Errorf("session %s is already %s: %w", id, s.Status, ErrSessionEnded)
	}
	if err := m.transition(ctx, s, models.SessionStatusCancelled); err != nil {
		return nil, err
	}
	m.recheck(ctx, s)
	return s, nil
}

func (m *Manager) transition(ctx context.Context, s *models.Session, status models.SessionStatus) error {
	now := m.clock()
	s.Status = status
	s.EndedAt = &now
	if err := m.store.UpdateSession(ctx, s); err != nil {
		return storeErr("update session", err)
	}
	return nil
}

// finish marks s completed, then records a drill completion and signals the
// training when they apply.
func (m *Manager) finish(ctx context.Context, s *models.Session) error {
	if err := m.transition(ctx, s, models.SessionStatusCompleted); err != nil {
		return err
	}
	if s.TrainingID != "" && s.DrillID != "" {
		m.recordCompletion(ctx, s)
	}
	m.recheck(ctx, s)
	return nil
}

func (m *Manager) recordCompletion(ctx context.Context, s *models.Session) {
	log := m.logger.With("session_id", s.ID, "training_id", s.TrainingID, "drill_id", s.DrillID)

	result, src, err := m.evaluate(ctx, s)
	if err != nil {
		log.Warn("completion evaluation failed", "error", err)
		return
	}
	if !result.Passed {
		for _, g := range result.Gates {
			if !g.Passed {
				log.Warn("drill gate failed", "gate", g.Name, "reason", g.Reason)
			}
		}
		return
	}

	rec := &models.DrillCompletion{
		SessionID:   s.ID,
		TrainingID:  s.TrainingID,
		DrillID:     s.DrillID,
		OwnerID:     s.OwnerID,
		Stats:       result.Stats,
		CompletedAt: *s.EndedAt,
	}
	if score, ok := drill.Score(result.Stats, src.Config); ok {
		rec.Score = &score
	}
	if err := m.store.CreateDrillCompletion(ctx, rec); err != nil {
		log.Error("save drill completion failed", "error", err)
		return
	}
	log.Info("drill completed", "completion_id", rec.ID)
}

func (m *Manager) recheck(ctx context.Context, s *models.Session) {
	if s.TrainingID == "" {
		return
	}
	status, err := m.closer.RecheckAutoClose(ctx, s.TrainingID)
	if err != nil {
		m.logger.Error("training auto-close recheck failed", "training_id", s.TrainingID, "error", err)
		return
	}
	if status != "" {
		m.logger.Debug("training rechecked", "training_id", s.TrainingID, "status", status)
	}
}
