package sessions

import (
	"context"
	"fmt"

	"github.com/joescharf/rangelog/internal/models"
)

// TargetSpec describes a target to append to a session.
type TargetSpec struct {
	Type         models.TargetType
	DistanceM    float64
	PlannedShots int
	Notes        string
}

// ResultSpec carries exactly one result, matching the target's type.
type ResultSpec struct {
	Paper    *models.PaperResult
	Tactical *models.TacticalResult
}

// AppendTarget adds a target to an active session of the caller. The store
// assigns the next sequence number.
func (m *Manager) AppendTarget(ctx context.Context, sessionID string, spec TargetSpec) (*models.Target, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("target type %q: %w", spec.Type, ErrInvalidTarget)
	}
	if spec.DistanceM < 0 || spec.PlannedShots < 0 {
		return nil, fmt.Errorf("negative distance or planned shots: %w", ErrInvalidTarget)
	}

	s, err := m.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionEnded)
	}

	t := &models.Target{
		SessionID:    s.ID,
		Type:         spec.Type,
		DistanceM:    spec.DistanceM,
		PlannedShots: spec.PlannedShots,
		Notes:        spec.Notes,
	}
	if err := m.store.CreateTarget(ctx, t); err != nil {
		return nil, storeErr("create target", err)
	}
	return t, nil
}

// AttachResult records the outcome of a target. A target takes one result
// only.
func (m *Manager) AttachResult(ctx context.Context, targetID string, spec ResultSpec) (*models.Target, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if (spec.Paper == nil) == (spec.Tactical == nil) {
		return nil, fmt.Errorf("exactly one of paper or tactical result required: %w", ErrInvalidResult)
	}

	t, err := m.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, storeErr("get target", err)
	}
	s, err := m.ownedSession(ctx, owner, t.SessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionEnded)
	}
	if t.HasResult() {
		return nil, fmt.Errorf("target %s: %w", t.ID, ErrResultExists)
	}

	switch t.Type {
	case models.TargetTypePaper:
		if spec.Paper == nil {
			return nil, fmt.Errorf("target %s is paper: %w", t.ID, ErrTargetMismatch)
		}
		r := spec.Paper
		if err := validatePaper(r); err != nil {
			return nil, err
		}
		r.TargetID = t.ID
		if err := m.store.CreatePaperResult(ctx, r); err != nil {
			return nil, storeErr("save paper result", err)
		}
		t.Paper = r
	case models.TargetTypeTactical:
		if spec.Tactical == nil {
			return nil, fmt.Errorf("target %s is tactical: %w", t.ID, ErrTargetMismatch)
		}
		r := spec.Tactical
		if err := validateCounts(r.BulletsFired, r.Hits); err != nil {
			return nil, err
		}
		if r.TimeSeconds != nil && *r.TimeSeconds < 0 {
			return nil, fmt.Errorf("negative time: %w", ErrInvalidResult)
		}
		r.TargetID = t.ID
		if err := m.store.CreateTacticalResult(ctx, r); err != nil {
			return nil, storeErr("save tactical result", err)
		}
		t.Tactical = r
	}
	return t, nil
}

func validatePaper(r *models.PaperResult) error {
	if r.Source == "" {
		r.Source = models.ResultSourceManual
	}
	switch r.Source {
	case models.ResultSourceManual:
	case models.ResultSourceScan:
		if r.ScanRef == "" {
			return fmt.Errorf("scanned result without scan reference: %w", ErrInvalidResult)
		}
	default:
		return fmt.Errorf("result source %q: %w", r.Source, ErrInvalidResult)
	}
	if r.DispersionCM != nil && *r.DispersionCM < 0 {
		return fmt.Errorf("negative dispersion: %w", ErrInvalidResult)
	}
	if !r.Manual() {
		// A scan counts every detected hole, so hits may exceed the shots
		// reported alongside it.
		if r.BulletsFired < 0 || r.HitsTotal < 0 {
			return fmt.Errorf("negative shot or hit count: %w", ErrInvalidResult)
		}
		return nil
	}
	return validateCounts(r.BulletsFired, r.HitsTotal)
}

func validateCounts(shots, hits int) error {
	if shots < 0 || hits < 0 {
		return fmt.Errorf("negative shot or hit count: %w", ErrInvalidResult)
	}
	if hits > shots {
		return fmt.Errorf("%d hits out of %d shots: %w", hits, shots, ErrInvalidResult)
	}
	return nil
}
