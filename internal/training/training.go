// Package training decides when a scheduled training closes. The session
// engine only signals it; every decision about the training lives here.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/store"
)

// Store is the subset of store.Store the closer reads and writes.
type Store interface {
	GetTraining(ctx context.Context, id string) (*models.Training, error)
	UpdateTraining(ctx context.Context, t *models.Training) error
	ListTrainingDrills(ctx context.Context, trainingID string) ([]*models.TrainingDrill, error)
	ListDrillCompletions(ctx context.Context, filter store.CompletionFilter) ([]*models.DrillCompletion, error)
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]*models.Session, error)
}

// Closer finishes trainings whose deadline passed or whose drills have all
// been completed with no session still running.
type Closer struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewCloser creates a store-backed Closer.
func NewCloser(s Store, logger *slog.Logger) *Closer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Closer{store: s, now: time.Now, logger: logger}
}

// RecheckAutoClose re-evaluates a training and returns its resulting status.
func (c *Closer) RecheckAutoClose(ctx context.Context, trainingID string) (models.TrainingStatus, error) {
	t, err := c.store.GetTraining(ctx, trainingID)
	if err != nil {
		return "", err
	}
	if t.Status == models.TrainingStatusFinished {
		return t.Status, nil
	}

	now := c.now().UTC()
	if t.Deadline != nil && now.After(*t.Deadline) {
		return c.finish(ctx, t, now, "deadline passed")
	}

	done, err := c.allDrillsDone(ctx, t.ID)
	if err != nil {
		return t.Status, err
	}
	if done {
		return c.finish(ctx, t, now, "all drills completed")
	}

	if t.Status == models.TrainingStatusScheduled {
		started, err := c.store.ListSessions(ctx, store.SessionFilter{TrainingID: t.ID, Limit: 1})
		if err != nil {
			return t.Status, err
		}
		if len(started) > 0 {
			t.Status = models.TrainingStatusOngoing
			if err := c.store.UpdateTraining(ctx, t); err != nil {
				return "", fmt.Errorf("mark training ongoing: %w", err)
			}
		}
	}
	return t.Status, nil
}

func (c *Closer) allDrillsDone(ctx context.Context, trainingID string) (bool, error) {
	drills, err := c.store.ListTrainingDrills(ctx, trainingID)
	if err != nil || len(drills) == 0 {
		return false, err
	}

	active, err := c.store.ListSessions(ctx, store.SessionFilter{
		TrainingID: trainingID,
		Statuses:   []models.SessionStatus{models.SessionStatusActive},
		Limit:      1,
	})
	if err != nil {
		return false, err
	}
	if len(active) > 0 {
		return false, nil
	}

	for _, d := range drills {
		completions, err := c.store.ListDrillCompletions(ctx, store.CompletionFilter{TrainingID: trainingID, DrillID: d.ID})
		if err != nil {
			return false, err
		}
		if len(completions) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (c *Closer) finish(ctx context.Context, t *models.Training, now time.Time, reason string) (models.TrainingStatus, error) {
	t.Status = models.TrainingStatusFinished
	t.FinishedAt = &now
	if err := c.store.UpdateTraining(ctx, t); err != nil {
		return "", fmt.Errorf("finish training: %w", err)
	}
	c.logger.Info("training closed", "training_id", t.ID, "reason", reason)
	return t.Status, nil
}

// Nop ignores recheck signals. It suits deployments without scheduled
// trainings.
type Nop struct{}

// RecheckAutoClose implements the auto-close signal as a no-op.
func (Nop) RecheckAutoClose(context.Context, string) (models.TrainingStatus, error) {
	return "", nil
}
