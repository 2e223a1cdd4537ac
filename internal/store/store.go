package store

import (
	"context"
	"errors"

	"github.com/joescharf/rangelog/internal/models"
)

var (
	// ErrNotFound is wrapped by every lookup that finds no row.
	ErrNotFound = errors.New("not found")
	// ErrActiveSessionExists is returned when inserting or reactivating a
	// session would give an owner a second active session.
	ErrActiveSessionExists = errors.New("owner already has an active session")
	// ErrResultExists is returned when a target already carries a result.
	ErrResultExists = errors.New("target already has a result")
)

// SessionFilter specifies filters for listing sessions.
type SessionFilter struct {
	OwnerID    string
	TrainingID string
	Statuses   []models.SessionStatus
	Limit      int
}

// CompletionFilter specifies filters for listing drill completions.
type CompletionFilter struct {
	SessionID  string
	TrainingID string
	DrillID    string
	OwnerID    string
}

// Store defines the persistence interface for rangelog.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error

	// Targets and results
	CreateTarget(ctx context.Context, t *models.Target) error
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	ListTargets(ctx context.Context, sessionID string) ([]*models.Target, error)
	CreatePaperResult(ctx context.Context, r *models.PaperResult) error
	CreateTacticalResult(ctx context.Context, r *models.TacticalResult) error

	// Drill templates
	CreateDrillTemplate(ctx context.Context, d *models.DrillTemplate) error
	GetDrillTemplate(ctx context.Context, id string) (*models.DrillTemplate, error)
	ListDrillTemplates(ctx context.Context, ownerID string) ([]*models.DrillTemplate, error)

	// Trainings
	CreateTraining(ctx context.Context, t *models.Training) error
	GetTraining(ctx context.Context, id string) (*models.Training, error)
	ListTrainings(ctx context.Context, teamID string) ([]*models.Training, error)
	UpdateTraining(ctx context.Context, t *models.Training) error
	CreateTrainingDrill(ctx context.Context, d *models.TrainingDrill) error
	GetTrainingDrill(ctx context.Context, id string) (*models.TrainingDrill, error)
	ListTrainingDrills(ctx context.Context, trainingID string) ([]*models.TrainingDrill, error)

	// Drill completions
	CreateDrillCompletion(ctx context.Context, c *models.DrillCompletion) error
	ListDrillCompletions(ctx context.Context, filter CompletionFilter) ([]*models.DrillCompletion, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
