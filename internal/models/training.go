package models

import "time"

// TrainingStatus represents the state of a scheduled training.
type TrainingStatus string

const (
	TrainingStatusScheduled TrainingStatus = "scheduled"
	TrainingStatusOngoing   TrainingStatus = "ongoing"
	TrainingStatusFinished  TrainingStatus = "finished"
)

// Training is a scheduled team training with zero or more drills.
type Training struct {
	ID          string
	TeamID      string
	Title       string
	Status      TrainingStatus
	ScheduledAt time.Time
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}
