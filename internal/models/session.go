package models

import "time"

// SessionStatus represents the state of a training session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// SessionMode distinguishes solo practice from group sessions.
type SessionMode string

const (
	SessionModeSolo  SessionMode = "solo"
	SessionModeGroup SessionMode = "group"
)

// Session is one bounded training activity owned by a shooter.
//
// The drill configuration comes from exactly one of DrillID (a drill instance
// of TrainingID), DrillTemplateID or CustomDrill, checked in that order.
type Session struct {
	ID              string
	OwnerID         string
	TeamID          string
	TrainingID      string
	DrillID         string
	DrillTemplateID string
	CustomDrill     *DrillConfig
	Mode            SessionMode
	Status          SessionStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the wall-clock length of the session, measured up to now
// for sessions that have not ended.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
