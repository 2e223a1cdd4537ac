package sessions

import (
	"errors"
	"fmt"

	"github.com/joescharf/rangelog/internal/store"
)

var (
	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrMissingDrillConfiguration = errors.New("session needs a training drill, a drill template or a custom drill")
	ErrDrillTrainingMismatch     = errors.New("drill does not belong to the training")
	ErrDrillSelectionRequired    = errors.New("training has drills; choose one")
	ErrActiveSessionConflict     = errors.New("an active session for this training runs a different drill")
	ErrStoreFailure              = errors.New("store failure")

	// ErrNotFound is store.ErrNotFound, so lookups can be matched against either.
	ErrNotFound = store.ErrNotFound

	ErrSessionEnded  = errors.New("session has already ended")
	ErrResultExists  = store.ErrResultExists
	ErrInvalidResult = errors.New("invalid result")
	ErrInvalidTarget = errors.New("invalid target")
	// ErrTargetMismatch is returned when a result kind does not match the
	// target type.
	ErrTargetMismatch = errors.New("result kind does not match target type")
)

// ConflictError describes an active session that blocks a new drill in the
// same training.
type ConflictError struct {
	TrainingID     string
	SessionID      string
	ActiveDrillID  string
	RequestedDrill string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("training %s: session %s is running drill %s, cannot start drill %s",
		e.TrainingID, e.SessionID, e.ActiveDrillID, e.RequestedDrill)
}

func (e *ConflictError) Unwrap() error { return ErrActiveSessionConflict }

// storeErr classifies an error from the store. Not-found and uniqueness
// errors keep their identity; everything else becomes ErrStoreFailure while
// still matching the original error.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrResultExists):
		return err
	case errors.Is(err, store.ErrActiveSessionExists):
		return fmt.Errorf("%s: %w: %w", op, ErrActiveSessionConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
