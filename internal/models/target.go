package models

import "time"

// TargetType determines which kind of result attaches to a target.
type TargetType string

const (
	TargetTypePaper    TargetType = "paper"
	TargetTypeTactical TargetType = "tactical"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	return t == TargetTypePaper || t == TargetTypeTactical
}

// ResultSource records where a paper result came from.
type ResultSource string

const (
	// ResultSourceScan results enumerate every detected hole as a hit, so
	// their hit ratio says nothing about accuracy.
	ResultSourceScan ResultSource = "scan"
	// ResultSourceManual results are a shooter's own count.
	ResultSourceManual ResultSource = "manual"
)

// Target is one discrete engagement within a session.
type Target struct {
	ID           string
	SessionID    string
	Sequence     int
	Type         TargetType
	DistanceM    float64
	PlannedShots int
	Notes        string
	CreatedAt    time.Time

	// At most one of these is set, matching Type.
	Paper    *PaperResult
	Tactical *TacticalResult
}

// HasResult reports whether a result has been attached to the target.
func (t *Target) HasResult() bool {
	return t.Paper != nil || t.Tactical != nil
}

// PaperResult is the outcome recorded for a paper target.
type PaperResult struct {
	ID           string
	TargetID     string
	BulletsFired int
	HitsTotal    int
	DispersionCM *float64
	Source       ResultSource
	ScanRef      string // opaque reference to the detection result
	CreatedAt    time.Time
}

// Manual reports whether the result counts toward accuracy.
func (r *PaperResult) Manual() bool {
	return r.Source != ResultSourceScan
}

// TacticalResult is the outcome recorded for a tactical target. Tactical
// results are always reported by hand.
type TacticalResult struct {
	ID           string
	TargetID     string
	BulletsFired int
	Hits         int
	TimeSeconds  *float64
	StageCleared bool
	CreatedAt    time.Time
}
