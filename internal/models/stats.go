package models

import "time"

// SessionStats is derived from a session's targets and results on every read.
//
// The manual pool only contains results a human counted; accuracy is computed
// from it. The total pool includes scanned results as well.
type SessionStats struct {
	TargetCount     int
	PaperTargets    int
	TacticalTargets int

	TotalShots  int
	TotalHits   int
	ManualShots int
	ManualHits  int
	AccuracyPct float64

	AvgDispersionCM  *float64
	BestDispersionCM *float64

	StagesCleared      int
	AvgTimeSeconds     *float64
	FastestTimeSeconds *float64
}

// DrillCompletion is persisted proof that a session met all requirements of
// a training drill.
type DrillCompletion struct {
	ID          string
	SessionID   string
	TrainingID  string
	DrillID     string
	OwnerID     string
	Stats       SessionStats
	Score       *float64
	CompletedAt time.Time
}
