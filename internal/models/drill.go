package models

import "time"

// DrillGoal describes what a drill is graded on.
type DrillGoal string

const (
	DrillGoalGrouping    DrillGoal = "grouping"
	DrillGoalAchievement DrillGoal = "achievement"
)

// ScoringMode selects how a drill is scored.
type ScoringMode string

const (
	ScoringModePoints ScoringMode = "points"
)

// UnboundedRounds marks a drill without a per-shooter round count.
const UnboundedRounds = -1

// ScoringConfig holds the optional scoring parameters of a drill.
type ScoringConfig struct {
	Mode           ScoringMode
	PointsPerHit   float64
	PenaltyPerMiss float64
}

// DrillConfig is the resolved, read-only view of a drill regardless of
// whether it came from a training, a template or a custom setup.
type DrillConfig struct {
	Goal             DrillGoal
	TargetType       TargetType
	DistanceM        float64
	RoundsPerShooter int
	StringsCount     int
	TimeLimitSeconds *int
	MinAccuracyPct   *float64
	Scoring          *ScoringConfig
}

// DrillTemplate is a reusable drill definition.
type DrillTemplate struct {
	ID        string
	OwnerID   string
	TeamID    string
	Name      string
	Config    DrillConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrainingDrill is a drill instance that belongs to a scheduled training.
type TrainingDrill struct {
	ID         string
	TrainingID string
	TemplateID string
	Name       string
	Position   int
	Config     DrillConfig
	CreatedAt  time.Time
}
