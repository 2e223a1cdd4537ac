// Package drill turns a drill configuration into concrete requirements and
// scores.
package drill

import (
	"fmt"

	"github.com/joescharf/rangelog/internal/models"
)

// SourceKind identifies where a session's drill configuration came from.
type SourceKind string

const (
	SourceInstance SourceKind = "instance"
	SourceTemplate SourceKind = "template"
	SourceCustom   SourceKind = "custom"
)

// Source is the single authoritative drill configuration of a session.
type Source struct {
	Kind   SourceKind
	ID     string // drill instance or template id; empty for custom
	Name   string
	Config models.DrillConfig
}

// Pick returns the highest-priority source that is present: a training drill
// instance, then a template, then a custom configuration. It returns false
// when none is present.
func Pick(instance *models.TrainingDrill, template *models.DrillTemplate, custom *models.DrillConfig) (Source, bool) {
	switch {
	case instance != nil:
		return Source{Kind: SourceInstance, ID: instance.ID, Name: instance.Name, Config: instance.Config}, true
	case template != nil:
		return Source{Kind: SourceTemplate, ID: template.ID, Name: template.Name, Config: template.Config}, true
	case custom != nil:
		return Source{Kind: SourceCustom, Name: "custom", Config: *custom}, true
	}
	return Source{}, false
}

// Requirements are the numeric targets a session must reach to complete a drill.
type Requirements struct {
	Rounds          int
	RequiredTargets int
	RequiredShots   int
	IsPaper         bool
}

// Resolve derives the requirements of a drill.
//
// Paper drills never require a shot count: scans do not expose an
// independent shots-fired number, so they are graded on targets and accuracy.
func Resolve(cfg models.DrillConfig) Requirements {
	rounds := cfg.StringsCount
	if rounds <= 0 {
		rounds = 1
	}
	req := Requirements{
		Rounds:          rounds,
		RequiredTargets: rounds,
		IsPaper:         cfg.TargetType == models.TargetTypePaper,
	}
	if !req.IsPaper && cfg.RoundsPerShooter > 0 {
		req.RequiredShots = cfg.RoundsPerShooter * rounds
	}
	return req
}

// Validate checks a drill configuration before it is stored.
func Validate(cfg models.DrillConfig) error {
	if !cfg.TargetType.Valid() {
		return fmt.Errorf("invalid target type %q (want paper or tactical)", cfg.TargetType)
	}
	switch cfg.Goal {
	case "", models.DrillGoalGrouping, models.DrillGoalAchievement:
	default:
		return fmt.Errorf("invalid drill goal %q (want grouping or achievement)", cfg.Goal)
	}
	if cfg.RoundsPerShooter < 0 && cfg.RoundsPerShooter != models.UnboundedRounds {
		return fmt.Errorf("invalid rounds per shooter %d", cfg.RoundsPerShooter)
	}
	if cfg.TimeLimitSeconds != nil && *cfg.TimeLimitSeconds <= 0 {
		return fmt.Errorf("time limit must be positive")
	}
	if cfg.MinAccuracyPct != nil && (*cfg.MinAccuracyPct < 0 || *cfg.MinAccuracyPct > 100) {
		return fmt.Errorf("minimum accuracy must be between 0 and 100")
	}
	if cfg.Scoring != nil && cfg.Scoring.Mode != models.ScoringModePoints {
		return fmt.Errorf("unknown scoring mode %q", cfg.Scoring.Mode)
	}
	return nil
}
