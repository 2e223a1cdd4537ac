// Package completion decides whether a session satisfied its drill.
package completion

import (
	"fmt"
	"time"

	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
)

// GateName identifies one of the independent completion criteria.
type GateName string

const (
	GateShots    GateName = "shots"
	GateTargets  GateName = "targets"
	GateAccuracy GateName = "accuracy"
	GateTime     GateName = "time"
)

// Gate is the outcome of a single completion criterion.
type Gate struct {
	Name     GateName
	Passed   bool
	Required string
	Actual   string
	Reason   string
}

// Result holds every gate outcome plus the combined verdict.
type Result struct {
	Requirements drill.Requirements
	Stats        models.SessionStats
	Gates        []Gate
	Passed       bool
}

// Failed returns the names of the gates that did not pass.
func (r Result) Failed() []GateName {
	var names []GateName
	for _, g := range r.Gates {
		if !g.Passed {
			names = append(names, g.Name)
		}
	}
	return names
}

// Evaluate checks the shot, target, accuracy and time gates. All four must
// pass for the drill to count as completed.
//
// The time gate uses the session's wall-clock duration, not the sum of the
// per-target engagement times.
func Evaluate(cfg models.DrillConfig, stats models.SessionStats, startedAt, endedAt time.Time) Result {
	req := drill.Resolve(cfg)
	res := Result{Requirements: req, Stats: stats}

	res.Gates = append(res.Gates,
		shotsGate(req, stats),
		targetsGate(req, stats),
		accuracyGate(cfg, stats),
		timeGate(cfg, endedAt.Sub(startedAt)),
	)

	res.Passed = true
	for _, g := range res.Gates {
		if !g.Passed {
			res.Passed = false
		}
	}
	return res
}

func shotsGate(req drill.Requirements, stats models.SessionStats) Gate {
	g := Gate{Name: GateShots, Actual: fmt.Sprintf("%d", stats.TotalShots)}
	if req.IsPaper {
		g.Passed = true
		g.Required = "none (paper)"
		return g
	}
	g.Required = fmt.Sprintf("%d", req.RequiredShots)
	g.Passed = stats.TotalShots >= req.RequiredShots
	if !g.Passed {
		g.Reason = fmt.Sprintf("fired %d of %d required shots", stats.TotalShots, req.RequiredShots)
	}
	return g
}

func targetsGate(req drill.Requirements, stats models.SessionStats) Gate {
	g := Gate{
		Name:     GateTargets,
		Required: fmt.Sprintf("%d", req.RequiredTargets),
		Actual:   fmt.Sprintf("%d", stats.TargetCount),
		Passed:   stats.TargetCount >= req.RequiredTargets,
	}
	if !g.Passed {
		g.Reason = fmt.Sprintf("logged %d of %d required targets", stats.TargetCount, req.RequiredTargets)
	}
	return g
}

func accuracyGate(cfg models.DrillConfig, stats models.SessionStats) Gate {
	g := Gate{Name: GateAccuracy, Actual: fmt.Sprintf("%.2f%%", stats.AccuracyPct)}
	if cfg.MinAccuracyPct == nil {
		g.Passed = true
		g.Required = "none"
		return g
	}
	minPct := *cfg.MinAccuracyPct
	g.Required = fmt.Sprintf("%.2f%%", minPct)
	g.Passed = stats.AccuracyPct >= minPct
	if !g.Passed {
		g.Reason = fmt.Sprintf("accuracy %.2f%% is below the %.2f%% minimum", stats.AccuracyPct, minPct)
	}
	return g
}

func timeGate(cfg models.DrillConfig, elapsed time.Duration) Gate {
	g := Gate{Name: GateTime, Actual: elapsed.Round(time.Second).String()}
	if cfg.TimeLimitSeconds == nil {
		g.Passed = true
		g.Required = "none"
		return g
	}
	limit := time.Duration(*cfg.TimeLimitSeconds) * time.Second
	g.Required = limit.String()
	g.Passed = elapsed <= limit
	if !g.Passed {
		g.Reason = fmt.Sprintf("session took %s, limit is %s", elapsed.Round(time.Second), limit)
	}
	return g
}
