package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rangelog/internal/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func tacticalDrill() models.DrillConfig {
	return models.DrillConfig{
		Goal:             models.DrillGoalAchievement,
		TargetType:       models.TargetTypeTactical,
		RoundsPerShooter: 6,
		StringsCount:     3,
	}
}

func gate(t *testing.T, r Result, name GateName) Gate {
	t.Helper()
	for _, g := range r.Gates {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("gate %s not evaluated", name)
	return Gate{}
}

func TestEvaluate_AllGatesPass(t *testing.T) {
	stats := models.SessionStats{TargetCount: 3, TotalShots: 18, TotalHits: 15, ManualShots: 18, ManualHits: 15, AccuracyPct: 83.33}
	r := Evaluate(tacticalDrill(), stats, start, start.Add(20*time.Minute))

	assert.True(t, r.Passed)
	assert.Empty(t, r.Failed())
	assert.Len(t, r.Gates, 4)
	assert.Equal(t, 18, r.Requirements.RequiredShots)
}

func TestEvaluate_ShotGate(t *testing.T) {
	stats := models.SessionStats{TargetCount: 3, TotalShots: 17}
	r := Evaluate(tacticalDrill(), stats, start, start.Add(time.Minute))

	assert.False(t, r.Passed)
	assert.Equal(t, []GateName{GateShots}, r.Failed())
	assert.Contains(t, gate(t, r, GateShots).Reason, "17 of 18")
}

func TestEvaluate_PaperSkipsShotGate(t *testing.T) {
	cfg := models.DrillConfig{TargetType: models.TargetTypePaper, RoundsPerShooter: 10, StringsCount: 2}
	r := Evaluate(cfg, models.SessionStats{TargetCount: 2}, start, start.Add(time.Minute))

	assert.True(t, r.Passed)
	assert.True(t, gate(t, r, GateShots).Passed)
}

func TestEvaluate_TargetGate(t *testing.T) {
	stats := models.SessionStats{TargetCount: 2, TotalShots: 18}
	r := Evaluate(tacticalDrill(), stats, start, start.Add(time.Minute))

	assert.Equal(t, []GateName{GateTargets}, r.Failed())
}

func TestEvaluate_AccuracyGateIndependent(t *testing.T) {
	cfg := tacticalDrill()
	cfg.MinAccuracyPct = floatPtr(90)
	stats := models.SessionStats{TargetCount: 3, TotalShots: 18, TotalHits: 15, ManualShots: 18, ManualHits: 15, AccuracyPct: 83.33}

	r := Evaluate(cfg, stats, start, start.Add(time.Minute))

	assert.False(t, r.Passed)
	assert.Equal(t, []GateName{GateAccuracy}, r.Failed())
	assert.Equal(t, "90.00%", gate(t, r, GateAccuracy).Required)
}

func TestEvaluate_AccuracyAtThresholdPasses(t *testing.T) {
	cfg := tacticalDrill()
	cfg.MinAccuracyPct = floatPtr(83.33)
	stats := models.SessionStats{TargetCount: 3, TotalShots: 18, AccuracyPct: 83.33}

	assert.True(t, Evaluate(cfg, stats, start, start.Add(time.Minute)).Passed)
}

func TestEvaluate_TimeGateUsesWallClock(t *testing.T) {
	cfg := tacticalDrill()
	cfg.TimeLimitSeconds = intPtr(300)
	stats := models.SessionStats{
		TargetCount:    3,
		TotalShots:     18,
		AvgTimeSeconds: floatPtr(10), // per-target times are display only
	}

	r := Evaluate(cfg, stats, start, start.Add(6*time.Minute))
	require.False(t, r.Passed)
	assert.Equal(t, []GateName{GateTime}, r.Failed())

	r = Evaluate(cfg, stats, start, start.Add(5*time.Minute))
	assert.True(t, r.Passed, "exactly at the limit passes")
}

func TestEvaluate_MultipleFailures(t *testing.T) {
	cfg := tacticalDrill()
	cfg.MinAccuracyPct = floatPtr(50)
	cfg.TimeLimitSeconds = intPtr(60)

	r := Evaluate(cfg, models.SessionStats{}, start, start.Add(2*time.Minute))
	assert.ElementsMatch(t, []GateName{GateShots, GateTargets, GateAccuracy, GateTime}, r.Failed())
}
