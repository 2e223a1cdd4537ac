// Package stats derives session statistics from the raw target and result
// records. Nothing here is cached: callers recompute from the full snapshot
// on every read.
package stats

import (
	"math"

	"github.com/joescharf/rangelog/internal/models"
)

// running folds optional measurements into an average and a minimum.
type running struct {
	sum   float64
	count int
	min   float64
}

func (r *running) add(v float64) {
	if r.count == 0 || v < r.min {
		r.min = v
	}
	r.sum += v
	r.count++
}

func (r *running) avg() *float64 {
	if r.count == 0 {
		return nil
	}
	v := round2(r.sum / float64(r.count))
	return &v
}

func (r *running) best() *float64 {
	if r.count == 0 {
		return nil
	}
	v := r.min
	return &v
}

// Aggregate computes session statistics from targets in sequence order.
// Targets without a result yet only count toward the type totals.
func Aggregate(targets []*models.Target) models.SessionStats {
	var st models.SessionStats
	var dispersion, elapsed running

	for _, t := range targets {
		st.TargetCount++
		switch t.Type {
		case models.TargetTypePaper:
			st.PaperTargets++
			if r := t.Paper; r != nil {
				st.TotalShots += r.BulletsFired
				st.TotalHits += r.HitsTotal
				if r.DispersionCM != nil {
					dispersion.add(*r.DispersionCM)
				}
				// Scans count every hole as a hit; only manual counts feed accuracy.
				if r.Manual() {
					st.ManualShots += r.BulletsFired
					st.ManualHits += r.HitsTotal
				}
			}
		case models.TargetTypeTactical:
			st.TacticalTargets++
			if r := t.Tactical; r != nil {
				st.TotalShots += r.BulletsFired
				st.TotalHits += r.Hits
				st.ManualShots += r.BulletsFired
				st.ManualHits += r.Hits
				if r.StageCleared {
					st.StagesCleared++
				}
				if r.TimeSeconds != nil {
					elapsed.add(*r.TimeSeconds)
				}
			}
		}
	}

	st.AccuracyPct = Accuracy(st.ManualHits, st.ManualShots)
	st.AvgDispersionCM = dispersion.avg()
	st.BestDispersionCM = dispersion.best()
	st.AvgTimeSeconds = elapsed.avg()
	st.FastestTimeSeconds = elapsed.best()
	return st
}

// Accuracy returns hits/shots as a percentage rounded to two decimals, or 0
// when no shots were fired.
func Accuracy(hits, shots int) float64 {
	if shots <= 0 {
		return 0
	}
	return round2(float64(hits) / float64(shots) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
