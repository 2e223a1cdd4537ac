package drill

import "github.com/joescharf/rangelog/internal/models"

// Score computes the drill score over the total shot pool. Scanned results
// count here: scoring rewards the overall outcome, not accuracy provenance.
// It returns false when the drill has no (known) scoring mode.
func Score(stats models.SessionStats, cfg models.DrillConfig) (float64, bool) {
	if cfg.Scoring == nil {
		return 0, false
	}
	switch cfg.Scoring.Mode {
	case models.ScoringModePoints:
		misses := stats.TotalShots - stats.TotalHits
		if misses < 0 {
			misses = 0
		}
		return float64(stats.TotalHits)*cfg.Scoring.PointsPerHit - float64(misses)*cfg.Scoring.PenaltyPerMiss, true
	default:
		return 0, false
	}
}
