package api

import (
	"net/http"
	"time"

	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/llm"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/sessions"
)

type drillConfigRequest struct {
	Goal             models.DrillGoal  `json:"goal"`
	TargetType       models.TargetType `json:"target_type"`
	DistanceM        float64           `json:"distance_m"`
	RoundsPerShooter int               `json:"rounds_per_shooter"`
	StringsCount     int               `json:"strings_count"`
	TimeLimitSeconds *int              `json:"time_limit_seconds"`
	MinAccuracyPct   *float64          `json:"min_accuracy_pct"`
	Scoring          *struct {
		Mode           models.ScoringMode `json:"mode"`
		PointsPerHit   float64            `json:"points_per_hit"`
		PenaltyPerMiss float64            `json:"penalty_per_miss"`
	} `json:"scoring"`
}

func (c drillConfigRequest) config() models.DrillConfig {
	cfg := models.DrillConfig{
		Goal:             c.Goal,
		TargetType:       c.TargetType,
		DistanceM:        c.DistanceM,
		RoundsPerShooter: c.RoundsPerShooter,
		StringsCount:     c.StringsCount,
		TimeLimitSeconds: c.TimeLimitSeconds,
		MinAccuracyPct:   c.MinAccuracyPct,
	}
	if c.Scoring != nil {
		cfg.Scoring = &models.ScoringConfig{
			Mode:           c.Scoring.Mode,
			PointsPerHit:   c.Scoring.PointsPerHit,
			PenaltyPerMiss: c.Scoring.PenaltyPerMiss,
		}
	}
	return cfg
}

type createSessionRequest struct {
	TeamID          string              `json:"team_id"`
	TrainingID      string              `json:"training_id"`
	DrillID         string              `json:"drill_id"`
	DrillTemplateID string              `json:"drill_template_id"`
	CustomDrill     *drillConfigRequest `json:"custom_drill"`
	Mode            models.SessionMode  `json:"mode"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	create := sessions.CreateRequest{
		TeamID:          req.TeamID,
		TrainingID:      req.TrainingID,
		DrillID:         req.DrillID,
		DrillTemplateID: req.DrillTemplateID,
		Mode:            req.Mode,
	}
	if req.CustomDrill != nil {
		cfg := req.CustomDrill.config()
		if err := drill.Validate(cfg); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		create.CustomDrill = &cfg
	}

	session, err := s.sessions.CreateSession(r.Context(), create)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	status := models.SessionStatus(r.URL.Query().Get("status"))
	list, err := s.sessions.ListSessions(r.Context(), status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.CancelSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.sessions.ListTargets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

type appendTargetRequest struct {
	Type         models.TargetType `json:"type"`
	DistanceM    float64           `json:"distance_m"`
	PlannedShots int               `json:"planned_shots"`
	Notes        string            `json:"notes"`
}

func (s *Server) appendTarget(w http.ResponseWriter, r *http.Request) {
	var req appendTargetRequest
	if !decode(w, r, &req) {
		return
	}
	target, err := s.sessions.AppendTarget(r.Context(), r.PathValue("id"), sessions.TargetSpec{
		Type:         req.Type,
		DistanceM:    req.DistanceM,
		PlannedShots: req.PlannedShots,
		Notes:        req.Notes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

type resultRequest struct {
	Paper *struct {
		BulletsFired int                 `json:"bullets_fired"`
		HitsTotal    int                 `json:"hits_total"`
		DispersionCM *float64            `json:"dispersion_cm"`
		Source       models.ResultSource `json:"source"`
		ScanRef      string              `json:"scan_ref"`
	} `json:"paper"`
	Tactical *struct {
		BulletsFired int      `json:"bullets_fired"`
		Hits         int      `json:"hits"`
		TimeSeconds  *float64 `json:"time_seconds"`
		StageCleared bool     `json:"stage_cleared"`
	} `json:"tactical"`
}

func (s *Server) attachResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if !decode(w, r, &req) {
		return
	}
	var spec sessions.ResultSpec
	if p := req.Paper; p != nil {
		spec.Paper = &models.PaperResult{
			BulletsFired: p.BulletsFired,
			HitsTotal:    p.HitsTotal,
			DispersionCM: p.DispersionCM,
			Source:       p.Source,
			ScanRef:      p.ScanRef,
		}
	}
	if t := req.Tactical; t != nil {
		spec.Tactical = &models.TacticalResult{
			BulletsFired: t.BulletsFired,
			Hits:         t.Hits,
			TimeSeconds:  t.TimeSeconds,
			StageCleared: t.StageCleared,
		}
	}

	target, err := s.sessions.AttachResult(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.GetSessionStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) sessionScore(w http.ResponseWriter, r *http.Request) {
	score, ok, err := s.sessions.GetScore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp := map[string]any{"scored": ok}
	if ok {
		resp["score"] = score
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sessionEvaluation(w http.ResponseWriter, r *http.Request) {
	result, err := s.sessions.Evaluate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) sessionDebrief(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	src, err := s.sessions.ResolveDrill(ctx, session)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	result, err := s.sessions.Evaluate(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	in := llm.DebriefInput{
		DrillName: src.Name,
		Config:    src.Config,
		Stats:     result.Stats,
		Gates:     result.Gates,
		Duration:  session.Duration(time.Now()),
	}
	if score, ok, err := s.sessions.GetScore(ctx, id); err == nil && ok {
		in.Score = &score
	}

	debrief, err := s.llm.Debrief(ctx, in)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, debrief)
}
