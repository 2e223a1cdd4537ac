package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/sessions"
)

// --- Drill templates ---

type createDrillRequest struct {
	Name   string             `json:"name"`
	TeamID string             `json:"team_id"`
	Config drillConfigRequest `json:"config"`
}

func (s *Server) createDrill(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req createDrillRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	cfg := req.Config.config()
	if err := drill.Validate(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := &models.DrillTemplate{OwnerID: owner, TeamID: req.TeamID, Name: req.Name, Config: cfg}
	if err := s.store.CreateDrillTemplate(r.Context(), d); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) listDrills(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	drills, err := s.store.ListDrillTemplates(r.Context(), owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drills)
}

func (s *Server) getDrill(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	d, err := s.store.GetDrillTemplate(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if d.OwnerID != owner {
		writeEngineError(w, fmt.Errorf("drill template %s: %w", id, sessions.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Trainings ---

type createTrainingRequest struct {
	TeamID      string     `json:"team_id"`
	Title       string     `json:"title"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Deadline    *time.Time `json:"deadline"`
}

func (s *Server) createTraining(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	var req createTrainingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	t := &models.Training{TeamID: req.TeamID, Title: req.Title, ScheduledAt: req.ScheduledAt, Deadline: req.Deadline}
	if err := s.store.CreateTraining(r.Context(), t); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTrainings(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	trainings, err := s.store.ListTrainings(r.Context(), r.URL.Query().Get("team_id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trainings)
}

func (s *Server) getTraining(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	t, err := s.store.GetTraining(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createTrainingDrillRequest struct {
	Name       string              `json:"name"`
	TemplateID string              `json:"template_id"`
	Config     *drillConfigRequest `json:"config"`
}

// createTrainingDrill adds a drill instance to a training, either copying a
// template's configuration or taking an inline one.
func (s *Server) createTrainingDrill(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	trainingID := r.PathValue("id")
	if _, err := s.store.GetTraining(ctx, trainingID); err != nil {
		writeEngineError(w, err)
		return
	}

	var req createTrainingDrillRequest
	if !decode(w, r, &req) {
		return
	}

	d := &models.TrainingDrill{TrainingID: trainingID, Name: req.Name}
	switch {
	case req.TemplateID != "":
		tmpl, err := s.store.GetDrillTemplate(ctx, req.TemplateID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if tmpl.OwnerID != owner {
			writeEngineError(w, fmt.Errorf("drill template %s: %w", req.TemplateID, sessions.ErrNotFound))
			return
		}
		d.TemplateID = tmpl.ID
		d.Config = tmpl.Config
		if d.Name == "" {
			d.Name = tmpl.Name
		}
	case req.Config != nil:
		d.Config = req.Config.config()
	default:
		writeError(w, http.StatusBadRequest, "template_id or config is required")
		return
	}
	if err := drill.Validate(d.Config); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateTrainingDrill(ctx, d); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) listTrainingDrills(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	drills, err := s.store.ListTrainingDrills(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drills)
}

func (s *Server) recheckTraining(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	status, err := s.closer.RecheckAutoClose(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
