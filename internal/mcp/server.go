package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/rangelog/internal/auth"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/sessions"
)

// Server exposes the session engine as MCP tools for a single configured
// owner.
type Server struct {
	sessions *sessions.Manager
	ownerID  string
}

// NewServer creates the MCP server wrapper.
func NewServer(m *sessions.Manager, ownerID string) *Server {
	return &Server{sessions: m, ownerID: ownerID}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("rangelog", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.startSessionTool())
	srv.AddTool(s.endSessionTool())
	srv.AddTool(s.logTargetTool())
	srv.AddTool(s.sessionStatsTool())
	srv.AddTool(s.listSessionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) ctx(ctx context.Context) context.Context {
	return auth.WithOwner(ctx, s.ownerID)
}

// sessionID returns the requested session id, falling back to the owner's
// active session.
func (s *Server) sessionID(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	if id := request.GetString("session_id", ""); id != "" {
		return id, nil
	}
	active, err := s.sessions.ListSessions(ctx, models.SessionStatusActive)
	if err != nil {
		return "", err
	}
	if len(active) == 0 {
		return "", fmt.Errorf("no active session; pass session_id")
	}
	return active[0].ID, nil
}

func textJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func sessionOut(sess *models.Session) map[string]any {
	out := map[string]any{
		"id":         sess.ID,
		"status":     string(sess.Status),
		"mode":       string(sess.Mode),
		"started_at": sess.StartedAt.Format(time.RFC3339),
	}
	if sess.TrainingID != "" {
		out["training_id"] = sess.TrainingID
	}
	if sess.DrillID != "" {
		out["drill_id"] = sess.DrillID
	}
	if sess.DrillTemplateID != "" {
		out["drill_template_id"] = sess.DrillTemplateID
	}
	if sess.EndedAt != nil {
		out["ended_at"] = sess.EndedAt.Format(time.RFC3339)
	}
	return out
}

// rangelog_start_session
func (s *Server) startSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rangelog_start_session",
		mcp.WithDescription("Start a range session. Give a training drill, a drill template, or an ad-hoc drill via target_type. Any other active session is ended first."),
		mcp.WithString("training_id", mcp.Description("Training to run the session in")),
		mcp.WithString("drill_id", mcp.Description("Drill of the training")),
		mcp.WithString("drill_template_id", mcp.Description("Saved drill template")),
		mcp.WithString("target_type", mcp.Description("Ad-hoc drill target type: paper or tactical")),
		mcp.WithNumber("rounds_per_shooter", mcp.Description("Ad-hoc drill rounds per string")),
		mcp.WithNumber("strings_count", mcp.Description("Ad-hoc drill number of strings")),
		mcp.WithString("mode", mcp.Description("solo (default) or group")),
	)
	return tool, s.handleStartSession
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := sessions.CreateRequest{
		TrainingID:      request.GetString("training_id", ""),
		DrillID:         request.GetString("drill_id", ""),
		DrillTemplateID: request.GetString("drill_template_id", ""),
		Mode:            models.SessionMode(request.GetString("mode", "")),
	}
	if tt := request.GetString("target_type", ""); tt != "" {
		req.CustomDrill = &models.DrillConfig{
			TargetType:       models.TargetType(tt),
			RoundsPerShooter: request.GetInt("rounds_per_shooter", 0),
			StringsCount:     request.GetInt("strings_count", 0),
		}
	}

	sess, err := s.sessions.CreateSession(s.ctx(ctx), req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start session: %v", err)), nil
	}
	return textJSON(sessionOut(sess))
}

// rangelog_end_session
func (s *Server) endSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rangelog_end_session",
		mcp.WithDescription("End a session and report whether the drill's requirements were met."),
		mcp.WithString("session_id", mcp.Description("Session to end (defaults to the active session)")),
	)
	return tool, s.handleEndSession
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = s.ctx(ctx)
	id, err := s.sessionID(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.sessions.EndSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
	}
	out := sessionOut(sess)

	if result, err := s.sessions.Evaluate(ctx, id); err == nil {
		gates := make([]map[string]any, len(result.Gates))
		for i, g := range result.Gates {
			gates[i] = map[string]any{
				"gate":     string(g.Name),
				"passed":   g.Passed,
				"required": g.Required,
				"actual":   g.Actual,
			}
		}
		out["requirements_met"] = result.Passed
		out["gates"] = gates
	}
	return textJSON(out)
}

// rangelog_log_target
func (s *Server) logTargetTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rangelog_log_target",
		mcp.WithDescription("Log a target and its manually counted result in a session."),
		mcp.WithString("session_id", mcp.Description("Session (defaults to the active session)")),
		mcp.WithString("type", mcp.Required(), mcp.Description("paper or tactical")),
		mcp.WithNumber("bullets_fired", mcp.Required(), mcp.Description("Shots fired at the target")),
		mcp.WithNumber("hits", mcp.Required(), mcp.Description("Hits counted")),
		mcp.WithNumber("distance_m", mcp.Description("Distance in meters")),
		mcp.WithNumber("dispersion_cm", mcp.Description("Group size in cm (paper)")),
		mcp.WithNumber("time_seconds", mcp.Description("Engagement time in seconds (tactical)")),
		mcp.WithBoolean("stage_cleared", mcp.Description("Whether the stage was cleared (tactical)")),
	)
	return tool, s.handleLogTarget
}

func (s *Server) handleLogTarget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = s.ctx(ctx)
	targetType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: type"), nil
	}
	shots, err := request.RequireInt("bullets_fired")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: bullets_fired"), nil
	}
	hits, err := request.RequireInt("hits")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: hits"), nil
	}
	id, err := s.sessionID(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	target, err := s.sessions.AppendTarget(ctx, id, sessions.TargetSpec{
		Type:      models.TargetType(targetType),
		DistanceM: request.GetFloat("distance_m", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add target: %v", err)), nil
	}

	var spec sessions.ResultSpec
	switch target.Type {
	case models.TargetTypePaper:
		r := &models.PaperResult{BulletsFired: shots, HitsTotal: hits, Source: models.ResultSourceManual}
		if d := request.GetFloat("dispersion_cm", -1); d >= 0 {
			r.DispersionCM = &d
		}
		spec.Paper = r
	case models.TargetTypeTactical:
		r := &models.TacticalResult{BulletsFired: shots, Hits: hits, StageCleared: request.GetBool("stage_cleared", false)}
		if ts := request.GetFloat("time_seconds", -1); ts >= 0 {
			r.TimeSeconds = &ts
		}
		spec.Tactical = r
	}

	if _, err := s.sessions.AttachResult(ctx, target.ID, spec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("target %d added but result rejected: %v", target.Sequence, err)), nil
	}
	return textJSON(map[string]any{
		"target_id":     target.ID,
		"session_id":    id,
		"sequence":      target.Sequence,
		"type":          string(target.Type),
		"bullets_fired": shots,
		"hits":          hits,
	})
}

// rangelog_session_stats
func (s *Server) sessionStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rangelog_session_stats",
		mcp.WithDescription("Get shot, hit, accuracy, dispersion and timing statistics for a session."),
		mcp.WithString("session_id", mcp.Description("Session (defaults to the active session)")),
	)
	return tool, s.handleSessionStats
}

func (s *Server) handleSessionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = s.ctx(ctx)
	id, err := s.sessionID(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.sessions.GetSessionStats(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	out := map[string]any{
		"session_id":       id,
		"targets":          st.TargetCount,
		"paper_targets":    st.PaperTargets,
		"tactical_targets": st.TacticalTargets,
		"total_shots":      st.TotalShots,
		"total_hits":       st.TotalHits,
		"accuracy_pct":     st.AccuracyPct,
		"stages_cleared":   st.StagesCleared,
	}
	if st.AvgDispersionCM != nil {
		out["avg_dispersion_cm"] = *st.AvgDispersionCM
		out["best_dispersion_cm"] = *st.BestDispersionCM
	}
	if st.AvgTimeSeconds != nil {
		out["avg_time_seconds"] = *st.AvgTimeSeconds
		out["fastest_time_seconds"] = *st.FastestTimeSeconds
	}
	if score, ok, err := s.sessions.GetScore(ctx, id); err == nil && ok {
		out["score"] = score
	}
	return textJSON(out)
}

// rangelog_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rangelog_list_sessions",
		mcp.WithDescription("List your sessions, newest first."),
		mcp.WithString("status", mcp.Description("Filter by status: active, completed, cancelled")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.SessionStatus(request.GetString("status", ""))
	list, err := s.sessions.ListSessions(s.ctx(ctx), status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	out := make([]map[string]any, len(list))
	for i, sess := range list {
		out[i] = sessionOut(sess)
	}
	return textJSON(out)
}
