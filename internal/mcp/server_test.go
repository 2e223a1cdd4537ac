package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/sessions"
	"github.com/joescharf/rangelog/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := sessions.NewManager(s, sessions.WithLogger(logger))
	return NewServer(mgr, "owner-1"), s
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

func TestStartSession_RequiresDrill(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleStartSession(context.Background(), callToolReq("rangelog_start_session", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "custom drill")
}

func TestSessionFlow(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleStartSession(ctx, callToolReq("rangelog_start_session", map[string]any{
		"target_type":        "tactical",
		"rounds_per_shooter": float64(6),
		"strings_count":      float64(3),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var started map[string]any
	resultJSON(t, result, &started)
	assert.Equal(t, "active", started["status"])
	sessionID := started["id"].(string)

	for range 3 {
		result, err = srv.handleLogTarget(ctx, callToolReq("rangelog_log_target", map[string]any{
			"type":          "tactical",
			"bullets_fired": float64(6),
			"hits":          float64(5),
			"time_seconds":  float64(9),
		}))
		require.NoError(t, err)
		require.False(t, result.IsError, resultText(t, result))
	}

	result, err = srv.handleSessionStats(ctx, callToolReq("rangelog_session_stats", nil))
	require.NoError(t, err)
	var st map[string]any
	resultJSON(t, result, &st)
	assert.Equal(t, sessionID, st["session_id"])
	assert.Equal(t, float64(18), st["total_shots"])
	assert.Equal(t, 83.33, st["accuracy_pct"])
	assert.Equal(t, float64(9), st["avg_time_seconds"])

	result, err = srv.handleEndSession(ctx, callToolReq("rangelog_end_session", map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	var ended map[string]any
	resultJSON(t, result, &ended)
	assert.Equal(t, "completed", ended["status"])
	assert.Equal(t, true, ended["requirements_met"])
	assert.Len(t, ended["gates"], 4)

	stored, err := s.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status)

	result, err = srv.handleListSessions(ctx, callToolReq("rangelog_list_sessions", map[string]any{"status": "completed"}))
	require.NoError(t, err)
	var list []map[string]any
	resultJSON(t, result, &list)
	assert.Len(t, list, 1)
}

func TestLogTarget_NoActiveSession(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleLogTarget(context.Background(), callToolReq("rangelog_log_target", map[string]any{
		"type": "paper", "bullets_fired": float64(10), "hits": float64(9),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no active session")
}

func TestLogTarget_MissingParams(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleLogTarget(context.Background(), callToolReq("rangelog_log_target", map[string]any{"type": "paper"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "bullets_fired")
}

func TestLogTarget_RejectedResult(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleStartSession(ctx, callToolReq("rangelog_start_session", map[string]any{"target_type": "paper"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = srv.handleLogTarget(ctx, callToolReq("rangelog_log_target", map[string]any{
		"type": "paper", "bullets_fired": float64(3), "hits": float64(5),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "result rejected")
}

func TestListSessions_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListSessions(context.Background(), callToolReq("rangelog_list_sessions", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}
