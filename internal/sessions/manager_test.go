package sessions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rangelog/internal/auth"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingCloser struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *recordingCloser) RecheckAutoClose(_ context.Context, trainingID string) (models.TrainingStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, trainingID)
	if c.err != nil {
		return "", c.err
	}
	return models.TrainingStatusOngoing, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, s store.Store) (*Manager, *recordingCloser) {
	t.Helper()
	closer := &recordingCloser{}
	return NewManager(s, WithAutoCloser(closer), WithLogger(quietLogger())), closer
}

func ownerCtx(owner string) context.Context {
	return auth.WithOwner(context.Background(), owner)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func tacticalConfig() models.DrillConfig {
	return models.DrillConfig{
		Goal:             models.DrillGoalAchievement,
		TargetType:       models.TargetTypeTactical,
		RoundsPerShooter: 6,
		StringsCount:     3,
	}
}

// seedTraining creates a training with one drill per config.
func seedTraining(t *testing.T, s store.Store, configs ...models.DrillConfig) (*models.Training, []*models.TrainingDrill) {
	t.Helper()
	ctx := context.Background()
	tr := &models.Training{TeamID: "team-1", Title: "Tuesday qualification"}
	require.NoError(t, s.CreateTraining(ctx, tr))

	var drills []*models.TrainingDrill
	for i, cfg := range configs {
		d := &models.TrainingDrill{TrainingID: tr.ID, Name: "drill", Position: i + 1, Config: cfg}
		require.NoError(t, s.CreateTrainingDrill(ctx, d))
		drills = append(drills, d)
	}
	return tr, drills
}

func logTactical(t *testing.T, m *Manager, ctx context.Context, sessionID string, shots, hits int) {
	t.Helper()
	tgt, err := m.AppendTarget(ctx, sessionID, TargetSpec{Type: models.TargetTypeTactical, DistanceM: 10})
	require.NoError(t, err)
	_, err = m.AttachResult(ctx, tgt.ID, ResultSpec{Tactical: &models.TacticalResult{BulletsFired: shots, Hits: hits, TimeSeconds: floatPtr(8)}})
	require.NoError(t, err)
}

func activeSessions(t *testing.T, s store.Store, owner string) []*models.Session {
	t.Helper()
	list, err := s.ListSessions(context.Background(), store.SessionFilter{
		OwnerID:  owner,
		Statuses: []models.SessionStatus{models.SessionStatusActive},
	})
	require.NoError(t, err)
	return list
}

func TestCreateSession_NotAuthenticated(t *testing.T) {
	m, _ := newTestManager(t, newTestStore(t))
	cfg := tacticalConfig()

	_, err := m.CreateSession(context.Background(), CreateRequest{CustomDrill: &cfg})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = m.EndSession(context.Background(), "any")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCreateSession_CustomDrill(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	cfg := tacticalConfig()

	sess, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, sess.Status)
	assert.Equal(t, models.SessionModeSolo, sess.Mode)
	require.NotNil(t, sess.CustomDrill)

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.CustomDrill.RoundsPerShooter)
}

func TestCreateSession_MissingDrillConfiguration(t *testing.T) {
	m, _ := newTestManager(t, newTestStore(t))

	_, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{})
	assert.ErrorIs(t, err, ErrMissingDrillConfiguration)
}

func TestCreateSession_TemplateNotFound(t *testing.T) {
	m, _ := newTestManager(t, newTestStore(t))

	_, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{DrillTemplateID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSession_ForeignTemplate(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	tmpl := &models.DrillTemplate{OwnerID: "owner-2", Name: "Bill drill", Config: tacticalConfig()}
	require.NoError(t, s.CreateDrillTemplate(context.Background(), tmpl))

	_, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{DrillTemplateID: tmpl.ID})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, activeSessions(t, s, "owner-1"))

	sess, err := m.CreateSession(ownerCtx("owner-2"), CreateRequest{DrillTemplateID: tmpl.ID})
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, sess.DrillTemplateID)
}

func TestCreateSession_SupersedesRecentSession(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()

	first, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	second, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)

	old, err := s.GetSession(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, old.Status)
	assert.NotNil(t, old.EndedAt)

	active := activeSessions(t, s, "owner-1")
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestCreateSession_StaleSessionCancelledWithoutCompletion(t *testing.T) {
	s := newTestStore(t)
	m, closer := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig())

	stale := &models.Session{
		OwnerID:    "owner-1",
		TrainingID: tr.ID,
		DrillID:    drills[0].ID,
		StartedAt:  time.Now().UTC().Add(-25 * time.Hour),
	}
	require.NoError(t, s.CreateSession(context.Background(), stale))
	for range 3 {
		logTactical(t, m, ctx, stale.ID, 6, 6)
	}

	cfg := tacticalConfig()
	_, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)

	got, err := s.GetSession(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, got.Status)

	completions, err := s.ListDrillCompletions(context.Background(), store.CompletionFilter{SessionID: stale.ID})
	require.NoError(t, err)
	assert.Empty(t, completions)
	assert.Len(t, activeSessions(t, s, "owner-1"), 1)
	assert.Equal(t, []string{tr.ID}, closer.calls)
}

func TestCreateSession_LeavesEndedSessionsAlone(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := context.Background()

	old := &models.Session{OwnerID: "owner-1", StartedAt: time.Now().UTC().Add(-48 * time.Hour)}
	require.NoError(t, s.CreateSession(ctx, old))
	done := &models.Session{OwnerID: "owner-1", Status: models.SessionStatusCompleted}
	require.NoError(t, s.CreateSession(ctx, done))

	cfg := tacticalConfig()
	_, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, got.Status)

	got, err = s.GetSession(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.Nil(t, got.EndedAt)
	assert.Len(t, activeSessions(t, s, "owner-1"), 1)
}

func TestCreateSession_IdempotentJoin(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig())

	first, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)

	joined, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, joined.ID)
	assert.Equal(t, models.SessionStatusActive, joined.Status)

	again, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	all, err := s.ListSessions(context.Background(), store.SessionFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateSession_ConflictingDrill(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig(), tacticalConfig())

	first, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[1].ID})
	require.ErrorIs(t, err, ErrActiveSessionConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.SessionID)
	assert.Equal(t, drills[0].ID, conflict.ActiveDrillID)
	assert.Equal(t, drills[1].ID, conflict.RequestedDrill)

	got, err := s.GetSession(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, got.Status)
	assert.Nil(t, got.EndedAt)
}

func TestCreateSession_TrainingValidation(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig())
	other, _ := seedTraining(t, s)

	t.Run("unknown training", func(t *testing.T) {
		_, err := m.CreateSession(ctx, CreateRequest{TrainingID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("drill from another training", func(t *testing.T) {
		_, err := m.CreateSession(ctx, CreateRequest{TrainingID: other.ID, DrillID: drills[0].ID})
		assert.ErrorIs(t, err, ErrDrillTrainingMismatch)
	})
	t.Run("drill selection required", func(t *testing.T) {
		_, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID})
		assert.ErrorIs(t, err, ErrDrillSelectionRequired)
	})
	t.Run("drill adopts its training", func(t *testing.T) {
		sess, err := m.CreateSession(ctx, CreateRequest{DrillID: drills[0].ID})
		require.NoError(t, err)
		assert.Equal(t, tr.ID, sess.TrainingID)
	})
	assert.Len(t, activeSessions(t, s, "owner-1"), 1)
}

func TestCreateSession_ConcurrentCallsKeepOneActive(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, activeSessions(t, s, "owner-1"), 1)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	cfg := tacticalConfig()

	sess, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)

	_, err = m.GetSession(ownerCtx("owner-2"), sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.EndSession(ownerCtx("owner-2"), sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := m.ListSessions(ownerCtx("owner-2"), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListSessions_ByStatus(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()

	_, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)

	all, err := m.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := m.ListSessions(ctx, models.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)

	// A different owner is not blocked.
	other, err := l.Lock(context.Background(), "owner-2")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "owner-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)
	again()
	assert.Empty(t, l.locks)
}
