package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rangelog/internal/completion"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/store"
)

// failingStore injects errors into selected store calls.
type failingStore struct {
	store.Store
	completionErr error
	listErr       error
}

func (f *failingStore) CreateDrillCompletion(ctx context.Context, c *models.DrillCompletion) error {
	if f.completionErr != nil {
		return f.completionErr
	}
	return f.Store.CreateDrillCompletion(ctx, c)
}

func (f *failingStore) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*models.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListSessions(ctx, filter)
}

func completionsFor(t *testing.T, s store.Store, sessionID string) []*models.DrillCompletion {
	t.Helper()
	list, err := s.ListDrillCompletions(context.Background(), store.CompletionFilter{SessionID: sessionID})
	require.NoError(t, err)
	return list
}

func TestEndSession_EndToEndTacticalDrill(t *testing.T) {
	s := newTestStore(t)
	m, closer := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig())

	sess, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	for range 3 {
		logTactical(t, m, ctx, sess.ID, 6, 5)
	}

	st, err := m.GetSessionStats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, st.TotalShots)
	assert.Equal(t, 15, st.TotalHits)
	assert.InDelta(t, 83.33, st.AccuracyPct, 0.001)

	preview, err := m.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, preview.Passed)
	assert.Empty(t, completionsFor(t, s, sess.ID), "evaluation preview must not record")

	ended, err := m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, ended.Status)
	require.NotNil(t, ended.EndedAt)

	recs := completionsFor(t, s, sess.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, drills[0].ID, recs[0].DrillID)
	assert.Equal(t, "owner-1", recs[0].OwnerID)
	assert.Equal(t, 18, recs[0].Stats.TotalShots)
	assert.Nil(t, recs[0].Score)
	assert.Equal(t, []string{tr.ID}, closer.calls)
}

func TestEndSession_AccuracyGateOnlyFailure(t *testing.T) {
	s := newTestStore(t)
	m, closer := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()
	cfg.MinAccuracyPct = floatPtr(90)
	tr, drills := seedTraining(t, s, cfg)

	sess, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	for range 3 {
		logTactical(t, m, ctx, sess.ID, 6, 5)
	}

	result, err := m.Evaluate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []completion.GateName{completion.GateAccuracy}, result.Failed())

	ended, err := m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, ended.Status)
	assert.Empty(t, completionsFor(t, s, sess.ID))
	assert.Equal(t, []string{tr.ID}, closer.calls)
}

func TestEndSession_RecordsScore(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := models.DrillConfig{
		TargetType:       models.TargetTypeTactical,
		RoundsPerShooter: 10,
		Scoring:          &models.ScoringConfig{Mode: models.ScoringModePoints, PointsPerHit: 10, PenaltyPerMiss: 5},
	}
	tr, drills := seedTraining(t, s, cfg)

	sess, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	logTactical(t, m, ctx, sess.ID, 10, 8)

	score, ok, err := m.GetScore(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 70.0, score)

	_, err = m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	recs := completionsFor(t, s, sess.ID)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Score)
	assert.Equal(t, 70.0, *recs[0].Score)
}

func TestAttachResult_ScanMayReportMoreHolesThanShots(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := models.DrillConfig{
		TargetType: models.TargetTypePaper,
		Scoring:    &models.ScoringConfig{Mode: models.ScoringModePoints, PointsPerHit: 10, PenaltyPerMiss: 5},
	}

	sess, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	tgt, err := m.AppendTarget(ctx, sess.ID, TargetSpec{Type: models.TargetTypePaper})
	require.NoError(t, err)

	_, err = m.AttachResult(ctx, tgt.ID, ResultSpec{Paper: &models.PaperResult{
		BulletsFired: 0, HitsTotal: 7, Source: models.ResultSourceScan, ScanRef: "scan-7",
	}})
	require.NoError(t, err)

	st, err := m.GetSessionStats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalShots)
	assert.Equal(t, 7, st.TotalHits)
	assert.Equal(t, 0, st.ManualShots)
	assert.Equal(t, 0, st.ManualHits)
	assert.Equal(t, 0.0, st.AccuracyPct)

	// Misses clamp at zero: 7*10, no penalty.
	score, ok, err := m.GetScore(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 70.0, score)
}

func TestAttachResult_ScanRejectsNegativeCounts(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := models.DrillConfig{TargetType: models.TargetTypePaper}

	sess, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	tgt, err := m.AppendTarget(ctx, sess.ID, TargetSpec{Type: models.TargetTypePaper})
	require.NoError(t, err)

	_, err = m.AttachResult(ctx, tgt.ID, ResultSpec{Paper: &models.PaperResult{
		BulletsFired: -1, HitsTotal: 3, Source: models.ResultSourceScan, ScanRef: "scan-1",
	}})
	assert.ErrorIs(t, err, ErrInvalidResult)

	// Manual paper results still cap hits at shots.
	_, err = m.AttachResult(ctx, tgt.ID, ResultSpec{Paper: &models.PaperResult{BulletsFired: 5, HitsTotal: 7}})
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestEndSession_WithoutTrainingSkipsEvaluation(t *testing.T) {
	s := newTestStore(t)
	m, closer := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()

	sess, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	for range 3 {
		logTactical(t, m, ctx, sess.ID, 6, 6)
	}
	_, err = m.EndSession(ctx, sess.ID)
	require.NoError(t, err)

	assert.Empty(t, completionsFor(t, s, sess.ID))
	assert.Empty(t, closer.calls)
}

func TestEndSession_AlreadyEnded(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := tacticalConfig()

	sess, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	_, err = m.EndSession(ctx, sess.ID)
	require.NoError(t, err)

	_, err = m.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = m.CancelSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = m.AppendTarget(ctx, sess.ID, TargetSpec{Type: models.TargetTypePaper})
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestEndSession_BookkeepingFailuresDoNotFail(t *testing.T) {
	base := newTestStore(t)
	fs := &failingStore{Store: base, completionErr: errors.New("disk full")}
	m, closer := newTestManager(t, fs)
	closer.err = errors.New("training service down")
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, base, tacticalConfig())

	sess, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	for range 3 {
		logTactical(t, m, ctx, sess.ID, 6, 6)
	}

	ended, err := m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, ended.Status)

	got, err := base.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.Len(t, closer.calls, 1)
}

func TestCreateSession_StoreFailure(t *testing.T) {
	boom := errors.New("database is locked")
	fs := &failingStore{Store: newTestStore(t), listErr: boom}
	m, _ := newTestManager(t, fs)
	cfg := tacticalConfig()

	_, err := m.CreateSession(ownerCtx("owner-1"), CreateRequest{CustomDrill: &cfg})
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
}

func TestCancelSession(t *testing.T) {
	s := newTestStore(t)
	m, closer := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	tr, drills := seedTraining(t, s, tacticalConfig())

	sess, err := m.CreateSession(ctx, CreateRequest{TrainingID: tr.ID, DrillID: drills[0].ID})
	require.NoError(t, err)
	for range 3 {
		logTactical(t, m, ctx, sess.ID, 6, 6)
	}

	cancelled, err := m.CancelSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.EndedAt)
	assert.Empty(t, completionsFor(t, s, sess.ID))
	assert.Equal(t, []string{tr.ID}, closer.calls)
}

func TestAttachResult(t *testing.T) {
	s := newTestStore(t)
	m, _ := newTestManager(t, s)
	ctx := ownerCtx("owner-1")
	cfg := models.DrillConfig{TargetType: models.TargetTypePaper}

	sess, err := m.CreateSession(ctx, CreateRequest{CustomDrill: &cfg})
	require.NoError(t, err)
	paper, err := m.AppendTarget(ctx, sess.ID, TargetSpec{Type: models.TargetTypePaper, DistanceM: 25})
	require.NoError(t, err)
	assert.Equal(t, 1, paper.Sequence)
	tactical, err := m.AppendTarget(ctx, sess.ID, TargetSpec{Type: models.TargetTypeTactical})
	require.NoError(t, err)
	assert.Equal(t, 2, tactical.Sequence)

	_, err = m.AppendTarget(ctx, sess.ID, TargetSpec{Type: "clay"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	tests := []struct {
		name     string
		targetID string
		spec     ResultSpec
		wantErr  error
	}{
		{"no result", paper.ID, ResultSpec{}, ErrInvalidResult},
		{"both kinds", paper.ID, ResultSpec{Paper: &models.PaperResult{}, Tactical: &models.TacticalResult{}}, ErrInvalidResult},
		{"kind mismatch", paper.ID, ResultSpec{Tactical: &models.TacticalResult{BulletsFired: 5, Hits: 2}}, ErrTargetMismatch},
		{"hits exceed shots", tactical.ID, ResultSpec{Tactical: &models.TacticalResult{BulletsFired: 2, Hits: 5}}, ErrInvalidResult},
		{"negative shots", tactical.ID, ResultSpec{Tactical: &models.TacticalResult{BulletsFired: -1}}, ErrInvalidResult},
		{"scan without reference", paper.ID, ResultSpec{Paper: &models.PaperResult{BulletsFired: 10, HitsTotal: 10, Source: models.ResultSourceScan}}, ErrInvalidResult},
		{"unknown target", "missing", ResultSpec{Tactical: &models.TacticalResult{}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AttachResult(ctx, tt.targetID, tt.spec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := m.AttachResult(ctx, paper.ID, ResultSpec{Paper: &models.PaperResult{
		BulletsFired: 10, HitsTotal: 10, Source: models.ResultSourceScan, ScanRef: "scan-1", DispersionCM: floatPtr(4),
	}})
	require.NoError(t, err)
	require.NotNil(t, got.Paper)
	assert.Equal(t, got.ID, got.Paper.TargetID)

	_, err = m.AttachResult(ctx, paper.ID, ResultSpec{Paper: &models.PaperResult{BulletsFired: 1}})
	assert.ErrorIs(t, err, ErrResultExists)

	_, err = m.AttachResult(ctx, tactical.ID, ResultSpec{Tactical: &models.TacticalResult{BulletsFired: 5, Hits: 2}})
	require.NoError(t, err)

	st, err := m.GetSessionStats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, st.TotalShots)
	assert.Equal(t, 12, st.TotalHits)
	assert.Equal(t, 40.0, st.AccuracyPct)

	targets, err := m.ListTargets(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.True(t, targets[0].HasResult())

	_, err = m.AttachResult(ownerCtx("owner-2"), tactical.ID, ResultSpec{Tactical: &models.TacticalResult{}})
	assert.ErrorIs(t, err, ErrNotFound)
}
