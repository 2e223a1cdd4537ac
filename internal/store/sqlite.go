package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/rangelog/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access and avoids "database is locked" under the API.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Columns named by SQLite in UNIQUE violations that map to sentinels.
const (
	uniqueActiveOwner    = "sessions.owner_id"
	uniquePaperTarget    = "paper_results.target_id"
	uniqueTacticalTarget = "tactical_results.target_id"
)

// isUniqueViolation reports whether err is a UNIQUE failure on column. Other
// collisions, such as a duplicate primary key, are left as plain errors.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func encodeConfig(cfg models.DrillConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode drill config: %w", err)
	}
	return string(data), nil
}

func decodeConfig(raw string) (models.DrillConfig, error) {
	var cfg models.DrillConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("decode drill config: %w", err)
	}
	return cfg, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

const sessionColumns = `id, owner_id, team_id, training_id, drill_id, drill_template_id, custom_drill, mode, status, started_at, ended_at, created_at, updated_at`

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = newULID()
	}
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Mode == "" {
		session.Mode = models.SessionModeSolo
	}
	if session.Status == "" {
		session.Status = models.SessionStatusActive
	}

	var custom any
	if session.CustomDrill != nil {
		raw, err := encodeConfig(*session.CustomDrill)
		if err != nil {
			return err
		}
		custom = raw
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OwnerID, session.TeamID, session.TrainingID, session.DrillID, session.DrillTemplateID,
		custom, string(session.Mode), string(session.Status),
		session.StartedAt, session.EndedAt, session.CreatedAt, session.UpdatedAt,
	)
	if isUniqueViolation(err, uniqueActiveOwner) {
		return fmt.Errorf("create session for owner %s: %w", session.OwnerID, ErrActiveSessionExists)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var mode, status string
	var custom sql.NullString
	var endedAt sql.NullTime

	if err := row.Scan(&session.ID, &session.OwnerID, &session.TeamID, &session.TrainingID,
		&session.DrillID, &session.DrillTemplateID, &custom, &mode, &status,
		&session.StartedAt, &endedAt, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}

	session.Mode = models.SessionMode(mode)
	session.Status = models.SessionStatus(status)
	session.EndedAt = nullTime(endedAt)
	if custom.Valid && custom.String != "" {
		cfg, err := decodeConfig(custom.String)
		if err != nil {
			return nil, err
		}
		session.CustomDrill = &cfg
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var conditions []string
	var args []any

	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.TrainingID != "" {
		conditions = append(conditions, "training_id = ?")
		args = append(args, filter.TrainingID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSession persists status and end time. The drill linkage of a session
// is fixed at creation.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status=?, mode=?, ended_at=?, updated_at=? WHERE id=?`,
		string(session.Status), string(session.Mode), session.EndedAt, session.UpdatedAt, session.ID,
	)
	if isUniqueViolation(err, uniqueActiveOwner) {
		return fmt.Errorf("update session %s: %w", session.ID, ErrActiveSessionExists)
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// --- Targets ---

// CreateTarget appends a target to its session. The sequence number is the
// current target count plus one; concurrent writers to the same session are
// rejected by the (session_id, sequence) unique constraint.
func (s *SQLiteStore) CreateTarget(ctx context.Context, t *models.Target) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	t.CreatedAt = time.Now().UTC()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM targets WHERE session_id = ?", t.SessionID).Scan(&count); err != nil {
		return fmt.Errorf("count targets: %w", err)
	}
	t.Sequence = count + 1

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, session_id, sequence, type, distance_m, planned_shots, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Sequence, string(t.Type), t.DistanceM, t.PlannedShots, t.Notes, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	return nil
}

const targetQuery = `SELECT t.id, t.session_id, t.sequence, t.type, t.distance_m, t.planned_shots, t.notes, t.created_at,
	p.id, p.bullets_fired, p.hits_total, p.dispersion_cm, p.source, p.scan_ref, p.created_at,
	x.id, x.bullets_fired, x.hits, x.time_seconds, x.stage_cleared, x.created_at
	FROM targets t
	LEFT JOIN paper_results p ON p.target_id = t.id
	LEFT JOIN tactical_results x ON x.target_id = t.id`

func scanTarget(row rowScanner) (*models.Target, error) {
	t := &models.Target{}
	var targetType string
	var paperID, paperSource, paperScanRef sql.NullString
	var paperShots, paperHits sql.NullInt64
	var paperDispersion sql.NullFloat64
	var paperCreated sql.NullTime
	var tacID sql.NullString
	var tacShots, tacHits, tacCleared sql.NullInt64
	var tacTime sql.NullFloat64
	var tacCreated sql.NullTime

	if err := row.Scan(&t.ID, &t.SessionID, &t.Sequence, &targetType, &t.DistanceM, &t.PlannedShots, &t.Notes, &t.CreatedAt,
		&paperID, &paperShots, &paperHits, &paperDispersion, &paperSource, &paperScanRef, &paperCreated,
		&tacID, &tacShots, &tacHits, &tacTime, &tacCleared, &tacCreated); err != nil {
		return nil, err
	}
	t.Type = models.TargetType(targetType)

	if paperID.Valid {
		t.Paper = &models.PaperResult{
			ID:           paperID.String,
			TargetID:     t.ID,
			BulletsFired: int(paperShots.Int64),
			HitsTotal:    int(paperHits.Int64),
			DispersionCM: nullFloat(paperDispersion),
			Source:       models.ResultSource(paperSource.String),
			ScanRef:      paperScanRef.String,
			CreatedAt:    paperCreated.Time,
		}
	}
	if tacID.Valid {
		t.Tactical = &models.TacticalResult{
			ID:           tacID.String,
			TargetID:     t.ID,
			BulletsFired: int(tacShots.Int64),
			Hits:         int(tacHits.Int64),
			TimeSeconds:  nullFloat(tacTime),
			StageCleared: tacCleared.Int64 != 0,
			CreatedAt:    tacCreated.Time,
		}
	}
	return t, nil
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx, targetQuery+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("target %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ListTargets returns a session's targets in sequence order with any
// attached results.
func (s *SQLiteStore) ListTargets(ctx context.Context, sessionID string) ([]*models.Target, error) {
	rows, err := s.db.QueryContext(ctx, targetQuery+` WHERE t.session_id = ? ORDER BY t.sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []*models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *SQLiteStore) CreatePaperResult(ctx context.Context, r *models.PaperResult) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	r.CreatedAt = time.Now().UTC()
	if r.Source == "" {
		r.Source = models.ResultSourceManual
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paper_results (id, target_id, bullets_fired, hits_total, dispersion_cm, source, scan_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TargetID, r.BulletsFired, r.HitsTotal, r.DispersionCM, string(r.Source), r.ScanRef, r.CreatedAt,
	)
	if isUniqueViolation(err, uniquePaperTarget) {
		return fmt.Errorf("target %s: %w", r.TargetID, ErrResultExists)
	}
	if err != nil {
		return fmt.Errorf("create paper result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTacticalResult(ctx context.Context, r *models.TacticalResult) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tactical_results (id, target_id, bullets_fired, hits, time_seconds, stage_cleared, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TargetID, r.BulletsFired, r.Hits, r.TimeSeconds, boolToInt(r.StageCleared), r.CreatedAt,
	)
	if isUniqueViolation(err, uniqueTacticalTarget) {
		return fmt.Errorf("target %s: %w", r.TargetID, ErrResultExists)
	}
	if err != nil {
		return fmt.Errorf("create tactical result: %w", err)
	}
	return nil
}

// --- Drill Templates ---

func (s *SQLiteStore) CreateDrillTemplate(ctx context.Context, d *models.DrillTemplate) error {
	if d.ID == "" {
		d.ID = newULID()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	cfg, err := encodeConfig(d.Config)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drill_templates (id, owner_id, team_id, name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.TeamID, d.Name, cfg, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create drill template: %w", err)
	}
	return nil
}

func scanDrillTemplate(row rowScanner) (*models.DrillTemplate, error) {
	d := &models.DrillTemplate{}
	var raw string
	if err := row.Scan(&d.ID, &d.OwnerID, &d.TeamID, &d.Name, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}
	d.Config = cfg
	return d, nil
}

func (s *SQLiteStore) GetDrillTemplate(ctx context.Context, id string) (*models.DrillTemplate, error) {
	d, err := scanDrillTemplate(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, team_id, name, config, created_at, updated_at FROM drill_templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("drill template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get drill template: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDrillTemplates(ctx context.Context, ownerID string) ([]*models.DrillTemplate, error) {
	query := `SELECT id, owner_id, team_id, name, config, created_at, updated_at FROM drill_templates`
	var args []any
	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drill templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []*models.DrillTemplate
	for rows.Next() {
		d, err := scanDrillTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drill template: %w", err)
		}
		templates = append(templates, d)
	}
	return templates, rows.Err()
}

// --- Trainings ---

const trainingColumns = `id, team_id, title, status, scheduled_at, deadline, created_at, updated_at, finished_at`

func (s *SQLiteStore) CreateTraining(ctx context.Context, t *models.Training) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = now
	}
	if t.Status == "" {
		t.Status = models.TrainingStatusScheduled
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trainings (`+trainingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TeamID, t.Title, string(t.Status), t.ScheduledAt, t.Deadline, t.CreatedAt, t.UpdatedAt, t.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("create training: %w", err)
	}
	return nil
}

func scanTraining(row rowScanner) (*models.Training, error) {
	t := &models.Training{}
	var status string
	var deadline, finishedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.TeamID, &t.Title, &status, &t.ScheduledAt, &deadline, &t.CreatedAt, &t.UpdatedAt, &finishedAt); err != nil {
		return nil, err
	}
	t.Status = models.TrainingStatus(status)
	t.Deadline = nullTime(deadline)
	t.FinishedAt = nullTime(finishedAt)
	return t, nil
}

func (s *SQLiteStore) GetTraining(ctx context.Context, id string) (*models.Training, error) {
	t, err := scanTraining(s.db.QueryRowContext(ctx, `SELECT `+trainingColumns+` FROM trainings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTrainings(ctx context.Context, teamID string) ([]*models.Training, error) {
	query := `SELECT ` + trainingColumns + ` FROM trainings`
	var args []any
	if teamID != "" {
		query += " WHERE team_id = ?"
		args = append(args, teamID)
	}
	query += " ORDER BY scheduled_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trainings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trainings []*models.Training
	for rows.Next() {
		t, err := scanTraining(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training: %w", err)
		}
		trainings = append(trainings, t)
	}
	return trainings, rows.Err()
}

func (s *SQLiteStore) UpdateTraining(ctx context.Context, t *models.Training) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE trainings SET team_id=?, title=?, status=?, scheduled_at=?, deadline=?, updated_at=?, finished_at=? WHERE id=?`,
		t.TeamID, t.Title, string(t.Status), t.ScheduledAt, t.Deadline, t.UpdatedAt, t.FinishedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update training: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("training %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CreateTrainingDrill(ctx context.Context, d *models.TrainingDrill) error {
	if d.ID == "" {
		d.ID = newULID()
	}
	d.CreatedAt = time.Now().UTC()

	cfg, err := encodeConfig(d.Config)
	if err != nil {
		return err
	}

	if d.Position == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM training_drills WHERE training_id = ?", d.TrainingID).Scan(&count); err != nil {
			return fmt.Errorf("count training drills: %w", err)
		}
		d.Position = count + 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO training_drills (id, training_id, template_id, name, position, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TrainingID, d.TemplateID, d.Name, d.Position, cfg, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create training drill: %w", err)
	}
	return nil
}

func scanTrainingDrill(row rowScanner) (*models.TrainingDrill, error) {
	d := &models.TrainingDrill{}
	var raw string
	if err := row.Scan(&d.ID, &d.TrainingID, &d.TemplateID, &d.Name, &d.Position, &raw, &d.CreatedAt); err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}
	d.Config = cfg
	return d, nil
}

func (s *SQLiteStore) GetTrainingDrill(ctx context.Context, id string) (*models.TrainingDrill, error) {
	d, err := scanTrainingDrill(s.db.QueryRowContext(ctx,
		`SELECT id, training_id, template_id, name, position, config, created_at FROM training_drills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training drill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get training drill: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListTrainingDrills(ctx context.Context, trainingID string) ([]*models.TrainingDrill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, training_id, template_id, name, position, config, created_at
		FROM training_drills WHERE training_id = ? ORDER BY position, created_at`, trainingID)
	if err != nil {
		return nil, fmt.Errorf("list training drills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var drills []*models.TrainingDrill
	for rows.Next() {
		d, err := scanTrainingDrill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training drill: %w", err)
		}
		drills = append(drills, d)
	}
	return drills, rows.Err()
}

// --- Drill Completions ---

func (s *SQLiteStore) CreateDrillCompletion(ctx context.Context, c *models.DrillCompletion) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	statsJSON, err := json.Marshal(c.Stats)
	if err != nil {
		return fmt.Errorf("encode completion stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drill_completions (id, session_id, training_id, drill_id, owner_id, stats, score, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.TrainingID, c.DrillID, c.OwnerID, string(statsJSON), c.Score, c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create drill completion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDrillCompletions(ctx context.Context, filter CompletionFilter) ([]*models.DrillCompletion, error) {
	query := `SELECT id, session_id, training_id, drill_id, owner_id, stats, score, completed_at FROM drill_completions`
	var conditions []string
	var args []any

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.TrainingID != "" {
		conditions = append(conditions, "training_id = ?")
		args = append(args, filter.TrainingID)
	}
	if filter.DrillID != "" {
		conditions = append(conditions, "drill_id = ?")
		args = append(args, filter.DrillID)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY completed_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drill completions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var completions []*models.DrillCompletion
	for rows.Next() {
		c := &models.DrillCompletion{}
		var statsJSON string
		var score sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TrainingID, &c.DrillID, &c.OwnerID, &statsJSON, &score, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan drill completion: %w", err)
		}
		if err := json.Unmarshal([]byte(statsJSON), &c.Stats); err != nil {
			return nil, fmt.Errorf("decode completion stats: %w", err)
		}
		c.Score = nullFloat(score)
		completions = append(completions, c)
	}
	return completions, rows.Err()
}
