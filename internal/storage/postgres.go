package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceclock/internal/config"
	"github.com/your-org/faceclock/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, name, employeeID, email, department string) (*models.Identity, error) {
	id := &models.Identity{
		ID:         uuid.New(),
		Name:       name,
		EmployeeID: employeeID,
		Email:      email,
		Department: department,
		IsActive:   true,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, name, employee_id, email, department, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING created_at, updated_at`,
		id.ID, id.Name, id.EmployeeID, id.Email, id.Department,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, employee_id, email, department, is_active, created_at, updated_at
		 FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.EmployeeID, &ident.Email, &ident.Department,
		&ident.IsActive, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context, includeInactive bool) ([]models.Identity, error) {
	query := `SELECT id, name, employee_id, email, department, is_active, created_at, updated_at
	          FROM identities`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.EmployeeID, &ident.Email, &ident.Department,
			&ident.IsActive, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	return identities, nil
}

func (s *PostgresStore) UpdateIdentity(ctx context.Context, id uuid.UUID, name, email, department string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET name = $1, email = $2, department = $3, updated_at = NOW()
		 WHERE id = $4 AND is_active`,
		name, email, department, id)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity not found")
	}
	return nil
}

// DeactivateIdentity soft-deletes: the identity stops matching immediately
// but its attendance history stays queryable.
func (s *PostgresStore) DeactivateIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity not found")
	}
	return nil
}

// LoadActiveIdentities returns every active identity together with all of
// its embeddings, for building the in-memory match index.
func (s *PostgresStore) LoadActiveIdentities(ctx context.Context) ([]models.Identity, error) {
	identities, err := s.ListIdentities(ctx, false)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT fe.identity_id, fe.embedding
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 WHERE i.is_active
		 ORDER BY fe.created_at`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID][][]float32)
	for rows.Next() {
		var identityID uuid.UUID
		var vec pgvector.Vector
		if err := rows.Scan(&identityID, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		byID[identityID] = append(byID[identityID], vec.Slice())
	}

	for i := range identities {
		identities[i].Embeddings = byID[identities[i].ID]
	}
	return identities, nil
}

// --- Face Embeddings ---

func (s *PostgresStore) CountEmbeddings(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_embeddings WHERE identity_id = $1`, identityID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStore) AddFaceEmbedding(ctx context.Context, identityID uuid.UUID, embedding []float32, quality float32, sourceKey string) (*models.FaceEmbedding, error) {
	fe := &models.FaceEmbedding{
		ID:         uuid.New(),
		IdentityID: identityID,
		Embedding:  embedding,
		Quality:    quality,
		SourceKey:  sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_embeddings (id, identity_id, embedding, quality, source_key)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		fe.ID, fe.IdentityID, vec, fe.Quality, fe.SourceKey,
	).Scan(&fe.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add face embedding: %w", err)
	}
	return fe, nil
}

func (s *PostgresStore) ListFaceEmbeddings(ctx context.Context, identityID uuid.UUID) ([]models.FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, quality, source_key, created_at
		 FROM face_embeddings WHERE identity_id = $1 ORDER BY created_at DESC`,
		identityID)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var faces []models.FaceEmbedding
	for rows.Next() {
		var fe models.FaceEmbedding
		if err := rows.Scan(&fe.ID, &fe.IdentityID, &fe.Quality, &fe.SourceKey, &fe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		faces = append(faces, fe)
	}
	return faces, nil
}

func (s *PostgresStore) DeleteFaceEmbedding(ctx context.Context, identityID, faceID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM face_embeddings WHERE id = $1 AND identity_id = $2`, faceID, identityID)
	if err != nil {
		return fmt.Errorf("delete face embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("face embedding not found")
	}
	return nil
}

// SearchMatch is one nearest-neighbour hit from SearchFaces.
type SearchMatch struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Distance   float32   `json:"distance"`
}

// SearchFaces finds active identities whose stored embeddings are within
// tolerance (L2) of the query, nearest first. Used by the photo
// identification endpoint; the live pipeline matches in memory instead.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, tolerance float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT fe.identity_id, i.name, fe.embedding <-> $1 AS distance
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 WHERE i.is_active AND fe.embedding <-> $1 <= $2
		 ORDER BY fe.embedding <-> $1
		 LIMIT $3`,
		vec, tolerance, limit)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.IdentityID, &m.Name, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// --- Attendance ---

func (s *PostgresStore) GetDayRecord(ctx context.Context, identityID uuid.UUID, date time.Time) (*models.DayRecord, error) {
	r := &models.DayRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, identity_id, date, check_in_time, check_out_time, check_in_confidence, check_out_confidence
		 FROM attendance_records WHERE identity_id = $1 AND date = $2`,
		identityID, date,
	).Scan(&r.ID, &r.IdentityID, &r.Date, &r.CheckInTime, &r.CheckOutTime,
		&r.CheckInConfidence, &r.CheckOutConfidence)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get day record: %w", err)
	}
	return r, nil
}

// CheckIn sets the check-in timestamp for (identity, date) only if it is not
// already set. The conditional upsert makes the write safe under concurrent
// attempts; the returned bool reports whether this call changed state.
func (s *PostgresStore) CheckIn(ctx context.Context, identityID uuid.UUID, date, t time.Time, confidence float32) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_records (id, identity_id, date, check_in_time, check_in_confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (identity_id, date) DO UPDATE
		 SET check_in_time = EXCLUDED.check_in_time,
		     check_in_confidence = EXCLUDED.check_in_confidence
		 WHERE attendance_records.check_in_time IS NULL`,
		uuid.New(), identityID, date, t, confidence)
	if err != nil {
		return false, fmt.Errorf("check in: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CheckOut sets the check-out timestamp only when a check-in exists and no
// check-out does. Same conditional-write contract as CheckIn.
func (s *PostgresStore) CheckOut(ctx context.Context, identityID uuid.UUID, date, t time.Time, confidence float32) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attendance_records
		 SET check_out_time = $1, check_out_confidence = $2
		 WHERE identity_id = $3 AND date = $4
		   AND check_in_time IS NOT NULL AND check_out_time IS NULL`,
		t, confidence, identityID, date)
	if err != nil {
		return false, fmt.Errorf("check out: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordRow is a day record joined with its identity's name for listings.
type RecordRow struct {
	models.DayRecord
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
}

func (s *PostgresStore) QueryRecords(ctx context.Context, identityID *uuid.UUID, from, to *time.Time, limit, offset int) ([]RecordRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if identityID != nil {
		baseWhere += fmt.Sprintf(" AND r.identity_id = $%d", argIdx)
		args = append(args, *identityID)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND r.date >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND r.date <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM attendance_records r " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT r.id, r.identity_id, r.date, r.check_in_time, r.check_out_time,
		        r.check_in_confidence, r.check_out_confidence, i.name, i.employee_id
		 FROM attendance_records r
		 JOIN identities i ON i.id = r.identity_id
		 %s ORDER BY r.date DESC, i.name LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.ID, &r.IdentityID, &r.Date, &r.CheckInTime, &r.CheckOutTime,
			&r.CheckInConfidence, &r.CheckOutConfidence, &r.Name, &r.EmployeeID); err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, total, nil
}

// DaySummary counts identities by attendance state for one date.
type DaySummary struct {
	Date       time.Time `json:"date"`
	Total      int       `json:"total"`
	CheckedIn  int       `json:"checked_in"`
	Completed  int       `json:"completed"`
	NoRecord   int       `json:"no_record"`
}

func (s *PostgresStore) SummarizeDay(ctx context.Context, date time.Time) (*DaySummary, error) {
	sum := &DaySummary{Date: date}
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM identities WHERE is_active),
		   COUNT(*) FILTER (WHERE r.check_in_time IS NOT NULL AND r.check_out_time IS NULL),
		   COUNT(*) FILTER (WHERE r.check_in_time IS NOT NULL AND r.check_out_time IS NOT NULL)
		 FROM attendance_records r
		 JOIN identities i ON i.id = r.identity_id
		 WHERE r.date = $1 AND i.is_active`,
		date,
	).Scan(&sum.Total, &sum.CheckedIn, &sum.Completed)
	if err != nil {
		return nil, fmt.Errorf("summarize day: %w", err)
	}
	sum.NoRecord = sum.Total - sum.CheckedIn - sum.Completed
	if sum.NoRecord < 0 {
		sum.NoRecord = 0
	}
	return sum, nil
}

// --- Attendance log ---

// AppendLog inserts one append-only log row. Nothing ever updates or
// deletes these.
func (s *PostgresStore) AppendLog(ctx context.Context, entry models.LogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_logs (id, identity_id, timestamp, action, outcome, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.IdentityID, entry.Timestamp, entry.Action, entry.Outcome, entry.Confidence)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryLogs(ctx context.Context, identityID *uuid.UUID, from, to *time.Time, limit, offset int) ([]models.LogEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if identityID != nil {
		baseWhere += fmt.Sprintf(" AND identity_id = $%d", argIdx)
		args = append(args, *identityID)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_logs "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, identity_id, timestamp, action, outcome, confidence
		 FROM attendance_logs %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.Timestamp, &e.Action, &e.Outcome, &e.Confidence); err != nil {
			return nil, 0, fmt.Errorf("scan log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

// --- Cameras ---

func (s *PostgresStore) CreateCamera(ctx context.Context, cam *models.Camera) error {
	cam.ID = uuid.New()
	cam.Status = models.CameraStatusStopped
	if cam.Action == "" {
		cam.Action = models.ActionAuto
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO cameras (id, name, url, camera_type, location, fps, action, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		cam.ID, cam.Name, cam.URL, cam.CameraType, cam.Location, cam.FPS, cam.Action, cam.Status,
	).Scan(&cam.CreatedAt, &cam.UpdatedAt)
}

func (s *PostgresStore) GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error) {
	cam := &models.Camera{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, url, camera_type, location, fps, action, status, error_message, created_at, updated_at
		 FROM cameras WHERE id = $1`, id,
	).Scan(&cam.ID, &cam.Name, &cam.URL, &cam.CameraType, &cam.Location, &cam.FPS,
		&cam.Action, &cam.Status, &cam.ErrorMessage, &cam.CreatedAt, &cam.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return cam, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, camera_type, location, fps, action, status, error_message, created_at, updated_at
		 FROM cameras ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var cam models.Camera
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.URL, &cam.CameraType, &cam.Location, &cam.FPS,
			&cam.Action, &cam.Status, &cam.ErrorMessage, &cam.CreatedAt, &cam.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

func (s *PostgresStore) UpdateCameraStatus(ctx context.Context, id uuid.UUID, status models.CameraStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cameras SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3`,
		status, errMsg, id)
	return err
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("camera not found")
	}
	return nil
}
