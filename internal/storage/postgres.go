package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/vision"
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

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, name string, role models.Role) (*models.User, error) {
	u := &models.User{Name: name, Role: role}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, role) VALUES ($1, $2) RETURNING id, created_at`,
		u.Name, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.name, u.role, u.created_at,
		        (SELECT COUNT(*) FROM face_embeddings fe WHERE fe.user_id = u.id)
		 FROM users u WHERE u.id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt, &u.FaceCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.name, u.role, u.created_at,
		        (SELECT COUNT(*) FROM face_embeddings fe WHERE fe.user_id = u.id)
		 FROM users u ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt, &u.FaceCount); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, name string, role models.Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET name = $1, role = $2 WHERE id = $3`, name, role, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// DeleteUser removes the user; the embeddings cascade in schema.
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// AdminExists reports whether at least one administrator is enrolled.
// The first-run enrollment flow keys off this.
func (s *PostgresStore) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, models.RoleAdmin,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("admin exists: %w", err)
	}
	return exists, nil
}

// --- Face embeddings ---

// AddFaceEmbedding stores one enrollment sample. The vector must
// already be L2-normalized; matching relies on that.
func (s *PostgresStore) AddFaceEmbedding(ctx context.Context, userID int64, embedding []float32, sourceKey string) (*models.EmbeddingSample, error) {
	fe := &models.EmbeddingSample{
		UserID:    userID,
		Embedding: embedding,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_embeddings (user_id, embedding, source_key) VALUES ($1, $2, $3) RETURNING id, created_at`,
		fe.UserID, vec, fe.SourceKey,
	).Scan(&fe.ID, &fe.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add face embedding: %w", err)
	}
	return fe, nil
}

func (s *PostgresStore) DeleteFaceEmbedding(ctx context.Context, userID, faceID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM face_embeddings WHERE id = $1 AND user_id = $2`, faceID, userID)
	if err != nil {
		return fmt.Errorf("delete face embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("face embedding not found")
	}
	return nil
}

// Samples loads the full gallery: every stored embedding of every
// user. The engine matches against all of them each tick.
func (s *PostgresStore) Samples(ctx context.Context) ([]vision.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, embedding FROM face_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	defer rows.Close()

	var samples []vision.Sample
	for rows.Next() {
		var userID int64
		var vec pgvector.Vector
		if err := rows.Scan(&userID, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery sample: %w", err)
		}
		samples = append(samples, vision.Sample{UserID: userID, Embedding: vec.Slice()})
	}
	return samples, nil
}

// SearchSimilar finds enrolled users close to the probe embedding.
// Used by the enrollment flow to warn about near-duplicate captures;
// the login match never goes through the index.
func (s *PostgresStore) SearchSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT fe.user_id, u.name, 1 - (fe.embedding <=> $1) AS score
		FROM face_embeddings fe
		JOIN users u ON u.id = fe.user_id
		WHERE 1 - (fe.embedding <=> $1) >= $2
		ORDER BY fe.embedding <=> $1
		LIMIT $3`, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var matches []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		if err := rows.Scan(&m.UserID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan similar match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

type SimilarMatch struct {
	UserID int64   `json:"user_id"`
	Name   string  `json:"name"`
	Score  float32 `json:"score"`
}

// --- Access logs ---

func (s *PostgresStore) CreateAccessLog(ctx context.Context, log *models.AccessLog) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO access_logs (timestamp, user_id, status, snapshot_key, confidence)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		log.Timestamp, log.UserID, log.Status, log.SnapshotKey, log.Confidence,
	).Scan(&log.ID)
}

func (s *PostgresStore) QueryAccessLogs(ctx context.Context, from, to *time.Time, userID *int64, limit, offset int) ([]models.AccessLog, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if from != nil {
		baseWhere += fmt.Sprintf(" AND al.timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND al.timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}
	if userID != nil {
		baseWhere += fmt.Sprintf(" AND al.user_id = $%d", argIdx)
		args = append(args, *userID)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM access_logs al " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access logs: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT al.id, al.timestamp, al.user_id, COALESCE(u.name, ''), al.status, al.snapshot_key, al.confidence
		 FROM access_logs al LEFT JOIN users u ON u.id = al.user_id
		 %s ORDER BY al.timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query access logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AccessLog
	for rows.Next() {
		var l models.AccessLog
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.UserID, &l.UserName, &l.Status, &l.SnapshotKey, &l.Confidence); err != nil {
			return nil, 0, fmt.Errorf("scan access log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, nil
}

// PurgeAccessLogs deletes every access log row and returns the count.
func (s *PostgresStore) PurgeAccessLogs(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM access_logs`)
	if err != nil {
		return 0, fmt.Errorf("purge access logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Unauthorized attempts ---

func (s *PostgresStore) CreateUnauthorizedAttempt(ctx context.Context, at *models.UnauthorizedAttempt) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO unauthorized_attempts (timestamp, snapshot_key, confidence)
		 VALUES ($1, $2, $3) RETURNING id`,
		at.Timestamp, at.SnapshotKey, at.Confidence,
	).Scan(&at.ID)
}

func (s *PostgresStore) QueryUnauthorizedAttempts(ctx context.Context, from, to *time.Time, limit, offset int) ([]models.UnauthorizedAttempt, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

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
	countQuery := "SELECT COUNT(*) FROM unauthorized_attempts " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count unauthorized attempts: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, timestamp, snapshot_key, confidence FROM unauthorized_attempts
		 %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query unauthorized attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.UnauthorizedAttempt
	for rows.Next() {
		var a models.UnauthorizedAttempt
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.SnapshotKey, &a.Confidence); err != nil {
			return nil, 0, fmt.Errorf("scan unauthorized attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, total, nil
}

// DeleteUnauthorizedAttempt removes one attempt row and returns its
// snapshot key so the caller can clean up the stored image.
func (s *PostgresStore) DeleteUnauthorizedAttempt(ctx context.Context, id int64) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx,
		`DELETE FROM unauthorized_attempts WHERE id = $1 RETURNING snapshot_key`,
		id,
	).Scan(&key)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("attempt not found")
		}
		return "", fmt.Errorf("delete unauthorized attempt: %w", err)
	}
	return key, nil
}
