package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/entity"
)

// PostgresConfig mirrors the pool knobs exposed through the environment.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore is the production backend on a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool and verifies connectivity.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "scoresheet-tracker"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Documents() DocumentRepository     { return &pgDocuments{s} }
func (s *PostgresStore) Extractions() ExtractionRepository { return &pgExtractions{s} }

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgDocuments struct{ s *PostgresStore }

func (r *pgDocuments) Create(ctx context.Context, doc *entity.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = constants.DocStatusPending
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO documents
			(id, owner_id, horse_id, horse_name, file_name, test_date, test_level, discipline,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.OwnerID, doc.HorseID,
		doc.HorseName, doc.FileName, doc.TestDate, doc.TestLevel, doc.Discipline,
		string(doc.Status), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		r.s.logger.Error("document create failed", "document_id", doc.ID, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return nil
}

func (r *pgDocuments) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var (
		doc    entity.Document
		status string
	)
	err := r.s.pool.QueryRow(ctx, `
		SELECT id, owner_id, horse_id, horse_name, file_name, test_date, test_level, discipline,
		       status, extraction_confidence, extraction_error, extraction_started_at, created_at, updated_at
		FROM documents WHERE id = $1`, id).Scan(
		&doc.ID, &doc.OwnerID, &doc.HorseID, &doc.HorseName, &doc.FileName,
		&doc.TestDate, &doc.TestLevel, &doc.Discipline, &status,
		&doc.ExtractionConfidence, &doc.ExtractionError, &doc.ExtractionStartedAt,
		&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	doc.Status = constants.DocumentStatus(status)
	return &doc, nil
}

func (r *pgDocuments) MarkExtracting(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = $1, extraction_started_at = $2, updated_at = now()
		WHERE id = $3`,
		string(constants.DocStatusExtracting), startedAt.UTC(), id)
}

func (r *pgDocuments) FinishReview(ctx context.Context, id uuid.UUID, confidence float64) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = $1, extraction_confidence = $2, extraction_error = NULL, updated_at = now()
		WHERE id = $3`,
		string(constants.DocStatusAwaitingVerification), confidence, id)
}

func (r *pgDocuments) FinishParseFailure(ctx context.Context, id uuid.UUID, confidence float64, message string) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = $1, extraction_confidence = $2, extraction_error = $3, updated_at = now()
		WHERE id = $4`,
		string(constants.DocStatusExtractionFailed), confidence, message, id)
}

func (r *pgDocuments) FinishError(ctx context.Context, id uuid.UUID, message string) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = $1, extraction_error = $2, updated_at = now()
		WHERE id = $3`,
		string(constants.DocStatusError), message, id)
}

func (r *pgDocuments) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.s.pool.Exec(ctx, query, args...)
	if err != nil {
		r.s.logger.Error("document update failed", "document_id", id, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

type pgExtractions struct{ s *PostgresStore }

func (r *pgExtractions) Create(ctx context.Context, rec *entity.ExtractionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.RawExcerpt) > RawExcerptLimit {
		rec.RawExcerpt = rec.RawExcerpt[:RawExcerptLimit]
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO extraction_records
			(id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.DocumentID, rec.OwnerID, string(rec.Status),
		rec.ExtractedData, rec.ConfidenceScores, rec.ExtractionError, rec.RawExcerpt, rec.CreatedAt)
	if err != nil {
		r.s.logger.Error("extraction record insert failed", "document_id", rec.DocumentID, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return nil
}

func (r *pgExtractions) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ExtractionRecord, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at
		FROM extraction_records WHERE document_id = $1 ORDER BY created_at`, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	defer rows.Close()
	return scanPgRecords(rows)
}

func (r *pgExtractions) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) ([]*entity.ExtractionRecord, error) {
	q := `
		SELECT id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at
		FROM extraction_records WHERE owner_id = $1`
	args := []any{ownerID}
	if from != nil {
		args = append(args, from.UTC())
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, to.UTC())
		q += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	q += " ORDER BY created_at"

	rows, err := r.s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	defer rows.Close()
	return scanPgRecords(rows)
}

func scanPgRecords(rows pgx.Rows) ([]*entity.ExtractionRecord, error) {
	var out []*entity.ExtractionRecord
	for rows.Next() {
		var (
			rec    entity.ExtractionRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.OwnerID, &status,
			&rec.ExtractedData, &rec.ConfidenceScores, &rec.ExtractionError,
			&rec.RawExcerpt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
		}
		rec.Status = constants.ExtractionStatus(status)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
