package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/entity"
)

// SQLiteStore is the embedded backend: local runs, the one-shot CLI, and
// package tests. Timestamps are stored as RFC3339 text.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	horse_id TEXT,
	horse_name TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	test_date TEXT NOT NULL DEFAULT '',
	test_level TEXT NOT NULL DEFAULT '',
	discipline TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	extraction_confidence REAL,
	extraction_error TEXT,
	extraction_started_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS extraction_records (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	extracted_data TEXT NOT NULL,
	confidence_scores TEXT NOT NULL,
	extraction_error TEXT,
	raw_excerpt TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extraction_records_document
	ON extraction_records (document_id, created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_records_owner
	ON extraction_records (owner_id, created_at);
`

// OpenSQLite opens (or creates) the store at dsn, e.g. "file:scores.db" or
// "file::memory:?cache=shared", and bootstraps the schema.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite misbehaves with concurrent writers on one file
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, sqliteDDL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	logger.Info("sqlite store ready", "dsn", dsn)
	return &SQLiteStore{db: conn, logger: logger}, nil
}

func (s *SQLiteStore) Documents() DocumentRepository     { return &sqliteDocuments{s} }
func (s *SQLiteStore) Extractions() ExtractionRepository { return &sqliteExtractions{s} }
func (s *SQLiteStore) Close() error                      { return s.db.Close() }

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type sqliteDocuments struct{ s *SQLiteStore }

func (r *sqliteDocuments) Create(ctx context.Context, doc *entity.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = constants.DocStatusPending
	}
	var horseID any
	if doc.HorseID != nil {
		horseID = doc.HorseID.String()
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, owner_id, horse_id, horse_name, file_name, test_date, test_level, discipline,
			 status, extraction_confidence, extraction_error, extraction_started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
		doc.ID.String(), doc.OwnerID.String(), horseID,
		doc.HorseName, doc.FileName, doc.TestDate, doc.TestLevel, doc.Discipline,
		string(doc.Status), fmtTime(doc.CreatedAt), fmtTime(doc.UpdatedAt))
	if err != nil {
		r.s.logger.Error("document create failed", "document_id", doc.ID, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return nil
}

func (r *sqliteDocuments) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, horse_id, horse_name, file_name, test_date, test_level, discipline,
		       status, extraction_confidence, extraction_error, extraction_started_at, created_at, updated_at
		FROM documents WHERE id = ?`, id.String())

	var (
		doc        entity.Document
		idStr      string
		ownerStr   string
		horseID    sql.NullString
		status     string
		conf       sql.NullFloat64
		extErr     sql.NullString
		startedAt  sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&idStr, &ownerStr, &horseID, &doc.HorseName, &doc.FileName,
		&doc.TestDate, &doc.TestLevel, &doc.Discipline, &status, &conf, &extErr,
		&startedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}

	doc.ID, _ = uuid.Parse(idStr)
	doc.OwnerID, _ = uuid.Parse(ownerStr)
	if horseID.Valid {
		if h, err := uuid.Parse(horseID.String); err == nil {
			doc.HorseID = &h
		}
	}
	doc.Status = constants.DocumentStatus(status)
	if conf.Valid {
		doc.ExtractionConfidence = &conf.Float64
	}
	if extErr.Valid {
		doc.ExtractionError = &extErr.String
	}
	if startedAt.Valid {
		if ts, err := parseTime(startedAt.String); err == nil {
			doc.ExtractionStartedAt = &ts
		}
	}
	doc.CreatedAt, _ = parseTime(createdAt)
	doc.UpdatedAt, _ = parseTime(updatedAt)
	return &doc, nil
}

func (r *sqliteDocuments) MarkExtracting(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = ?, extraction_started_at = ?, updated_at = ?
		WHERE id = ?`,
		string(constants.DocStatusExtracting), fmtTime(startedAt.UTC()), fmtTime(time.Now().UTC()), id.String())
}

func (r *sqliteDocuments) FinishReview(ctx context.Context, id uuid.UUID, confidence float64) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = ?, extraction_confidence = ?, extraction_error = NULL, updated_at = ?
		WHERE id = ?`,
		string(constants.DocStatusAwaitingVerification), confidence, fmtTime(time.Now().UTC()), id.String())
}

func (r *sqliteDocuments) FinishParseFailure(ctx context.Context, id uuid.UUID, confidence float64, message string) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = ?, extraction_confidence = ?, extraction_error = ?, updated_at = ?
		WHERE id = ?`,
		string(constants.DocStatusExtractionFailed), confidence, message, fmtTime(time.Now().UTC()), id.String())
}

func (r *sqliteDocuments) FinishError(ctx context.Context, id uuid.UUID, message string) error {
	return r.update(ctx, id, `
		UPDATE documents
		SET status = ?, extraction_error = ?, updated_at = ?
		WHERE id = ?`,
		string(constants.DocStatusError), message, fmtTime(time.Now().UTC()), id.String())
}

func (r *sqliteDocuments) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.s.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.s.logger.Error("document update failed", "document_id", id, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type sqliteExtractions struct{ s *SQLiteStore }

func (r *sqliteExtractions) Create(ctx context.Context, rec *entity.ExtractionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.RawExcerpt) > RawExcerptLimit {
		rec.RawExcerpt = rec.RawExcerpt[:RawExcerptLimit]
	}
	var extErr any
	if rec.ExtractionError != nil {
		extErr = *rec.ExtractionError
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO extraction_records
			(id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.DocumentID.String(), rec.OwnerID.String(), string(rec.Status),
		string(rec.ExtractedData), string(rec.ConfidenceScores), extErr, rec.RawExcerpt, fmtTime(rec.CreatedAt))
	if err != nil {
		r.s.logger.Error("extraction record insert failed", "document_id", rec.DocumentID, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return nil
}

func (r *sqliteExtractions) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ExtractionRecord, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at
		FROM extraction_records WHERE document_id = ? ORDER BY created_at`, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *sqliteExtractions) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) ([]*entity.ExtractionRecord, error) {
	q := `
		SELECT id, document_id, owner_id, status, extracted_data, confidence_scores, extraction_error, raw_excerpt, created_at
		FROM extraction_records WHERE owner_id = ?`
	args := []any{ownerID.String()}
	if from != nil {
		q += " AND created_at >= ?"
		args = append(args, fmtTime(from.UTC()))
	}
	if to != nil {
		q += " AND created_at <= ?"
		args = append(args, fmtTime(to.UTC()))
	}
	q += " ORDER BY created_at"

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*entity.ExtractionRecord, error) {
	var out []*entity.ExtractionRecord
	for rows.Next() {
		var (
			rec       entity.ExtractionRecord
			idStr     string
			docStr    string
			ownerStr  string
			status    string
			data      string
			scores    string
			extErr    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&idStr, &docStr, &ownerStr, &status, &data, &scores, &extErr, &rec.RawExcerpt, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrPersistence, err)
		}
		rec.ID, _ = uuid.Parse(idStr)
		rec.DocumentID, _ = uuid.Parse(docStr)
		rec.OwnerID, _ = uuid.Parse(ownerStr)
		rec.Status = constants.ExtractionStatus(status)
		rec.ExtractedData = []byte(data)
		rec.ConfidenceScores = []byte(scores)
		if extErr.Valid {
			rec.ExtractionError = &extErr.String
		}
		rec.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Fixed-width fractional seconds keep lexicographic order identical to
// chronological order, which the range queries and ORDER BY rely on.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(sqliteTimeLayout, s) }
