package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/equisheet/scoresheet-tracker/internal/entity"
)

// RawExcerptLimit bounds the stored raw-response excerpt.
const RawExcerptLimit = 2000

// DocumentRepository reads and mutates the documents table. Create exists for
// the out-of-scope upload flow, local tooling and tests; the orchestrator
// itself only loads and transitions.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)

	// MarkExtracting enters the extracting state and stamps started-at.
	// Callers treat a failure here as advisory.
	MarkExtracting(ctx context.Context, id uuid.UUID, startedAt time.Time) error

	// FinishReview transitions extracting -> awaiting_verification with the
	// overall confidence of the attempt, clearing any prior error.
	FinishReview(ctx context.Context, id uuid.UUID, confidence float64) error

	// FinishParseFailure transitions extracting -> extraction_failed: a soft,
	// expected outcome carrying the fallback confidence and the parser's
	// classification message.
	FinishParseFailure(ctx context.Context, id uuid.UUID, confidence float64, message string) error

	// FinishError transitions to error with a non-empty message. Used only by
	// the orchestrator's top-level catch.
	FinishError(ctx context.Context, id uuid.UUID, message string) error
}

// ExtractionRepository persists immutable extraction records: inserts and
// reads only, no updates, no deletes.
type ExtractionRepository interface {
	Create(ctx context.Context, rec *entity.ExtractionRecord) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.ExtractionRecord, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) ([]*entity.ExtractionRecord, error)
}

// Store bundles both repositories plus lifecycle hooks, so callers wire one
// value regardless of backend.
type Store interface {
	Documents() DocumentRepository
	Extractions() ExtractionRepository
	HealthCheck(ctx context.Context) error
	Close() error
}
