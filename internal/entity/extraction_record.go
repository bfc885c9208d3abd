package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/equisheet/scoresheet-tracker/constants"
)

// ExtractionRecord is one immutable snapshot of a single extraction attempt.
// A document accumulates one record per attempt; records are inserted once
// and never updated or deleted.
type ExtractionRecord struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	OwnerID    uuid.UUID

	Status           constants.ExtractionStatus
	ExtractedData    []byte // JSON, extract.SheetFields shape
	ConfidenceScores []byte // JSON, extract.Summary shape
	ExtractionError  *string
	RawExcerpt       string // bounded excerpt of the raw model answer

	CreatedAt time.Time
}
