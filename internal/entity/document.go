package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/equisheet/scoresheet-tracker/constants"
)

// Document tracks one uploaded competition sheet's lifecycle and the outcome
// of its most recent extraction. Created by the upload flow; this subsystem
// only mutates status, confidence and error fields, and never deletes.
type Document struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	HorseID *uuid.UUID

	// Context fields supplied at upload time.
	HorseName  string
	FileName   string
	TestDate   string // YYYY-MM-DD as declared
	TestLevel  string
	Discipline string

	Status               constants.DocumentStatus
	ExtractionConfidence *float64 // mirrors the latest extraction record
	ExtractionError      *string
	ExtractionStartedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
