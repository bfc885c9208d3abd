package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/entity"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestDocument() *entity.Document {
	return &entity.Document{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		HorseName:  "Bella",
		FileName:   "scan-001.pdf",
		TestDate:   "2026-05-02",
		TestLevel:  "Elementary 40",
		Discipline: "Dressage",
		Status:     constants.DocStatusPending,
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	docs := s.Documents()

	doc := newTestDocument()
	require.NoError(t, docs.Create(ctx, doc))

	got, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocStatusPending, got.Status)
	assert.Equal(t, "Bella", got.HorseName)
	assert.Nil(t, got.ExtractionConfidence)
	assert.Nil(t, got.ExtractionError)

	started := time.Now().UTC()
	require.NoError(t, docs.MarkExtracting(ctx, doc.ID, started))
	got, err = docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocStatusExtracting, got.Status)
	require.NotNil(t, got.ExtractionStartedAt)
	assert.WithinDuration(t, started, *got.ExtractionStartedAt, time.Second)

	require.NoError(t, docs.FinishReview(ctx, doc.ID, 0.84))
	got, err = docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocStatusAwaitingVerification, got.Status)
	require.NotNil(t, got.ExtractionConfidence)
	assert.Equal(t, 0.84, *got.ExtractionConfidence)
	assert.Nil(t, got.ExtractionError)
}

func TestDocumentFailureTransitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	docs := s.Documents()

	t.Run("parse failure stores fallback confidence and message", func(t *testing.T) {
		doc := newTestDocument()
		require.NoError(t, docs.Create(ctx, doc))
		require.NoError(t, docs.MarkExtracting(ctx, doc.ID, time.Now()))
		require.NoError(t, docs.FinishParseFailure(ctx, doc.ID, 0.2, "unable_to_perform: model refused"))

		got, err := docs.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.DocStatusExtractionFailed, got.Status)
		require.NotNil(t, got.ExtractionError)
		assert.Contains(t, *got.ExtractionError, "unable_to_perform")
	})

	t.Run("error transition always carries a message", func(t *testing.T) {
		doc := newTestDocument()
		require.NoError(t, docs.Create(ctx, doc))
		require.NoError(t, docs.FinishError(ctx, doc.ID, "AUTH_ERROR: token exchange failed"))

		got, err := docs.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, constants.DocStatusError, got.Status)
		require.NotNil(t, got.ExtractionError)
		assert.NotEmpty(t, *got.ExtractionError)
	})
}

func TestGetByIDNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Documents().GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = s.Documents().MarkExtracting(context.Background(), uuid.New(), time.Now())
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestExtractionRecordsAccumulate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := newTestDocument()
	require.NoError(t, s.Documents().Create(ctx, doc))

	msg := "invalid_response"
	first := &entity.ExtractionRecord{
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusFailed,
		ExtractedData:    []byte(`{"is_fallback":true}`),
		ConfidenceScores: []byte(`{"overall":0.2}`),
		ExtractionError:  &msg,
		RawExcerpt:       "garbage answer",
		CreatedAt:        time.Now().UTC().Add(-time.Minute),
	}
	second := &entity.ExtractionRecord{
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusExtracted,
		ExtractedData:    []byte(`{"horse_name":"Bella"}`),
		ConfidenceScores: []byte(`{"overall":0.84}`),
		RawExcerpt:       `{"horse_name":"Bella"}`,
	}
	require.NoError(t, s.Extractions().Create(ctx, first))
	require.NoError(t, s.Extractions().Create(ctx, second))

	recs, err := s.Extractions().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, constants.ExtractionStatusFailed, recs[0].Status)
	require.NotNil(t, recs[0].ExtractionError)
	assert.Equal(t, "invalid_response", *recs[0].ExtractionError)
	assert.Equal(t, constants.ExtractionStatusExtracted, recs[1].Status)
	assert.Nil(t, recs[1].ExtractionError)
}

func TestExtractionRecordExcerptBounded(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := newTestDocument()
	require.NoError(t, s.Documents().Create(ctx, doc))

	rec := &entity.ExtractionRecord{
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusFailed,
		ExtractedData:    []byte(`{}`),
		ConfidenceScores: []byte(`{}`),
		RawExcerpt:       strings.Repeat("x", RawExcerptLimit*3),
	}
	require.NoError(t, s.Extractions().Create(ctx, rec))

	recs, err := s.Extractions().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].RawExcerpt, RawExcerptLimit)
}

func TestListByOwnerWindow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := newTestDocument()
	require.NoError(t, s.Documents().Create(ctx, doc))

	old := &entity.ExtractionRecord{
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusExtracted,
		ExtractedData:    []byte(`{}`),
		ConfidenceScores: []byte(`{}`),
		CreatedAt:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	recent := &entity.ExtractionRecord{
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusExtracted,
		ExtractedData:    []byte(`{}`),
		ConfidenceScores: []byte(`{}`),
		CreatedAt:        time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Extractions().Create(ctx, old))
	require.NoError(t, s.Extractions().Create(ctx, recent))

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recs, err := s.Extractions().ListByOwner(ctx, doc.OwnerID, &from, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, recent.ID, recs[0].ID)

	recs, err = s.Extractions().ListByOwner(ctx, doc.OwnerID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
