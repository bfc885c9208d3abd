// Package pipeline sequences one extraction run: load document, mark it
// extracting, exchange the service-identity assertion for a token, call the
// multimodal model, parse and score the answer, persist an immutable
// extraction record, and transition the document. The orchestrator owns the
// single top-level failure handler; nothing below it escapes to the caller
// except a missing document.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/entity"
	"github.com/equisheet/scoresheet-tracker/internal/extract"
	"github.com/equisheet/scoresheet-tracker/internal/repository"
	"github.com/equisheet/scoresheet-tracker/internal/trace"
)

// TokenSource yields a fresh bearer token for one invocation.
type TokenSource interface {
	Token(ctx context.Context, tr *trace.Trace) (string, error)
}

// ContentGenerator calls the multimodal model endpoint.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, token, instruction string, document []byte, mimeType string, tr *trace.Trace) (string, error)
}

// Result is the structured envelope returned to the transport layer. Both
// business success and parser-level failure are normal returns; only a
// missing document surfaces as an error from Extract.
type Result struct {
	Success      bool                 `json:"success"`
	ExtractionID uuid.UUID            `json:"extraction_id,omitempty"`
	Data         *extract.SheetFields `json:"data,omitempty"`
	Confidence   *extract.Summary     `json:"confidence,omitempty"`
	Message      string               `json:"message,omitempty"`
	Error        string               `json:"error,omitempty"`
	UserMessage  string               `json:"user_message,omitempty"`
	Internal     bool                 `json:"-"` // true when the top-level catch fired
	Trace        []trace.Entry        `json:"trace"`
}

type Orchestrator struct {
	logger *slog.Logger
	store  repository.Store
	auth   TokenSource
	model  ContentGenerator
}

func NewOrchestrator(store repository.Store, auth TokenSource, model ContentGenerator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger, store: store, auth: auth, model: model}
}

// Extract runs the full pipeline for one document. The returned error is
// non-nil only for an unknown document id (no side effects in that case).
func (o *Orchestrator) Extract(ctx context.Context, documentID uuid.UUID, document []byte) (*Result, error) {
	tr := trace.New(o.logger)
	tr.Info("extract.start", "document_id", documentID.String(), "document_bytes", len(document))

	// 1) load; missing document is the one immediate, side-effect-free exit
	doc, err := o.store.Documents().GetByID(ctx, documentID)
	if errors.Is(err, common.ErrNotFound) {
		tr.Error("extract.document_not_found", "document_id", documentID.String())
		return nil, common.ErrNotFound
	}
	if err != nil {
		tr.Error("extract.document_load_failed", "error", err.Error())
		return o.failWithoutDocument(tr, err), nil
	}

	if doc.Status.Terminal() {
		tr.Info("extract.reattempt", "previous_status", string(doc.Status))
	}

	docCtx := extract.DocumentContext{
		HorseName:  doc.HorseName,
		FileName:   doc.FileName,
		TestDate:   doc.TestDate,
		TestLevel:  doc.TestLevel,
		Discipline: doc.Discipline,
	}

	// 2) best-effort transition to extracting; advisory only
	if err := o.store.Documents().MarkExtracting(ctx, doc.ID, time.Now()); err != nil {
		tr.Warn("extract.mark_extracting_failed", "error", err.Error())
	} else {
		tr.Info("extract.status", "status", string(constants.DocStatusExtracting))
	}

	// 3) fresh token per invocation, never cached
	token, err := o.auth.Token(ctx, tr)
	if err != nil {
		return o.fail(ctx, doc, tr, err), nil
	}

	// 4-5) instruct and call the model
	instruction := extract.BuildInstruction(docCtx)
	mime := constants.MIMEForFilename(doc.FileName)
	answer, err := o.model.GenerateContent(ctx, token, instruction, document, mime, tr)
	if err != nil {
		return o.fail(ctx, doc, tr, err), nil
	}

	// 6) resilient parse; never errors
	outcome := extract.Parse(answer, docCtx, o.logger)
	tr.Info("extract.parse", "method", outcome.Method, "success", outcome.Success, "error_tag", outcome.ErrTag)

	// 7) deterministic confidence
	var summary extract.Summary
	if outcome.Success {
		summary = extract.Score(outcome.Fields)
	} else {
		summary = extract.FallbackSummary(outcome.Fields)
	}
	tr.Info("extract.confidence", "overall", summary.Overall,
		"low_fields", len(summary.LowConfidenceFields))

	// 8) context defaults fill blanks; model-supplied values win
	merged := outcome.Fields
	merged.MergeContext(docCtx)

	// 9) critical write: the immutable extraction record
	rec, err := o.persistRecord(ctx, doc, merged, summary, outcome, answer)
	if err != nil {
		return o.fail(ctx, doc, tr, err), nil
	}
	tr.Info("extract.record_persisted", "extraction_id", rec.ID.String())

	// 10) document mirrors the latest record
	if outcome.Success {
		err = o.store.Documents().FinishReview(ctx, doc.ID, summary.Overall)
	} else {
		err = o.store.Documents().FinishParseFailure(ctx, doc.ID, summary.Overall,
			fmt.Sprintf("%s: %s", outcome.ErrTag, outcome.ErrMessage))
	}
	if err != nil {
		return o.fail(ctx, doc, tr, err), nil
	}

	// 11) structured result, both branches non-exceptional
	if outcome.Success {
		tr.Success("extract.done", "extraction_id", rec.ID.String(), "confidence", summary.Overall)
		return &Result{
			Success:      true,
			ExtractionID: rec.ID,
			Data:         &merged,
			Confidence:   &summary,
			Message:      fmt.Sprintf("extraction complete, %d fields scored, awaiting verification", len(summary.Fields)),
			Trace:        tr.Entries(),
		}, nil
	}
	tr.Warn("extract.done_with_parse_failure", "extraction_id", rec.ID.String(), "error_tag", outcome.ErrTag)
	return &Result{
		Success:      false,
		ExtractionID: rec.ID,
		Data:         &merged,
		Confidence:   &summary,
		Error:        outcome.ErrTag,
		UserMessage:  "The score sheet could not be read automatically. Please upload a clearer scan.",
		Trace:        tr.Entries(),
	}, nil
}

func (o *Orchestrator) persistRecord(ctx context.Context, doc *entity.Document, fields extract.SheetFields, summary extract.Summary, outcome extract.ParseOutcome, rawAnswer string) (*entity.ExtractionRecord, error) {
	dataJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: encode extracted data: %w", common.ErrPersistence, err)
	}
	scoresJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("%w: encode confidence scores: %w", common.ErrPersistence, err)
	}

	rec := &entity.ExtractionRecord{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		OwnerID:          doc.OwnerID,
		Status:           constants.ExtractionStatusExtracted,
		ExtractedData:    dataJSON,
		ConfidenceScores: scoresJSON,
		RawExcerpt:       rawAnswer,
	}
	if !outcome.Success {
		rec.Status = constants.ExtractionStatusFailed
		msg := fmt.Sprintf("%s: %s", outcome.ErrTag, outcome.ErrMessage)
		rec.ExtractionError = &msg
	}
	if err := o.store.Extractions().Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// fail is the single top-level catch: record the fault on the document,
// return a diagnostic envelope with the full trace. Never re-raises.
func (o *Orchestrator) fail(ctx context.Context, doc *entity.Document, tr *trace.Trace, cause error) *Result {
	tr.Error("extract.failed", "error", cause.Error())
	if err := o.store.Documents().FinishError(ctx, doc.ID, cause.Error()); err != nil {
		// the document may be left in extracting; alertable, nothing else to do
		tr.Error("extract.error_status_write_failed", "error", err.Error())
		o.logger.Error("failed to record error status", "document_id", doc.ID, "error", err)
	}
	return &Result{
		Success:     false,
		Error:       cause.Error(),
		UserMessage: "Extraction failed due to an internal error. The document was not processed.",
		Internal:    true,
		Trace:       tr.Entries(),
	}
}

func (o *Orchestrator) failWithoutDocument(tr *trace.Trace, cause error) *Result {
	return &Result{
		Success:     false,
		Error:       cause.Error(),
		UserMessage: "Extraction failed due to an internal error. The document was not processed.",
		Internal:    true,
		Trace:       tr.Entries(),
	}
}
