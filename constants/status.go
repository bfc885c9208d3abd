package constants

// DocumentStatus is the canonical lifecycle status for rows in documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocStatusPending              DocumentStatus = "pending"               // set by the upload flow, before extraction
	DocStatusExtracting           DocumentStatus = "extracting"            // extraction run in progress
	DocStatusAwaitingVerification DocumentStatus = "awaiting_verification" // parsed OK, queued for human review
	DocStatusExtractionFailed     DocumentStatus = "extraction_failed"     // parser classified the answer as unusable (soft failure)
	DocStatusError                DocumentStatus = "error"                 // auth/transport/persistence fault escaped the pipeline
)

// ExtractionStatus is the status stored on an immutable extraction record.
type ExtractionStatus string

const (
	ExtractionStatusExtracted ExtractionStatus = "extracted"
	ExtractionStatusFailed    ExtractionStatus = "failed"
)

// Terminal reports whether a document status is terminal from this
// subsystem's perspective. The review workflow may transition further.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocStatusAwaitingVerification, DocStatusExtractionFailed, DocStatusError:
		return true
	}
	return false
}
