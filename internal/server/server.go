// Package server exposes the extraction pipeline over HTTP. One POST route
// accepts a document id plus base64 file content and replies with the full
// structured result envelope, trace included, for every outcome.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/equisheet/scoresheet-tracker/constants"
	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/pipeline"
	"github.com/equisheet/scoresheet-tracker/internal/repository"
)

const defaultRequestTimeout = 180 * time.Second

// Extractor runs one extraction attempt for a stored document.
type Extractor interface {
	Extract(ctx context.Context, documentID uuid.UUID, document []byte) (*pipeline.Result, error)
}

type Server struct {
	logger    *slog.Logger
	extractor Extractor
	store     repository.Store
	http      *http.Server
}

func New(addr string, extractor Extractor, store repository.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger, extractor: extractor, store: store}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/extractions", s.handleExtract)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("server.listen", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ExtractRequest is the inbound payload. FileContent carries the scanned
// sheet bytes, standard base64.
type ExtractRequest struct {
	DocumentID  string `json:"document_id"`
	FileContent string `json:"file_content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST only"})
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad json: " + err.Error()})
		return
	}

	docID, err := uuid.Parse(strings.TrimSpace(req.DocumentID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad document_id"})
		return
	}

	document, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.FileContent))
	if err != nil || len(document) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad file_content"})
		return
	}
	if len(document) > constants.MaxDocumentMB<<20 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file_content exceeds size limit"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	res, err := s.extractor.Extract(ctx, docID, document)
	if errors.Is(err, common.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "document not found"})
		return
	}
	if err != nil {
		s.logger.Error("server.extract_failed", "document_id", docID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	// parser-level failure is a handled domain outcome, still 200; only the
	// top-level catch maps to 500
	code := http.StatusOK
	if res.Internal {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
