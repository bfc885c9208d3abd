// Package export produces XLSX workbooks from persisted extraction records so
// riders can review a season of sheets offline.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/equisheet/scoresheet-tracker/internal/extract"
	"github.com/equisheet/scoresheet-tracker/internal/repository"
)

// Service is a tiny façade over the extraction repository that produces XLSX
// bytes for exports.
type Service struct {
	extractions repository.ExtractionRepository
	logger      *slog.Logger
}

func NewService(extractions repository.ExtractionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{extractions: extractions, logger: logger}
}

// ExportExtractionsXLSX returns an XLSX workbook (as bytes) for the given
// owner and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all records for the owner.
func (s *Service) ExportExtractionsXLSX(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	recs, err := s.extractions.ListByOwner(ctx, ownerID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query extractions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Extracted At",
		"Horse",
		"Rider",
		"Event",
		"Test Level",
		"Percentage",
		"Movements",
		"Confidence",
		"Status",
		"Notes",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		var fields extract.SheetFields
		if err := json.Unmarshal(r.ExtractedData, &fields); err != nil {
			s.logger.Warn("export.decode_failed", "extraction_id", r.ID.String(), "error", err)
			continue
		}
		var summary extract.Summary
		_ = json.Unmarshal(r.ConfidenceScores, &summary)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.CreatedAt.UTC().Format("2006-01-02"))
		write(2, fields.HorseName)
		write(3, fields.RiderName)
		write(4, fields.EventName)
		write(5, fields.TestLevel)
		if fields.Percentage != nil {
			write(6, *fields.Percentage)
		} else {
			write(6, "")
		}
		write(7, movementSummary(fields.Movements))
		write(8, summary.Overall)
		write(9, string(r.Status))
		write(10, truncate(fields.Notes, 140))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "C", 20) // horse, rider
	_ = f.SetColWidth(sheet, "D", "E", 26) // event, level
	_ = f.SetColWidth(sheet, "F", "H", 12) // numbers
	_ = f.SetColWidth(sheet, "I", "I", 12) // status
	_ = f.SetColWidth(sheet, "J", "J", 48) // notes

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"owner_id", ownerID.String(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// movementSummary renders "1:6.8 2:6.5 3:7.2" using each movement's mean
// judge score.
func movementSummary(ms []extract.Movement) string {
	if len(ms) == 0 {
		return ""
	}
	sorted := make([]extract.Movement, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	parts := make([]string, 0, len(sorted))
	for _, m := range sorted {
		var sum float64
		var n int
		for _, v := range m.Scores {
			if v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			parts = append(parts, fmt.Sprintf("%d:-", m.Number))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%.1f", m.Number, sum/float64(n)))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
