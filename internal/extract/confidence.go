package extract

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Deterministic confidence model. No I/O, no failure modes: the same fields
// always produce the same summary, byte for byte.

// Base confidence per field role.
const (
	basePrimaryIdentity = 0.90 // horse_name
	baseKeyNumeric      = 0.85 // percentage, total_points, judge scores
	baseNarrative       = 0.70 // non-empty free text
	baseNarrativeEmpty  = 0.50

	emptyFloor         = 0.3
	shortStringFactor  = 0.7
	rangeFactor        = 0.6
	summaryRangeFactor = 0.5 // percentage gets the harsher multiplier

	lowThreshold    = 0.5
	highThreshold   = 0.8
	fallbackOverall = 0.2
)

// Adjustment reasons.
const (
	ReasonEmptyOrNull  = "empty_or_null"
	ReasonShortString  = "short_string"
	ReasonInvalidRange = "invalid_range"
	ReasonFallback     = "fallback"
)

// FieldScore is one leaf's confidence annotation.
type FieldScore struct {
	Confidence float64 `json:"confidence"`
	Value      any     `json:"value"`
	Reason     string  `json:"reason,omitempty"`
}

// FieldStats buckets leaves by confidence band.
type FieldStats struct {
	High   int `json:"high"`   // >= 0.8
	Medium int `json:"medium"` // >= 0.5, < 0.8
	Low    int `json:"low"`    // < 0.5
}

// Summary is the full confidence report for one extraction.
type Summary struct {
	Overall             float64               `json:"overall"`
	Fields              map[string]FieldScore `json:"fields"`
	Stats               FieldStats            `json:"field_stats"`
	LowConfidenceFields []string              `json:"low_confidence_fields"`
	IsFallback          bool                  `json:"is_fallback,omitempty"`
}

// Score computes per-field and overall confidence for parsed sheet data.
func Score(f SheetFields) Summary {
	leaves := make(map[string]FieldScore)
	var order []string
	add := func(path string, fs FieldScore) {
		leaves[path] = fs
		order = append(order, path)
	}

	add("horse_name", scoreString(f.HorseName, basePrimaryIdentity))
	add("percentage", scoreNumeric(f.Percentage, 0, 100, summaryRangeFactor))

	if f.TotalPoints != nil {
		add("total_points", scoreNumeric(f.TotalPoints, 0, math.MaxFloat64, rangeFactor))
	}
	secondary := []struct {
		path  string
		value string
	}{
		{"rider_name", f.RiderName},
		{"event_name", f.EventName},
		{"test_date", f.TestDate},
		{"test_level", f.TestLevel},
		{"discipline", f.Discipline},
	}
	for _, sf := range secondary {
		if sf.value != "" {
			add(sf.path, scoreString(sf.value, baseNarrative))
		}
	}

	add("notes", scoreString(f.Notes, narrativeBase(f.Notes)))

	seen := make(map[string]bool, len(f.Movements))
	for i, mv := range f.Movements {
		prefix := fmt.Sprintf("movement_%d", i+1)
		if n := mv.Number; n != 0 {
			prefix = fmt.Sprintf("movement_%d", n)
		}
		if seen[prefix] {
			// duplicate movement numbers keep positional addressing
			prefix = fmt.Sprintf("movement_%d_pos%d", mv.Number, i+1)
		}
		seen[prefix] = true
		judges := make([]string, 0, len(mv.Scores))
		for j := range mv.Scores {
			judges = append(judges, j)
		}
		sort.Strings(judges)
		for _, j := range judges {
			add(prefix+".judge_"+j, scoreNumeric(mv.Scores[j], 0, 10, rangeFactor))
		}
		if mv.Description != "" {
			add(prefix+".description", scoreString(mv.Description, baseNarrative))
		}
		if mv.Remark != "" {
			add(prefix+".remark", scoreString(mv.Remark, baseNarrative))
		}
	}

	return summarize(leaves, order, false)
}

// FallbackSummary is the fixed low-confidence report used when parsing
// failed: every synthesized leaf is flagged low, overall pinned at 0.2.
func FallbackSummary(f SheetFields) Summary {
	s := Score(f)
	for path, fs := range s.Fields {
		fs.Confidence = fallbackOverall
		fs.Reason = ReasonFallback
		s.Fields[path] = fs
	}
	paths := make([]string, 0, len(s.Fields))
	for path := range s.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	s.LowConfidenceFields = paths
	s.Stats = FieldStats{Low: len(s.Fields)}
	s.Overall = fallbackOverall
	s.IsFallback = true
	return s
}

func narrativeBase(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return baseNarrativeEmpty
	}
	return baseNarrative
}

// scoreString applies the deterministic adjustments in priority order:
// empty/null floors to exactly 0.3, then short strings are discounted.
func scoreString(v string, base float64) FieldScore {
	t := strings.TrimSpace(v)
	if t == "" || strings.EqualFold(t, "null") {
		return FieldScore{Confidence: emptyFloor, Value: v, Reason: ReasonEmptyOrNull}
	}
	if len(t) < 2 {
		return FieldScore{Confidence: round3(base * shortStringFactor), Value: v, Reason: ReasonShortString}
	}
	return FieldScore{Confidence: base, Value: v}
}

// scoreNumeric applies the empty floor for nil, then the domain check with
// the field's range multiplier.
func scoreNumeric(v *float64, min, max, factor float64) FieldScore {
	if v == nil {
		return FieldScore{Confidence: emptyFloor, Value: nil, Reason: ReasonEmptyOrNull}
	}
	if *v < min || *v > max || math.IsNaN(*v) {
		return FieldScore{Confidence: round3(baseKeyNumeric * factor), Value: *v, Reason: ReasonInvalidRange}
	}
	return FieldScore{Confidence: baseKeyNumeric, Value: *v}
}

func summarize(leaves map[string]FieldScore, order []string, fallback bool) Summary {
	var sum float64
	var stats FieldStats
	var low []string
	for _, path := range order {
		fs := leaves[path]
		sum += fs.Confidence
		switch {
		case fs.Confidence >= highThreshold:
			stats.High++
		case fs.Confidence >= lowThreshold:
			stats.Medium++
		default:
			stats.Low++
			low = append(low, path)
		}
	}
	overall := 0.0
	if len(order) > 0 {
		overall = round3(sum / float64(len(order)))
	}
	return Summary{
		Overall:             overall,
		Fields:              leaves,
		Stats:               stats,
		LowConfidenceFields: low,
		IsFallback:          fallback,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
