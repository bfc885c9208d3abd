package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/equisheet/scoresheet-tracker/constants"
)

// SanitizeFields
// - Renames known synonyms (horse -> horse_name, score_percentage -> percentage)
// - Drops null/empty optionals
// - Coerces string numerics for percentage/total_points
// - Removes unknown top-level keys
// Keeps leniency to what the model plausibly emits; movement internals are
// left alone (the confidence scorer handles their oddities).
func SanitizeFields(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to our schema
	renamed("horse", "horse_name")
	renamed("rider", "rider_name")
	renamed("competition", "event_name")
	renamed("event", "event_name")
	renamed("date", "test_date")
	renamed("level", "test_level")
	renamed("score_percentage", "percentage")
	renamed("final_percentage", "percentage")
	renamed("total_score", "total_points")
	renamed("comments", "notes")

	// 2) coerce numeric-ish strings, drop null / "" for numerics
	coerceNumber := func(k string) {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				// already numeric
			case string:
				s := strings.TrimSpace(strings.TrimSuffix(t, "%"))
				if s == "" || strings.EqualFold(s, "null") {
					delete(m, k)
					dropped = append(dropped, k+"(empty)")
					break
				}
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					m[k] = f
				} else {
					delete(m, k)
					dropped = append(dropped, k+"(unparseable)")
				}
			case nil:
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			default:
				delete(m, k)
				dropped = append(dropped, k+"(type)")
			}
		}
	}
	coerceNumber("percentage")
	coerceNumber("total_points")

	// 3) trim obvious strings, drop empties
	trimKeys := []string{"document_type", "horse_name", "rider_name", "event_name", "test_date", "test_level", "discipline", "notes"}
	for _, k := range trimKeys {
		if v, ok := m[k].(string); ok {
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	// 4) fold free-text discipline labels onto the canonical set
	if v, ok := m["discipline"].(string); ok {
		if d, known := constants.CanonicalizeDiscipline(v); known && string(d) != v {
			m["discipline"] = string(d)
			dropped = append(dropped, "discipline("+v+")")
		}
	}

	// 5) remove unknown keys (strict additionalProperties friendliness)
	allowed := map[string]struct{}{
		"document_type": {}, "horse_name": {}, "rider_name": {}, "event_name": {},
		"test_date": {}, "test_level": {}, "discipline": {}, "percentage": {},
		"total_points": {}, "movements": {}, "notes": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("extract.sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
