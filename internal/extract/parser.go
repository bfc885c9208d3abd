package extract

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Parsing methods recorded for observability.
const (
	MethodJSONSuccess     = "json_success"
	MethodJSONNoStructure = "json_no_structure"
	MethodErrorPattern    = "error_pattern"
	MethodInvalidJSON     = "invalid_json"
)

// ParseOutcome is the parser's always-returned result. On failure Fields is
// fallback data with the same shape as a success, so consumers never branch
// on shape.
type ParseOutcome struct {
	Success    bool
	Method     string
	Fields     SheetFields
	ErrTag     string // classification tag, empty on success
	ErrMessage string // human-readable, empty on success
}

const rawSampleLimit = 300

// negativePattern maps a lowercase phrase the model is known to answer with
// to its failure classification.
type negativePattern struct {
	phrase  string
	tag     string
	message string
}

// Order matters: the first match wins, so the most specific phrases come
// before the generic apology.
var negativePatterns = []negativePattern{
	{"unable to perform", "unable_to_perform", "model reported it was unable to perform the extraction"},
	{"sheet not present", "sheet_not_present", "model reported no score sheet is present in the document"},
	{"no score sheet", "sheet_not_present", "model reported no score sheet is present in the document"},
	{"cannot extract", "cannot_extract", "model reported it cannot extract data from the document"},
	{"invalid document", "invalid_document", "model reported the document is invalid"},
	{"i'm sorry", "model_apology", "model answered with an apology instead of data"},
	{"i am sorry", "model_apology", "model answered with an apology instead of data"},
}

// Parse turns the model's raw answer text into structured sheet data or a
// classified fallback. It never fails: every input maps to exactly one
// outcome, and identical input yields identical output.
//
// Strategy, in order: strip formatting fences and decode strictly; on decode
// success require at least one signal field; on decode failure scan for known
// negative-result phrases; otherwise classify as a generic invalid response.
func Parse(raw string, ctx DocumentContext, logger *slog.Logger) ParseOutcome {
	if logger == nil {
		logger = slog.Default()
	}

	stripped := StripCodeFences(strings.TrimSpace(raw))

	var probe map[string]any
	if err := json.Unmarshal([]byte(stripped), &probe); err == nil {
		return parseDecoded(raw, stripped, ctx, logger)
	}

	lower := strings.ToLower(raw)
	for _, p := range negativePatterns {
		if strings.Contains(lower, p.phrase) {
			return ParseOutcome{
				Method:     MethodErrorPattern,
				Fields:     fallbackFields(ctx, raw, p.message),
				ErrTag:     p.tag,
				ErrMessage: p.message,
			}
		}
	}

	return ParseOutcome{
		Method:     MethodInvalidJSON,
		Fields:     fallbackFields(ctx, raw, "model answer was not valid JSON and matched no known response pattern"),
		ErrTag:     "invalid_response",
		ErrMessage: "model answer could not be interpreted",
	}
}

func parseDecoded(raw, stripped string, ctx DocumentContext, logger *slog.Logger) ParseOutcome {
	cleaned, _, err := SanitizeFields([]byte(stripped), logger)
	if err != nil {
		// decode succeeded above, so this only trips on re-encode faults
		cleaned = []byte(stripped)
	}

	// Advisory only: a schema mismatch is logged, not fatal. The signal
	// check below decides success.
	if err := ValidateJSONAgainstSchema(BuildSheetJSONSchema(), cleaned); err != nil {
		logger.Warn("extract.parse.schema_mismatch", "error", err)
	}

	var fields SheetFields
	if err := json.Unmarshal(cleaned, &fields); err != nil {
		return ParseOutcome{
			Method:     MethodJSONNoStructure,
			Fields:     fallbackFields(ctx, raw, "model returned JSON whose structure does not match a score sheet"),
			ErrTag:     "json_no_structure",
			ErrMessage: "decoded JSON does not fit the score sheet structure",
		}
	}

	if !fields.HasSignal() {
		return ParseOutcome{
			Method:     MethodJSONNoStructure,
			Fields:     fallbackFields(ctx, raw, "model returned JSON without any recognizable score sheet field"),
			ErrTag:     "json_no_structure",
			ErrMessage: "decoded JSON carries no score sheet signal field",
		}
	}

	return ParseOutcome{
		Success: true,
		Method:  MethodJSONSuccess,
		Fields:  fields,
	}
}

// fallbackFields synthesizes shape-compatible data from the upload-time
// context: known fields copied in, unknowns left zero, the explanation in the
// notes slot, and a bounded raw-text sample for diagnosis.
func fallbackFields(ctx DocumentContext, raw, note string) SheetFields {
	return SheetFields{
		HorseName:  ctx.HorseName,
		TestDate:   ctx.TestDate,
		TestLevel:  ctx.TestLevel,
		Discipline: ctx.Discipline,
		Notes:      note,
		IsFallback: true,
		RawSample:  truncate(strings.TrimSpace(raw), rawSampleLimit),
	}
}

// StripCodeFences removes a leading ```json / ``` fence and a trailing ```
// fence, tolerating surrounding whitespace.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		// drop the language hint on the fence line, if any
		first := strings.TrimSpace(t[:i])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			t = t[i+1:]
		}
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
