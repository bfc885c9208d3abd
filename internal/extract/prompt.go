package extract

import (
	"encoding/json"
	"strings"
)

// BuildInstruction assembles the natural-language extraction instruction:
// known context fields as hints, then a strict output-shape specification
// covering both the dressage-test shape and the generic "other document"
// shape.
func BuildInstruction(ctx DocumentContext) string {
	parts := []string{
		"You are a dressage score sheet reader. The attached document is a scanned, usually handwritten, competition scoring sheet.",
		"Extract its contents and return ONLY JSON matching the JSON Schema provided below. No prose, no markdown fences.",
		"Use ISO-8601 dates (YYYY-MM-DD). Scores are marks out of 10 and may use half points (e.g. 6.5).",
		"Each movement row carries one score per judge position; use the judge letters printed on the sheet (C, E, H, M, B) as keys.",
		"Set document_type to \"dressage_test\" for a scoring sheet, or \"other\" if the document is something else entirely.",
		"If the document is not a score sheet, still return the JSON shape with document_type \"other\" and whatever fields you can read.",
		"Never invent values. If a field is not present or not legible, omit it.",
	}

	hints := []string{}
	if ctx.HorseName != "" {
		hints = append(hints, "Horse: "+ctx.HorseName+".")
	}
	if ctx.TestDate != "" {
		hints = append(hints, "Declared date: "+ctx.TestDate+".")
	}
	if ctx.TestLevel != "" {
		hints = append(hints, "Declared test level: "+ctx.TestLevel+".")
	}
	if ctx.Discipline != "" {
		hints = append(hints, "Discipline: "+ctx.Discipline+".")
	}
	if ctx.FileName != "" {
		hints = append(hints, "Uploaded file name: "+ctx.FileName+".")
	}
	if len(hints) > 0 {
		parts = append(parts, "Known context (verify against the sheet, prefer what is written on the sheet): "+strings.Join(hints, " "))
	}

	parts = append(parts, "JSON Schema:\n"+mustJSON(BuildSheetJSONSchema()))
	return strings.Join(parts, " ")
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
