package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCtx = DocumentContext{
	HorseName:  "Bella",
	FileName:   "scan-001.pdf",
	TestDate:   "2026-05-02",
	TestLevel:  "Elementary 40",
	Discipline: "Dressage",
}

const validAnswer = `{
	"document_type": "dressage_test",
	"horse_name": "Bella",
	"rider_name": "A. Smith",
	"test_date": "2026-05-02",
	"percentage": 68.5,
	"movements": [
		{"number": 1, "description": "Enter at A", "scores": {"C": 7.0, "E": 6.5, "H": 7.5}},
		{"number": 2, "description": "Circle 20m", "scores": {"C": 6.0, "E": 6.5, "H": 6.0}}
	]
}`

func TestParseValidJSON(t *testing.T) {
	out := Parse(validAnswer, testCtx, nil)

	require.True(t, out.Success)
	assert.Equal(t, MethodJSONSuccess, out.Method)
	assert.Empty(t, out.ErrTag)
	assert.Equal(t, "Bella", out.Fields.HorseName)
	assert.Equal(t, "A. Smith", out.Fields.RiderName)
	require.NotNil(t, out.Fields.Percentage)
	assert.Equal(t, 68.5, *out.Fields.Percentage)
	require.Len(t, out.Fields.Movements, 2)
	assert.Equal(t, 7.5, *out.Fields.Movements[0].Scores["H"])
	assert.False(t, out.Fields.IsFallback)
}

func TestParseFencedJSONEqualsUnfenced(t *testing.T) {
	fenced := "```json\n" + validAnswer + "\n```"

	plain := Parse(validAnswer, testCtx, nil)
	withFences := Parse(fenced, testCtx, nil)

	assert.Equal(t, plain, withFences)

	// fence stripping is idempotent to the noise
	assert.Equal(t, plain, Parse("```\n"+validAnswer+"\n```", testCtx, nil))
}

func TestParseIsDeterministic(t *testing.T) {
	inputs := []string{
		validAnswer,
		"Sorry, I am unable to perform this task.",
		"random noise !!!",
		`{"unrelated": true}`,
	}
	for _, in := range inputs {
		assert.Equal(t, Parse(in, testCtx, nil), Parse(in, testCtx, nil), "input %q", in)
	}
}

func TestParseJSONWithoutSignalFields(t *testing.T) {
	out := Parse(`{"summary": "a nice day", "weather": "sunny"}`, testCtx, nil)

	require.False(t, out.Success)
	assert.Equal(t, MethodJSONNoStructure, out.Method)
	assert.Equal(t, "json_no_structure", out.ErrTag)
	assert.True(t, out.Fields.IsFallback)
	// context defaults copied into the fallback shape
	assert.Equal(t, "Bella", out.Fields.HorseName)
	assert.Equal(t, "Elementary 40", out.Fields.TestLevel)
	assert.NotEmpty(t, out.Fields.Notes)
}

func TestParseErrorPatterns(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantTag string
	}{
		{"unable to perform", "Sorry, I am unable to perform this task.", "unable_to_perform"},
		{"sheet not present", "The dressage sheet not present in this image.", "sheet_not_present"},
		{"cannot extract", "I cannot extract any data from this file.", "cannot_extract"},
		{"invalid document", "This appears to be an invalid document.", "invalid_document"},
		{"apology", "I'm sorry, but that did not work out.", "model_apology"},
		{"case insensitive", "UNABLE TO PERFORM the requested operation", "unable_to_perform"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Parse(tc.raw, testCtx, nil)

			require.False(t, out.Success)
			assert.Equal(t, MethodErrorPattern, out.Method)
			assert.Equal(t, tc.wantTag, out.ErrTag)
			assert.NotEmpty(t, out.ErrMessage)
			assert.NotEqual(t, "model answer could not be interpreted", out.ErrMessage)
			assert.True(t, out.Fields.IsFallback)
			assert.Contains(t, tc.raw, out.Fields.RawSample[:10])
		})
	}
}

func TestParseGenericInvalidResponse(t *testing.T) {
	out := Parse("0110 1001 noise that means nothing", testCtx, nil)

	require.False(t, out.Success)
	assert.Equal(t, MethodInvalidJSON, out.Method)
	assert.Equal(t, "invalid_response", out.ErrTag)
	assert.True(t, out.Fields.IsFallback)
}

func TestParseFallbackRawSampleIsBounded(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	out := Parse(string(long), testCtx, nil)

	assert.LessOrEqual(t, len(out.Fields.RawSample), rawSampleLimit)
}

func TestParseSanitizesSynonyms(t *testing.T) {
	out := Parse(`{"horse": "Bella", "final_percentage": "68.5%", "comments": "good test"}`, testCtx, nil)

	require.True(t, out.Success)
	assert.Equal(t, "Bella", out.Fields.HorseName)
	require.NotNil(t, out.Fields.Percentage)
	assert.Equal(t, 68.5, *out.Fields.Percentage)
	assert.Equal(t, "good test", out.Fields.Notes)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StripCodeFences(tc.in), "input %q", tc.in)
	}
}

func TestMergeContext(t *testing.T) {
	f := SheetFields{HorseName: "Storm", TestLevel: ""}
	f.MergeContext(testCtx)

	// model value wins
	assert.Equal(t, "Storm", f.HorseName)
	// context fills blanks
	assert.Equal(t, "Elementary 40", f.TestLevel)
	assert.Equal(t, "2026-05-02", f.TestDate)
	assert.Equal(t, "Dressage", f.Discipline)
}
