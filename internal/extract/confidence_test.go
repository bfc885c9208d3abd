package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func fullSheet() SheetFields {
	return SheetFields{
		DocumentType: "dressage_test",
		HorseName:    "Bella",
		RiderName:    "A. Smith",
		EventName:    "Spring Championships",
		TestDate:     "2026-05-02",
		TestLevel:    "Elementary 40",
		Discipline:   "Dressage",
		Percentage:   fp(68.5),
		Notes:        "Lovely forward test",
		Movements: []Movement{
			{Number: 1, Description: "Enter at A", Scores: map[string]*float64{"C": fp(7.0), "E": fp(6.5), "H": fp(7.5)}},
			{Number: 2, Description: "Circle 20m", Scores: map[string]*float64{"C": fp(6.0), "E": fp(6.5), "H": fp(6.0)}},
			{Number: 3, Description: "Free walk", Scores: map[string]*float64{"C": fp(8.0), "E": fp(7.0), "H": fp(7.5)}},
		},
	}
}

func TestScoreBaseConfidences(t *testing.T) {
	s := Score(fullSheet())

	assert.Equal(t, 0.90, s.Fields["horse_name"].Confidence)
	assert.Empty(t, s.Fields["horse_name"].Reason)
	assert.Equal(t, 0.85, s.Fields["percentage"].Confidence)
	assert.Equal(t, 0.70, s.Fields["notes"].Confidence)
	assert.Equal(t, 0.85, s.Fields["movement_1.judge_C"].Confidence)
	assert.Equal(t, 0.85, s.Fields["movement_3.judge_H"].Confidence)
	assert.Equal(t, 0.70, s.Fields["movement_2.description"].Confidence)
}

func TestScoreEmptyValuesAlwaysFlooredExactly(t *testing.T) {
	f := SheetFields{
		HorseName: "", // identity field, base 0.90
		Notes:     "null",
		Movements: []Movement{{Number: 1, Scores: map[string]*float64{"C": nil}}},
	}
	s := Score(f)

	// floor applies regardless of the field's base confidence
	assert.Equal(t, 0.3, s.Fields["horse_name"].Confidence)
	assert.Equal(t, ReasonEmptyOrNull, s.Fields["horse_name"].Reason)
	assert.Equal(t, 0.3, s.Fields["notes"].Confidence)
	assert.Equal(t, ReasonEmptyOrNull, s.Fields["notes"].Reason)
	assert.Equal(t, 0.3, s.Fields["percentage"].Confidence)
	assert.Equal(t, 0.3, s.Fields["movement_1.judge_C"].Confidence)
}

func TestScoreShortStringDiscount(t *testing.T) {
	s := Score(SheetFields{HorseName: "B"})

	assert.InDelta(t, 0.90*0.7, s.Fields["horse_name"].Confidence, 0.001)
	assert.Equal(t, ReasonShortString, s.Fields["horse_name"].Reason)
}

func TestScoreRangeViolations(t *testing.T) {
	f := SheetFields{
		HorseName:  "Bella",
		Percentage: fp(180.0),
		Movements:  []Movement{{Number: 1, Scores: map[string]*float64{"C": fp(11.0)}}},
	}
	s := Score(f)

	// summary percentage uses the harsher 0.5 multiplier
	assert.InDelta(t, 0.85*0.5, s.Fields["percentage"].Confidence, 0.001)
	assert.Equal(t, ReasonInvalidRange, s.Fields["percentage"].Reason)
	// judged sub-scores use 0.6
	assert.InDelta(t, 0.85*0.6, s.Fields["movement_1.judge_C"].Confidence, 0.001)
	assert.Equal(t, ReasonInvalidRange, s.Fields["movement_1.judge_C"].Reason)
}

func TestScoreOverallIsArithmeticMean(t *testing.T) {
	s := Score(fullSheet())

	var sum float64
	for _, fs := range s.Fields {
		sum += fs.Confidence
	}
	mean := sum / float64(len(s.Fields))
	assert.InDelta(t, mean, s.Overall, 0.0005)
	assert.GreaterOrEqual(t, s.Overall, 0.0)
	assert.LessOrEqual(t, s.Overall, 1.0)
	assert.Greater(t, s.Overall, 0.7, "a clean full sheet should score high")
}

func TestScoreStatsBuckets(t *testing.T) {
	f := SheetFields{
		HorseName: "Bella",                              // 0.90 -> high
		Notes:     "Rhythm needs work in the trot work", // 0.70 -> medium
		// percentage nil -> 0.3 -> low
	}
	s := Score(f)

	assert.Equal(t, 1, s.Stats.High)
	assert.Equal(t, 1, s.Stats.Medium)
	assert.Equal(t, 1, s.Stats.Low)
	assert.Equal(t, []string{"percentage"}, s.LowConfidenceFields)
}

func TestScoreIsDeterministic(t *testing.T) {
	f := fullSheet()
	first := Score(f)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Score(f))
	}
}

func TestFallbackSummary(t *testing.T) {
	out := Parse("Sorry, I am unable to perform this task.", testCtx, nil)
	require.False(t, out.Success)

	s := FallbackSummary(out.Fields)
	assert.Equal(t, 0.2, s.Overall)
	assert.True(t, s.IsFallback)
	assert.Equal(t, len(s.Fields), s.Stats.Low)
	assert.Equal(t, 0, s.Stats.High)
	assert.Equal(t, 0, s.Stats.Medium)
	assert.Len(t, s.LowConfidenceFields, len(s.Fields))
	for path, fs := range s.Fields {
		assert.Equal(t, 0.2, fs.Confidence, "leaf %s", path)
		assert.Equal(t, ReasonFallback, fs.Reason, "leaf %s", path)
	}
}

func TestScoreEmptyFieldSet(t *testing.T) {
	// even a zero struct always yields the fixed leaves
	s := Score(SheetFields{})
	assert.NotEmpty(t, s.Fields)
	assert.GreaterOrEqual(t, s.Overall, 0.0)
	assert.LessOrEqual(t, s.Overall, 1.0)
}
