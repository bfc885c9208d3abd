package extract

// DocumentContext carries the fields already known at upload time. They are
// embedded in the instruction as hints and used as defaults for anything the
// model does not supply; a model-supplied value always wins.
type DocumentContext struct {
	HorseName  string
	FileName   string
	TestDate   string // YYYY-MM-DD as declared by the uploader
	TestLevel  string
	Discipline string
}

// SheetFields is the normalized shape we want from the model for one score
// sheet. The same shape is synthesized as fallback data on every parse
// failure so downstream consumers never need a second code path.
type SheetFields struct {
	DocumentType string     `json:"document_type,omitempty"` // "dressage_test" or "other"
	HorseName    string     `json:"horse_name"`
	RiderName    string     `json:"rider_name,omitempty"`
	EventName    string     `json:"event_name,omitempty"`
	TestDate     string     `json:"test_date,omitempty"` // YYYY-MM-DD
	TestLevel    string     `json:"test_level,omitempty"`
	Discipline   string     `json:"discipline,omitempty"`
	Percentage   *float64   `json:"percentage,omitempty"`   // 0..100
	TotalPoints  *float64   `json:"total_points,omitempty"` // raw marks total
	Movements    []Movement `json:"movements,omitempty"`
	Notes        string     `json:"notes,omitempty"`

	IsFallback bool   `json:"is_fallback,omitempty"`
	RawSample  string `json:"raw_sample,omitempty"` // truncated raw answer, fallback only
}

// Movement is one judged movement row: a small group of sub-fields with one
// score per judge position.
type Movement struct {
	Number      int                 `json:"number"`
	Description string              `json:"description,omitempty"`
	Scores      map[string]*float64 `json:"scores,omitempty"` // judge letter -> 0..10
	Remark      string              `json:"remark,omitempty"`
}

// HasSignal reports whether the decoded payload carries at least one field a
// genuine extraction would have: a primary subject, judged movements, the
// summary percentage, or an explicit type tag.
func (f SheetFields) HasSignal() bool {
	return f.HorseName != "" ||
		len(f.Movements) > 0 ||
		f.Percentage != nil ||
		f.DocumentType != ""
}

// MergeContext fills blanks from the upload-time context. Model-supplied
// values are never overwritten.
func (f *SheetFields) MergeContext(ctx DocumentContext) {
	if f.HorseName == "" {
		f.HorseName = ctx.HorseName
	}
	if f.TestDate == "" {
		f.TestDate = ctx.TestDate
	}
	if f.TestLevel == "" {
		f.TestLevel = ctx.TestLevel
	}
	if f.Discipline == "" {
		f.Discipline = ctx.Discipline
	}
}
