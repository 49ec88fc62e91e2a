package database

// MEP is a Member of the European Parliament, current or historic.
// Historic MEPs are synthesized during relinking with IDs above 1,000,000.
type MEP struct {
	ID             int64
	FullName       string
	FamilyName     *string
	GivenName      *string
	Country        *string
	PoliticalGroup *string
	IsCurrent      bool
	Source         string // "api" or "historic"
	RefreshedAt    *int64
}

// Sitting is one plenary day. ID is the canonical speech URI when known,
// otherwise a synthetic "sitting-<date>". Content holds the verbatim HTML
// and is immutable once stored (except under an explicit re-fetch).
type Sitting struct {
	ID           string
	ActivityDate string
	ActivityType *string
	Label        *string
	Content      *string
	DocumentID   *string
	NotationID   *string
	FetchedAt    *int64
}

// HasContent reports whether the sitting holds a usable verbatim document.
func (s *Sitting) HasContent() bool {
	return s.Content != nil && len(*s.Content) >= 100
}

// Speech is one parsed speech within a sitting. SpeechOrder is 1-based and
// unique per sitting. The political-group columns are either all null or
// all set; PoliticalGroupRaw is written once and never overwritten.
type Speech struct {
	ID                      int64
	SittingID               string
	SpeechOrder             int
	SpeakerName             *string
	PoliticalGroupRaw       *string
	PoliticalGroupStd       *string
	PoliticalGroupKind      *string
	PoliticalGroupReason    *string
	Title                   *string
	SpeechContent           string
	Language                *string
	Topic                   *string
	MacroTopic              *string
	MacroSpecificFocus      *string
	MacroConfidence         *float64
	MacroClassifiedBy       *string
	MacroClassifiedAt       *int64
	MacroClassificationCost *float64
	MEPID                   *int64
}

// NewSpeech is the splitter's output before insertion. The std/kind/reason
// columns are set at parse time only when a parenthesized affiliation
// resolved to a canonical group; everything else is left for the
// normalization stage.
type NewSpeech struct {
	SpeechOrder          int
	SpeakerName          *string
	PoliticalGroupRaw    *string
	PoliticalGroupStd    *string
	PoliticalGroupKind   *string
	PoliticalGroupReason *string
	Title                *string
	SpeechContent        string
}

// CacheStatus records when the analytics cache was last warmed.
type CacheStatus struct {
	RefreshedAt *int64
	SpeechCount int
}
