// Package analysis detects speech disfluencies in a time-aligned transcript
// and scores overall fluency.
//
// The core ([Analyzer]) is a pure, synchronous fold over the word sequence:
// one forward cursor, one word of lookback and at most the longest configured
// phrase of lookahead. It never fails; malformed words are skipped for event
// production and the result is always well formed. [Service] wraps the core
// with logging, metrics and fault recovery for use by the HTTP API and the
// live coaching sessions.
package analysis

// Word is a single recognized word as delivered by the speech recognizer.
// Every field is optional. Start and End are milliseconds from the start of
// the recording; Confidence is in [0, 1].
type Word struct {
	Text       *string  `json:"text,omitempty"`
	Start      *int64   `json:"start,omitempty"`
	End        *int64   `json:"end,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// NewWord returns a fully populated word.
func NewWord(text string, start, end int64, confidence float64) *Word {
	return &Word{Text: &text, Start: &start, End: &end, Confidence: &confidence}
}

// DisfluencyType classifies a detected event.
type DisfluencyType string

const (
	TypeFillerPhrase   DisfluencyType = "filler phrase"
	TypeFillerWord     DisfluencyType = "filler word"
	TypeWordRepetition DisfluencyType = "word repetition"
	TypeSoundBlock     DisfluencyType = "sound block"
)

// Severity grades stutter events. Filler events carry no severity.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Disfluency is a single detected event anchored to a time range in seconds,
// rounded to one decimal.
type Disfluency struct {
	Word      string         `json:"word"`
	StartTime float64        `json:"start_time"`
	EndTime   float64        `json:"end_time"`
	Type      DisfluencyType `json:"type"`
	Severity  Severity       `json:"severity,omitempty"`
}

// Statistics aggregates counts, pause time and the derived fluency score.
type Statistics struct {
	FillerCount        int     `json:"fillerCount"`
	StutterCount       int     `json:"stutterCount"`
	RepetitionCount    int     `json:"repetitionCount"`
	TotalPauseDuration float64 `json:"totalPauseDuration"`
	WordsPerMinute     int     `json:"wordsPerMinute"`
	TotalDuration      float64 `json:"totalDuration"`
	FluencyScore       int     `json:"fluencyScore"`
}

// Result is the complete output of one analysis.
type Result struct {
	Transcription string       `json:"transcription"`
	Disfluencies  []Disfluency `json:"disfluencies"`
	Statistics    Statistics   `json:"statistics"`
}

// Empty returns the well-formed result used for empty or unusable input.
func Empty() Result {
	return Result{Disfluencies: []Disfluency{}}
}
