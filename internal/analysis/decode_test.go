package analysis

import "testing"

func TestDecodeWordsRejectsNonArrays(t *testing.T) {
	for _, input := range []string{``, `null`, `{"text":"um"}`, `"um"`, `42`, `[1, 2`} {
		t.Run(input, func(t *testing.T) {
			if _, ok := DecodeWords([]byte(input)); ok {
				t.Errorf("Expected %q to be rejected", input)
			}
		})
	}
}

func TestDecodeWordsIsLenient(t *testing.T) {
	input := `[
		null,
		5,
		{"text": "um", "start": 100, "end": 300.4, "confidence": 0.9},
		{"text": 7, "start": "x", "end": 200, "confidence": "high"}
	]`

	words, ok := DecodeWords([]byte(input))
	if !ok {
		t.Fatal("Expected array to decode")
	}
	if len(words) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(words))
	}
	if words[0] != nil || words[1] != nil {
		t.Errorf("Expected null and non-object elements to be nil, got %+v %+v", words[0], words[1])
	}

	um := words[2]
	if um == nil || um.Text == nil || *um.Text != "um" {
		t.Fatalf("Expected um, got %+v", um)
	}
	if *um.Start != 100 || *um.End != 300 || *um.Confidence != 0.9 {
		t.Errorf("Unexpected fields: start=%d end=%d confidence=%v", *um.Start, *um.End, *um.Confidence)
	}

	bad := words[3]
	if bad == nil {
		t.Fatal("Expected object with bad fields to decode")
	}
	if bad.Text != nil || bad.Start != nil || bad.Confidence != nil {
		t.Errorf("Expected mistyped fields to be absent, got %+v", bad)
	}
	if bad.End == nil || *bad.End != 200 {
		t.Errorf("Expected end 200, got %v", bad.End)
	}
}

func TestAnalyzeDecodedWords(t *testing.T) {
	words, ok := DecodeWords([]byte(`[{"text":"um","start":100,"end":300,"confidence":0.9},{"text":"hello","start":300,"end":500,"confidence":0.95}]`))
	if !ok {
		t.Fatal("Expected array to decode")
	}

	result := NewAnalyzer(DefaultVocabulary()).Analyze(words)
	if len(result.Disfluencies) != 1 || result.Disfluencies[0].Word != "um" {
		t.Errorf("Expected one um event, got %+v", result.Disfluencies)
	}
}

func TestDecodeWordsTimestampRange(t *testing.T) {
	testCases := []struct {
		description string
		value       string
		want        *int64
	}{
		{"fraction rounds half up", "12.5", ptr(13)},
		{"negative fraction", "-2.4", ptr(-2)},
		{"largest exact value", "9007199254740992", ptr(1 << 53)},
		{"beyond exact range", "9007199254740994", nil},
		{"huge", "1e20", nil},
		{"huge negative", "-1e20", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			words, ok := DecodeWords([]byte(`[{"text":"um","start":` + tc.value + `}]`))
			if !ok || len(words) != 1 || words[0] == nil {
				t.Fatalf("Expected one word, got %+v", words)
			}
			got := words[0].Start
			switch {
			case tc.want == nil && got != nil:
				t.Errorf("Expected start to be absent, got %d", *got)
			case tc.want != nil && (got == nil || *got != *tc.want):
				t.Errorf("Expected start %d, got %v", *tc.want, got)
			}
		})
	}
}

func TestOutOfRangeTimestampsDoNotSkewStatistics(t *testing.T) {
	words, ok := DecodeWords([]byte(`[{"text":"um","start":0,"end":100},{"text":"hi","start":1e20,"end":1e20}]`))
	if !ok {
		t.Fatal("Expected array to decode")
	}

	stats := NewAnalyzer(DefaultVocabulary()).Analyze(words).Statistics
	if stats.TotalPauseDuration != 0 {
		t.Errorf("Expected no pause, got %v", stats.TotalPauseDuration)
	}
	if stats.TotalDuration != 0.1 {
		t.Errorf("Expected 0.1s duration, got %v", stats.TotalDuration)
	}
}

func ptr(v int64) *int64 { return &v }
