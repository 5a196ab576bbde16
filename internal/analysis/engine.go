package analysis

// Analyzer runs disfluency detection with a fixed vocabulary. It holds no
// per-call state and is safe for concurrent use.
type Analyzer struct {
	phrases    []phrase
	fillers    map[string]struct{}
	thresholds Thresholds
}

// NewAnalyzer compiles v into an analyzer. v is copied; later changes to its
// slices do not affect the analyzer.
func NewAnalyzer(v Vocabulary) *Analyzer {
	return &Analyzer{
		phrases:    compilePhrases(v.Phrases),
		fillers:    compileFillers(v.FillerWords),
		thresholds: v.Thresholds.withDefaults(),
	}
}

// Analyze scans words once, front to back. At each position filler phrases
// are tried first; a match consumes every word of the phrase. Otherwise the
// single word is classified as a repetition, sound block or filler word.
// Words missing timestamps still take part in matching and transcription but
// never produce an event.
func (a *Analyzer) Analyze(words []*Word) Result {
	if len(words) == 0 {
		return Empty()
	}

	res := Result{
		Transcription: BuildTranscription(words),
		Disfluencies:  []Disfluency{},
	}

	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = normalizeWord(w)
	}

	var t tally
	for i := 0; i < len(words); {
		consumed := 1
		if p, ok := a.matchPhrase(tokens, i); ok {
			consumed = len(p.tokens)
			if start, end, ok := span(words[i], words[i+consumed-1]); ok {
				d := Disfluency{
					Word:      p.text,
					StartTime: seconds(start),
					EndTime:   seconds(end),
					Type:      TypeFillerPhrase,
				}
				res.Disfluencies = append(res.Disfluencies, d)
				t.count(d)
			}
		} else if d, ok := a.classify(words, tokens, i); ok {
			res.Disfluencies = append(res.Disfluencies, d)
			t.count(d)
		}

		for j := i; j < i+consumed; j++ {
			t.addGap(words, j, a.thresholds.PauseMs)
		}
		i += consumed
	}

	res.Statistics = a.statistics(words, tokens, t)
	return res
}
