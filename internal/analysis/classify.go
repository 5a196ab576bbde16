package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// classify inspects the single word at i. Checks run in a fixed order and the
// first one that matches decides the outcome, even when the word lacks the
// timestamps needed to report it.
func (a *Analyzer) classify(words []*Word, tokens []string, i int) (Disfluency, bool) {
	w, tok := words[i], tokens[i]
	if w == nil || tok == "" {
		return Disfluency{}, false
	}

	if i > 0 && tokens[i-1] == tok {
		start, end, ok := span(words[i-1], w)
		if !ok {
			return Disfluency{}, false
		}
		return Disfluency{
			Word:      tok + " " + tok,
			StartTime: seconds(start),
			EndTime:   seconds(end),
			Type:      TypeWordRepetition,
			Severity:  SeverityModerate,
		}, true
	}

	if below(w.Confidence, a.thresholds.SoundBlockConfidence) && isSoundBlock(tok) {
		return single(w, tok, TypeSoundBlock, SeverityHigh)
	}

	if _, ok := a.fillers[tok]; ok {
		// "like" is mostly a real verb or comparison; recognizers tend to be
		// less sure of it when it is used as filler.
		if tok == "like" && !below(w.Confidence, a.thresholds.LikeConfidence) {
			return Disfluency{}, false
		}
		return single(w, tok, TypeFillerWord, "")
	}

	return Disfluency{}, false
}

func single(w *Word, tok string, typ DisfluencyType, sev Severity) (Disfluency, bool) {
	start, end, ok := span(w, w)
	if !ok {
		return Disfluency{}, false
	}
	return Disfluency{
		Word:      tok,
		StartTime: seconds(start),
		EndTime:   seconds(end),
		Type:      typ,
		Severity:  sev,
	}, true
}

// below reports whether a known confidence is under the threshold. A missing
// confidence is never below.
func below(conf *float64, threshold float64) bool {
	return conf != nil && *conf < threshold
}

// isSoundBlock matches tokens that open with a doubled letter ("ssorry") or
// carry an inner hyphen marking a restart ("w-want").
func isSoundBlock(tok string) bool {
	first, n := utf8.DecodeRuneInString(tok)
	second, _ := utf8.DecodeRuneInString(tok[n:])
	if unicode.IsLetter(first) && first == second {
		return true
	}
	if len(tok) < 3 {
		return false
	}
	return strings.Contains(tok[1:len(tok)-1], "-")
}
