package analysis

import (
	"math"
	"strings"
)

// boundaryPunctuation is stripped from token edges for matching and decides
// whether a token hugs the previous one in the transcription.
const boundaryPunctuation = ".,!?;:"

// Normalize prepares raw word text for matching: boundary punctuation is
// stripped repeatedly ("um..." becomes "um"), the text is lowercased and
// trimmed. Display text is never normalized.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, boundaryPunctuation)
	return strings.TrimSpace(strings.ToLower(text))
}

func normalizeWord(w *Word) string {
	return Normalize(rawText(w))
}

func rawText(w *Word) string {
	if w == nil || w.Text == nil {
		return ""
	}
	return *w.Text
}

// startsWithPunctuation reports whether raw text opens with boundary
// punctuation and should attach to the previous word without a space.
func startsWithPunctuation(text string) bool {
	return text != "" && strings.ContainsRune(boundaryPunctuation, rune(text[0]))
}

// seconds converts milliseconds to seconds rounded to one decimal, rounding
// halves up.
func seconds(ms int64) float64 {
	return round1(float64(ms) / 1000)
}

func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// span returns the [start, end] of an event built from the start of first and
// the end of last. ok is false when a timestamp is missing or a range is
// inverted, checking first and last on their own as well as combined.
func span(first, last *Word) (start, end int64, ok bool) {
	if first == nil || last == nil || first.Start == nil || last.End == nil {
		return 0, 0, false
	}
	if inverted(first) || inverted(last) || *first.Start > *last.End {
		return 0, 0, false
	}
	return *first.Start, *last.End, true
}

// inverted reports whether w carries both timestamps with start after end.
func inverted(w *Word) bool {
	return w.Start != nil && w.End != nil && *w.Start > *w.End
}
