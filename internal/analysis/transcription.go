package analysis

import "strings"

// BuildTranscription joins raw word text into display prose. Words are
// separated by a single space except when a word opens with punctuation, so
// "hello" "," "world" reads "hello, world". Words without text or with
// empty text are skipped.
func BuildTranscription(words []*Word) string {
	var sb strings.Builder
	for _, w := range words {
		text := rawText(w)
		if text == "" {
			continue
		}
		if sb.Len() > 0 && !startsWithPunctuation(text) {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String()
}
