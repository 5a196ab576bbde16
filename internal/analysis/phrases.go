package analysis

// matchPhrase returns the first configured phrase whose tokens equal the
// tokens starting at i. Configuration order decides between phrases sharing
// a prefix, not length.
func (a *Analyzer) matchPhrase(tokens []string, i int) (phrase, bool) {
	for _, p := range a.phrases {
		n := len(p.tokens)
		if i+n > len(tokens) {
			continue
		}
		if equalTokens(tokens[i:i+n], p.tokens) {
			return p, true
		}
	}
	return phrase{}, false
}

func equalTokens(got, want []string) bool {
	for j := range want {
		if got[j] != want[j] {
			return false
		}
	}
	return true
}
