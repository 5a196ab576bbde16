package analysis

import "math"

// tally accumulates counts and pause time during the scan.
type tally struct {
	fillers     int
	stutters    int
	repetitions int
	pauseMs     int64
}

// count attributes an event. Word repetitions are stutters and are also
// counted separately as repetitions.
func (t *tally) count(d Disfluency) {
	switch d.Type {
	case TypeFillerPhrase, TypeFillerWord:
		t.fillers++
	case TypeWordRepetition:
		t.stutters++
		t.repetitions++
	case TypeSoundBlock:
		t.stutters++
	}
}

// addGap adds the silence between word j and word j+1 when it exceeds
// thresholdMs.
func (t *tally) addGap(words []*Word, j int, thresholdMs int64) {
	if j+1 >= len(words) {
		return
	}
	cur, next := words[j], words[j+1]
	if cur == nil || next == nil || cur.End == nil || next.Start == nil {
		return
	}
	if gap := *next.Start - *cur.End; gap > thresholdMs {
		t.pauseMs += gap
	}
}

func (a *Analyzer) statistics(words []*Word, tokens []string, t tally) Statistics {
	stats := Statistics{
		FillerCount:        t.fillers,
		StutterCount:       t.stutters,
		RepetitionCount:    t.repetitions,
		TotalPauseDuration: round1(float64(t.pauseMs) / 1000),
	}

	wordCount := 0
	for _, tok := range tokens {
		if tok != "" {
			wordCount++
		}
	}

	total := a.totalDuration(words)
	stats.TotalDuration = round1(total)
	if wordCount == 0 || total == 0 {
		return stats
	}

	wc := float64(wordCount)
	stats.WordsPerMinute = int(math.Round(wc / total * 60))

	deductions := 30*min(float64(t.fillers)/wc, 1) +
		40*min(float64(t.stutters)/wc, 1) +
		20*min(float64(t.pauseMs)/1000/total, 1)
	stats.FluencyScore = min(max(int(math.Round(100-deductions)), 0), 100)
	return stats
}

// totalDuration spans from the first known start to the last known end, in
// seconds, floored at the configured minimum. It is zero when the transcript
// carries no usable timestamps.
func (a *Analyzer) totalDuration(words []*Word) float64 {
	var first, last *Word
	for _, w := range words {
		if w != nil && w.Start != nil {
			first = w
			break
		}
	}
	for i := len(words) - 1; i >= 0; i-- {
		if w := words[i]; w != nil && w.End != nil {
			last = w
			break
		}
	}
	if first == nil || last == nil {
		return 0
	}
	return max(float64(*last.End-*first.Start)/1000, a.thresholds.MinDurationSec)
}
