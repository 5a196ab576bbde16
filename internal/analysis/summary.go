package analysis

import "fmt"

// Summary renders a one-line description of the result for logs and the CLI.
func (r Result) Summary() string {
	s := r.Statistics
	return fmt.Sprintf(
		"Fluency: %d/100 | Fillers: %d | Stutters: %d (repetitions: %d) | Pauses: %.1fs | Pace: %d wpm over %.1fs",
		s.FluencyScore,
		s.FillerCount,
		s.StutterCount,
		s.RepetitionCount,
		s.TotalPauseDuration,
		s.WordsPerMinute,
		s.TotalDuration,
	)
}
