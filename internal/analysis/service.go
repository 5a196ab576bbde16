package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Observer receives the outcome of every analysis. The metrics package
// implements it; nil is allowed.
type Observer interface {
	ObserveAnalysis(ctx context.Context, res Result, failed bool)
}

// Service is the boundary callers use. It never panics and never returns an
// error: faults inside the analyzer are logged and turned into [Empty].
type Service struct {
	analyzer *Analyzer
	log      zerolog.Logger
	observer Observer
}

// NewService wraps analyzer. observer may be nil.
func NewService(analyzer *Analyzer, log zerolog.Logger, observer Observer) *Service {
	return &Service{
		analyzer: analyzer,
		log:      log.With().Str("component", "analysis").Logger(),
		observer: observer,
	}
}

// Analyze runs the analyzer over words.
func (s *Service) Analyze(ctx context.Context, words []*Word) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("panic", fmt.Sprint(r)).
				Int("words", len(words)).
				Msg("analysis failed")
			res = Empty()
			s.observe(ctx, res, true)
		}
	}()

	res = s.analyzer.Analyze(words)
	s.log.Debug().
		Int("words", len(words)).
		Int("disfluencies", len(res.Disfluencies)).
		Int("fluency_score", res.Statistics.FluencyScore).
		Msg("analysis complete")
	s.observe(ctx, res, false)
	return res
}

// AnalyzeJSON decodes a raw recognizer word array and analyzes it. Input
// that is not an array yields an empty result.
func (s *Service) AnalyzeJSON(ctx context.Context, data []byte) Result {
	words, ok := DecodeWords(data)
	if !ok {
		s.log.Warn().Int("bytes", len(data)).Msg("invalid input: words must be an array")
		res := Empty()
		s.observe(ctx, res, true)
		return res
	}
	return s.Analyze(ctx, words)
}

// observe reports res to the observer. A panicking observer is logged and
// never reaches the caller.
func (s *Service) observe(ctx context.Context, res Result, failed bool) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("observer failed")
		}
	}()
	s.observer.ObserveAnalysis(ctx, res, failed)
}
