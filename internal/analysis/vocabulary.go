package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary configures what the analyzer treats as a disfluency. It is
// copied into the [Analyzer] at construction and never mutated afterwards, so
// one analyzer can serve concurrent callers.
type Vocabulary struct {
	// Phrases are tried in order at every position; the first match wins
	// even when a later phrase would be longer.
	Phrases     []string   `yaml:"filler_phrases"`
	FillerWords []string   `yaml:"filler_words"`
	Thresholds  Thresholds `yaml:"thresholds"`
}

// Thresholds holds the numeric gates used by the classifier and the
// statistics aggregator. Zero values are replaced by the defaults.
type Thresholds struct {
	// LikeConfidence: "like" counts as a filler only below this confidence.
	LikeConfidence float64 `yaml:"like_confidence"`
	// SoundBlockConfidence: sound blocks are only reported below this
	// confidence.
	SoundBlockConfidence float64 `yaml:"sound_block_confidence"`
	// PauseMs: gaps between words longer than this count as pauses.
	PauseMs int64 `yaml:"pause_ms"`
	// MinDurationSec floors the total duration to avoid dividing by zero.
	MinDurationSec float64 `yaml:"min_duration_sec"`
}

// DefaultThresholds returns the stock gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LikeConfidence:       0.8,
		SoundBlockConfidence: 0.75,
		PauseMs:              500,
		MinDurationSec:       0.1,
	}
}

// DefaultVocabulary returns the built-in English vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Phrases: []string{
			"you know", "i mean", "sort of", "kind of", "you see",
			"basically", "literally", "actually",
		},
		FillerWords: []string{
			"um", "uh", "er", "ah", "like", "well",
			"so", "right", "okay", "yeah", "mhm", "hmm",
		},
		Thresholds: DefaultThresholds(),
	}
}

// LoadVocabulary reads a vocabulary from a YAML file. Missing sections fall
// back to the defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	def := DefaultVocabulary()
	if len(v.Phrases) == 0 {
		v.Phrases = def.Phrases
	}
	if len(v.FillerWords) == 0 {
		v.FillerWords = def.FillerWords
	}
	v.Thresholds = v.Thresholds.withDefaults()
	return v, nil
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.LikeConfidence <= 0 {
		t.LikeConfidence = def.LikeConfidence
	}
	if t.SoundBlockConfidence <= 0 {
		t.SoundBlockConfidence = def.SoundBlockConfidence
	}
	if t.PauseMs <= 0 {
		t.PauseMs = def.PauseMs
	}
	if t.MinDurationSec <= 0 {
		t.MinDurationSec = def.MinDurationSec
	}
	return t
}

// phrase is a configured filler phrase split into normalized tokens.
type phrase struct {
	text   string
	tokens []string
}

func compilePhrases(raw []string) []phrase {
	out := make([]phrase, 0, len(raw))
	for _, p := range raw {
		var tokens []string
		for _, f := range strings.Fields(p) {
			if t := Normalize(f); t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) == 0 {
			continue
		}
		out = append(out, phrase{text: strings.Join(tokens, " "), tokens: tokens})
	}
	return out
}

func compileFillers(raw []string) map[string]struct{} {
	out := make(map[string]struct{}, len(raw))
	for _, w := range raw {
		if t := Normalize(w); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}
