// Package transcriber turns audio into time-aligned words. Streaming
// providers feed live calls; [BatchClient] transcribes hosted recordings.
package transcriber

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

// Transcriber is the common interface for all streaming providers.
type Transcriber interface {
	ProcessAudio(audioData []byte) error
	Results() <-chan Segment
	// Words returns every word from final segments so far, in order.
	Words() []*analysis.Word
	Transcript() string
	AddMarker(marker string)
	Close() error
}

// Segment is one recognition result. Words is only set on final segments.
type Segment struct {
	Text    string
	IsFinal bool
	Words   []*analysis.Word
}

// Config selects and configures a streaming provider.
type Config struct {
	Provider      string // "vosk" or "assemblyai"
	VoskServerURL string
	AssemblyAIKey string
	StreamingURL  string
	SampleRate    int
}

// New connects the provider named in cfg.
func New(cfg Config, log zerolog.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case "vosk":
		return NewVoskTranscriber(cfg.VoskServerURL, cfg.SampleRate, log)
	case "assemblyai":
		return NewAssemblyAITranscriber(StreamingConfig{
			URL:        cfg.StreamingURL,
			APIKey:     cfg.AssemblyAIKey,
			SampleRate: cfg.SampleRate,
		}, log)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// transcript accumulates final text and words for a session.
type transcript struct {
	mu    sync.Mutex
	text  strings.Builder
	words []*analysis.Word
}

func (t *transcript) addFinal(text string, words []*analysis.Word) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendText(text)
	t.words = append(t.words, words...)
}

func (t *transcript) addMarker(marker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendText(marker)
}

func (t *transcript) appendText(s string) {
	if t.text.Len() > 0 {
		t.text.WriteString(" ")
	}
	t.text.WriteString(s)
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

func (t *transcript) Words() []*analysis.Word {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*analysis.Word, len(t.words))
	copy(out, t.words)
	return out
}
