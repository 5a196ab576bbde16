package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionMetrics tracks one live coaching call.
type SessionMetrics struct {
	Provider        string
	SessionID       string
	SampleRate      int
	StartTime       time.Time
	EndTime         time.Time
	AudioBytes      int
	PartialCount    int
	FinalCount      int
	WordCount       int
	FirstResultTime *time.Time
	mu              sync.Mutex
}

func NewSessionMetrics(provider, sessionID string, sampleRate int) *SessionMetrics {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return &SessionMetrics{
		Provider:   provider,
		SessionID:  sessionID,
		SampleRate: sampleRate,
		StartTime:  time.Now(),
	}
}

func (m *SessionMetrics) AddAudioBytes(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioBytes += bytes
}

// AddResult counts a recognition result. words is the number of words
// carried by a final result.
func (m *SessionMetrics) AddResult(isFinal bool, words int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}

	if isFinal {
		m.FinalCount++
		m.WordCount += words
	} else {
		m.PartialCount++
	}
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// AudioDuration is the length of received audio, assuming 16-bit mono PCM.
func (m *SessionMetrics) AudioDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioDuration()
}

func (m *SessionMetrics) audioDuration() time.Duration {
	secs := float64(m.AudioBytes) / float64(m.SampleRate*2)
	return time.Duration(secs * float64(time.Second))
}

// MarshalZerologObject lets a session be logged with zerolog's Object.
func (m *SessionMetrics) MarshalZerologObject(e *zerolog.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	e.Str("provider", m.Provider).
		Str("session_id", m.SessionID).
		Dur("duration", end.Sub(m.StartTime)).
		Dur("audio_duration", m.audioDuration()).
		Int("audio_bytes", m.AudioBytes).
		Int("partial_results", m.PartialCount).
		Int("final_results", m.FinalCount).
		Int("words", m.WordCount)
	if m.FirstResultTime != nil {
		e.Dur("first_result_latency", m.FirstResultTime.Sub(m.StartTime))
	}
}
