package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

// SessionLogger writes one JSON record per session event to a .jsonl file.
// A nil *SessionLogger discards everything.
type SessionLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

type logRecord struct {
	Timestamp  string                `json:"ts"`
	Event      string                `json:"event"`
	SessionID  string                `json:"session_id"`
	Text       string                `json:"text,omitempty"`
	Words      int                   `json:"words,omitempty"`
	Statistics *analysis.Statistics  `json:"statistics,omitempty"`
	Events     []analysis.Disfluency `json:"disfluencies,omitempty"`
	Details    map[string]string     `json:"details,omitempty"`
}

// NewSessionLogger creates the log under outputDir, named after the start
// time and the first eight characters of the session id.
func NewSessionLogger(outputDir, sessionID string, started time.Time) (*SessionLogger, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session log dir: %w", err)
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	return &SessionLogger{file: f, path: filename}, nil
}

// Path is the file being written.
func (sl *SessionLogger) Path() string {
	if sl == nil {
		return ""
	}
	return sl.path
}

func (sl *SessionLogger) Close() error {
	if sl == nil {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file != nil {
		err := sl.file.Close()
		sl.file = nil
		return err
	}
	return nil
}

func (sl *SessionLogger) write(rec logRecord) {
	if sl == nil {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	rec.Text = strings.TrimSpace(rec.Text)
	_ = json.NewEncoder(sl.file).Encode(rec)
}

func (sl *SessionLogger) LogSessionStart(sessionID, provider string, sampleRate int, started time.Time) {
	sl.write(logRecord{
		Timestamp: started.Format(time.RFC3339Nano),
		Event:     "session_start",
		SessionID: sessionID,
		Details:   map[string]string{"provider": provider, "sample_rate": strconv.Itoa(sampleRate)},
	})
}

func (sl *SessionLogger) LogPrompt(sessionID, file string, completed bool) {
	sl.write(logRecord{
		Event:     "prompt",
		SessionID: sessionID,
		Details:   map[string]string{"file": file, "completed": strconv.FormatBool(completed)},
	})
}

func (sl *SessionLogger) LogSegment(sessionID, text string, words int) {
	sl.write(logRecord{Event: "segment", SessionID: sessionID, Text: text, Words: words})
}

func (sl *SessionLogger) LogMarker(sessionID, marker string) {
	sl.write(logRecord{Event: "marker", SessionID: sessionID, Text: marker})
}

func (sl *SessionLogger) LogTimeout(sessionID string, idle time.Duration) {
	sl.write(logRecord{Event: "timeout", SessionID: sessionID, Details: map[string]string{"idle": idle.String()}})
}

// LogAnalysis records the coaching result for the whole call.
func (sl *SessionLogger) LogAnalysis(sessionID string, res analysis.Result) {
	stats := res.Statistics
	sl.write(logRecord{
		Event:      "analysis",
		SessionID:  sessionID,
		Text:       res.Transcription,
		Statistics: &stats,
		Events:     res.Disfluencies,
		Details:    map[string]string{"summary": res.Summary()},
	})
}

func (sl *SessionLogger) LogHangup(sessionID, reason string) {
	sl.write(logRecord{Event: "hangup", SessionID: sessionID, Details: map[string]string{"reason": reason}})
}

func (sl *SessionLogger) LogSessionEnd(sessionID string, ended time.Time, duration time.Duration) {
	sl.write(logRecord{
		Timestamp: ended.Format(time.RFC3339Nano),
		Event:     "session_end",
		SessionID: sessionID,
		Details:   map[string]string{"duration": duration.String()},
	})
}
