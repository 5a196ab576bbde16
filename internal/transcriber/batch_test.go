package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeAssemblyAI struct {
	mu        sync.Mutex
	polls     atomic.Int32
	submitted transcriptRequest
	auth      string
	// respond returns the status document for the nth poll (1-based).
	respond func(n int) string
	submit  int
}

func (f *fakeAssemblyAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
		if f.submit != 0 {
			http.Error(w, `{"error":"bad request"}`, f.submit)
			return
		}
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&f.submitted)
		f.mu.Unlock()
		w.Write([]byte(`{"id":"12345","status":"queued"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/12345":
		n := int(f.polls.Add(1))
		w.Write([]byte(f.respond(n)))
	default:
		http.NotFound(w, r)
	}
}

func newBatchClient(t *testing.T, fake *fakeAssemblyAI, attempts int) *BatchClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewBatchClient(BatchConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		PollInterval: time.Millisecond,
		MaxAttempts:  attempts,
	}, zerolog.Nop())
}

func TestBatchTranscribeCompletes(t *testing.T) {
	fake := &fakeAssemblyAI{respond: func(n int) string {
		if n < 3 {
			return `{"id":"12345","status":"processing"}`
		}
		return `{"id":"12345","status":"completed","words":[{"text":"you","start":100,"end":200,"confidence":0.9},{"text":"know","start":200,"end":300,"confidence":0.9}]}`
	}}
	client := newBatchClient(t, fake, 30)

	words, err := client.Transcribe(context.Background(), "https://example.com/audio.mp3")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(words) != 2 || *words[1].Text != "know" || *words[1].End != 300 {
		t.Errorf("Unexpected words: %+v", words)
	}
	if fake.polls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", fake.polls.Load())
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.submitted.AudioURL != "https://example.com/audio.mp3" || fake.submitted.LanguageCode != "en_us" {
		t.Errorf("Unexpected submission: %+v", fake.submitted)
	}
	if fake.auth != "test-key" {
		t.Errorf("Expected API key header, got %q", fake.auth)
	}
}

func TestBatchTranscribeWithoutWords(t *testing.T) {
	fake := &fakeAssemblyAI{respond: func(int) string {
		return `{"id":"12345","status":"completed","words":null}`
	}}

	words, err := newBatchClient(t, fake, 30).Transcribe(context.Background(), "https://example.com/a.mp3")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if words == nil || len(words) != 0 {
		t.Errorf("Expected empty word list, got %+v", words)
	}
}

func TestBatchTranscribeErrors(t *testing.T) {
	testCases := []struct {
		description string
		fake        *fakeAssemblyAI
		wantErr     error
		wantPolls   int32
	}{
		{
			description: "job error",
			fake: &fakeAssemblyAI{respond: func(int) string {
				return `{"id":"12345","status":"error","error":"audio could not be decoded"}`
			}},
			wantErr:   ErrTranscriptionFailed,
			wantPolls: 1,
		},
		{
			description: "submit rejected",
			fake:        &fakeAssemblyAI{submit: http.StatusInternalServerError},
			wantErr:     ErrTranscriptionFailed,
			wantPolls:   0,
		},
		{
			description: "still processing after last attempt",
			fake: &fakeAssemblyAI{respond: func(int) string {
				return `{"id":"12345","status":"processing"}`
			}},
			wantErr:   ErrTimeout,
			wantPolls: 3,
		},
		{
			description: "malformed status document",
			fake: &fakeAssemblyAI{respond: func(int) string {
				return `not json`
			}},
			wantErr:   ErrTranscriptionFailed,
			wantPolls: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := newBatchClient(t, tc.fake, 3).Transcribe(context.Background(), "https://example.com/a.mp3")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Expected %v, got %v", tc.wantErr, err)
			}
			if got := tc.fake.polls.Load(); got != tc.wantPolls {
				t.Errorf("Expected %d polls, got %d", tc.wantPolls, got)
			}
		})
	}
}

func TestBatchTranscribeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewBatchClient(BatchConfig{BaseURL: url, APIKey: "k"}, zerolog.Nop())
	if _, err := client.Transcribe(context.Background(), "https://example.com/a.mp3"); !errors.Is(err, ErrTranscriptionFailed) {
		t.Errorf("Expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestBatchTranscribeHonorsContext(t *testing.T) {
	fake := &fakeAssemblyAI{respond: func(int) string {
		return `{"id":"12345","status":"processing"}`
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewBatchClient(BatchConfig{
		BaseURL:      srv.URL,
		PollInterval: time.Hour,
		MaxAttempts:  30,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Transcribe(ctx, "https://example.com/a.mp3")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestNewBatchClientDefaults(t *testing.T) {
	client := NewBatchClient(BatchConfig{BaseURL: "https://api.example.com/"}, zerolog.Nop())

	if client.cfg.BaseURL != "https://api.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.cfg.BaseURL)
	}
	if client.cfg.PollInterval != time.Second || client.cfg.MaxAttempts != 30 {
		t.Errorf("Unexpected polling defaults: %v / %d", client.cfg.PollInterval, client.cfg.MaxAttempts)
	}
}
