package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

const AssemblyAIBaseURL = "https://api.assemblyai.com"

var (
	// ErrTranscriptionFailed covers submission failures and jobs that end in
	// the error state.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrTimeout is returned when the job is still running after the last
	// poll.
	ErrTimeout = errors.New("transcription timed out")
)

// BatchConfig configures the AssemblyAI pre-recorded transcription client.
type BatchConfig struct {
	BaseURL      string
	APIKey       string
	LanguageCode string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
}

// BatchClient submits hosted audio to AssemblyAI and polls until the
// transcript is ready.
type BatchClient struct {
	cfg  BatchConfig
	http *http.Client
	log  zerolog.Logger
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
}

type transcriptResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Words  json.RawMessage `json:"words"`
}

func NewBatchClient(cfg BatchConfig, log zerolog.Logger) *BatchClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AssemblyAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en_us"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BatchClient{
		cfg:  cfg,
		http: client,
		log:  log.With().Str("component", "assemblyai-batch").Logger(),
	}
}

// Transcribe returns the recognized words for the audio at audioURL. The
// job is polled up to MaxAttempts times, PollInterval apart.
func (c *BatchClient) Transcribe(ctx context.Context, audioURL string) ([]*analysis.Word, error) {
	id, err := c.submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("transcript_id", id).Str("audio_url", audioURL).Msg("transcript created")

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp, err := c.get(ctx, id)
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case "completed":
			c.log.Debug().Str("transcript_id", id).Int("attempts", attempt).Msg("transcription completed")
			return decodeTranscriptWords(resp.Words), nil
		case "error":
			return nil, fmt.Errorf("%w: %s", ErrTranscriptionFailed, resp.Error)
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrTimeout, c.cfg.MaxAttempts)
}

func decodeTranscriptWords(raw json.RawMessage) []*analysis.Word {
	words, ok := analysis.DecodeWords(raw)
	if !ok {
		return []*analysis.Word{}
	}
	return words
}

func (c *BatchClient) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{AudioURL: audioURL, LanguageCode: c.cfg.LanguageCode})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var resp transcriptResponse
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: no transcript id returned", ErrTranscriptionFailed)
	}
	return resp.ID, nil
}

func (c *BatchClient) get(ctx context.Context, id string) (*transcriptResponse, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BatchClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: API returned status %d: %s", ErrTranscriptionFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrTranscriptionFailed, err)
	}
	return nil
}
