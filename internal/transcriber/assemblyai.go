package transcriber

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

const (
	AssemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"

	// AssemblyAI accepts chunks between 50ms and 1000ms. At 16kHz 16-bit
	// that is 1600 bytes minimum; the maximum stays under 1000ms.
	minChunkSize = 1600
	maxChunkSize = 30400

	streamingSampleRate = 16000
	sendInterval        = 50 * time.Millisecond
	terminateGrace      = 500 * time.Millisecond
)

// StreamingConfig configures the AssemblyAI realtime connection.
type StreamingConfig struct {
	URL        string // defaults to AssemblyAIWebSocketURL
	APIKey     string
	SampleRate int // input rate; 8000 is upsampled
}

type AssemblyAITranscriber struct {
	conn        *websocket.Conn
	results     chan Segment
	done        chan struct{}
	transcript  transcript
	writeMu     sync.Mutex
	sampleRate  int
	sessionID   string
	audioBuffer []byte
	bufferMu    sync.Mutex
	stopSending chan struct{}
	wg          sync.WaitGroup
	log         zerolog.Logger
}

// AssemblyAIMessage covers the v3 streaming message types we handle:
// Begin, Turn and Termination.
type AssemblyAIMessage struct {
	Type               string       `json:"type"`
	ID                 string       `json:"id,omitempty"`
	ExpiresAt          int64        `json:"expires_at,omitempty"`
	Transcript         string       `json:"transcript,omitempty"`
	TurnOrder          int          `json:"turn_order,omitempty"`
	EndOfTurn          bool         `json:"end_of_turn,omitempty"`
	TurnIsFormatted    bool         `json:"turn_is_formatted,omitempty"`
	Words              []StreamWord `json:"words,omitempty"`
	AudioDurationSec   float64      `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64      `json:"session_duration_seconds,omitempty"`
}

// StreamWord is a word inside a Turn. Times are milliseconds from the start
// of the stream.
type StreamWord struct {
	Text        string  `json:"text"`
	Start       int64   `json:"start"`
	End         int64   `json:"end"`
	Confidence  float64 `json:"confidence"`
	WordIsFinal bool    `json:"word_is_final"`
}

func NewAssemblyAITranscriber(cfg StreamingConfig, log zerolog.Logger) (*AssemblyAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key is required")
	}
	if cfg.URL == "" {
		cfg.URL = AssemblyAIWebSocketURL
	}

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=true", cfg.URL, streamingSampleRate)

	header := http.Header{}
	header.Add("Authorization", cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	at := &AssemblyAITranscriber{
		conn:        conn,
		results:     make(chan Segment, 100),
		done:        make(chan struct{}),
		sampleRate:  cfg.SampleRate,
		audioBuffer: make([]byte, 0, 8000),
		stopSending: make(chan struct{}),
		log:         log.With().Str("provider", "assemblyai").Logger(),
	}

	go at.handleResults()

	at.wg.Add(1)
	go at.audioSender()

	return at, nil
}

func (at *AssemblyAITranscriber) audioSender() {
	defer at.wg.Done()

	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			at.sendBufferedAudio()
		case <-at.stopSending:
			at.sendBufferedAudio()
			return
		}
	}
}

func (at *AssemblyAITranscriber) sendBufferedAudio() {
	at.bufferMu.Lock()
	defer at.bufferMu.Unlock()

	for len(at.audioBuffer) >= minChunkSize {
		chunkSize := min(len(at.audioBuffer), maxChunkSize)

		if err := at.write(websocket.BinaryMessage, at.audioBuffer[:chunkSize]); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				at.log.Warn().Err(err).Msg("failed to send audio")
			}
			at.audioBuffer = at.audioBuffer[:0]
			return
		}

		at.audioBuffer = at.audioBuffer[chunkSize:]
	}
}

func (at *AssemblyAITranscriber) write(messageType int, data []byte) error {
	at.writeMu.Lock()
	defer at.writeMu.Unlock()
	return at.conn.WriteMessage(messageType, data)
}

func (at *AssemblyAITranscriber) ProcessAudio(audioData []byte) error {
	at.bufferMu.Lock()
	defer at.bufferMu.Unlock()

	processed := audioData
	if at.sampleRate == 8000 {
		processed = resample8to16(audioData)
	}
	at.audioBuffer = append(at.audioBuffer, processed...)

	return nil
}

// resample8to16 upsamples 16-bit little-endian PCM from 8kHz to 16kHz by
// linear interpolation.
func resample8to16(input []byte) []byte {
	samples := make([]int16, len(input)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}

	upsampled := make([]int16, len(samples)*2)
	for i := 0; i < len(samples)-1; i++ {
		upsampled[i*2] = samples[i]
		upsampled[i*2+1] = int16((int32(samples[i]) + int32(samples[i+1])) / 2)
	}
	if n := len(samples); n > 0 {
		upsampled[len(upsampled)-2] = samples[n-1]
		upsampled[len(upsampled)-1] = samples[n-1]
	}

	output := make([]byte, len(upsampled)*2)
	for i, sample := range upsampled {
		binary.LittleEndian.PutUint16(output[i*2:i*2+2], uint16(sample))
	}
	return output
}

func (at *AssemblyAITranscriber) handleResults() {
	defer close(at.done)
	defer close(at.results)

	for {
		_, message, err := at.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				at.log.Warn().Err(err).Msg("websocket closed")
			}
			return
		}

		var msg AssemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			at.log.Warn().Err(err).Msg("failed to parse message")
			continue
		}

		switch msg.Type {
		case "Begin":
			at.sessionID = msg.ID
			at.log.Info().Str("assemblyai_session", msg.ID).Msg("streaming session started")

		case "Turn":
			if msg.Transcript == "" {
				continue
			}
			if !msg.TurnIsFormatted {
				at.results <- Segment{Text: msg.Transcript}
				continue
			}
			words := turnWords(msg.Words)
			at.transcript.addFinal(msg.Transcript, words)
			at.results <- Segment{Text: msg.Transcript, IsFinal: true, Words: words}

		case "Termination":
			at.log.Info().
				Float64("audio_duration_sec", msg.AudioDurationSec).
				Float64("session_duration_sec", msg.SessionDurationSec).
				Msg("streaming session terminated")
		}
	}
}

func turnWords(in []StreamWord) []*analysis.Word {
	out := make([]*analysis.Word, 0, len(in))
	for _, w := range in {
		out = append(out, analysis.NewWord(w.Text, w.Start, w.End, w.Confidence))
	}
	return out
}

func (at *AssemblyAITranscriber) Results() <-chan Segment {
	return at.results
}

func (at *AssemblyAITranscriber) Words() []*analysis.Word {
	return at.transcript.Words()
}

func (at *AssemblyAITranscriber) Transcript() string {
	return at.transcript.String()
}

func (at *AssemblyAITranscriber) AddMarker(marker string) {
	at.transcript.addMarker(marker)
}

// Close flushes buffered audio, asks AssemblyAI to terminate the session and
// waits briefly for the final turn before closing the connection.
func (at *AssemblyAITranscriber) Close() error {
	close(at.stopSending)
	at.wg.Wait()

	at.bufferMu.Lock()
	if len(at.audioBuffer) > 0 {
		_ = at.write(websocket.BinaryMessage, at.audioBuffer)
		at.audioBuffer = at.audioBuffer[:0]
	}
	at.bufferMu.Unlock()

	if msg, err := json.Marshal(AssemblyAIMessage{Type: "Terminate"}); err == nil {
		if err := at.write(websocket.TextMessage, msg); err == nil {
			select {
			case <-at.done:
			case <-time.After(terminateGrace):
			}
		}
	}

	return at.conn.Close()
}
