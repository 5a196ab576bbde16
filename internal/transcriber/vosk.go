package transcriber

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

// drainTimeout bounds how long Close waits for the final result after EOF.
const drainTimeout = 2 * time.Second

type VoskTranscriber struct {
	conn       *websocket.Conn
	results    chan Segment
	done       chan struct{}
	transcript transcript
	writeMu    sync.Mutex
	sampleRate int
	log        zerolog.Logger
}

// VoskResult is a message from the Vosk websocket server. Word times are in
// seconds.
type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

func NewVoskTranscriber(serverURL string, sampleRate int, log zerolog.Logger) (*VoskTranscriber, error) {
	url := fmt.Sprintf("%s/ws?sample_rate=%d", serverURL, sampleRate)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Vosk server: %w", err)
	}

	vt := &VoskTranscriber{
		conn:       conn,
		results:    make(chan Segment, 100),
		done:       make(chan struct{}),
		sampleRate: sampleRate,
		log:        log.With().Str("provider", "vosk").Logger(),
	}

	go vt.handleResults()

	return vt, nil
}

func (vt *VoskTranscriber) ProcessAudio(audioData []byte) error {
	vt.writeMu.Lock()
	defer vt.writeMu.Unlock()

	if err := vt.conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
		return fmt.Errorf("failed to send audio to Vosk: %w", err)
	}
	return nil
}

func (vt *VoskTranscriber) handleResults() {
	defer close(vt.done)
	defer close(vt.results)

	for {
		_, message, err := vt.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				vt.log.Warn().Err(err).Msg("websocket closed")
			}
			return
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			vt.log.Warn().Err(err).Msg("failed to parse result")
			continue
		}

		if result.Partial != "" {
			vt.results <- Segment{Text: result.Partial}
		}

		if result.Text != "" {
			words := result.words()
			vt.transcript.addFinal(result.Text, words)
			vt.results <- Segment{Text: result.Text, IsFinal: true, Words: words}
		}
	}
}

// words converts Vosk's second-based word timings to milliseconds.
func (r VoskResult) words() []*analysis.Word {
	out := make([]*analysis.Word, 0, len(r.Result))
	for _, w := range r.Result {
		out = append(out, analysis.NewWord(w.Word, secondsToMs(w.Start), secondsToMs(w.End), w.Conf))
	}
	return out
}

func secondsToMs(s float64) int64 {
	return int64(math.Round(s * 1000))
}

func (vt *VoskTranscriber) Results() <-chan Segment {
	return vt.results
}

func (vt *VoskTranscriber) Words() []*analysis.Word {
	return vt.transcript.Words()
}

func (vt *VoskTranscriber) Transcript() string {
	return vt.transcript.String()
}

func (vt *VoskTranscriber) AddMarker(marker string) {
	vt.transcript.addMarker(marker)
}

// Close asks Vosk for its final result and waits briefly for it before
// closing the connection.
func (vt *VoskTranscriber) Close() error {
	vt.writeMu.Lock()
	err := vt.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	vt.writeMu.Unlock()
	if err != nil {
		vt.log.Warn().Err(err).Msg("failed to send EOF")
	} else {
		select {
		case <-vt.done:
		case <-time.After(drainTimeout):
		}
	}

	return vt.conn.Close()
}
