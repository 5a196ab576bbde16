package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/logging"
	"github.com/amanullahtanweer/fluency-coach/internal/metrics"
	"github.com/amanullahtanweer/fluency-coach/internal/transcriber"
)

// hangupGrace is how long the caller has to drop the line after we ask
// Asterisk to hang up.
const hangupGrace = 2 * time.Second

const (
	reasonCallerHangup = "caller_hangup"
	reasonDisconnect   = "disconnect"
	reasonIdleTimeout  = "idle_timeout"
	reasonShutdown     = "shutdown"
	reasonError        = "error"
)

// Session is one live coaching call.
type Session struct {
	id          uuid.UUID
	conn        net.Conn
	server      *Server
	transcriber transcriber.Transcriber
	log         zerolog.Logger
	events      *SessionLogger
	stats       *metrics.SessionMetrics
	timer       *IdleTimer
	startTime   time.Time

	writeMu   sync.Mutex
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	endReason string
}

func (s *Server) newSession(id uuid.UUID, conn net.Conn) (*Session, error) {
	tr, err := s.deps.NewTranscriber()
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	sessionID := id.String()
	started := time.Now()
	log := s.log.With().Str(logging.FieldSessionID, sessionID).Logger()

	var events *SessionLogger
	if s.config.LogDir != "" {
		events, err = NewSessionLogger(s.config.LogDir, sessionID, started)
		if err != nil {
			log.Warn().Err(err).Msg("session log disabled")
		}
	}

	return &Session{
		id:          id,
		conn:        conn,
		server:      s,
		transcriber: tr,
		log:         log,
		events:      events,
		stats:       metrics.NewSessionMetrics(s.config.Provider, sessionID, s.config.SampleRate),
		timer:       NewIdleTimer(s.config.IdleTimeout),
		startTime:   started,
		done:        make(chan struct{}),
	}, nil
}

func (sess *Session) GetID() string {
	return sess.id.String()
}

// Write sends a frame to the caller. Frames from concurrent writers never
// interleave.
func (sess *Session) Write(p []byte) (int, error) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.Write(p)
}

func (sess *Session) run() {
	ctx := context.Background()
	if rec := sess.server.deps.Recorder; rec != nil {
		rec.SessionStarted(ctx)
		defer rec.SessionEnded(ctx)
	}

	cfg := sess.server.config
	sess.log.Info().Str("provider", cfg.Provider).Msg("session started")
	sess.events.LogSessionStart(sess.GetID(), cfg.Provider, cfg.SampleRate, sess.startTime)

	sess.wg.Add(2)
	go sess.handleTranscription()
	go sess.watch()
	sess.timer.Start()

	if cfg.PromptFile != "" {
		sess.wg.Add(1)
		go sess.playPrompt(cfg.PromptFile)
	}

	reason := sess.readLoop()
	sess.finalize(ctx, reason)
}

// readLoop consumes caller frames until the call ends and reports why.
func (sess *Session) readLoop() string {
	for {
		msg, err := audiosocket.NextMessage(sess.conn)
		if err != nil {
			if r := sess.requestedEnd(); r != "" {
				return r
			}
			if errors.Is(err, io.EOF) {
				return reasonDisconnect
			}
			sess.log.Warn().Err(err).Msg("failed to read message")
			return reasonError
		}

		if msg.Kind() == audiosocket.KindHangup {
			sess.log.Info().Msg("received hangup")
			return reasonCallerHangup
		}

		if err := sess.handleMessage(msg); err != nil {
			sess.log.Warn().Err(err).Msg("error handling message")
			return reasonError
		}
	}
}

func (sess *Session) handleMessage(msg audiosocket.Message) error {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		audioData := msg.Payload()
		if len(audioData) == 0 {
			return nil
		}
		sess.stats.AddAudioBytes(len(audioData))
		if err := sess.transcriber.ProcessAudio(audioData); err != nil {
			return fmt.Errorf("failed to process audio: %w", err)
		}

	case audiosocket.KindDTMF:
		if len(msg.Payload()) > 0 {
			marker := fmt.Sprintf("[DTMF: %c]", msg.Payload()[0])
			sess.log.Debug().Str("marker", marker).Msg("dtmf")
			sess.transcriber.AddMarker(marker)
			sess.events.LogMarker(sess.GetID(), marker)
		}

	case audiosocket.KindSilence:
		sess.log.Debug().Msg("silence detected")
		sess.transcriber.AddMarker("[SILENCE]")

	case audiosocket.KindError:
		return fmt.Errorf("received error code: %d", msg.ErrorCode())
	}
	return nil
}

// handleTranscription drains recognizer results until the transcriber
// closes its channel.
func (sess *Session) handleTranscription() {
	defer sess.wg.Done()

	for seg := range sess.transcriber.Results() {
		sess.stats.AddResult(seg.IsFinal, len(seg.Words))
		if seg.Text == "" {
			continue
		}
		sess.timer.Reset()

		if seg.IsFinal {
			sess.log.Info().Str("text", seg.Text).Int("words", len(seg.Words)).Msg("final")
			sess.events.LogSegment(sess.GetID(), seg.Text, len(seg.Words))
		} else {
			sess.log.Debug().Str("text", seg.Text).Msg("partial")
		}
	}
}

// watch ends the call when the caller stays silent too long or the server
// shuts down.
func (sess *Session) watch() {
	defer sess.wg.Done()

	select {
	case <-sess.timer.C():
		idle := sess.timer.Duration()
		sess.log.Info().Dur("idle", idle).Msg("no speech, ending call")
		sess.events.LogTimeout(sess.GetID(), idle)
		sess.endCall(reasonIdleTimeout)
	case <-sess.server.shutdown:
		sess.endCall(reasonShutdown)
	case <-sess.done:
	}
}

func (sess *Session) playPrompt(file string) {
	defer sess.wg.Done()

	completed, err := sess.server.deps.Player.PlayAudioWithStop(sess, file, sess.done)
	if err != nil {
		sess.log.Warn().Err(err).Str("file", file).Msg("failed to play prompt")
		return
	}
	sess.events.LogPrompt(sess.GetID(), file, completed)
}

// endCall asks Asterisk to hang up and gives the caller hangupGrace to go.
func (sess *Session) endCall(reason string) {
	sess.mu.Lock()
	if sess.endReason != "" {
		sess.mu.Unlock()
		return
	}
	sess.endReason = reason
	sess.mu.Unlock()

	sess.writeMu.Lock()
	_ = sess.conn.SetWriteDeadline(time.Now().Add(hangupGrace))
	_, err := sess.conn.Write(audiosocket.HangupMessage())
	sess.writeMu.Unlock()
	if err != nil {
		sess.log.Warn().Err(err).Msg("failed to send hangup command")
	} else {
		sess.log.Debug().Str("reason", reason).Msg("hangup command sent")
	}
	_ = sess.conn.SetReadDeadline(time.Now().Add(hangupGrace))
}

func (sess *Session) requestedEnd() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.endReason
}

// finalize stops the background work, flushes the recognizer and analyzes
// every word heard on the call.
func (sess *Session) finalize(ctx context.Context, reason string) {
	sess.timer.Stop()
	close(sess.done)
	// Unblock a prompt or hangup write stuck on a caller that stopped reading.
	_ = sess.conn.SetWriteDeadline(time.Now())

	if err := sess.transcriber.Close(); err != nil {
		sess.log.Warn().Err(err).Msg("failed to close transcriber")
	}
	sess.wg.Wait()

	res := sess.server.deps.Analysis.Analyze(ctx, sess.transcriber.Words())
	sess.stats.Finalize()

	sess.log.Info().
		Str("reason", reason).
		Object("session", sess.stats).
		Int("fluency_score", res.Statistics.FluencyScore).
		Int("disfluencies", len(res.Disfluencies)).
		Msg(res.Summary())

	now := time.Now()
	sess.events.LogAnalysis(sess.GetID(), res)
	sess.events.LogHangup(sess.GetID(), reason)
	sess.events.LogSessionEnd(sess.GetID(), now, now.Sub(sess.startTime))
	if err := sess.events.Close(); err != nil {
		sess.log.Warn().Err(err).Msg("failed to close session log")
	}
}
