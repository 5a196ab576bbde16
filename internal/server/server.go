// Package server runs live coaching calls over AudioSocket: the caller's
// audio is transcribed as it arrives and the whole call is analyzed for
// disfluencies when it ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/audio"
	"github.com/amanullahtanweer/fluency-coach/internal/logging"
	"github.com/amanullahtanweer/fluency-coach/internal/transcriber"
)

// NewTranscriberFunc opens a streaming recognizer for one call.
type NewTranscriberFunc func() (transcriber.Transcriber, error)

// SessionRecorder tracks the number of calls in progress.
type SessionRecorder interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context)
}

type Config struct {
	Host        string
	Port        int
	Provider    string // reported in logs and session metrics
	SampleRate  int
	LogDir      string // JSONL session logs; empty disables them
	PromptFile  string // played when the call connects
	IdleTimeout time.Duration
}

// Deps are the collaborators shared by every call. NewTranscriber and
// Analysis are required.
type Deps struct {
	NewTranscriber NewTranscriberFunc
	Analysis       *analysis.Service
	Player         *audio.Player
	Recorder       SessionRecorder
	Log            zerolog.Logger
}

type Server struct {
	config   Config
	deps     Deps
	log      zerolog.Logger
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

func New(config Config, deps Deps) (*Server, error) {
	if deps.NewTranscriber == nil {
		return nil, errors.New("server requires a transcriber factory")
	}
	if deps.Analysis == nil {
		return nil, errors.New("server requires an analysis service")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 8000
	}

	log := logging.Component(deps.Log, "audiosocket")

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session log directory: %w", err)
		}
	}
	if config.PromptFile != "" {
		if deps.Player == nil {
			log.Warn().Str("file", config.PromptFile).Msg("prompt configured without an audio directory, skipping")
			config.PromptFile = ""
		} else if _, ok := deps.Player.GetAudio(config.PromptFile); !ok {
			return nil, fmt.Errorf("prompt audio not found: %s", config.PromptFile)
		}
	}

	return &Server{
		config:   config,
		deps:     deps,
		log:      log,
		shutdown: make(chan struct{}),
	}, nil
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts calls on listener until Stop. It takes ownership of the
// listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Info().
		Str("addr", listener.Addr().String()).
		Str("provider", s.config.Provider).
		Dur("idle_timeout", s.config.IdleTimeout).
		Msg("AudioSocket server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}

		if !s.track() {
			conn.Close()
			return nil
		}
		go s.handleConnection(conn)
	}
}

// track adds a call to the wait group. It refuses once Stop has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return false
	default:
		s.wg.Add(1)
		return true
	}
}

// Addr is the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for calls in progress to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("new connection")

	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get call id")
		return
	}

	session, err := s.newSession(id, conn)
	if err != nil {
		log.Error().Err(err).Str(logging.FieldSessionID, id.String()).Msg("failed to start session")
		return
	}
	session.run()
}
