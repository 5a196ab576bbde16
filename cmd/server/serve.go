package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/api"
	"github.com/amanullahtanweer/fluency-coach/internal/audio"
	"github.com/amanullahtanweer/fluency-coach/internal/cache"
	"github.com/amanullahtanweer/fluency-coach/internal/config"
	"github.com/amanullahtanweer/fluency-coach/internal/logging"
	"github.com/amanullahtanweer/fluency-coach/internal/metrics"
	"github.com/amanullahtanweer/fluency-coach/internal/scripts"
	"github.com/amanullahtanweer/fluency-coach/internal/server"
	"github.com/amanullahtanweer/fluency-coach/internal/transcriber"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the AudioSocket coaching server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("metrics provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics provider shutdown failed")
		}
	}()
	m, err := metrics.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	analyzer, err := loadAnalyzer(cfg.Analysis.VocabularyFile, log)
	if err != nil {
		return err
	}
	svc := analysis.NewService(analyzer, log, m)

	deps := api.Deps{
		Analysis:       svc,
		Provider:       "assemblyai",
		Recorder:       m,
		MetricsHandler: provider.Handler(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Log:            log,
	}

	if cfg.Transcription.AssemblyAIKey != "" {
		deps.Transcriber = transcriber.NewBatchClient(transcriber.BatchConfig{
			BaseURL:      cfg.Transcription.BaseURL,
			APIKey:       cfg.Transcription.AssemblyAIKey,
			LanguageCode: cfg.Transcription.LanguageCode,
			PollInterval: cfg.Transcription.PollInterval,
			MaxAttempts:  cfg.Transcription.MaxAttempts,
		}, log)
	} else {
		log.Warn().Msg("ASSEMBLYAI_API_KEY not set, /analyze-speech is disabled")
	}

	if cfg.Scripts.OpenAIKey != "" {
		gen, err := scripts.NewOpenAIGenerator(scripts.Config{
			APIKey:      cfg.Scripts.OpenAIKey,
			Model:       cfg.Scripts.Model,
			MaxTokens:   cfg.Scripts.MaxTokens,
			Temperature: cfg.Scripts.Temperature,
		}, log)
		if err != nil {
			return fmt.Errorf("script generator: %w", err)
		}
		deps.Scripts = gen
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, /generate-script is disabled")
	}

	if cfg.Redis.Enabled {
		rdb, err := connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, caching and rate limiting disabled")
		} else {
			defer rdb.Close()
			deps.Cache = cache.NewResultCache(rdb, cfg.Redis.CacheTTL, log)
			deps.Limiter = cache.NewRateLimiter(rdb, cfg.Redis.RateLimit, cfg.Redis.RateWindow)
		}
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.AudioSocket.Enabled {
		srv, err := newAudioSocketServer(cfg, svc, m, log)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("shut down")
	return err
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*redis.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rdb, err := cache.NewClient(connectCtx, cache.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return rdb, nil
}

func newAudioSocketServer(cfg *config.Config, svc *analysis.Service, m *metrics.Metrics, log zerolog.Logger) (*server.Server, error) {
	var player *audio.Player
	if cfg.Sessions.AudioDir != "" {
		var err error
		player, err = audio.NewPlayer(cfg.Sessions.AudioDir, log)
		if err != nil {
			return nil, fmt.Errorf("audio player: %w", err)
		}
	}

	trCfg := transcriber.Config{
		Provider:      cfg.Transcription.Provider,
		VoskServerURL: cfg.Transcription.VoskServerURL,
		AssemblyAIKey: cfg.Transcription.AssemblyAIKey,
		StreamingURL:  cfg.Transcription.StreamingURL,
		SampleRate:    cfg.Transcription.SampleRate,
	}

	return server.New(server.Config{
		Host:        cfg.AudioSocket.Host,
		Port:        cfg.AudioSocket.Port,
		Provider:    cfg.Transcription.Provider,
		SampleRate:  cfg.Transcription.SampleRate,
		LogDir:      cfg.Sessions.LogDir,
		PromptFile:  cfg.Sessions.PromptFile,
		IdleTimeout: cfg.Sessions.IdleTimeout,
	}, server.Deps{
		NewTranscriber: func() (transcriber.Transcriber, error) {
			return transcriber.New(trCfg, log)
		},
		Analysis: svc,
		Player:   player,
		Recorder: m,
		Log:      log,
	})
}
