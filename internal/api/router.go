// Package api exposes the analysis engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/cache"
	"github.com/amanullahtanweer/fluency-coach/internal/scripts"
)

const Banner = "Speech Analysis App Backend is Running."

// SpeechTranscriber turns a hosted recording into timed words.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, audioURL string) ([]*analysis.Word, error)
}

// ResultStore caches finished analyses by audio URL.
type ResultStore interface {
	Get(ctx context.Context, audioURL string) (analysis.Result, error)
	Set(ctx context.Context, audioURL string, res analysis.Result) error
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, client string) (cache.Decision, error)
}

// HTTPRecorder receives request and recognizer timings.
type HTTPRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration)
	RecordASR(ctx context.Context, provider string, d time.Duration, err error)
}

// Deps are the collaborators of the router. Analysis is required; every
// other field may be left nil to disable the feature it backs.
type Deps struct {
	Analysis       *analysis.Service
	Transcriber    SpeechTranscriber
	Provider       string
	Cache          ResultStore
	Limiter        Limiter
	Scripts        scripts.Generator
	Recorder       HTTPRecorder
	MetricsHandler http.Handler
	AllowedOrigins []string
	RequestTimeout time.Duration
	Log            zerolog.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Provider == "" {
		deps.Provider = "assemblyai"
	}
	h := &handlers{deps: deps, log: deps.Log.With().Str("component", "api").Logger()}

	r := gin.New()
	r.Use(requestID(), accessLog(h.log, deps.Recorder), recovery(h.log), cors(deps.AllowedOrigins))

	r.GET("/", h.banner)
	r.GET("/health", h.health)
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	speech := []gin.HandlerFunc{}
	if deps.Limiter != nil {
		speech = append(speech, rateLimit(deps.Limiter, h.log))
	}
	speech = append(speech, h.analyzeSpeech)
	r.POST("/analyze-speech", speech...)
	r.POST("/analyze-words", h.analyzeWords)
	r.POST("/generate-script", h.generateScript)
	return r
}
