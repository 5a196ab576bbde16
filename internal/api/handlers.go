package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/cache"
	"github.com/amanullahtanweer/fluency-coach/internal/logging"
	"github.com/amanullahtanweer/fluency-coach/internal/scripts"
)

// maxWordsBody caps the raw word array accepted by /analyze-words.
const maxWordsBody = 8 << 20

type handlers struct {
	deps Deps
	log  zerolog.Logger
}

type analyzeSpeechRequest struct {
	AudioURL string `json:"audio_url"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

func (h *handlers) banner(c *gin.Context) {
	c.String(http.StatusOK, Banner)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) analyzeSpeech(c *gin.Context) {
	var req analyzeSpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, newValidationError("Invalid audio_url", "Must provide a valid audio URL string"))
		return
	}
	if !validAudioURL(req.AudioURL) {
		respondError(c, newValidationError("Invalid audio_url", "Must provide a valid audio URL string"))
		return
	}

	ctx := c.Request.Context()
	log := h.log.With().
		Str(logging.FieldRequestID, c.GetString(ctxRequestID)).
		Str("audio_url", req.AudioURL).
		Logger()

	if h.deps.Cache != nil {
		res, err := h.deps.Cache.Get(ctx, req.AudioURL)
		switch {
		case err == nil:
			log.Debug().Msg("analysis served from cache")
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, res)
			return
		case !errors.Is(err, cache.ErrMiss):
			log.Warn().Err(err).Msg("cache lookup failed")
		}
		c.Header("X-Cache", "MISS")
	}

	if h.deps.Transcriber == nil {
		respondError(c, errors.New("transcription is not configured"))
		return
	}

	if h.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.RequestTimeout)
		defer cancel()
	}

	log.Info().Msg("processing audio")
	start := time.Now()
	words, err := h.deps.Transcriber.Transcribe(ctx, req.AudioURL)
	if h.deps.Recorder != nil {
		h.deps.Recorder.RecordASR(ctx, h.deps.Provider, time.Since(start), err)
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("transcription failed")
		respondError(c, err)
		return
	}

	res := h.deps.Analysis.Analyze(ctx, words)
	log.Info().
		Int("words", len(words)).
		Int("fluency_score", res.Statistics.FluencyScore).
		Msg("analysis complete")

	if h.deps.Cache != nil {
		// The request context may already be near its deadline.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := h.deps.Cache.Set(storeCtx, req.AudioURL, res); err != nil {
			log.Warn().Err(err).Msg("cache store failed")
		}
		cancel()
	}
	c.JSON(http.StatusOK, res)
}

// analyzeWords analyzes a word array posted directly, skipping recognition.
func (h *handlers) analyzeWords(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWordsBody+1))
	if err != nil {
		respondError(c, newValidationError("Invalid request body", err.Error()))
		return
	}
	if len(body) > maxWordsBody {
		respondError(c, newValidationError("Invalid request body", "word list too large"))
		return
	}
	c.JSON(http.StatusOK, h.deps.Analysis.AnalyzeJSON(c.Request.Context(), body))
}

func (h *handlers) generateScript(c *gin.Context) {
	var req scripts.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, newValidationError("Invalid request body", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, err)
		return
	}
	if h.deps.Scripts == nil {
		respondError(c, errors.New("script generation is not configured"))
		return
	}

	script, err := h.deps.Scripts.Generate(c.Request.Context(), req)
	if err != nil {
		h.log.Error().Err(err).
			Str(logging.FieldRequestID, c.GetString(ctxRequestID)).
			Str("type", req.Type).
			Msg("script generation failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scriptResponse{Script: script})
}

func validAudioURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
