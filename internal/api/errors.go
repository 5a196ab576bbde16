package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amanullahtanweer/fluency-coach/internal/scripts"
	"github.com/amanullahtanweer/fluency-coach/internal/transcriber"
)

// ErrorType classifies API failures for clients.
type ErrorType string

const (
	TypeValidation    ErrorType = "VALIDATION_ERROR"
	TypeTranscription ErrorType = "TRANSCRIPTION_ERROR"
	TypeTimeout       ErrorType = "TIMEOUT_ERROR"
	TypeRateLimited   ErrorType = "RATE_LIMITED"
	TypeInternal      ErrorType = "INTERNAL_ERROR"
)

// Error is the JSON body of every failed request.
type Error struct {
	Status  int       `json:"-"`
	Message string    `json:"error"`
	Details string    `json:"details,omitempty"`
	Type    ErrorType `json:"type"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newValidationError(msg, details string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, Details: details, Type: TypeValidation}
}

func newRateLimitedError() *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Message: "Too many requests",
		Details: "Rate limit exceeded, try again later",
		Type:    TypeRateLimited,
	}
}

// fromError maps a downstream failure to its API error.
func fromError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, transcriber.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Status:  http.StatusGatewayTimeout,
			Message: "Transcription timed out",
			Details: err.Error(),
			Type:    TypeTimeout,
			Cause:   err,
		}
	case errors.Is(err, transcriber.ErrTranscriptionFailed):
		return &Error{
			Status:  http.StatusInternalServerError,
			Message: "Transcription failed",
			Details: err.Error(),
			Type:    TypeTranscription,
			Cause:   err,
		}
	case errors.Is(err, scripts.ErrInvalidRequest):
		return &Error{
			Status:  http.StatusBadRequest,
			Message: "Invalid script request",
			Details: err.Error(),
			Type:    TypeValidation,
			Cause:   err,
		}
	default:
		return &Error{
			Status:  http.StatusInternalServerError,
			Message: "Internal server error",
			Details: err.Error(),
			Type:    TypeInternal,
			Cause:   err,
		}
	}
}

// respondError aborts the request with the JSON form of err.
func respondError(c *gin.Context, err error) {
	apiErr := fromError(err)
	_ = c.Error(apiErr)
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}
