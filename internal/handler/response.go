package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zerodte/internal/jobs"
	"zerodte/internal/market"
	"zerodte/internal/pipeline"
	"zerodte/internal/repository"
	"zerodte/internal/risk"
)

// Reason codes let clients branch on a failure without parsing the message.
const (
	ReasonInvalidRequest = "invalid_request"
	ReasonNotFound       = "not_found"
	ReasonConflict       = "conflict"
	ReasonUpstream       = "upstream_unavailable"
	ReasonInternal       = "internal"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Reason  string         `json:"reason,omitempty"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Reason:  reasonForStatus(status),
		Meta:    meta,
	})
}

// ErrorFrom writes err with the status its sentinel maps to and returns that status.
func ErrorFrom(c *gin.Context, err error) int {
	status := StatusFor(err)
	Error(c, status, err.Error(), nil)
	return status
}

// StatusFor maps pipeline, job and store sentinels to HTTP statuses. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, risk.ErrInvalidMultiplier),
		errors.Is(err, jobs.ErrUnsupportedJobType):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrInputUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrRunConflict),
		errors.Is(err, repository.ErrRunFinalized):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func reasonForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return ReasonNotFound
	case status == http.StatusConflict:
		return ReasonConflict
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return ReasonUpstream
	case status >= 400 && status < 500:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonInternal
	}
	return ""
}
