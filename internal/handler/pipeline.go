package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zerodte/internal/models"
	"zerodte/internal/pipeline"
)

type pipelineRunner interface {
	Run(ctx context.Context, symbol string, opts pipeline.Options) (*pipeline.Result, error)
}

type PipelineHandler struct {
	Pipeline pipelineRunner
	Logger   *zap.Logger
}

type runPipelineRequest struct {
	Symbol            string   `json:"symbol"`
	Direction         string   `json:"direction,omitempty"`
	StopMultiplier    float64  `json:"stop_multiplier,omitempty"`
	Aggression        *float64 `json:"aggression,omitempty"`
	MarginPerContract float64  `json:"margin_per_contract,omitempty"`
	SpreadWidth       *float64 `json:"spread_width,omitempty"`
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/pipeline")
	group.POST("/run", h.run)
}

// @Summary Run the decision pipeline for one symbol
// @Tags pipeline
// @Accept json
// @Produce json
// @Param body body runPipelineRequest true "symbol and overrides"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/pipeline/run [post]
func (h *PipelineHandler) run(c *gin.Context) {
	if h.Pipeline == nil {
		Error(c, http.StatusInternalServerError, "pipeline unavailable", nil)
		return
	}
	var req runPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		Error(c, http.StatusBadRequest, "symbol required", nil)
		return
	}
	opts := pipeline.Options{
		Direction:         models.Direction(strings.ToUpper(strings.TrimSpace(req.Direction))),
		StopMultiplier:    req.StopMultiplier,
		Aggression:        req.Aggression,
		MarginPerContract: req.MarginPerContract,
		SpreadWidth:       req.SpreadWidth,
	}
	res, err := h.Pipeline.Run(c.Request.Context(), req.Symbol, opts)
	if err != nil {
		if status := ErrorFrom(c, err); h.Logger != nil && status != http.StatusBadRequest {
			h.Logger.Warn("pipeline run failed", zap.String("symbol", req.Symbol), zap.Error(err))
		}
		return
	}
	Ok(c, res, map[string]any{"approved": res.Approved()})
}
