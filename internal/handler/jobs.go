package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"zerodte/internal/jobs"
	"zerodte/internal/models"
	"zerodte/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type jobTrigger interface {
	Trigger(ctx context.Context, jobID string, opts jobs.TriggerOptions) (*models.JobRun, error)
}

type nextRunner interface {
	NextRun(job models.Job, now time.Time) time.Time
}

type JobHandler struct {
	Repo      repository.Repository
	Executor  jobTrigger
	Scheduler nextRunner
	Now       func() time.Time
}

type jobView struct {
	models.Job
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

type triggerJobRequest struct {
	ForceRun        bool `json:"force_run"`
	SkipMarketCheck bool `json:"skip_market_check"`
}

func (h *JobHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/jobs")
	group.GET("", h.listJobs)
	group.GET("/history", h.history)
	group.GET("/:id", h.getJob)
	group.POST("/:id/trigger", h.trigger)
	group.POST("/:id/enable", h.enable)
	group.POST("/:id/disable", h.disable)
	r.GET("/api/v1/runs/:id", h.getRun)
}

func (h *JobHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *JobHandler) view(job models.Job, now time.Time) jobView {
	out := jobView{Job: job}
	if h.Scheduler != nil && job.Enabled {
		if next := h.Scheduler.NextRun(job, now); !next.IsZero() {
			next = next.UTC()
			out.NextRunAt = &next
		}
	}
	return out
}

// @Summary List jobs with their next scheduled run
// @Tags jobs
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v1/jobs [get]
func (h *JobHandler) listJobs(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListJobs(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	now := h.now()
	out := make([]jobView, 0, len(items))
	for _, job := range items {
		out = append(out, h.view(job, now))
	}
	Ok(c, out, map[string]any{"count": len(out)})
}

func (h *JobHandler) getJob(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	job, err := h.Repo.GetJob(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if job == nil {
		Error(c, http.StatusNotFound, "job not found", nil)
		return
	}
	Ok(c, h.view(*job, h.now()), nil)
}

// @Summary Job run history, newest first
// @Tags jobs
// @Produce json
// @Param job_id query string false "filter by job"
// @Param status query string false "filter by run status"
// @Param limit query int false "max rows (default 50, max 500)"
// @Success 200 {object} apiResponse
// @Router /api/v1/jobs/history [get]
func (h *JobHandler) history(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = min(v, maxHistoryLimit)
	}
	items, err := h.Repo.ListRuns(c.Request.Context(), repository.ListRunsParams{
		JobID:  strings.TrimSpace(c.Query("job_id")),
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  limit,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items), "limit": limit})
}

func (h *JobHandler) getRun(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	run, err := h.Repo.GetRun(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if run == nil {
		Error(c, http.StatusNotFound, "run not found", nil)
		return
	}
	Ok(c, run, nil)
}

// @Summary Trigger a job now
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "job id"
// @Param body body triggerJobRequest false "force_run bypasses the once-per-day check; skip_market_check bypasses the calendar"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/jobs/{id}/trigger [post]
func (h *JobHandler) trigger(c *gin.Context) {
	if h.Executor == nil {
		Error(c, http.StatusInternalServerError, "executor unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	var req triggerJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	run, err := h.Executor.Trigger(c.Request.Context(), id, jobs.TriggerOptions{
		TriggeredBy:     models.TriggerManual,
		ForceRun:        req.ForceRun,
		SkipMarketCheck: req.SkipMarketCheck,
	})
	if err != nil {
		ErrorFrom(c, err)
		return
	}
	Ok(c, run, nil)
}

func (h *JobHandler) enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *JobHandler) disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *JobHandler) setEnabled(c *gin.Context, enabled bool) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if err := h.Repo.SetJobEnabled(c.Request.Context(), id, enabled); err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			ErrorFrom(c, err)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"id": id, "enabled": enabled}, nil)
}
