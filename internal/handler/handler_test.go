package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"zerodte/internal/calendar"
	"zerodte/internal/jobs"
	"zerodte/internal/market"
	"zerodte/internal/models"
	"zerodte/internal/pipeline"
	"zerodte/internal/repository"
	memoryrepository "zerodte/internal/repository/memory"
	"zerodte/internal/risk"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type decoded struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out decoded
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

type stubPipeline struct {
	err  error
	last pipeline.Options
}

func (s *stubPipeline) Run(ctx context.Context, symbol string, opts pipeline.Options) (*pipeline.Result, error) {
	s.last = opts
	if s.err != nil {
		return nil, s.err
	}
	return &pipeline.Result{Status: pipeline.StatusNoTrade, Symbol: symbol, Reason: "no eligible strikes"}, nil
}

type fixedNext struct{ at time.Time }

func (f fixedNext) NextRun(job models.Job, now time.Time) time.Time { return f.at }

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	(&HealthHandler{}).Register(r)

	w, _ := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestPipelineHandler(t *testing.T) {
	stub := &stubPipeline{}
	r := gin.New()
	(&PipelineHandler{Pipeline: stub}).Register(r)

	w, resp := do(t, r, http.MethodPost, "/api/v1/pipeline/run", map[string]any{"symbol": "spy", "direction": "put", "stop_multiplier": 2.5})
	require.Equal(t, http.StatusOK, w.Code)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, pipeline.StatusNoTrade, res.Status)
	assert.Equal(t, models.Direction("PUT"), stub.last.Direction)
	assert.InDelta(t, 2.5, stub.last.StopMultiplier, 1e-9)
	assert.Equal(t, false, resp.Meta["approved"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/pipeline/run", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = fmt.Errorf("%w: unknown direction", pipeline.ErrInvalidRequest)
	w, _ = do(t, r, http.MethodPost, "/api/v1/pipeline/run", map[string]any{"symbol": "SPY"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = fmt.Errorf("%w: snapshot SPY: timeout", pipeline.ErrInputUnavailable)
	w, resp = do(t, r, http.MethodPost, "/api/v1/pipeline/run", map[string]any{"symbol": "SPY"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, resp.Message, "timeout")
	assert.Equal(t, ReasonUpstream, resp.Reason)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid request", fmt.Errorf("%w: symbol is required", pipeline.ErrInvalidRequest), http.StatusBadRequest},
		{"bad multiplier", fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, risk.ErrInvalidMultiplier), http.StatusBadRequest},
		{"unsupported job", fmt.Errorf("%w: cron_x", jobs.ErrUnsupportedJobType), http.StatusBadRequest},
		{"input wins over not found", fmt.Errorf("%w: snapshot: %w", pipeline.ErrInputUnavailable, market.ErrNotFound), http.StatusBadGateway},
		{"job not found", repository.ErrJobNotFound, http.StatusNotFound},
		{"run conflict", repository.ErrRunConflict, http.StatusConflict},
		{"run finalized", fmt.Errorf("finish: %w", repository.ErrRunFinalized), http.StatusConflict},
		{"unexpected", fmt.Errorf("%w: boom", pipeline.ErrUnexpected), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, StatusFor(tc.err))
		})
	}
}

func TestErrorFrom_WritesReason(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ErrorFrom(c, fmt.Errorf("trigger: %w", repository.ErrJobNotFound))
	})
	w, resp := do(t, r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, ReasonNotFound, resp.Reason)
	assert.Contains(t, resp.Message, "job not found")

	w, resp = do(t, r, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, resp.Reason)
}

func newJobRouter(t *testing.T) (*gin.Engine, *memoryrepository.Store) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 4, 10, 30, 0, 0, loc)

	repo := memoryrepository.New()
	require.NoError(t, repo.UpsertJob(context.Background(), &models.Job{
		ID:       "spy-0dte",
		Name:     "SPY 0DTE",
		Type:     models.JobTypeDecisionPipeline,
		Schedule: "0 45 9 * * MON-FRI",
		Timezone: "America/New_York",
		Enabled:  true,
		Config:   datatypes.JSON(`{"symbol":"SPY"}`),
	}))
	exec := &jobs.Executor{
		Repo:     repo,
		Pipeline: &stubPipeline{},
		Calendar: calendar.New(loc),
		Now:      func() time.Time { return now },
	}
	r := gin.New()
	(&JobHandler{
		Repo:      repo,
		Executor:  exec,
		Scheduler: fixedNext{at: now.Add(24 * time.Hour)},
		Now:       func() time.Time { return now },
	}).Register(r)
	return r, repo
}

func TestJobHandler_TriggerOncePerDay(t *testing.T) {
	r, _ := newJobRouter(t)

	w, resp := do(t, r, http.MethodPost, "/api/v1/jobs/spy-0dte/trigger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var run models.JobRun
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, "2025-03-04", run.MarketDay)

	w, resp = do(t, r, http.MethodPost, "/api/v1/jobs/spy-0dte/trigger", triggerJobRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, models.RunSkipped, run.Status)
	assert.Contains(t, run.Reason, "2025-03-04")

	w, resp = do(t, r, http.MethodPost, "/api/v1/jobs/spy-0dte/trigger", triggerJobRequest{ForceRun: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.True(t, run.Forced)

	w, resp = do(t, r, http.MethodGet, "/api/v1/jobs/history?job_id=spy-0dte&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.JobRun
	require.NoError(t, json.Unmarshal(resp.Data, &runs))
	assert.Len(t, runs, 3)

	w, _ = do(t, r, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/jobs/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs/missing/trigger", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobHandler_ListAndToggle(t *testing.T) {
	r, repo := newJobRouter(t)

	w, resp := do(t, r, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []jobView
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "spy-0dte", items[0].ID)
	require.NotNil(t, items[0].NextRunAt)

	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs/spy-0dte/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	job, err := repo.GetJob(context.Background(), "spy-0dte")
	require.NoError(t, err)
	assert.False(t, job.Enabled)

	w, resp = do(t, r, http.MethodGet, "/api/v1/jobs/spy-0dte", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view jobView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Nil(t, view.NextRunAt)

	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs/spy-0dte/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	job, _ = repo.GetJob(context.Background(), "spy-0dte")
	assert.True(t, job.Enabled)

	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs/ghost/disable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalendarHandler(t *testing.T) {
	r := gin.New()
	(&CalendarHandler{Calendar: calendar.New(nil)}).Register(r)

	w, resp := do(t, r, http.MethodGet, "/api/v1/calendar/status?at=2025-03-08T15:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, false, data["is_open"])
	assert.Contains(t, data["reason"], "weekend")
	assert.Equal(t, "2025-03-10", data["trading_date"])
	assert.Equal(t, "2025-03-11", data["next_trading_day"])

	w, resp = do(t, r, http.MethodGet, "/api/v1/calendar/status?at=2025-03-04T15:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, true, data["is_open"])
	assert.NotEmpty(t, data["session_close"])

	w, _ = do(t, r, http.MethodGet, "/api/v1/calendar/status?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
