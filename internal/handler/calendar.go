package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"zerodte/internal/calendar"
)

type CalendarHandler struct {
	Calendar *calendar.Calendar
	Now      func() time.Time
}

func (h *CalendarHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/calendar/status", h.status)
}

// @Summary Market session status
// @Tags calendar
// @Produce json
// @Param at query string false "RFC3339 instant, defaults to now"
// @Success 200 {object} apiResponse
// @Router /api/v1/calendar/status [get]
func (h *CalendarHandler) status(c *gin.Context) {
	if h.Calendar == nil {
		Error(c, http.StatusInternalServerError, "calendar unavailable", nil)
		return
	}
	at := time.Now()
	if h.Now != nil {
		at = h.Now()
	}
	if raw := strings.TrimSpace(c.Query("at")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid at, want RFC3339", nil)
			return
		}
		at = t
	}
	st := h.Calendar.IsOpen(at)
	day, err := h.Calendar.ParseDate(st.TradingDate)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	data := map[string]any{
		"at":               at.UTC().Format(time.RFC3339),
		"is_open":          st.IsOpen,
		"reason":           st.Reason,
		"trading_date":     st.TradingDate,
		"early_close":      st.EarlyClose,
		"next_trading_day": h.Calendar.NextTradingDay(day).Format(calendar.DateLayout),
	}
	if open, closeAt, ok := h.Calendar.SessionBounds(day); ok {
		data["session_open"] = open.Format(time.RFC3339)
		data["session_close"] = closeAt.Format(time.RFC3339)
	}
	Ok(c, data, nil)
}
