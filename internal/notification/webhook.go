package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	EventRunFailed        = "job_run.failed"
	EventProposalApproved = "proposal.approved"
)

type Event struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	MarketDay string    `json:"market_day,omitempty"`
	Message   string    `json:"message"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Webhook posts events as JSON. A zero URL makes Notify a no-op.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{URL: strings.TrimSpace(url), HTTP: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	if w == nil || w.URL == "" {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	client := w.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return "webhook http status " + http.StatusText(e.StatusCode)
}
