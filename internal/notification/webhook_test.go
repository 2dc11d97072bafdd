package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_PostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second)
	err := w.Notify(context.Background(), Event{Event: EventRunFailed, JobID: "spy-open", Message: "boom"})
	require.NoError(t, err)
	assert.Equal(t, EventRunFailed, got.Event)
	assert.Equal(t, "spy-open", got.JobID)
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), Event{Event: EventRunFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestWebhook_DisabledIsNoop(t *testing.T) {
	assert.NoError(t, NewWebhook("", 0).Notify(context.Background(), Event{}))
	var w *Webhook
	assert.NoError(t, w.Notify(context.Background(), Event{}))
}
