package chatio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHealthRetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","uptime":12}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, WithTimeout(2*time.Second), WithRetry(3))
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", h.Status)
	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestHealthDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, WithRetry(3))
	_, err := c.Health(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
