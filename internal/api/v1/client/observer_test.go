package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/events"
)

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BackoffDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func newTestObserver(t *testing.T, baseURL string, opts ObserverOptions) *Observer {
	t.Helper()
	api, err := NewClient(&Options{BaseURL: baseURL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return NewObserver(api, opts)
}

func TestObserverStreamAppliesEvents(t *testing.T) {
	update := events.JobUpdate{
		Type:      events.EventStatus,
		JobID:     "j1",
		Status:    models.JobStatusProcessing,
		UpdatedAt: time.Now().UTC(),
		Progress:  &models.Progress{Percent: 30, Phase: "decode"},
	}
	payload, err := json.Marshal(update)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/events", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, payload)
		fmt.Fprint(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
		// Malformed payloads are dropped without breaking the stream
		fmt.Fprint(w, "data: {not json\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	observer := newTestObserver(t, srv.URL, ObserverOptions{})

	err = observer.stream(context.Background())
	assert.NoError(t, err, "a cleanly closed stream is not an error")

	assert.Equal(t, ViewProcessing, observer.Tracker().View("j1"))
	require.NotNil(t, observer.Tracker().Progress("j1"))
	assert.Equal(t, float64(30), observer.Tracker().Progress("j1").Percent)
}

func TestObserverStreamRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	observer := newTestObserver(t, srv.URL, ObserverOptions{})
	err := observer.stream(context.Background())
	assert.Error(t, err)
}

func TestObserverCleanCloseIsNotHotLoop(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		connections++
		mu.Unlock()
		// Accept the stream and close it immediately
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	observer := newTestObserver(t, srv.URL, ObserverOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	observer.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, connections, 1)
	assert.LessOrEqual(t, connections, 3, "clean closes should be paced, not retried hot")
}

func TestObserverIdleReconciliation(t *testing.T) {
	jobs := []models.Job{
		{ID: "j1", Status: models.JobStatusCompleted},
		{ID: "j2", Status: models.JobStatusPending},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/jobs", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		data, _ := json.Marshal(jobs)
		fmt.Fprintf(w, `{"slug":"success","data":%s}`, data)
	}))
	defer srv.Close()

	observer := newTestObserver(t, srv.URL, ObserverOptions{IdleThreshold: 2 * time.Second})

	// Pretend the channel has been silent for a while
	observer.mu.Lock()
	observer.lastMessage = time.Now().Add(-time.Minute)
	observer.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go observer.watchIdle(ctx)

	assert.Eventually(t, func() bool {
		return observer.Tracker().View("j1") == ViewCompleted &&
			observer.Tracker().View("j2") == ViewPending
	}, 5*time.Second, 50*time.Millisecond)

	// The fetch counts as liveness
	assert.Less(t, observer.sinceLastMessage(), 5*time.Second)
}

func TestObserverApplyLocal(t *testing.T) {
	observer := newTestObserver(t, "http://localhost:0", ObserverOptions{})

	observer.ApplyLocal(events.JobUpdate{
		Type:   events.EventStatus,
		JobID:  "j1",
		Status: models.JobStatusFailed,
	})
	assert.Equal(t, ViewFailed, observer.Tracker().View("j1"))
}
