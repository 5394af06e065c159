package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/logger"
)

// Reconnect and idle-detection tuning. BackoffBase doubles per failed attempt
// up to BackoffCap; the attempt counter resets on any successful open.
const (
	BackoffBase = time.Second
	BackoffCap  = 30 * time.Second

	// DefaultIdleThreshold is how long the observer waits without any message
	// (heartbeats included) before falling back to one full re-fetch.
	DefaultIdleThreshold = 45 * time.Second

	// cleanClosePause spaces out reconnects after a stream that opened fine
	// and then ended, so a server that closes connections immediately cannot
	// drive a hot reconnect loop.
	cleanClosePause = time.Second
)

// BackoffDelay returns the reconnect delay for the given attempt number:
// min(BackoffBase * 2^attempt, BackoffCap).
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^5 already exceeds the cap
	if attempt > 5 {
		return BackoffCap
	}
	d := BackoffBase << uint(attempt)
	if d > BackoffCap {
		return BackoffCap
	}
	return d
}

// ObserverOptions configures one observer connection. Every observer owns its
// own backoff and idle state; nothing is shared between observers.
type ObserverOptions struct {
	// ListOptions scopes the idle re-fetch to the view this observer displays
	ListOptions *models.ListOptions

	// IdleThreshold overrides DefaultIdleThreshold when positive
	IdleThreshold time.Duration

	// OnAnalysis is invoked once per completed job after the analysis delay
	OnAnalysis func(jobID string)
}

// Observer maintains one live view of server-side job state: it consumes the
// SSE propagation channel, reconnects with exponential backoff on transport
// errors, and falls back to a plain re-fetch when the channel goes silent for
// longer than the idle threshold.
type Observer struct {
	api     *APIClient
	tracker *Tracker
	opts    ObserverOptions
	httpc   *http.Client

	mu          sync.Mutex
	lastMessage time.Time
}

// NewObserver creates an observer bound to the given API client
func NewObserver(api *APIClient, opts ObserverOptions) *Observer {
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = DefaultIdleThreshold
	}
	if opts.ListOptions == nil {
		opts.ListOptions = &models.ListOptions{}
	}
	return &Observer{
		api:     api,
		tracker: NewTracker(opts.OnAnalysis),
		opts:    opts,
		// No global timeout: the stream is expected to idle between events
		httpc:       &http.Client{},
		lastMessage: time.Now(),
	}
}

// Tracker exposes the observer's view state machine
func (o *Observer) Tracker() *Tracker {
	return o.tracker
}

// ApplyLocal feeds a mutation made by this same process into the view without
// waiting for the round trip through the server's push channel. It runs
// through the same state machine rules as the remote stream.
func (o *Observer) ApplyLocal(update events.JobUpdate) {
	o.tracker.Apply(update)
}

// Run consumes the stream until ctx is cancelled. Each connection attempt
// that fails waits BackoffDelay(attempt) before the next; a successful open
// resets the attempt counter.
func (o *Observer) Run(ctx context.Context) {
	go o.watchIdle(ctx)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := o.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delay := BackoffDelay(attempt)
			attempt++
			logger.Warnf("Stream dropped (%v), reconnecting in %s", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		select {
		case <-ctx.Done():
			return
		case <-time.After(cleanClosePause):
		}
	}
}

// stream opens one SSE connection and applies its events until it breaks.
// A nil error means the connection opened successfully and then ended.
func (o *Observer) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.api.baseURL+"/api/v1/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected stream status: %d", resp.StatusCode)
	}

	o.touch()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() > 0 {
				o.dispatch(data.String())
				data.Reset()
			}
		default:
			// event: lines are redundant with the payload's type field
		}
	}
	return scanner.Err()
}

// dispatch parses one SSE data payload and applies it. Every message,
// heartbeat included, counts as channel liveness.
func (o *Observer) dispatch(payload string) {
	o.touch()

	var update events.JobUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		logger.Debugf("Dropping malformed stream payload: %v", err)
		return
	}
	o.tracker.Apply(update)
}

// watchIdle re-fetches the full view when the channel has been silent for
// longer than the idle threshold. The fetch response itself resets the idle
// timer, so a stalled channel triggers exactly one reconciliation per
// threshold window.
func (o *Observer) watchIdle(ctx context.Context) {
	interval := o.opts.IdleThreshold / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.sinceLastMessage() <= o.opts.IdleThreshold {
				continue
			}
			logger.Debug("Stream idle past threshold, reconciling via fetch")
			jobs, err := o.api.ListJobs(ctx, o.opts.ListOptions)
			if err != nil {
				logger.Warnf("Idle reconciliation fetch failed: %v", err)
				continue
			}
			o.tracker.Reset(jobs)
			o.touch()
		}
	}
}

func (o *Observer) touch() {
	o.mu.Lock()
	o.lastMessage = time.Now()
	o.mu.Unlock()
}

func (o *Observer) sinceLastMessage() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return time.Since(o.lastMessage)
}
