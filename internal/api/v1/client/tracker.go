package client

import (
	"sync"
	"time"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/events"
)

// Deferred side-effect delays after a completed event. The analysis trigger
// fires shortly after completion so dependent writes can settle; untracking
// waits longer so the UI can show the completed state before it disappears.
const (
	DefaultAnalysisDelay = 2 * time.Second
	DefaultUntrackDelay  = 15 * time.Second
)

// JobView is an observer's local view of one job's state
type JobView int

// Observer-side view states
const (
	ViewUnknown JobView = iota
	ViewPending
	ViewProcessing
	ViewCompleted
	ViewFailed
)

func (v JobView) String() string {
	return []string{"unknown", "pending", "processing", "completed", "failed"}[v]
}

// viewForStatus maps a wire status onto the observer state machine
func viewForStatus(s models.JobStatus) JobView {
	switch s {
	case models.JobStatusPending:
		return ViewPending
	case models.JobStatusProcessing:
		return ViewProcessing
	case models.JobStatusCompleted:
		return ViewCompleted
	case models.JobStatusFailed, models.JobStatusCancelled:
		return ViewFailed
	default:
		return ViewUnknown
	}
}

// Tracker is the observer-side state machine for the jobs one connection is
// displaying. Failed is sticky: once a job is seen failing, any further
// non-terminal event for it is ignored so in-flight stragglers cannot
// resurrect its displayed status. Only an explicit restart leaves Failed.
// Completed schedules two deferred side effects: a one-shot analysis trigger
// and removal from the tracked set.
type Tracker struct {
	mu            sync.Mutex
	views         map[string]JobView
	progress      map[string]*models.Progress
	analysisFired map[string]bool
	timers        map[string][]*time.Timer

	analysisDelay time.Duration
	untrackDelay  time.Duration
	onAnalysis    func(jobID string)
}

// NewTracker creates a tracker. onAnalysis may be nil.
func NewTracker(onAnalysis func(jobID string)) *Tracker {
	return &Tracker{
		views:         make(map[string]JobView),
		progress:      make(map[string]*models.Progress),
		analysisFired: make(map[string]bool),
		timers:        make(map[string][]*time.Timer),
		analysisDelay: DefaultAnalysisDelay,
		untrackDelay:  DefaultUntrackDelay,
		onAnalysis:    onAnalysis,
	}
}

// SetDelays overrides the deferred side-effect delays, mainly for tests
func (t *Tracker) SetDelays(analysis, untrack time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analysisDelay = analysis
	t.untrackDelay = untrack
}

// Apply feeds one update into the state machine. It reports whether the
// update changed the tracked view; suppressed and heartbeat events return
// false. Both the remote stream and the local short-circuit path converge
// here under the same rules.
func (t *Tracker) Apply(update events.JobUpdate) bool {
	if update.Type == events.EventPing || update.JobID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if update.Type == events.EventDeleted {
		t.dropLocked(update.JobID)
		return true
	}

	current := t.views[update.JobID]

	if update.Type == events.EventRestart {
		t.stopTimersLocked(update.JobID)
		t.views[update.JobID] = ViewPending
		delete(t.progress, update.JobID)
		delete(t.analysisFired, update.JobID)
		return true
	}

	if update.Type == events.EventLog {
		// Log lines never move the state machine
		return false
	}

	next := viewForStatus(update.Status)

	// Failed is sticky against anything but an explicit restart
	if current == ViewFailed {
		return false
	}

	t.views[update.JobID] = next
	if update.Progress != nil {
		t.progress[update.JobID] = update.Progress
	}

	if next == ViewCompleted && current != ViewCompleted {
		t.scheduleCompletionLocked(update.JobID)
	}
	return true
}

// View returns the tracked view of one job
func (t *Tracker) View(jobID string) JobView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.views[jobID]
}

// Progress returns the last tracked progress of one job, or nil
func (t *Tracker) Progress(jobID string) *models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress[jobID]
}

// Snapshot returns a copy of every tracked view
func (t *Tracker) Snapshot() map[string]JobView {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]JobView, len(t.views))
	for id, view := range t.views {
		out[id] = view
	}
	return out
}

// Tracked returns the number of jobs currently in the tracked set
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.views)
}

// Reset replaces the whole tracked view with a freshly fetched job list. Used
// by the idle reconciliation fallback. Sticky failed views are preserved so a
// stale read cannot resurrect a job the stream already failed.
func (t *Tracker) Reset(jobs []models.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]JobView, len(jobs))
	for _, job := range jobs {
		view := viewForStatus(job.Status)
		if t.views[job.ID] == ViewFailed {
			view = ViewFailed
		}
		fresh[job.ID] = view
	}

	for id := range t.views {
		if _, ok := fresh[id]; !ok {
			t.stopTimersLocked(id)
		}
	}
	t.views = fresh
}

func (t *Tracker) scheduleCompletionLocked(jobID string) {
	if !t.analysisFired[jobID] {
		t.analysisFired[jobID] = true
		timer := time.AfterFunc(t.analysisDelay, func() {
			t.mu.Lock()
			cb := t.onAnalysis
			t.mu.Unlock()
			if cb != nil {
				cb(jobID)
			}
		})
		t.timers[jobID] = append(t.timers[jobID], timer)
	}

	untrack := time.AfterFunc(t.untrackDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.views[jobID] == ViewCompleted {
			t.dropLocked(jobID)
		}
	})
	t.timers[jobID] = append(t.timers[jobID], untrack)
}

func (t *Tracker) stopTimersLocked(jobID string) {
	for _, timer := range t.timers[jobID] {
		timer.Stop()
	}
	delete(t.timers, jobID)
}

func (t *Tracker) dropLocked(jobID string) {
	t.stopTimersLocked(jobID)
	delete(t.views, jobID)
	delete(t.progress, jobID)
	delete(t.analysisFired, jobID)
}
