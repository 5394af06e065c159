// Package events provides the in-process fan-out of job update events from
// whatever mutates a job to all interested consumers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/logger"
)

// EventType classifies what kind of job mutation produced an update
type EventType string

const (
	// EventStatus is emitted when a job's status, progress, or result changes
	EventStatus EventType = "status"
	// EventLog is emitted when a line is appended to a job's log
	EventLog EventType = "log"
	// EventRestart is emitted when a terminal job is reset to pending
	EventRestart EventType = "restart"
	// EventDeleted is emitted when a job is hard-deleted
	EventDeleted EventType = "deleted"
	// EventPing is the transport heartbeat; it never originates from a mutation
	EventPing EventType = "ping"

	// SubscriberBuffer is the per-subscriber channel capacity. A subscriber
	// that falls this far behind starts losing events; the propagation
	// channel's reconciliation fallback recovers the drift.
	SubscriberBuffer = 64
)

// JobUpdate is the event shape shared by every consumer. JobID, Status, and
// UpdatedAt form the stable required core; everything else is optional and
// present only when the producing mutation supplied it.
type JobUpdate struct {
	Type         EventType        `json:"type"`
	JobID        string           `json:"jobId"`
	Status       models.JobStatus `json:"status"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	Progress     *models.Progress `json:"progress,omitempty"`
	Message      string           `json:"message,omitempty"`
	Phase        string           `json:"phase,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	BatchID      string           `json:"batchId,omitempty"`
	SourceItemID string           `json:"sourceItemId,omitempty"`
	// Origin identifies the process that produced the event. It is empty for
	// locally produced events and set by the redis bridge on forwarded ones.
	Origin string `json:"origin,omitempty"`
}

// Bus is a process-local publish point. It performs no persistence and
// guarantees no ordering beyond publish order within this process. Subscribe
// and unsubscribe are safe to call concurrently as connections open and close.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan JobUpdate
	nextID uint64
}

// NewBus creates an empty update bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan JobUpdate)}
}

// Subscribe registers a new consumer and returns its channel plus a cancel
// function. The cancel function closes the channel and must be called exactly
// once when the consumer goes away.
func (b *Bus) Subscribe() (<-chan JobUpdate, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan JobUpdate, SubscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber. Delivery is best effort: a
// subscriber whose buffer is full misses the event rather than blocking the
// mutating code path.
func (b *Bus) Publish(update JobUpdate) {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- update:
		default:
			logger.Debugf("dropping %s event for job %s: subscriber full", update.Type, update.JobID)
		}
	}
}

// Subscribers returns the number of currently registered consumers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
