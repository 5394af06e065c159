package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchStatus represents the aggregate state of a batch of jobs
type BatchStatus int

// Batch status constants
const (
	// BatchStatusUnknown represents an unknown or invalid batch status
	BatchStatusUnknown BatchStatus = iota
	// BatchStatusPending indicates no member job has produced a terminal result yet
	BatchStatusPending
	// BatchStatusRunning indicates members are in mixed, non-exhausted states
	BatchStatusRunning
	// BatchStatusCompleted indicates every member job completed successfully
	BatchStatusCompleted
	// BatchStatusFailed indicates the batch is exhausted and at least one member failed
	BatchStatusFailed
)

var batchStatusNames = []string{
	"unknown",
	"pending",
	"running",
	"completed",
	"failed",
}

// ParseBatchStatus converts a string representation of a batch status to BatchStatus type
func ParseBatchStatus(str string) (BatchStatus, error) {
	for i, status := range batchStatusNames {
		if status == str {
			return BatchStatus(i), nil
		}
	}
	return BatchStatusUnknown, fmt.Errorf("invalid batch status: %s", str)
}

func (s BatchStatus) String() string {
	if int(s) < 0 || int(s) >= len(batchStatusNames) {
		return batchStatusNames[BatchStatusUnknown]
	}
	return batchStatusNames[s]
}

// MarshalJSON implements the json.Marshaler interface for BatchStatus
func (s BatchStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for BatchStatus
func (s *BatchStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseBatchStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Batch represents a named, fixed-size group of jobs. The four status counters
// are a cache of a count query over member jobs, rewritten wholesale on every
// reconciliation pass; they are never incremented in place.
type Batch struct {
	ID             string        `json:"id" gorm:"primaryKey"`
	OwnerID        string        `json:"owner_id" gorm:"not null;index"`
	Name           string        `json:"name" gorm:"not null"`
	Status         BatchStatus   `json:"status" gorm:"index"`
	TotalJobs      int64         `json:"total_jobs"`
	CompletedJobs  int64         `json:"completed_jobs"`
	FailedJobs     int64         `json:"failed_jobs"`
	PendingJobs    int64         `json:"pending_jobs"`
	ProcessingJobs int64         `json:"processing_jobs"`
	IsActive       bool          `json:"is_active" gorm:"not null;default:false"`
	Archived       bool          `json:"archived" gorm:"not null;default:false;index"`
	Access         AccessControl `json:"access" gorm:"type:jsonb"`
	CreatedAt      time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// Exhausted reports whether every originally recorded job reached a terminal result
func (b *Batch) Exhausted(counts StatusCounts) bool {
	return counts.Completed+counts.Failed >= b.TotalJobs
}
