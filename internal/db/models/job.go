package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a job in the system
type JobStatus int

// Job status constants
const (
	// JobStatusUnknown represents an unknown or invalid job status
	JobStatusUnknown JobStatus = iota
	// JobStatusPending indicates the job is waiting to be claimed by a worker
	JobStatusPending
	// JobStatusProcessing indicates the job is currently being worked on
	JobStatusProcessing
	// JobStatusCompleted indicates the job has finished successfully
	JobStatusCompleted
	// JobStatusFailed indicates the job has failed to complete
	JobStatusFailed
	// JobStatusCancelled indicates the job was cancelled by an operator
	JobStatusCancelled
)

var jobStatusNames = []string{
	"unknown",
	"pending",
	"processing",
	"completed",
	"failed",
	"cancelled",
}

// ParseJobStatus converts a string representation of a job status to JobStatus type
func ParseJobStatus(str string) (JobStatus, error) {
	for i, status := range jobStatusNames {
		if status == str {
			return JobStatus(i), nil
		}
	}
	return JobStatusUnknown, fmt.Errorf("invalid job status: %s", str)
}

func (s JobStatus) String() string {
	if int(s) < 0 || int(s) >= len(jobStatusNames) {
		return jobStatusNames[JobStatusUnknown]
	}
	return jobStatusNames[s]
}

// IsTerminal reports whether the status permits no further automatic transition
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaler interface for JobStatus
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Progress is the structured progress value a worker reports while processing
type Progress struct {
	Percent float64 `json:"percent"`
	Phase   string  `json:"phase,omitempty"`
	Message string  `json:"message,omitempty"`
}

// JobError is the structured failure captured on a failed job
type JobError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// LogEntry is one timestamped line in a job's append-only log
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// JobParams is the free-form key/value map describing the requested operation
type JobParams map[string]string

// LogEntries is the append-only log of a job
type LogEntries []LogEntry

// Job represents one unit of transformation work and its full lifecycle record
type Job struct {
	ID                  string          `json:"id" gorm:"primaryKey"`
	OwnerID             string          `json:"owner_id" gorm:"not null;index"`
	BatchID             string          `json:"batch_id,omitempty" gorm:"index"`
	SourceItemID        string          `json:"source_item_id,omitempty" gorm:"index"`
	Name                string          `json:"name" gorm:"not null"`
	Status              JobStatus       `json:"status" gorm:"index"`
	Params              JobParams       `json:"params" gorm:"type:jsonb"`
	Progress            *Progress       `json:"progress,omitempty" gorm:"type:jsonb"`
	Results             json.RawMessage `json:"results,omitempty" gorm:"type:jsonb"`
	Error               *JobError       `json:"error,omitempty" gorm:"type:jsonb"`
	Logs                LogEntries      `json:"logs" gorm:"type:jsonb"`
	Access              AccessControl   `json:"access" gorm:"type:jsonb"`
	Archived            bool            `json:"archived" gorm:"not null;default:false;index"`
	CreatedAt           time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// StatusCounts holds the per-status job counts for one batch
type StatusCounts struct {
	Completed  int64
	Failed     int64
	Pending    int64
	Processing int64
}

// Total returns the number of jobs currently contributing to any bucket
func (c StatusCounts) Total() int64 {
	return c.Completed + c.Failed + c.Pending + c.Processing
}

// Value implements driver.Valuer for jsonb storage
func (p JobParams) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(JobParams{})
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for jsonb storage
func (p *JobParams) Scan(value interface{}) error {
	if value == nil {
		*p = JobParams{}
		return nil
	}
	b, err := toBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan job params: %w", err)
	}
	return json.Unmarshal(b, p)
}

// Value implements driver.Valuer for jsonb storage
func (p Progress) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for jsonb storage
func (p *Progress) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, err := toBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan progress: %w", err)
	}
	return json.Unmarshal(b, p)
}

// Value implements driver.Valuer for jsonb storage
func (e JobError) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements sql.Scanner for jsonb storage
func (e *JobError) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, err := toBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan job error: %w", err)
	}
	return json.Unmarshal(b, e)
}

// Value implements driver.Valuer for jsonb storage
func (l LogEntries) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(LogEntries{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for jsonb storage
func (l *LogEntries) Scan(value interface{}) error {
	if value == nil {
		*l = LogEntries{}
		return nil
	}
	b, err := toBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan job logs: %w", err)
	}
	return json.Unmarshal(b, l)
}
