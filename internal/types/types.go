// Package types holds the request and response shapes shared by the API
// handlers and the client.
package types

import (
	"encoding/json"

	"github.com/tracklab/relay/internal/db/models"
)

// JobSpec describes one job to create, standalone or as a batch member
type JobSpec struct {
	Name         string           `json:"name,omitempty"`
	Params       models.JobParams `json:"params"`
	SourceItemID string           `json:"source_item_id,omitempty"`
}

// CreateJobRequest is the payload for creating a standalone job
type CreateJobRequest struct {
	OwnerID string `json:"owner_id"`
	JobSpec
}

// CreateBatchRequest is the payload for creating a batch and its member jobs.
// The batch's total_jobs is fixed from the length of Jobs and never changes.
type CreateBatchRequest struct {
	OwnerID string    `json:"owner_id"`
	Name    string    `json:"name"`
	Jobs    []JobSpec `json:"jobs"`
}

// UpdateJobStatusRequest is the payload a worker reports status changes with
type UpdateJobStatusRequest struct {
	Status   string           `json:"status"`
	Progress *models.Progress `json:"progress,omitempty"`
	Results  json.RawMessage  `json:"results,omitempty"`
	Error    *models.JobError `json:"error,omitempty"`
}

// AddLogRequest is the payload for appending one entry to a job's log
type AddLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PendingAllRequest optionally narrows the pending-all sweep to jobs whose
// target language matches
type PendingAllRequest struct {
	TargetLanguage string `json:"target_language,omitempty"`
}

// CreateResponse carries the id of a newly created resource
type CreateResponse struct {
	ID string `json:"id"`
}

// BulkResponse carries the aggregate count of documents a bulk sweep touched
type BulkResponse struct {
	Affected int `json:"affected"`
}
