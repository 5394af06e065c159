package models

import "errors"

const (
	// DefaultLimit is the max number of rows that are retrieved from the DB per listing API call
	DefaultLimit = 50
)

// Database field names shared by the job and batch tables, used by the
// repositories and services for ordering and partial updates.
const (
	// CreatedAtField is the database field name for the creation timestamp
	CreatedAtField = "created_at"
	// UpdatedAtField is the database field name for the update timestamp
	UpdatedAtField = "updated_at"
)

// Sentinel errors shared by the repositories and services.
var (
	// ErrNotFound indicates an operation referenced a job or batch id that does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed creation request
	ErrValidation = errors.New("validation failed")
)

// ListOptions represents pagination and filtering options for list operations
type ListOptions struct {
	Limit           int    `json:"limit"`  // Number of items to return
	Offset          int    `json:"offset"` // Number of items to skip
	IncludeArchived bool   `json:"include_archived"`
	OwnerID         string `json:"owner_id,omitempty"` // Filter by owner; empty means all owners
	BatchID         string `json:"batch_id,omitempty"` // Filter jobs by batch membership
	Status          string `json:"status,omitempty"`   // Filter by status string; empty means all
}

// Normalize clamps pagination values to sane bounds.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 || o.Limit > DefaultLimit {
		o.Limit = DefaultLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
