package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusRoundTrip(t *testing.T) {
	tests := []struct {
		status      JobStatus
		stringValue string
		jsonValue   string
	}{
		{JobStatusUnknown, "unknown", `"unknown"`},
		{JobStatusPending, "pending", `"pending"`},
		{JobStatusProcessing, "processing", `"processing"`},
		{JobStatusCompleted, "completed", `"completed"`},
		{JobStatusFailed, "failed", `"failed"`},
		{JobStatusCancelled, "cancelled", `"cancelled"`},
	}

	for _, tt := range tests {
		t.Run(tt.stringValue, func(t *testing.T) {
			assert.Equal(t, tt.stringValue, tt.status.String())

			data, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.jsonValue, string(data))

			parsed, err := ParseJobStatus(tt.stringValue)
			require.NoError(t, err)
			assert.Equal(t, tt.status, parsed)
		})
	}

	_, err := ParseJobStatus("bogus")
	assert.Error(t, err)
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestBatchStatusParse(t *testing.T) {
	status, err := ParseBatchStatus("running")
	require.NoError(t, err)
	assert.Equal(t, BatchStatusRunning, status)

	_, err = ParseBatchStatus("bogus")
	assert.Error(t, err)
}

func TestBatchExhausted(t *testing.T) {
	batch := &Batch{TotalJobs: 3}
	assert.False(t, batch.Exhausted(StatusCounts{Completed: 1, Failed: 1, Pending: 1}))
	assert.True(t, batch.Exhausted(StatusCounts{Completed: 2, Failed: 1}))
}

func TestDefaultAccessControl(t *testing.T) {
	owned := DefaultAccessControl("user-1")
	assert.Equal(t, VisibilityPrivate, owned.Visibility)
	assert.True(t, owned.CanRead("user-1"))
	assert.True(t, owned.CanWrite("user-1"))
	assert.True(t, owned.CanAdmin("user-1"))
	assert.False(t, owned.CanRead("user-2"))

	orphan := DefaultAccessControl("")
	assert.Equal(t, VisibilityPrivate, orphan.Visibility)
	assert.Empty(t, orphan.Read)
	assert.False(t, orphan.CanWrite("user-1"))

	public := AccessControl{Visibility: VisibilityPublic}
	assert.True(t, public.CanRead("anyone"))
	assert.False(t, public.CanWrite("anyone"))
}

func TestAccessControlIndependentLists(t *testing.T) {
	ac := AccessControl{
		Visibility: VisibilityPrivate,
		Read:       []string{"reader"},
		Write:      []string{"writer"},
		Admin:      []string{"admin"},
	}
	assert.True(t, ac.CanRead("reader"))
	assert.False(t, ac.CanWrite("reader"))
	assert.True(t, ac.CanWrite("writer"))
	assert.False(t, ac.CanAdmin("writer"))
	// Admin implies read but writer membership does not
	assert.True(t, ac.CanRead("admin"))
}
