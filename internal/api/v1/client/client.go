// Package client provides a typed HTTP client for the relay API plus the
// observer that consumes the live update stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tracklab/relay/internal/api/v1/routes"
	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Client defines the interface for interacting with the relay API
type Client interface {
	// Job methods
	CreateJob(ctx context.Context, req *types.CreateJobRequest) (string, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *models.ListOptions) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, req *types.UpdateJobStatusRequest) error
	AddJobLog(ctx context.Context, id string, req *types.AddLogRequest) error
	RestartJob(ctx context.Context, id string) error
	CancelJob(ctx context.Context, id string) error
	ArchiveJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error

	// Batch methods
	CreateBatch(ctx context.Context, req *types.CreateBatchRequest) (string, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListBatches(ctx context.Context, opts *models.ListOptions) ([]models.Batch, error)
	GetBatchJobs(ctx context.Context, id string) ([]models.Job, error)
	RestartBatch(ctx context.Context, id string) error
	ToggleBatchActive(ctx context.Context, id string) error
	ArchiveBatch(ctx context.Context, id string) error
	DeleteBatch(ctx context.Context, id string) error

	// Administrative sweeps
	FailAllBatches(ctx context.Context) (int, error)
	PendingAllBatches(ctx context.Context, targetLanguage string) (int, error)

	// Health check
	HealthCheck(ctx context.Context) error
}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

var _ Client = (*APIClient)(nil)

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (*APIClient, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{baseURL: opts.BaseURL, timeout: timeout}, nil
}

// envelope mirrors the server's response wrapper with the data left raw
type envelope struct {
	Slug  string          `json:"slug"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

// doRequest performs one API call and decodes the enveloped payload into out
func (c *APIClient) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + endpoint)

	if body != nil {
		agent.JSON(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	agent.Timeout(timeout)

	if err := agent.Parse(); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("request failed: %w", errs[0])
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", code, err)
	}

	if code >= 400 {
		if code == fiber.StatusNotFound {
			return fmt.Errorf("%s: %w", env.Error, models.ErrNotFound)
		}
		if code == fiber.StatusBadRequest {
			return fmt.Errorf("%s: %w", env.Error, models.ErrValidation)
		}
		return fmt.Errorf("server error (status %d): %s", code, env.Error)
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return nil
}

func listQuery(opts *models.ListOptions) string {
	if opts == nil {
		return ""
	}
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.IncludeArchived {
		q.Set("include_archived", "true")
	}
	if opts.OwnerID != "" {
		q.Set("owner_id", opts.OwnerID)
	}
	if opts.BatchID != "" {
		q.Set("batch_id", opts.BatchID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// CreateJob creates a standalone job and returns its id
func (c *APIClient) CreateJob(ctx context.Context, req *types.CreateJobRequest) (string, error) {
	var resp types.CreateResponse
	err := c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs", req, &resp)
	return resp.ID, err
}

// GetJob fetches one job by id
func (c *APIClient) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.doRequest(ctx, fiber.MethodGet, "/api/v1/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs fetches jobs matching the given options
func (c *APIClient) ListJobs(ctx context.Context, opts *models.ListOptions) ([]models.Job, error) {
	var jobs []models.Job
	err := c.doRequest(ctx, fiber.MethodGet, "/api/v1/jobs"+listQuery(opts), nil, &jobs)
	return jobs, err
}

// UpdateJobStatus reports a status transition for a job
func (c *APIClient) UpdateJobStatus(ctx context.Context, id string, req *types.UpdateJobStatusRequest) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs/"+id+"/status", req, nil)
}

// AddJobLog appends one entry to a job's log
func (c *APIClient) AddJobLog(ctx context.Context, id string, req *types.AddLogRequest) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs/"+id+"/logs", req, nil)
}

// RestartJob resets a job to pending
func (c *APIClient) RestartJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs/"+id+"/restart", nil, nil)
}

// CancelJob cancels a job
func (c *APIClient) CancelJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil, nil)
}

// ArchiveJob archives a job
func (c *APIClient) ArchiveJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/jobs/"+id+"/archive", nil, nil)
}

// DeleteJob hard-deletes a job
func (c *APIClient) DeleteJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodDelete, "/api/v1/jobs/"+id, nil, nil)
}

// CreateBatch creates a batch with its member jobs and returns the batch id
func (c *APIClient) CreateBatch(ctx context.Context, req *types.CreateBatchRequest) (string, error) {
	var resp types.CreateResponse
	err := c.doRequest(ctx, fiber.MethodPost, "/api/v1/batches", req, &resp)
	return resp.ID, err
}

// GetBatch fetches one batch by id
func (c *APIClient) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := c.doRequest(ctx, fiber.MethodGet, "/api/v1/batches/"+id, nil, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListBatches fetches batches matching the given options
func (c *APIClient) ListBatches(ctx context.Context, opts *models.ListOptions) ([]models.Batch, error) {
	var batches []models.Batch
	err := c.doRequest(ctx, fiber.MethodGet, "/api/v1/batches"+listQuery(opts), nil, &batches)
	return batches, err
}

// GetBatchJobs fetches a batch's member jobs
func (c *APIClient) GetBatchJobs(ctx context.Context, id string) ([]models.Job, error) {
	var jobs []models.Job
	err := c.doRequest(ctx, fiber.MethodGet, "/api/v1/batches/"+id+"/jobs", nil, &jobs)
	return jobs, err
}

// RestartBatch resets every member job of a batch to pending
func (c *APIClient) RestartBatch(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/batches/"+id+"/restart", nil, nil)
}

// ToggleBatchActive flips a batch's UI-focus bit
func (c *APIClient) ToggleBatchActive(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/batches/"+id+"/toggle-active", nil, nil)
}

// ArchiveBatch archives a batch
func (c *APIClient) ArchiveBatch(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodPost, "/api/v1/batches/"+id+"/archive", nil, nil)
}

// DeleteBatch deletes a batch together with its member jobs
func (c *APIClient) DeleteBatch(ctx context.Context, id string) error {
	return c.doRequest(ctx, fiber.MethodDelete, "/api/v1/batches/"+id, nil, nil)
}

// FailAllBatches runs the operator sweep that forces active jobs to failed
func (c *APIClient) FailAllBatches(ctx context.Context) (int, error) {
	var resp types.BulkResponse
	err := c.doRequest(ctx, fiber.MethodPost, "/api/v1/admin/fail-all", nil, &resp)
	return resp.Affected, err
}

// PendingAllBatches runs the operator sweep that resets jobs to pending
func (c *APIClient) PendingAllBatches(ctx context.Context, targetLanguage string) (int, error) {
	var resp types.BulkResponse
	req := &types.PendingAllRequest{TargetLanguage: targetLanguage}
	err := c.doRequest(ctx, fiber.MethodPost, "/api/v1/admin/pending-all", req, &resp)
	return resp.Affected, err
}

// HealthCheck verifies the server is reachable
func (c *APIClient) HealthCheck(ctx context.Context) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	req.Header.SetMethod(fiber.MethodGet)
	req.SetRequestURI(c.baseURL + "/health")

	if err := agent.Parse(); err != nil {
		return err
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("unexpected health status: %d", code)
	}
	return nil
}
