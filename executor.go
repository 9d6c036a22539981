package queryreader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kent-id/queryreader/types"
)

// maxTimeoutMs is what a zero (unlimited) command timeout is sent as.
const maxTimeoutMs = int64(math.MaxInt32)

// Executor submits resolved command text to a Service and normalizes what comes back.
type Executor struct {
	service      Service
	limiter      *rate.Limiter
	newRequestID func() string
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithRateLimit throttles calls to the remote service to rps per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) ExecutorOption {
	return func(e *Executor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRequestIDFunc overrides how idempotency ids for query submissions are generated.
func WithRequestIDFunc(fn func() string) ExecutorOption {
	return func(e *Executor) {
		e.newRequestID = fn
	}
}

// NewExecutor wraps service.
func NewExecutor(service Service, opts ...ExecutorOption) *Executor {
	e := &Executor{
		service:      service,
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timeoutToWire translates a command timeout in seconds to the wire unit.
// Zero means no timeout.
func timeoutToWire(timeoutSeconds int) int64 {
	if timeoutSeconds <= 0 {
		return maxTimeoutMs
	}
	ms := (time.Duration(timeoutSeconds) * time.Second).Milliseconds()
	if ms > maxTimeoutMs {
		return maxTimeoutMs
	}
	return ms
}

func (e *Executor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return &RemoteServiceError{Message: fmt.Sprintf("request throttled: %v", err), ctxErr: ctx.Err()}
	}
	return nil
}

// Execute runs commandText and returns the fully materialized response.
// A response reporting the job as not complete fails with ErrTimeoutReached.
func (e *Executor) Execute(ctx context.Context, projectID, datasetID, commandText string, timeoutSeconds int) (*types.QueryResponse, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	req := &types.QueryRequest{
		ProjectID: projectID,
		DatasetID: datasetID,
		Query:     commandText,
		TimeoutMs: timeoutToWire(timeoutSeconds),
		RequestID: e.newRequestID(),
	}
	LogDebugf("submitting query, projectID: %s, requestID: %s, timeoutMs: %d", req.ProjectID, req.RequestID, req.TimeoutMs)

	resp, err := e.service.Query(ctx, req)
	if err != nil {
		err = normalizeRemoteError(ctx, err)
		LogWarnf("query failed, requestID: %s, error: %v", req.RequestID, err)
		return nil, err
	}
	if resp == nil {
		return nil, NewRemoteServiceError("", "empty query response")
	}
	if resp.JobComplete != nil && !*resp.JobComplete {
		LogWarnf("query did not complete within %d ms, requestID: %s, jobID: %s", req.TimeoutMs, req.RequestID, resp.JobID)
		return nil, newTimeoutError()
	}
	if err := validateResponseShape(resp); err != nil {
		return nil, err
	}
	LogDebugf("query completed, requestID: %s, jobID: %s, rows: %d", req.RequestID, resp.JobID, len(resp.Rows))
	return resp, nil
}

// ExecuteAsync runs Execute on another goroutine.
func (e *Executor) ExecuteAsync(ctx context.Context, projectID, datasetID, commandText string, timeoutSeconds int) <-chan AsyncResult[*types.QueryResponse] {
	return goAsync(ctx, func(ctx context.Context) (*types.QueryResponse, error) {
		return e.Execute(ctx, projectID, datasetID, commandText, timeoutSeconds)
	})
}

// ListTables returns the tables of a dataset.
func (e *Executor) ListTables(ctx context.Context, projectID, datasetID string) ([]types.TableReference, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	tables, err := e.service.ListTables(ctx, projectID, datasetID)
	if err != nil {
		err = normalizeRemoteError(ctx, err)
		LogWarnf("listing tables failed, projectID: %s, datasetID: %s, error: %v", projectID, datasetID, err)
		return nil, err
	}
	return tables, nil
}

// GetTable returns the metadata of one table.
func (e *Executor) GetTable(ctx context.Context, projectID, datasetID, tableID string) (*types.Table, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	table, err := e.service.GetTable(ctx, projectID, datasetID, tableID)
	if err != nil {
		err = normalizeRemoteError(ctx, err)
		LogWarnf("getting table failed, table: %s.%s, error: %v", datasetID, tableID, err)
		return nil, err
	}
	if table == nil {
		return nil, NewRemoteServiceError("", fmt.Sprintf("empty metadata for table %s.%s", datasetID, tableID))
	}
	return table, nil
}

// validateResponseShape enforces that every row has exactly one cell per schema field.
func validateResponseShape(resp *types.QueryResponse) error {
	fieldCount := 0
	if resp.Schema != nil {
		fieldCount = len(resp.Schema.Fields)
	}
	for i, row := range resp.Rows {
		if row == nil || len(row.F) != fieldCount {
			n := 0
			if row != nil {
				n = len(row.F)
			}
			return NewRemoteServiceError("", fmt.Sprintf("malformed response: row %d has %d fields, schema has %d", i, n, fieldCount))
		}
	}
	return nil
}
