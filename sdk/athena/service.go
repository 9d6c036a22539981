package athena

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"

	"github.com/kent-id/queryreader"
	"github.com/kent-id/queryreader/types"
	"github.com/kent-id/queryreader/util"
)

const (
	maxAllowedPageSize     = 1000 // max allowed by athena
	maxAllowedMetadataPage = 50   // max allowed by athena for ListTableMetadata
	defaultWaitInterval    = 1 * time.Second
)

// Compile-time check: Service is a queryreader remote execution service.
var _ queryreader.Service = (*Service)(nil)

// API is the subset of *athena.Client used by Service.
type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
	ListTableMetadata(ctx context.Context, params *athena.ListTableMetadataInput, optFns ...func(*athena.Options)) (*athena.ListTableMetadataOutput, error)
	GetTableMetadata(ctx context.Context, params *athena.GetTableMetadataInput, optFns ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error)
}

// Service runs commands on AWS Athena. The queryreader project maps to the
// Athena data catalog and the dataset to the database.
type Service struct {
	api            API
	workgroup      string
	outputLocation string
	waitInterval   time.Duration
	maxPageSize    int32
}

// Option customizes a Service.
type Option func(*Service)

// WithWorkgroup runs queries in the given workgroup.
func WithWorkgroup(workgroup string) Option {
	return func(s *Service) { s.workgroup = workgroup }
}

// WithOutputLocation stores query results under the given s3:// prefix.
func WithOutputLocation(location string) Option {
	return func(s *Service) { s.outputLocation = location }
}

// WithWaitInterval sets how long to wait between query state polls.
func WithWaitInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.waitInterval = d
		}
	}
}

// WithPageSize sets how many rows GetQueryResults returns per page, capped at 1000.
func WithPageSize(n int32) Option {
	return func(s *Service) {
		if n > 0 && n <= maxAllowedPageSize {
			s.maxPageSize = n
		}
	}
}

// New constructs a Service from an aws-sdk-go-v2 config.
func New(awsConfig aws.Config, opts ...Option) *Service {
	return NewFromAPI(athena.NewFromConfig(awsConfig), opts...)
}

// NewFromAPI constructs a Service over an existing client.
func NewFromAPI(api API, opts ...Option) *Service {
	s := &Service{
		api:          api,
		waitInterval: defaultWaitInterval,
		maxPageSize:  maxAllowedPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	queryreader.LogInfof("creating athena service with workgroup: %s, pageSize: %d", s.workgroup, s.maxPageSize)
	return s
}

// Query starts the query, waits up to req.TimeoutMs for it to finish and then
// fetches every page of results. A query still running at the deadline is
// stopped and reported with JobComplete=false.
func (s *Service) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error) {
	// 1. start query
	queryExecutionID, err := s.startQueryAndGetExecutionID(ctx, req)
	if err != nil {
		return nil, err
	}
	jobID := util.SafeString(queryExecutionID)

	// 2. get query execution info and wait until query finishes or the timeout is reached
	deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	status, complete, err := s.waitQueryAndGetStatus(ctx, queryExecutionID, deadline)
	if err != nil {
		return nil, err
	}
	if !complete {
		s.stopQuery(ctx, queryExecutionID)
		return &types.QueryResponse{JobComplete: util.RefBool(false), JobID: jobID}, nil
	}

	// 3. finally if query is successful, get the query results output
	if status.State != athenatypes.QueryExecutionStateSucceeded {
		reason := util.SafeString(status.StateChangeReason)
		return nil, queryreader.NewRemoteServiceError(string(status.State), reason)
	}

	resp := &types.QueryResponse{JobComplete: util.RefBool(true), JobID: jobID}
	queryResultInput := athena.GetQueryResultsInput{
		QueryExecutionId: queryExecutionID,
		MaxResults:       &s.maxPageSize,
	}

	var nextToken *string
	var page uint = 1
	for {
		queryResultInput.NextToken = nextToken
		queryResultOutput, err := s.api.GetQueryResults(ctx, &queryResultInput)
		if err != nil {
			return nil, wrapError(err)
		}

		resultSet := queryResultOutput.ResultSet
		if resultSet != nil {
			if resp.Schema == nil && resultSet.ResultSetMetadata != nil {
				resp.Schema = fromColumnInfo(resultSet.ResultSetMetadata.ColumnInfo)
			}
			rows := resultSet.Rows
			// skip header row if first page results
			if page == 1 && len(rows) > 0 {
				rows = rows[1:]
			}
			resp.Rows = append(resp.Rows, fromRows(rows)...)
		}

		nextToken = queryResultOutput.NextToken
		if nextToken == nil {
			queryreader.LogInfof("finished fetching results from athena, queryExecutionID: %s, pages: %d", jobID, page)
			break
		}

		page++
		queryreader.LogDebugf("fetching next page %d results from athena, queryExecutionID: %s", page, jobID)
	}
	if resp.Schema == nil {
		resp.Schema = &types.TableSchema{}
	}
	return resp, nil
}

// startQueryAndGetExecutionID starts query execution and get the execution id to identify the running query in Athena.
func (s *Service) startQueryAndGetExecutionID(ctx context.Context, req *types.QueryRequest) (*string, error) {
	startQueryExecContext := athenatypes.QueryExecutionContext{
		Database: util.NilIfEmpty(req.DatasetID),
		Catalog:  util.NilIfEmpty(req.ProjectID),
	}

	startQueryExecInput := athena.StartQueryExecutionInput{
		QueryExecutionContext: &startQueryExecContext,
		WorkGroup:             util.NilIfEmpty(s.workgroup),
		QueryString:           util.RefString(req.Query),
		ClientRequestToken:    util.NilIfEmpty(req.RequestID),
	}
	if s.outputLocation != "" {
		startQueryExecInput.ResultConfiguration = &athenatypes.ResultConfiguration{
			OutputLocation: util.RefString(s.outputLocation),
		}
	}

	startQueryExecOutput, err := s.api.StartQueryExecution(ctx, &startQueryExecInput)
	if err != nil {
		return nil, wrapError(err)
	}
	queryreader.LogInfof("started query with ExecutionID: %s", util.SafeString(startQueryExecOutput.QueryExecutionId))
	return startQueryExecOutput.QueryExecutionId, nil
}

// waitQueryAndGetStatus polls until query execution leaves QUEUED/RUNNING or the deadline passes.
// complete is false when the deadline passed first.
func (s *Service) waitQueryAndGetStatus(ctx context.Context, queryExecutionID *string, deadline time.Time) (status *athenatypes.QueryExecutionStatus, complete bool, err error) {
	queryExecInput := athena.GetQueryExecutionInput{
		QueryExecutionId: queryExecutionID,
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		queryExecOutput, err := s.api.GetQueryExecution(ctx, &queryExecInput)
		if err != nil {
			return nil, false, wrapError(err)
		}
		if queryExecOutput.QueryExecution == nil || queryExecOutput.QueryExecution.Status == nil {
			return nil, false, queryreader.NewRemoteServiceError("", "query execution has no status")
		}
		status = queryExecOutput.QueryExecution.Status
		if status.State != athenatypes.QueryExecutionStateRunning && status.State != athenatypes.QueryExecutionStateQueued {
			queryreader.LogInfof("stopped query execution with state: %s", status.State)
			return status, true, nil
		}
		if !time.Now().Before(deadline) {
			queryreader.LogWarnf("query still %s at deadline, queryExecutionID: %s", status.State, util.SafeString(queryExecutionID))
			return status, false, nil
		}

		queryreader.LogDebugf("still awaiting query results with state: %s, waitInterval: %s", status.State, s.waitInterval)
		timer.Reset(s.waitInterval)
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) stopQuery(ctx context.Context, queryExecutionID *string) {
	_, err := s.api.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{QueryExecutionId: queryExecutionID})
	if err != nil {
		queryreader.LogWarnf("failed to stop query execution %s: %v", util.SafeString(queryExecutionID), err)
	}
}

// ListTables returns every table of the database in listing order.
func (s *Service) ListTables(ctx context.Context, catalog, database string) ([]types.TableReference, error) {
	input := athena.ListTableMetadataInput{
		CatalogName:  util.RefString(catalog),
		DatabaseName: util.RefString(database),
		MaxResults:   util.RefInt32(maxAllowedMetadataPage),
	}

	var refs []types.TableReference
	for {
		output, err := s.api.ListTableMetadata(ctx, &input)
		if err != nil {
			return nil, wrapError(err)
		}
		for _, t := range output.TableMetadataList {
			refs = append(refs, types.TableReference{
				ProjectID: catalog,
				DatasetID: database,
				TableID:   util.SafeString(t.Name),
			})
		}
		if output.NextToken == nil {
			return refs, nil
		}
		input.NextToken = output.NextToken
	}
}

// GetTable returns the columns of one table, partition keys last.
func (s *Service) GetTable(ctx context.Context, catalog, database, table string) (*types.Table, error) {
	output, err := s.api.GetTableMetadata(ctx, &athena.GetTableMetadataInput{
		CatalogName:  util.RefString(catalog),
		DatabaseName: util.RefString(database),
		TableName:    util.RefString(table),
	})
	if err != nil {
		return nil, wrapError(err)
	}

	schema := &types.TableSchema{}
	if output.TableMetadata != nil {
		for _, cols := range [][]athenatypes.Column{output.TableMetadata.Columns, output.TableMetadata.PartitionKeys} {
			for _, c := range cols {
				schema.Fields = append(schema.Fields, &types.TableFieldSchema{
					Name: util.SafeString(c.Name),
					Type: util.SafeString(c.Type),
				})
			}
		}
	}
	return &types.Table{
		Reference: types.TableReference{ProjectID: catalog, DatasetID: database, TableID: table},
		Schema:    schema,
	}, nil
}

func fromColumnInfo(columns []athenatypes.ColumnInfo) *types.TableSchema {
	schema := &types.TableSchema{Fields: make([]*types.TableFieldSchema, 0, len(columns))}
	for _, c := range columns {
		schema.Fields = append(schema.Fields, &types.TableFieldSchema{
			Name: util.SafeString(c.Name),
			Type: util.SafeString(c.Type),
			Mode: string(c.Nullable),
		})
	}
	return schema
}

func fromRows(rows []athenatypes.Row) []*types.TableRow {
	out := make([]*types.TableRow, 0, len(rows))
	for _, row := range rows {
		r := &types.TableRow{F: make([]*types.TableCell, len(row.Data))}
		for i, d := range row.Data {
			cell := &types.TableCell{}
			if d.VarCharValue != nil {
				cell.V = *d.VarCharValue
			}
			r.F[i] = cell
		}
		out = append(out, r)
	}
	return out
}

// wrapError keeps the code and message of an Athena API error and drops its type.
func wrapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return queryreader.NewRemoteServiceError(apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}
