package bigquery

import (
	"context"
	"errors"
	"strconv"

	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kent-id/queryreader"
	"github.com/kent-id/queryreader/types"
	"github.com/kent-id/queryreader/util"
)

// Compile-time check: Service is a queryreader remote execution service.
var _ queryreader.Service = (*Service)(nil)

// Service runs commands on Google BigQuery through the REST v2 API.
// Queries use legacy SQL, which is what the [dataset.table] syntax of
// table-direct commands requires.
type Service struct {
	api *bq.Service
}

// New creates a Service. Without options, application default credentials are used.
func New(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	api, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewFromAPI(api), nil
}

// NewFromAPI wraps an already configured BigQuery API client.
func NewFromAPI(api *bq.Service) *Service {
	return &Service{api: api}
}

// Query runs req with jobs.query and pages through jobs.getQueryResults until
// every row is fetched.
func (s *Service) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error) {
	queryReq := &bq.QueryRequest{
		Query:        req.Query,
		TimeoutMs:    req.TimeoutMs,
		UseLegacySql: util.RefBool(true),
		RequestId:    req.RequestID,
	}
	if req.DatasetID != "" {
		queryReq.DefaultDataset = &bq.DatasetReference{ProjectId: req.ProjectID, DatasetId: req.DatasetID}
	}

	resp, err := s.api.Jobs.Query(req.ProjectID, queryReq).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	out := &types.QueryResponse{
		JobComplete: util.RefBool(resp.JobComplete),
		Schema:      fromTableSchema(resp.Schema),
		Rows:        fromTableRows(resp.Rows),
	}
	if resp.JobReference != nil {
		out.JobID = resp.JobReference.JobId
	}
	if !resp.JobComplete || resp.PageToken == "" || resp.JobReference == nil {
		return out, nil
	}

	pageToken := resp.PageToken
	page := 1
	for pageToken != "" {
		page++
		queryreader.LogDebugf("fetching next page %d results from bigquery, jobID: %s", page, out.JobID)
		call := s.api.Jobs.GetQueryResults(req.ProjectID, resp.JobReference.JobId).PageToken(pageToken)
		if resp.JobReference.Location != "" {
			call = call.Location(resp.JobReference.Location)
		}
		next, err := call.Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err)
		}
		out.Rows = append(out.Rows, fromTableRows(next.Rows)...)
		pageToken = next.PageToken
	}
	queryreader.LogInfof("finished fetching results from bigquery, jobID: %s, pages: %d", out.JobID, page)
	return out, nil
}

// ListTables returns every table of the dataset in listing order.
func (s *Service) ListTables(ctx context.Context, projectID, datasetID string) ([]types.TableReference, error) {
	var refs []types.TableReference
	err := s.api.Tables.List(projectID, datasetID).Pages(ctx, func(page *bq.TableList) error {
		for _, t := range page.Tables {
			if t == nil || t.TableReference == nil {
				continue
			}
			refs = append(refs, types.TableReference{
				ProjectID: t.TableReference.ProjectId,
				DatasetID: t.TableReference.DatasetId,
				TableID:   t.TableReference.TableId,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return refs, nil
}

// GetTable returns the schema of one table.
func (s *Service) GetTable(ctx context.Context, projectID, datasetID, tableID string) (*types.Table, error) {
	table, err := s.api.Tables.Get(projectID, datasetID, tableID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return &types.Table{
		Reference: types.TableReference{ProjectID: projectID, DatasetID: datasetID, TableID: tableID},
		Schema:    fromTableSchema(table.Schema),
	}, nil
}

func fromTableSchema(schema *bq.TableSchema) *types.TableSchema {
	if schema == nil {
		return nil
	}
	out := &types.TableSchema{Fields: make([]*types.TableFieldSchema, 0, len(schema.Fields))}
	for _, f := range schema.Fields {
		if f == nil {
			continue
		}
		out.Fields = append(out.Fields, &types.TableFieldSchema{Name: f.Name, Type: f.Type, Mode: f.Mode})
	}
	return out
}

func fromTableRows(rows []*bq.TableRow) []*types.TableRow {
	out := make([]*types.TableRow, 0, len(rows))
	for _, row := range rows {
		r := &types.TableRow{}
		if row != nil {
			r.F = make([]*types.TableCell, len(row.F))
			for i, cell := range row.F {
				if cell == nil {
					r.F[i] = &types.TableCell{}
					continue
				}
				r.F[i] = &types.TableCell{V: cell.V}
			}
		}
		out = append(out, r)
	}
	return out
}

// wrapError keeps the diagnostic of a googleapi.Error and drops its type.
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" && len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		if msg == "" {
			msg = apiErr.Error()
		}
		return queryreader.NewRemoteServiceError(strconv.Itoa(apiErr.Code), msg)
	}
	return err
}
