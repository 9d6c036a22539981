package queryreader

import (
	"context"

	"github.com/kent-id/queryreader/types"
)

// Service is the remote execution service a Connection submits work to.
// Implementations live under sdk/. Errors may be of any type: the adapter
// folds them into RemoteServiceError before callers see them.
type Service interface {
	// Query runs req and returns the whole result set in one response.
	Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error)

	// ListTables returns the tables of a dataset in service order.
	ListTables(ctx context.Context, projectID, datasetID string) ([]types.TableReference, error)

	// GetTable returns the metadata, including schema, of one table.
	GetTable(ctx context.Context, projectID, datasetID, tableID string) (*types.Table, error)
}
