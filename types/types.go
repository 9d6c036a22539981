package types

// QueryRequest is submitted to the remote execution service to run a query.
type QueryRequest struct {
	// ProjectID scopes the job. For Athena this is the data catalog.
	ProjectID string

	// DatasetID is the default dataset (Athena database) for unqualified names.
	DatasetID string

	// Query is the final, parameter-substituted command text.
	Query string

	// TimeoutMs is how long the service may work before answering with JobComplete=false.
	TimeoutMs int64

	// RequestID makes the submission idempotent on the remote side.
	RequestID string
}

// QueryResponse is the fully materialized answer to a QueryRequest.
type QueryResponse struct {
	// JobComplete is false when the service stopped waiting before the job finished.
	// A nil value means the service did not report completion status.
	JobComplete *bool

	// Schema describes the columns of Rows.
	Schema *TableSchema

	// Rows in the order returned by the service.
	Rows []*TableRow

	// JobID identifies the remote job, when the service reports one.
	JobID string
}

// TableSchema is the ordered column list of a result set or table.
type TableSchema struct {
	Fields []*TableFieldSchema
}

// TableFieldSchema describes one column.
type TableFieldSchema struct {
	// Name of the column.
	Name string

	// Type is the remote type tag, e.g. STRING or varchar.
	Type string

	// Mode is NULLABLE, REQUIRED or REPEATED, when the service reports it.
	Mode string
}

// TableRow is one row of raw cells, position-aligned with TableSchema.Fields.
type TableRow struct {
	F []*TableCell
}

// TableCell holds the raw wire value of one field. A nil V is a null.
type TableCell struct {
	V interface{}
}

// TableReference identifies a table within a project and dataset.
type TableReference struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// Table is the metadata of a single table.
type Table struct {
	Reference TableReference
	Schema    *TableSchema
}
