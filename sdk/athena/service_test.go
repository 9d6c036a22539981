package athena

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/kent-id/queryreader"
	"github.com/kent-id/queryreader/types"
	"github.com/kent-id/queryreader/util"
)

// mockAPI replays scripted query states and result pages.
type mockAPI struct {
	startInput *athena.StartQueryExecutionInput
	startErr   error

	states    []athenatypes.QueryExecutionState
	reason    string
	polls     int
	stopped   bool
	pages     []*athena.GetQueryResultsOutput
	pageCalls int
	tokens    []*string

	tableLists []*athena.ListTableMetadataOutput
	listCalls  int
	tableMeta  *athenatypes.TableMetadata
}

func (m *mockAPI) StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	m.startInput = params
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: util.RefString("qe-1")}, nil
}

func (m *mockAPI) GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	state := m.states[len(m.states)-1]
	if m.polls < len(m.states) {
		state = m.states[m.polls]
	}
	m.polls++
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athenatypes.QueryExecution{
			QueryExecutionId: params.QueryExecutionId,
			Status: &athenatypes.QueryExecutionStatus{
				State:             state,
				StateChangeReason: util.NilIfEmpty(m.reason),
			},
		},
	}, nil
}

func (m *mockAPI) GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	m.tokens = append(m.tokens, params.NextToken)
	page := m.pages[m.pageCalls]
	m.pageCalls++
	return page, nil
}

func (m *mockAPI) StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	m.stopped = true
	return &athena.StopQueryExecutionOutput{}, nil
}

func (m *mockAPI) ListTableMetadata(ctx context.Context, params *athena.ListTableMetadataInput, optFns ...func(*athena.Options)) (*athena.ListTableMetadataOutput, error) {
	out := m.tableLists[m.listCalls]
	m.listCalls++
	return out, nil
}

func (m *mockAPI) GetTableMetadata(ctx context.Context, params *athena.GetTableMetadataInput, optFns ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error) {
	return &athena.GetTableMetadataOutput{TableMetadata: m.tableMeta}, nil
}

func datumRow(values ...*string) athenatypes.Row {
	row := athenatypes.Row{}
	for _, v := range values {
		row.Data = append(row.Data, athenatypes.Datum{VarCharValue: v})
	}
	return row
}

var _ = Describe("Service", func() {
	var ctx context.Context
	var api *mockAPI
	var service *Service

	BeforeEach(func() {
		ctx = context.Background()
		api = &mockAPI{}
		service = NewFromAPI(api,
			WithWorkgroup("primary"),
			WithOutputLocation("s3://bucket/results/"),
			WithWaitInterval(time.Millisecond),
			WithPageSize(2),
		)
	})

	Context("Query", func() {
		It("should wait for the query then page results skipping the header row", func() {
			api.states = []athenatypes.QueryExecutionState{
				athenatypes.QueryExecutionStateQueued,
				athenatypes.QueryExecutionStateRunning,
				athenatypes.QueryExecutionStateSucceeded,
			}
			metadata := &athenatypes.ResultSetMetadata{ColumnInfo: []athenatypes.ColumnInfo{
				{Name: util.RefString("state"), Type: util.RefString("varchar")},
				{Name: util.RefString("n"), Type: util.RefString("bigint")},
			}}
			api.pages = []*athena.GetQueryResultsOutput{
				{
					ResultSet: &athenatypes.ResultSet{
						ResultSetMetadata: metadata,
						Rows: []athenatypes.Row{
							datumRow(util.RefString("state"), util.RefString("n")),
							datumRow(util.RefString("CA"), util.RefString("1")),
						},
					},
					NextToken: util.RefString("page-2"),
				},
				{
					ResultSet: &athenatypes.ResultSet{
						ResultSetMetadata: metadata,
						Rows:              []athenatypes.Row{datumRow(util.RefString("NY"), nil)},
					},
				},
			}

			resp, err := service.Query(ctx, &types.QueryRequest{
				ProjectID: "AwsDataCatalog",
				DatasetID: "sampledb",
				Query:     "SELECT state, n FROM t",
				TimeoutMs: 60000,
				RequestID: "11111111-2222-3333-4444-555555555555",
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(*api.startInput.QueryString).To(Equal("SELECT state, n FROM t"))
			Expect(*api.startInput.WorkGroup).To(Equal("primary"))
			Expect(*api.startInput.ClientRequestToken).To(Equal("11111111-2222-3333-4444-555555555555"))
			Expect(*api.startInput.QueryExecutionContext.Catalog).To(Equal("AwsDataCatalog"))
			Expect(*api.startInput.QueryExecutionContext.Database).To(Equal("sampledb"))
			Expect(*api.startInput.ResultConfiguration.OutputLocation).To(Equal("s3://bucket/results/"))
			Expect(api.polls).To(Equal(3))
			Expect(api.tokens).To(Equal([]*string{nil, util.RefString("page-2")}))

			Expect(*resp.JobComplete).To(BeTrue())
			Expect(resp.JobID).To(Equal("qe-1"))
			Expect(resp.Schema.Fields).To(HaveLen(2))
			Expect(resp.Schema.Fields[1].Type).To(Equal("bigint"))
			Expect(resp.Rows).To(HaveLen(2))
			Expect(resp.Rows[0].F[0].V).To(Equal("CA"))
			Expect(resp.Rows[1].F[0].V).To(Equal("NY"))
			Expect(resp.Rows[1].F[1].V).To(BeNil())
		})

		It("should stop the query and report it incomplete at the deadline", func() {
			api.states = []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}

			resp, err := service.Query(ctx, &types.QueryRequest{Query: "SELECT 1", TimeoutMs: 5})
			Expect(err).ToNot(HaveOccurred())
			Expect(*resp.JobComplete).To(BeFalse())
			Expect(api.stopped).To(BeTrue())
			Expect(api.pageCalls).To(Equal(0))
		})

		It("should surface failed queries with their reason", func() {
			api.states = []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed}
			api.reason = "SYNTAX_ERROR: line 1:1"

			_, err := service.Query(ctx, &types.QueryRequest{Query: "SELEC 1", TimeoutMs: 1000})
			var remoteErr *queryreader.RemoteServiceError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
			Expect(remoteErr.Code).To(Equal("FAILED"))
			Expect(remoteErr.Message).To(Equal("SYNTAX_ERROR: line 1:1"))
		})

		It("should wrap API errors", func() {
			api.startErr = &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "database does not exist"}

			_, err := service.Query(ctx, &types.QueryRequest{Query: "SELECT 1", TimeoutMs: 1000})
			var remoteErr *queryreader.RemoteServiceError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
			Expect(remoteErr.Code).To(Equal("InvalidRequestException"))
			Expect(remoteErr.Message).To(Equal("database does not exist"))
		})

		It("should stop waiting when the context is cancelled", func() {
			api.states = []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}
			service = NewFromAPI(api, WithWaitInterval(time.Hour))
			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := service.Query(cctx, &types.QueryRequest{Query: "SELECT 1", TimeoutMs: 60000})
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Context("ListTables", func() {
		It("should follow next tokens", func() {
			api.tableLists = []*athena.ListTableMetadataOutput{
				{
					TableMetadataList: []athenatypes.TableMetadata{{Name: util.RefString("elb_logs")}},
					NextToken:         util.RefString("more"),
				},
				{
					TableMetadataList: []athenatypes.TableMetadata{{Name: util.RefString("flights")}},
				},
			}

			tables, err := service.ListTables(ctx, "AwsDataCatalog", "sampledb")
			Expect(err).ToNot(HaveOccurred())
			Expect(tables).To(Equal([]types.TableReference{
				{ProjectID: "AwsDataCatalog", DatasetID: "sampledb", TableID: "elb_logs"},
				{ProjectID: "AwsDataCatalog", DatasetID: "sampledb", TableID: "flights"},
			}))
		})
	})

	Context("GetTable", func() {
		It("should list columns then partition keys", func() {
			api.tableMeta = &athenatypes.TableMetadata{
				Name:          util.RefString("elb_logs"),
				Columns:       []athenatypes.Column{{Name: util.RefString("request_ip"), Type: util.RefString("string")}},
				PartitionKeys: []athenatypes.Column{{Name: util.RefString("dt"), Type: util.RefString("date")}},
			}

			table, err := service.GetTable(ctx, "AwsDataCatalog", "sampledb", "elb_logs")
			Expect(err).ToNot(HaveOccurred())
			Expect(table.Reference.TableID).To(Equal("elb_logs"))
			Expect(table.Schema.Fields).To(Equal([]*types.TableFieldSchema{
				{Name: "request_ip", Type: "string"},
				{Name: "dt", Type: "date"},
			}))
		})
	})
})
