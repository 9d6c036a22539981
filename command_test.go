package queryreader

import (
	"context"
	"errors"

	"github.com/kent-id/queryreader/types"
	"github.com/kent-id/queryreader/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Command", func() {
	var ctx context.Context
	var service *fakeService
	var conn *Connection
	var cmd *Command

	BeforeEach(func() {
		ctx = context.Background()
		service = newFakeService()
		conn = NewConnection(service, "test-project", "testdata")
		Expect(conn.Open(ctx)).To(Succeed())

		var err error
		cmd, err = conn.CreateCommand()
		Expect(err).ToNot(HaveOccurred())
	})

	Context("BuildText", func() {
		It("should substitute rendered parameters into plain text", func() {
			cmd.Text = "SELECT * FROM t WHERE state = @state"
			cmd.Parameters().Add(&Parameter{Name: "state", Type: DbTypeString, Value: "CA"})

			text, err := cmd.BuildText()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("SELECT * FROM t WHERE state = 'CA'"))
		})

		It("should accept parameter names with a leading @ and replace every occurrence", func() {
			cmd.Text = "SELECT @n + @n"
			cmd.Parameters().AddWithValue("@n", 2)

			text, err := cmd.BuildText()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("SELECT 2 + 2"))
		})

		It("should keep injected quotes inside the literal", func() {
			cmd.Text = "SELECT * FROM t WHERE state = @state"
			cmd.Parameters().AddWithValue("state", "CA' or 1=1--")

			text, err := cmd.BuildText()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal(`SELECT * FROM t WHERE state = 'CA\' or 1=1--'`))
		})

		It("should select the whole table in table-direct mode", func() {
			Expect(cmd.SetCommandType(CommandTypeTableDirect)).To(Succeed())
			cmd.Text = "natality"
			cmd.Parameters().AddWithValue("state", "CA")

			text, err := cmd.BuildText()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("SELECT * FROM [testdata.natality]"))
		})
	})

	Context("SetCommandType", func() {
		It("should reject stored procedures and leave the command unchanged", func() {
			err := cmd.SetCommandType(CommandTypeStoredProcedure)
			Expect(errors.Is(err, ErrUnsupportedCommandType)).To(BeTrue())
			var usageErr *UsageError
			Expect(errors.As(err, &usageErr)).To(BeTrue())
			Expect(cmd.CommandType()).To(Equal(CommandTypeText))
		})
	})

	Context("SetTimeout", func() {
		It("should start with the connection's timeout", func() {
			Expect(cmd.Timeout()).To(Equal(DefaultCommandTimeout))
		})

		It("should reject negative timeouts", func() {
			Expect(cmd.SetTimeout(-1)).To(MatchError(ErrInvalidParameter))
			Expect(cmd.Timeout()).To(Equal(DefaultCommandTimeout))
		})
	})

	Context("ExecuteReader", func() {
		It("should submit the resolved text with the project and translated timeout", func() {
			service.respondWith(newResponse(
				[]*types.TableFieldSchema{field("state", "STRING")},
				row("CA"),
			))
			cmd.Text = "SELECT state FROM t WHERE state = @state"
			cmd.Parameters().AddWithValue("state", "CA")
			Expect(cmd.SetTimeout(10)).To(Succeed())

			reader, err := cmd.ExecuteReader(ctx)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			req := service.lastRequest()
			Expect(req.Query).To(Equal("SELECT state FROM t WHERE state = 'CA'"))
			Expect(req.ProjectID).To(Equal("test-project"))
			Expect(req.DatasetID).To(Equal("testdata"))
			Expect(req.TimeoutMs).To(Equal(int64(10000)))

			ok, err := reader.Read()
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(reader.GetString(0)).To(Equal("CA"))
		})

		It("should fail parameter validation before calling the service", func() {
			cmd.Text = "SELECT @a"
			cmd.Parameters().AddWithValue("a", 1)
			cmd.Parameters().AddWithValue("@a", 2)

			_, err := cmd.ExecuteReader(ctx)
			Expect(err).To(MatchError(ErrInvalidParameter))
			Expect(service.lastRequest()).To(BeNil())
		})

		It("should fail with the timeout error when the job does not complete", func() {
			resp := newResponse(nil)
			resp.JobComplete = util.RefBool(false)
			service.respondWith(resp)
			cmd.Text = "SELECT 1"

			reader, err := cmd.ExecuteReader(ctx)
			Expect(reader).To(BeNil())
			Expect(errors.Is(err, ErrTimeoutReached)).To(BeTrue())
			var remoteErr *RemoteServiceError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
			Expect(remoteErr.Message).To(Equal("Timeout is reached"))
		})

		It("should fail when the connection is closed", func() {
			Expect(conn.Close()).To(Succeed())
			cmd.Text = "SELECT 1"

			_, err := cmd.ExecuteReader(ctx)
			Expect(errors.Is(err, ErrConnectionNotOpen)).To(BeTrue())
			Expect(service.lastRequest()).To(BeNil())
		})

		It("should list tables without running the command in schema-only mode", func() {
			service.addTable("natality", field("year", "INTEGER"))
			cmd.Text = "SELECT 1"

			reader, err := cmd.ExecuteReaderWithBehavior(ctx, BehaviorSchemaOnly)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()
			Expect(service.lastRequest()).To(BeNil())

			schema, err := reader.GetSchemaTable(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(schema.TableName).To(Equal("natality"))
		})

		It("should return the same result asynchronously", func() {
			service.respondWith(newResponse([]*types.TableFieldSchema{field("n", "INTEGER")}, row("5")))
			cmd.Text = "SELECT 5 AS n"

			result := <-cmd.ExecuteReaderAsync(ctx)
			Expect(result.Err).ToNot(HaveOccurred())
			defer result.Value.Close()
			Expect(result.Value.Read()).To(BeTrue())
			Expect(result.Value.GetInt64(0)).To(Equal(int64(5)))
		})
	})

	Context("ExecuteScalar", func() {
		It("should return the first field of the first row", func() {
			service.respondWith(newResponse(
				[]*types.TableFieldSchema{field("n", "INTEGER"), field("s", "STRING")},
				row("7", "x"),
				row("8", "y"),
			))
			cmd.Text = "SELECT n, s FROM t"

			v, err := cmd.ExecuteScalar(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(int64(7)))

			result := <-cmd.ExecuteScalarAsync(ctx)
			Expect(result.Err).ToNot(HaveOccurred())
			Expect(result.Value).To(Equal(int64(7)))
		})

		It("should return nil when there are no rows", func() {
			service.respondWith(newResponse([]*types.TableFieldSchema{field("n", "INTEGER")}))
			cmd.Text = "SELECT n FROM t WHERE false"

			v, err := cmd.ExecuteScalar(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(BeNil())
		})
	})
})
