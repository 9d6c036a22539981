package queryreader

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type countingCloser struct{ calls int }

func (c *countingCloser) Close() error {
	c.calls++
	return nil
}

var _ = Describe("Connection", func() {
	var ctx context.Context
	var service *fakeService

	BeforeEach(func() {
		ctx = context.Background()
		service = newFakeService()
	})

	Context("Open and Close", func() {
		It("should start closed and refuse commands", func() {
			conn := NewConnection(service, "p", "d")
			Expect(conn.State()).To(Equal(StateClosed))
			_, err := conn.CreateCommand()
			expectUsageError(err, ErrConnectionNotOpen)
		})

		It("should require a project id", func() {
			conn := NewConnection(service, "", "d")
			Expect(conn.Open(ctx)).ToNot(Succeed())
			Expect(conn.State()).To(Equal(StateClosed))
		})

		It("should release the closer once", func() {
			closer := &countingCloser{}
			conn := NewConnection(service, "p", "d", WithCloser(closer))
			Expect(conn.Open(ctx)).To(Succeed())
			Expect(conn.State().String()).To(Equal("Open"))

			Expect(conn.Close()).To(Succeed())
			Expect(conn.Close()).To(Succeed())
			Expect(closer.calls).To(Equal(1))
			Expect(conn.State()).To(Equal(StateClosed))
		})

		It("should hand its timeout to new commands", func() {
			conn := openConnection(service, WithCommandTimeout(0))
			cmd, err := conn.CreateCommand()
			Expect(err).ToNot(HaveOccurred())
			Expect(cmd.Timeout()).To(Equal(0))
			Expect(cmd.Connection()).To(BeIdenticalTo(conn))
			Expect(cmd.CommandType()).To(Equal(CommandTypeText))
		})
	})

	Context("DescribeDataset", func() {
		It("should describe every table in listing order", func() {
			for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
				service.addTable(name, field("id", "INTEGER"), field(name, "STRING"))
			}
			conn := openConnection(service)

			tables, err := conn.DescribeDataset(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(tables).To(HaveLen(10))
			for i, table := range tables {
				Expect(table.TableName).To(Equal(service.tables[i].TableID))
				Expect(table.Columns).To(HaveLen(2))
				Expect(table.Columns[1].ColumnName).To(Equal(table.TableName))
			}
			Expect(service.getCalls).To(Equal(10))
		})

		It("should fail if any table fails", func() {
			service.addTable("a", field("id", "INTEGER"))
			service.addTable("b", field("geo", "GEOGRAPHY"))
			conn := openConnection(service)

			_, err := conn.DescribeDataset(ctx)
			var typeErr *TypeResolutionError
			Expect(errors.As(err, &typeErr)).To(BeTrue())
		})

		It("should surface listing failures as remote service errors", func() {
			service.listErr = errors.New("dataset not found")
			conn := openConnection(service)

			_, err := conn.DescribeDataset(ctx)
			var remoteErr *RemoteServiceError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
			Expect(remoteErr.Message).To(ContainSubstring("dataset not found"))
		})
	})
})
