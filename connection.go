package queryreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultCommandTimeout is the timeout, in seconds, given to new commands.
const DefaultCommandTimeout = 30

// describeConcurrency bounds parallel table metadata fetches in DescribeDataset.
const describeConcurrency = 8

// ConnectionState reports whether commands can be created on a Connection.
type ConnectionState int

const (
	StateClosed ConnectionState = iota
	StateOpen
)

func (s ConnectionState) String() string {
	if s == StateOpen {
		return "Open"
	}
	return "Closed"
}

// Connection is the project/dataset context commands run in.
type Connection struct {
	projectID      string
	datasetID      string
	service        Service
	executor       *Executor
	commandTimeout int
	closer         io.Closer

	mu    sync.Mutex
	state ConnectionState
}

// ConnectionOption customizes a Connection.
type ConnectionOption func(*Connection)

// WithExecutorOptions configures the Executor the connection submits through.
func WithExecutorOptions(opts ...ExecutorOption) ConnectionOption {
	return func(c *Connection) {
		c.executor = NewExecutor(c.service, opts...)
	}
}

// WithCommandTimeout sets the timeout, in seconds, new commands start with. Zero means no timeout.
func WithCommandTimeout(seconds int) ConnectionOption {
	return func(c *Connection) {
		if seconds >= 0 {
			c.commandTimeout = seconds
		}
	}
}

// WithCloser registers a resource, typically the backend client, released by Close.
func WithCloser(closer io.Closer) ConnectionOption {
	return func(c *Connection) {
		c.closer = closer
	}
}

// NewConnection creates a closed connection over service for the given project and dataset.
func NewConnection(service Service, projectID, datasetID string, opts ...ConnectionOption) *Connection {
	c := &Connection{
		projectID:      projectID,
		datasetID:      datasetID,
		service:        service,
		commandTimeout: DefaultCommandTimeout,
		state:          StateClosed,
	}
	c.executor = NewExecutor(service)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open makes the connection usable.
func (c *Connection) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.service == nil {
		return errors.New("queryreader: connection has no remote service")
	}
	if c.projectID == "" {
		return errors.New("queryreader: project id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateOpen
	LogInfof("connection opened, projectID: %s, datasetID: %s", c.projectID, c.datasetID)
	return nil
}

// Close marks the connection closed and releases the registered closer. Calling Close twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			return fmt.Errorf("close remote service: %w", err)
		}
	}
	return nil
}

// State returns whether the connection is open.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) ProjectID() string { return c.projectID }

func (c *Connection) DatasetID() string { return c.datasetID }

func (c *Connection) ensureOpen(op string) error {
	if c.State() != StateOpen {
		return usageError(op, ErrConnectionNotOpen, "")
	}
	return nil
}

// CreateCommand returns an empty text command bound to this connection.
func (c *Connection) CreateCommand() (*Command, error) {
	if err := c.ensureOpen("create command"); err != nil {
		return nil, err
	}
	return &Command{
		conn:        c,
		commandType: CommandTypeText,
		timeout:     c.commandTimeout,
	}, nil
}

// DescribeDataset returns the schema table of every table in the dataset, in listing order.
func (c *Connection) DescribeDataset(ctx context.Context) ([]*SchemaTable, error) {
	if err := c.ensureOpen("describe dataset"); err != nil {
		return nil, err
	}
	tables, err := c.executor.ListTables(ctx, c.projectID, c.datasetID)
	if err != nil {
		return nil, err
	}

	out := make([]*SchemaTable, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(describeConcurrency)
	for i := range tables {
		ref := tables[i]
		g.Go(func() error {
			table, err := c.executor.GetTable(gctx, c.projectID, c.datasetID, ref.TableID)
			if err != nil {
				return err
			}
			st, err := newSchemaTable(ref.TableID, table.Schema)
			if err != nil {
				return err
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
