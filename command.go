package queryreader

import (
	"context"
	"fmt"
	"strings"
)

// CommandType selects how Command.Text is interpreted.
type CommandType int

const (
	// CommandTypeText runs Text as a query after parameter substitution.
	CommandTypeText CommandType = iota
	// CommandTypeTableDirect reads every row of the table named by Text.
	CommandTypeTableDirect
	// CommandTypeStoredProcedure is not supported by the remote service.
	CommandTypeStoredProcedure
)

func (t CommandType) String() string {
	switch t {
	case CommandTypeText:
		return "Text"
	case CommandTypeTableDirect:
		return "TableDirect"
	case CommandTypeStoredProcedure:
		return "StoredProcedure"
	default:
		return fmt.Sprintf("CommandType(%d)", int(t))
	}
}

// CommandBehavior selects what ExecuteReaderWithBehavior produces.
type CommandBehavior int

const (
	// BehaviorDefault runs the command and reads its rows.
	BehaviorDefault CommandBehavior = iota
	// BehaviorSchemaOnly lists the dataset's tables instead of running the command.
	BehaviorSchemaOnly
)

// Command is a query or table read bound to a Connection.
type Command struct {
	// Text is the query text, or the table name for CommandTypeTableDirect.
	Text string

	conn        *Connection
	commandType CommandType
	timeout     int
	parameters  ParameterCollection
}

// CommandType returns how Text is interpreted.
func (c *Command) CommandType() CommandType {
	return c.commandType
}

// SetCommandType fails for anything but Text and TableDirect, leaving the command unchanged.
func (c *Command) SetCommandType(t CommandType) error {
	if t != CommandTypeText && t != CommandTypeTableDirect {
		return usageError("set command type", ErrUnsupportedCommandType, "%s", t)
	}
	c.commandType = t
	return nil
}

// Timeout returns the command timeout in seconds. Zero means no timeout.
func (c *Command) Timeout() int {
	return c.timeout
}

// SetTimeout sets the command timeout in seconds. Zero means no timeout.
func (c *Command) SetTimeout(seconds int) error {
	if seconds < 0 {
		return usageError("set timeout", ErrInvalidParameter, "timeout must not be negative, got %d", seconds)
	}
	c.timeout = seconds
	return nil
}

// Parameters returns the parameters bound to the command.
func (c *Command) Parameters() *ParameterCollection {
	return &c.parameters
}

// Connection returns the connection the command was created on.
func (c *Command) Connection() *Connection {
	return c.conn
}

// BuildText resolves the text sent to the remote service.
// Table-direct commands select every column of [dataset.table] and ignore parameters.
// Text commands have every @name replaced by the rendered parameter literal.
func (c *Command) BuildText() (string, error) {
	switch c.commandType {
	case CommandTypeTableDirect:
		return fmt.Sprintf("SELECT * FROM [%s.%s]", c.conn.datasetID, c.Text), nil
	case CommandTypeText:
		text := c.Text
		for _, p := range c.parameters.items {
			text = strings.ReplaceAll(text, parameterPrefix+p.bareName(), p.Render())
		}
		return text, nil
	default:
		return "", usageError("build command text", ErrUnsupportedCommandType, "%s", c.commandType)
	}
}

// ExecuteReader runs the command and returns a reader positioned before the first row.
func (c *Command) ExecuteReader(ctx context.Context) (*Reader, error) {
	return c.ExecuteReaderWithBehavior(ctx, BehaviorDefault)
}

// ExecuteReaderWithBehavior runs the command, or lists the dataset's tables for BehaviorSchemaOnly.
// The reader must be closed by the caller.
func (c *Command) ExecuteReaderWithBehavior(ctx context.Context, behavior CommandBehavior) (*Reader, error) {
	if err := c.conn.ensureOpen("execute reader"); err != nil {
		return nil, err
	}

	r := newReader()
	if behavior == BehaviorSchemaOnly {
		tables, err := c.conn.executor.ListTables(ctx, c.conn.projectID, c.conn.datasetID)
		if err != nil {
			return nil, err
		}
		if err := r.initTableListing(c.conn, tables); err != nil {
			return nil, err
		}
		return r, nil
	}

	if err := c.parameters.Validate(); err != nil {
		return nil, err
	}
	text, err := c.BuildText()
	if err != nil {
		return nil, err
	}
	resp, err := c.conn.executor.Execute(ctx, c.conn.projectID, c.conn.datasetID, text, c.timeout)
	if err != nil {
		return nil, err
	}
	if err := r.initQueryResult(resp); err != nil {
		return nil, err
	}
	return r, nil
}

// ExecuteReaderAsync runs ExecuteReader on another goroutine.
func (c *Command) ExecuteReaderAsync(ctx context.Context) <-chan AsyncResult[*Reader] {
	return c.ExecuteReaderWithBehaviorAsync(ctx, BehaviorDefault)
}

// ExecuteReaderWithBehaviorAsync runs ExecuteReaderWithBehavior on another goroutine.
func (c *Command) ExecuteReaderWithBehaviorAsync(ctx context.Context, behavior CommandBehavior) <-chan AsyncResult[*Reader] {
	return goAsync(ctx, func(ctx context.Context) (*Reader, error) {
		return c.ExecuteReaderWithBehavior(ctx, behavior)
	})
}

// ExecuteScalar returns the first field of the first row, coerced to its local type.
// It returns nil when the result has no rows.
func (c *Command) ExecuteScalar(ctx context.Context) (interface{}, error) {
	r, err := c.ExecuteReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ok, err := r.Read()
	if err != nil || !ok {
		return nil, err
	}
	if n, _ := r.FieldCount(); n == 0 {
		return nil, nil
	}
	return r.GetFieldValue(0)
}

// ExecuteScalarAsync runs ExecuteScalar on another goroutine.
func (c *Command) ExecuteScalarAsync(ctx context.Context) <-chan AsyncResult[interface{}] {
	return goAsync(ctx, c.ExecuteScalar)
}
