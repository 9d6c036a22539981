package queryreader

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/kent-id/queryreader/types"
)

type readerState int

const (
	readerUninitialized readerState = iota
	readerOpen
	readerClosed
)

// queryResult is the reader variant produced by running a query: a fixed
// schema and the rows fetched in full.
type queryResult struct {
	fields []*types.TableFieldSchema
	rows   []*types.TableRow
	pos    int
}

// tableListing is the reader variant produced by BehaviorSchemaOnly: the
// dataset's tables, walked with NextResult.
type tableListing struct {
	conn   *Connection
	tables []types.TableReference
	pos    int
}

// Reader iterates the result of one executed command. It is not safe for
// concurrent use. Close must be called when done; a reader that becomes
// unreachable while open is closed by a finalizer, but callers should not
// rely on it.
type Reader struct {
	state  readerState
	result interface{} // *queryResult or *tableListing
}

func newReader() *Reader {
	r := &Reader{state: readerUninitialized}
	runtime.SetFinalizer(r, (*Reader).finalize)
	return r
}

func (r *Reader) initQueryResult(resp *types.QueryResponse) error {
	if r.state != readerUninitialized {
		return usageError("initialize reader", ErrReaderClosed, "reader already initialized")
	}
	qr := &queryResult{rows: resp.Rows, pos: -1}
	if resp.Schema != nil {
		qr.fields = resp.Schema.Fields
	}
	if qr.rows == nil {
		qr.rows = []*types.TableRow{}
	}
	r.result = qr
	r.state = readerOpen
	return nil
}

// initTableListing positions the reader on the first table, so GetSchemaTable
// describes it without a preceding NextResult.
func (r *Reader) initTableListing(conn *Connection, tables []types.TableReference) error {
	if r.state != readerUninitialized {
		return usageError("initialize reader", ErrReaderClosed, "reader already initialized")
	}
	r.result = &tableListing{conn: conn, tables: tables, pos: 0}
	r.state = readerOpen
	return nil
}

func (r *Reader) checkOpen(op string) error {
	if r.state != readerOpen {
		return usageError(op, ErrReaderClosed, "")
	}
	return nil
}

func (r *Reader) fields() []*types.TableFieldSchema {
	if qr, ok := r.result.(*queryResult); ok {
		return qr.fields
	}
	return nil
}

func (r *Reader) checkOrdinal(op string, ordinal int) error {
	if n := len(r.fields()); ordinal < 0 || ordinal >= n {
		return usageError(op, ErrOrdinalOutOfRange, "ordinal %d, field count %d", ordinal, n)
	}
	return nil
}

// nextRead returns the position Read would move to and whether a row is there.
func (r *Reader) nextRead() (int, bool) {
	qr, ok := r.result.(*queryResult)
	if !ok {
		return 0, false
	}
	next := qr.pos + 1
	if next >= len(qr.rows) {
		return len(qr.rows), false
	}
	return next, true
}

func (r *Reader) commitRead(pos int) {
	if qr, ok := r.result.(*queryResult); ok {
		qr.pos = pos
	}
}

// Read advances to the next row and reports whether there is one. Once the
// rows are exhausted it keeps returning false. In schema-only mode there are
// no rows and Read always returns false.
func (r *Reader) Read() (bool, error) {
	if err := r.checkOpen("read"); err != nil {
		return false, err
	}
	pos, ok := r.nextRead()
	r.commitRead(pos)
	return ok, nil
}

// ReadContext is Read honoring ctx. If ctx is done the reader does not move.
func (r *Reader) ReadContext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := r.checkOpen("read"); err != nil {
		return false, err
	}
	pos, ok := r.nextRead()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.commitRead(pos)
	return ok, nil
}

// ReadAsync runs ReadContext on another goroutine. The caller must receive
// the result before using the reader again.
func (r *Reader) ReadAsync(ctx context.Context) <-chan AsyncResult[bool] {
	return goAsync(ctx, r.ReadContext)
}

func (r *Reader) nextTable() (int, bool) {
	tl, ok := r.result.(*tableListing)
	if !ok {
		return 0, false
	}
	next := tl.pos + 1
	if next >= len(tl.tables) {
		return len(tl.tables), false
	}
	return next, true
}

func (r *Reader) commitTable(pos int) {
	if tl, ok := r.result.(*tableListing); ok {
		tl.pos = pos
	}
}

// NextResult moves to the next table in schema-only mode. A query result is a
// single result set, so NextResult returns false for it.
func (r *Reader) NextResult() (bool, error) {
	if err := r.checkOpen("next result"); err != nil {
		return false, err
	}
	pos, ok := r.nextTable()
	r.commitTable(pos)
	return ok, nil
}

// NextResultContext is NextResult honoring ctx. If ctx is done the reader does not move.
func (r *Reader) NextResultContext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := r.checkOpen("next result"); err != nil {
		return false, err
	}
	pos, ok := r.nextTable()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.commitTable(pos)
	return ok, nil
}

// NextResultAsync runs NextResultContext on another goroutine.
func (r *Reader) NextResultAsync(ctx context.Context) <-chan AsyncResult[bool] {
	return goAsync(ctx, r.NextResultContext)
}

// GetValue returns the raw wire value of a field of the current row, or nil for a null.
func (r *Reader) GetValue(ordinal int) (interface{}, error) {
	if err := r.checkOpen("get value"); err != nil {
		return nil, err
	}
	if err := r.checkOrdinal("get value", ordinal); err != nil {
		return nil, err
	}
	qr := r.result.(*queryResult)
	if qr.pos < 0 || qr.pos >= len(qr.rows) {
		return nil, usageError("get value", ErrNoCurrentRow, "")
	}
	cell := qr.rows[qr.pos].F[ordinal]
	if cell == nil {
		return nil, nil
	}
	return cell.V, nil
}

// Value returns the raw wire value of the named field of the current row.
func (r *Reader) Value(name string) (interface{}, error) {
	ordinal, err := r.GetOrdinal(name)
	if err != nil {
		return nil, err
	}
	return r.GetValue(ordinal)
}

// GetFieldValue returns a field of the current row coerced to its column's local type.
// Nulls are returned as nil.
func (r *Reader) GetFieldValue(ordinal int) (interface{}, error) {
	raw, err := r.GetValue(ordinal)
	if err != nil || raw == nil {
		return nil, err
	}
	field := r.fields()[ordinal]
	lt, err := mustResolveType(field.Type)
	if err != nil {
		return nil, err
	}
	v, err := castRawValue(raw, lt)
	if err != nil {
		return nil, &ConversionError{Ordinal: ordinal, TypeTag: field.Type, Err: err}
	}
	return v, nil
}

// GetFieldValueContext is GetFieldValue honoring ctx.
func (r *Reader) GetFieldValueContext(ctx context.Context, ordinal int) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.GetFieldValue(ordinal)
}

// GetFieldValueAsync runs GetFieldValueContext on another goroutine.
func (r *Reader) GetFieldValueAsync(ctx context.Context, ordinal int) <-chan AsyncResult[interface{}] {
	return goAsync(ctx, func(ctx context.Context) (interface{}, error) {
		return r.GetFieldValueContext(ctx, ordinal)
	})
}

// GetValues fills dest with the coerced fields of the current row and returns
// how many were written.
func (r *Reader) GetValues(dest []interface{}) (int, error) {
	if err := r.checkOpen("get values"); err != nil {
		return 0, err
	}
	n := len(r.fields())
	if len(dest) < n {
		n = len(dest)
	}
	for i := 0; i < n; i++ {
		v, err := r.GetFieldValue(i)
		if err != nil {
			return i, err
		}
		dest[i] = v
	}
	return n, nil
}

// IsNull reports whether a field of the current row is null.
func (r *Reader) IsNull(ordinal int) (bool, error) {
	v, err := r.GetValue(ordinal)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// IsNullContext is IsNull honoring ctx.
func (r *Reader) IsNullContext(ctx context.Context, ordinal int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.IsNull(ordinal)
}

// IsNullAsync runs IsNullContext on another goroutine.
func (r *Reader) IsNullAsync(ctx context.Context, ordinal int) <-chan AsyncResult[bool] {
	return goAsync(ctx, func(ctx context.Context) (bool, error) {
		return r.IsNullContext(ctx, ordinal)
	})
}

// GetOrdinal returns the position of the field with exactly this name, or -1.
func (r *Reader) GetOrdinal(name string) (int, error) {
	if err := r.checkOpen("get ordinal"); err != nil {
		return -1, err
	}
	for i, f := range r.fields() {
		if f.Name == name {
			return i, nil
		}
	}
	return -1, nil
}

// GetName returns the name of a field.
func (r *Reader) GetName(ordinal int) (string, error) {
	if err := r.checkOpen("get name"); err != nil {
		return "", err
	}
	if err := r.checkOrdinal("get name", ordinal); err != nil {
		return "", err
	}
	return r.fields()[ordinal].Name, nil
}

// Columns returns the field names in order.
func (r *Reader) Columns() ([]string, error) {
	if err := r.checkOpen("columns"); err != nil {
		return nil, err
	}
	fields := r.fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

// GetFieldType returns the local type a field is coerced into.
// A remote type with no local mapping fails with TypeResolutionError.
func (r *Reader) GetFieldType(ordinal int) (LocalType, error) {
	if err := r.checkOpen("get field type"); err != nil {
		return TypeInvalid, err
	}
	if err := r.checkOrdinal("get field type", ordinal); err != nil {
		return TypeInvalid, err
	}
	return mustResolveType(r.fields()[ordinal].Type)
}

// GetDataTypeName returns the Go type name of a field's local type.
func (r *Reader) GetDataTypeName(ordinal int) (string, error) {
	lt, err := r.GetFieldType(ordinal)
	if err != nil {
		return "", err
	}
	return lt.String(), nil
}

// GetSchemaTable describes the current table in schema-only mode, fetching its
// metadata from the remote service. It returns nil when there is no current table,
// which is always the case for a query result.
func (r *Reader) GetSchemaTable(ctx context.Context) (*SchemaTable, error) {
	if err := r.checkOpen("get schema table"); err != nil {
		return nil, err
	}
	tl, ok := r.result.(*tableListing)
	if !ok || tl.pos < 0 || tl.pos >= len(tl.tables) {
		return nil, nil
	}
	ref := tl.tables[tl.pos]
	projectID, datasetID := tl.conn.projectID, tl.conn.datasetID
	if ref.ProjectID != "" {
		projectID = ref.ProjectID
	}
	if ref.DatasetID != "" {
		datasetID = ref.DatasetID
	}
	table, err := tl.conn.executor.GetTable(ctx, projectID, datasetID, ref.TableID)
	if err != nil {
		return nil, err
	}
	return newSchemaTable(ref.TableID, table.Schema)
}

// HasRows reports whether the result has at least one row, wherever the reader is positioned.
func (r *Reader) HasRows() (bool, error) {
	if err := r.checkOpen("has rows"); err != nil {
		return false, err
	}
	qr, ok := r.result.(*queryResult)
	return ok && len(qr.rows) > 0, nil
}

// FieldCount returns the number of fields per row. It is zero in schema-only mode.
func (r *Reader) FieldCount() (int, error) {
	if err := r.checkOpen("field count"); err != nil {
		return 0, err
	}
	return len(r.fields()), nil
}

// Depth is always 0: rows do not nest.
func (r *Reader) Depth() int { return 0 }

// RecordsAffected is always 0: commands only read.
func (r *Reader) RecordsAffected() int64 { return 0 }

// IsClosed reports whether Close has been called.
func (r *Reader) IsClosed() bool {
	return r.state == readerClosed
}

// Close releases the fetched rows and schema. Calling it more than once is a no-op.
func (r *Reader) Close() error {
	if r.state == readerClosed {
		return nil
	}
	r.release()
	runtime.SetFinalizer(r, nil)
	return nil
}

func (r *Reader) release() {
	r.result = nil
	r.state = readerClosed
}

func (r *Reader) finalize() {
	if r.state == readerOpen {
		LogWarnf("reader was not closed before being garbage collected")
	}
	r.release()
}

func (r *Reader) getTyped(op string, ordinal int, target reflect.Type) (interface{}, error) {
	v, err := r.GetFieldValue(ordinal)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, usageError(op, ErrNullValue, "ordinal %d", ordinal)
	}
	out, ok := convertTo(v, target)
	if !ok {
		return nil, r.mismatch(ordinal, v, target)
	}
	return out, nil
}

func (r *Reader) mismatch(ordinal int, v interface{}, target reflect.Type) error {
	return &ConversionError{
		Ordinal: ordinal,
		TypeTag: r.fields()[ordinal].Type,
		Err:     fmt.Errorf("cannot convert %T to %s", v, target),
	}
}

// GetFieldTyped returns a field of the current row as T. Numeric values are
// converted between widths when the value fits. A null field yields the zero
// value of T when T can hold nil, and ErrNullValue otherwise.
func GetFieldTyped[T any](r *Reader, ordinal int) (T, error) {
	var zero T
	target := reflect.TypeOf((*T)(nil)).Elem()
	v, err := r.GetFieldValue(ordinal)
	if err != nil {
		return zero, err
	}
	if v == nil {
		switch target.Kind() {
		case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map:
			return zero, nil
		}
		return zero, usageError("get field typed", ErrNullValue, "ordinal %d", ordinal)
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	out, ok := convertTo(v, target)
	if !ok {
		return zero, r.mismatch(ordinal, v, target)
	}
	return out.(T), nil
}

// convertTo converts between numeric kinds without loss, or returns v when it already has type target.
func convertTo(v interface{}, target reflect.Type) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Type() == target {
		return v, true
	}
	switch {
	case isInt(rv.Kind()) && isInt(target.Kind()):
		out := reflect.New(target).Elem()
		if out.OverflowInt(rv.Int()) {
			return nil, false
		}
		out.SetInt(rv.Int())
		return out.Interface(), true
	case isInt(rv.Kind()) && isFloat(target.Kind()):
		return rv.Convert(target).Interface(), true
	case isFloat(rv.Kind()) && isFloat(target.Kind()):
		out := reflect.New(target).Elem()
		if out.OverflowFloat(rv.Float()) {
			return nil, false
		}
		out.SetFloat(rv.Float())
		return out.Interface(), true
	}
	return nil, false
}

func isInt(k reflect.Kind) bool {
	return k == reflect.Int || k == reflect.Int8 || k == reflect.Int16 || k == reflect.Int32 || k == reflect.Int64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func (r *Reader) GetString(ordinal int) (string, error) {
	v, err := r.getTyped("get string", ordinal, reflect.TypeOf(""))
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Reader) GetInt16(ordinal int) (int16, error) {
	v, err := r.getTyped("get int16", ordinal, reflect.TypeOf(int16(0)))
	if err != nil {
		return 0, err
	}
	return v.(int16), nil
}

func (r *Reader) GetInt32(ordinal int) (int32, error) {
	v, err := r.getTyped("get int32", ordinal, reflect.TypeOf(int32(0)))
	if err != nil {
		return 0, err
	}
	return v.(int32), nil
}

func (r *Reader) GetInt64(ordinal int) (int64, error) {
	v, err := r.getTyped("get int64", ordinal, reflect.TypeOf(int64(0)))
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *Reader) GetFloat(ordinal int) (float32, error) {
	v, err := r.getTyped("get float", ordinal, reflect.TypeOf(float32(0)))
	if err != nil {
		return 0, err
	}
	return v.(float32), nil
}

func (r *Reader) GetBoolean(ordinal int) (bool, error) {
	v, err := r.getTyped("get boolean", ordinal, reflect.TypeOf(false))
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Reader) GetDateTime(ordinal int) (time.Time, error) {
	v, err := r.getTyped("get date time", ordinal, reflect.TypeOf(time.Time{}))
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

func (r *Reader) notSupported(op string) error {
	if err := r.checkOpen(op); err != nil {
		return err
	}
	return usageError(op, ErrNotSupported, "")
}

// GetByte is not supported.
func (r *Reader) GetByte(ordinal int) (byte, error) {
	return 0, r.notSupported("get byte")
}

// GetBytes is not supported: there is no chunked access to binary values.
func (r *Reader) GetBytes(ordinal int, dataOffset int64, buffer []byte, bufferOffset, length int) (int64, error) {
	return 0, r.notSupported("get bytes")
}

// GetChar is not supported.
func (r *Reader) GetChar(ordinal int) (rune, error) {
	return 0, r.notSupported("get char")
}

// GetChars is not supported: there is no chunked access to text values.
func (r *Reader) GetChars(ordinal int, dataOffset int64, buffer []rune, bufferOffset, length int) (int64, error) {
	return 0, r.notSupported("get chars")
}

// GetGuid is not supported.
func (r *Reader) GetGuid(ordinal int) (uuid.UUID, error) {
	return uuid.Nil, r.notSupported("get guid")
}

// GetDecimal is not supported.
func (r *Reader) GetDecimal(ordinal int) (*big.Rat, error) {
	return nil, r.notSupported("get decimal")
}

// GetDouble is not supported; FLOAT columns are read with GetFloat.
func (r *Reader) GetDouble(ordinal int) (float64, error) {
	return 0, r.notSupported("get double")
}
