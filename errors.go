package queryreader

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrReaderClosed is returned by every Reader operation after Close.
	ErrReaderClosed = errors.New("reader is closed")

	// ErrOrdinalOutOfRange is returned when an ordinal is outside [0, FieldCount).
	ErrOrdinalOutOfRange = errors.New("ordinal out of range")

	// ErrNotSupported is returned by accessors the remote service has no representation for.
	ErrNotSupported = errors.New("operation not supported")

	// ErrUnsupportedCommandType is returned for command types other than Text and TableDirect.
	ErrUnsupportedCommandType = errors.New("unsupported command type")

	// ErrConnectionNotOpen is returned when a command is created or run on a connection that is not open.
	ErrConnectionNotOpen = errors.New("connection is not open")

	// ErrInvalidParameter is returned when a parameter fails validation before execution.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoCurrentRow is returned by field accessors before the first Read or after the last row.
	ErrNoCurrentRow = errors.New("no current row")

	// ErrNullValue is returned when a null field is read into a type that cannot hold null.
	ErrNullValue = errors.New("field value is null")

	// ErrTimeoutReached matches a RemoteServiceError raised because the remote job did not complete in time.
	ErrTimeoutReached = errors.New("Timeout is reached")
)

// UsageError reports an operation invoked in a state or with arguments that make it invalid.
// The reader or command is left unchanged.
type UsageError struct {
	Op     string
	Reason error
	Detail string
}

func (e *UsageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("queryreader: %s: %s: %s", e.Op, e.Reason, e.Detail)
	}
	return fmt.Sprintf("queryreader: %s: %s", e.Op, e.Reason)
}

func (e *UsageError) Unwrap() error {
	return e.Reason
}

func usageError(op string, reason error, detailFormat string, v ...interface{}) *UsageError {
	e := &UsageError{Op: op, Reason: reason}
	if detailFormat != "" {
		e.Detail = fmt.Sprintf(detailFormat, v...)
	}
	return e
}

// RemoteServiceError is the single error kind surfaced for failures of the remote execution service.
// Code is the service's own status or error code when one was reported.
type RemoteServiceError struct {
	Code    string
	Message string

	timeout bool
	ctxErr  error
}

// NewRemoteServiceError builds a RemoteServiceError carrying the remote diagnostic message.
func NewRemoteServiceError(code, message string) *RemoteServiceError {
	return &RemoteServiceError{Code: code, Message: message}
}

func newTimeoutError() *RemoteServiceError {
	return &RemoteServiceError{Message: ErrTimeoutReached.Error(), timeout: true}
}

func (e *RemoteServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("queryreader: remote service error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("queryreader: remote service error: %s", e.Message)
}

func (e *RemoteServiceError) Is(target error) bool {
	return target == ErrTimeoutReached && e.timeout
}

// Unwrap exposes context cancellation only, never the transport error.
func (e *RemoteServiceError) Unwrap() error {
	return e.ctxErr
}

// TypeResolutionError reports a remote type tag with no local mapping.
type TypeResolutionError struct {
	TypeTag string
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("queryreader: unknown remote type %q", e.TypeTag)
}

// ConversionError reports a raw cell that could not be coerced into its column's local type.
type ConversionError struct {
	Ordinal int
	TypeTag string
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("queryreader: convert field %d of type %s: %v", e.Ordinal, e.TypeTag, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// normalizeRemoteError folds any failure of a Service call into a RemoteServiceError.
func normalizeRemoteError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var remote *RemoteServiceError
	if errors.As(err, &remote) {
		if remote.ctxErr == nil && ctx.Err() != nil {
			copied := *remote
			copied.ctxErr = ctx.Err()
			return &copied
		}
		return remote
	}
	var typeErr *TypeResolutionError
	if errors.As(err, &typeErr) {
		return typeErr
	}
	return &RemoteServiceError{Message: err.Error(), ctxErr: ctx.Err()}
}
