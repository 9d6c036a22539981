package queryreader

import "context"

// AsyncResult carries the outcome of an operation started by an *Async method.
type AsyncResult[T any] struct {
	Value T
	Err   error
}

// goAsync runs fn on its own goroutine. The channel receives exactly one
// result and is then closed. fn gets ctx unchanged, so the async form of an
// operation returns exactly what the synchronous form would.
func goAsync[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan AsyncResult[T] {
	ch := make(chan AsyncResult[T], 1)
	go func() {
		defer close(ch)
		v, err := fn(ctx)
		ch <- AsyncResult[T]{Value: v, Err: err}
	}()
	return ch
}
