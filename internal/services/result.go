package services

import "errors"

// Result is the outcome of one unit of work: a stage execution or a single
// item inside a batch. Exactly one of Value or Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Success wraps a value.
func Success[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Failure wraps an error. A nil err is replaced with ErrItemFailed so a
// failure can never be mistaken for success.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrItemFailed
	}
	return Result[T]{Err: err}
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Skipped reports whether the work was never started.
func (r Result[T]) Skipped() bool {
	return r.Err != nil && errors.Is(r.Err, ErrSkipped)
}

// Kind classifies the failure, or returns KindNone on success.
func (r Result[T]) Kind() ErrorKind {
	return KindOf(r.Err)
}

// Get returns the value and error as a conventional pair.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Err
}
