// Package chflow holds small channel helpers that give up when a context
// is done.
package chflow

import "context"

// Receive returns the next value of ch. ok is false when ch is closed or
// ctx ended first.
func Receive[T any](ctx context.Context, ch <-chan T) (value T, ok bool) {
	select {
	case <-ctx.Done():
		return value, false
	case value, ok = <-ch:
		return value, ok
	}
}

// Send delivers v on ch and reports false if ctx ended first.
func Send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- v:
		return true
	}
}

// FirstError reads errs until it is closed and returns the first non-nil
// error. errs must be closed by its producer.
func FirstError(errs <-chan error) error {
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
	}
	return first
}
