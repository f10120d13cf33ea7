package common

import (
	"fmt"
	"net/http"
	"runtime/debug"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ErrNextCalledMultipleTimes is returned when a middleware invokes its
// continuation more than once during a single pipeline run.
var ErrNextCalledMultipleTimes = errors.New("next() called multiple times")

// Compose builds a single middleware that runs the given middlewares in order.
//
// Each middleware receives a continuation that dispatches the next one. The
// returned middleware may itself be given a trailing continuation, which is
// invoked after the last middleware calls next. Composing an empty list yields
// a middleware that returns nil immediately (or calls the trailing next).
//
// The list is copied, so later changes to the caller's slice do not affect the
// composed pipeline. Every call of the result keeps its own cursor.
func Compose[C any](middlewares ...Middleware[C]) Middleware[C] {
	stack := make([]Middleware[C], len(middlewares))
	copy(stack, middlewares)

	return func(c C, next Next) error {
		// last dispatched middleware
		index := -1

		var dispatch func(i int) error
		dispatch = func(i int) error {
			if i <= index {
				return errors.WithStack(ErrNextCalledMultipleTimes)
			}
			index = i

			var fn Middleware[C]
			if i < len(stack) {
				fn = stack[i]
			} else if i == len(stack) && next != nil {
				fn = func(_ C, _ Next) error { return next() }
			}
			if fn == nil {
				return nil
			}

			return invoke(fn, c, func() error { return dispatch(i + 1) })
		}

		return dispatch(0)
	}
}

// invoke calls fn and turns a panic raised by it into a returned error.
func invoke[C any](fn Middleware[C], c C, next Next) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err = NewPanicError(rec, debug.Stack())
		}
	}()
	return fn(c, next)
}

// PanicError wraps a value recovered from a panicking middleware.
// If the value was an error it remains reachable through errors.Is and errors.As.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError creates a PanicError for a recovered value and the stack trace
// captured at the point of recovery.
func NewPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: stack}
}

// Error implements the error interface.
// Non-error values are described as "non-error thrown" followed by their JSON
// form, or their %v form when they cannot be encoded.
func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return "non-error thrown: " + describe(e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func describe(v any) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
