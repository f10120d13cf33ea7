// Package httperr provides errors that carry an HTTP status code.
package httperr

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/Suhaibinator/SLayer/pkg/status"
)

// Error represents an HTTP error with a status code and message.
// When it reaches the application's error sink, Status selects the response
// status and Headers are applied to the response. Message is only shown to the
// client when Expose is true.
type Error struct {
	Status  int         // HTTP status code (e.g., 400, 404, 500)
	Message string      // Error message, sent to the client when Expose is set
	Expose  bool        // Whether Message is safe to show publicly
	Headers http.Header // Headers to set on the error response
	Err     error       // Underlying cause, if any
}

// Option customizes an Error created by New.
type Option func(*Error)

// WithExpose overrides whether the message is shown to clients.
func WithExpose(expose bool) Option {
	return func(e *Error) {
		e.Expose = expose
	}
}

// WithHeader adds a header to the error response.
func WithHeader(key, value string) Option {
	return func(e *Error) {
		if e.Headers == nil {
			e.Headers = make(http.Header)
		}
		e.Headers.Add(key, value)
	}
}

// WithHeaders sets the headers of the error response.
func WithHeaders(h http.Header) Option {
	return func(e *Error) {
		e.Headers = h.Clone()
	}
}

// WithCause records the underlying error.
func WithCause(err error) Option {
	return func(e *Error) {
		e.Err = err
	}
}

// New creates an Error with the given status and message.
// An empty message defaults to the status text. Errors below 500 are exposed
// by default; server errors are not.
func New(status int, message string, opts ...Option) *Error {
	if status < 400 || http.StatusText(status) == "" {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = http.StatusText(status)
	}
	e := &Error{
		Status:  status,
		Message: message,
		Expose:  status < http.StatusInternalServerError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(status int, format string, args ...any) *Error {
	return New(status, fmt.Sprintf(format, args...))
}

// Wrap creates an Error with the given status that wraps err.
// A nil err returns nil.
func Wrap(err error, status int, message string) error {
	if err == nil {
		return nil
	}
	return New(status, message, WithCause(err))
}

// Assert returns an Error when ok is false, and nil otherwise.
//
//	if err := httperr.Assert(user != nil, 401, "Please login!"); err != nil {
//		return err
//	}
func Assert(ok bool, status int, message string, opts ...Option) error {
	if ok {
		return nil
	}
	return New(status, message, opts...)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the error.
func (e *Error) StatusCode() int {
	return e.Status
}

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf returns the status of the first error in err's chain implementing
// StatusCoder.
func StatusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// ResponseStatus returns the status code err is answered with: a registered
// status from the chain, 404 for fs.ErrNotExist, otherwise 500.
func ResponseStatus(err error) int {
	if code, ok := StatusOf(err); ok && status.Known(code) {
		return code
	}
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that may be shown to a client for err,
// and whether err is marked as exposed.
func PublicMessage(err error) (string, bool) {
	var he *Error
	if errors.As(err, &he) && he.Expose {
		return he.Message, true
	}
	return "", false
}

// HeadersOf returns the headers attached to err, if any.
func HeadersOf(err error) http.Header {
	var he *Error
	if errors.As(err, &he) {
		return he.Headers
	}
	return nil
}
