// Package common provides common utilities and interfaces for the SLayer framework.
package common

// MiddlewareChain represents an ordered chain of middleware
type MiddlewareChain[C any] []Middleware[C]

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain[C any](middlewares ...Middleware[C]) MiddlewareChain[C] {
	return middlewares
}

// Append adds middleware to the end of the chain
func (c MiddlewareChain[C]) Append(middlewares ...Middleware[C]) MiddlewareChain[C] {
	result := make(MiddlewareChain[C], 0, len(c)+len(middlewares))
	result = append(result, c...)
	return append(result, middlewares...)
}

// Prepend adds middleware to the beginning of the chain
func (c MiddlewareChain[C]) Prepend(middlewares ...Middleware[C]) MiddlewareChain[C] {
	result := make(MiddlewareChain[C], len(middlewares)+len(c))
	copy(result, middlewares)
	copy(result[len(middlewares):], c)
	return result
}

// Compose composes the chain into a single middleware
func (c MiddlewareChain[C]) Compose() Middleware[C] {
	return Compose(c...)
}

// Then composes the chain with a final handler that runs after the last middleware.
// The final handler receives a continuation that returns nil immediately.
func (c MiddlewareChain[C]) Then(final Middleware[C]) Middleware[C] {
	return Compose(c.Append(final)...)
}
