// Package common provides shared types and utilities used across the SLayer framework.
package common

// Next is the continuation handed to a middleware.
// Calling it runs every downstream middleware and returns once they have all
// completed, or with the first error any of them produced.
type Next func() error

// Middleware is a function that runs one layer of the request pipeline.
// It may do work before calling next, after calling next, or short-circuit by
// returning without calling next at all. Middleware can be composed together to
// create an onion-style pipeline of request processing.
type Middleware[C any] func(c C, next Next) error
