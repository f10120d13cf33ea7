// Package middleware provides a collection of middleware components for SLayer applications.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"go.uber.org/zap"
)

// Middleware is a middleware operating on an SLayer request context.
type Middleware = common.Middleware[*httpctx.Context]

// Chain composes multiple middlewares into one.
func Chain(middlewares ...Middleware) Middleware {
	return common.Compose(middlewares...)
}

// statusOf returns the status a response will carry once err reaches the
// error sink, or the buffered status when err is nil.
func statusOf(c *httpctx.Context, err error) int {
	if err == nil {
		return c.Status()
	}
	return httperr.ResponseStatus(err)
}

// Recovery logs panics raised downstream. The pipeline has already turned the
// panic into a *common.PanicError, which is passed on to the error sink.
func Recovery(logger *zap.Logger) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		err := next()

		var pe *common.PanicError
		if errors.As(err, &pe) {
			logger.Error("Panic recovered",
				zap.Any("panic", pe.Value),
				zap.String("stack", string(pe.Stack)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
			)
		}
		return err
	}
}

// Logging is a middleware that logs requests
func Logging(logger *zap.Logger) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		start := time.Now()

		err := next()

		duration := time.Since(start)
		status := statusOf(c, err)
		log := logger
		if traceID := GetTraceID(c); traceID != "" {
			log = log.With(zap.String("trace_id", traceID))
		}
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		}

		// Use appropriate log level based on status code and duration
		switch {
		case status >= 500:
			log.Error("Server error", append(fields, zap.String("ip", c.IP()))...)
		case status >= 400:
			log.Warn("Client error", fields...)
		case duration > 1*time.Second:
			log.Warn("Slow request", fields...)
		default:
			// Normal requests at Debug level to avoid log spam
			log.Debug("Request", fields...)
		}
		return err
	}
}

// MaxBodySize is a middleware that limits the size of the request body.
// Requests declaring a larger Content-Length are rejected with 413 before
// reaching downstream middleware.
func MaxBodySize(maxSize int64) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		if n, ok := c.Request.Length(); ok && n > maxSize {
			return httperr.New(http.StatusRequestEntityTooLarge, "")
		}
		r := c.Request.Raw()
		if r.Body != nil {
			r.Body = http.MaxBytesReader(c.Response.Writer(), r.Body, maxSize)
		}

		err := next()

		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return httperr.Wrap(err, http.StatusRequestEntityTooLarge, "")
		}
		return err
	}
}

// Timeout attaches a deadline to the request context for downstream
// middleware. When the deadline passes before they return, the request
// fails with 408 Request Timeout.
func Timeout(timeout time.Duration) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		parent := c.Context()
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		c.SetContext(ctx)
		err := next()
		// the response is written against the parent context
		c.SetContext(parent)

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				return httperr.New(http.StatusRequestTimeout, "", httperr.WithCause(context.DeadlineExceeded))
			}
		}
		return err
	}
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	Origins          []string
	Methods          []string
	Headers          []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS is a middleware that adds CORS headers to the response.
// Preflight requests are answered with 204 without calling next.
func CORS(config CORSConfig) Middleware {
	origins := strings.Join(config.Origins, ", ")
	methods := strings.Join(config.Methods, ", ")
	headers := strings.Join(config.Headers, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")

	return func(c *httpctx.Context, next common.Next) error {
		c.Vary("Origin")
		if c.Get("Origin") == "" {
			return next()
		}

		if origins != "" {
			c.Set("Access-Control-Allow-Origin", origins)
		}
		if config.AllowCredentials {
			c.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Method() != http.MethodOptions {
			if expose != "" {
				c.Set("Access-Control-Expose-Headers", expose)
			}
			return next()
		}

		// Handle preflight requests
		if methods != "" {
			c.Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			c.Set("Access-Control-Allow-Headers", headers)
		} else if requested := c.Get("Access-Control-Request-Headers"); requested != "" {
			c.Set("Access-Control-Allow-Headers", requested)
		}
		if config.MaxAge > 0 {
			c.Set("Access-Control-Max-Age", strconv.Itoa(int(config.MaxAge.Seconds())))
		}
		c.SetStatus(http.StatusNoContent)
		return nil
	}
}
