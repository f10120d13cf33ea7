package middleware

import (
	"context"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TraceIDHeader is the header carrying the trace ID on requests and responses.
const TraceIDHeader = "X-Trace-ID"

// traceIDKey is the key used to store the trace ID in the request context
type traceIDKey struct{}

// TraceIDKey is the state key holding the trace ID of a request.
var TraceIDKey = httpctx.NewKey[string]("trace_id")

// TraceMiddleware creates a middleware that assigns a unique trace ID to each
// request. An incoming X-Trace-ID header is reused when it is a valid UUID.
// The ID is stored in the context state, in the request's context.Context,
// on the response header, and on the request logger.
func TraceMiddleware() Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		traceID := c.Get(TraceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}

		httpctx.SetState(c, TraceIDKey, traceID)
		c.SetContext(context.WithValue(c.Context(), traceIDKey{}, traceID))
		c.Set(TraceIDHeader, traceID)
		c.SetLogger(c.Logger().With(zap.String("trace_id", traceID)))

		return next()
	}
}

// GetTraceID returns the trace ID of a request, or "" when none was assigned.
func GetTraceID(c *httpctx.Context) string {
	return httpctx.MustState(c, TraceIDKey)
}

// GetTraceIDFromContext extracts the trace ID from a context.
// Returns an empty string if no trace ID is found.
func GetTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}
