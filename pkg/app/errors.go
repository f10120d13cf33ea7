package app

import (
	"net/http"
	"strconv"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"github.com/Suhaibinator/SLayer/pkg/middleware"
	"github.com/Suhaibinator/SLayer/pkg/status"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// handleError is the error sink. Every error is delivered to the listeners.
// When the response has not started it is replaced by a plain-text error
// response; otherwise nothing more is written.
func (a *Application) handleError(err error, c *httpctx.Context) {
	if err == nil {
		return
	}

	sent := !c.Writable()
	code := httperr.ResponseStatus(err)

	if a.collector != nil {
		a.collector.ObserveError(code)
	}

	a.mu.RLock()
	listeners := make([]*listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.RUnlock()
	for _, l := range listeners {
		l.fn(err, c)
	}

	if sent {
		return
	}

	res := c.Response
	res.ResetHeaders()
	if traceID := middleware.GetTraceID(c); traceID != "" {
		res.Set(middleware.TraceIDHeader, traceID)
	}
	res.SetHeaders(httperr.HeadersOf(err))
	res.Set("Content-Type", "text/plain; charset=utf-8")
	res.SetStatus(code)

	msg, exposed := httperr.PublicMessage(err)
	if !exposed {
		msg = status.Text(code)
	}
	res.Set("Content-Length", strconv.Itoa(len(msg)))
	if werr := res.Send([]byte(msg)); werr != nil {
		c.Logger().Debug("Failed to write error response", zap.Error(werr))
	}
}

// logError is the default error listener. It skips 404s, errors with a public
// message and everything when the application is silent.
func (a *Application) logError(err error, c *httpctx.Context) {
	if a.config.Silent {
		return
	}
	code := httperr.ResponseStatus(err)
	if code == http.StatusNotFound {
		return
	}
	if _, exposed := httperr.PublicMessage(err); exposed {
		return
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", code),
		zap.String("ip", c.IP()),
	}
	var pe *common.PanicError
	if errors.As(err, &pe) {
		fields = append(fields, zap.ByteString("stack", pe.Stack))
	}
	if traceID := middleware.GetTraceID(c); traceID != "" {
		fields = append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
	}

	a.logger.Error("Unhandled error", fields...)
}
