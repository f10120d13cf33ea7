package middleware

import (
	"time"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/metrics"
)

// Metrics records request count, latency and response size with collector.
// The request is observed once its response has been written, using the
// status and body bytes actually sent, when Context.Finish runs.
func Metrics(collector *metrics.Collector) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		if !collector.ShouldObserve(c.Request.Raw()) {
			return next()
		}

		done := collector.TrackInFlight()
		defer done()

		start := time.Now()
		err := next()

		c.OnFinish(func() {
			code, sent := c.Response.SentStatus()
			if !sent {
				code = statusOf(c, err)
			}
			collector.Observe(c.Method(), code, time.Since(start), c.Response.BytesWritten())
		})
		return err
	}
}
