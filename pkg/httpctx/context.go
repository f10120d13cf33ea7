// Package httpctx provides the per-request Context handed to every SLayer
// middleware, along with the Request and Response wrappers it exposes.
package httpctx

import (
	"context"
	"html"
	"net/http"

	"github.com/Suhaibinator/SLayer/pkg/codec"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"github.com/Suhaibinator/SLayer/pkg/status"
	"go.uber.org/zap"
)

// Options configures a new Context.
type Options struct {
	// Proxy controls how forwarded headers are trusted.
	Proxy ProxyConfig

	// Logger is the request scoped logger. Defaults to a no-op logger.
	Logger *zap.Logger

	// OnError receives errors reported through Context.OnError.
	OnError func(err error, c *Context)
}

// Context holds everything a middleware needs to handle one request.
// A Context is created for every request and must not be shared between
// requests or retained after the request completes.
type Context struct {
	Request  *Request
	Response *Response

	// Respond controls whether the application writes the buffered response
	// once the pipeline completes. Set it to false when writing to
	// Response.Writer directly.
	Respond bool

	state    map[*keyID]any
	logger   *zap.Logger
	onError  func(err error, c *Context)
	onFinish []func()
	finished bool
}

// New creates a Context for a request. The response status starts at 404.
func New(w http.ResponseWriter, r *http.Request, opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Request:  newRequest(r, opts.Proxy),
		Response: newResponse(w),
		Respond:  true,
		state:    make(map[*keyID]any),
		logger:   logger,
		onError:  opts.OnError,
	}
}

// Logger returns the request scoped logger.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// SetLogger replaces the request scoped logger, for example to add fields.
func (c *Context) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.Request.Context()
}

// SetContext replaces the request's context.Context.
func (c *Context) SetContext(ctx context.Context) {
	c.Request.SetContext(ctx)
}

// OnError reports err to the application's error sink.
// A nil err is ignored.
func (c *Context) OnError(err error) {
	if err == nil || c.onError == nil {
		return
	}
	c.onError(err, c)
}

// OnFinish registers fn to run once the response has been written or the
// error sink has handled the request. Functions run in reverse order of
// registration.
func (c *Context) OnFinish(fn func()) {
	if fn != nil {
		c.onFinish = append(c.onFinish, fn)
	}
}

// Finish runs the functions registered with OnFinish. Only the first call
// has an effect.
func (c *Context) Finish() {
	if c.finished {
		return
	}
	c.finished = true
	for i := len(c.onFinish) - 1; i >= 0; i-- {
		c.onFinish[i]()
	}
}

// Writable reports whether the response can still be written: the request
// context is live and no headers have been sent.
func (c *Context) Writable() bool {
	if c.Request.Context().Err() != nil {
		return false
	}
	return !c.Response.HeaderSent()
}

// Throw panics with an *httperr.Error. The panic is recovered by the
// pipeline and delivered to the error sink like any returned error.
func (c *Context) Throw(code int, message string, opts ...httperr.Option) {
	panic(httperr.New(code, message, opts...))
}

// Assert throws an *httperr.Error when ok is false.
func (c *Context) Assert(ok bool, code int, message string, opts ...httperr.Option) {
	if err := httperr.Assert(ok, code, message, opts...); err != nil {
		panic(err)
	}
}

// Redirect sets Location to target and responds with a short redirect body.
// The special target "back" uses the Referer header, then alt, then "/".
// The status becomes 302 unless a redirect status is already set.
func (c *Context) Redirect(target string, alt ...string) {
	if target == "back" {
		target = c.Request.Get("Referrer")
		if target == "" && len(alt) > 0 {
			target = alt[0]
		}
		if target == "" {
			target = "/"
		}
	}
	c.Response.Set("Location", target)

	if !status.IsRedirect(c.Response.Status()) {
		c.Response.SetStatus(http.StatusFound)
	}

	if c.Request.Accepts("html") != "" {
		escaped := html.EscapeString(target)
		c.Response.SetType("html")
		c.Response.SetBody(`Redirecting to <a href="` + escaped + `">` + escaped + `</a>.`)
		return
	}
	c.Response.SetType("text")
	c.Response.SetBody("Redirecting to " + target + ".")
}

// Decode reads the request body into v using the codec selected by the
// request Content-Type. Decoding failures are returned as 400 errors.
func (c *Context) Decode(v any) error {
	if err := codec.Decode(c.Request.Raw(), v); err != nil {
		return httperr.Wrap(err, http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// Status returns the response status.
func (c *Context) Status() int { return c.Response.Status() }

// SetStatus sets the response status.
func (c *Context) SetStatus(code int) { c.Response.SetStatus(code) }

// Body returns the response body.
func (c *Context) Body() any { return c.Response.Body() }

// SetBody sets the response body.
func (c *Context) SetBody(v any) { c.Response.SetBody(v) }

// SetType sets the response Content-Type.
func (c *Context) SetType(t string) { c.Response.SetType(t) }

// Get returns a request header value.
func (c *Context) Get(field string) string { return c.Request.Get(field) }

// Set sets a response header.
func (c *Context) Set(field, value string) { c.Response.Set(field, value) }

// Append adds values to a response header.
func (c *Context) Append(field string, values ...string) { c.Response.Append(field, values...) }

// Remove deletes a response header.
func (c *Context) Remove(field string) { c.Response.Remove(field) }

// Vary adds fields to the response Vary header.
func (c *Context) Vary(fields ...string) { c.Response.Vary(fields...) }

// Method returns the request method.
func (c *Context) Method() string { return c.Request.Method() }

// Path returns the request path.
func (c *Context) Path() string { return c.Request.Path() }

// URL returns the request URI.
func (c *Context) URL() string { return c.Request.URL() }

// IP returns the client address.
func (c *Context) IP() string { return c.Request.IP() }

// Accepts returns the best of the offered types for the request.
func (c *Context) Accepts(offers ...string) string { return c.Request.Accepts(offers...) }

// Inspect returns a summary of the request and response for debugging.
func (c *Context) Inspect() map[string]any {
	return map[string]any{
		"request": map[string]any{
			"method": c.Request.Method(),
			"url":    c.Request.URL(),
			"header": c.Request.Header().Clone(),
		},
		"response": map[string]any{
			"status":  c.Response.Status(),
			"message": c.Response.Message(),
			"header":  c.Response.Header().Clone(),
		},
		"state": c.StateNames(),
	}
}
