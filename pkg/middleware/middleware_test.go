package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestContext(method, target string) (*httpctx.Context, *httptest.ResponseRecorder) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	return httpctx.New(rr, req, httpctx.Options{}), rr
}

// run executes the middlewares as a pipeline on c.
func run(c *httpctx.Context, middlewares ...Middleware) error {
	return Chain(middlewares...)(c, nil)
}

// respond is a terminal middleware that sets a body.
func respond(body string) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		c.SetBody(body)
		return nil
	}
}

func statusFrom(t *testing.T, err error) int {
	t.Helper()
	code, ok := httperr.StatusOf(err)
	if !ok {
		t.Fatalf("Expected an error with a status, got %v", err)
	}
	return code
}

type statusCodeError int

func (e statusCodeError) Error() string   { return "status " + strconv.Itoa(int(e)) }
func (e statusCodeError) StatusCode() int { return int(e) }

// TestChain tests that Chain runs middlewares in order
func TestChain(t *testing.T) {
	c, _ := newTestContext("GET", "/")
	var order []string

	mw := func(name string) Middleware {
		return func(c *httpctx.Context, next common.Next) error {
			order = append(order, name+" before")
			err := next()
			order = append(order, name+" after")
			return err
		}
	}

	if err := run(c, mw("a"), mw("b")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := "a before,b before,b after,a after"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("Expected order %q, got %q", want, got)
	}
}

// TestRecovery tests that panics are logged and passed on
func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	c, _ := newTestContext("GET", "/panic")

	err := run(c, Recovery(zap.New(core)), func(c *httpctx.Context, next common.Next) error {
		panic("test panic")
	})

	var pe *common.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *common.PanicError, got %T", err)
	}
	entries := logs.FilterMessage("Panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["path"] != "/panic" {
		t.Errorf("Expected path field %q, got %v", "/panic", entries[0].ContextMap()["path"])
	}
}

// TestRecoveryIgnoresPlainErrors tests that ordinary errors are not logged
func TestRecoveryIgnoresPlainErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	c, _ := newTestContext("GET", "/")
	boom := errors.New("boom")

	err := run(c, Recovery(zap.New(core)), func(c *httpctx.Context, next common.Next) error {
		return boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("Expected error to be passed on, got %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("Expected no log entries, got %d", logs.Len())
	}
}

// TestLogging tests log levels chosen by status
func TestLogging(t *testing.T) {
	tests := []struct {
		name    string
		handler Middleware
		level   zapcore.Level
		message string
		status  int
	}{
		{"success", respond("ok"), zapcore.DebugLevel, "Request", http.StatusOK},
		{"not found", func(c *httpctx.Context, next common.Next) error { return nil }, zapcore.WarnLevel, "Client error", http.StatusNotFound},
		{"http error", func(c *httpctx.Context, next common.Next) error {
			return httperr.New(http.StatusBadRequest, "bad")
		}, zapcore.WarnLevel, "Client error", http.StatusBadRequest},
		{"plain error", func(c *httpctx.Context, next common.Next) error {
			return errors.New("boom")
		}, zapcore.ErrorLevel, "Server error", http.StatusInternalServerError},
		{"missing file", func(c *httpctx.Context, next common.Next) error {
			return fmt.Errorf("open page: %w", fs.ErrNotExist)
		}, zapcore.WarnLevel, "Client error", http.StatusNotFound},
		{"unregistered status", func(c *httpctx.Context, next common.Next) error {
			return statusCodeError(599)
		}, zapcore.ErrorLevel, "Server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			c, _ := newTestContext("GET", "/log")

			_ = run(c, Logging(zap.New(core)), tt.handler)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level || entries[0].Message != tt.message {
				t.Errorf("Expected %s %q, got %s %q", tt.level, tt.message, entries[0].Level, entries[0].Message)
			}
			if got := entries[0].ContextMap()["status"]; got != int64(tt.status) {
				t.Errorf("Expected status %d, got %v", tt.status, got)
			}
		})
	}
}

// TestLoggingIncludesTraceID tests that the trace ID is logged when present
func TestLoggingIncludesTraceID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c, _ := newTestContext("GET", "/")

	_ = run(c, TraceMiddleware(), Logging(zap.New(core)), respond("ok"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["trace_id"] != GetTraceID(c) {
		t.Errorf("Expected trace_id %q, got %v", GetTraceID(c), entries[0].ContextMap()["trace_id"])
	}
}

// TestMaxBodySize tests declared and streamed oversize bodies
func TestMaxBodySize(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 20)))
	c := httpctx.New(rr, req, httpctx.Options{})

	called := false
	err := run(c, MaxBodySize(10), func(c *httpctx.Context, next common.Next) error {
		called = true
		return nil
	})
	if called {
		t.Errorf("Expected downstream middleware to not be called")
	}
	if statusFrom(t, err) != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, statusFrom(t, err))
	}

	// no declared length: the limit applies while reading
	streamReq := httptest.NewRequest("POST", "/", io.NopCloser(strings.NewReader(strings.Repeat("a", 20))))
	streamReq.ContentLength = -1
	stream := httpctx.New(httptest.NewRecorder(), streamReq, httpctx.Options{})
	err = run(stream, MaxBodySize(10), func(c *httpctx.Context, next common.Next) error {
		_, err := io.ReadAll(c.Request.Raw().Body)
		return err
	})
	if statusFrom(t, err) != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, statusFrom(t, err))
	}

	// small bodies pass
	okReq := httptest.NewRequest("POST", "/", strings.NewReader("small"))
	small := httpctx.New(httptest.NewRecorder(), okReq, httpctx.Options{})
	err = run(small, MaxBodySize(10), func(c *httpctx.Context, next common.Next) error {
		_, err := io.ReadAll(c.Request.Raw().Body)
		return err
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

// TestTimeout tests that an expired deadline becomes a 408 error
func TestTimeout(t *testing.T) {
	c, _ := newTestContext("GET", "/")
	parent := c.Context()

	err := run(c, Timeout(10*time.Millisecond), func(c *httpctx.Context, next common.Next) error {
		<-c.Context().Done()
		return c.Context().Err()
	})

	if statusFrom(t, err) != http.StatusRequestTimeout {
		t.Errorf("Expected status %d, got %d", http.StatusRequestTimeout, statusFrom(t, err))
	}
	if c.Context() != parent {
		t.Errorf("Expected the parent context to be restored")
	}
	if !c.Writable() {
		t.Errorf("Expected context to be writable after timeout")
	}
}

// TestTimeoutFastHandler tests that handlers finishing in time are unaffected
func TestTimeoutFastHandler(t *testing.T) {
	c, _ := newTestContext("GET", "/")

	err := run(c, Timeout(time.Second), func(c *httpctx.Context, next common.Next) error {
		if _, ok := c.Context().Deadline(); !ok {
			t.Errorf("Expected a deadline on the request context")
		}
		c.SetBody("fast")
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if c.Body() != "fast" {
		t.Errorf("Expected body %q, got %v", "fast", c.Body())
	}
}

// TestTimeoutKeepsOtherErrors tests that unrelated errors are passed on
func TestTimeoutKeepsOtherErrors(t *testing.T) {
	c, _ := newTestContext("GET", "/")
	ctx, cancel := context.WithCancel(c.Context())
	c.SetContext(ctx)
	defer cancel()

	boom := errors.New("boom")
	err := run(c, Timeout(time.Second), func(c *httpctx.Context, next common.Next) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

// TestCORS tests simple and preflight requests
func TestCORS(t *testing.T) {
	cors := CORS(CORSConfig{
		Origins:       []string{"https://example.com"},
		Methods:       []string{"GET", "POST"},
		Headers:       []string{"Content-Type"},
		ExposeHeaders: []string{"X-Trace-ID"},
		MaxAge:        time.Hour,
	})

	c, _ := newTestContext("GET", "/")
	c.Request.Header().Set("Origin", "https://example.com")
	if err := run(c, cors, respond("ok")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := c.Response.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Expected allow origin %q, got %q", "https://example.com", got)
	}
	if got := c.Response.Get("Access-Control-Expose-Headers"); got != "X-Trace-ID" {
		t.Errorf("Expected expose headers %q, got %q", "X-Trace-ID", got)
	}
	if c.Body() != "ok" {
		t.Errorf("Expected downstream body, got %v", c.Body())
	}

	pre, _ := newTestContext("OPTIONS", "/")
	pre.Request.Header().Set("Origin", "https://example.com")
	called := false
	if err := run(pre, cors, func(c *httpctx.Context, next common.Next) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if called {
		t.Errorf("Expected preflight to not reach downstream middleware")
	}
	if pre.Status() != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, pre.Status())
	}
	if got := pre.Response.Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Expected allow methods %q, got %q", "GET, POST", got)
	}
	if got := pre.Response.Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Expected max age %q, got %q", "3600", got)
	}

	plain, _ := newTestContext("GET", "/")
	_ = run(plain, cors, respond("ok"))
	if plain.Response.Has("Access-Control-Allow-Origin") {
		t.Errorf("Expected no CORS headers without Origin")
	}
	if got := plain.Response.Get("Vary"); got != "Origin" {
		t.Errorf("Expected Vary %q, got %q", "Origin", got)
	}
}
