package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// closeTracker records whether the response stream was closed.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

// TestRespondString tests a text body
func TestRespondString(t *testing.T) {
	rr := serve(newTestApp(setBody("hello")), "GET", "/")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != "hello" {
		t.Errorf("Expected body %q, got %q", "hello", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Expected text/plain, got %q", ct)
	}
	if cl := rr.Header().Get("Content-Length"); cl != "5" {
		t.Errorf("Expected Content-Length 5, got %q", cl)
	}
}

// TestRespondHTML tests that markup is sent as html
func TestRespondHTML(t *testing.T) {
	rr := serve(newTestApp(setBody("<h1>hi</h1>")), "GET", "/")
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Expected text/html, got %q", ct)
	}
}

// TestRespondBytes tests a binary body
func TestRespondBytes(t *testing.T) {
	rr := serve(newTestApp(setBody([]byte{1, 2, 3})), "GET", "/")
	if rr.Body.Len() != 3 {
		t.Errorf("Expected 3 bytes, got %d", rr.Body.Len())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected application/octet-stream, got %q", ct)
	}
}

// TestRespondReader tests that readers are streamed and closed
func TestRespondReader(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader("streamed")}
	rr := serve(newTestApp(setBody(src)), "GET", "/")

	if rr.Body.String() != "streamed" {
		t.Errorf("Expected body %q, got %q", "streamed", rr.Body.String())
	}
	if !src.closed {
		t.Errorf("Expected reader to be closed")
	}
	if cl := rr.Header().Get("Content-Length"); cl != "" {
		t.Errorf("Expected no Content-Length for a stream, got %q", cl)
	}
}

// TestRespondJSON tests that structured bodies are serialized
func TestRespondJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	rr := serve(newTestApp(setBody(payload{Name: "slayer", Count: 3})), "GET", "/")

	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	var got payload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rr.Body.String(), err)
	}
	if got.Name != "slayer" || got.Count != 3 {
		t.Errorf("Expected {slayer 3}, got %+v", got)
	}
	if cl := rr.Header().Get("Content-Length"); cl != strconv.Itoa(rr.Body.Len()) {
		t.Errorf("Expected Content-Length %d, got %q", rr.Body.Len(), cl)
	}
}

// TestRespondProto tests that protobuf messages use the protobuf JSON mapping
func TestRespondProto(t *testing.T) {
	rr := serve(newTestApp(setBody(wrapperspb.String("hi"))), "GET", "/")
	if rr.Body.String() != `"hi"` {
		t.Errorf("Expected body %q, got %q", `"hi"`, rr.Body.String())
	}
}

// TestRespondUnserializable tests that a serialization failure reaches the error sink
func TestRespondUnserializable(t *testing.T) {
	a := newTestApp(setBody(map[string]any{"ch": make(chan int)}))
	var got error
	a.OnError(func(err error, c *httpctx.Context) { got = err })

	rr := serve(a, "GET", "/")
	if got == nil {
		t.Errorf("Expected the serialization error to reach listeners")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

// TestRespondNullBodyAfterHeaders tests that clearing the body yields 204
// and strips the entity headers
func TestRespondNullBodyAfterHeaders(t *testing.T) {
	a := newTestApp(func(c *httpctx.Context, next common.Next) error {
		c.SetBody("something")
		c.Set("Transfer-Encoding", "chunked")
		c.SetBody(nil)
		return nil
	})

	rr := serve(a, "GET", "/")
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	for _, h := range []string{"Content-Type", "Content-Length", "Transfer-Encoding"} {
		if v := rr.Header().Get(h); v != "" {
			t.Errorf("Expected %s to be removed, got %q", h, v)
		}
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
}

// TestRespondBodilessStatus tests that 304 drops the body
func TestRespondBodilessStatus(t *testing.T) {
	a := newTestApp(func(c *httpctx.Context, next common.Next) error {
		c.SetBody("cached")
		c.SetStatus(http.StatusNotModified)
		return nil
	})

	rr := serve(a, "GET", "/")
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected status %d, got %d", http.StatusNotModified, rr.Code)
	}
	if rr.Body.Len() != 0 || rr.Header().Get("Content-Type") != "" {
		t.Errorf("Expected no body or Content-Type, got %q %q", rr.Body.String(), rr.Header().Get("Content-Type"))
	}
}

// TestRespondExplicitNullBody tests a nil body with a non-empty status
func TestRespondExplicitNullBody(t *testing.T) {
	a := newTestApp(func(c *httpctx.Context, next common.Next) error {
		c.SetBody(nil)
		c.SetStatus(http.StatusOK)
		return nil
	})

	rr := serve(a, "GET", "/")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "" {
		t.Errorf("Expected no Content-Type, got %q", ct)
	}
}

// TestRespondHead tests that HEAD sends Content-Length without a body
func TestRespondHead(t *testing.T) {
	rr := serve(newTestApp(setBody("hello")), "HEAD", "/")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if cl := rr.Header().Get("Content-Length"); cl != "5" {
		t.Errorf("Expected Content-Length 5, got %q", cl)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
}

// TestRespondHeadStructured tests that HEAD computes the length of a structured body
func TestRespondHeadStructured(t *testing.T) {
	rr := serve(newTestApp(setBody(map[string]int{"a": 1})), "HEAD", "/")
	if cl := rr.Header().Get("Content-Length"); cl != "7" {
		t.Errorf("Expected Content-Length 7, got %q", cl)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}
}

// TestRespondStatusOnly tests the reason phrase body for a status without a body
func TestRespondStatusOnly(t *testing.T) {
	a := newTestApp(func(c *httpctx.Context, next common.Next) error {
		c.SetStatus(http.StatusAccepted)
		return nil
	})

	rr := serve(a, "GET", "/")
	if rr.Code != http.StatusAccepted || rr.Body.String() != "Accepted" {
		t.Errorf("Expected 202 Accepted, got %d %q", rr.Code, rr.Body.String())
	}
}

// TestRespondHTTP2StatusOnly tests that HTTP/2 uses the numeric code as body
func TestRespondHTTP2StatusOnly(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.ProtoMajor = 2
	rr := httptest.NewRecorder()
	newTestApp().ServeHTTP(rr, req)

	if rr.Body.String() != "404" {
		t.Errorf("Expected body %q, got %q", "404", rr.Body.String())
	}
}

// TestRespondAfterManualWrite tests that nothing is written once headers are sent
func TestRespondAfterManualWrite(t *testing.T) {
	a := newTestApp(func(c *httpctx.Context, next common.Next) error {
		c.SetStatus(http.StatusCreated)
		c.Response.FlushHeaders()
		c.SetBody("late")
		return nil
	})

	rr := serve(a, "GET", "/")
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected no body after headers were flushed, got %q", rr.Body.String())
	}
}
