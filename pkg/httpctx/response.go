package httpctx

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Suhaibinator/SLayer/pkg/codec"
	"github.com/Suhaibinator/SLayer/pkg/status"
)

var (
	htmlBody   = regexp.MustCompile(`^\s*<`)
	quotedETag = regexp.MustCompile(`^(W/)?"`)
)

// shortTypes maps the short type names accepted by SetType to media types.
var shortTypes = map[string]string{
	"text": "text/plain; charset=utf-8",
	"html": "text/html; charset=utf-8",
	"json": "application/json; charset=utf-8",
	"xml":  "application/xml; charset=utf-8",
	"bin":  "application/octet-stream",
	"form": "application/x-www-form-urlencoded",
}

// Response buffers the status and body of a response until the application
// writes it, and exposes header helpers on the underlying ResponseWriter.
type Response struct {
	w                *responseWriter
	status           int
	body             any
	explicitStatus   bool
	explicitNullBody bool
}

func newResponse(w http.ResponseWriter) *Response {
	return &Response{
		w:      &responseWriter{ResponseWriter: w},
		status: http.StatusNotFound,
	}
}

// Writer returns the ResponseWriter. Writing to it directly flushes the
// headers; set Context.Respond to false when doing so.
func (r *Response) Writer() http.ResponseWriter {
	return r.w
}

// Header returns the response header map.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// Status returns the response status code.
func (r *Response) Status() int {
	return r.status
}

// SetStatus sets the response status code.
// It panics if code is outside [100, 999], like http.ResponseWriter.WriteHeader.
// Setting a bodiless status drops the current body.
func (r *Response) SetStatus(code int) {
	if r.HeaderSent() {
		return
	}
	if !status.Valid(code) {
		panic(fmt.Sprintf("invalid status code: %d", code))
	}
	r.explicitStatus = true
	r.status = code
	if r.body != nil && status.IsEmpty(code) {
		r.SetBody(nil)
	}
}

// ExplicitStatus reports whether the status was set by SetStatus or SetBody.
func (r *Response) ExplicitStatus() bool {
	return r.explicitStatus
}

// Message returns the reason phrase for the current status.
func (r *Response) Message() string {
	return status.Text(r.status)
}

// Body returns the response body, or nil.
func (r *Response) Body() any {
	return r.body
}

// ExplicitNullBody reports whether the body was explicitly set to nil.
func (r *Response) ExplicitNullBody() bool {
	return r.explicitNullBody
}

// SetBody sets the response body and adjusts status and headers.
//
//   - nil: status becomes 204 unless already bodiless, and Content-Type,
//     Content-Length and Transfer-Encoding are removed.
//   - string: text/html when it looks like markup, text/plain otherwise.
//   - []byte: application/octet-stream.
//   - io.Reader: application/octet-stream, streamed when written.
//   - anything else: application/json, serialized when written.
//
// Content-Type is only set when not already present. The status becomes 200
// unless it was set explicitly.
func (r *Response) SetBody(v any) {
	original := r.body
	r.body = v

	if v == nil {
		if !status.IsEmpty(r.status) {
			r.SetStatus(http.StatusNoContent)
		}
		r.explicitNullBody = true
		r.Remove("Content-Type")
		r.Remove("Content-Length")
		r.Remove("Transfer-Encoding")
		return
	}
	r.explicitNullBody = false

	if !r.explicitStatus {
		r.SetStatus(http.StatusOK)
	}

	setType := !r.Has("Content-Type")

	switch b := v.(type) {
	case string:
		if setType {
			if htmlBody.MatchString(b) {
				r.SetType("html")
			} else {
				r.SetType("text")
			}
		}
		r.SetLength(int64(len(b)))
	case []byte:
		if setType {
			r.SetType("bin")
		}
		r.SetLength(int64(len(b)))
	case io.Reader:
		if original != nil && !sameValue(original, v) {
			r.Remove("Content-Length")
		}
		if setType {
			r.SetType("bin")
		}
	default:
		r.Remove("Content-Length")
		r.SetType("json")
	}
}

func sameValue(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Length returns the Content-Length header when present, otherwise the
// length derived from the body. Readers have no known length.
func (r *Response) Length() (int64, bool) {
	if r.Has("Content-Length") {
		n, err := strconv.ParseInt(r.Get("Content-Length"), 10, 64)
		if err != nil {
			return 0, true
		}
		return n, true
	}

	switch b := r.body.(type) {
	case nil:
		return 0, false
	case string:
		return int64(len(b)), true
	case []byte:
		return int64(len(b)), true
	case io.Reader:
		return 0, false
	default:
		data, err := codec.ForBody(b).Marshal(b)
		if err != nil {
			return 0, false
		}
		return int64(len(data)), true
	}
}

// SetLength sets the Content-Length header.
func (r *Response) SetLength(n int64) {
	r.Set("Content-Length", strconv.FormatInt(n, 10))
}

// Type returns the response media type without parameters such as charset.
func (r *Response) Type() string {
	ct := r.Get("Content-Type")
	if ct == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}

// SetType sets the Content-Type header from a short name ("json", "html"),
// a file extension (".png") or a full media type. Unknown types remove the header.
func (r *Response) SetType(t string) {
	if ct := mediaTypeFor(t); ct != "" {
		r.Set("Content-Type", ct)
		return
	}
	r.Remove("Content-Type")
}

// mediaTypeFor resolves a short name, extension or media type to a
// Content-Type value, adding a UTF-8 charset for textual types.
func mediaTypeFor(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if ct, ok := shortTypes[strings.ToLower(t)]; ok {
		return ct
	}
	if strings.Contains(t, "/") {
		if strings.Contains(t, ";") {
			return t
		}
		lower := strings.ToLower(t)
		if strings.HasPrefix(lower, "text/") || lower == "application/json" || lower == "application/javascript" {
			return t + "; charset=utf-8"
		}
		return t
	}
	if !strings.HasPrefix(t, ".") {
		t = "." + t
	}
	return mime.TypeByExtension(t)
}

// Get returns a response header value.
func (r *Response) Get(field string) string {
	return r.w.Header().Get(field)
}

// Has reports whether a response header is set.
func (r *Response) Has(field string) bool {
	_, ok := r.w.Header()[http.CanonicalHeaderKey(field)]
	return ok
}

// Set sets a response header. It does nothing once headers are sent.
func (r *Response) Set(field, value string) {
	if r.HeaderSent() {
		return
	}
	r.w.Header().Set(field, value)
}

// SetHeaders sets every header in h, replacing existing values.
func (r *Response) SetHeaders(h http.Header) {
	if r.HeaderSent() {
		return
	}
	for k, v := range h {
		r.w.Header()[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
}

// Append adds values to a response header.
func (r *Response) Append(field string, values ...string) {
	if r.HeaderSent() {
		return
	}
	for _, v := range values {
		r.w.Header().Add(field, v)
	}
}

// Remove deletes a response header.
func (r *Response) Remove(field string) {
	if r.HeaderSent() {
		return
	}
	r.w.Header().Del(field)
}

// ResetHeaders removes every response header.
func (r *Response) ResetHeaders() {
	if r.HeaderSent() {
		return
	}
	h := r.w.Header()
	for k := range h {
		delete(h, k)
	}
}

// Vary adds fields to the Vary header, skipping ones already listed.
func (r *Response) Vary(fields ...string) {
	if r.HeaderSent() {
		return
	}
	current := r.Get("Vary")
	if current == "*" {
		return
	}
	seen := make(map[string]bool)
	var list []string
	if current != "" {
		for _, f := range strings.Split(current, ",") {
			f = strings.TrimSpace(f)
			seen[strings.ToLower(f)] = true
			list = append(list, f)
		}
	}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "*" {
			r.Set("Vary", "*")
			return
		}
		if f == "" || seen[strings.ToLower(f)] {
			continue
		}
		seen[strings.ToLower(f)] = true
		list = append(list, f)
	}
	if len(list) > 0 {
		r.Set("Vary", strings.Join(list, ", "))
	}
}

// SetLastModified sets the Last-Modified header.
func (r *Response) SetLastModified(t time.Time) {
	if t.IsZero() {
		return
	}
	r.Set("Last-Modified", t.UTC().Format(http.TimeFormat))
}

// LastModified returns the parsed Last-Modified header.
func (r *Response) LastModified() (time.Time, bool) {
	v := r.Get("Last-Modified")
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetETag sets the ETag header, quoting the value when needed.
func (r *Response) SetETag(etag string) {
	if !quotedETag.MatchString(etag) {
		etag = `"` + etag + `"`
	}
	r.Set("ETag", etag)
}

// ETag returns the ETag header.
func (r *Response) ETag() string {
	return r.Get("ETag")
}

// HeaderSent reports whether the status line and headers have been written.
func (r *Response) HeaderSent() bool {
	return r.w.wroteHeader
}

// SentStatus returns the status written to the client, and whether the
// headers have been sent.
func (r *Response) SentStatus() (int, bool) {
	return r.w.statusCode, r.w.wroteHeader
}

// Ended reports whether the response has been completely written.
func (r *Response) Ended() bool {
	return r.w.ended
}

// BytesWritten returns the number of body bytes written so far.
func (r *Response) BytesWritten() int64 {
	return r.w.bytesWritten
}

// FlushHeaders writes the status and headers immediately.
func (r *Response) FlushHeaders() {
	r.w.WriteHeader(r.status)
	r.w.Flush()
}

// Send writes the current status, headers and the given body, and marks the
// response as ended. A nil body writes headers only.
func (r *Response) Send(body []byte) error {
	r.w.WriteHeader(r.status)
	defer func() { r.w.ended = true }()
	if len(body) == 0 {
		return nil
	}
	_, err := r.w.Write(body)
	return err
}

// SendReader writes the current status and headers, then copies src to the
// client. src is closed afterwards when it implements io.Closer.
func (r *Response) SendReader(src io.Reader) error {
	r.w.WriteHeader(r.status)
	defer func() { r.w.ended = true }()
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	_, err := io.Copy(r.w, src)
	return err
}
