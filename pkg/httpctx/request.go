package httpctx

import (
	"context"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// ProxyConfig controls how proxy headers are trusted when reading the
// client address, host and protocol of a request.
type ProxyConfig struct {
	// Proxy enables X-Forwarded-Host, X-Forwarded-Proto and the IP header.
	Proxy bool

	// IPHeader is the header holding the forwarded client address list.
	// Defaults to X-Forwarded-For.
	IPHeader string

	// MaxIPsCount limits IPs to the last n entries of the IP header.
	// Zero means unlimited.
	MaxIPsCount int

	// SubdomainOffset is the number of trailing host labels ignored by
	// Subdomains. Zero treats every label as a subdomain.
	SubdomainOffset int
}

// DefaultSubdomainOffset ignores the domain and its top-level domain.
const DefaultSubdomainOffset = 2

// DefaultProxyConfig returns a ProxyConfig that trusts no proxy headers and
// uses DefaultSubdomainOffset.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		IPHeader:        "X-Forwarded-For",
		SubdomainOffset: DefaultSubdomainOffset,
	}
}

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// Request wraps an *http.Request with proxy-aware accessors.
type Request struct {
	req         *http.Request
	proxy       ProxyConfig
	originalURL string
	ip          string
	query       url.Values
	queryRaw    string
}

func newRequest(r *http.Request, proxy ProxyConfig) *Request {
	if proxy.IPHeader == "" {
		proxy.IPHeader = "X-Forwarded-For"
	}
	return &Request{
		req:         r,
		proxy:       proxy,
		originalURL: r.URL.RequestURI(),
	}
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.req
}

// Context returns the request's context.Context.
func (r *Request) Context() context.Context {
	return r.req.Context()
}

// SetContext replaces the request's context.Context.
func (r *Request) SetContext(ctx context.Context) {
	r.req = r.req.WithContext(ctx)
}

// Header returns the request header.
func (r *Request) Header() http.Header {
	return r.req.Header
}

// Get returns a request header value.
// Referer and Referrer are interchangeable.
func (r *Request) Get(field string) string {
	switch strings.ToLower(field) {
	case "referer", "referrer":
		if v := r.req.Header.Get("Referrer"); v != "" {
			return v
		}
		return r.req.Header.Get("Referer")
	default:
		return r.req.Header.Get(field)
	}
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.req.Method
}

// SetMethod overrides the request method.
func (r *Request) SetMethod(method string) {
	r.req.Method = method
}

// URL returns the request URI (path and query).
func (r *Request) URL() string {
	return r.req.URL.RequestURI()
}

// SetURL rewrites the request URI.
func (r *Request) SetURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return err
	}
	r.req.URL.Path = u.Path
	r.req.URL.RawPath = u.RawPath
	r.req.URL.RawQuery = u.RawQuery
	return nil
}

// OriginalURL returns the request URI as it was received.
func (r *Request) OriginalURL() string {
	return r.originalURL
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.req.URL.Path
}

// SetPath sets the request path, retaining the query string.
func (r *Request) SetPath(path string) {
	if r.req.URL.Path == path {
		return
	}
	r.req.URL.Path = path
	r.req.URL.RawPath = ""
}

// QueryString returns the raw query string without the leading "?".
func (r *Request) QueryString() string {
	return r.req.URL.RawQuery
}

// SetQueryString replaces the raw query string.
func (r *Request) SetQueryString(qs string) {
	r.req.URL.RawQuery = strings.TrimPrefix(qs, "?")
}

// Search returns the query string including the leading "?", or "".
func (r *Request) Search() string {
	if r.req.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.req.URL.RawQuery
}

// Query returns the parsed query string. The result is cached per query string.
func (r *Request) Query() url.Values {
	raw := r.req.URL.RawQuery
	if r.query == nil || r.queryRaw != raw {
		q, _ := url.ParseQuery(raw)
		r.query = q
		r.queryRaw = raw
	}
	return r.query
}

// SetQuery replaces the query string with the encoded values.
func (r *Request) SetQuery(values url.Values) {
	r.req.URL.RawQuery = values.Encode()
}

// Host returns the host, honouring X-Forwarded-Host when proxy is enabled.
func (r *Request) Host() string {
	var host string
	if r.proxy.Proxy {
		host = r.req.Header.Get("X-Forwarded-Host")
	}
	if host == "" {
		host = r.req.Host
	}
	if host == "" {
		host = r.req.Header.Get("Host")
	}
	return firstListValue(host)
}

// Hostname returns Host without the port.
func (r *Request) Hostname() string {
	host := r.Host()
	if host == "" {
		return ""
	}
	if host[0] == '[' {
		if end := strings.IndexByte(host, ']'); end > 0 {
			return host[1:end]
		}
		return ""
	}
	return strings.SplitN(host, ":", 2)[0]
}

// Protocol returns "https" for TLS requests, the first X-Forwarded-Proto value
// when proxy is enabled, and "http" otherwise.
func (r *Request) Protocol() string {
	if r.req.TLS != nil {
		return "https"
	}
	if !r.proxy.Proxy {
		return "http"
	}
	if proto := firstListValue(r.req.Header.Get("X-Forwarded-Proto")); proto != "" {
		return proto
	}
	return "http"
}

// Secure reports whether Protocol is "https".
func (r *Request) Secure() bool {
	return r.Protocol() == "https"
}

// Origin returns protocol and host.
func (r *Request) Origin() string {
	return r.Protocol() + "://" + r.Host()
}

// Href returns the full original URL.
func (r *Request) Href() string {
	if absoluteURL.MatchString(r.originalURL) {
		return r.originalURL
	}
	return r.Origin() + r.originalURL
}

// IPs returns the forwarded address list when proxy is enabled,
// limited to the last MaxIPsCount entries.
func (r *Request) IPs() []string {
	if !r.proxy.Proxy {
		return []string{}
	}
	val := r.req.Header.Get(r.proxy.IPHeader)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		ips = append(ips, strings.TrimSpace(p))
	}
	if r.proxy.MaxIPsCount > 0 && len(ips) > r.proxy.MaxIPsCount {
		ips = ips[len(ips)-r.proxy.MaxIPsCount:]
	}
	return ips
}

// IP returns the client address: the first forwarded address when proxy is
// enabled, otherwise the remote address without its port.
func (r *Request) IP() string {
	if r.ip == "" {
		if ips := r.IPs(); len(ips) > 0 && ips[0] != "" {
			r.ip = ips[0]
		} else {
			r.ip = cleanIP(r.req.RemoteAddr)
		}
	}
	return r.ip
}

// SetIP overrides the client address.
func (r *Request) SetIP(ip string) {
	r.ip = ip
}

// Subdomains returns the host labels before the application domain,
// nearest first. IP hosts have no subdomains.
func (r *Request) Subdomains() []string {
	hostname := r.Hostname()
	if hostname == "" || net.ParseIP(hostname) != nil {
		return []string{}
	}
	labels := strings.Split(hostname, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	offset := max(r.proxy.SubdomainOffset, 0)
	if offset >= len(labels) {
		return []string{}
	}
	return labels[offset:]
}

// Idempotent reports whether the request method is idempotent.
func (r *Request) Idempotent() bool {
	switch r.req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// Length returns the request Content-Length, if known.
func (r *Request) Length() (int64, bool) {
	if r.req.ContentLength < 0 {
		return 0, false
	}
	if r.req.ContentLength == 0 && r.req.Header.Get("Content-Length") == "" {
		return 0, false
	}
	return r.req.ContentLength, true
}

// Type returns the request media type without parameters.
func (r *Request) Type() string {
	mediaType, _, err := mime.ParseMediaType(r.req.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

// Charset returns the charset parameter of the request Content-Type, or "".
func (r *Request) Charset() string {
	_, params, err := mime.ParseMediaType(r.req.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return params["charset"]
}

// Accepts returns the best of the offered types for the Accept header, or ""
// when none is acceptable. Offers may be short names ("html", "json") or full
// media types. Without an Accept header the first offer wins.
func (r *Request) Accepts(offers ...string) string {
	return negotiate(r.req.Header.Get("Accept"), offers, func(rng, offer string) bool {
		full := strings.ToLower(mediaTypeFor(offer))
		if i := strings.IndexByte(full, ';'); i >= 0 {
			full = strings.TrimSpace(full[:i])
		}
		if full == "" {
			return false
		}
		if rng == "*/*" || rng == full {
			return true
		}
		if strings.HasSuffix(rng, "/*") {
			return strings.HasPrefix(full, strings.TrimSuffix(rng, "*"))
		}
		return false
	})
}

// AcceptsEncodings returns the best of the offered encodings for the
// Accept-Encoding header, or "".
func (r *Request) AcceptsEncodings(offers ...string) string {
	return negotiate(r.req.Header.Get("Accept-Encoding"), offers, func(rng, offer string) bool {
		return rng == "*" || rng == strings.ToLower(offer)
	})
}

// AcceptsLanguages returns the best of the offered languages for the
// Accept-Language header, or "" when none matches.
func (r *Request) AcceptsLanguages(offers ...string) string {
	if len(offers) == 0 {
		return ""
	}
	header := r.req.Header.Get("Accept-Language")
	if header == "" {
		return offers[0]
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	supported := make([]language.Tag, 0, len(offers))
	for _, o := range offers {
		supported = append(supported, language.Make(o))
	}
	_, idx, conf := language.NewMatcher(supported).Match(tags...)
	if conf == language.No {
		return ""
	}
	return offers[idx]
}

// negotiate picks the offer with the highest quality in header.
// Ties are broken by offer order.
func negotiate(header string, offers []string, match func(rng, offer string) bool) string {
	if len(offers) == 0 {
		return ""
	}
	if strings.TrimSpace(header) == "" {
		return offers[0]
	}

	type accept struct {
		rng string
		q   float64
	}
	var ranges []accept
	for _, part := range strings.Split(header, ",") {
		rng, q := parseQuality(part)
		if rng != "" {
			ranges = append(ranges, accept{rng: rng, q: q})
		}
	}

	best, bestQ := "", 0.0
	for _, offer := range offers {
		q := -1.0
		for _, s := range ranges {
			if match(s.rng, offer) && s.q > q {
				q = s.q
			}
		}
		if q > bestQ {
			best, bestQ = offer, q
		}
	}
	return best
}

func parseQuality(part string) (string, float64) {
	fields := strings.Split(part, ";")
	rng := strings.ToLower(strings.TrimSpace(fields[0]))
	q := 1.0
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if strings.HasPrefix(f, "q=") {
			if v, err := strconv.ParseFloat(f[2:], 64); err == nil {
				q = v
			}
		}
	}
	return rng, q
}

// firstListValue returns the first entry of a comma-separated header value.
func firstListValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// cleanIP removes the port from an IP address if present
func cleanIP(ip string) string {
	// IPv6 addresses with ports are formatted as [IPv6]:port
	if strings.HasPrefix(ip, "[") {
		if end := strings.LastIndex(ip, "]"); end > 0 {
			return ip[1:end]
		}
	}

	// IPv6 addresses without brackets contain multiple colons and no port
	if strings.Count(ip, ":") > 1 {
		return ip
	}

	// IPv4 addresses with ports are formatted as IPv4:port
	if end := strings.LastIndex(ip, ":"); end > 0 {
		return ip[:end]
	}

	return ip
}
