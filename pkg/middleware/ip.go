package middleware

import (
	"net"
	"strings"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the connection's remote address
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses a custom header specified in the configuration
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	// Source specifies where to extract the client IP from
	Source IPSourceType

	// CustomHeader is the name of the custom header to use when Source is IPSourceCustomHeader
	CustomHeader string

	// TrustProxy determines whether to trust proxy headers.
	// If false, the remote address is always used.
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ClientIPMiddleware overrides the request's client IP with the address found
// in the configured source. Values that are not valid IP addresses are
// ignored and the request keeps its default address.
func ClientIPMiddleware(config *IPConfig) Middleware {
	if config == nil {
		config = DefaultIPConfig()
	}

	return func(c *httpctx.Context, next common.Next) error {
		if ip := extractClientIP(c, config); ip != "" {
			c.Request.SetIP(ip)
		}
		return next()
	}
}

// extractClientIP returns the client IP from the configured header, or "".
func extractClientIP(c *httpctx.Context, config *IPConfig) string {
	if !config.TrustProxy {
		return ""
	}

	var ip string
	switch config.Source {
	case IPSourceRemoteAddr:
		return ""
	case IPSourceXRealIP:
		ip = c.Get("X-Real-IP")
	case IPSourceCustomHeader:
		ip = c.Get(config.CustomHeader)
	default:
		// The leftmost IP is the original client
		ip = c.Get("X-Forwarded-For")
		if i := strings.IndexByte(ip, ','); i >= 0 {
			ip = ip[:i]
		}
	}

	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
