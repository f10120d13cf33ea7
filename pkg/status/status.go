// Package status provides the HTTP status registry used by SLayer.
package status

import (
	"net/http"
)

// empty lists the status codes whose responses must not carry a body.
var empty = map[int]bool{
	http.StatusNoContent:    true,
	http.StatusResetContent: true,
	http.StatusNotModified:  true,
}

// redirect lists the status codes treated as redirects.
var redirect = map[int]bool{
	http.StatusMultipleChoices:   true,
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusUseProxy:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// IsEmpty reports whether code forbids a response body.
func IsEmpty(code int) bool {
	return empty[code]
}

// IsRedirect reports whether code is a redirect status.
func IsRedirect(code int) bool {
	return redirect[code]
}

// Text returns the canonical reason phrase for code, or "" if the code is unknown.
func Text(code int) string {
	return http.StatusText(code)
}

// Known reports whether code is a registered HTTP status code.
func Known(code int) bool {
	return http.StatusText(code) != ""
}

// Valid reports whether code is inside the range a response may use.
func Valid(code int) bool {
	return code >= 100 && code <= 999
}
