package proxy

import (
	"net/http"
	"strings"
)

// skipHeaders are never forwarded upstream, in addition to every x-* and sec-* header.
var skipHeaders = map[string]bool{
	"connection": true,
	"host":       true,
	"origin":     true,
	"referer":    true,
	"cookie":     true,
}

// BuildUpstreamHeaders copies inbound headers minus browser, proxy and internal ones.
// Internal side-channel headers such as X-User-Api-Key and X-Base-URL are dropped with
// the rest of the x-* family and must be re-added explicitly by the caller.
func BuildUpstreamHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for name, values := range in {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-") || strings.HasPrefix(lower, "sec-") || skipHeaders[lower] {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// CleanResponseHeaders prepares upstream response headers for the client.
func CleanResponseHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	// a 401 must not trigger the browser's credential dialog
	out.Del("Www-Authenticate")
	out.Set("X-Accel-Buffering", "no")
	// the transport already decoded the body, so any encoding claim is stale
	out.Del("Content-Encoding")
	return out
}
