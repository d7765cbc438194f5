package external

import (
	"net"
	"net/http"
	"strings"
)

// hopHeaders are stripped from requests and responses crossing the proxy.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Conditional and partial requests would produce a body we cannot re-encode.
var rangeHeaders = []string{
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

// RemoveHopHeaders deletes hop-by-hop headers, including any named in Connection.
func RemoveHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// BuildHeaders derives the upstream request headers from the client request.
// Cookies and Authorization are forwarded unchanged.
func BuildHeaders(r *http.Request, userAgent string) http.Header {
	h := r.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	RemoveHopHeaders(h)
	for _, name := range rangeHeaders {
		h.Del(name)
	}
	h.Del("Host")
	h.Del("Content-Length")

	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "close")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd, *")
	h.Set("Accept", "*/*")
	if h.Get("User-Agent") == "" && userAgent != "" {
		h.Set("User-Agent", userAgent)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	return h
}
