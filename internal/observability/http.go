package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientIPFromRequest extracts the peer address for connection logging,
// honouring X-Forwarded-For when a LAN reverse proxy sits in front.
func ClientIPFromRequest(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// IsLoopback reports whether the remote address of r is a loopback address.
// The admin surface refuses everything else.
func IsLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
