package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP from the request. The X-Forwarded-For
// header is only honored when trustForwarded is set (the service sits
// behind a known reverse proxy); otherwise the peer address is used.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		forwarded := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		for _, part := range forwarded {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
