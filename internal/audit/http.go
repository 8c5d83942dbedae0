package audit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address recorded on audit rows: the first valid hop
// of X-Forwarded-For, then X-Real-IP, then the peer address. Ports and
// malformed header values are dropped.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := parseHost(hop); ip != "" {
			return ip
		}
	}
	if ip := parseHost(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := parseHost(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func parseHost(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	ip := net.ParseIP(strings.Trim(value, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
