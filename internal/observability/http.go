package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta identifies the device behind an upgraded socket in lifecycle events.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

// ClientFromRequest reads client identity headers. requestID wins over the
// X-Request-ID header when the router already assigned one.
func ClientFromRequest(r *http.Request, requestID string) ClientMeta {
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: requestID,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
