package tracking

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const fallbackIP = "0.0.0.0"

// clientIPHeaders are consulted in order before the remote address
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP returns the first public address found in the proxy headers,
// else the remote address, else 0.0.0.0.
func ClientIP(h http.Header, remoteAddr string) string {
	for _, name := range clientIPHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimSpace(v)
		v = strings.TrimPrefix(v, "for=")
		if addr, err := netip.ParseAddr(strings.Trim(v, `"[]`)); err == nil && isPublic(addr) {
			return addr.String()
		}
	}

	if remoteAddr == "" {
		return fallbackIP
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsMulticast()
}
