package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig controls which peers may supply forwarding headers.
type IPConfig struct {
	// TrustedProxies holds CIDR ranges. Forwarding headers from any
	// other peer are ignored so clients cannot spoof their address.
	TrustedProxies []string
}

// ExtractClientIP resolves the client address for audit logging. When
// the request arrives from a trusted proxy it honors X-Forwarded-For
// (first valid entry) and then X-Real-IP; otherwise, and when config is
// nil, it uses the transport peer address.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if config != nil && isTrustedProxy(peer, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if net.ParseIP(ip) != nil {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
			return xri
		}
	}

	return peer
}

// peerAddr strips the port from RemoteAddr when one is present.
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	peer := net.ParseIP(ip)
	if peer == nil {
		return false
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(peer) {
			return true
		}
	}
	return false
}
