package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP returns the address a request originates from.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is
// a trusted proxy. X-Forwarded-For is walked from the right, skipping
// trusted hops, because entries left of the nearest untrusted hop are
// supplied by the client. The result is normalised: IPv4-mapped IPv6
// becomes IPv4 and ::1 becomes 127.0.0.1, so one host always maps to one
// tracking key.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip, ok := forwardedClient(xff, config.TrustedProxies); ok {
				return ip
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if addr, ok := parseIP(strings.TrimSpace(xri)); ok {
				return NormalizeIP(addr.String())
			}
		}
	}

	return NormalizeIP(remoteIP)
}

// forwardedClient returns the rightmost X-Forwarded-For address that is not
// a trusted proxy. When every hop is trusted the leftmost one is used.
func forwardedClient(xff string, trustedProxies []string) (string, bool) {
	hops := strings.Split(xff, ",")
	var outermost string
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseIP(strings.TrimSpace(hops[i]))
		if !ok {
			continue
		}
		ip := NormalizeIP(addr.String())
		if !isTrustedProxy(ip, trustedProxies) {
			return ip, true
		}
		outermost = ip
	}
	return outermost, outermost != ""
}

// NormalizeIP canonicalises an address string; non-addresses pass through.
func NormalizeIP(ip string) string {
	addr, ok := parseIP(ip)
	if !ok {
		return ip
	}
	addr = addr.Unmap()
	if addr == netip.IPv6Loopback() {
		return "127.0.0.1"
	}
	return addr.String()
}

func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	addr, ok := parseIP(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()

	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIP(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone(""), true
}
