package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxySet is the parsed list of trusted proxy networks.
type proxySet []*net.IPNet

// parseProxies accepts CIDRs and bare IPs. Invalid entries are logged and
// skipped.
func parseProxies(entries []string) proxySet {
	var set proxySet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			set = append(set, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		set = append(set, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return set
}

func (p proxySet) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// TrustedRealIP sets RemoteAddr to the client address reported by a trusted
// proxy. Headers from any other peer are ignored, so clients cannot spoof
// their address past rate limiting or the audit log.
//
// X-Real-IP wins when present. Otherwise X-Forwarded-For is walked from the
// right, skipping trusted hops; the first untrusted address is the client.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	proxies := parseProxies(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proxies.contains(extractIP(r.RemoteAddr)) {
				if ip := forwardedClient(r, proxies); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient returns the client named by proxy headers, or nil.
func forwardedClient(r *http.Request, proxies proxySet) net.IP {
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return net.ParseIP(rip)
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			return nil
		}
		if !proxies.contains(ip) {
			return ip
		}
	}
	return nil
}

// extractIP parses an IP address from a host:port string or plain IP.
func extractIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
