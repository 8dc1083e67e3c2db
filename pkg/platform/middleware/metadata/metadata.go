package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"opsdash/pkg/requestcontext"
)

// MaxXFFHeaderLength caps the X-Forwarded-For header we are willing to parse.
const MaxXFFHeaderLength = 500

// Middleware resolves the client IP and User-Agent. X-Forwarded-For is only
// consulted when the direct peer is a trusted proxy.
type Middleware struct {
	trusted []netip.Prefix
}

// NewMiddleware creates a metadata middleware. With no trusted proxies the
// peer address is always used.
func NewMiddleware(trustedProxies []netip.Prefix) *Middleware {
	return &Middleware{trusted: trustedProxies}
}

// ParseTrustedProxies parses a comma-separated list of CIDR prefixes or bare addresses.
func ParseTrustedProxies(csv string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range strings.Split(csv, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("parse trusted proxy %q: %w", raw, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", raw, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Handler stores the resolved client metadata in the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP walks X-Forwarded-For from the nearest hop outward and returns the
// first address that is not a trusted proxy.
func (m *Middleware) ClientIP(r *http.Request) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.isTrusted(peer) {
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" || len(xff) > MaxXFFHeaderLength {
		return peer.String()
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return peer.String()
		}
		addr = addr.Unmap()
		if !m.isTrusted(addr) {
			return addr.String()
		}
	}
	return peer.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
