package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver picks the address rate limits are keyed on. Forwarding
// headers count only when the immediate peer is a trusted proxy, and
// X-Forwarded-For is read from the right so prepended entries are ignored.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts bare addresses and CIDR ranges.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{}
	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		r.trusted = append(r.trusted, prefix.Masked())
	}
	return r, nil
}

// Resolve returns the client address of req, or "unknown".
func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := parseAddr(req.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !r.trustedAddr(peer) {
		return peer.String()
	}

	if addr, ok := r.forwardedFor(req.Header.Values("X-Forwarded-For")); ok {
		return addr.String()
	}
	if addr, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return peer.String()
}

// Key adapts Resolve to httprate.KeyFunc.
func (r *ClientIPResolver) Key(req *http.Request) (string, error) {
	return r.Resolve(req), nil
}

func (r *ClientIPResolver) trustedAddr(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedFor walks every X-Forwarded-For hop from the right and returns
// the first untrusted one. When all hops are trusted the leftmost wins.
func (r *ClientIPResolver) forwardedFor(headers []string) (netip.Addr, bool) {
	var hops []string
	for _, h := range headers {
		hops = append(hops, strings.Split(h, ",")...)
	}

	var last netip.Addr
	found := false
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(hops[i])
		if !ok {
			continue
		}
		if !r.trustedAddr(addr) {
			return addr, true
		}
		last, found = addr, true
	}
	return last, found
}

// parseAddr accepts "ip", "ip:port", "[v6]:port" and quoted forms.
func parseAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.Unmap(), true
	}
	host, _, err := net.SplitHostPort(value)
	if err != nil {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
