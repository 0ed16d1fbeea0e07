// Package clientip resolves the address of the browser behind a request.
//
// Forwarding headers are only trusted when the immediate peer is one of the
// configured proxies; otherwise RemoteAddr wins. The resolved address is
// sent to the verification endpoint as remoteip and keys the rate limiter,
// so a spoofed header must never be taken at face value.
package clientip

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver extracts client IPs.
type Resolver struct {
	trusted []netip.Prefix
}

// New builds a resolver trusting the given proxy prefixes.
func New(trusted []netip.Prefix) *Resolver {
	return &Resolver{trusted: trusted}
}

// ParsePrefixes parses a comma-separated list of CIDRs or bare IPs.
func ParsePrefixes(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// IP returns the client IP for r, or "" if it cannot be determined.
func (res *Resolver) IP(r *http.Request) string {
	peer := remoteIP(r)
	if peer == "" {
		return ""
	}
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil {
		return ""
	}
	peerAddr = peerAddr.Unmap()

	if res != nil && res.isTrusted(peerAddr) {
		if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
			if a, err := netip.ParseAddr(v); err == nil {
				return a.Unmap().String()
			}
		}
		if a, ok := res.forwardedFor(r); ok {
			return a.String()
		}
		if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
			if a, err := netip.ParseAddr(v); err == nil {
				return a.Unmap().String()
			}
		}
	}
	return peerAddr.String()
}

// forwardedFor walks X-Forwarded-For from the right and returns the first
// hop that is not a trusted proxy. Entries to its left are client supplied.
func (res *Resolver) forwardedFor(r *http.Request) (netip.Addr, bool) {
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return netip.Addr{}, false
		}
		a = a.Unmap()
		if !res.isTrusted(a) {
			return a, true
		}
	}
	return netip.Addr{}, false
}

func (res *Resolver) isTrusted(a netip.Addr) bool {
	for _, p := range res.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	// RemoteAddr might not have a port
	return r.RemoteAddr
}
