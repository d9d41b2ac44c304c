// Package hostguard classifies hostnames and IPs for SSRF protection and
// matches candidate hosts against a connector's allowlist. Pure functions,
// no I/O — DNS resolution for rebinding defense lives in adapters/http.
package hostguard

import (
	"net"
	"strconv"
	"strings"
)

var privateV4Blocks = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"0.0.0.0/8",
	"169.254.0.0/16",
)

var privateV6Blocks = mustParseCIDRs(
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// Configure appends extra CIDR blocks (from config.SSRFConfig.ExtraPrivateRanges)
// to the private-range blocklist, for operators running in a network where
// additional internal ranges must never be dispatched to. Malformed entries
// are skipped rather than fatal, since a misconfigured extra range should
// not stop the gateway from starting.
func Configure(extraRanges []string) {
	for _, c := range extraRanges {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		if n.IP.To4() != nil {
			privateV4Blocks = append(privateV4Blocks, n)
		} else {
			privateV6Blocks = append(privateV6Blocks, n)
		}
	}
}

// IsPrivate reports whether hostname resolves (syntactically, as a literal
// IP) or names a private/loopback/link-local range, per spec.md §4.2.
func IsPrivate(hostname string) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "localhost" {
		return true
	}
	if h == "::1" {
		return true
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		for _, n := range privateV4Blocks {
			if n.Contains(ip4) {
				return true
			}
		}
		return false
	}
	for _, n := range privateV6Blocks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Validate enforces the SSRF policy: private hosts are always rejected;
// otherwise an empty allowlist passes, else the host must match a pattern.
func Validate(hostname string, allowedHosts []string) bool {
	if IsPrivate(hostname) {
		return false
	}
	if len(allowedHosts) == 0 {
		return true
	}
	for _, pattern := range allowedHosts {
		if matchHostPattern(hostname, pattern) {
			return true
		}
	}
	return false
}

// matchHostPattern matches "*.d.example" against any subdomain of d.example,
// including d.example itself (spec.md §4.2); plain patterns match exactly.
func matchHostPattern(hostname, pattern string) bool {
	hostname = strings.ToLower(hostname)
	pattern = strings.ToLower(pattern)

	if !strings.HasPrefix(pattern, "*.") {
		return hostname == pattern
	}
	suffix := pattern[1:] // ".d.example"
	base := pattern[2:]   // "d.example"
	if hostname == base {
		return true
	}
	return strings.HasSuffix(hostname, suffix)
}

// MatchIPAllowlist checks ip against a list whose elements are either a
// plain IPv4 address (exact match) or a CIDR "a.b.c.d/prefix".
func MatchIPAllowlist(ip string, list []string) bool {
	target := net.ParseIP(ip)
	if target == nil {
		return false
	}
	for _, entry := range list {
		if !strings.Contains(entry, "/") {
			if net.ParseIP(entry).Equal(target) {
				return true
			}
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			continue
		}
		if n.Contains(target) {
			return true
		}
	}
	return false
}

// ValidCIDRPrefix reports whether a prefix string like "24" or "0" is a
// legal IPv4 CIDR prefix length, used by config validation.
func ValidCIDRPrefix(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 32
}
