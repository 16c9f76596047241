// Package netflow normalizes raw traffic-flow addresses: splitting composite
// address strings into IP and port, labeling protocol numbers, and
// categorizing IPs by address range.
package netflow

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Category represents the address range an IP belongs to
type Category string

const (
	CategoryRelay   Category = "relay"   // The relay server itself
	CategoryMesh    Category = "mesh"    // Mesh overlay address space
	CategoryPrivate Category = "private" // RFC-1918, link-local and unique-local space
	CategoryPublic  Category = "public"  // Everything else, including unparsable input
)

// relayAddr is the fixed address the mesh relay answers on. It sits inside
// the CGNAT block, so it must be checked before the mesh range.
var relayAddr = netip.MustParseAddr("100.100.100.100")

// Mesh overlay ranges: the reserved CGNAT IPv4 block and the mesh ULA /48.
var (
	meshV4 = netip.MustParsePrefix("100.64.0.0/10")
	meshV6 = netip.MustParsePrefix("fd7a:115c:a1e0::/48")
)

// privatePrefixes are checked after the mesh ranges, so the mesh /48 never
// falls through to the generic unique-local match.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// Normalize lower-cases an address and strips IPv6 brackets so textual
// variants of the same address compare equal
func Normalize(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	addr = strings.TrimPrefix(addr, "[")
	addr = strings.TrimSuffix(addr, "]")
	return addr
}

// ExtractIP returns the IP portion of a composite address string
func ExtractIP(addr string) string {
	ip, _, _ := splitAddr(addr)
	return ip
}

// ExtractPort returns the port embedded in a composite address string,
// if there is one
func ExtractPort(addr string) (int, bool) {
	_, port, ok := splitAddr(addr)
	return port, ok
}

// splitAddr separates an address string into IP and optional port.
// Bracketed IPv6 ("[fd7a::1]:80") carries its port after "]:"; a bare IPv6
// literal is never split on its own colons; a single trailing ":<digits>"
// is host:port. Anything else is returned whole.
func splitAddr(addr string) (string, int, bool) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "[") {
		if idx := strings.Index(addr, "]:"); idx >= 0 {
			if port, err := strconv.Atoi(addr[idx+2:]); err == nil {
				return addr[1:idx], port, true
			}
			return addr[1:idx], 0, false
		}
		return strings.TrimSuffix(addr[1:], "]"), 0, false
	}
	if strings.Count(addr, ":") == 1 {
		idx := strings.LastIndex(addr, ":")
		if port, err := strconv.Atoi(addr[idx+1:]); err == nil {
			return addr[:idx], port, true
		}
	}
	return addr, 0, false
}

// ProtocolName labels an IANA protocol number
func ProtocolName(proto int) string {
	switch proto {
	case 1:
		return "ICMP"
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	case 255:
		return "Reserved"
	default:
		return fmt.Sprintf("Proto-%d", proto)
	}
}

// PortTracked reports whether per-port usage is recorded for a protocol;
// only TCP and UDP ports are meaningful
func PortTracked(proto int) bool {
	return proto == 6 || proto == 17
}

// Categorize assigns an IP to its address range. Unparsable input
// categorizes as public rather than erroring.
func Categorize(ip string) Category {
	addr, err := netip.ParseAddr(Normalize(ip))
	if err != nil {
		return CategoryPublic
	}
	addr = addr.Unmap().WithZone("")
	if addr == relayAddr {
		return CategoryRelay
	}
	if meshV4.Contains(addr) || meshV6.Contains(addr) {
		return CategoryMesh
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return CategoryPrivate
		}
	}
	return CategoryPublic
}
