// Package privacy keeps client identifiers out of logs in recognisable form.
package privacy

import "net/netip"

// AnonymizeIP masks an address down to its network prefix: /24 for IPv4
// (and IPv4-mapped IPv6), /48 for IPv6. "unknown" is returned for empty
// input and "invalid" for anything that does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
