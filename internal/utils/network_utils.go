package utils

import (
	"net"
	"strings"
)

// CGNAT range (100.64.0.0/10). Cloudflare WARP, Tailscale, and Carrier Grade
// NATs use this. Direct media paths through it usually fail.
var cgnatBlock = mustCIDR("100.64.0.0/10")

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		if IsTunnelInterface(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if IsCGNAT(ip) {
				return true
			}
		}
	}

	return false
}

// IsTunnelInterface matches interface names used by VPNs and virtual adapters.
func IsTunnelInterface(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range []string{
		"tun",  // Standard VPNs (OpenVPN, etc)
		"tap",  // Virtual adapters
		"wg",   // WireGuard
		"ppp",  // Point-to-Point
		"warp", // Explicit WARP
	} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// IsCGNAT reports whether ip falls in the shared address space.
func IsCGNAT(ip net.IP) bool {
	return ip != nil && cgnatBlock.Contains(ip)
}
