package config

import (
	"net"
	"strings"
)

// cgnat covers carrier grade NAT and overlay VPNs such as Tailscale and WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// RestrictedNetwork reports whether an active interface looks like a VPN
// tunnel or sits behind CGNAT. Direct paths rarely work there, so callers
// prefer relayed candidates.
func RestrictedNetwork() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnel(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnat.Contains(ipnet.IP) {
				return true
			}
		}
	}
	return false
}

func isTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range tunnelNames {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
