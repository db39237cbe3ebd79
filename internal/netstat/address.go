package netstat

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// publicPrefixes are the wildcard bindings reachable from any interface.
var publicPrefixes = []string{"0.0.0.0:", ":::", "[::]:", "*:"}

// IsPublicAddress reports whether a "host:port" binding listens on every interface.
func IsPublicAddress(addr string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}

// decodeEndpoint turns a /proc/net hex endpoint such as "0100007F:1F90"
// into an address and port. IPv4 is one little-endian word; IPv6 is four
// little-endian words.
func decodeEndpoint(raw string) (netip.Addr, uint16, error) {
	hostHex, portHex, ok := strings.Cut(raw, ":")
	if !ok {
		return netip.Addr{}, 0, fmt.Errorf("endpoint %q: missing port", raw)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("endpoint %q: port: %w", raw, err)
	}
	b, err := hex.DecodeString(hostHex)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("endpoint %q: host: %w", raw, err)
	}

	switch len(b) {
	case 4:
		return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]}), uint16(port), nil
	case 16:
		var ip [16]byte
		for word := 0; word < 4; word++ {
			for i := 0; i < 4; i++ {
				ip[word*4+i] = b[word*4+3-i]
			}
		}
		return netip.AddrFrom16(ip).Unmap(), uint16(port), nil
	default:
		return netip.Addr{}, 0, fmt.Errorf("endpoint %q: unexpected address length %d", raw, len(b))
	}
}

func formatEndpoint(addr netip.Addr, port uint16) string {
	return netip.AddrPortFrom(addr, port).String()
}

// splitHostPort splits "host:port" as printed by lsof or gopsutil. The host
// may be "*" or a bracketed IPv6 literal.
func splitHostPort(raw string) (string, uint16, error) {
	idx := strings.LastIndexByte(raw, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("address %q: missing port", raw)
	}
	host, portStr := raw[:idx], raw[idx+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("address %q: port: %w", raw, err)
	}
	return strings.Trim(host, "[]"), uint16(port), nil
}

func joinHostPort(host string, port uint16) string {
	if host == "" {
		host = "*"
	}
	if host == "*" {
		return "*:" + strconv.Itoa(int(port))
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
