package ssrf

import (
	"strconv"
	"strings"
)

// IPv6 prefixes for link-local (fe80), deprecated site-local (fec0), and
// unique-local (fc00::/7) space.
var privateIPv6Prefixes = []string{"fe80:", "fec0:", "fc", "fd"}

// normalizeHostname trims whitespace and the root-label dot, lowercases,
// and unwraps IPv6 brackets so every check sees one canonical spelling.
func normalizeHostname(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	normalized = strings.TrimSuffix(normalized, ".")
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

// parseIPv4 parses dotted-decimal notation into four octets. Anything that
// is not exactly four in-range decimal octets is rejected.
func parseIPv4(address string) ([4]byte, error) {
	var octets [4]byte

	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return octets, blocked("invalid IPv4 address: must have 4 octets")
	}
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil {
			return octets, blocked("invalid IPv4 address: invalid octet")
		}
		if value < 0 || value > 255 {
			return octets, blocked("invalid IPv4 address: octet out of range")
		}
		octets[i] = byte(value)
	}
	return octets, nil
}

// parseIPv4FromMappedIPv6 recovers the IPv4 address embedded after a
// ::ffff: prefix. The tail may be dotted decimal ("192.168.1.1"), two hex
// groups ("c0a8:0101"), or one packed hex value ("c0a80101") — all three
// spellings must map to the same range checks or the mapped form becomes
// a bypass.
func parseIPv4FromMappedIPv6(mapped string) ([4]byte, error) {
	var octets [4]byte

	if strings.Contains(mapped, ".") {
		return parseIPv4(mapped)
	}

	var groups []string
	for _, p := range strings.Split(mapped, ":") {
		if p != "" {
			groups = append(groups, p)
		}
	}

	switch len(groups) {
	case 1:
		value, err := strconv.ParseUint(groups[0], 16, 32)
		if err != nil {
			return octets, blocked("invalid IPv4-mapped IPv6: invalid hex value")
		}
		return packIPv4(value), nil
	case 2:
		high, err := strconv.ParseUint(groups[0], 16, 16)
		if err != nil {
			return octets, blocked("invalid IPv4-mapped IPv6: invalid high hex value")
		}
		low, err := strconv.ParseUint(groups[1], 16, 16)
		if err != nil {
			return octets, blocked("invalid IPv4-mapped IPv6: invalid low hex value")
		}
		return packIPv4(high<<16 + low), nil
	default:
		return octets, blocked("invalid IPv4-mapped IPv6: expected 2 hex groups")
	}
}

func packIPv4(value uint64) [4]byte {
	return [4]byte{
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
}

// IsPrivateIPv4 reports whether four octets fall in a private or reserved
// range: 0.0.0.0/8, 10.0.0.0/8, 127.0.0.0/8, 169.254.0.0/16,
// 172.16.0.0/12, 192.168.0.0/16, or 100.64.0.0/10 (carrier-grade NAT).
func IsPrivateIPv4(octets [4]byte) bool {
	o1, o2 := octets[0], octets[1]

	switch {
	case o1 == 0: // current network
		return true
	case o1 == 10: // RFC 1918
		return true
	case o1 == 127: // loopback
		return true
	case o1 == 169 && o2 == 254: // link-local
		return true
	case o1 == 172 && o2 >= 16 && o2 <= 31: // RFC 1918
		return true
	case o1 == 192 && o2 == 168: // RFC 1918
		return true
	case o1 == 100 && o2 >= 64 && o2 <= 127: // CGNAT
		return true
	}
	return false
}

// IsPrivateIPAddress reports whether an address literal (IPv4 or IPv6,
// optionally bracketed) is private or reserved. Non-addresses return
// false; they are handled by hostname validation instead.
func IsPrivateIPAddress(address string) bool {
	normalized := normalizeHostname(address)
	if normalized == "" {
		return false
	}

	// IPv4-mapped IPv6 first: it contains colons but range-checks as IPv4.
	if strings.HasPrefix(normalized, "::ffff:") {
		if octets, err := parseIPv4FromMappedIPv6(normalized[len("::ffff:"):]); err == nil {
			return IsPrivateIPv4(octets)
		}
	}

	if strings.Contains(normalized, ":") {
		if normalized == "::" || normalized == "::1" {
			return true
		}
		for _, prefix := range privateIPv6Prefixes {
			if strings.HasPrefix(normalized, prefix) {
				return true
			}
		}
		return false
	}

	octets, err := parseIPv4(normalized)
	if err != nil {
		return false
	}
	return IsPrivateIPv4(octets)
}
