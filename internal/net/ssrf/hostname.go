package ssrf

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Hostnames rejected outright, before any resolution. The GCE metadata
// name is the canonical cloud-credential exfiltration target.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// Suffixes that name internal resources regardless of the resolver's
// answer for them.
var blockedSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// IsBlockedHostname reports whether a hostname is rejected by name alone:
// an explicitly blocked host or one carrying an internal suffix.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return false
	}

	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// ValidatePublicHostname accepts a hostname only if it is not blocked by
// name, is not itself a private address literal, and every address it
// resolves to is public. Resolving here (not just string-matching) is what
// catches a DNS entry rebound to an internal IP.
func ValidatePublicHostname(hostname string) error {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return errors.New("invalid hostname: empty after normalization")
	}

	if IsBlockedHostname(normalized) {
		return blocked("blocked hostname: %s", hostname)
	}
	if IsPrivateIPAddress(normalized) {
		return blocked("blocked: private/internal IP address")
	}

	ips, err := net.LookupIP(normalized)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname: %s: %w", hostname, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("unable to resolve hostname: %s", hostname)
	}

	for _, ip := range ips {
		if IsPrivateIPAddress(ip.String()) {
			return blocked("blocked: resolves to private/internal IP address")
		}
	}
	return nil
}
