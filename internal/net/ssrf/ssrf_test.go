package ssrf

import (
	"errors"
	"testing"
)

func TestBlockedError_IsDistinguishable(t *testing.T) {
	var err error = blocked("nope: %s", "reason")
	if err.Error() != "nope: reason" {
		t.Errorf("Error() = %q", err.Error())
	}

	var be *BlockedError
	if !errors.As(err, &be) {
		t.Error("expected errors.As to match *BlockedError")
	}
}

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.com", "example.com"},
		{"  example.com  ", "example.com"},
		{"EXAMPLE.COM", "example.com"},
		{"example.com.", "example.com"},
		{"[::1]", "::1"},
		{"[fe80::1]", "fe80::1"},
		{"  EXAMPLE.COM.  ", "example.com"},
	}
	for _, tc := range tests {
		if got := normalizeHostname(tc.input); got != tc.want {
			t.Errorf("normalizeHostname(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseIPv4(t *testing.T) {
	valid := []struct {
		input string
		want  [4]byte
	}{
		{"192.168.1.1", [4]byte{192, 168, 1, 1}},
		{"0.0.0.0", [4]byte{0, 0, 0, 0}},
		{"255.255.255.255", [4]byte{255, 255, 255, 255}},
		{"10.0.0.1", [4]byte{10, 0, 0, 1}},
		{"127.0.0.1", [4]byte{127, 0, 0, 1}},
	}
	for _, tc := range valid {
		got, err := parseIPv4(tc.input)
		if err != nil {
			t.Errorf("parseIPv4(%q) error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseIPv4(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}

	invalid := []string{
		"256.1.1.1",     // octet out of range
		"1.1.1",         // too few octets
		"1.1.1.1.1",     // too many octets
		"a.b.c.d",       // not decimal
		"-1.1.1.1",      // negative
		"1.1.1.1.extra", // trailing garbage
	}
	for _, input := range invalid {
		if _, err := parseIPv4(input); err == nil {
			t.Errorf("parseIPv4(%q) expected error", input)
		}
	}
}

func TestParseIPv4FromMappedIPv6(t *testing.T) {
	valid := []struct {
		input string
		want  [4]byte
	}{
		{"192.168.1.1", [4]byte{192, 168, 1, 1}}, // dotted decimal tail
		{"10.0.0.1", [4]byte{10, 0, 0, 1}},
		{"c0a8:0101", [4]byte{192, 168, 1, 1}}, // two hex groups
		{"0a00:0001", [4]byte{10, 0, 0, 1}},
		{"c0a80101", [4]byte{192, 168, 1, 1}}, // packed hex
	}
	for _, tc := range valid {
		got, err := parseIPv4FromMappedIPv6(tc.input)
		if err != nil {
			t.Errorf("parseIPv4FromMappedIPv6(%q) error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseIPv4FromMappedIPv6(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}

	for _, input := range []string{"invalid", "::::"} {
		if _, err := parseIPv4FromMappedIPv6(input); err == nil {
			t.Errorf("parseIPv4FromMappedIPv6(%q) expected error", input)
		}
	}
}

func TestIsPrivateIPv4(t *testing.T) {
	tests := []struct {
		name  string
		input [4]byte
		want  bool
	}{
		{"0.0.0.0/8 current network", [4]byte{0, 0, 0, 0}, true},
		{"0.0.0.0/8 boundary", [4]byte{0, 255, 255, 255}, true},
		{"10.0.0.0/8 private", [4]byte{10, 0, 0, 1}, true},
		{"10.0.0.0/8 boundary", [4]byte{10, 255, 255, 255}, true},
		{"127.0.0.0/8 loopback", [4]byte{127, 0, 0, 1}, true},
		{"127.0.0.0/8 boundary", [4]byte{127, 255, 255, 255}, true},
		{"169.254.0.0/16 link-local", [4]byte{169, 254, 0, 1}, true},
		{"169.254.0.0/16 boundary", [4]byte{169, 254, 255, 255}, true},
		{"172.16.0.0/12 start", [4]byte{172, 16, 0, 1}, true},
		{"172.16.0.0/12 end", [4]byte{172, 31, 255, 255}, true},
		{"172.16.0.0/12 middle", [4]byte{172, 20, 0, 1}, true},
		{"192.168.0.0/16 private", [4]byte{192, 168, 0, 1}, true},
		{"192.168.0.0/16 boundary", [4]byte{192, 168, 255, 255}, true},
		{"100.64.0.0/10 CGNAT start", [4]byte{100, 64, 0, 1}, true},
		{"100.64.0.0/10 CGNAT end", [4]byte{100, 127, 255, 255}, true},
		{"100.64.0.0/10 CGNAT middle", [4]byte{100, 100, 0, 1}, true},

		{"Google DNS", [4]byte{8, 8, 8, 8}, false},
		{"Cloudflare DNS", [4]byte{1, 1, 1, 1}, false},
		{"OpenDNS", [4]byte{208, 67, 222, 222}, false},
		{"just before 172.16/12", [4]byte{172, 15, 0, 1}, false},
		{"just after 172.31/12", [4]byte{172, 32, 0, 1}, false},
		{"just before 169.254/16", [4]byte{169, 253, 0, 1}, false},
		{"just after 169.254/16", [4]byte{169, 255, 0, 1}, false},
		{"just before 100.64/10", [4]byte{100, 63, 0, 1}, false},
		{"just after 100.127/10", [4]byte{100, 128, 0, 1}, false},
		{"just before 192.168/16", [4]byte{192, 167, 0, 1}, false},
		{"just after 192.168/16", [4]byte{192, 169, 0, 1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPrivateIPv4(tc.input); got != tc.want {
				t.Errorf("IsPrivateIPv4(%v) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsPrivateIPAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"loopback", "127.0.0.1", true},
		{"10.x private", "10.0.0.1", true},
		{"192.168.x private", "192.168.1.1", true},
		{"172.16.x private", "172.16.0.1", true},
		{"172.31.x private boundary", "172.31.255.255", true},
		{"link-local", "169.254.1.1", true},
		{"zero address", "0.0.0.0", true},
		{"CGNAT start", "100.64.0.1", true},
		{"CGNAT end", "100.127.255.255", true},

		{"Google DNS", "8.8.8.8", false},
		{"Cloudflare DNS", "1.1.1.1", false},
		{"OpenDNS", "208.67.222.222", false},
		{"just before 172.16/12", "172.15.0.1", false},
		{"just after 172.31/12", "172.32.0.1", false},

		{"IPv6 loopback", "::1", true},
		{"IPv6 unspecified", "::", true},
		{"IPv6 loopback bracketed", "[::1]", true},
		{"IPv6 unspecified bracketed", "[::]", true},

		{"fe80 link-local", "fe80::1", true},
		{"fe80 link-local full", "fe80:0:0:0:0:0:0:1", true},
		{"fec0 site-local", "fec0::1", true},
		{"fc unique local", "fc00::1", true},
		{"fd unique local", "fd00::1", true},
		{"fd unique local full", "fd12:3456:789a::1", true},

		{"Google DNS IPv6", "2001:4860:4860::8888", false},
		{"Cloudflare DNS IPv6", "2606:4700:4700::1111", false},

		{"IPv4-mapped private", "::ffff:192.168.1.1", true},
		{"IPv4-mapped 10.x", "::ffff:10.0.0.1", true},
		{"IPv4-mapped loopback", "::ffff:127.0.0.1", true},
		{"IPv4-mapped public", "::ffff:8.8.8.8", false},
		{"IPv4-mapped Cloudflare", "::ffff:1.1.1.1", false},
		{"IPv4-mapped private hex", "::ffff:c0a8:0101", true},

		{"empty string", "", false},
		{"whitespace IPv4", "  192.168.1.1  ", true},
		{"whitespace IPv6", "  ::1  ", true},
		{"not an address", "invalid", false},
		{"bracketed IPv6", "[fe80::1]", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPrivateIPAddress(tc.input); got != tc.want {
				t.Errorf("IsPrivateIPAddress(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsBlockedHostname(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"localhost", "localhost", true},
		{"localhost uppercase", "LOCALHOST", true},
		{"localhost with spaces", "  localhost  ", true},
		{"localhost with trailing dot", "localhost.", true},
		{"GCE metadata", "metadata.google.internal", true},
		{"GCE metadata uppercase", "METADATA.GOOGLE.INTERNAL", true},

		{".localhost suffix", "foo.localhost", true},
		{".local suffix", "bar.local", true},
		{".internal suffix", "baz.internal", true},
		{"nested .localhost", "sub.domain.localhost", true},
		{"nested .local", "sub.domain.local", true},
		{"nested .internal", "sub.domain.internal", true},

		{"example.com", "example.com", false},
		{"google.com", "google.com", false},
		{"subdomain", "api.example.com", false},
		{"contains localhost but not suffix", "localhostnot.com", false},
		{"ends with local but not .local", "mylocal.com", false},
		{"ends with internal but not .internal", "notinternal.com", false},

		{"empty string", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBlockedHostname(tc.input); got != tc.want {
				t.Errorf("IsBlockedHostname(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidatePublicHostname(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantBlocked bool // expect a *BlockedError specifically
	}{
		{"localhost blocked", "localhost", true},
		{"GCE metadata blocked", "metadata.google.internal", true},
		{".localhost suffix blocked", "foo.localhost", true},
		{".local suffix blocked", "bar.local", true},
		{".internal suffix blocked", "baz.internal", true},

		{"loopback IP blocked", "127.0.0.1", true},
		{"private IP blocked", "192.168.1.1", true},
		{"10.x IP blocked", "10.0.0.1", true},
		{"IPv6 loopback blocked", "[::1]", true},
		{"IPv6 link-local blocked", "[fe80::1]", true},

		{"empty hostname", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePublicHostname(tc.input)
			if err == nil {
				t.Fatalf("ValidatePublicHostname(%q) expected error", tc.input)
			}
			var be *BlockedError
			if got := errors.As(err, &be); got != tc.wantBlocked {
				t.Errorf("ValidatePublicHostname(%q) BlockedError = %v, want %v (err: %v)",
					tc.input, got, tc.wantBlocked, err)
			}
		})
	}
}

// DNS-backed validation: public names should pass, but lookups can fail in
// sandboxed CI, so failures only log.
func TestValidatePublicHostnameWithRealDNS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DNS lookup tests in short mode")
	}

	for _, hostname := range []string{"google.com", "cloudflare.com", "github.com"} {
		t.Run(hostname, func(t *testing.T) {
			if err := ValidatePublicHostname(hostname); err != nil {
				t.Logf("ValidatePublicHostname(%q) = %v (may be expected in isolated environments)", hostname, err)
			}
		})
	}
}
