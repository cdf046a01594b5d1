package ssrf

import (
	"net/url"
)

// allowedSchemes are the only URL schemes tool handlers may fetch.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// CheckURL validates a URL before any outbound network request. It is the
// single gate every tool handler that accepts a URL (web fetch, browser
// navigate, document retrieval) must call before doing network I/O.
func CheckURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return blocked("invalid URL: %v", err)
	}

	if !allowedSchemes[parsed.Scheme] {
		return blocked("blocked scheme: %s", parsed.Scheme)
	}

	if parsed.Hostname() == "" {
		return blocked("invalid URL: missing host")
	}

	if parsed.User != nil {
		return blocked("blocked: userinfo not allowed in URL")
	}

	return ValidatePublicHostname(parsed.Hostname())
}
