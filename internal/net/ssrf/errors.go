// Package ssrf gates outbound URLs: scheme allow-list, blocked hostnames,
// and private/reserved address detection, with DNS resolution so a name
// pointing at an internal IP is caught as well as a literal one.
package ssrf

import "fmt"

// BlockedError marks a URL, hostname, or address rejected by the gate, as
// opposed to one that merely failed to parse or resolve.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return e.Reason
}

// blocked builds a BlockedError from a format string.
func blocked(format string, args ...any) *BlockedError {
	return &BlockedError{Reason: fmt.Sprintf(format, args...)}
}
