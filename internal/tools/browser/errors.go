package browser

import "errors"

// Sentinel errors returned by the browser manager and session.
var (
	// ErrCapacity indicates max_sessions concurrent sessions are already running.
	ErrCapacity = errors.New("browser: session capacity reached")

	// ErrSessionNotFound indicates no session is running for the given agent.
	ErrSessionNotFound = errors.New("browser: session not found")

	// ErrLaunchFailed indicates Chromium could not be started or never
	// printed its DevTools listening line in time.
	ErrLaunchFailed = errors.New("browser: chromium exited or timed out")

	// ErrNoBinary indicates no Chromium-family binary could be located.
	ErrNoBinary = errors.New("browser: no chromium binary found")

	// ErrCommandTimeout indicates a CDP command was not answered in time.
	ErrCommandTimeout = errors.New("browser: command timed out")

	// ErrNoPageTarget indicates /json/list never returned a page target.
	ErrNoPageTarget = errors.New("browser: no page target found")
)

// CDPError wraps an error returned by the browser in a CDP response.
type CDPError struct {
	Message string
}

func (e *CDPError) Error() string {
	return "browser: cdp error: " + e.Message
}
