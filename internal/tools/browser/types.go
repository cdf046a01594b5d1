// Package browser manages per-agent Chromium sessions driven directly over
// the Chrome DevTools Protocol: no chromedp, no playwright, just a raw
// gorilla/websocket connection and hand-rolled JSON-RPC framing.
package browser

import "time"

// LaunchConfig controls how a Chromium-family browser is started.
type LaunchConfig struct {
	// ChromiumPath, if set, is tried before any other discovery step.
	ChromiumPath string

	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string

	// MaxSessions bounds the number of concurrently running sessions.
	MaxSessions int

	// ConnectTimeout bounds how long launch waits for the DevTools
	// listening line on stderr.
	ConnectTimeout time.Duration

	// CommandTimeout bounds how long a single CDP command waits for its
	// response.
	CommandTimeout time.Duration
}

// DefaultLaunchConfig returns the default timeouts and viewport.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		UserAgent:      defaultUserAgent,
		MaxSessions:    4,
		ConnectTimeout: 15 * time.Second,
		CommandTimeout: 30 * time.Second,
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// CommandResult is the uniform envelope every browser command returns.
type CommandResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PageInfo describes the page after a navigation-affecting command.
type PageInfo struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
}

// ScreenshotResult carries a captured frame.
type ScreenshotResult struct {
	Base64 string `json:"base64"`
	URL    string `json:"url"`
}

// ScrollResult carries the page's scroll position after a scroll command.
type ScrollResult struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ExtractResult is what ReadPage returns.
type ExtractResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}
