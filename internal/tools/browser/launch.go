package browser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// candidateBinaryNames are searched on PATH, in order, when no explicit
// chromium_path or CHROME_PATH is configured.
var candidateBinaryNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// platformPaths lists standard per-OS install locations for Chrome-family
// browsers, checked before falling back to a PATH lookup.
func platformPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\BraveSoftware\Brave-Browser\Application\brave.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/usr/bin/brave-browser",
			"/snap/bin/chromium",
		}
	}
}

// findChromiumBinary resolves a Chromium-family executable, preferring the
// configured path, then CHROME_PATH, then platform install locations,
// then PATH lookup of the candidate names.
func findChromiumBinary(cfg LaunchConfig) (string, error) {
	if cfg.ChromiumPath != "" {
		if fileExists(cfg.ChromiumPath) {
			return cfg.ChromiumPath, nil
		}
	}

	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		if fileExists(envPath) {
			return envPath, nil
		}
	}

	for _, p := range platformPaths() {
		if fileExists(p) {
			return p, nil
		}
	}

	for _, name := range candidateBinaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}

	return "", ErrNoBinary
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// forwardedEnvVars is the scrubbed environment passed to the child process:
// only what Chromium needs to find its profile, fonts, and display.
var forwardedEnvVars = []string{
	"PATH",
	"HOME", "USERPROFILE",
	"SYSTEMROOT",
	"TEMP", "TMP", "TMPDIR",
	"APPDATA", "LOCALAPPDATA",
	"XDG_CONFIG_HOME", "XDG_CACHE_HOME",
	"DISPLAY", "WAYLAND_DISPLAY",
}

func scrubbedEnv() []string {
	var env []string
	for _, name := range forwardedEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

func launchArgs(cfg LaunchConfig) []string {
	args := []string{
		"--remote-debugging-port=0",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-translate",
		"--disable-features=TranslateUI",
		"--metrics-recording-only",
	}
	if cfg.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	width, height := cfg.ViewportWidth, cfg.ViewportHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}
	args = append(args, fmt.Sprintf("--window-size=%d,%d", width, height))

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	args = append(args, "--user-agent="+userAgent)

	return args
}

// launchChromium spawns a Chromium-family browser and returns the spawned
// process plus the page target's WebSocket debugger URL.
func launchChromium(cfg LaunchConfig) (*exec.Cmd, string, error) {
	binary, err := findChromiumBinary(cfg)
	if err != nil {
		return nil, "", err
	}

	cmd := exec.Command(binary, launchArgs(cfg)...)
	cmd.Env = scrubbedEnv()

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, "", fmt.Errorf("browser: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("browser: start: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	browserWSURL, err := waitForDevToolsLine(stderr, timeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, "", err
	}

	port, err := portFromWSURL(browserWSURL)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, "", err
	}

	pageWSURL, err := discoverPageTarget(port)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, "", err
	}

	return cmd, pageWSURL, nil
}

const devtoolsListeningPrefix = "DevTools listening on "

// waitForDevToolsLine scans stderr line by line until the DevTools
// listening banner appears or timeout elapses.
func waitForDevToolsLine(stderr io.Reader, timeout time.Duration) (string, error) {
	lineCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if idx := strings.Index(line, devtoolsListeningPrefix); idx != -1 {
				lineCh <- strings.TrimSpace(line[idx+len(devtoolsListeningPrefix):])
				return
			}
		}
	}()

	select {
	case url := <-lineCh:
		return url, nil
	case <-time.After(timeout):
		return "", ErrLaunchFailed
	}
}

// portFromWSURL extracts the TCP port from a ws://127.0.0.1:PORT/... URL.
func portFromWSURL(wsURL string) (int, error) {
	rest := strings.TrimPrefix(wsURL, "ws://")
	rest = strings.TrimPrefix(rest, "wss://")
	hostPort := rest
	if idx := strings.Index(rest, "/"); idx != -1 {
		hostPort = rest[:idx]
	}
	idx := strings.LastIndex(hostPort, ":")
	if idx == -1 {
		return 0, fmt.Errorf("browser: no port in devtools url %q", wsURL)
	}
	return strconv.Atoi(hostPort[idx+1:])
}

type devtoolsTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// discoverPageTarget polls GET /json/list until a "page" target appears,
// since the list endpoint can lag the stderr banner by a beat.
func discoverPageTarget(port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/list", port)
	client := &http.Client{Timeout: 2 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if attempt > 0 {
			time.Sleep(300 * time.Millisecond)
		}

		resp, err := client.Get(url)
		if err != nil {
			lastErr = err
			continue
		}

		var targets []devtoolsTarget
		decodeErr := json.NewDecoder(resp.Body).Decode(&targets)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = decodeErr
			continue
		}

		for _, t := range targets {
			if t.Type == "page" && t.WebSocketDebuggerURL != "" {
				return t.WebSocketDebuggerURL, nil
			}
		}
		lastErr = ErrNoPageTarget
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoPageTarget
}

// dialCDP opens the raw CDP WebSocket connection to a page target.
func dialCDP(wsURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: dial devtools websocket: %w", err)
	}
	return conn, nil
}
