package browser

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestPortFromWSURL(t *testing.T) {
	cases := map[string]int{
		"ws://127.0.0.1:9222/devtools/browser/abc-123": 9222,
		"ws://localhost:54321/devtools/page/xyz":        54321,
	}
	for url, want := range cases {
		got, err := portFromWSURL(url)
		if err != nil {
			t.Fatalf("portFromWSURL(%q): %v", url, err)
		}
		if got != want {
			t.Fatalf("portFromWSURL(%q) = %d, want %d", url, got, want)
		}
	}
}

func TestPortFromWSURL_Malformed(t *testing.T) {
	if _, err := portFromWSURL("not-a-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestLaunchArgs_HeadlessAddsFlags(t *testing.T) {
	cfg := DefaultLaunchConfig()
	cfg.Headless = true
	args := launchArgs(cfg)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--headless=new") {
		t.Fatalf("args missing --headless=new: %v", args)
	}
	if !strings.Contains(joined, "--window-size=1280,800") {
		t.Fatalf("args missing window-size: %v", args)
	}
}

func TestLaunchArgs_NonHeadlessOmitsHeadlessFlag(t *testing.T) {
	cfg := DefaultLaunchConfig()
	cfg.Headless = false
	args := launchArgs(cfg)
	for _, a := range args {
		if a == "--headless=new" {
			t.Fatalf("non-headless config unexpectedly set --headless=new: %v", args)
		}
	}
}

func TestScrubbedEnv_OnlyForwardsAllowedVars(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("OPENFANG_SECRET_TOKEN", "should-not-leak")

	env := scrubbedEnv()
	for _, kv := range env {
		key := strings.SplitN(kv, "=", 2)[0]
		if key == "OPENFANG_SECRET_TOKEN" {
			t.Fatalf("scrubbedEnv leaked a non-whitelisted var: %v", env)
		}
	}

	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			found = true
		}
	}
	if !found {
		t.Fatalf("scrubbedEnv dropped PATH: %v", env)
	}
}

func TestFindChromiumBinary_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-chrome")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}

	cfg := LaunchConfig{ChromiumPath: fake}
	got, err := findChromiumBinary(cfg)
	if err != nil {
		t.Fatalf("findChromiumBinary: %v", err)
	}
	if got != fake {
		t.Fatalf("got = %q, want %q", got, fake)
	}
}

func TestFindChromiumBinary_NoneFound(t *testing.T) {
	cfg := LaunchConfig{ChromiumPath: "/definitely/not/a/real/path/xyz"}
	t.Setenv("CHROME_PATH", "/also/not/real")
	t.Setenv("PATH", t.TempDir()) // empty PATH dir, no chrome binaries

	if _, err := findChromiumBinary(cfg); err != ErrNoBinary {
		t.Fatalf("err = %v, want ErrNoBinary", err)
	}
}

func TestDiscoverPageTarget_FindsPageType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		targets := []devtoolsTarget{
			{Type: "background_page", WebSocketDebuggerURL: "ws://x/bg"},
			{Type: "page", WebSocketDebuggerURL: "ws://x/page-1"},
		}
		json.NewEncoder(w).Encode(targets)
	}))
	defer srv.Close()

	port, err := strconv.Atoi(strings.TrimPrefix(srv.URL, "http://127.0.0.1:"))
	if err != nil {
		t.Skipf("could not parse test server port from %q", srv.URL)
	}

	got, err := discoverPageTarget(port)
	if err != nil {
		t.Fatalf("discoverPageTarget: %v", err)
	}
	if got != "ws://x/page-1" {
		t.Fatalf("got = %q, want ws://x/page-1", got)
	}
}

