// Package main provides the CLI entry point for the OpenFang agent runtime.
//
// OpenFang hosts long-lived autonomous agents that converse with LLM
// providers (Anthropic, OpenAI), invoke tools such as the native CDP
// browser, and compose into parent/child and peer topologies.
//
// # Basic Usage
//
// Run a one-shot agent turn:
//
//	openfang chat "summarize https://example.com"
//
// Inspect hand bundles:
//
//	openfang hands list --dir ./hands
//	openfang hands check clip --dir ./hands
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - CHROME_PATH: explicit Chromium binary for the browser tool
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build-time metadata injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	logFormat string
	logLevel  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openfang",
		Short: "OpenFang - local-first AI agent runtime",
		Long: `OpenFang hosts autonomous agents that converse with LLM providers,
invoke tools (including a native CDP-driven browser), and compose into
parent/child and peer topologies.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logFormat, logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		buildChatCmd(),
		buildHandsCmd(),
	)

	return rootCmd
}

// configureLogging installs the process-wide slog default. Text to stderr
// is the default; --log-format json swaps in a JSON handler for log
// shippers.
func configureLogging(format, level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
