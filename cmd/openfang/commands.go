// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Chat Command
// =============================================================================

// chatOptions collects the flags for a single `openfang chat` run.
type chatOptions struct {
	provider      string
	model         string
	system        string
	maxIterations int
	browser       bool
	showComms     bool
	traceFile     string
	prompt        string
}

// buildChatCmd creates the "chat" command that runs one agent turn against
// the configured provider, streaming the assistant's reply to stdout.
func buildChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Run one agent turn and stream the reply",
		Long: `Run a single agent turn: the prompt is sent to the configured LLM
provider, tool calls (browser navigation, page reading) are executed as the
model requests them, and the streamed reply is printed to stdout.

The provider API key is read from the environment: ANTHROPIC_API_KEY for
--provider anthropic, OPENAI_API_KEY for --provider openai.`,
		Example: `  # One-shot prompt
  openfang chat "what is the capital of France?"

  # Let the agent drive a headless browser
  openfang chat --browser "read https://example.com and summarize it"

  # Use an OpenAI model
  openfang chat --provider openai --model gpt-4o "hello"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.prompt = joinedPrompt(args)
			return runChat(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "anthropic",
		"LLM provider: anthropic or openai")
	cmd.Flags().StringVar(&opts.model, "model", "",
		"Model ID (defaults to the provider's default model)")
	cmd.Flags().StringVar(&opts.system, "system", "",
		"System prompt hoisted into the driver request")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0,
		"Cap on driver calls per run (0 = runtime default)")
	cmd.Flags().BoolVar(&opts.browser, "browser", false,
		"Register the native CDP browser tool for this run")
	cmd.Flags().BoolVar(&opts.showComms, "show-comms", false,
		"Print the comms event feed after the run")
	cmd.Flags().StringVar(&opts.traceFile, "trace", "",
		"Write a replayable run trace to this file")

	return cmd
}

// =============================================================================
// Hands Commands
// =============================================================================

// buildHandsCmd creates the "hands" command group for inspecting hand
// bundles on disk.
func buildHandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hands",
		Short: "Inspect and watch hand bundles",
	}
	cmd.AddCommand(buildHandsListCmd(), buildHandsCheckCmd(), buildHandsWatchCmd())
	return cmd
}

func buildHandsListCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hand definitions discovered under --dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandsList(cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "hands", "Directory containing HAND.md bundles")
	return cmd
}

func buildHandsCheckCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "check <hand-id>",
		Short: "Check a hand's requirements and setting availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandsCheck(cmd.OutOrStdout(), dir, args[0])
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "hands", "Directory containing HAND.md bundles")
	return cmd
}

func buildHandsWatchCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch --dir and hot-reload hand definitions on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandsWatch(cmd.Context(), cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "hands", "Directory containing HAND.md bundles")
	return cmd
}
