// handlers.go contains the command implementations. Builders in
// commands.go parse flags and delegate here.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfang/openfang/internal/agent"
	"github.com/openfang/openfang/internal/agent/providers"
	"github.com/openfang/openfang/internal/channels/chunk"
	"github.com/openfang/openfang/internal/comms"
	"github.com/openfang/openfang/internal/eventbus"
	"github.com/openfang/openfang/internal/hands"
	"github.com/openfang/openfang/internal/observability"
	"github.com/openfang/openfang/internal/tools/browser"
	"github.com/openfang/openfang/pkg/models"
)

// Chunker bounds for terminal rendering: small enough that replies appear
// promptly, large enough that fenced code blocks usually flush whole.
const (
	chatChunkMin = 64
	chatChunkMax = 2000
)

// joinedPrompt joins positional args into the prompt, falling back to
// stdin when the command line carries none (supports `echo q | openfang chat`).
func joinedPrompt(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// buildProvider resolves the --provider flag into a configured LLM driver,
// reading the API key from the environment.
func buildProvider(name string) (agent.LLMProvider, error) {
	switch name {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: key})
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return providers.NewOpenAIProvider(key), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", name)
	}
}

// runChat executes one agent turn: provider call, tool dispatch, streamed
// rendering through the markdown-aware chunker, and a comms feed entry for
// each lifecycle transition.
func runChat(ctx context.Context, out, errOut io.Writer, opts chatOptions) error {
	if opts.prompt == "" {
		return errors.New("empty prompt")
	}

	provider, err := buildProvider(opts.provider)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	registry := agent.NewToolRegistry()
	if opts.browser {
		mgr := browser.NewManager(browser.DefaultLaunchConfig()).WithPromMetrics(metrics)
		defer mgr.CloseAll()
		registry.Register(browser.NewTool(mgr))
	}

	agentID := uuid.NewString()
	bus := eventbus.New()
	feed := comms.NewFeed(comms.DefaultFeedCapacity)
	sub := bus.Subscribe(ctx)
	defer sub.Close()

	done := make(chan struct{})
	go renderEvents(sub, feed, out, errOut, done)

	bus.PublishComms(commsEvent(comms.EventAgentSpawned, agentID, "chat agent started"))

	runID := uuid.NewString()
	sinks := []agent.EventSink{eventbus.NewAgentSink(bus)}
	if opts.traceFile != "" {
		trace, err := agent.NewTracePluginFile(opts.traceFile, runID)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer trace.Close()
		sinks = append(sinks, agent.NewCallbackSink(trace.OnEvent))
	}

	loop := agent.NewAgenticLoop(provider, registry, &agent.LoopConfig{
		MaxIterations: opts.maxIterations,
		Metrics:       metrics,
		Logger:        slog.Default(),
	})

	userMsg := models.Message{Role: models.RoleUser, Content: models.NewTextContent(opts.prompt)}
	result, runErr := loop.Run(browser.WithAgentID(ctx, agentID), agent.RunRequest{
		RunID:       runID,
		UserMessage: &userMsg,
		System:      opts.system,
		Model:       opts.model,
		Sink:        agent.NewMultiSink(sinks...),
	})

	// The terminate event doubles as the renderer's shutdown sentinel: the
	// bus delivers in publish order, so everything the run emitted renders
	// before the goroutine exits.
	bus.PublishComms(commsEvent(comms.EventAgentTerminated, agentID, "chat agent finished"))
	select {
	case <-done:
	case <-ctx.Done():
		// The subscriber's drain goroutine stops with the context; don't
		// wait on a sentinel that can no longer be delivered.
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(out)
	fmt.Fprintf(errOut, "iterations=%d input_tokens=%d output_tokens=%d\n",
		result.Iterations, result.TotalUsage.InputTokens, result.TotalUsage.OutputTokens)

	if opts.showComms {
		for _, e := range feed.Recent(comms.DefaultFeedCapacity) {
			fmt.Fprintf(errOut, "%s %s %s %s\n",
				e.Timestamp.Format(time.RFC3339), e.Kind, e.SourceID, e.Detail)
		}
	}
	return nil
}

// commsEvent builds a feed entry for a chat-agent lifecycle transition.
func commsEvent(kind comms.EventKind, agentID, detail string) comms.CommsEvent {
	return comms.CommsEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		SourceID:   agentID,
		SourceName: "chat",
		Detail:     detail,
	}
}

// renderEvents drains one bus subscription: model deltas feed the chunker
// and flush to stdout at safe markdown boundaries, tool lifecycle events go
// to stderr, and comms events land in the feed. Exits when it sees the
// agent_terminated sentinel.
func renderEvents(sub *eventbus.Subscription, feed *comms.Feed, out, errOut io.Writer, done chan<- struct{}) {
	defer close(done)

	chunker := chunk.New(chatChunkMin, chatChunkMax)
	defer func() {
		if rest := chunker.FlushRemaining(); rest != "" {
			fmt.Fprint(out, rest)
		}
	}()

	for env := range sub.C {
		switch {
		case env.Agent != nil:
			renderAgentEvent(chunker, *env.Agent, out, errOut)
		case env.Comms != nil:
			feed.Push(*env.Comms)
			if env.Comms.Kind == comms.EventAgentTerminated {
				return
			}
		}
	}
}

func renderAgentEvent(chunker *chunk.Chunker, e models.AgentEvent, out, errOut io.Writer) {
	switch e.Type {
	case models.AgentEventModelDelta:
		if e.Stream != nil {
			chunker.Push(e.Stream.Delta)
			for {
				text, ok := chunker.TryFlush()
				if !ok {
					break
				}
				fmt.Fprint(out, text)
			}
		}
	case models.AgentEventToolStarted:
		if e.Tool != nil {
			fmt.Fprintf(errOut, "[tool %s started]\n", e.Tool.Name)
		}
	case models.AgentEventToolFinished:
		if e.Tool != nil {
			fmt.Fprintf(errOut, "[tool %s finished success=%t elapsed=%s]\n",
				e.Tool.Name, e.Tool.Success, e.Tool.Elapsed)
		}
	case models.AgentEventRunError:
		if e.Error != nil {
			fmt.Fprintf(errOut, "[run error: %s]\n", e.Error.Message)
		}
	}
}

// =============================================================================
// Hands Handlers
// =============================================================================

func loadHands(dir string) (*hands.Registry, error) {
	registry := hands.NewRegistry()
	n, err := registry.LoadBundled(dir)
	if err != nil {
		return nil, fmt.Errorf("load hands from %s: %w", dir, err)
	}
	slog.Debug("hands loaded", "dir", dir, "count", n)
	return registry, nil
}

func runHandsList(out io.Writer, dir string) error {
	registry, err := loadHands(dir)
	if err != nil {
		return err
	}
	defs := registry.ListDefinitions()
	if len(defs) == 0 {
		fmt.Fprintln(out, "no hand definitions found")
		return nil
	}
	for _, def := range defs {
		fmt.Fprintf(out, "%-20s %-24s %s\n", def.ID, def.Name, def.Description)
	}
	return nil
}

func runHandsCheck(out io.Writer, dir, id string) error {
	registry, err := loadHands(dir)
	if err != nil {
		return err
	}

	checks, err := registry.CheckRequirements(id)
	if err != nil {
		return err
	}
	for _, c := range checks {
		status := "missing"
		if c.Satisfied {
			status = "ok"
		}
		fmt.Fprintf(out, "%-8s %-8s %-32s %s\n",
			status, c.Requirement.Kind, c.Requirement.CheckValue, c.Requirement.Description)
	}

	avail, err := registry.CheckSettingsAvailability(id)
	if err != nil {
		return err
	}
	for _, a := range avail {
		status := "unavailable"
		if a.Available {
			status = "available"
		}
		fmt.Fprintf(out, "%-12s %s=%s\n", status, a.SettingKey, a.Value)
	}
	return nil
}

func runHandsWatch(ctx context.Context, out io.Writer, dir string) error {
	registry := hands.NewRegistry()
	watcher := hands.NewWatcher(registry, dir, 250*time.Millisecond, slog.Default())
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Close()

	fmt.Fprintf(out, "watching %s for hand bundle changes (ctrl-c to stop)\n", dir)
	<-ctx.Done()
	return nil
}
