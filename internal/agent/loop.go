package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	agentctx "github.com/openfang/openfang/internal/agent/context"
	"github.com/openfang/openfang/internal/observability"
	"github.com/openfang/openfang/internal/tools/policy"
	"github.com/openfang/openfang/pkg/models"
)

// LoopConfig configures the agentic loop: iteration/tool-call bounds, the
// context budget it enforces before every driver call, and the ancillary
// services (tool event persistence, result redaction) it wires through to
// each iteration.
type LoopConfig struct {
	// MaxIterations bounds the number of driver calls in a single Run.
	// Default: 25.
	MaxIterations int

	// MaxTokens is the default max_tokens sent on each CompletionRequest
	// when the caller doesn't override it.
	// Default: 4096.
	MaxTokens int

	// MaxToolCalls limits the total number of tool calls dispatched across
	// an entire run (0 = unlimited). A turn's tool calls are always
	// dispatched together; the run ends once the running total reaches the
	// limit.
	MaxToolCalls int

	// MaxWallTime bounds the total run duration, including in-flight driver
	// calls and tool runs (0 = no limit).
	MaxWallTime time.Duration

	// ContextWindowTokens seeds the Budget used for the Context Guard and
	// Overflow Recovery. Default: agentctx.DefaultContextWindowTokens.
	ContextWindowTokens int

	// ExecutorConfig configures the tool executor.
	ExecutorConfig *ExecutorConfig

	// DisableToolEvents suppresses tool.* event emission while processing.
	DisableToolEvents bool

	// ToolResultGuard redacts tool results before they are appended to
	// history or persisted.
	ToolResultGuard ToolResultGuard

	// ToolEvents persists tool call/result pairs when set.
	ToolEvents ToolEventStore

	// PolicyResolver and ToolPolicy gate which registry tools are offered
	// to the driver. Nil disables filtering.
	PolicyResolver *policy.Resolver
	ToolPolicy     *policy.Policy

	// Metrics exports driver-call and tool-call outcomes to Prometheus
	// when set.
	Metrics *observability.Metrics

	// Logger receives loop diagnostics, including recovered overflow stages.
	Logger *slog.Logger
}

// DefaultLoopConfig returns the baseline loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations:       25,
		MaxTokens:           4096,
		ContextWindowTokens: agentctx.DefaultContextWindowTokens,
		ExecutorConfig:      DefaultExecutorConfig(),
		Logger:              slog.Default(),
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ContextWindowTokens <= 0 {
		cfg.ContextWindowTokens = defaults.ContextWindowTokens
	}
	if cfg.ExecutorConfig == nil {
		cfg.ExecutorConfig = defaults.ExecutorConfig
	}
	if cfg.MaxToolCalls < 0 {
		cfg.MaxToolCalls = 0
	}
	if cfg.MaxWallTime < 0 {
		cfg.MaxWallTime = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	return &cfg
}

// AgenticLoop drives a single agent's multi-turn conversation with an LLM:
// driver call, tool dispatch, history append, repeated until a non-tool
// stop reason or a safety bound fires.
type AgenticLoop struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *Executor
	config   *LoopConfig
	budget   agentctx.Budget
}

// NewAgenticLoop wires a provider and tool registry into a runnable loop.
func NewAgenticLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig) *AgenticLoop {
	cfg := sanitizeLoopConfig(config)
	executor := NewExecutor(registry, cfg.ExecutorConfig)
	if cfg.Metrics != nil {
		executor = executor.WithPromMetrics(cfg.Metrics)
	}
	return &AgenticLoop{
		provider: provider,
		registry: registry,
		executor: executor,
		config:   cfg,
		budget:   agentctx.NewBudget(cfg.ContextWindowTokens),
	}
}

// RunRequest is the input to a single Run call.
type RunRequest struct {
	// RunID identifies the run for event correlation. Generated if empty.
	RunID string

	// History is the conversation so far (not including UserMessage).
	History []models.Message

	// UserMessage is appended to History as the first iteration's input.
	// May be nil when resuming a run whose last message is already a
	// pending tool-result turn.
	UserMessage *models.Message

	// System is the system prompt hoisted into the driver request.
	System string

	// Model selects which model the provider should use.
	Model string

	// MaxTokens overrides LoopConfig.MaxTokens for this run when positive.
	MaxTokens int

	// Tools lists the tools available this run. Defaults to every tool in
	// the registry when nil.
	Tools []Tool

	// Sink receives AgentEvents emitted during the run. NopSink when nil.
	Sink EventSink
}

// AgentLoopResult is what Run returns once the loop stops.
type AgentLoopResult struct {
	// Response is the final assistant text, with reply directives stripped.
	Response string

	// History is the full message history including every turn appended
	// during this run.
	History []models.Message

	// TotalUsage sums input/output tokens across every driver call.
	TotalUsage models.TokenUsage

	// Iterations counts completed driver calls.
	Iterations int

	// CostUSD is populated by callers that know their provider's pricing;
	// the loop itself has no pricing table.
	CostUSD *float64

	// Silent mirrors Directives.Silent for convenient delivery gating.
	Silent bool

	// Directives are the reply_to/current_thread/silent markers stripped
	// from Response.
	Directives models.ReplyDirectives
}

// maxIterationsNoteFmt is the synthesized assistant message appended when
// the loop hits its iteration cap without reaching a non-tool stop reason.
const maxIterationsNoteFmt = "[Agent loop reached the maximum of %d iterations without completing the task. Stopping here; ask me to continue if more work is needed.]"

// Run executes the agent loop until a non-tool stop reason, the iteration
// cap, or context cancellation.
func (l *AgenticLoop) Run(ctx context.Context, req RunRequest) (*AgentLoopResult, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	emitter := NewEventEmitter(runID, req.Sink)

	history := make([]models.Message, len(req.History))
	copy(history, req.History)
	if req.UserMessage != nil {
		history = append(history, *req.UserMessage)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = l.config.MaxTokens
	}

	tools := req.Tools
	if tools == nil && l.registry != nil {
		tools = l.registry.AsLLMTools()
	}
	tools = filterToolsByPolicy(l.config.PolicyResolver, l.config.ToolPolicy, tools)

	var deadline <-chan time.Time
	if l.config.MaxWallTime > 0 {
		timer := time.NewTimer(l.config.MaxWallTime)
		defer timer.Stop()
		deadline = timer.C
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.MaxWallTime)
		defer cancel()
	}

	emitter.RunStarted(ctx)

	var totalUsage models.TokenUsage
	var toolCallsDispatched int
	var finalText string
	iterations := 0

	for iterations < l.config.MaxIterations {
		select {
		case <-ctx.Done():
			emitter.RunCancelled(ctx)
			return l.partialResult(history, totalUsage, iterations, finalText), ctx.Err()
		default:
		}
		if deadline != nil {
			select {
			case <-deadline:
				emitter.RunTimedOut(ctx, l.config.MaxWallTime)
				return l.partialResult(history, totalUsage, iterations, finalText), fmt.Errorf("agent loop: %w", context.DeadlineExceeded)
			default:
			}
		}

		emitter.SetIter(iterations)
		emitter.IterStarted(ctx)

		history = l.budget.ApplyGuard(history)
		history = l.recoverOverflow(ctx, history)

		creq := &CompletionRequest{
			Model:     req.Model,
			System:    req.System,
			Messages:  toCompletionMessages(history),
			Tools:     tools,
			MaxTokens: maxTokens,
		}

		callStart := time.Now()
		chunks, err := l.provider.Complete(ctx, creq)
		if err != nil {
			l.recordDriverCall(callStart, err)
			emitter.RunError(ctx, err, false)
			return nil, &LoopError{Phase: PhaseStream, Iteration: iterations, Cause: err}
		}

		assistantText, thinkingText, toolCalls, usage, drainErr := drainChunks(ctx, emitter, chunks)
		l.recordDriverCall(callStart, drainErr)
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens
		emitter.ModelCompleted(ctx, l.provider.Name(), req.Model, usage.InputTokens, usage.OutputTokens)

		var blocks []models.ContentBlock
		if thinkingText != "" {
			blocks = append(blocks, models.ThinkingBlock{Thinking: thinkingText})
		}
		if assistantText != "" {
			blocks = append(blocks, models.TextBlock{Text: assistantText})
		}
		for _, tc := range toolCalls {
			blocks = append(blocks, models.ToolUseBlock{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		if len(blocks) > 0 {
			history = append(history, models.Message{Role: models.RoleAssistant, Content: models.NewBlocksContent(blocks...)})
		}
		iterations++
		emitter.IterFinished(ctx)

		if drainErr != nil {
			if errors.Is(drainErr, context.Canceled) || errors.Is(drainErr, context.DeadlineExceeded) {
				emitter.RunCancelled(ctx)
				return l.partialResult(history, totalUsage, iterations, assistantText), drainErr
			}
			emitter.RunError(ctx, drainErr, false)
			return nil, &LoopError{Phase: PhaseStream, Iteration: iterations, Cause: drainErr}
		}

		if len(toolCalls) == 0 {
			finalText = assistantText
			break
		}

		if l.config.MaxToolCalls > 0 && toolCallsDispatched >= l.config.MaxToolCalls {
			finalText = assistantText
			break
		}

		select {
		case <-ctx.Done():
			emitter.RunCancelled(ctx)
			return l.partialResult(history, totalUsage, iterations, assistantText), ctx.Err()
		default:
		}

		resultBlocks := l.executeTools(ctx, emitter, runID, iterations, toolCalls)
		toolCallsDispatched += len(toolCalls)
		history = append(history, models.Message{Role: models.RoleUser, Content: models.NewBlocksContent(resultBlocks...)})

		if l.config.MaxToolCalls > 0 && toolCallsDispatched >= l.config.MaxToolCalls {
			finalText = assistantText
			break
		}
	}

	if finalText == "" && iterations >= l.config.MaxIterations {
		finalText = fmt.Sprintf(maxIterationsNoteFmt, l.config.MaxIterations)
		history = append(history, models.Message{Role: models.RoleAssistant, Content: models.NewTextContent(finalText)})
	}

	cleanText, directives := extractDirectives(finalText)

	emitter.RunFinished(ctx, &models.RunStats{
		RunID:        runID,
		Iters:        iterations,
		InputTokens:  totalUsage.InputTokens,
		OutputTokens: totalUsage.OutputTokens,
	})

	return &AgentLoopResult{
		Response:   cleanText,
		History:    history,
		TotalUsage: totalUsage,
		Iterations: iterations,
		Silent:     directives.Silent,
		Directives: directives,
	}, nil
}

// partialResult builds the result returned on cancellation/timeout: whatever
// text had streamed in plus the iterations actually completed.
func (l *AgenticLoop) partialResult(history []models.Message, usage models.TokenUsage, iterations int, partialText string) *AgentLoopResult {
	cleanText, directives := extractDirectives(partialText)
	return &AgentLoopResult{
		Response:   cleanText,
		History:    history,
		TotalUsage: usage,
		Iterations: iterations,
		Silent:     directives.Silent,
		Directives: directives,
	}
}

// recordDriverCall exports one driver call's outcome and latency when
// metrics are configured.
func (l *AgenticLoop) recordDriverCall(start time.Time, err error) {
	if l.config.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	l.config.Metrics.RecordDriverCall(l.provider.Name(), outcome, time.Since(start).Seconds())
}

// recoverOverflow estimates the current history against the budget's
// context window and, if over the 70% trigger, runs the overflow recovery
// pipeline, logging the stage that resolved it (or the final error).
func (l *AgenticLoop) recoverOverflow(ctx context.Context, history []models.Message) []models.Message {
	estimate := agentctx.EstimateTokens(history)
	threshold := 0.70 * float64(l.budget.ContextWindowTokens)
	if float64(estimate) <= threshold {
		return history
	}

	recovered, stage := l.budget.RecoverFromOverflow(history)
	logger := l.config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch stage.Kind {
	case agentctx.RecoveryFinalError:
		logger.WarnContext(ctx, "context overflow recovery exhausted all stages",
			"est_before", stage.EstBefore, "est_after", stage.EstAfter)
	case agentctx.RecoveryNone:
	default:
		logger.DebugContext(ctx, "context overflow recovered",
			"stage", string(stage.Kind), "removed", stage.Removed, "truncated", stage.Truncated,
			"est_before", stage.EstBefore, "est_after", stage.EstAfter)
	}
	return recovered
}

// drainChunks reads a provider's streaming channel to completion,
// accumulating text, thinking, tool calls, and terminal usage. It forwards
// ModelDelta events to the emitter as text arrives. If ctx is done when the
// stream ends, ctx.Err() is returned alongside the partial text.
func drainChunks(ctx context.Context, emitter *EventEmitter, chunks <-chan *CompletionChunk) (text, thinking string, toolCalls []models.ToolCall, usage models.TokenUsage, err error) {
	var textBuf, thinkingBuf strings.Builder
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				err = ctx.Err()
				text, thinking = textBuf.String(), thinkingBuf.String()
				return
			}
			if chunk.Error != nil {
				err = chunk.Error
				text, thinking = textBuf.String(), thinkingBuf.String()
				return
			}
			if chunk.Text != "" {
				textBuf.WriteString(chunk.Text)
				emitter.ModelDelta(ctx, chunk.Text)
			}
			if chunk.Thinking != "" {
				thinkingBuf.WriteString(chunk.Thinking)
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
			if chunk.Done {
				usage = models.TokenUsage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
			}
		case <-ctx.Done():
			err = ctx.Err()
			text, thinking = textBuf.String(), thinkingBuf.String()
			return
		}
	}
}

// executeTools dispatches every ToolUse in order, applies per-result
// truncation and redaction, and returns one ToolResultBlock per call in the
// same order — even calls that failed to dispatch get a paired result, so
// history never carries an unanswered ToolUse.
func (l *AgenticLoop) executeTools(ctx context.Context, emitter *EventEmitter, runID string, iteration int, calls []models.ToolCall) []models.ContentBlock {
	if !l.config.DisableToolEvents {
		for _, tc := range calls {
			emitter.ToolStarted(ctx, tc.ID, tc.Name, tc.Input)
		}
	}

	execResults := make([]*ExecutionResult, len(calls))
	for i, tc := range calls {
		execResults[i] = l.executor.Execute(ctx, tc)
	}

	results := make([]models.ToolResult, len(calls))
	for i, tc := range calls {
		er := execResults[i]
		var content string
		var isError bool
		var attachments []models.Attachment
		if er.Error != nil {
			content = er.Error.Error()
			isError = true
		} else if er.Result != nil {
			content = er.Result.Content
			isError = er.Result.IsError
			attachments = artifactsToAttachments(er.Result.Artifacts)
		}
		content = l.budget.TruncateToolResultDynamic(content)
		results[i] = models.ToolResult{ToolCallID: tc.ID, Content: content, IsError: isError, Attachments: attachments}

		if !l.config.DisableToolEvents {
			emitter.ToolFinished(ctx, tc.ID, tc.Name, !isError, []byte(content), er.Duration)
		}
	}

	results = guardToolResults(l.config.ToolResultGuard, calls, results, l.config.PolicyResolver)

	if l.config.ToolEvents != nil {
		messageID := fmt.Sprintf("%s-iter-%d", runID, iteration)
		for i, tc := range calls {
			call := tc
			result := results[i]
			if err := l.config.ToolEvents.AddToolCall(ctx, runID, messageID, &call); err != nil {
				l.config.Logger.WarnContext(ctx, "failed to persist tool call event", "error", err)
			}
			if err := l.config.ToolEvents.AddToolResult(ctx, runID, messageID, &call, &result); err != nil {
				l.config.Logger.WarnContext(ctx, "failed to persist tool result event", "error", err)
			}
		}
	}

	blocks := make([]models.ContentBlock, len(calls))
	for i, tc := range calls {
		blocks[i] = models.ToolResultBlock{
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			Content:   results[i].Content,
			IsError:   results[i].IsError,
		}
	}
	return blocks
}

// artifactsToAttachments converts tool-produced Artifacts into the flat
// Attachment shape used on persisted ToolResults.
func artifactsToAttachments(artifacts []Artifact) []models.Attachment {
	if len(artifacts) == 0 {
		return nil
	}
	out := make([]models.Attachment, len(artifacts))
	for i, a := range artifacts {
		out[i] = models.Attachment{
			ID:       a.ID,
			Type:     a.Type,
			MimeType: a.MimeType,
			Filename: a.Filename,
			Data:     a.Data,
			URL:      a.URL,
		}
	}
	return out
}

// toCompletionMessages flattens block-based history into the provider
// layer's CompletionMessage shape. ThinkingBlocks are never forwarded —
// they are internal reasoning, not conversation content.
func toCompletionMessages(history []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		cm := CompletionMessage{Role: string(msg.Role)}
		if msg.Content.Text != nil {
			cm.Content = *msg.Content.Text
			out = append(out, cm)
			continue
		}
		var text strings.Builder
		for _, blk := range msg.Content.Blocks {
			switch b := blk.(type) {
			case models.TextBlock:
				text.WriteString(b.Text)
			case models.ToolUseBlock:
				cm.ToolCalls = append(cm.ToolCalls, models.ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
			case models.ToolResultBlock:
				cm.ToolResults = append(cm.ToolResults, models.ToolResult{
					ToolCallID: b.ToolUseID,
					Content:    b.Content,
					IsError:    b.IsError,
				})
			case models.ImageBlock:
				if data, err := base64.StdEncoding.DecodeString(b.Data); err == nil {
					cm.Attachments = append(cm.Attachments, models.Attachment{Type: "image", MimeType: b.MediaType, Data: data})
				}
			case models.ThinkingBlock, models.UnknownBlock:
				// not forwarded
			}
		}
		cm.Content = text.String()
		out = append(out, cm)
	}
	return out
}

// extractDirectives scans assistant text line-by-line for reply_to/
// current_thread/silent markers, stripping them from the returned text and
// recording them on ReplyDirectives.
func extractDirectives(text string) (string, models.ReplyDirectives) {
	var directives models.ReplyDirectives
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "reply_to:"):
			directives.ReplyTo = strings.TrimSpace(strings.TrimPrefix(trimmed, "reply_to:"))
		case trimmed == "current_thread":
			directives.CurrentThread = true
		case trimmed == "silent":
			directives.Silent = true
		default:
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), directives
}
