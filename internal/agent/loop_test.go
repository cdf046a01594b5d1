package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openfang/openfang/internal/tools/policy"
	"github.com/openfang/openfang/pkg/models"
)

// loopTestProvider allows control over LLM responses for loop testing.
type loopTestProvider struct {
	responses    [][]CompletionChunk
	currentCall  int32
	completeFunc func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

func (p *loopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	if p.completeFunc != nil {
		return p.completeFunc(ctx, req)
	}

	call := int(atomic.AddInt32(&p.currentCall, 1)) - 1
	ch := make(chan *CompletionChunk, 10)

	go func() {
		defer close(ch)
		if call < len(p.responses) {
			for _, chunk := range p.responses[call] {
				c := chunk
				select {
				case ch <- &c:
				case <-ctx.Done():
					ch <- &CompletionChunk{Error: ctx.Err()}
					return
				}
			}
		}
	}()

	return ch, nil
}

func (p *loopTestProvider) Name() string        { return "loop-test" }
func (p *loopTestProvider) Models() []Model     { return nil }
func (p *loopTestProvider) SupportsTools() bool { return true }

func userTextMessage(text string) *models.Message {
	m := models.Message{Role: models.RoleUser, Content: models.NewTextContent(text)}
	return &m
}

func TestAgenticLoop_DefaultConfig(t *testing.T) {
	config := DefaultLoopConfig()

	if config.MaxIterations != 25 {
		t.Errorf("MaxIterations = %d, want 25", config.MaxIterations)
	}
	if config.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", config.MaxTokens)
	}
	if config.MaxToolCalls != 0 {
		t.Errorf("MaxToolCalls = %d, want 0", config.MaxToolCalls)
	}
	if config.MaxWallTime != 0 {
		t.Errorf("MaxWallTime = %v, want 0", config.MaxWallTime)
	}
	if config.DisableToolEvents {
		t.Error("DisableToolEvents should be false")
	}
	if config.ExecutorConfig == nil {
		t.Error("ExecutorConfig should not be nil")
	}
}

func TestAgenticLoop_NoToolCalls(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "Hello, how can I help?"}, {Done: true}},
		},
	}

	loop := NewAgenticLoop(provider, NewToolRegistry(), DefaultLoopConfig())

	result, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("hi"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Response != "Hello, how can I help?" {
		t.Errorf("Response = %q, want %q", result.Response, "Hello, how can I help?")
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if provider.currentCall != 1 {
		t.Errorf("provider called %d times, want 1", provider.currentCall)
	}
}

func TestAgenticLoop_SingleToolCall(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{
				{ToolCall: &models.ToolCall{
					ID:    "call-1",
					Name:  "echo",
					Input: json.RawMessage(`{"text": "test"}`),
				}},
				{Done: true},
			},
			{
				{Text: "The tool returned: test"},
				{Done: true},
			},
		},
	}

	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "echo",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			var p struct {
				Text string `json:"text"`
			}
			json.Unmarshal(params, &p)
			return &ToolResult{Content: p.Text}, nil
		},
	})

	loop := NewAgenticLoop(provider, registry, DefaultLoopConfig())

	result, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("echo test"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Response != "The tool returned: test" {
		t.Errorf("Response = %q, want %q", result.Response, "The tool returned: test")
	}
	if provider.currentCall != 2 {
		t.Errorf("provider called %d times, want 2", provider.currentCall)
	}

	// History: user, assistant(tool_use), user(tool_result), assistant(text)
	if len(result.History) != 4 {
		t.Fatalf("got %d history messages, want 4", len(result.History))
	}
	if result.History[0].Role != models.RoleUser {
		t.Errorf("history[0].Role = %s, want user", result.History[0].Role)
	}
	if result.History[1].Role != models.RoleAssistant {
		t.Errorf("history[1].Role = %s, want assistant", result.History[1].Role)
	}
	toolResult, ok := result.History[2].Content.Blocks[0].(models.ToolResultBlock)
	if !ok {
		t.Fatalf("history[2] first block is not a ToolResultBlock: %T", result.History[2].Content.Blocks[0])
	}
	if toolResult.Content != "test" {
		t.Errorf("tool result content = %q, want %q", toolResult.Content, "test")
	}
	if toolResult.ToolUseID != "call-1" {
		t.Errorf("tool result ToolUseID = %q, want %q", toolResult.ToolUseID, "call-1")
	}
}

func TestAgenticLoop_ToolErrorStillPaired(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{
				{ToolCall: &models.ToolCall{ID: "call-1", Name: "missing", Input: json.RawMessage(`{}`)}},
				{Done: true},
			},
			{
				{Text: "done"},
				{Done: true},
			},
		},
	}

	loop := NewAgenticLoop(provider, NewToolRegistry(), DefaultLoopConfig())

	result, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("go"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	toolResult, ok := result.History[2].Content.Blocks[0].(models.ToolResultBlock)
	if !ok {
		t.Fatalf("expected a ToolResultBlock, got %T", result.History[2].Content.Blocks[0])
	}
	if !toolResult.IsError {
		t.Error("expected IsError=true for a dispatch failure against an unregistered tool")
	}
	if toolResult.ToolUseID != "call-1" {
		t.Errorf("ToolUseID = %q, want %q", toolResult.ToolUseID, "call-1")
	}
}

func TestAgenticLoop_MaxIterationsReached(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			ch := make(chan *CompletionChunk, 2)
			ch <- &CompletionChunk{ToolCall: &models.ToolCall{
				ID:    "call-infinite",
				Name:  "noop",
				Input: json.RawMessage(`{}`),
			}}
			ch <- &CompletionChunk{Done: true}
			close(ch)
			return ch, nil
		},
	}

	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "noop",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "ok"}, nil
		},
	})

	config := DefaultLoopConfig()
	config.MaxIterations = 3

	loop := NewAgenticLoop(provider, registry, config)

	result, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("loop forever"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
	if !strings.Contains(result.Response, "maximum of 3 iterations") {
		t.Errorf("Response = %q, want a synthesized max-iterations note", result.Response)
	}
}

func TestAgenticLoop_MaxToolCallsStopsDispatch(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{
				{ToolCall: &models.ToolCall{ID: "call-1", Name: "noop", Input: json.RawMessage(`{}`)}},
				{ToolCall: &models.ToolCall{ID: "call-2", Name: "noop", Input: json.RawMessage(`{}`)}},
				{Text: "queued two calls"},
				{Done: true},
			},
		},
	}

	registry := NewToolRegistry()
	var dispatches int32
	registry.Register(&mockTool{
		name: "noop",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			atomic.AddInt32(&dispatches, 1)
			return &ToolResult{Content: "ok"}, nil
		},
	})

	config := DefaultLoopConfig()
	config.MaxToolCalls = 1 // first iteration is always allowed to dispatch

	loop := NewAgenticLoop(provider, registry, config)
	result, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("go"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if atomic.LoadInt32(&dispatches) != 2 {
		t.Errorf("dispatches = %d, want 2", dispatches)
	}
}

func TestAgenticLoop_PolicyFiltersOfferedTools(t *testing.T) {
	var mu sync.Mutex
	var offered []string
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			mu.Lock()
			offered = nil
			for _, tool := range req.Tools {
				offered = append(offered, tool.Name())
			}
			mu.Unlock()

			ch := make(chan *CompletionChunk, 2)
			ch <- &CompletionChunk{Text: "done"}
			ch <- &CompletionChunk{Done: true}
			close(ch)
			return ch, nil
		},
	}

	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "echo"})
	registry.Register(&mockTool{name: "forbidden"})

	config := DefaultLoopConfig()
	config.PolicyResolver = policy.NewResolver()
	config.ToolPolicy = policy.NewPolicy(policy.ProfileFull).WithDeny("forbidden")

	loop := NewAgenticLoop(provider, registry, config)
	if _, err := loop.Run(context.Background(), RunRequest{UserMessage: userTextMessage("hi")}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(offered) != 1 || offered[0] != "echo" {
		t.Errorf("offered tools = %v, want [echo]", offered)
	}
}

func TestAgenticLoop_PropagatesHistory(t *testing.T) {
	var mu sync.Mutex
	var captured []CompletionMessage
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			mu.Lock()
			captured = append([]CompletionMessage(nil), req.Messages...)
			mu.Unlock()
			ch := make(chan *CompletionChunk, 2)
			ch <- &CompletionChunk{Text: "ok"}
			ch <- &CompletionChunk{Done: true}
			close(ch)
			return ch, nil
		},
	}

	history := []models.Message{
		{Role: models.RoleUser, Content: models.NewTextContent("earlier question")},
		{Role: models.RoleAssistant, Content: models.NewTextContent("earlier answer")},
	}

	loop := NewAgenticLoop(provider, NewToolRegistry(), DefaultLoopConfig())
	result, err := loop.Run(context.Background(), RunRequest{
		History:     history,
		UserMessage: userTextMessage("new question"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	got := captured
	mu.Unlock()

	if len(got) != 3 {
		t.Fatalf("got %d messages sent to provider, want 3", len(got))
	}
	if got[0].Content != "earlier question" {
		t.Errorf("got[0].Content = %q", got[0].Content)
	}
	if got[2].Content != "new question" {
		t.Errorf("got[2].Content = %q", got[2].Content)
	}
	if len(result.History) != 4 {
		t.Errorf("result.History len = %d, want 4", len(result.History))
	}
}

func TestAgenticLoop_CancellationPreservesPartialText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			ch := make(chan *CompletionChunk)
			go func() {
				defer close(ch)
				ch <- &CompletionChunk{Text: "partial"}
				cancel()
				<-ctx.Done()
			}()
			return ch, nil
		},
	}

	loop := NewAgenticLoop(provider, NewToolRegistry(), DefaultLoopConfig())
	result, err := loop.Run(ctx, RunRequest{
		UserMessage: userTextMessage("go"),
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Response != "partial" {
		t.Errorf("Response = %q, want %q", result.Response, "partial")
	}
}

func TestAgenticLoop_NoProvider(t *testing.T) {
	loop := NewAgenticLoop(nil, NewToolRegistry(), DefaultLoopConfig())
	_, err := loop.Run(context.Background(), RunRequest{UserMessage: userTextMessage("hi")})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestExtractDirectives(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		wantText   string
		wantReply  string
		wantThread bool
		wantSilent bool
	}{
		{
			name:     "no directives",
			text:     "just a normal reply",
			wantText: "just a normal reply",
		},
		{
			name:      "reply_to marker",
			text:      "hello there\nreply_to:msg-123",
			wantText:  "hello there",
			wantReply: "msg-123",
		},
		{
			name:       "current_thread and silent",
			text:       "quiet update\ncurrent_thread\nsilent",
			wantText:   "quiet update",
			wantThread: true,
			wantSilent: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotText, directives := extractDirectives(tc.text)
			if gotText != tc.wantText {
				t.Errorf("text = %q, want %q", gotText, tc.wantText)
			}
			if directives.ReplyTo != tc.wantReply {
				t.Errorf("ReplyTo = %q, want %q", directives.ReplyTo, tc.wantReply)
			}
			if directives.CurrentThread != tc.wantThread {
				t.Errorf("CurrentThread = %v, want %v", directives.CurrentThread, tc.wantThread)
			}
			if directives.Silent != tc.wantSilent {
				t.Errorf("Silent = %v, want %v", directives.Silent, tc.wantSilent)
			}
		})
	}
}

func TestToCompletionMessages_RoundTripsToolBlocks(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: models.NewTextContent("hi")},
		{Role: models.RoleAssistant, Content: models.NewBlocksContent(
			models.TextBlock{Text: "calling a tool"},
			models.ToolUseBlock{ID: "tc-1", Name: "search", Input: json.RawMessage(`{"q":"x"}`)},
		)},
		{Role: models.RoleUser, Content: models.NewBlocksContent(
			models.ToolResultBlock{ToolUseID: "tc-1", ToolName: "search", Content: "result"},
		)},
	}

	got := toCompletionMessages(history)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[1].Content != "calling a tool" {
		t.Errorf("assistant content = %q", got[1].Content)
	}
	if len(got[1].ToolCalls) != 1 || got[1].ToolCalls[0].ID != "tc-1" {
		t.Errorf("assistant tool calls = %+v", got[1].ToolCalls)
	}
	if len(got[2].ToolResults) != 1 || got[2].ToolResults[0].Content != "result" {
		t.Errorf("tool results = %+v", got[2].ToolResults)
	}
}

func TestAgenticLoop_RunEmitsEvents(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "hi there"}, {Done: true}},
		},
	}

	var mu sync.Mutex
	var types []models.AgentEventType
	sink := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	loop := NewAgenticLoop(provider, NewToolRegistry(), DefaultLoopConfig())
	_, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("hi"),
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []models.AgentEventType{
		models.AgentEventRunStarted,
		models.AgentEventIterStarted,
		models.AgentEventModelDelta,
		models.AgentEventModelCompleted,
		models.AgentEventIterFinished,
		models.AgentEventRunFinished,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d events %v, want %d %v", len(types), types, len(want), want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestAgenticLoop_MaxWallTime(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			ch := make(chan *CompletionChunk)
			go func() {
				defer close(ch)
				time.Sleep(50 * time.Millisecond)
				ch <- &CompletionChunk{Text: "late"}
				ch <- &CompletionChunk{Done: true}
			}()
			return ch, nil
		},
	}

	config := DefaultLoopConfig()
	config.MaxWallTime = 5 * time.Millisecond

	loop := NewAgenticLoop(provider, NewToolRegistry(), config)
	_, err := loop.Run(context.Background(), RunRequest{
		UserMessage: userTextMessage("go"),
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
