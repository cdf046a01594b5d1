package browser

import (
	"context"
	"encoding/json"
	"testing"
)

func TestTool_NameDescriptionSchema(t *testing.T) {
	tool := NewTool(NewManager(DefaultLaunchConfig()))
	if tool.Name() != "browser" {
		t.Fatalf("Name() = %q, want browser", tool.Name())
	}
	if tool.Description() == "" {
		t.Fatal("Description() is empty")
	}
	var schema map[string]any
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("Schema() is not valid JSON: %v", err)
	}
}

func TestTool_Execute_InvalidParams(t *testing.T) {
	tool := NewTool(NewManager(DefaultLaunchConfig()))
	result, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for invalid params")
	}
}

func TestTool_Execute_UnknownAction(t *testing.T) {
	tool := NewTool(NewManager(LaunchConfig{MaxSessions: 1, ChromiumPath: "/not/real"}))
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"teleport"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for unknown action")
	}
}

func TestTool_Execute_NavigateWithoutURL(t *testing.T) {
	// sessionFor will fail before url validation is relevant here since no
	// chromium binary exists in the test environment; either failure mode
	// is an acceptable error result.
	tool := NewTool(NewManager(LaunchConfig{MaxSessions: 1, ChromiumPath: "/not/real"}))
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"navigate"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError")
	}
}

func TestTool_Execute_CloseWithoutSession(t *testing.T) {
	tool := NewTool(NewManager(DefaultLaunchConfig()))
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"close"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("close without a session should be a no-op success, got: %+v", result)
	}
}

func TestWithAgentID_RoundTrips(t *testing.T) {
	ctx := WithAgentID(context.Background(), "agent-42")
	if got := agentIDFrom(ctx); got != "agent-42" {
		t.Fatalf("agentIDFrom() = %q, want agent-42", got)
	}
}

func TestAgentIDFrom_DefaultsWhenUnset(t *testing.T) {
	if got := agentIDFrom(context.Background()); got != "default" {
		t.Fatalf("agentIDFrom() = %q, want default", got)
	}
}
