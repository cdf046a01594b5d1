package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfang/openfang/internal/agent"
	"github.com/openfang/openfang/internal/content"
)

// Tool implements the agent.Tool interface over a per-agent Manager. Every
// Execute call resolves the caller's agent id from context and dispatches
// to that agent's session, launching one on first use.
type Tool struct {
	manager *Manager
}

// NewTool creates a browser tool backed by manager.
func NewTool(manager *Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Name() string { return "browser" }

func (t *Tool) Description() string {
	return "Drive a real Chromium session: navigate, click, type, screenshot, read page content as markdown, scroll, wait for elements, run JavaScript, and go back. One session per agent, reused across calls."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["navigate", "click", "type", "screenshot", "read_page", "scroll", "wait", "run_js", "back", "close"],
				"description": "The browser action to perform"
			},
			"url": {"type": "string", "description": "URL to navigate to (navigate)"},
			"selector": {"type": "string", "description": "CSS selector or visible text (click, type, wait)"},
			"text": {"type": "string", "description": "Text to type (type)"},
			"expression": {"type": "string", "description": "JavaScript expression to evaluate (run_js)"},
			"dx": {"type": "integer", "description": "Horizontal scroll delta in pixels (scroll)"},
			"dy": {"type": "integer", "description": "Vertical scroll delta in pixels (scroll)"},
			"timeout_ms": {"type": "integer", "description": "Timeout in milliseconds, capped at 30000 (wait)"}
		},
		"required": ["action"]
	}`)
}

// agentIDKey is the context key a caller sets to identify which agent's
// browser session an Execute call belongs to.
type agentIDKey struct{}

// WithAgentID attaches an agent id to ctx for a subsequent Execute call.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey{}, agentID)
}

func agentIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(agentIDKey{}).(string); ok && id != "" {
		return id
	}
	return "default"
}

type browserParams struct {
	Action     string `json:"action"`
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	Text       string `json:"text"`
	Expression string `json:"expression"`
	DX         int    `json:"dx"`
	DY         int    `json:"dy"`
	TimeoutMs  int    `json:"timeout_ms"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p browserParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	agentID := agentIDFrom(ctx)

	if p.Action == "close" {
		if err := t.manager.CloseSession(agentID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: "session closed"}, nil
	}

	session, err := t.manager.sessionFor(agentID)
	if err != nil {
		return errResult(err.Error()), nil
	}

	switch p.Action {
	case "navigate":
		if p.URL == "" {
			return errResult("url is required for navigate"), nil
		}
		info, err := session.Navigate(ctx, p.URL)
		if err != nil {
			return errResult(err.Error()), nil
		}
		wrapped := content.WrapUntrusted(info.URL, info.Content)
		return &agent.ToolResult{Content: fmt.Sprintf("# %s\n%s", info.Title, wrapped)}, nil

	case "click":
		if p.Selector == "" {
			return errResult("selector is required for click"), nil
		}
		info, err := session.Click(ctx, p.Selector)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("clicked %q; now at %s (%s)", p.Selector, info.URL, info.Title)}, nil

	case "type":
		if p.Selector == "" {
			return errResult("selector is required for type"), nil
		}
		if err := session.Type(ctx, p.Selector, p.Text); err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("typed into %q", p.Selector)}, nil

	case "screenshot":
		shot, err := session.Screenshot(ctx)
		if err != nil {
			return errResult(err.Error()), nil
		}
		data, decodeErr := base64.StdEncoding.DecodeString(shot.Base64)
		result := &agent.ToolResult{Content: fmt.Sprintf("screenshot captured for %s", shot.URL)}
		if decodeErr == nil {
			result.Artifacts = []agent.Artifact{{
				ID:       "screenshot",
				Type:     "screenshot",
				MimeType: "image/png",
				Data:     data,
				URL:      shot.URL,
			}}
		}
		return result, nil

	case "read_page":
		res, err := session.ReadPage(ctx)
		if err != nil {
			return errResult(err.Error()), nil
		}
		wrapped := content.WrapUntrusted(res.URL, res.Content)
		return &agent.ToolResult{Content: fmt.Sprintf("# %s\n%s", res.Title, wrapped)}, nil

	case "scroll":
		pos, err := session.Scroll(ctx, p.DX, p.DY)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("scrolled to (%d, %d)", pos.X, pos.Y)}, nil

	case "wait":
		if p.Selector == "" {
			return errResult("selector is required for wait"), nil
		}
		if err := session.Wait(ctx, p.Selector, p.TimeoutMs); err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("selector %q appeared", p.Selector)}, nil

	case "run_js":
		if p.Expression == "" {
			return errResult("expression is required for run_js"), nil
		}
		value, err := session.RunJs(ctx, p.Expression)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: string(value)}, nil

	case "back":
		info, err := session.Back(ctx)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("back to %s (%s)", info.URL, info.Title)}, nil

	default:
		return errResult(fmt.Sprintf("unknown action: %s", p.Action)), nil
	}
}

func errResult(msg string) *agent.ToolResult {
	return &agent.ToolResult{Content: msg, IsError: true}
}
