package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfang/openfang/internal/content"
	"github.com/openfang/openfang/internal/net/ssrf"
)

// readyStatePollInterval and readyStatePollMax bound how long a
// navigation-affecting command waits for document.readyState to settle.
const (
	readyStatePollInterval = 200 * time.Millisecond
	readyStatePollMax      = 150 // 200ms * 150 = 30s
)

// clickProbeJS resolves a selector two ways: a direct CSS match, and
// falling back to a case-insensitive text scan over clickable elements,
// taking the first clickable element (a, button, [role=button], input) whose
// text contains the selector.
const clickProbeJS = `(function(sel) {
  var el = document.querySelector(sel);
  if (!el) {
    var needle = sel.toLowerCase();
    var candidates = document.querySelectorAll('a, button, [role="button"], input');
    for (var i = 0; i < candidates.length; i++) {
      var c = candidates[i];
      var text = (c.innerText || c.value || c.textContent || "").toLowerCase();
      if (text.indexOf(needle) !== -1) {
        el = c;
        break;
      }
    }
  }
  if (!el) return false;
  el.click();
  return true;
})(%s)`

const typeProbeJS = `(function(sel, text) {
  var el = document.querySelector(sel);
  if (!el) return false;
  el.value = text;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})(%s, %s)`

const waitSelectorJS = `(function(sel) { return document.querySelector(sel) !== null; })(%s)`

const scrollJS = `(function(dx, dy) { window.scrollBy(dx, dy); return {x: window.scrollX, y: window.scrollY}; })(%d, %d)`

const backJS = `history.back()`

// evalResult unwraps Runtime.evaluate's {result:{value}} envelope, with
// exceptionDetails surfaced as an error.
type evalResult struct {
	Result struct {
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails"`
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (s *Session) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	params := map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}
	raw, err := s.Send(ctx, "Runtime.evaluate", params)
	if err != nil {
		return nil, err
	}

	var res evalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("browser: decode eval result: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("browser: js exception: %s", res.ExceptionDetails.Text)
	}
	return res.Result.Value, nil
}

// waitForReady polls document.readyState until it reaches interactive or
// complete, bounded by readyStatePollMax polls.
func (s *Session) waitForReady(ctx context.Context) error {
	for i := 0; i < readyStatePollMax; i++ {
		raw, err := s.evaluate(ctx, "document.readyState")
		if err == nil {
			var state string
			if jsonErr := json.Unmarshal(raw, &state); jsonErr == nil {
				if state == "interactive" || state == "complete" {
					return nil
				}
			}
		}

		select {
		case <-time.After(readyStatePollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("browser: page did not become ready in time")
}

func (s *Session) pageInfo(ctx context.Context) (PageInfo, error) {
	raw, err := s.evaluate(ctx, `({title: document.title, url: location.href})`)
	if err != nil {
		return PageInfo{}, err
	}
	var info PageInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return PageInfo{}, fmt.Errorf("browser: decode page info: %w", err)
	}
	return info, nil
}

// Navigate loads url, waits for the page to settle, and returns its title,
// final URL, and extracted Markdown content. SSRF gating happens here,
// before any CDP command is issued.
func (s *Session) Navigate(ctx context.Context, url string) (PageInfo, error) {
	if err := ssrf.CheckURL(url); err != nil {
		return PageInfo{}, err
	}

	if _, err := s.Send(ctx, "Page.navigate", map[string]any{"url": url}); err != nil {
		return PageInfo{}, err
	}
	if err := s.waitForReady(ctx); err != nil {
		return PageInfo{}, err
	}

	extracted, err := s.ReadPage(ctx)
	if err != nil {
		return PageInfo{}, err
	}
	return PageInfo{Title: extracted.Title, URL: extracted.URL, Content: extracted.Content}, nil
}

// Click resolves selector to an element (direct CSS match, falling back to
// a case-insensitive text scan) and clicks it.
func (s *Session) Click(ctx context.Context, selector string) (PageInfo, error) {
	expr := fmt.Sprintf(clickProbeJS, jsonQuote(selector))
	raw, err := s.evaluate(ctx, expr)
	if err != nil {
		return PageInfo{}, err
	}
	var clicked bool
	_ = json.Unmarshal(raw, &clicked)
	if !clicked {
		return PageInfo{}, fmt.Errorf("browser: no element matched selector %q", selector)
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return PageInfo{}, ctx.Err()
	}
	if err := s.waitForReady(ctx); err != nil {
		return PageInfo{}, err
	}
	return s.pageInfo(ctx)
}

// Type sets selector's value and fires input/change events.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	expr := fmt.Sprintf(typeProbeJS, jsonQuote(selector), jsonQuote(text))
	raw, err := s.evaluate(ctx, expr)
	if err != nil {
		return err
	}
	var ok bool
	_ = json.Unmarshal(raw, &ok)
	if !ok {
		return fmt.Errorf("browser: no element matched selector %q", selector)
	}
	return nil
}

// Screenshot captures the current page as a base64-encoded PNG.
func (s *Session) Screenshot(ctx context.Context) (ScreenshotResult, error) {
	raw, err := s.Send(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return ScreenshotResult{}, err
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return ScreenshotResult{}, fmt.Errorf("browser: decode screenshot: %w", err)
	}
	info, _ := s.pageInfo(ctx)
	return ScreenshotResult{Base64: out.Data, URL: info.URL}, nil
}

// ReadPage runs the embedded extractor JS and converts the resulting HTML
// to Markdown.
func (s *Session) ReadPage(ctx context.Context) (ExtractResult, error) {
	raw, err := s.evaluate(ctx, extractorJS)
	if err != nil {
		return ExtractResult{}, err
	}
	var res extractorResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ExtractResult{}, fmt.Errorf("browser: decode extractor result: %w", err)
	}
	return ExtractResult{
		Title:   res.Title,
		URL:     res.URL,
		Content: content.ToMarkdown(res.HTML),
	}, nil
}

// Scroll scrolls the page by (dx, dy) and returns the resulting position.
func (s *Session) Scroll(ctx context.Context, dx, dy int) (ScrollResult, error) {
	expr := fmt.Sprintf(scrollJS, dx, dy)
	raw, err := s.evaluate(ctx, expr)
	if err != nil {
		return ScrollResult{}, err
	}
	var out ScrollResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return ScrollResult{}, fmt.Errorf("browser: decode scroll result: %w", err)
	}
	return out, nil
}

// Wait polls for selector to appear, bounded by min(timeoutMs, 30s).
func (s *Session) Wait(ctx context.Context, selector string, timeoutMs int) error {
	bound := time.Duration(timeoutMs) * time.Millisecond
	if timeoutMs <= 0 || bound > 30*time.Second {
		bound = 30 * time.Second
	}
	deadline := time.Now().Add(bound)

	expr := fmt.Sprintf(waitSelectorJS, jsonQuote(selector))
	for {
		raw, err := s.evaluate(ctx, expr)
		if err == nil {
			var present bool
			_ = json.Unmarshal(raw, &present)
			if present {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("browser: selector %q did not appear in time", selector)
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunJs evaluates an arbitrary expression and returns its JSON-encoded
// value.
func (s *Session) RunJs(ctx context.Context, expression string) (json.RawMessage, error) {
	return s.evaluate(ctx, expression)
}

// Back navigates to the previous history entry.
func (s *Session) Back(ctx context.Context) (PageInfo, error) {
	if _, err := s.evaluate(ctx, backJS); err != nil {
		return PageInfo{}, err
	}
	if err := s.waitForReady(ctx); err != nil {
		return PageInfo{}, err
	}
	return s.pageInfo(ctx)
}
