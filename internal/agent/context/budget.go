// Package context implements the per-call token/char budget and the
// pre-call guard that keeps tool results from overrunning the model's
// context window.
package context

import (
	"fmt"
	"strings"

	"github.com/openfang/openfang/pkg/models"
)

// Budget derives character caps for tool results from a model's context
// window. Tool result text is denser than prose, so it is charged at a
// separate chars-per-token rate than everything else.
type Budget struct {
	ContextWindowTokens int
	ToolCharsPerToken   float64
	GeneralCharsPerToken float64
}

// DefaultContextWindowTokens is used when a provider does not report its
// own window size.
const DefaultContextWindowTokens = 200000

// NewBudget returns a Budget for the given context window using the
// reference chars-per-token ratios.
func NewBudget(contextWindowTokens int) Budget {
	if contextWindowTokens <= 0 {
		contextWindowTokens = DefaultContextWindowTokens
	}
	return Budget{
		ContextWindowTokens:  contextWindowTokens,
		ToolCharsPerToken:    2.0,
		GeneralCharsPerToken: 4.0,
	}
}

// PerResultCap is the character ceiling for a single newly-produced tool
// result: 30% of the window, converted to characters.
func (b Budget) PerResultCap() int {
	tokens := int(float64(b.ContextWindowTokens) * 0.30)
	return int(float64(tokens) * b.ToolCharsPerToken)
}

// SingleResultMax is the character ceiling the guard enforces on any one
// existing tool result: 50% of the window.
func (b Budget) SingleResultMax() int {
	tokens := int(float64(b.ContextWindowTokens) * 0.50)
	return int(float64(tokens) * b.ToolCharsPerToken)
}

// TotalToolHeadroomChars is the aggregate character ceiling across every
// tool result in history: 75% of the window.
func (b Budget) TotalToolHeadroomChars() int {
	tokens := int(float64(b.ContextWindowTokens) * 0.75)
	return int(float64(tokens) * b.ToolCharsPerToken)
}

// TruncateToolResultDynamic applies Layer 1 truncation to a single tool
// result as it is produced, capping it at PerResultCap.
func (b Budget) TruncateToolResultDynamic(content string) string {
	cap := b.PerResultCap()
	if len(content) <= cap {
		return content
	}
	kept := safeTruncateIndex(content, cap, 200, 100)
	marker := fmt.Sprintf(
		"\n\n[TRUNCATED: result was %d chars, showing first %d (budget: 30%% of %dK context window)]",
		len(content), kept, b.ContextWindowTokens/1000,
	)
	return content[:kept] + marker
}

// safeTruncateIndex finds a truncation point at or below cap, preferring
// the last newline within lookback chars of cap, falling back to
// cap-fallback, and always landing on a UTF-8 rune boundary.
func safeTruncateIndex(s string, cap, lookback, fallback int) int {
	if cap > len(s) {
		cap = len(s)
	}
	searchStart := cap - lookback
	if searchStart < 0 {
		searchStart = 0
	}
	window := s[searchStart:cap]
	if idx := strings.LastIndexByte(window, '\n'); idx >= 0 {
		return runeFloor(s, searchStart+idx)
	}
	fallbackIdx := cap - fallback
	if fallbackIdx < 0 {
		fallbackIdx = 0
	}
	return runeFloor(s, fallbackIdx)
}

func runeFloor(s string, idx int) int {
	if idx <= 0 {
		return 0
	}
	if idx >= len(s) {
		return len(s)
	}
	for idx > 0 && isUTF8Continuation(s[idx]) {
		idx--
	}
	return idx
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// ApplyGuard is Layer 2: a pre-call scan over history that first caps any
// tool result longer than SingleResultMax, then compacts the oldest tool
// results until the total stays under TotalToolHeadroomChars. The input is
// left untouched: it is returned as-is when nothing needs changing, and a
// modified copy is returned otherwise.
func (b Budget) ApplyGuard(messages []models.Message) []models.Message {
	total := sumToolResultChars(messages)
	headroom := b.TotalToolHeadroomChars()
	singleMax := b.SingleResultMax()
	oversized := false
	for _, msg := range messages {
		for _, blk := range msg.Content.Blocks {
			if tr, ok := blk.(models.ToolResultBlock); ok && len(tr.Content) > singleMax {
				oversized = true
			}
		}
	}
	if total <= headroom && !oversized {
		return messages
	}

	out := make([]models.Message, len(messages))
	copy(out, messages)

	for i, msg := range out {
		if msg.Content.Blocks == nil {
			continue
		}
		changed := false
		blocks := append([]models.ContentBlock(nil), msg.Content.Blocks...)
		for j, blk := range blocks {
			tr, ok := blk.(models.ToolResultBlock)
			if !ok || len(tr.Content) <= singleMax {
				continue
			}
			before := len(tr.Content)
			kept := safeTruncateIndex(tr.Content, singleMax, 200, 100)
			tr.Content = tr.Content[:kept] + fmt.Sprintf(
				"\n\n[COMPACTED: %d → %d chars by context guard]", before, kept,
			)
			blocks[j] = tr
			changed = true
		}
		if changed {
			out[i].Content = models.Content{Blocks: blocks}
		}
	}

	total = sumToolResultChars(out)
	if total <= headroom {
		return out
	}

	for i := range out {
		if total <= headroom {
			break
		}
		msg := out[i]
		if msg.Content.Blocks == nil {
			continue
		}
		changed := false
		blocks := append([]models.ContentBlock(nil), msg.Content.Blocks...)
		for j, blk := range blocks {
			if total <= headroom {
				break
			}
			tr, ok := blk.(models.ToolResultBlock)
			if !ok {
				continue
			}
			newContent, shrunk := truncateTo(tr.Content, 2000)
			if !shrunk {
				continue
			}
			total -= len(tr.Content) - len(newContent)
			tr.Content = newContent
			blocks[j] = tr
			changed = true
		}
		if changed {
			out[i].Content = models.Content{Blocks: blocks}
		}
	}

	return out
}

// truncateTo compacts content to at most maxChars, snapping to the last
// newline within [keep-100, keep) where keep = maxChars-80, and appending
// a compaction marker. Returns the original content and false if it was
// already within bounds.
func truncateTo(content string, maxChars int) (string, bool) {
	if len(content) <= maxChars {
		return content, false
	}
	keep := maxChars - 80
	if keep < 0 {
		keep = 0
	}
	searchStart := keep - 100
	if searchStart < 0 {
		searchStart = 0
	}
	cut := keep
	if searchStart < keep && keep <= len(content) {
		window := content[searchStart:keep]
		if idx := strings.LastIndexByte(window, '\n'); idx >= 0 {
			cut = searchStart + idx
		}
	}
	cut = runeFloor(content, cut)
	before := len(content)
	marker := fmt.Sprintf("\n\n[COMPACTED: %d → %d chars by context guard]", before, cut)
	return content[:cut] + marker, true
}

func sumToolResultChars(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		for _, blk := range msg.Content.Blocks {
			if tr, ok := blk.(models.ToolResultBlock); ok {
				total += len(tr.Content)
			}
		}
	}
	return total
}
