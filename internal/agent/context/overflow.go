package context

import (
	"fmt"

	"github.com/openfang/openfang/pkg/models"
)

// RecoveryStageKind identifies which stage of the overflow recovery pipeline
// resolved (or failed to resolve) an overflowing history.
type RecoveryStageKind string

const (
	// RecoveryNone means the estimate was already under threshold; recovery
	// was never invoked.
	RecoveryNone RecoveryStageKind = "none"

	// RecoveryAutoCompaction dropped oldest messages, keeping the last 10.
	RecoveryAutoCompaction RecoveryStageKind = "auto_compaction"

	// RecoveryOverflowCompaction dropped oldest messages keeping the last 4
	// and prepended a synthesized system note.
	RecoveryOverflowCompaction RecoveryStageKind = "overflow_compaction"

	// RecoveryToolResultTruncation truncated individual ToolResult blocks.
	RecoveryToolResultTruncation RecoveryStageKind = "tool_result_truncation"

	// RecoveryFinalError means every stage ran and the estimate still
	// exceeds the 90% threshold; the caller must surface a user-visible
	// error suggesting a manual reset/compact.
	RecoveryFinalError RecoveryStageKind = "final_error"
)

// RecoveryStage reports which stage resolved an overflow and how much work
// it did, so tests (and logs) can assert on the exact counts.
type RecoveryStage struct {
	Kind       RecoveryStageKind
	Removed    int // messages dropped (stages 1 and 2)
	Truncated  int // ToolResult blocks truncated (stage 3)
	EstBefore  int // token estimate before this stage ran
	EstAfter   int // token estimate after this stage ran
}

const (
	overflowThreshold       = 0.70
	aggressiveThreshold     = 0.90
	autoCompactionKeep      = 10
	aggressiveCompactionKeep = 4
	toolResultOverflowCap   = 2000
)

// EstimateTokens approximates the token count of a message history using the
// chars/4 heuristic applied to every text-bearing block.
func EstimateTokens(messages []models.Message) int {
	chars := 0
	for _, m := range messages {
		chars += m.Content.TextLength()
	}
	return chars / 4
}

// RecoverFromOverflow runs the strictly-ordered 4-stage overflow recovery
// staged recovery pipeline. It is invoked by the agent loop when the
// pre-call token estimate exceeds 70% of the context window. Each stage may
// fully resolve the overflow, in which case later stages are skipped and
// their zero-value counts are omitted from the returned stage.
//
// The input slice is never mutated; RecoverFromOverflow returns a fresh
// slice whenever a stage runs, and the input slice itself when no stage fires.
func (b Budget) RecoverFromOverflow(messages []models.Message) ([]models.Message, RecoveryStage) {
	windowTokens := b.ContextWindowTokens
	if windowTokens <= 0 {
		windowTokens = DefaultContextWindowTokens
	}

	estimate := EstimateTokens(messages)
	if float64(estimate) <= overflowThreshold*float64(windowTokens) {
		return messages, RecoveryStage{Kind: RecoveryNone, EstBefore: estimate, EstAfter: estimate}
	}

	// Stage 1: auto-compaction. Only applies when the estimate sits in
	// (70%, 90%] -- above 90% it cannot possibly resolve the overflow on
	// its own, so stage 2 takes over directly.
	if float64(estimate) <= aggressiveThreshold*float64(windowTokens) {
		compacted, removed := dropOldestKeeping(messages, autoCompactionKeep)
		newEstimate := EstimateTokens(compacted)
		if float64(newEstimate) <= overflowThreshold*float64(windowTokens) {
			return compacted, RecoveryStage{
				Kind: RecoveryAutoCompaction, Removed: removed,
				EstBefore: estimate, EstAfter: newEstimate,
			}
		}
	}

	// Stage 2: aggressive overflow. Drop to the last 4 messages and prepend
	// a synthesized note describing how many were removed.
	aggressive, removed := dropOldestKeeping(messages, aggressiveCompactionKeep)
	note := models.Message{
		Role: models.RoleUser,
		Content: models.NewTextContent(fmt.Sprintf(
			"[System: %d earlier messages were removed due to context overflow. "+
				"The conversation continues from here. Use /compact for smarter summarization.]",
			removed,
		)),
	}
	aggressive = append([]models.Message{note}, aggressive...)
	newEstimate := EstimateTokens(aggressive)
	if float64(newEstimate) <= aggressiveThreshold*float64(windowTokens) {
		return aggressive, RecoveryStage{
			Kind: RecoveryOverflowCompaction, Removed: removed,
			EstBefore: estimate, EstAfter: newEstimate,
		}
	}

	// Stage 3: tool-result truncation. Walk every ToolResult block and
	// truncate any over 2,000 chars.
	truncated, count := truncateOversizedToolResults(aggressive, toolResultOverflowCap)
	newEstimate = EstimateTokens(truncated)
	if float64(newEstimate) <= aggressiveThreshold*float64(windowTokens) {
		return truncated, RecoveryStage{
			Kind: RecoveryToolResultTruncation, Removed: removed, Truncated: count,
			EstBefore: estimate, EstAfter: newEstimate,
		}
	}

	// Stage 4: nothing worked; surface a final, user-visible error.
	return truncated, RecoveryStage{
		Kind: RecoveryFinalError, Removed: removed, Truncated: count,
		EstBefore: estimate, EstAfter: newEstimate,
	}
}

// dropOldestKeeping returns the last `keep` messages (or all of them, if
// there are fewer than `keep`) along with the number dropped.
func dropOldestKeeping(messages []models.Message, keep int) ([]models.Message, int) {
	if len(messages) <= keep {
		out := make([]models.Message, len(messages))
		copy(out, messages)
		return out, 0
	}
	removed := len(messages) - keep
	out := make([]models.Message, keep)
	copy(out, messages[removed:])
	return out, removed
}

// truncateOversizedToolResults truncates every ToolResult block over
// maxChars, snapping to the latest char boundary at or below
// maxChars-80 and appending an overflow-recovery marker. It returns a new
// slice and the number of blocks it touched.
func truncateOversizedToolResults(messages []models.Message, maxChars int) ([]models.Message, int) {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	count := 0

	for i, msg := range out {
		if msg.Content.Blocks == nil {
			continue
		}
		changed := false
		blocks := append([]models.ContentBlock(nil), msg.Content.Blocks...)
		for j, blk := range blocks {
			tr, ok := blk.(models.ToolResultBlock)
			if !ok || len(tr.Content) <= maxChars {
				continue
			}
			before := len(tr.Content)
			keep := maxChars - 80
			if keep < 0 {
				keep = 0
			}
			cut := runeFloor(tr.Content, keep)
			tr.Content = tr.Content[:cut] + fmt.Sprintf(
				"\n\n[OVERFLOW RECOVERY: truncated from %d to %d chars]", before, cut,
			)
			blocks[j] = tr
			changed = true
			count++
		}
		if changed {
			out[i].Content = models.Content{Blocks: blocks}
		}
	}
	return out, count
}
