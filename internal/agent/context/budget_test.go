package context

import (
	"strings"
	"testing"

	"github.com/openfang/openfang/pkg/models"
)

func TestBudget_DefaultPerResultCap(t *testing.T) {
	b := NewBudget(DefaultContextWindowTokens)
	if got := b.PerResultCap(); got != 120000 {
		t.Errorf("PerResultCap() = %d, want 120000", got)
	}
}

func TestBudget_SingleResultMaxAndHeadroom(t *testing.T) {
	b := NewBudget(200000)
	if got := b.SingleResultMax(); got != 200000 {
		t.Errorf("SingleResultMax() = %d, want 200000", got)
	}
	if got := b.TotalToolHeadroomChars(); got != 300000 {
		t.Errorf("TotalToolHeadroomChars() = %d, want 300000", got)
	}
}

func TestBudget_TruncateToolResultDynamic_KeepsShortContent(t *testing.T) {
	b := NewBudget(DefaultContextWindowTokens)
	short := "short result"
	if got := b.TruncateToolResultDynamic(short); got != short {
		t.Errorf("short content should pass through unchanged, got %q", got)
	}
}

func TestBudget_TruncateToolResultDynamic_TruncatesLongContent(t *testing.T) {
	b := Budget{ContextWindowTokens: 1000, ToolCharsPerToken: 2.0, GeneralCharsPerToken: 4.0}
	// per-result cap = (1000*0.30 -> 300 tokens) * 2 = 600 chars
	long := strings.Repeat("a", 1000)
	got := b.TruncateToolResultDynamic(long)
	if len(got) >= len(long) {
		t.Fatalf("expected truncation, got length %d", len(got))
	}
	if !strings.Contains(got, "[TRUNCATED:") {
		t.Errorf("expected truncation marker, got %q", got[len(got)-80:])
	}
}

func TestBudget_ApplyGuard_NoOpUnderHeadroom(t *testing.T) {
	b := NewBudget(DefaultContextWindowTokens)
	messages := []models.Message{
		{Role: models.RoleUser, Content: models.NewBlocksContent(models.ToolResultBlock{ToolUseID: "t1", Content: "small"})},
	}
	out := b.ApplyGuard(messages)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d", len(out))
	}
	tr := out[0].Content.Blocks[0].(models.ToolResultBlock)
	if tr.Content != "small" {
		t.Errorf("content mutated under headroom: %q", tr.Content)
	}
}

func TestBudget_ApplyGuard_CapsSingleOversizedResult(t *testing.T) {
	b := Budget{ContextWindowTokens: 1000, ToolCharsPerToken: 2.0, GeneralCharsPerToken: 4.0}
	// single_result_max = (1000*0.5 -> 500)*2 = 1000 chars
	huge := strings.Repeat("x", 5000)
	messages := []models.Message{
		{Role: models.RoleUser, Content: models.NewBlocksContent(models.ToolResultBlock{ToolUseID: "t1", Content: huge})},
	}
	out := b.ApplyGuard(messages)
	tr := out[0].Content.Blocks[0].(models.ToolResultBlock)
	if len(tr.Content) >= len(huge) {
		t.Fatalf("expected the guard to cap the oversized result, got length %d", len(tr.Content))
	}
	if !strings.Contains(tr.Content, "[COMPACTED:") {
		t.Errorf("expected compaction marker")
	}
}

func TestBudget_ApplyGuard_CompactsOldestFirst(t *testing.T) {
	b := Budget{ContextWindowTokens: 100, ToolCharsPerToken: 2.0, GeneralCharsPerToken: 4.0}
	// headroom = (100*0.75 -> 75)*2 = 150 chars
	oldest := strings.Repeat("o", 120)
	newest := strings.Repeat("n", 120)
	messages := []models.Message{
		{Role: models.RoleUser, Content: models.NewBlocksContent(models.ToolResultBlock{ToolUseID: "t1", Content: oldest})},
		{Role: models.RoleUser, Content: models.NewBlocksContent(models.ToolResultBlock{ToolUseID: "t2", Content: newest})},
	}
	out := b.ApplyGuard(messages)
	oldTR := out[0].Content.Blocks[0].(models.ToolResultBlock)
	if len(oldTR.Content) >= len(oldest) {
		t.Errorf("expected oldest result to be compacted first")
	}
}

func TestBudget_ApplyGuard_DoesNotMutateInput(t *testing.T) {
	b := Budget{ContextWindowTokens: 100, ToolCharsPerToken: 2.0, GeneralCharsPerToken: 4.0}
	content := strings.Repeat("z", 5000)
	messages := []models.Message{
		{Role: models.RoleUser, Content: models.NewBlocksContent(models.ToolResultBlock{ToolUseID: "t1", Content: content})},
	}
	_ = b.ApplyGuard(messages)
	tr := messages[0].Content.Blocks[0].(models.ToolResultBlock)
	if tr.Content != content {
		t.Errorf("ApplyGuard must not mutate its input slice")
	}
}
