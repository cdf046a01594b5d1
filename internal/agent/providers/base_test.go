package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfang/openfang/internal/agent"
)

func TestHoistSystem(t *testing.T) {
	messages := []agent.CompletionMessage{
		{Role: "system", Content: "from history"},
		{Role: "user", Content: "hi"},
	}

	system, rest := hoistSystem("", messages)
	if system != "from history" {
		t.Errorf("system = %q, want %q", system, "from history")
	}
	if len(rest) != 1 || rest[0].Role != "user" {
		t.Errorf("rest = %+v, want the user message only", rest)
	}

	system, rest = hoistSystem("explicit", messages)
	if system != "explicit" {
		t.Errorf("explicit system should win, got %q", system)
	}
	if len(rest) != 2 {
		t.Errorf("messages must be untouched when the explicit field is set")
	}

	system, rest = hoistSystem("", messages[1:])
	if system != "" || len(rest) != 1 {
		t.Errorf("no system anywhere: got system=%q rest=%d", system, len(rest))
	}
}

func TestBaseProvider_RetrySucceedsAfterTransientFailures(t *testing.T) {
	base := NewBaseProvider("test", 3, time.Millisecond)

	attempts := 0
	err := base.Retry(context.Background(), func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestBaseProvider_RetryExhaustsAfterInitialPlusMaxRetries(t *testing.T) {
	base := NewBaseProvider("test", 3, time.Millisecond)

	attempts := 0
	wantErr := errors.New("still failing")
	err := base.Retry(context.Background(), func(error) bool { return true }, func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry() error = %v, want %v", err, wantErr)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (one initial try plus three retries)", attempts)
	}
}

func TestBaseProvider_RetryStopsOnNonRetryable(t *testing.T) {
	base := NewBaseProvider("test", 3, time.Millisecond)

	attempts := 0
	err := base.Retry(context.Background(), func(error) bool { return false }, func() error {
		attempts++
		return errors.New("fatal")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBaseProvider_RetryHonorsContextCancellation(t *testing.T) {
	base := NewBaseProvider("test", 3, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := base.Retry(ctx, func(error) bool { return true }, func() error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
}
