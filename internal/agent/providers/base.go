package providers

import (
	"context"
	"time"

	"github.com/openfang/openfang/internal/agent"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// hoistSystem resolves vendor system placement: an explicit system field
// wins; otherwise a leading system-role message is hoisted out of the
// message list.
func hoistSystem(system string, messages []agent.CompletionMessage) (string, []agent.CompletionMessage) {
	if system != "" {
		return system, messages
	}
	if len(messages) > 0 && messages[0].Role == "system" {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}

// Retry executes op once plus up to maxRetries retries with linear backoff
// (retryDelay, 2·retryDelay, 3·retryDelay, …) while isRetryable returns
// true. The first non-retryable error is returned immediately.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay * time.Duration(attempt)):
			}
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
		}
	}
	return lastErr
}
