package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // maximum number of retry attempts
	InitialInterval time.Duration // initial backoff interval
	MaxInterval     time.Duration // maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching because Genkit and provider SDKs do not expose
// typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// generateWithRetry calls the model with exponential backoff retry. Each
// attempt is rate limited; non-retryable errors fail immediately.
func (o *Orchestrator) generateWithRetry(ctx context.Context, messages []*ai.Message, tools []ai.ToolRef) (*ai.ModelResponse, error) {
	var lastErr error
	delay := o.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= o.retryConfig.MaxRetries; attempt++ {
		if o.rateLimiter != nil {
			if err := o.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := o.llm.Generate(ctx, messages, tools)
		if err == nil {
			o.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", elapsedSince(start))
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("model call: %w", err)
		}
		if attempt == o.retryConfig.MaxRetries {
			break
		}

		o.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("model call after %d retries (elapsed: %s): %w",
		o.retryConfig.MaxRetries, elapsedSince(start), lastErr)
}
