package provider

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Responder produces a generated answer when the knowledge base has none.
// grounding carries the best local near-miss, when one exists, to ground
// the completion.
type Responder interface {
	Complete(ctx context.Context, question, grounding string) (string, error)
}

// ProviderError wraps an upstream provider failure. Retryable failures
// (timeouts, rate limits, 5xx) may be retried with backoff; non-retryable
// ones (auth, malformed request) must abort immediately.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider failure worth retrying
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// IsProviderError reports whether err originated from an upstream provider
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
