package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces sliding-window request-per-minute and token-per-minute
// limits in front of the embedding/completion provider. Acquire blocks
// until capacity is available or the context is done.
type Limiter struct {
	rpm int
	tpm int

	mu       sync.Mutex
	requests []time.Time
	tokens   []tokenStamp

	now func() time.Time
}

type tokenStamp struct {
	at     time.Time
	tokens int
}

// New creates a limiter with the given per-minute budgets. Non-positive
// budgets disable the corresponding check.
func New(requestsPerMinute, tokensPerMinute int) *Limiter {
	return &Limiter{
		rpm: requestsPerMinute,
		tpm: tokensPerMinute,
		now: time.Now,
	}
}

// EstimateTokens approximates the token count of a provider request.
// OpenAI embedding models average roughly one token per four characters.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Acquire reserves capacity for one request of estimatedTokens tokens,
// sleeping as needed to stay under the configured budgets.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)
		wait := l.waitTime(now, estimatedTokens)
		if wait <= 0 {
			l.requests = append(l.requests, now)
			l.tokens = append(l.tokens, tokenStamp{at: now, tokens: estimatedTokens})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status is a snapshot of window usage against the configured budgets
type Status struct {
	RequestsUsed      int `json:"requests_used"`
	TokensUsed        int `json:"tokens_used"`
	RequestsPerMinute int `json:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute"`
}

// Status reports current window usage for diagnostics.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())

	tokens := 0
	for _, ts := range l.tokens {
		tokens += ts.tokens
	}
	return Status{
		RequestsUsed:      len(l.requests),
		TokensUsed:        tokens,
		RequestsPerMinute: l.rpm,
		TokensPerMinute:   l.tpm,
	}
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-time.Minute)

	i := 0
	for _, t := range l.requests {
		if t.After(cutoff) {
			l.requests[i] = t
			i++
		}
	}
	l.requests = l.requests[:i]

	j := 0
	for _, ts := range l.tokens {
		if ts.at.After(cutoff) {
			l.tokens[j] = ts
			j++
		}
	}
	l.tokens = l.tokens[:j]
}

func (l *Limiter) waitTime(now time.Time, estimatedTokens int) time.Duration {
	var wait time.Duration

	if l.rpm > 0 && len(l.requests) >= l.rpm {
		oldest := l.requests[0]
		if w := oldest.Add(time.Minute).Sub(now); w > wait {
			wait = w
		}
	}

	if l.tpm > 0 {
		used := 0
		for _, ts := range l.tokens {
			used += ts.tokens
		}
		if used+estimatedTokens > l.tpm && len(l.tokens) > 0 {
			oldest := l.tokens[0].at
			if w := oldest.Add(time.Minute).Sub(now); w > wait {
				wait = w
			}
		}
	}

	return wait
}
