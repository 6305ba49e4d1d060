package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestRetryableOpenAIError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"bad gateway", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"forbidden", &openai.APIError{HTTPStatusCode: http.StatusForbidden}, false},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"not found", &openai.APIError{HTTPStatusCode: http.StatusNotFound}, false},
		{"request error 500", &openai.RequestError{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"request error 429", &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"request error 400", &openai.RequestError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"transport failure", errors.New("connection reset by peer"), true},
		{"wrapped api error", fmt.Errorf("embed: %w", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryableOpenAIError(tc.err))
		})
	}
}

func TestProviderErrorClassifiers(t *testing.T) {
	retryable := &ProviderError{Op: "embed", Retryable: true, Err: errors.New("rate limited")}
	fatal := &ProviderError{Op: "embed", Retryable: false, Err: errors.New("invalid api key")}

	assert.True(t, IsProviderError(retryable))
	assert.True(t, IsProviderError(fatal))
	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(fatal))

	wrapped := fmt.Errorf("pipeline: %w", retryable)
	assert.True(t, IsProviderError(wrapped))
	assert.True(t, IsRetryable(wrapped))

	assert.False(t, IsProviderError(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &ProviderError{Op: "complete", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "complete")
	assert.Contains(t, err.Error(), "inner")
}
