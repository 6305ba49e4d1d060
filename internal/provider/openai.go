package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/internal/ratelimit"
)

const fallbackSystemPrompt = `You are a helpful IT support assistant. Answer user questions about account management, password resets, profile settings, and general IT support topics. Answer only if you know the answer, don't guess. Be concise and provide actionable steps when possible. If you don't know the answer or the question is not related to IT support, politely redirect the user with "I'm not sure, please contact IT support!"`

// OpenAIProvider implements Embedder and Responder against the OpenAI API
type OpenAIProvider struct {
	client  *openai.Client
	limiter *ratelimit.Limiter
	cfg     config.OpenAIConfig
}

// NewOpenAI creates a provider with the given configuration and rate limiter.
// The limiter may be nil, in which case calls are not throttled locally.
func NewOpenAI(cfg config.OpenAIConfig, limiter *ratelimit.Limiter) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClient(cfg.APIKey),
		limiter: limiter,
		cfg:     cfg,
	}
}

// Dimension returns the configured embedding dimension
func (p *OpenAIProvider) Dimension() int {
	return p.cfg.EmbeddingDimension
}

// Embed returns the embedding vector for a single text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embedding vectors for texts, in order, via a single
// provider call. Transient failures are retried a bounded number of times.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	estimated := 0
	for _, t := range texts {
		estimated += ratelimit.EstimateTokens(t)
	}
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, estimated); err != nil {
			return nil, &ProviderError{Op: "embed", Retryable: true, Err: err}
		}
	}

	var resp openai.EmbeddingResponse
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()

		var err error
		resp, err = p.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
		})
		if err != nil {
			if retryableOpenAIError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, p.retryPolicy(ctx)); err != nil {
		return nil, &ProviderError{Op: "embed", Retryable: retryableOpenAIError(err), Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Op:  "embed",
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("embedding index %d out of range", item.Index)}
		}
		if len(item.Embedding) != p.cfg.EmbeddingDimension {
			return nil, &ProviderError{
				Op:  "embed",
				Err: fmt.Errorf("embedding dimension %d, expected %d", len(item.Embedding), p.cfg.EmbeddingDimension),
			}
		}
		vectors[item.Index] = item.Embedding
	}

	return vectors, nil
}

// Complete generates a fallback answer for a question the knowledge base
// could not cover. grounding, when non-empty, is prepended to the question.
func (p *OpenAIProvider) Complete(ctx context.Context, question, grounding string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, ratelimit.EstimateTokens(question)+p.cfg.MaxTokens); err != nil {
			return "", &ProviderError{Op: "complete", Retryable: true, Err: err}
		}
	}

	content := question
	if grounding != "" {
		content = fmt.Sprintf("Context: %s\n\nQuestion: %s", grounding, question)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: p.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fallbackSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: content,
			},
		},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return "", &ProviderError{Op: "complete", Retryable: retryableOpenAIError(err), Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Op: "complete", Err: errors.New("no completion choices in response")}
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries)), ctx)
}

// retryableOpenAIError classifies an OpenAI client error. Rate limits,
// server errors and network timeouts are retryable; authentication and
// request errors are not.
func retryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return true
		case http.StatusUnauthorized, http.StatusForbidden,
			http.StatusBadRequest, http.StatusNotFound:
			return false
		}
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError ||
			reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}

	// Treat transport-level failures (connection reset, timeout) as transient.
	return true
}
