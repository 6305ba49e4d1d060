package matcher

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/pkg/models"
)

var (
	// ErrNoMatch signals that the collection has no embedded entries.
	// It is a routing signal ("no local answer possible"), not a failure.
	ErrNoMatch = errors.New("no embedded entries in collection")

	// ErrInvalidInput is returned for empty query text
	ErrInvalidInput = errors.New("query text is empty")
)

// VectorStore is the nearest-neighbor lookup the matcher delegates to
type VectorStore interface {
	NearestByVector(ctx context.Context, collection string, vector []float32, k int) ([]models.Candidate, error)
}

// EmbeddingCache caches query embeddings; failures degrade to misses
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vector []float32) error
}

// SimilarityResult is the best local match for a query
type SimilarityResult struct {
	Entry      models.Entry `json:"entry"`
	Score      float64      `json:"score"`
	Collection string       `json:"collection"`
}

// Matcher embeds query text and finds the most similar knowledge entry.
//
// pgvector's `<=>` operator yields cosine distance d in [0, 2]; the matcher
// normalizes it to cosine similarity s = 1 - d in [-1, 1]. The transform is
// monotonic, so store-side distance ordering is preserved.
type Matcher struct {
	embedder provider.Embedder
	store    VectorStore
	cache    EmbeddingCache
	topK     int
}

// New creates a matcher. cache may be nil to disable query-embedding caching.
func New(embedder provider.Embedder, store VectorStore, cache EmbeddingCache, topK int) *Matcher {
	if topK <= 0 {
		topK = 1
	}
	return &Matcher{
		embedder: embedder,
		store:    store,
		cache:    cache,
		topK:     topK,
	}
}

// Match returns the nearest entry in collection for queryText along with
// its normalized similarity score. Equal scores are broken by the
// lexicographically smaller entry ID so results are deterministic.
func (m *Matcher) Match(ctx context.Context, collection, queryText string) (*SimilarityResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, ErrInvalidInput
	}
	if collection == "" {
		collection = models.DefaultCollection
	}

	vector, err := m.queryVector(ctx, queryText)
	if err != nil {
		return nil, err
	}

	candidates, err := m.store.NearestByVector(ctx, collection, vector, m.topK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Distance < best.Distance ||
			(c.Distance == best.Distance && c.Entry.ID < best.Entry.ID) {
			best = c
		}
	}

	return &SimilarityResult{
		Entry:      best.Entry,
		Score:      similarityFromDistance(best.Distance),
		Collection: collection,
	}, nil
}

func (m *Matcher) queryVector(ctx context.Context, queryText string) ([]float32, error) {
	if m.cache != nil {
		vector, found, err := m.cache.Get(ctx, queryText)
		if err != nil {
			log.Printf("embedding cache get failed, treating as miss: %v", err)
		} else if found {
			return vector, nil
		}
	}

	vector, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, queryText, vector); err != nil {
			log.Printf("embedding cache set failed: %v", err)
		}
	}
	return vector, nil
}

// similarityFromDistance converts cosine distance to cosine similarity
func similarityFromDistance(distance float64) float64 {
	return 1 - distance
}
