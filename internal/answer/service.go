package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/prompt-general/answerhub/internal/events"
	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/internal/routing"
	"github.com/prompt-general/answerhub/pkg/models"
)

// ErrFallbackUnavailable is returned when the generative fallback itself
// fails. Callers can distinguish "no good local answer" (a normal external
// response) from "service degraded".
var ErrFallbackUnavailable = errors.New("fallback responder unavailable")

// Matcher finds the best local match for a question
type Matcher interface {
	Match(ctx context.Context, collection, queryText string) (*matcher.SimilarityResult, error)
}

// Service answers questions: local knowledge base first, generative
// fallback when no confident match exists.
type Service struct {
	matcher   Matcher
	responder provider.Responder
	publisher events.Publisher
	threshold float64
}

// NewService creates the answering orchestrator. publisher may be nil.
func NewService(m Matcher, responder provider.Responder, publisher events.Publisher, threshold float64) *Service {
	if publisher == nil {
		publisher = events.NewNoop()
	}
	return &Service{
		matcher:   m,
		responder: responder,
		publisher: publisher,
		threshold: threshold,
	}
}

// Answer resolves a question against the collection. Provider and store
// failures surface as errors; they are never converted into a fallback
// answer, since that would mask outages as "no local match".
func (s *Service) Answer(ctx context.Context, collection, question string) (*models.QuestionResponse, error) {
	start := time.Now()
	if collection == "" {
		collection = models.DefaultCollection
	}

	result, err := s.matcher.Match(ctx, collection, question)
	if err != nil && !errors.Is(err, matcher.ErrNoMatch) {
		return nil, err
	}

	decision := routing.Decide(result, s.threshold)

	var resp *models.QuestionResponse
	if decision.Source == models.SourceLocal {
		score := decision.SimilarityScore
		resp = &models.QuestionResponse{
			Source:          models.SourceLocal,
			MatchedQuestion: decision.MatchedQuestion,
			Answer:          decision.Answer,
			SimilarityScore: &score,
		}
	} else {
		// Pass the best near-miss, if any, as soft context to ground the
		// completion.
		grounding := ""
		if result != nil {
			grounding = fmt.Sprintf("Closest known question: %s\nIts answer: %s",
				result.Entry.Question, result.Entry.Answer)
		}

		answerText, err := s.responder.Complete(ctx, question, grounding)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
		}
		resp = &models.QuestionResponse{
			Source: models.SourceExternal,
			Answer: answerText,
		}
	}

	s.record(collection, question, resp, time.Since(start))
	return resp, nil
}

// record emits the query record asynchronously; it never blocks or fails
// the response path.
func (s *Service) record(collection, question string, resp *models.QuestionResponse, latency time.Duration) {
	record := models.QueryRecord{
		ID:              uuid.NewString(),
		Collection:      collection,
		Question:        question,
		Source:          resp.Source,
		MatchedQuestion: resp.MatchedQuestion,
		SimilarityScore: resp.SimilarityScore,
		LatencyMS:       latency.Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishQuery(ctx, record); err != nil {
			log.Printf("answer: failed to publish query record: %v", err)
		}
	}()
}
