package routing

import (
	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/pkg/models"
)

// Decision is the outcome of routing a question: answer locally from the
// knowledge base or delegate to the generative fallback.
type Decision struct {
	Source          models.AnswerSource `json:"source"`
	MatchedQuestion string              `json:"matched_question,omitempty"`
	Answer          string              `json:"answer,omitempty"`
	SimilarityScore float64             `json:"similarity_score,omitempty"`
}

// Decide applies the confidence threshold to a similarity result. A nil
// result means no local answer was possible and routes to fallback. The
// threshold is inclusive: a score exactly at the threshold answers locally.
//
// Pure function, no I/O.
func Decide(result *matcher.SimilarityResult, threshold float64) Decision {
	if result == nil || result.Score < threshold {
		return Decision{Source: models.SourceExternal}
	}

	return Decision{
		Source:          models.SourceLocal,
		MatchedQuestion: result.Entry.Question,
		Answer:          result.Entry.Answer,
		SimilarityScore: result.Score,
	}
}
