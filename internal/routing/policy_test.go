package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/pkg/models"
)

func result(question, answer string, score float64) *matcher.SimilarityResult {
	return &matcher.SimilarityResult{
		Entry: models.Entry{
			ID:       "e1",
			Question: question,
			Answer:   answer,
		},
		Score:      score,
		Collection: models.DefaultCollection,
	}
}

func TestDecideAboveThreshold(t *testing.T) {
	d := Decide(result("How do I reset my password?", "Go to account settings.", 0.93), 0.8)

	assert.Equal(t, models.SourceLocal, d.Source)
	assert.Equal(t, "How do I reset my password?", d.MatchedQuestion)
	assert.Equal(t, "Go to account settings.", d.Answer)
	assert.Equal(t, 0.93, d.SimilarityScore)
}

func TestDecideExactlyAtThreshold(t *testing.T) {
	d := Decide(result("q", "a", 0.8), 0.8)

	assert.Equal(t, models.SourceLocal, d.Source, "threshold is inclusive")
	assert.Equal(t, 0.8, d.SimilarityScore)
}

func TestDecideBelowThreshold(t *testing.T) {
	d := Decide(result("q", "a", 0.79), 0.8)

	assert.Equal(t, models.SourceExternal, d.Source)
	assert.Empty(t, d.MatchedQuestion)
	assert.Empty(t, d.Answer)
	assert.Zero(t, d.SimilarityScore)
}

func TestDecideNoCandidate(t *testing.T) {
	d := Decide(nil, 0.8)

	assert.Equal(t, models.SourceExternal, d.Source)
}

func TestDecideNegativeScore(t *testing.T) {
	d := Decide(result("q", "a", -0.4), 0.8)

	assert.Equal(t, models.SourceExternal, d.Source)
}

func TestDecideThresholdChangeFlipsRoute(t *testing.T) {
	r := result("q", "a", 0.75)

	assert.Equal(t, models.SourceExternal, Decide(r, 0.8).Source)
	assert.Equal(t, models.SourceLocal, Decide(r, 0.7).Source)
}
