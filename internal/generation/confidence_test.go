package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/llm"
)

// scriptedChat returns canned judge responses in call order.
type scriptedChat struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedChat) Complete(ctx context.Context, req llm.Request) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "0.5", nil
}

func TestConfidenceScorer_ScoresInBounds(t *testing.T) {
	chat := &scriptedChat{responses: []string{"0.9", "0.8"}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.75, DefaultConfidenceWeights())

	scores := scorer.Score(context.Background(), "What is the SLA?", "The SLA is 99.9% [1].",
		retrievedChunks("uptime 99.9%", "support hours", "eu region"))

	assert.False(t, scores.Degraded)
	assert.InDelta(t, 0.9, scores.Faithfulness, 1e-9)
	assert.InDelta(t, 0.8, scores.Relevancy, 1e-9)
	// retrievedChunks yields similarities 0.9, 0.8, 0.7; only 0.9 and 0.8
	// clear the 0.75 coverage threshold.
	assert.InDelta(t, 0.8, scores.Retrieval, 1e-9)
	assert.InDelta(t, 2.0/3.0, scores.Coverage, 1e-9)

	for _, v := range []float64{scores.Overall, scores.Retrieval, scores.Coverage, scores.Faithfulness, scores.Relevancy} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestConfidenceScorer_CompositeInBoundsAcrossWeights(t *testing.T) {
	weightSets := map[string]ConfidenceWeights{
		"default":        DefaultConfidenceWeights(),
		"not normalized": {Faithfulness: 2, Retrieval: 3, Relevancy: 1, Coverage: 4},
		"single weight":  {Faithfulness: 1},
		"coverage heavy": {Coverage: 5},
		"tiny":           {Faithfulness: 0.01, Retrieval: 0.01, Relevancy: 0.01, Coverage: 0.01},
		"zero":           {},
	}
	judgeScores := []string{"0.0", "1.0"}

	for name, weights := range weightSets {
		for _, faith := range judgeScores {
			for _, rel := range judgeScores {
				for _, chunkCount := range []int{0, 3} {
					chat := &scriptedChat{responses: []string{faith, rel}}
					scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.5, weights)

					retrieved := retrievedChunks("a", "b", "c")[:chunkCount]
					scores := scorer.Score(context.Background(), "q", "a", retrieved)

					label := "%s faith=%s rel=%s chunks=%d"
					assert.GreaterOrEqual(t, scores.Overall, 0.0, label, name, faith, rel, chunkCount)
					assert.LessOrEqual(t, scores.Overall, 1.0, label, name, faith, rel, chunkCount)
				}
			}
		}
	}
}

func TestConfidenceScorer_RenormalizesWeights(t *testing.T) {
	// a single non-zero weight makes the composite equal that sub-score
	chat := &scriptedChat{responses: []string{"1.0", "0.0"}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.7, ConfidenceWeights{Faithfulness: 3})

	scores := scorer.Score(context.Background(), "q", "a", nil)

	assert.Equal(t, 1.0, scores.Overall)
}

func TestConfidenceScorer_NeutralFallbackOnJudgeFailure(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("judge down"), errors.New("judge down")}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.7, DefaultConfidenceWeights())

	scores := scorer.Score(context.Background(), "q", "a", retrievedChunks("ctx"))

	assert.True(t, scores.Degraded)
	assert.InDelta(t, neutralScore, scores.Faithfulness, 1e-9)
	assert.InDelta(t, neutralScore, scores.Relevancy, 1e-9)
}

func TestConfidenceScorer_NonNumericJudgeIsDegraded(t *testing.T) {
	chat := &scriptedChat{responses: []string{"definitely faithful", "0.6"}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.7, DefaultConfidenceWeights())

	scores := scorer.Score(context.Background(), "q", "a", retrievedChunks("ctx"))

	assert.True(t, scores.Degraded)
	assert.InDelta(t, neutralScore, scores.Faithfulness, 1e-9)
	assert.InDelta(t, 0.6, scores.Relevancy, 1e-9)
}

func TestConfidenceScorer_JudgeScoreClamped(t *testing.T) {
	chat := &scriptedChat{responses: []string{"1.7", "-0.3"}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.7, DefaultConfidenceWeights())

	scores := scorer.Score(context.Background(), "q", "a", retrievedChunks("ctx"))

	assert.False(t, scores.Degraded)
	assert.Equal(t, 1.0, scores.Faithfulness)
	assert.Equal(t, 0.0, scores.Relevancy)
}

func TestConfidenceScorer_NoRetrievedChunks(t *testing.T) {
	chat := &scriptedChat{responses: []string{"0.5", "0.5"}}
	scorer := NewConfidenceScorer(testLogger(), chat, "judge-model", 0.7, DefaultConfidenceWeights())

	scores := scorer.Score(context.Background(), "q", "a", nil)

	assert.Zero(t, scores.Retrieval)
	assert.Zero(t, scores.Coverage)
	assert.Greater(t, scores.Overall, 0.0)
}
