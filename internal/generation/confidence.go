package generation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/llm"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
)

const neutralScore = 0.5

// ConfidenceWeights control how the four sub-scores combine. They are
// normalized before use, so only their ratios matter.
type ConfidenceWeights struct {
	Faithfulness float64
	Retrieval    float64
	Relevancy    float64
	Coverage     float64
}

// DefaultConfidenceWeights returns the standard weighting.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Faithfulness: 0.35,
		Retrieval:    0.25,
		Relevancy:    0.25,
		Coverage:     0.15,
	}
}

// ConfidenceScores holds the composite and its sub-scores, all in [0, 1].
// Degraded is set when any LLM-judged sub-score fell back to neutral.
type ConfidenceScores struct {
	Overall      float64 `json:"overall"`
	Retrieval    float64 `json:"retrieval"`
	Coverage     float64 `json:"coverage"`
	Faithfulness float64 `json:"faithfulness"`
	Relevancy    float64 `json:"relevancy"`
	Degraded     bool    `json:"degraded,omitempty"`
}

// ConfidenceScorer rates how trustworthy a generated answer is.
type ConfidenceScorer struct {
	logger            *observability.Logger
	chat              llm.ChatClient
	scoringModel      string
	coverageThreshold float64
	weights           ConfidenceWeights
}

// NewConfidenceScorer creates a scorer. The scoring model is typically a
// cheaper model than the generator's.
func NewConfidenceScorer(logger *observability.Logger, chat llm.ChatClient, scoringModel string, coverageThreshold float64, weights ConfidenceWeights) *ConfidenceScorer {
	if coverageThreshold <= 0 {
		coverageThreshold = 0.7
	}
	if weights == (ConfidenceWeights{}) {
		weights = DefaultConfidenceWeights()
	}
	return &ConfidenceScorer{
		logger:            logger,
		chat:              chat,
		scoringModel:      scoringModel,
		coverageThreshold: coverageThreshold,
		weights:           weights,
	}
}

// Score computes retrieval and coverage from similarities and asks the
// scoring model for faithfulness and relevancy. A failed judge call turns
// into the neutral 0.5 with Degraded set instead of failing the answer.
func (s *ConfidenceScorer) Score(ctx context.Context, question, answer string, retrieved []retrieval.RetrievedChunk) ConfidenceScores {
	var retrievalConf, coverage float64
	if len(retrieved) > 0 {
		high := 0
		for _, rc := range retrieved {
			retrievalConf += rc.Similarity
			if rc.Similarity > s.coverageThreshold {
				high++
			}
		}
		retrievalConf /= float64(len(retrieved))
		coverage = float64(high) / float64(len(retrieved))
	}

	degraded := false
	faithfulness, err := s.judgeFaithfulness(ctx, answer, retrieved)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Faithfulness check failed, using neutral score")
		faithfulness = neutralScore
		degraded = true
	}
	relevancy, err := s.judgeRelevancy(ctx, question, answer)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Relevancy check failed, using neutral score")
		relevancy = neutralScore
		degraded = true
	}

	w := s.weights
	total := w.Faithfulness + w.Retrieval + w.Relevancy + w.Coverage
	if total <= 0 {
		w = DefaultConfidenceWeights()
		total = w.Faithfulness + w.Retrieval + w.Relevancy + w.Coverage
	}

	composite := (w.Retrieval*retrievalConf +
		w.Coverage*coverage +
		w.Faithfulness*faithfulness +
		w.Relevancy*relevancy) / total

	return ConfidenceScores{
		Overall:      clamp01(composite),
		Retrieval:    clamp01(retrievalConf),
		Coverage:     clamp01(coverage),
		Faithfulness: clamp01(faithfulness),
		Relevancy:    clamp01(relevancy),
		Degraded:     degraded,
	}
}

func (s *ConfidenceScorer) judgeFaithfulness(ctx context.Context, answer string, retrieved []retrieval.RetrievedChunk) (float64, error) {
	contexts := make([]string, len(retrieved))
	for i, rc := range retrieved {
		contexts[i] = rc.Chunk.Text
	}

	return s.judge(ctx,
		`Score answer faithfulness from 0.0 to 1.0.
1.0 = Fully supported by context
0.5 = Partially supported
0.0 = Unsupported claims
Return only the numeric score.`,
		fmt.Sprintf("Context:\n%s\n\nAnswer:\n%s", strings.Join(contexts, "\n---\n"), answer),
	)
}

func (s *ConfidenceScorer) judgeRelevancy(ctx context.Context, question, answer string) (float64, error) {
	return s.judge(ctx,
		`Score answer relevancy from 0.0 to 1.0.
1.0 = Directly answers question
0.5 = Partially relevant
0.0 = Not relevant
Return only the numeric score.`,
		fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s", question, answer),
	)
}

func (s *ConfidenceScorer) judge(ctx context.Context, system, user string) (float64, error) {
	content, err := s.chat.Complete(ctx, llm.Request{
		Model: s.scoringModel,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil {
		return 0, fmt.Errorf("judge returned non-numeric score %q", content)
	}
	return clamp01(score), nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
