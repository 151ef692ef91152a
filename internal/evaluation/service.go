package evaluation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/cache"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

// Metrics holds one evaluation result. Nil means the metric could not be
// computed: no ground truth at all, or no embedder for the semantic score.
type Metrics struct {
	HasGroundTruth     bool     `json:"has_ground_truth"`
	BLEU               *float64 `json:"bleu_score,omitempty"`
	Rouge1F1           *float64 `json:"rouge1_f1,omitempty"`
	Rouge2F1           *float64 `json:"rouge2_f1,omitempty"`
	RougeLF1           *float64 `json:"rougel_f1,omitempty"`
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	Overall            *float64 `json:"overall_score,omitempty"`
	Cached             bool     `json:"cached,omitempty"`
}

// Composite weights; renormalized over whichever metrics are non-nil.
const (
	weightSemantic = 0.50
	weightRougeL   = 0.25
	weightBLEU     = 0.25
)

// Service evaluates answers against ground truth, caching results by text
// digest so re-running a questionnaire costs nothing.
type Service struct {
	logger   *observability.Logger
	cache    cache.Client
	cacheTTL time.Duration
}

// NewService creates an evaluation service. cacheClient may be nil to
// disable caching.
func NewService(logger *observability.Logger, cacheClient cache.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Service{
		logger:   logger,
		cache:    cacheClient,
		cacheTTL: cacheTTL,
	}
}

// Evaluate scores generated text against ground truth. Without ground truth
// every metric is nil and HasGroundTruth is false. embedder may be nil, in
// which case the semantic score is nil and the composite re-weights over
// the lexical metrics.
func (s *Service) Evaluate(ctx context.Context, tenantID, generated, groundTruth string, embedder embedding.Embedder) Metrics {
	if strings.TrimSpace(groundTruth) == "" {
		return Metrics{HasGroundTruth: false}
	}

	digest := evalDigest(generated, groundTruth)
	if cached, ok := s.lookup(ctx, tenantID, digest); ok {
		cached.Cached = true
		return cached
	}

	lexical := ComputeLexical(generated, groundTruth)
	metrics := Metrics{
		HasGroundTruth: true,
		BLEU:           round4(lexical.BLEU),
		Rouge1F1:       round4(lexical.Rouge1F1),
		Rouge2F1:       round4(lexical.Rouge2F1),
		RougeLF1:       round4(lexical.RougeLF1),
	}

	if embedder != nil {
		similarity, err := s.semantic(ctx, generated, groundTruth, embedder)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Semantic similarity unavailable")
		} else {
			metrics.SemanticSimilarity = round4(similarity)
		}
	}

	metrics.Overall = composite(metrics)
	s.store(ctx, tenantID, digest, metrics)
	return metrics
}

func (s *Service) semantic(ctx context.Context, generated, groundTruth string, embedder embedding.Embedder) (float64, error) {
	vectors, err := embedder.Embed(ctx, []string{generated, groundTruth})
	if err != nil {
		return 0, err
	}
	if len(vectors) < 2 {
		return 0, errors.New("embedder returned too few vectors")
	}
	return cosine(vectors[0], vectors[1]), nil
}

// composite renormalizes the weights over whichever metrics are present.
func composite(m Metrics) *float64 {
	var sum, totalWeight float64
	if m.SemanticSimilarity != nil {
		sum += weightSemantic * *m.SemanticSimilarity
		totalWeight += weightSemantic
	}
	if m.RougeLF1 != nil {
		sum += weightRougeL * *m.RougeLF1
		totalWeight += weightRougeL
	}
	if m.BLEU != nil {
		sum += weightBLEU * *m.BLEU
		totalWeight += weightBLEU
	}
	if totalWeight == 0 {
		return nil
	}
	return round4(sum / totalWeight)
}

func (s *Service) lookup(ctx context.Context, tenantID, digest string) (Metrics, bool) {
	if s.cache == nil {
		return Metrics{}, false
	}
	data, err := s.cache.Get(ctx, cache.EvaluationCacheKey(tenantID, digest))
	if err != nil {
		return Metrics{}, false
	}
	var metrics Metrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return Metrics{}, false
	}
	return metrics, true
}

func (s *Service) store(ctx context.Context, tenantID, digest string, metrics Metrics) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.EvaluationCacheKey(tenantID, digest), data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache evaluation result")
	}
}

func evalDigest(generated, groundTruth string) string {
	h := sha256.New()
	h.Write([]byte(generated))
	h.Write([]byte{0})
	h.Write([]byte(groundTruth))
	return hex.EncodeToString(h.Sum(nil))
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}

func round4(x float64) *float64 {
	r := math.Round(x*10000) / 10000
	return &r
}
