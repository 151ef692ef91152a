package evaluation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

// BatchItem pairs a generated answer with its reference answer.
type BatchItem struct {
	QuestionID  uuid.UUID
	Generated   string
	GroundTruth string
}

// BatchResult carries the metrics (or failure) for a single item.
type BatchResult struct {
	QuestionID uuid.UUID
	Metrics    *Metrics
	Err        error
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Results      []BatchResult
	Evaluated    int
	Skipped      int
	Failed       int
	MeanOverall  *float64
	MeanBLEU     *float64
	MeanRougeL   *float64
	MeanSemantic *float64
}

// BatchEvaluator runs evaluations concurrently with a bounded worker pool.
type BatchEvaluator struct {
	logger     *observability.Logger
	service    *Service
	maxWorkers int
	timeout    time.Duration
}

// NewBatchEvaluator creates a batch evaluator.
func NewBatchEvaluator(logger *observability.Logger, service *Service, maxWorkers int, timeout time.Duration) *BatchEvaluator {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &BatchEvaluator{
		logger:     logger,
		service:    service,
		maxWorkers: maxWorkers,
		timeout:    timeout,
	}
}

// Run evaluates all items concurrently and aggregates per-metric means over
// the items that produced each metric.
func (be *BatchEvaluator) Run(
	ctx context.Context,
	tenantID uuid.UUID,
	items []BatchItem,
	embedder embedding.Embedder,
	progress func(done, total int),
) (*BatchSummary, error) {
	if len(items) == 0 {
		return &BatchSummary{Results: []BatchResult{}}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, be.timeout)
	defer cancel()

	type workItem struct {
		index int
		item  BatchItem
	}

	workChan := make(chan workItem, len(items))
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed int

	for i, item := range items {
		workChan <- workItem{index: i, item: item}
	}
	close(workChan)

	for i := 0; i < be.maxWorkers && i < len(items); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workChan {
				result := BatchResult{QuestionID: w.item.QuestionID}
				if err := runCtx.Err(); err != nil {
					result.Err = err
				} else {
					m := be.service.Evaluate(runCtx, tenantID.String(), w.item.Generated, w.item.GroundTruth, embedder)
					result.Metrics = &m
				}
				mu.Lock()
				results[w.index] = result
				completed++
				n := completed
				mu.Unlock()
				if progress != nil {
					progress(n, len(items))
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		return nil, fmt.Errorf("batch evaluation timeout after %v", be.timeout)
	}

	summary := summarize(results)
	be.logger.Info().
		Str("tenant_id", tenantID.String()).
		Int("items", len(items)).
		Int("evaluated", summary.Evaluated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Batch evaluation complete")

	return summary, nil
}

func summarize(results []BatchResult) *BatchSummary {
	summary := &BatchSummary{Results: results}

	var overall, bleuSum, rougeL, semantic float64
	var overallN, bleuN, rougeLN, semanticN int

	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Failed++
		case r.Metrics == nil || !r.Metrics.HasGroundTruth:
			summary.Skipped++
		default:
			summary.Evaluated++
			if r.Metrics.Overall != nil {
				overall += *r.Metrics.Overall
				overallN++
			}
			if r.Metrics.BLEU != nil {
				bleuSum += *r.Metrics.BLEU
				bleuN++
			}
			if r.Metrics.RougeLF1 != nil {
				rougeL += *r.Metrics.RougeLF1
				rougeLN++
			}
			if r.Metrics.SemanticSimilarity != nil {
				semantic += *r.Metrics.SemanticSimilarity
				semanticN++
			}
		}
	}

	if overallN > 0 {
		summary.MeanOverall = round4(overall / float64(overallN))
	}
	if bleuN > 0 {
		summary.MeanBLEU = round4(bleuSum / float64(bleuN))
	}
	if rougeLN > 0 {
		summary.MeanRougeL = round4(rougeL / float64(rougeLN))
	}
	if semanticN > 0 {
		summary.MeanSemantic = round4(semantic / float64(semanticN))
	}

	return summary
}
