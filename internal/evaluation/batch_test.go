package evaluation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchEvaluatorEmptyInput(t *testing.T) {
	be := NewBatchEvaluator(testEvalLogger(), NewService(testEvalLogger(), nil, 0), 4, time.Minute)

	summary, err := be.Run(context.Background(), uuid.New(), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.Zero(t, summary.Evaluated)
	assert.Nil(t, summary.MeanOverall)
}

func TestBatchEvaluatorAggregates(t *testing.T) {
	be := NewBatchEvaluator(testEvalLogger(), NewService(testEvalLogger(), nil, 0), 4, time.Minute)

	exact := "backups are retained for 35 days"
	items := []BatchItem{
		{QuestionID: uuid.New(), Generated: exact, GroundTruth: exact},
		{QuestionID: uuid.New(), Generated: "access reviews run quarterly", GroundTruth: "quarterly access reviews are performed"},
		{QuestionID: uuid.New(), Generated: "no reference available", GroundTruth: ""},
	}

	summary, err := be.Run(context.Background(), uuid.New(), items, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Evaluated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Results, 3)

	// Results keep input order regardless of worker scheduling.
	assert.Equal(t, items[0].QuestionID, summary.Results[0].QuestionID)
	assert.Equal(t, items[2].QuestionID, summary.Results[2].QuestionID)
	require.NotNil(t, summary.Results[0].Metrics)
	assert.InDelta(t, 1.0, *summary.Results[0].Metrics.Overall, 1e-4)
	assert.False(t, summary.Results[2].Metrics.HasGroundTruth)

	// Means average only the items that produced each metric.
	require.NotNil(t, summary.MeanOverall)
	want := (*summary.Results[0].Metrics.Overall + *summary.Results[1].Metrics.Overall) / 2
	assert.InDelta(t, want, *summary.MeanOverall, 1e-3)
	assert.Nil(t, summary.MeanSemantic, "no embedder means no semantic scores")
}

func TestBatchEvaluatorProgress(t *testing.T) {
	be := NewBatchEvaluator(testEvalLogger(), NewService(testEvalLogger(), nil, 0), 2, time.Minute)

	items := make([]BatchItem, 5)
	for i := range items {
		items[i] = BatchItem{QuestionID: uuid.New(), Generated: "generated text", GroundTruth: "reference text"}
	}

	var calls atomic.Int32
	var sawTotal atomic.Int32
	summary, err := be.Run(context.Background(), uuid.New(), items, nil, func(done, total int) {
		calls.Add(1)
		if done == total {
			sawTotal.Add(1)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Evaluated)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, int32(1), sawTotal.Load())
}

func TestBatchEvaluatorCanceledContext(t *testing.T) {
	be := NewBatchEvaluator(testEvalLogger(), NewService(testEvalLogger(), nil, 0), 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []BatchItem{
		{QuestionID: uuid.New(), Generated: "a", GroundTruth: "a"},
	}
	summary, err := be.Run(ctx, uuid.New(), items, nil, nil)
	if err != nil {
		// The run may surface the cancellation as a timeout error.
		return
	}
	assert.Equal(t, 1, summary.Failed)
}

func TestSummarizeCountsFailures(t *testing.T) {
	overall := 0.8
	results := []BatchResult{
		{QuestionID: uuid.New(), Metrics: &Metrics{HasGroundTruth: true, Overall: &overall}},
		{QuestionID: uuid.New(), Err: context.DeadlineExceeded},
		{QuestionID: uuid.New(), Metrics: &Metrics{HasGroundTruth: false}},
	}

	summary := summarize(results)
	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	require.NotNil(t, summary.MeanOverall)
	assert.InDelta(t, 0.8, *summary.MeanOverall, 1e-9)
	assert.Nil(t, summary.MeanBLEU, "failed and skipped items contribute no scores")
}
