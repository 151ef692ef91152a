package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/cache"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/evaluation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

func TestRedisCacheRoundtrip(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	client, err := cache.NewRedisClient(cache.RedisConfig{Addr: setup.RedisAddr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	_, err = client.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, client.Set(ctx, "greeting", []byte("hello"), time.Minute))
	val, err := client.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)

	require.NoError(t, client.Delete(ctx, "greeting"))
	_, err = client.Get(ctx, "greeting")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedisDeleteByPrefix(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	client, err := cache.NewRedisClient(cache.RedisConfig{Addr: setup.RedisAddr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "t:acme:eval:one", []byte("1"), time.Minute))
	require.NoError(t, client.Set(ctx, "t:acme:eval:two", []byte("2"), time.Minute))
	require.NoError(t, client.Set(ctx, "t:other:eval:one", []byte("3"), time.Minute))

	require.NoError(t, client.DeleteByPrefix(ctx, "t:acme:"))

	_, err = client.Get(ctx, "t:acme:eval:one")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = client.Get(ctx, "t:acme:eval:two")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	val, err := client.Get(ctx, "t:other:eval:one")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}

func TestRedisJobProgressPubSub(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	client, err := cache.NewRedisClient(cache.RedisConfig{Addr: setup.RedisAddr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	channel := cache.JobChannel("job-123")

	messages, unsubscribe, err := client.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer unsubscribe()

	// Subscription setup races with the first publish; give it a moment.
	time.Sleep(100 * time.Millisecond)

	type progressUpdate struct {
		Progress float64 `json:"progress"`
		Stage    string  `json:"stage"`
	}
	require.NoError(t, client.Publish(ctx, channel, progressUpdate{Progress: 0.5, Stage: "embedding"}))

	select {
	case raw := <-messages:
		var update progressUpdate
		require.NoError(t, json.Unmarshal(raw, &update))
		assert.Equal(t, 0.5, update.Progress)
		assert.Equal(t, "embedding", update.Stage)
	case <-time.After(5 * time.Second):
		t.Fatal("no progress message received")
	}
}

// TestRedisEvaluationCache verifies the evaluation service reuses results
// through a real Redis instance.
func TestRedisEvaluationCache(t *testing.T) {
	skipUnlessIntegration(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	client, err := cache.NewRedisClient(cache.RedisConfig{Addr: setup.RedisAddr})
	require.NoError(t, err)
	defer client.Close()

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console"})
	svc := evaluation.NewService(logger, client, time.Hour)

	ctx := context.Background()
	gen := "Backups are encrypted and retained for 35 days [1]."
	truth := "Encrypted backups are retained for 35 days."

	first := svc.Evaluate(ctx, "tenant-a", gen, truth, nil)
	require.True(t, first.HasGroundTruth)
	assert.False(t, first.Cached)

	second := svc.Evaluate(ctx, "tenant-a", gen, truth, nil)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Overall, second.Overall)
}
