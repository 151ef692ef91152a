package retrieval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNamespace() Namespace {
	return Namespace{TenantID: uuid.New(), ProjectID: uuid.New()}
}

func entry(docID uuid.UUID, chunkIndex int, vector []float32) Entry {
	return Entry{
		ChunkID:    uuid.New(),
		DocumentID: docID,
		ChunkIndex: chunkIndex,
		Vector:     vector,
	}
}

func TestMemoryIndex_QueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ns := testNamespace()
	docID := uuid.New()

	exact := entry(docID, 0, []float32{1, 0, 0})
	near := entry(docID, 1, []float32{0.9, 0.1, 0})
	far := entry(docID, 2, []float32{0, 0, 1})
	require.NoError(t, idx.Upsert(ctx, ns, []Entry{far, near, exact}))

	matches, err := idx.Query(ctx, ns, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, exact.ChunkID, matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, near.ChunkID, matches[1].ChunkID)
	assert.Equal(t, far.ChunkID, matches[2].ChunkID)
	assert.Greater(t, matches[1].Similarity, matches[2].Similarity)
}

func TestMemoryIndex_TopKLimits(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ns := testNamespace()
	docID := uuid.New()

	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(docID, i, []float32{1, float32(i) * 0.01}))
	}
	require.NoError(t, idx.Upsert(ctx, ns, entries))

	matches, err := idx.Query(ctx, ns, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestMemoryIndex_TieBreaksOnChunkIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ns := testNamespace()
	docID := uuid.New()

	// Identical vectors, inserted out of order.
	second := entry(docID, 7, []float32{0.5, 0.5})
	first := entry(docID, 2, []float32{0.5, 0.5})
	require.NoError(t, idx.Upsert(ctx, ns, []Entry{second, first}))

	for i := 0; i < 10; i++ {
		matches, err := idx.Query(ctx, ns, []float32{1, 1}, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, 2, matches[0].ChunkIndex)
		assert.Equal(t, 7, matches[1].ChunkIndex)
	}
}

func TestMemoryIndex_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	nsA := testNamespace()
	nsB := testNamespace()

	entryA := entry(uuid.New(), 0, []float32{1, 0})
	require.NoError(t, idx.Upsert(ctx, nsA, []Entry{entryA}))

	matches, err := idx.Query(ctx, nsB, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	count, err := idx.Count(ctx, nsB)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Same tenant, different project is still a different namespace.
	nsA2 := Namespace{TenantID: nsA.TenantID, ProjectID: uuid.New()}
	matches, err = idx.Query(ctx, nsA2, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndex_UpsertReplacesEntry(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ns := testNamespace()

	e := entry(uuid.New(), 0, []float32{1, 0})
	require.NoError(t, idx.Upsert(ctx, ns, []Entry{e}))

	e.Vector = []float32{0, 1}
	require.NoError(t, idx.Upsert(ctx, ns, []Entry{e}))

	count, err := idx.Count(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := idx.Query(ctx, ns, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestMemoryIndex_RejectsEmptyVector(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	err := idx.Upsert(ctx, testNamespace(), []Entry{{ChunkID: uuid.New()}})
	assert.ErrorContains(t, err, "empty vector")
}

func TestMemoryIndex_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ns := testNamespace()
	keepDoc := uuid.New()
	dropDoc := uuid.New()

	require.NoError(t, idx.Upsert(ctx, ns, []Entry{
		entry(keepDoc, 0, []float32{1, 0}),
		entry(dropDoc, 0, []float32{0, 1}),
		entry(dropDoc, 1, []float32{0.5, 0.5}),
	}))

	require.NoError(t, idx.DeleteDocument(ctx, ns, dropDoc))

	count, err := idx.Count(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := idx.Query(ctx, ns, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, keepDoc, matches[0].DocumentID)

	// Deleting from an unknown namespace is a no-op.
	assert.NoError(t, idx.DeleteDocument(ctx, testNamespace(), dropDoc))
}
