// Package retrieval provides the tenant-isolated vector index and the
// retriever that feeds answer generation.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Namespace identifies one tenant/project partition of the index. Entries
// from different namespaces live in disjoint maps, so a query can never see
// another tenant's vectors regardless of filter bugs upstream.
type Namespace struct {
	TenantID  uuid.UUID
	ProjectID uuid.UUID
}

// String renders the partition key, e.g. "t_a1b2c3d4_p_e5f6a7b8".
func (n Namespace) String() string {
	return fmt.Sprintf("t_%s_p_%s", shortID(n.TenantID), shortID(n.ProjectID))
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Entry is one indexed chunk vector.
type Entry struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Vector     []float32
}

// Match is a query hit with its cosine similarity.
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Similarity float64
}

// Index stores chunk vectors partitioned by namespace.
type Index interface {
	Upsert(ctx context.Context, ns Namespace, entries []Entry) error
	Query(ctx context.Context, ns Namespace, vector []float32, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, ns Namespace, documentID uuid.UUID) error
	Count(ctx context.Context, ns Namespace) (int, error)
}

// MemoryIndex is an in-memory vector index. Vectors are normalized at
// insert time so similarity is a dot product at query time.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[uuid.UUID]Entry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		namespaces: make(map[string]map[uuid.UUID]Entry),
	}
}

// Upsert inserts or replaces entries in the namespace.
func (idx *MemoryIndex) Upsert(ctx context.Context, ns Namespace, entries []Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := ns.String()
	partition, ok := idx.namespaces[key]
	if !ok {
		partition = make(map[uuid.UUID]Entry)
		idx.namespaces[key] = partition
	}

	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return fmt.Errorf("chunk %s has an empty vector", entry.ChunkID)
		}
		entry.Vector = normalizeVector(entry.Vector)
		partition[entry.ChunkID] = entry
	}
	return nil
}

// Query returns the topK most similar entries. Ties on similarity resolve
// to the lower chunk index so results are stable.
func (idx *MemoryIndex) Query(ctx context.Context, ns Namespace, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	partition, ok := idx.namespaces[ns.String()]
	if !ok || len(partition) == 0 {
		return nil, nil
	}

	query := normalizeVector(append([]float32(nil), vector...))
	matches := make([]Match, 0, len(partition))
	for _, entry := range partition {
		matches = append(matches, Match{
			ChunkID:    entry.ChunkID,
			DocumentID: entry.DocumentID,
			ChunkIndex: entry.ChunkIndex,
			Similarity: cosine(query, entry.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteDocument drops every entry belonging to a document.
func (idx *MemoryIndex) DeleteDocument(ctx context.Context, ns Namespace, documentID uuid.UUID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	partition, ok := idx.namespaces[ns.String()]
	if !ok {
		return nil
	}
	for chunkID, entry := range partition {
		if entry.DocumentID == documentID {
			delete(partition, chunkID)
		}
	}
	return nil
}

// Count returns the number of entries in the namespace.
func (idx *MemoryIndex) Count(ctx context.Context, ns Namespace) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.namespaces[ns.String()]), nil
}

func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * norm
	}
	return out
}

// cosine computes the dot product of two normalized vectors, clamped to
// [-1, 1] against float drift.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(-1, math.Min(1, dot))
}

// Ensure implementation satisfies interface.
var _ Index = (*MemoryIndex)(nil)
