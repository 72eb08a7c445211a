package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Passage is a unit of indexed document text.
type Passage struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Hit is a passage returned by a similarity search with its score in
// [-1, 1] (cosine similarity; higher is closer).
type Hit struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// Entry is a passage with its embedding.
type Entry struct {
	Passage Passage
	Vector  []float32
}

// Index stores passage embeddings and answers nearest-K queries. Upsert is
// keyed on Passage.ID, so re-indexing the same passages is a no-op.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close()
}

// MemoryIndex is an Index kept in process memory with exact cosine search.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

// Upsert implements Index.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		if e.Passage.ID == "" {
			return fmt.Errorf("passage without id")
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("passage %s has no embedding", e.Passage.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.Passage.ID] = Entry{Passage: e.Passage, Vector: append([]float32(nil), e.Vector...)}
	}
	return nil
}

// Search implements Index. Hits are ordered by score, then passage id.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if len(e.Vector) != len(query) {
			continue
		}
		hits = append(hits, Hit{Passage: e.Passage, Score: Cosine(query, e.Vector)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Passage.ID < hits[j].Passage.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count implements Index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close implements Index.
func (m *MemoryIndex) Close() {}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
