package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}))
}

func TestMemoryIndex_SearchOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, []Entry{
		{Passage: Passage{ID: "p1", Text: "door opens"}, Vector: []float32{1, 0}},
		{Passage: Passage{ID: "p2", Text: "door closes"}, Vector: []float32{0.7, 0.7}},
		{Passage: Passage{ID: "p3", Text: "brakes"}, Vector: []float32{0, 1}},
		{Passage: Passage{ID: "p0", Text: "door opens again"}, Vector: []float32{2, 0}},
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "p0", hits[0].Passage.ID, "equal scores break on id")
	assert.Equal(t, "p1", hits[1].Passage.ID)
	assert.Equal(t, "p2", hits[2].Passage.ID)

	hits, err = idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	entries := []Entry{{Passage: Passage{ID: "p1", Text: "a"}, Vector: []float32{1, 0}}}

	require.NoError(t, idx.Upsert(ctx, entries))
	require.NoError(t, idx.Upsert(ctx, entries))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, idx.Upsert(ctx, []Entry{{Passage: Passage{ID: ""}, Vector: []float32{1}}}))
	assert.Error(t, idx.Upsert(ctx, []Entry{{Passage: Passage{ID: "p2"}}}))
}

func TestPgIndex_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	idx, err := ConnectPg(ctx, url, 3)
	if err != nil {
		t.Skipf("pgvector not reachable: %v", err)
	}
	defer idx.Close()

	entries := []Entry{
		{Passage: Passage{ID: "test-p1", Source: "t", Text: "door opens"}, Vector: []float32{1, 0, 0}},
		{Passage: Passage{ID: "test-p2", Source: "t", Text: "brakes"}, Vector: []float32{0, 1, 0}},
	}
	require.NoError(t, idx.Upsert(ctx, entries))
	require.NoError(t, idx.Upsert(ctx, entries))
	t.Cleanup(func() {
		_, _ = idx.pool.Exec(context.Background(), "DELETE FROM passages WHERE id LIKE 'test-%'")
	})

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "test-p1", hits[0].Passage.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	assert.Error(t, idx.Upsert(ctx, []Entry{{Passage: Passage{ID: "test-bad"}, Vector: []float32{1}}}))
}
