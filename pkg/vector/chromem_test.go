package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemUpsertAndSearch(t *testing.T) {
	p, err := NewChromemProvider("")
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, CollectionSkills, "a", []float32{1, 0, 0}, map[string]any{"content": "file operations"}))
	require.NoError(t, p.Upsert(ctx, CollectionSkills, "b", []float32{0, 1, 0}, map[string]any{"content": "web search"}))

	results, err := p.Search(ctx, CollectionSkills, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "file operations", results[0].Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromemSearchTopKClamped(t *testing.T) {
	p, err := NewChromemProvider("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, CollectionMemories, "only", []float32{1, 0}, nil))

	results, err := p.Search(ctx, CollectionMemories, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemSearchWithFilter(t *testing.T) {
	p, err := NewChromemProvider("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, CollectionSensors, "s1", []float32{1, 0}, map[string]any{"category": "system"}))
	require.NoError(t, p.Upsert(ctx, CollectionSensors, "s2", []float32{1, 0}, map[string]any{"category": "network"}))

	results, err := p.SearchWithFilter(ctx, CollectionSensors, []float32{1, 0}, 2, map[string]any{"category": "system"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].ID)
}

func TestChromemDelete(t *testing.T) {
	p, err := NewChromemProvider("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, CollectionSkills, "gone", []float32{1, 0}, nil))
	require.NoError(t, p.Delete(ctx, CollectionSkills, "gone"))

	results, err := p.Search(ctx, CollectionSkills, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(Config{Type: "milvus"})
	require.Error(t, err)
}
