package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/store"
	"github.com/connexhq/connex/pkg/utils"
	"github.com/connexhq/connex/pkg/vector"
)

// Embedder produces embedding vectors for memory content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Recalled is one long-term memory with its similarity to the query.
type Recalled struct {
	ID       int64
	Content  string
	Score    float64
	Metadata map[string]interface{}
}

// LongTerm stores durable memories in the SQL store and recalls them by
// cosine similarity. An optional vector index is kept in sync as a
// rebuildable mirror; the store remains authoritative.
type LongTerm struct {
	store     *store.Store
	embedder  Embedder
	index     vector.Provider
	threshold float64
	log       *slog.Logger
}

const defaultRecallThreshold = 0.35

func NewLongTerm(st *store.Store, embedder Embedder, threshold float64) *LongTerm {
	if threshold <= 0 {
		threshold = defaultRecallThreshold
	}
	return &LongTerm{
		store:     st,
		embedder:  embedder,
		threshold: threshold,
		log:       logger.GetLogger(),
	}
}

// SetIndex attaches a vector index mirror.
func (l *LongTerm) SetIndex(idx vector.Provider) { l.index = idx }

// Remember embeds and stores one memory, returning its id.
func (l *LongTerm) Remember(ctx context.Context, content string, metadata map[string]interface{}) (int64, error) {
	embedding, err := l.embedder.Embed(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("failed to embed memory: %w", err)
	}

	id, err := l.store.InsertMemory(ctx, content, embedding, metadata)
	if err != nil {
		return 0, err
	}

	if l.index != nil {
		meta := map[string]interface{}{"content": content}
		if err := l.index.Upsert(ctx, vector.CollectionMemories, strconv.FormatInt(id, 10), embedding, meta); err != nil {
			l.log.Warn("failed to mirror memory to vector index", "id", id, "error", err)
		}
	}
	return id, nil
}

// Recall returns up to limit memories scoring at or above the recall
// threshold, best first.
func (l *LongTerm) Recall(ctx context.Context, query string, limit int) ([]Recalled, error) {
	if limit <= 0 {
		limit = 5
	}

	queryVec, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed recall query: %w", err)
	}

	rows, err := l.store.AllMemories(ctx)
	if err != nil {
		return nil, err
	}

	var out []Recalled
	for _, row := range rows {
		score := utils.CosineSimilarity(queryVec, row.Embedding)
		if score < l.threshold {
			continue
		}
		out = append(out, Recalled{ID: row.ID, Content: row.Content, Score: score, Metadata: row.Metadata})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Forget deletes one memory from the store and the index mirror.
func (l *LongTerm) Forget(ctx context.Context, id int64) error {
	if err := l.store.DeleteMemory(ctx, id); err != nil {
		return err
	}
	if l.index != nil {
		if err := l.index.Delete(ctx, vector.CollectionMemories, strconv.FormatInt(id, 10)); err != nil {
			l.log.Warn("failed to remove memory from vector index", "id", id, "error", err)
		}
	}
	return nil
}
