package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/connexhq/connex/pkg/logger"
)

// ChromemProvider is the default in-process index. Pure Go, no external
// service, optional gob persistence under the data directory.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	// embeddingFunc satisfies chromem's API; vectors always arrive
	// pre-computed, so calling it is a bug.
	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemProvider creates the in-process index. persistPath may be
// empty for a memory-only index.
func NewChromemProvider(persistPath string) (*ChromemProvider, error) {
	log := logger.GetLogger()

	var db *chromem.DB
	if persistPath != "" {
		if err := os.MkdirAll(persistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		dbPath := filepath.Join(persistPath, "vectors.gob")
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				log.Warn("failed to load vector index, starting fresh", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		db:          db,
		persistPath: persistPath,
		collections: make(map[string]*chromem.Collection),
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("vectors must be pre-computed")
		},
	}, nil
}

func (p *ChromemProvider) Name() string { return "chromem" }

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	strMeta := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
		if k == "content" {
			if s, ok := v.(string); ok {
				content = s
			}
		}
	}

	doc := chromem.Document{ID: id, Content: content, Metadata: strMeta, Embedding: vector}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert %q: %w", id, err)
	}
	return p.persist()
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem errors when topK exceeds the collection size
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	matches, err := col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		meta := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		out = append(out, Result{
			ID:       m.ID,
			Score:    m.Similarity,
			Content:  m.Content,
			Vector:   m.Embedding,
			Metadata: meta,
		})
	}
	return out, nil
}

func (p *ChromemProvider) Delete(ctx context.Context, collection string, id string) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete %q: %w", id, err)
	}
	return p.persist()
}

func (p *ChromemProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}
	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = fmt.Sprint(v)
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return p.persist()
}

// CreateCollection is implicit in chromem; opening the collection suffices.
func (p *ChromemProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	_, err := p.getCollection(collection)
	return err
}

func (p *ChromemProvider) DeleteCollection(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, collection)
	return p.persist()
}

func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := filepath.Join(p.persistPath, "vectors.gob")
	//nolint:staticcheck // Export remains the stable persistence entry point
	if err := p.db.Export(dbPath, false, ""); err != nil {
		return fmt.Errorf("failed to persist vector index: %w", err)
	}
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
