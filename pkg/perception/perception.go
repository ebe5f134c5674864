// Package perception manages sensing modules: builtins compiled into
// the runtime and dynamic modules loaded from disk. Modules observe the
// environment on demand; their descriptions are embedded so the planner
// can discover relevant sensors semantically.
package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/registry"
	"github.com/connexhq/connex/pkg/store"
	"github.com/connexhq/connex/pkg/vector"
)

// Meta describes a perception module.
type Meta struct {
	Name        string
	Description string
	Category    string
	SubCategory string
	Type        string
	Version     string
}

// Module is one sensing capability. Connect is called once at
// registration; Perceive may be called concurrently afterwards.
type Module interface {
	Meta() Meta
	Connect(ctx context.Context) error
	Perceive(ctx context.Context, query string) (map[string]interface{}, error)
}

// Embedder produces vectors for module descriptions and search queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Grounding receives observations after a successful perceive. It runs
// on its own goroutine and must never block or fail the perception.
type Grounding func(name string, observation map[string]interface{})

// Layer is the perception registry plus its persistent metadata.
type Layer struct {
	*registry.BaseRegistry[Module]

	store    *store.Store
	embedder Embedder
	index    vector.Provider

	mu        sync.RWMutex
	grounding Grounding

	log *slog.Logger
}

func NewLayer(st *store.Store, embedder Embedder) *Layer {
	return &Layer{
		BaseRegistry: registry.NewBaseRegistry[Module](),
		store:        st,
		embedder:     embedder,
		log:          logger.GetLogger(),
	}
}

// SetIndex attaches an optional vector index mirror for sensor search.
func (l *Layer) SetIndex(idx vector.Provider) { l.index = idx }

// SetGrounding installs the world-state forward callback.
func (l *Layer) SetGrounding(g Grounding) {
	l.mu.Lock()
	l.grounding = g
	l.mu.Unlock()
}

// Register connects the module and records its metadata. A Connect
// failure skips the module without failing the layer.
func (l *Layer) Register(ctx context.Context, m Module) error {
	meta := m.Meta()
	if meta.Name == "" {
		return fmt.Errorf("perception module has no name")
	}

	if err := m.Connect(ctx); err != nil {
		l.log.Warn("perception module failed to connect, skipping", "module", meta.Name, "error", err)
		return nil
	}

	if l.Replace(meta.Name, m) {
		l.log.Debug("replacing registered perception module", "module", meta.Name)
	}

	rec := &store.PerceptionRecord{
		Name:        meta.Name,
		Description: meta.Description,
		Category:    meta.Category,
		SubCategory: meta.SubCategory,
		Type:        meta.Type,
		Version:     meta.Version,
		Enabled:     true,
		LastUpdated: time.Now().UTC(),
	}
	if existing, err := l.store.GetPerception(ctx, meta.Name); err == nil && existing != nil {
		rec.Embedding = existing.Embedding
		rec.Enabled = existing.Enabled
	}
	if err := l.store.UpsertPerception(ctx, rec); err != nil {
		return fmt.Errorf("failed to record perception %s: %w", meta.Name, err)
	}
	return nil
}

// Perceive runs one module and forwards the observation to the
// grounding callback without blocking the caller.
func (l *Layer) Perceive(ctx context.Context, name, query string) (map[string]interface{}, error) {
	m, ok := l.Get(name)
	if !ok {
		return nil, fmt.Errorf("perception module %q is not registered", name)
	}

	observation, err := m.Perceive(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("perception %s failed: %w", name, err)
	}

	l.mu.RLock()
	grounding := l.grounding
	l.mu.RUnlock()
	if grounding != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Warn("grounding callback panicked", "module", name, "panic", r)
				}
			}()
			grounding(name, observation)
		}()
	}

	return observation, nil
}

// EnsureEmbeddings embeds every stored perception that lacks a vector.
// Returns the number embedded.
func (l *Layer) EnsureEmbeddings(ctx context.Context) (int, error) {
	records, err := l.store.ListPerceptions(ctx, false)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, rec := range records {
		if len(rec.Embedding) > 0 {
			continue
		}
		text := fmt.Sprintf("%s: %s (%s/%s)", rec.Name, rec.Description, rec.Category, rec.SubCategory)
		vec, err := l.embedder.Embed(ctx, text)
		if err != nil {
			return embedded, fmt.Errorf("failed to embed perception %s: %w", rec.Name, err)
		}
		rec.Embedding = vec
		if err := l.store.UpsertPerception(ctx, rec); err != nil {
			return embedded, err
		}
		if l.index != nil {
			meta := map[string]interface{}{"category": rec.Category, "sub_category": rec.SubCategory}
			if err := l.index.Upsert(ctx, vector.CollectionSensors, rec.Name, vec, meta); err != nil {
				l.log.Warn("failed to mirror perception to vector index", "module", rec.Name, "error", err)
			}
		}
		embedded++
	}
	return embedded, nil
}
