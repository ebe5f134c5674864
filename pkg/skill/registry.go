package skill

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/registry"
	"github.com/connexhq/connex/pkg/vector"
)

// Embedder produces embedding vectors for retrieval. The model router
// satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Registry installs skills, persists their metadata, embeddings and
// configs, and serves semantic retrieval.
type Registry struct {
	*registry.BaseRegistry[Skill]

	store    *SQLStore
	embedder Embedder
	index    vector.Provider
	dataDir  string
	log      *slog.Logger
}

// NewRegistry creates a registry over the given store. embedder may be
// nil; retrieval then degrades to lexical scoring only.
func NewRegistry(store *SQLStore, embedder Embedder, dataDir string) *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Skill](),
		store:        store,
		embedder:     embedder,
		dataDir:      dataDir,
		log:          logger.GetLogger(),
	}
}

// SetIndex attaches an optional vector index mirror. The SQLite blobs
// remain authoritative; the index is refreshed on EnsureEmbeddings.
func (r *Registry) SetIndex(p vector.Provider) { r.index = p }

// Register installs a skill: assigns its data directory, merges the
// persisted config and upserts metadata. Replacing an existing name is
// allowed and logged.
func (r *Registry) Register(ctx context.Context, s Skill) error {
	info := s.Info()
	if info == nil || info.Name == "" {
		return &Error{Action: "register", Message: "skill has no name"}
	}

	if r.dataDir != "" {
		dir := filepath.Join(r.dataDir, "skills", info.Name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &Error{Skill: info.Name, Action: "register", Message: "failed to create data directory", Err: err}
		}
		if ds, ok := s.(interface{ SetDataDir(string) }); ok {
			ds.SetDataDir(dir)
		}
	}

	stored, err := r.store.GetConfig(ctx, info.Name)
	if err != nil {
		return &Error{Skill: info.Name, Action: "register", Message: "failed to load persisted config", Err: err}
	}
	if len(stored) > 0 {
		s.Configure(stored)
	}

	if replaced := r.Replace(info.Name, s); replaced {
		r.log.Info("replacing registered skill", "skill", info.Name)
	}

	if err := r.store.SaveInfo(ctx, info); err != nil {
		return &Error{Skill: info.Name, Action: "register", Message: "failed to persist metadata", Err: err}
	}
	return nil
}

// GetSkill returns a registered skill or a NotFoundError.
func (r *Registry) GetSkill(name string) (Skill, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return s, nil
}

// ListInfos returns metadata for registered skills, excluding disabled
// ones unless includeDisabled is set.
func (r *Registry) ListInfos(includeDisabled bool) []*Info {
	var out []*Info
	for _, name := range r.Names() {
		s, ok := r.Get(name)
		if !ok {
			continue
		}
		if !includeDisabled && !skillEnabled(s) {
			continue
		}
		out = append(out, s.Info())
	}
	return out
}

func skillEnabled(s Skill) bool {
	if e, ok := s.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	return true
}

// UpdateConfig merges a patch into the skill's runtime config and
// persists the merged result.
func (r *Registry) UpdateConfig(ctx context.Context, name string, patch map[string]interface{}) error {
	s, err := r.GetSkill(name)
	if err != nil {
		return err
	}

	stored, err := r.store.GetConfig(ctx, name)
	if err != nil {
		return &Error{Skill: name, Action: "update_config", Message: "failed to load persisted config", Err: err}
	}
	for k, v := range patch {
		stored[k] = v
	}

	s.Configure(patch)
	if err := r.store.SaveConfig(ctx, name, stored); err != nil {
		return &Error{Skill: name, Action: "update_config", Message: "failed to persist config", Err: err}
	}
	return nil
}

// EnsureEmbeddings computes and persists an embedding for every
// registered skill that lacks one. Idempotent; returns the number of
// vectors computed.
func (r *Registry) EnsureEmbeddings(ctx context.Context) (int, error) {
	if r.embedder == nil {
		return 0, nil
	}

	existing, err := r.store.AllEmbeddings(ctx)
	if err != nil {
		return 0, err
	}

	computed := 0
	for _, name := range r.Names() {
		if _, ok := existing[name]; ok {
			continue
		}
		s, ok := r.Get(name)
		if !ok {
			continue
		}

		vec, err := r.embedder.Embed(ctx, s.Info().EmbeddingText())
		if err != nil {
			r.log.Warn("failed to embed skill", "skill", name, "error", err)
			continue
		}
		if err := r.store.SaveEmbedding(ctx, name, vec); err != nil {
			return computed, err
		}
		r.mirrorToIndex(ctx, name, s.Info(), vec)
		computed++
	}

	if computed > 0 {
		r.log.Info("computed skill embeddings", "count", computed)
	}
	return computed, nil
}

func (r *Registry) mirrorToIndex(ctx context.Context, name string, info *Info, vec []float32) {
	if r.index == nil {
		return
	}
	meta := map[string]any{
		"content":  info.Description,
		"category": info.Category,
	}
	if err := r.index.Upsert(ctx, vector.CollectionSkills, name, vec, meta); err != nil {
		r.log.Warn("failed to mirror skill embedding to index", "skill", name, "error", err)
	}
}

// Store exposes the backing store for callers that share it.
func (r *Registry) Store() *SQLStore { return r.store }
