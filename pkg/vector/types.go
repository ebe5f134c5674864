// Package vector provides pluggable vector index backends for semantic
// search over skills, memories and sensors. The SQLite stores remain the
// source of truth; an index only accelerates similarity lookups and can
// be rebuilt from stored embeddings at any time.
package vector

import "context"

// Result is one similarity match.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Provider is a vector index backend. Vectors are pre-computed by the
// model router; providers never embed text themselves.
type Provider interface {
	// Upsert adds or replaces a vector under id in a collection.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK most similar entries.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter restricts Search to entries matching all filter fields.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes one entry by id.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes all entries matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// CreateCollection prepares a collection for the given dimension.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// DeleteCollection drops a collection and its entries.
	DeleteCollection(ctx context.Context, collection string) error

	// Name identifies the backend.
	Name() string

	// Close flushes and releases resources.
	Close() error
}

// Collection names used by the runtime.
const (
	CollectionSkills   = "skills"
	CollectionMemories = "memories"
	CollectionSensors  = "sensors"
)
