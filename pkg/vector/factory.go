package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ProviderType identifies a vector backend.
type ProviderType string

const (
	ProviderChromem  ProviderType = "chromem"
	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"
)

// Config selects and configures a backend.
type Config struct {
	Type ProviderType `yaml:"type"`

	// PersistPath is used by the chromem backend.
	PersistPath string `yaml:"persist_path,omitempty"`

	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone PineconeConfig `yaml:"pinecone,omitempty"`
}

// NewProvider constructs the configured backend.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Type {
	case ProviderChromem, "":
		return NewChromemProvider(cfg.PersistPath)
	case ProviderQdrant:
		return NewQdrantProvider(cfg.Qdrant)
	case ProviderPinecone:
		return NewPineconeProvider(cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown vector provider type: %s", cfg.Type)
	}
}

// FromEnv builds a provider from CONNEX_VECTOR_PROVIDER and related
// variables, defaulting to a chromem index persisted under dataDir.
func FromEnv(dataDir string) (Provider, error) {
	cfg := Config{
		Type:        ProviderType(os.Getenv("CONNEX_VECTOR_PROVIDER")),
		PersistPath: filepath.Join(dataDir, "vectors"),
	}

	switch cfg.Type {
	case ProviderQdrant:
		cfg.Qdrant.Host = os.Getenv("QDRANT_HOST")
		if port := os.Getenv("QDRANT_PORT"); port != "" {
			if n, err := strconv.Atoi(port); err == nil {
				cfg.Qdrant.Port = n
			}
		}
		cfg.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	case ProviderPinecone:
		cfg.Pinecone.APIKey = os.Getenv("PINECONE_API_KEY")
		cfg.Pinecone.IndexName = os.Getenv("PINECONE_INDEX")
	}

	return NewProvider(cfg)
}
