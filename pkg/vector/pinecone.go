package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone backend.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host,omitempty"`
	IndexName string `yaml:"index_name,omitempty"`
}

// PineconeProvider indexes vectors in Pinecone. Collections map onto
// Pinecone indexes; an empty collection name falls back to IndexName.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
}

func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone requires an API key")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "connex-index"
	}
	return &PineconeProvider{client: client, indexName: indexName}, nil
}

func (p *PineconeProvider) Name() string { return "pinecone" }

func (p *PineconeProvider) index(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	name := collection
	if name == "" {
		name = p.indexName
	}
	desc, err := p.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", name, err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: desc.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %s: %w", name, err)
	}
	return conn, nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return structpb.NewStruct(m)
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	conn, err := p.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	meta, err := toStruct(metadata)
	if err != nil {
		return fmt.Errorf("failed to convert metadata: %w", err)
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	conn, err := p.index(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	metaFilter, err := toStruct(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to convert filter: %w", err)
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]Result, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		r := Result{ID: match.Vector.Id, Score: match.Score}
		if match.Vector.Metadata != nil {
			r.Metadata = match.Vector.Metadata.AsMap()
			if content, ok := r.Metadata["content"].(string); ok {
				r.Content = content
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *PineconeProvider) Delete(ctx context.Context, collection string, id string) error {
	conn, err := p.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete vector %s: %w", id, err)
	}
	return nil
}

func (p *PineconeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	conn, err := p.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	metaFilter, err := toStruct(filter)
	if err != nil {
		return fmt.Errorf("failed to convert filter: %w", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, metaFilter); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	name := collection
	if name == "" {
		name = p.indexName
	}
	_, err := p.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      name,
		Dimension: int32(vectorDimension),
		Metric:    pinecone.Cosine,
		Cloud:     pinecone.Aws,
		Region:    "us-east-1",
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	return nil
}

func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	name := collection
	if name == "" {
		name = p.indexName
	}
	if err := p.client.DeleteIndex(ctx, name); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	return nil
}

// Close is a no-op; connections are scoped per call.
func (p *PineconeProvider) Close() error { return nil }

var _ Provider = (*PineconeProvider)(nil)
