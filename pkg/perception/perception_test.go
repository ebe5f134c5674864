package perception

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connexhq/connex/pkg/store"
)

type fakeModule struct {
	meta       Meta
	connectErr error
	observe    map[string]interface{}
}

func (f *fakeModule) Meta() Meta                   { return f.meta }
func (f *fakeModule) Connect(context.Context) error { return f.connectErr }
func (f *fakeModule) Perceive(context.Context, string) (map[string]interface{}, error) {
	return f.observe, nil
}

type axisEmbedder struct {
	vectors map[string][]float32
}

func (a *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	for key, v := range a.vectors {
		if key == text {
			return v, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

func newTestLayer(t *testing.T) (*Layer, *store.Store) {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "perception.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLayer(db, &axisEmbedder{}), db
}

func TestRegisterAndPerceive(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	m := &fakeModule{
		meta:    Meta{Name: "thermometer", Description: "room temperature", Category: "environment"},
		observe: map[string]interface{}{"celsius": 21.5},
	}
	require.NoError(t, layer.Register(ctx, m))

	out, err := layer.Perceive(ctx, "thermometer", "")
	require.NoError(t, err)
	assert.Equal(t, 21.5, out["celsius"])

	_, err = layer.Perceive(ctx, "missing", "")
	assert.Error(t, err)
}

func TestRegisterSkipsFailedConnect(t *testing.T) {
	layer, db := newTestLayer(t)
	ctx := context.Background()

	m := &fakeModule{
		meta:       Meta{Name: "broken", Description: "never connects"},
		connectErr: errors.New("device missing"),
	}
	require.NoError(t, layer.Register(ctx, m))

	_, ok := layer.Get("broken")
	assert.False(t, ok)

	rec, err := db.GetPerception(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGroundingForwardDoesNotBlock(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	var mu sync.Mutex
	var forwarded map[string]interface{}
	done := make(chan struct{})
	layer.SetGrounding(func(name string, obs map[string]interface{}) {
		mu.Lock()
		forwarded = obs
		mu.Unlock()
		close(done)
	})

	m := &fakeModule{
		meta:    Meta{Name: "clock2", Description: "time"},
		observe: map[string]interface{}{"tick": 1},
	}
	require.NoError(t, layer.Register(ctx, m))

	_, err := layer.Perceive(ctx, "clock2", "")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("grounding callback never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, forwarded["tick"])
}

func TestEnsureEmbeddingsIdempotent(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	require.NoError(t, layer.Register(ctx, &fakeModule{meta: Meta{Name: "a", Description: "first"}}))
	require.NoError(t, layer.Register(ctx, &fakeModule{meta: Meta{Name: "b", Description: "second"}}))

	n, err := layer.EnsureEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = layer.EnsureEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSearchSensorsDiversityAndBoosts(t *testing.T) {
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "perception.db"))
	require.NoError(t, err)
	defer db.Close()

	emb := &axisEmbedder{vectors: map[string][]float32{
		"what is the weather like": {1, 0, 0},
	}}
	layer := NewLayer(db, emb)
	ctx := context.Background()

	records := []*store.PerceptionRecord{
		{Name: "weather_a", Description: "outdoor weather conditions", Category: "environment", SubCategory: "weather", Enabled: true, Embedding: []float32{0.9, 0.1, 0}},
		{Name: "weather_b", Description: "indoor climate", Category: "environment", SubCategory: "climate", Enabled: true, Embedding: []float32{0.8, 0.2, 0}},
		{Name: "clock", Description: "current time", Category: "time", SubCategory: "clock", Enabled: true, Embedding: []float32{0, 1, 0}},
		{Name: "disabled", Description: "weather backup", Category: "environment", Enabled: false, Embedding: []float32{1, 0, 0}},
	}
	for _, rec := range records {
		rec.LastUpdated = time.Now().UTC()
		require.NoError(t, db.UpsertPerception(ctx, rec))
	}

	matches, err := layer.SearchSensors(ctx, "what is the weather like", 5)
	require.NoError(t, err)

	perCategory := map[string]int{}
	for _, m := range matches {
		perCategory[m.Record.Category]++
		assert.NotEqual(t, "disabled", m.Record.Name)
	}
	assert.LessOrEqual(t, perCategory["environment"], 1)
	require.NotEmpty(t, matches)
	assert.Equal(t, "weather_a", matches[0].Record.Name, "sub-category boost should win")
}
