package skill

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSkill struct {
	Base
	run func(map[string]interface{}) (map[string]interface{}, error)
}

func newFakeSkill(name, description, category, subCategory string) *fakeSkill {
	return &fakeSkill{Base: NewBase(&Info{
		Name:        name,
		Description: description,
		Category:    category,
		SubCategory: subCategory,
	})}
}

func (f *fakeSkill) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if f.run != nil {
		return f.run(inputs)
	}
	return map[string]interface{}{"success": true}, nil
}

// countingEmbedder returns fixed vectors and counts calls.
type countingEmbedder struct {
	calls   int
	vectors map[string][]float32
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func newTestRegistry(t *testing.T, embedder Embedder) *Registry {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "skills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRegistry(store, embedder, t.TempDir())
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	s := newFakeSkill("web_search", "searches the web", "web", "search")
	require.NoError(t, r.Register(ctx, s))

	got, err := r.GetSkill("web_search")
	require.NoError(t, err)
	assert.Equal(t, "web_search", got.Info().Name)

	_, err = r.GetSkill("absent")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newFakeSkill("dup", "first", "a", "")))
	require.NoError(t, r.Register(ctx, newFakeSkill("dup", "second", "a", "")))

	got, err := r.GetSkill("dup")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Info().Description)
	assert.Equal(t, 1, r.Count())
}

func TestListInfosFiltersDisabled(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	enabled := newFakeSkill("on", "", "a", "")
	disabled := newFakeSkill("off", "", "b", "")
	require.NoError(t, r.Register(ctx, enabled))
	require.NoError(t, r.Register(ctx, disabled))
	require.NoError(t, r.UpdateConfig(ctx, "off", map[string]interface{}{"enabled": false}))

	infos := r.ListInfos(false)
	require.Len(t, infos, 1)
	assert.Equal(t, "on", infos[0].Name)

	assert.Len(t, r.ListInfos(true), 2)
}

func TestUpdateConfigSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "skills.db")
	ctx := context.Background()

	store, err := OpenStore(dbPath)
	require.NoError(t, err)
	r := NewRegistry(store, nil, dir)
	require.NoError(t, r.Register(ctx, newFakeSkill("cfg", "", "a", "")))
	require.NoError(t, r.UpdateConfig(ctx, "cfg", map[string]interface{}{"api_key": "secret"}))
	require.NoError(t, store.Close())

	store2, err := OpenStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()
	r2 := NewRegistry(store2, nil, dir)
	fresh := newFakeSkill("cfg", "", "a", "")
	require.NoError(t, r2.Register(ctx, fresh))

	assert.Equal(t, "secret", fresh.ConfigString("api_key"))
}

func TestEnsureEmbeddingsIdempotent(t *testing.T) {
	embedder := &countingEmbedder{}
	r := newTestRegistry(t, embedder)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newFakeSkill("a", "first", "x", "")))
	require.NoError(t, r.Register(ctx, newFakeSkill("b", "second", "y", "")))

	n, err := r.EnsureEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.EnsureEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, embedder.calls)
}

func TestRetrieveRelevantDiversity(t *testing.T) {
	// Three web skills and one io skill; open retrieval must never
	// return two web skills while an io skill is relevant.
	embedder := &countingEmbedder{vectors: map[string][]float32{
		"summarise this document": {1, 0, 0},
	}}
	r := newTestRegistry(t, embedder)
	ctx := context.Background()

	web1 := newFakeSkill("web_search", "search the web for documents", "web", "")
	web2 := newFakeSkill("web_scrape", "scrape web pages for documents", "web", "")
	web3 := newFakeSkill("web_news", "fetch news from the web", "web", "")
	io1 := newFakeSkill("file_manager", "read and summarise document files", "io", "")
	for _, s := range []Skill{web1, web2, web3, io1} {
		require.NoError(t, r.Register(ctx, s))
	}

	matches, err := r.RetrieveRelevant(ctx, "summarise this document", 3, "", "")
	require.NoError(t, err)

	categories := map[string]int{}
	for _, m := range matches {
		categories[m.Skill.Info().Category]++
	}
	assert.LessOrEqual(t, categories["web"], 1)
	assert.Equal(t, 1, categories["io"])
}

func TestRetrieveRelevantTargetedCategory(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newFakeSkill("a", "alpha", "web", "")))
	require.NoError(t, r.Register(ctx, newFakeSkill("b", "beta", "web", "")))
	require.NoError(t, r.Register(ctx, newFakeSkill("c", "gamma", "io", "")))

	matches, err := r.RetrieveRelevant(ctx, "anything", 2, "web", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "web", m.Skill.Info().Category)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "skills.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	vec := []float32{0.25, -0.5, 0.125, 3.5}
	require.NoError(t, store.SaveEmbedding(ctx, "s", vec))

	got, err := store.GetEmbedding(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestValidateInputs(t *testing.T) {
	s := &fakeSkill{Base: NewBase(&Info{
		Name: "v",
		Inputs: &InputSchema{
			Properties: map[string]*Parameter{
				"action": {Type: "string", Enum: []string{"read", "write"}},
				"count":  {Type: "integer"},
			},
			Required: []string{"action"},
		},
	})}

	require.Error(t, s.ValidateInputs(map[string]interface{}{}))
	require.Error(t, s.ValidateInputs(map[string]interface{}{"action": "delete"}))
	require.Error(t, s.ValidateInputs(map[string]interface{}{"action": "read", "count": "three"}))
	require.NoError(t, s.ValidateInputs(map[string]interface{}{"action": "read", "count": 3}))
}

func TestCheckConfigMissingKeys(t *testing.T) {
	s := &fakeSkill{Base: NewBase(&Info{
		Name: "needs_key",
		Config: ConfigSchema{
			"api_key": {Required: true},
			"region":  {Required: false},
		},
	})}

	err := s.CheckConfig()
	var missing *MissingConfigError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"api_key"}, missing.MissingKeys)

	s.Configure(map[string]interface{}{"api_key": "k"})
	assert.NoError(t, s.CheckConfig())
}
