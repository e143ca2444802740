package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
products:
  - id: d1
    title: Drone Mini 4K
    category: drones
    store: Loja Céu
    price: 1299.9
  - id: d2
    title: Drone Racer FPV
    category: drones
    store: Loja Céu
    price: 899
  - id: c1
    title: Câmera de Ação 4K
    category: cameras
    store: FotoMax
    price: 749
  - id: broken
    title: ""
    category: drones
    store: Loja Céu
suggestions:
  drone bom: [drone, camera, quadricoptero]
  celular: [smartphone]
`

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic([]byte(fixtureYAML))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	_, err = ParseStatic([]byte("products: [:"))
	assert.Error(t, err)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0644))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticCatalog_Search(t *testing.T) {
	s, err := ParseStatic([]byte(fixtureYAML))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("prefix match keeps fixture order", func(t *testing.T) {
		items, err := s.Search(ctx, "drone")
		require.NoError(t, err)
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		assert.Equal(t, []string{"d1", "d2", "broken"}, ids)
	})

	t.Run("every token must be covered", func(t *testing.T) {
		items, err := s.Search(ctx, "drone bom")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("accents are folded", func(t *testing.T) {
		items, err := s.Search(ctx, "Câmera 4k")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "c1", items[0].ID)
	})

	t.Run("stopwords are ignored", func(t *testing.T) {
		items, err := s.Search(ctx, "quero um drone racer")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "d2", items[0].ID)
	})

	t.Run("blank term", func(t *testing.T) {
		_, err := s.Search(ctx, "?!")
		assert.ErrorIs(t, err, ErrEmptyTerm)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Search(cctx, "drone")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStaticCatalog_Suggest(t *testing.T) {
	s, err := ParseStatic([]byte(fixtureYAML))
	require.NoError(t, err)
	ctx := context.Background()

	terms, err := s.Suggest(ctx, "Drone bom!")
	require.NoError(t, err)
	assert.Equal(t, []string{"drone", "camera", "quadricoptero"}, terms)

	terms, err = s.Suggest(ctx, "celular barato")
	require.NoError(t, err)
	assert.Equal(t, []string{"smartphone"}, terms)

	terms, err = s.Suggest(ctx, "racer")
	require.NoError(t, err)
	assert.Equal(t, []string{"drones"}, terms)

	terms, err = s.Suggest(ctx, "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, terms)
}
