package neoschema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmeta/neoschema/graph"
)

// countingStore counts read calls passing through to the wrapped store.
type countingStore struct {
	graph.Store
	fetches   int
	neighbors int
}

func (s *countingStore) FetchNodes(ctx context.Context, q graph.NodeQuery) ([]graph.Node, error) {
	s.fetches++
	return s.Store.FetchNodes(ctx, q)
}

func (s *countingStore) Neighbors(ctx context.Context, id graph.NodeID, relType string, dir graph.Direction, targetLabels []string) ([]graph.Neighbor, error) {
	s.neighbors++
	return s.Store.Neighbors(ctx, id, relType, dir, targetLabels)
}

func TestSchemaCache_MemoizesLookups(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Store: graph.NewMemory()}
	reg := NewSchemaRegistry(counting)

	_, err := reg.CreateClass(ctx, ClassSpec{Name: "patient", Strict: true})
	require.NoError(t, err)
	_, err = reg.AddProperties(ctx, "patient", propSpecs("name", "age"))
	require.NoError(t, err)
	_, err = reg.CreateClass(ctx, ClassSpec{Name: "result", Strict: true})
	require.NoError(t, err)
	require.NoError(t, reg.CreateClassRelationship(ctx, "patient", "result", "HAS_RESULT"))

	cache := NewSchemaCache(reg)

	t.Run("class", func(t *testing.T) {
		first, err := cache.Class(ctx, "patient")
		require.NoError(t, err)
		fetchesAfterFirst := counting.fetches

		second, err := cache.Class(ctx, "patient")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, fetchesAfterFirst, counting.fetches, "second lookup should not hit the store")
	})

	t.Run("inherited properties", func(t *testing.T) {
		first, err := cache.InheritedProperties(ctx, "patient")
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, first)
		callsAfterFirst := counting.neighbors

		second, err := cache.InheritedProperties(ctx, "patient")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, callsAfterFirst, counting.neighbors)
	})

	t.Run("outbound links", func(t *testing.T) {
		first, err := cache.OutboundLinks(ctx, "patient")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"HAS_RESULT": "result"}, first)
		callsAfterFirst := counting.neighbors

		second, err := cache.OutboundLinks(ctx, "patient")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, callsAfterFirst, counting.neighbors)
	})
}

func TestSchemaCache_SnapshotsSchemaState(t *testing.T) {
	ctx := context.Background()
	reg := NewSchemaRegistry(graph.NewMemory())

	_, err := reg.CreateClass(ctx, ClassSpec{Name: "patient", Strict: true})
	require.NoError(t, err)
	_, err = reg.AddProperties(ctx, "patient", propSpecs("name"))
	require.NoError(t, err)

	cache := NewSchemaCache(reg)
	before, err := cache.InheritedProperties(ctx, "patient")
	require.NoError(t, err)
	require.Equal(t, []string{"name"}, before)

	_, err = reg.AddProperties(ctx, "patient", propSpecs("age"))
	require.NoError(t, err)

	cached, err := cache.InheritedProperties(ctx, "patient")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, cached, "cache keeps the view it was built with")

	fresh, err := NewSchemaCache(reg).InheritedProperties(ctx, "patient")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, fresh, "a new cache sees the current schema")
}

func TestSchemaCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	reg := NewSchemaRegistry(graph.NewMemory())
	cache := NewSchemaCache(reg)

	_, err := cache.Class(ctx, "late")
	require.ErrorIs(t, err, &Error{Code: ErrCodeNotFound})

	_, err = reg.CreateClass(ctx, ClassSpec{Name: "late"})
	require.NoError(t, err)

	info, err := cache.Class(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", info.Name)
}
