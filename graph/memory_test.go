package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemory()
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestMemoryStore_CreateAndFetch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"Car", "data node"}, map[string]any{"name": "Honda", "color": "white"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	n := nodes[0]
	assert.Equal(t, id, n.ID)
	assert.True(t, n.HasLabel("Car"))
	assert.True(t, n.HasLabel("data node"))
	assert.Equal(t, "Honda", n.GetString("name"))
	assert.Equal(t, "white", n.GetString("color"))
}

func TestMemoryStore_CreateNodeDedupesLabels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"Car", "Car", ""}, nil)
	require.NoError(t, err)

	nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, []string{"Car"}, nodes[0].Labels)
}

func TestMemoryStore_FetchedNodeIsACopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "Honda"})
	require.NoError(t, err)

	nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	nodes[0].Props["name"] = "mutated"

	again, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	assert.Equal(t, "Honda", again[0].GetString("name"))
}

func TestMemoryStore_CreateNodesPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := []map[string]any{
		{"name": "first"},
		{"name": "second"},
		{"name": "third"},
	}
	ids, err := s.CreateNodes(ctx, []string{"Item"}, records)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for i, id := range ids {
		nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, records[i]["name"], nodes[0].GetString("name"))
	}
}

func TestMemoryStore_FetchNodesFiltering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"color": "white"})
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, []string{"Car"}, map[string]any{"color": "red"})
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, []string{"Boat"}, map[string]any{"color": "white"})
	require.NoError(t, err)

	t.Run("by label", func(t *testing.T) {
		nodes, err := s.FetchNodes(ctx, NodeQuery{Labels: []string{"Car"}})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("by label and property", func(t *testing.T) {
		nodes, err := s.FetchNodes(ctx, NodeQuery{Labels: []string{"Car"}, Props: map[string]any{"color": "white"}})
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("by property across labels", func(t *testing.T) {
		nodes, err := s.FetchNodes(ctx, NodeQuery{Props: map[string]any{"color": "white"}})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("no match", func(t *testing.T) {
		nodes, err := s.FetchNodes(ctx, NodeQuery{Labels: []string{"Plane"}})
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("limit caps results", func(t *testing.T) {
		nodes, err := s.FetchNodes(ctx, NodeQuery{Labels: []string{"Car"}, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("count ignores limit", func(t *testing.T) {
		count, err := s.CountNodes(ctx, NodeQuery{Labels: []string{"Car"}, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestMemoryStore_NumericEqualityCrossesTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateNode(ctx, []string{"Item"}, map[string]any{"quantity": int64(5)})
	require.NoError(t, err)

	nodes, err := s.FetchNodes(ctx, NodeQuery{Props: map[string]any{"quantity": 5}})
	require.NoError(t, err)
	assert.Len(t, nodes, 1, "int query value should match int64 stored value")
}

func TestMemoryStore_UpdateNodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"color": "white", "doomed": true})
	require.NoError(t, err)

	count, err := s.UpdateNodes(ctx, NodeQuery{IDs: []NodeID{id}}, map[string]any{"color": "red", "year": 2003}, []string{"doomed", "absent"})
	require.NoError(t, err)
	assert.Equal(t, 3, count, "two sets plus one real removal")

	nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "red", nodes[0].GetString("color"))
	assert.Equal(t, 2003, nodes[0].Props["year"])
	assert.NotContains(t, nodes[0].Props, "doomed")
}

func TestMemoryStore_UpdateNodesNoMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	count, err := s.UpdateNodes(ctx, NodeQuery{Labels: []string{"Ghost"}}, map[string]any{"x": 1}, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_DeleteNodesDetaches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "b"})
	require.NoError(t, err)
	require.NoError(t, s.CreateRelationship(ctx, b, a, "owns", nil))

	deleted, err := s.DeleteNodes(ctx, NodeQuery{IDs: []NodeID{a}})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	neighbors, err := s.Neighbors(ctx, b, "", Both, nil)
	require.NoError(t, err)
	assert.Empty(t, neighbors, "relationships to a deleted node disappear with it")
}

func TestMemoryStore_MergeNode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("creates when absent", func(t *testing.T) {
		id, created, err := s.MergeNode(ctx, []string{"SCHEMA", "Schema Autoincrement"}, map[string]any{"namespace": "car"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, id)
	})

	t.Run("finds the existing node", func(t *testing.T) {
		first, created, err := s.MergeNode(ctx, []string{"CLASS"}, map[string]any{"name": "Car"})
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := s.MergeNode(ctx, []string{"CLASS"}, map[string]any{"name": "Car"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, second)
	})

	t.Run("matches on label subset of the node", func(t *testing.T) {
		id, created, err := s.MergeNode(ctx, []string{"A", "B"}, map[string]any{"k": "v"})
		require.NoError(t, err)
		require.True(t, created)

		found, created, err := s.MergeNode(ctx, []string{"A"}, map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id, found)
	})

	t.Run("requires a label", func(t *testing.T) {
		_, _, err := s.MergeNode(ctx, nil, map[string]any{"k": "v"})
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeQueryFailed}))
	})
}

func TestMemoryStore_MergeNodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("creates then overlays", func(t *testing.T) {
		ids, created, err := s.MergeNodes(ctx, []string{"Car"}, "vin", []map[string]any{
			{"vin": "v1", "color": "white", "year": 1999},
			{"vin": "v2", "color": "red"},
		}, false)
		require.NoError(t, err)
		assert.Equal(t, 2, created)
		require.Len(t, ids, 2)

		ids2, created, err := s.MergeNodes(ctx, []string{"Car"}, "vin", []map[string]any{
			{"vin": "v1", "color": "blue"},
		}, false)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Equal(t, ids[0], ids2[0])

		nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{ids[0]}})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "blue", nodes[0].GetString("color"))
		assert.Equal(t, 1999, nodes[0].Props["year"], "overlay keeps fields the record does not mention")
	})

	t.Run("replace swaps the whole property map", func(t *testing.T) {
		ids, _, err := s.MergeNodes(ctx, []string{"Boat"}, "hull", []map[string]any{
			{"hull": "h1", "color": "white", "length": 12},
		}, true)
		require.NoError(t, err)

		_, created, err := s.MergeNodes(ctx, []string{"Boat"}, "hull", []map[string]any{
			{"hull": "h1", "color": "green"},
		}, true)
		require.NoError(t, err)
		assert.Zero(t, created)

		nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{ids[0]}})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "green", nodes[0].GetString("color"))
		assert.NotContains(t, nodes[0].Props, "length", "replace drops fields the record does not mention")
	})

	t.Run("nil value removes the key on overlay", func(t *testing.T) {
		ids, _, err := s.MergeNodes(ctx, []string{"Plane"}, "tail", []map[string]any{
			{"tail": "t1", "color": "white"},
		}, false)
		require.NoError(t, err)

		_, _, err = s.MergeNodes(ctx, []string{"Plane"}, "tail", []map[string]any{
			{"tail": "t1", "color": nil},
		}, false)
		require.NoError(t, err)

		nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{ids[0]}})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.NotContains(t, nodes[0].Props, "color")
	})

	t.Run("duplicate keys collapse to one node", func(t *testing.T) {
		ids, created, err := s.MergeNodes(ctx, []string{"Truck"}, "plate", []map[string]any{
			{"plate": "p1", "color": "white"},
			{"plate": "p1", "color": "black"},
		}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		require.Len(t, ids, 2)
		assert.Equal(t, ids[0], ids[1])
	})

	t.Run("record missing the key fails before any mutation", func(t *testing.T) {
		before, err := s.CountNodes(ctx, NodeQuery{Labels: []string{"Bike"}})
		require.NoError(t, err)

		_, _, err = s.MergeNodes(ctx, []string{"Bike"}, "frame", []map[string]any{
			{"frame": "f1"},
			{"color": "red"},
		}, false)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeQueryFailed}))

		after, err := s.CountNodes(ctx, NodeQuery{Labels: []string{"Bike"}})
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestMemoryStore_CreateNodeLinked(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	target, err := s.CreateNode(ctx, []string{"CLASS"}, map[string]any{"name": "Car"})
	require.NoError(t, err)

	t.Run("creates node with outbound and inbound links", func(t *testing.T) {
		source, err := s.CreateNode(ctx, []string{"Import Data"}, nil)
		require.NoError(t, err)

		id, err := s.CreateNodeLinked(ctx, []string{"Car"}, map[string]any{"name": "Honda"}, []LinkSpec{
			{Target: target, Type: "INSTANCE_OF"},
			{Target: source, Type: "imported_data", Inbound: true},
		})
		require.NoError(t, err)

		out, err := s.Neighbors(ctx, id, "INSTANCE_OF", Outbound, nil)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, target, out[0].Node.ID)

		in, err := s.Neighbors(ctx, id, "imported_data", Inbound, nil)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, source, in[0].Node.ID)
	})

	t.Run("missing target aborts without creating the node", func(t *testing.T) {
		before, err := s.CountNodes(ctx, NodeQuery{})
		require.NoError(t, err)

		_, err = s.CreateNodeLinked(ctx, []string{"Car"}, nil, []LinkSpec{
			{Target: target, Type: "INSTANCE_OF"},
			{Target: "no-such-node", Type: "INSTANCE_OF"},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeReferenceFailed}))
		assert.Contains(t, err.Error(), "expected 2 relationships, created 1")

		after, err := s.CountNodes(ctx, NodeQuery{})
		require.NoError(t, err)
		assert.Equal(t, before, after, "failed linked create must not leave a node behind")
	})

	t.Run("link without a type is rejected", func(t *testing.T) {
		_, err := s.CreateNodeLinked(ctx, []string{"Car"}, nil, []LinkSpec{{Target: target}})
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeQueryFailed}))
	})
}

func TestMemoryStore_Relationships(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "a"})
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "b"})
	require.NoError(t, err)

	t.Run("create requires both endpoints", func(t *testing.T) {
		err := s.CreateRelationship(ctx, a, "missing", "owns", nil)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeReferenceFailed}))
	})

	t.Run("create requires a type", func(t *testing.T) {
		err := s.CreateRelationship(ctx, a, b, "", nil)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeQueryFailed}))
	})

	t.Run("merge is idempotent and overlays props", func(t *testing.T) {
		require.NoError(t, s.MergeRelationship(ctx, a, b, "owns", map[string]any{"since": 2001}))
		require.NoError(t, s.MergeRelationship(ctx, a, b, "owns", map[string]any{"since": 2005}))

		neighbors, err := s.Neighbors(ctx, a, "owns", Outbound, nil)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, 2005, neighbors[0].RelProps["since"])
	})

	t.Run("create duplicates while merge does not", func(t *testing.T) {
		require.NoError(t, s.CreateRelationship(ctx, a, b, "drove", nil))
		require.NoError(t, s.CreateRelationship(ctx, a, b, "drove", nil))

		neighbors, err := s.Neighbors(ctx, a, "drove", Outbound, nil)
		require.NoError(t, err)
		assert.Len(t, neighbors, 2)
	})

	t.Run("delete by type", func(t *testing.T) {
		deleted, err := s.DeleteRelationships(ctx, a, b, "drove")
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)
	})

	t.Run("delete any type", func(t *testing.T) {
		require.NoError(t, s.MergeRelationship(ctx, a, b, "washed", nil))
		deleted, err := s.DeleteRelationships(ctx, a, b, "")
		require.NoError(t, err)
		assert.Equal(t, 2, deleted, "owns and washed both go")
	})

	t.Run("delete is directed", func(t *testing.T) {
		require.NoError(t, s.MergeRelationship(ctx, a, b, "owns", nil))
		deleted, err := s.DeleteRelationships(ctx, b, a, "owns")
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestMemoryStore_MergeRelationshipsBulk(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.MergeNodes(ctx, []string{"Person"}, "pid", []map[string]any{
		{"pid": "p1"}, {"pid": "p2"},
	}, false)
	require.NoError(t, err)
	_, _, err = s.MergeNodes(ctx, []string{"Car"}, "vin", []map[string]any{
		{"vin": "v1"}, {"vin": "v2"},
	}, false)
	require.NoError(t, err)

	spec := BulkLinkSpec{
		FromLabels: []string{"Person"},
		FromKey:    "pid",
		ToLabels:   []string{"Car"},
		ToKey:      "vin",
		RelType:    "owns",
	}

	merged, created, err := s.MergeRelationshipsBulk(ctx, spec, []BulkLinkRow{
		{From: "p1", To: "v1", Props: map[string]any{"since": 2001}},
		{From: "p2", To: "v2"},
		{From: "p1", To: "no-such-car"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, merged, "rows with no endpoint match bind nothing")
	assert.Equal(t, 2, created)

	merged, created, err = s.MergeRelationshipsBulk(ctx, spec, []BulkLinkRow{
		{From: "p1", To: "v1", Props: map[string]any{"since": 2010}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, merged, "an existing relationship still merges")
	assert.Zero(t, created, "merging an existing relationship creates nothing")

	people, err := s.FetchNodes(ctx, NodeQuery{Labels: []string{"Person"}, Props: map[string]any{"pid": "p1"}})
	require.NoError(t, err)
	require.Len(t, people, 1)
	neighbors, err := s.Neighbors(ctx, people[0].ID, "owns", Outbound, nil)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 2010, neighbors[0].RelProps["since"])
}

func TestMemoryStore_Neighbors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hub, err := s.CreateNode(ctx, []string{"Hub"}, nil)
	require.NoError(t, err)
	outNode, err := s.CreateNode(ctx, []string{"Spoke", "Red"}, map[string]any{"name": "out"})
	require.NoError(t, err)
	inNode, err := s.CreateNode(ctx, []string{"Spoke"}, map[string]any{"name": "in"})
	require.NoError(t, err)
	require.NoError(t, s.CreateRelationship(ctx, hub, outNode, "links", map[string]any{"index": 0}))
	require.NoError(t, s.CreateRelationship(ctx, inNode, hub, "links", nil))
	require.NoError(t, s.CreateRelationship(ctx, hub, outNode, "other", nil))

	t.Run("outbound typed", func(t *testing.T) {
		got, err := s.Neighbors(ctx, hub, "links", Outbound, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "out", got[0].Node.GetString("name"))
		assert.Equal(t, "links", got[0].RelType)
		assert.Equal(t, 0, got[0].RelProps["index"])
	})

	t.Run("inbound typed", func(t *testing.T) {
		got, err := s.Neighbors(ctx, hub, "links", Inbound, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "in", got[0].Node.GetString("name"))
	})

	t.Run("both directions any type", func(t *testing.T) {
		got, err := s.Neighbors(ctx, hub, "", Both, nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("target label filter", func(t *testing.T) {
		got, err := s.Neighbors(ctx, hub, "", Both, []string{"Red"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, n := range got {
			assert.Equal(t, "out", n.Node.GetString("name"))
		}
	})

	t.Run("missing node yields empty", func(t *testing.T) {
		got, err := s.Neighbors(ctx, "no-such-node", "", Both, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStore_Reachable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// car -> vehicle -> thing, with a cycle back to car
	car, err := s.CreateNode(ctx, []string{"CLASS"}, map[string]any{"name": "car"})
	require.NoError(t, err)
	vehicle, err := s.CreateNode(ctx, []string{"CLASS"}, map[string]any{"name": "vehicle"})
	require.NoError(t, err)
	thing, err := s.CreateNode(ctx, []string{"CLASS"}, map[string]any{"name": "thing"})
	require.NoError(t, err)
	require.NoError(t, s.CreateRelationship(ctx, car, vehicle, "INSTANCE_OF", nil))
	require.NoError(t, s.CreateRelationship(ctx, vehicle, thing, "INSTANCE_OF", nil))
	require.NoError(t, s.CreateRelationship(ctx, thing, car, "INSTANCE_OF", nil))

	t.Run("unbounded walks the cycle once", func(t *testing.T) {
		got, err := s.Reachable(ctx, car, "INSTANCE_OF", Outbound, 0)
		require.NoError(t, err)
		require.Len(t, got, 2, "start node is never part of the result")
		assert.Equal(t, "vehicle", got[0].Node.GetString("name"))
		assert.Equal(t, 1, got[0].Depth)
		assert.Equal(t, "thing", got[1].Node.GetString("name"))
		assert.Equal(t, 2, got[1].Depth)
	})

	t.Run("bounded depth", func(t *testing.T) {
		got, err := s.Reachable(ctx, car, "INSTANCE_OF", Outbound, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "vehicle", got[0].Node.GetString("name"))
	})

	t.Run("inbound walks the reverse edges", func(t *testing.T) {
		got, err := s.Reachable(ctx, car, "INSTANCE_OF", Inbound, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "thing", got[0].Node.GetString("name"))
		assert.Equal(t, 1, got[0].Depth)
	})

	t.Run("missing start yields empty", func(t *testing.T) {
		got, err := s.Reachable(ctx, "no-such-node", "INSTANCE_OF", Outbound, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStore_FetchAndAdd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.MergeNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "car"})
	require.NoError(t, err)
	q := NodeQuery{Labels: []string{"Schema Autoincrement"}, Props: map[string]any{"namespace": "car"}}

	t.Run("missing field reads as initial", func(t *testing.T) {
		prev, props, err := s.FetchAndAdd(ctx, q, "next_count", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), prev)
		assert.Equal(t, int64(2), props["next_count"])
		assert.Equal(t, "car", props["namespace"], "full property map comes back")
	})

	t.Run("subsequent calls advance", func(t *testing.T) {
		prev, _, err := s.FetchAndAdd(ctx, q, "next_count", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), prev)

		prev, props, err := s.FetchAndAdd(ctx, q, "next_count", 5, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), prev)
		assert.Equal(t, int64(8), props["next_count"])
	})

	t.Run("no match", func(t *testing.T) {
		_, _, err := s.FetchAndAdd(ctx, NodeQuery{Props: map[string]any{"namespace": "boat"}}, "next_count", 1, 1)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeNodeNotFound}))
	})

	t.Run("ambiguous match", func(t *testing.T) {
		_, err := s.CreateNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "dup"})
		require.NoError(t, err)
		_, err = s.CreateNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "dup"})
		require.NoError(t, err)

		_, _, err = s.FetchAndAdd(ctx, NodeQuery{Props: map[string]any{"namespace": "dup"}}, "next_count", 1, 1)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeAmbiguousMatch}))
	})

	t.Run("non-integer field", func(t *testing.T) {
		_, err := s.CreateNode(ctx, []string{"Counter"}, map[string]any{"next_count": "not a number"})
		require.NoError(t, err)

		_, _, err = s.FetchAndAdd(ctx, NodeQuery{Labels: []string{"Counter"}}, "next_count", 1, 1)
		assert.True(t, errors.Is(err, &Error{Code: ErrCodeQueryFailed}))
	})
}

func TestMemoryStore_FetchAndAddConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.MergeNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "data_node"})
	require.NoError(t, err)
	q := NodeQuery{Labels: []string{"Schema Autoincrement"}, Props: map[string]any{"namespace": "data_node"}}

	const goroutines = 50
	prevs := make([]int64, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prev, _, err := s.FetchAndAdd(ctx, q, "next_count", 1, 1)
			assert.NoError(t, err)
			prevs[i] = prev
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, goroutines)
	for _, p := range prevs {
		assert.False(t, seen[p], "value %d reserved twice", p)
		seen[p] = true
	}

	prev, _, err := s.FetchAndAdd(ctx, q, "next_count", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1+goroutines), prev)
}

func TestMemoryStore_ClosedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Close(ctx))

	closedErr := &Error{Code: ErrCodeStoreClosed}

	_, err := s.CreateNode(ctx, []string{"X"}, nil)
	assert.True(t, errors.Is(err, closedErr))

	_, err = s.FetchNodes(ctx, NodeQuery{})
	assert.True(t, errors.Is(err, closedErr))

	_, _, err = s.MergeNode(ctx, []string{"X"}, nil)
	assert.True(t, errors.Is(err, closedErr))

	assert.False(t, s.Health(ctx).IsHealthy())
	assert.Error(t, s.Connect(ctx))
}
