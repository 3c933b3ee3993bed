package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s := NewBadgerWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestBadgerStore_RequiresDirOrInMemory(t *testing.T) {
	s := NewBadgerWithOptions(BadgerOptions{})
	err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, &Error{Code: ErrCodeConfigInvalid}))
}

func TestBadgerStore_ClosedBeforeConnect(t *testing.T) {
	ctx := context.Background()
	s := NewBadger(t.TempDir())

	_, err := s.CreateNode(ctx, []string{"X"}, nil)
	assert.True(t, errors.Is(err, &Error{Code: ErrCodeStoreClosed}))
	assert.False(t, s.Health(ctx).IsHealthy())
}

func TestBadgerStore_BasicRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newBadgerTestStore(t)

	id, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "Honda"})
	require.NoError(t, err)

	nodes, err := s.FetchNodes(ctx, NodeQuery{IDs: []NodeID{id}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Honda", nodes[0].GetString("name"))
	assert.True(t, s.Health(ctx).IsHealthy())
}

func TestBadgerStore_FetchAndAdd(t *testing.T) {
	ctx := context.Background()
	s := newBadgerTestStore(t)

	_, _, err := s.MergeNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "car"})
	require.NoError(t, err)
	q := NodeQuery{Labels: []string{"Schema Autoincrement"}, Props: map[string]any{"namespace": "car"}}

	prev, props, err := s.FetchAndAdd(ctx, q, "next_count", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), prev)
	assert.Equal(t, int64(2), props["next_count"])

	prev, _, err = s.FetchAndAdd(ctx, q, "next_count", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), prev)
}

func TestBadgerStore_ReopenRestoresGraph(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewBadger(dir)
	require.NoError(t, s.Connect(ctx))

	carClass, err := s.CreateNode(ctx, []string{"CLASS"}, map[string]any{"name": "Car"})
	require.NoError(t, err)
	honda, err := s.CreateNodeLinked(ctx, []string{"Car"}, map[string]any{"name": "Honda", "year": 2003}, []LinkSpec{
		{Target: carClass, Type: "INSTANCE_OF"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	reopened := NewBadger(dir)
	require.NoError(t, reopened.Connect(ctx))
	defer reopened.Close(ctx)

	classes, err := reopened.FetchNodes(ctx, NodeQuery{Labels: []string{"CLASS"}})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, carClass, classes[0].ID, "identities survive a reopen")

	cars, err := reopened.FetchNodes(ctx, NodeQuery{IDs: []NodeID{honda}})
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "Honda", cars[0].GetString("name"))
	assert.EqualValues(t, 2003, cars[0].Props["year"])

	neighbors, err := reopened.Neighbors(ctx, honda, "INSTANCE_OF", Outbound, nil)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, carClass, neighbors[0].Node.ID)
}

func TestBadgerStore_ReopenSeesUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewBadger(dir)
	require.NoError(t, s.Connect(ctx))

	keep, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "keep", "color": "white"})
	require.NoError(t, err)
	doomed, err := s.CreateNode(ctx, []string{"Car"}, map[string]any{"name": "doomed"})
	require.NoError(t, err)
	require.NoError(t, s.CreateRelationship(ctx, keep, doomed, "replaces", nil))

	_, err = s.UpdateNodes(ctx, NodeQuery{IDs: []NodeID{keep}}, map[string]any{"color": "red"}, nil)
	require.NoError(t, err)
	_, err = s.DeleteNodes(ctx, NodeQuery{IDs: []NodeID{doomed}})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	reopened := NewBadger(dir)
	require.NoError(t, reopened.Connect(ctx))
	defer reopened.Close(ctx)

	count, err := reopened.CountNodes(ctx, NodeQuery{Labels: []string{"Car"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	nodes, err := reopened.FetchNodes(ctx, NodeQuery{IDs: []NodeID{keep}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "red", nodes[0].GetString("color"))

	neighbors, err := reopened.Neighbors(ctx, keep, "", Both, nil)
	require.NoError(t, err)
	assert.Empty(t, neighbors, "relationships of deleted nodes do not come back")
}

func TestBadgerStore_ReopenSeesCounterValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewBadger(dir)
	require.NoError(t, s.Connect(ctx))

	_, _, err := s.MergeNode(ctx, []string{"Schema Autoincrement"}, map[string]any{"namespace": "car"})
	require.NoError(t, err)
	q := NodeQuery{Labels: []string{"Schema Autoincrement"}, Props: map[string]any{"namespace": "car"}}
	for i := 0; i < 3; i++ {
		_, _, err = s.FetchAndAdd(ctx, q, "next_count", 1, 1)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close(ctx))

	reopened := NewBadger(dir)
	require.NoError(t, reopened.Connect(ctx))
	defer reopened.Close(ctx)

	prev, _, err := reopened.FetchAndAdd(ctx, q, "next_count", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), prev, "counter resumes where it left off")
}

func TestBadgerStore_MergeRelationshipsBulkPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewBadger(dir)
	require.NoError(t, s.Connect(ctx))

	_, _, err := s.MergeNodes(ctx, []string{"Person"}, "pid", []map[string]any{{"pid": "p1"}}, false)
	require.NoError(t, err)
	_, _, err = s.MergeNodes(ctx, []string{"Car"}, "vin", []map[string]any{{"vin": "v1"}}, false)
	require.NoError(t, err)

	spec := BulkLinkSpec{FromLabels: []string{"Person"}, FromKey: "pid", ToLabels: []string{"Car"}, ToKey: "vin", RelType: "owns"}
	merged, created, err := s.MergeRelationshipsBulk(ctx, spec, []BulkLinkRow{{From: "p1", To: "v1"}})
	require.NoError(t, err)
	require.Equal(t, 1, merged)
	require.Equal(t, 1, created)
	require.NoError(t, s.Close(ctx))

	reopened := NewBadger(dir)
	require.NoError(t, reopened.Connect(ctx))
	defer reopened.Close(ctx)

	people, err := reopened.FetchNodes(ctx, NodeQuery{Labels: []string{"Person"}})
	require.NoError(t, err)
	require.Len(t, people, 1)
	neighbors, err := reopened.Neighbors(ctx, people[0].ID, "owns", Outbound, nil)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}
