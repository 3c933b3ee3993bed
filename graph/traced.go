package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on store spans.
const (
	AttrLabels      = "neoschema.graph.labels"
	AttrRelType     = "neoschema.graph.relationship_type"
	AttrDirection   = "neoschema.graph.direction"
	AttrRowCount    = "neoschema.graph.row_count"
	AttrResultCount = "neoschema.graph.result_count"
	AttrDurationMS  = "neoschema.graph.duration_ms"
)

// TracedStore wraps a Store with OpenTelemetry tracing. Every operation gets
// one span named "neoschema.graph.<operation>" carrying labels, counts, and
// error status. Behavior is otherwise unchanged.
//
// Thread-safety: safe for concurrent use (delegates to the inner store).
type TracedStore struct {
	inner  Store
	tracer trace.Tracer
}

// NewTraced wraps inner with tracing through the given tracer.
//
// Example:
//
//	traced := graph.NewTraced(store, otel.Tracer("neoschema.graph"))
func NewTraced(inner Store, tracer trace.Tracer) *TracedStore {
	return &TracedStore{inner: inner, tracer: tracer}
}

// finish records duration and outcome on the span. It returns err untouched
// so call sites can finish and return in one line.
func finish(span trace.Span, start time.Time, err error, okMsg string) error {
	span.SetAttributes(attribute.Float64(AttrDurationMS, float64(time.Since(start).Milliseconds())))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, okMsg)
	return nil
}

// Connect establishes the inner store's connection with tracing.
func (t *TracedStore) Connect(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.connect")
	defer span.End()
	start := time.Now()
	return finish(span, start, t.inner.Connect(ctx), "connected")
}

// Close shuts the inner store down with tracing.
func (t *TracedStore) Close(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.close")
	defer span.End()
	start := time.Now()
	return finish(span, start, t.inner.Close(ctx), "closed")
}

// Health is a pass-through without tracing to avoid span noise from health
// polling.
func (t *TracedStore) Health(ctx context.Context) HealthStatus {
	return t.inner.Health(ctx)
}

// CreateNode traces node creation.
func (t *TracedStore) CreateNode(ctx context.Context, labels []string, props map[string]any) (NodeID, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.create_node")
	defer span.End()
	span.SetAttributes(attribute.StringSlice(AttrLabels, labels))
	start := time.Now()
	id, err := t.inner.CreateNode(ctx, labels, props)
	return id, finish(span, start, err, "node created")
}

// CreateNodeLinked traces atomic node-with-links creation.
func (t *TracedStore) CreateNodeLinked(ctx context.Context, labels []string, props map[string]any, links []LinkSpec) (NodeID, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.create_node_linked")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice(AttrLabels, labels),
		attribute.Int(AttrRowCount, len(links)),
	)
	start := time.Now()
	id, err := t.inner.CreateNodeLinked(ctx, labels, props, links)
	return id, finish(span, start, err, "node created with links")
}

// CreateNodes traces bulk node creation.
func (t *TracedStore) CreateNodes(ctx context.Context, labels []string, records []map[string]any) ([]NodeID, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.create_nodes")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice(AttrLabels, labels),
		attribute.Int(AttrRowCount, len(records)),
	)
	start := time.Now()
	ids, err := t.inner.CreateNodes(ctx, labels, records)
	return ids, finish(span, start, err, fmt.Sprintf("created %d nodes", len(ids)))
}

// FetchNodes traces node lookup.
func (t *TracedStore) FetchNodes(ctx context.Context, q NodeQuery) ([]Node, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.fetch_nodes")
	defer span.End()
	span.SetAttributes(attribute.StringSlice(AttrLabels, q.Labels))
	start := time.Now()
	nodes, err := t.inner.FetchNodes(ctx, q)
	span.SetAttributes(attribute.Int(AttrResultCount, len(nodes)))
	return nodes, finish(span, start, err, fmt.Sprintf("found %d nodes", len(nodes)))
}

// CountNodes traces node counting.
func (t *TracedStore) CountNodes(ctx context.Context, q NodeQuery) (int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.count_nodes")
	defer span.End()
	span.SetAttributes(attribute.StringSlice(AttrLabels, q.Labels))
	start := time.Now()
	count, err := t.inner.CountNodes(ctx, q)
	span.SetAttributes(attribute.Int(AttrResultCount, count))
	return count, finish(span, start, err, fmt.Sprintf("counted %d nodes", count))
}

// UpdateNodes traces property updates.
func (t *TracedStore) UpdateNodes(ctx context.Context, q NodeQuery, set map[string]any, remove []string) (int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.update_nodes")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice(AttrLabels, q.Labels),
		attribute.Int(AttrRowCount, len(set)+len(remove)),
	)
	start := time.Now()
	count, err := t.inner.UpdateNodes(ctx, q, set, remove)
	span.SetAttributes(attribute.Int(AttrResultCount, count))
	return count, finish(span, start, err, fmt.Sprintf("set %d properties", count))
}

// DeleteNodes traces node deletion.
func (t *TracedStore) DeleteNodes(ctx context.Context, q NodeQuery) (int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.delete_nodes")
	defer span.End()
	span.SetAttributes(attribute.StringSlice(AttrLabels, q.Labels))
	start := time.Now()
	count, err := t.inner.DeleteNodes(ctx, q)
	span.SetAttributes(attribute.Int(AttrResultCount, count))
	return count, finish(span, start, err, fmt.Sprintf("deleted %d nodes", count))
}

// MergeNode traces find-or-create.
func (t *TracedStore) MergeNode(ctx context.Context, labels []string, props map[string]any) (NodeID, bool, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.merge_node")
	defer span.End()
	span.SetAttributes(attribute.StringSlice(AttrLabels, labels))
	start := time.Now()
	id, created, err := t.inner.MergeNode(ctx, labels, props)
	span.SetAttributes(attribute.Bool("neoschema.graph.created", created))
	return id, created, finish(span, start, err, "node merged")
}

// MergeNodes traces bulk keyed merge.
func (t *TracedStore) MergeNodes(ctx context.Context, labels []string, key string, records []map[string]any, replace bool) ([]NodeID, int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.merge_nodes")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice(AttrLabels, labels),
		attribute.Int(AttrRowCount, len(records)),
		attribute.Bool("neoschema.graph.replace", replace),
	)
	start := time.Now()
	ids, created, err := t.inner.MergeNodes(ctx, labels, key, records, replace)
	span.SetAttributes(attribute.Int(AttrResultCount, created))
	return ids, created, finish(span, start, err, fmt.Sprintf("merged %d records, created %d", len(records), created))
}

// CreateRelationship traces relationship creation.
func (t *TracedStore) CreateRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.create_relationship")
	defer span.End()
	span.SetAttributes(attribute.String(AttrRelType, relType))
	start := time.Now()
	return finish(span, start, t.inner.CreateRelationship(ctx, from, to, relType, props), "relationship created")
}

// MergeRelationship traces relationship merge.
func (t *TracedStore) MergeRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.merge_relationship")
	defer span.End()
	span.SetAttributes(attribute.String(AttrRelType, relType))
	start := time.Now()
	return finish(span, start, t.inner.MergeRelationship(ctx, from, to, relType, props), "relationship merged")
}

// DeleteRelationships traces relationship deletion.
func (t *TracedStore) DeleteRelationships(ctx context.Context, from, to NodeID, relType string) (int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.delete_relationships")
	defer span.End()
	span.SetAttributes(attribute.String(AttrRelType, relType))
	start := time.Now()
	count, err := t.inner.DeleteRelationships(ctx, from, to, relType)
	span.SetAttributes(attribute.Int(AttrResultCount, count))
	return count, finish(span, start, err, fmt.Sprintf("deleted %d relationships", count))
}

// MergeRelationshipsBulk traces bulk relationship merge.
func (t *TracedStore) MergeRelationshipsBulk(ctx context.Context, spec BulkLinkSpec, rows []BulkLinkRow) (int, int, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.merge_relationships_bulk")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttrRelType, spec.RelType),
		attribute.Int(AttrRowCount, len(rows)),
	)
	start := time.Now()
	merged, created, err := t.inner.MergeRelationshipsBulk(ctx, spec, rows)
	span.SetAttributes(attribute.Int(AttrResultCount, merged))
	return merged, created, finish(span, start, err, fmt.Sprintf("merged %d rows, created %d", merged, created))
}

// Neighbors traces adjacency lookup.
func (t *TracedStore) Neighbors(ctx context.Context, id NodeID, relType string, dir Direction, targetLabels []string) ([]Neighbor, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.neighbors")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttrRelType, relType),
		attribute.String(AttrDirection, dir.String()),
	)
	start := time.Now()
	neighbors, err := t.inner.Neighbors(ctx, id, relType, dir, targetLabels)
	span.SetAttributes(attribute.Int(AttrResultCount, len(neighbors)))
	return neighbors, finish(span, start, err, fmt.Sprintf("found %d neighbors", len(neighbors)))
}

// Reachable traces variable-length traversal.
func (t *TracedStore) Reachable(ctx context.Context, id NodeID, relType string, dir Direction, maxDepth int) ([]PathNode, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.reachable")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttrRelType, relType),
		attribute.String(AttrDirection, dir.String()),
		attribute.Int("neoschema.graph.max_depth", maxDepth),
	)
	start := time.Now()
	nodes, err := t.inner.Reachable(ctx, id, relType, dir, maxDepth)
	span.SetAttributes(attribute.Int(AttrResultCount, len(nodes)))
	return nodes, finish(span, start, err, fmt.Sprintf("reached %d nodes", len(nodes)))
}

// FetchAndAdd traces atomic counter advancement.
func (t *TracedStore) FetchAndAdd(ctx context.Context, q NodeQuery, field string, delta, initial int64) (int64, map[string]any, error) {
	ctx, span := t.tracer.Start(ctx, "neoschema.graph.fetch_and_add")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice(AttrLabels, q.Labels),
		attribute.String("neoschema.graph.field", field),
		attribute.Int64("neoschema.graph.delta", delta),
	)
	start := time.Now()
	prev, props, err := t.inner.FetchAndAdd(ctx, q, field, delta, initial)
	return prev, props, finish(span, start, err, "counter advanced")
}

// Ensure TracedStore implements Store at compile time.
var _ Store = (*TracedStore)(nil)
