package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a fully functional in-memory Store. It backs the test
// suites and works as an embedded store for callers that do not need a
// server. All operations run under one RWMutex, which gives every call the
// same one-call atomicity the bolt backend gets from single statements.
//
// Nodes are scanned in insertion order, so merge and fetch results are
// deterministic.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool

	nodes    map[NodeID]*memNode
	order    []NodeID
	rels     map[string]*memRel
	outgoing map[NodeID][]*memRel
	incoming map[NodeID][]*memRel
}

type memNode struct {
	id     NodeID
	labels []string
	props  map[string]any
}

type memRel struct {
	id      string
	from    NodeID
	to      NodeID
	relType string
	props   map[string]any
}

// NewMemory creates an empty in-memory store. It is usable immediately;
// Connect is a no-op.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[NodeID]*memNode),
		rels:     make(map[string]*memRel),
		outgoing: make(map[NodeID][]*memRel),
		incoming: make(map[NodeID][]*memRel),
	}
}

// Connect is a no-op for an open in-memory store.
func (s *MemoryStore) Connect(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewClosedError("connect")
	}
	return nil
}

// Close releases the store's contents. The store is unusable afterwards.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.nodes = nil
	s.order = nil
	s.rels = nil
	s.outgoing = nil
	s.incoming = nil
	return nil
}

// Health reports healthy while the store is open.
func (s *MemoryStore) Health(ctx context.Context) HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Unhealthy("store is closed")
	}
	return Healthy(fmt.Sprintf("in-memory store, %d nodes", len(s.nodes)))
}

// CreateNode creates one node.
func (s *MemoryStore) CreateNode(ctx context.Context, labels []string, props map[string]any) (NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", NewClosedError("create node")
	}
	n := s.addNodeLocked(labels, props)
	return n.id, nil
}

// CreateNodeLinked creates a node with its relationships, or nothing at all
// when a link target is missing.
func (s *MemoryStore) CreateNodeLinked(ctx context.Context, labels []string, props map[string]any, links []LinkSpec) (NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", NewClosedError("create node with links")
	}
	found := 0
	for i, l := range links {
		if l.Type == "" {
			return "", NewQueryError(fmt.Sprintf("link %d has no relationship type", i), nil)
		}
		if _, ok := s.nodes[l.Target]; ok {
			found++
		}
	}
	if found != len(links) {
		return "", NewReferenceError("node creation with links aborted, link target missing", len(links), found)
	}
	n := s.addNodeLocked(labels, props)
	for _, l := range links {
		if l.Inbound {
			s.addRelLocked(l.Target, n.id, l.Type, l.Props)
		} else {
			s.addRelLocked(n.id, l.Target, l.Type, l.Props)
		}
	}
	return n.id, nil
}

// CreateNodes creates one node per record in record order.
func (s *MemoryStore) CreateNodes(ctx context.Context, labels []string, records []map[string]any) ([]NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewClosedError("create nodes")
	}
	ids := make([]NodeID, 0, len(records))
	for _, rec := range records {
		ids = append(ids, s.addNodeLocked(labels, rec).id)
	}
	return ids, nil
}

// FetchNodes returns copies of the matching nodes in insertion order.
func (s *MemoryStore) FetchNodes(ctx context.Context, q NodeQuery) ([]Node, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewClosedError("fetch nodes")
	}
	matched := s.matchLocked(q)
	out := make([]Node, 0, len(matched))
	for _, n := range matched {
		out = append(out, n.copy())
	}
	return out, nil
}

// CountNodes counts the matching nodes, ignoring any limit.
func (s *MemoryStore) CountNodes(ctx context.Context, q NodeQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, NewClosedError("count nodes")
	}
	q.Limit = 0
	return len(s.matchLocked(q)), nil
}

// UpdateNodes applies set and remove to every matching node and returns the
// number of property writes.
func (s *MemoryStore) UpdateNodes(ctx context.Context, q NodeQuery, set map[string]any, remove []string) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if len(set) == 0 && len(remove) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, NewClosedError("update nodes")
	}
	q.Limit = 0
	count := 0
	for _, n := range s.matchLocked(q) {
		for _, k := range sortedKeys(set) {
			if set[k] == nil {
				if _, ok := n.props[k]; ok {
					delete(n.props, k)
					count++
				}
				continue
			}
			n.props[k] = set[k]
			count++
		}
		for _, k := range remove {
			if _, ok := n.props[k]; ok {
				delete(n.props, k)
				count++
			}
		}
	}
	return count, nil
}

// DeleteNodes detach-deletes every matching node.
func (s *MemoryStore) DeleteNodes(ctx context.Context, q NodeQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, NewClosedError("delete nodes")
	}
	q.Limit = 0
	matched := s.matchLocked(q)
	for _, n := range matched {
		s.removeNodeLocked(n.id)
	}
	return len(matched), nil
}

// MergeNode finds the first node carrying all labels whose properties
// include the given pairs, or creates one.
func (s *MemoryStore) MergeNode(ctx context.Context, labels []string, props map[string]any) (NodeID, bool, error) {
	if len(labels) == 0 {
		return "", false, NewQueryError("merge requires at least one label", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, NewClosedError("merge node")
	}
	if n := s.findMergeLocked(labels, props); n != nil {
		return n.id, false, nil
	}
	n := s.addNodeLocked(labels, props)
	return n.id, true, nil
}

// MergeNodes merges one node per record on the key property.
func (s *MemoryStore) MergeNodes(ctx context.Context, labels []string, key string, records []map[string]any, replace bool) ([]NodeID, int, error) {
	if len(labels) == 0 {
		return nil, 0, NewQueryError("merge requires at least one label", nil)
	}
	if key == "" {
		return nil, 0, NewQueryError("merge requires a key property", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, NewClosedError("merge nodes")
	}
	for i, rec := range records {
		if _, ok := rec[key]; !ok {
			return nil, 0, NewQueryError(fmt.Sprintf("record %d is missing merge key %q", i, key), nil)
		}
	}
	ids := make([]NodeID, 0, len(records))
	created := 0
	for _, rec := range records {
		n := s.findMergeLocked(labels, map[string]any{key: rec[key]})
		if n == nil {
			n = s.addNodeLocked(labels, rec)
			created++
		} else if replace {
			n.props = copyProps(scrubNil(rec))
		} else {
			for k, v := range rec {
				if v == nil {
					delete(n.props, k)
					continue
				}
				n.props[k] = v
			}
		}
		ids = append(ids, n.id)
	}
	return ids, created, nil
}

// CreateRelationship creates one relationship between existing nodes.
func (s *MemoryStore) CreateRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return NewQueryError("relationship type is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewClosedError("create relationship")
	}
	if !s.bothExistLocked(from, to) {
		return NewReferenceError(fmt.Sprintf("create %s relationship", relType), 1, 0)
	}
	s.addRelLocked(from, to, relType, props)
	return nil
}

// MergeRelationship creates the relationship unless an identical one exists.
func (s *MemoryStore) MergeRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return NewQueryError("relationship type is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewClosedError("merge relationship")
	}
	if !s.bothExistLocked(from, to) {
		return NewReferenceError(fmt.Sprintf("merge %s relationship, endpoint missing", relType), 1, 0)
	}
	for _, r := range s.outgoing[from] {
		if r.to == to && r.relType == relType {
			for k, v := range props {
				if v == nil {
					delete(r.props, k)
					continue
				}
				r.props[k] = v
			}
			return nil
		}
	}
	s.addRelLocked(from, to, relType, props)
	return nil
}

// DeleteRelationships removes matching relationships from one node to
// another.
func (s *MemoryStore) DeleteRelationships(ctx context.Context, from, to NodeID, relType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, NewClosedError("delete relationships")
	}
	var doomed []*memRel
	for _, r := range s.outgoing[from] {
		if r.to == to && (relType == "" || r.relType == relType) {
			doomed = append(doomed, r)
		}
	}
	for _, r := range doomed {
		s.removeRelLocked(r)
	}
	return len(doomed), nil
}

// MergeRelationshipsBulk merges one relationship per row between every pair
// of endpoint matches, mirroring what the equivalent UNWIND statement does.
func (s *MemoryStore) MergeRelationshipsBulk(ctx context.Context, spec BulkLinkSpec, rows []BulkLinkRow) (int, int, error) {
	if err := spec.Validate(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0, NewClosedError("merge relationships bulk")
	}
	merged, created := 0, 0
	for _, row := range rows {
		if row.From == nil || row.To == nil {
			continue
		}
		fromMatches := s.matchLocked(NodeQuery{Labels: spec.FromLabels, Props: map[string]any{spec.FromKey: row.From}})
		toMatches := s.matchLocked(NodeQuery{Labels: spec.ToLabels, Props: map[string]any{spec.ToKey: row.To}})
		for _, f := range fromMatches {
			for _, t := range toMatches {
				merged++
				existing := s.findRelLocked(f.id, t.id, spec.RelType)
				if existing == nil {
					s.addRelLocked(f.id, t.id, spec.RelType, row.Props)
					created++
					continue
				}
				for k, v := range row.Props {
					if v == nil {
						delete(existing.props, k)
						continue
					}
					existing.props[k] = v
				}
			}
		}
	}
	return merged, created, nil
}

// Neighbors returns the adjacent nodes of id. A missing id yields an empty
// result, matching a MATCH that binds nothing.
func (s *MemoryStore) Neighbors(ctx context.Context, id NodeID, relType string, dir Direction, targetLabels []string) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewClosedError("neighbors")
	}
	var out []Neighbor
	appendRel := func(r *memRel, otherID NodeID) {
		other, ok := s.nodes[otherID]
		if !ok || !hasAllLabels(other.labels, targetLabels) {
			return
		}
		out = append(out, Neighbor{
			Node:     other.copy(),
			RelType:  r.relType,
			RelProps: copyProps(r.props),
		})
	}
	if dir == Outbound || dir == Both {
		for _, r := range s.outgoing[id] {
			if relType == "" || r.relType == relType {
				appendRel(r, r.to)
			}
		}
	}
	if dir == Inbound || dir == Both {
		for _, r := range s.incoming[id] {
			if relType == "" || r.relType == relType {
				appendRel(r, r.from)
			}
		}
	}
	return out, nil
}

// Reachable walks breadth-first from id and returns each reached node with
// its shortest depth, in ascending depth order.
func (s *MemoryStore) Reachable(ctx context.Context, id NodeID, relType string, dir Direction, maxDepth int) ([]PathNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewClosedError("reachable")
	}
	if _, ok := s.nodes[id]; !ok {
		return nil, nil
	}
	visited := map[NodeID]bool{id: true}
	frontier := []NodeID{id}
	depth := 0
	var out []PathNode
	for len(frontier) > 0 {
		depth++
		if maxDepth > 0 && depth > maxDepth {
			break
		}
		var next []NodeID
		for _, cur := range frontier {
			for _, adjID := range s.adjacentLocked(cur, relType, dir) {
				if visited[adjID] {
					continue
				}
				visited[adjID] = true
				if n, ok := s.nodes[adjID]; ok {
					out = append(out, PathNode{Node: n.copy(), Depth: depth})
				}
				next = append(next, adjID)
			}
		}
		frontier = next
	}
	return out, nil
}

// FetchAndAdd advances an integer field on the single matching node under
// the store lock.
func (s *MemoryStore) FetchAndAdd(ctx context.Context, q NodeQuery, field string, delta, initial int64) (int64, map[string]any, error) {
	if err := q.Validate(); err != nil {
		return 0, nil, err
	}
	if field == "" {
		return 0, nil, NewQueryError("fetch-and-add requires a field name", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, NewClosedError("fetch and add")
	}
	q.Limit = 0
	matched := s.matchLocked(q)
	switch len(matched) {
	case 0:
		return 0, nil, NewNodeNotFoundError("fetch-and-add matched no node")
	case 1:
	default:
		return 0, nil, NewAmbiguousMatchError(fmt.Sprintf("fetch-and-add matched %d nodes, expected one", len(matched)))
	}
	n := matched[0]
	cur := initial
	if v, ok := n.props[field]; ok {
		num, ok := toInt64Value(v)
		if !ok {
			return 0, nil, NewQueryError(fmt.Sprintf("field %q is not an integer", field), nil)
		}
		cur = num
	}
	n.props[field] = cur + delta
	return cur, copyProps(n.props), nil
}

// internals, caller holds the appropriate lock

func (s *MemoryStore) addNodeLocked(labels []string, props map[string]any) *memNode {
	n := &memNode{
		id:     NodeID(uuid.NewString()),
		labels: dedupeLabels(labels),
		props:  scrubNil(props),
	}
	s.nodes[n.id] = n
	s.order = append(s.order, n.id)
	return n
}

func (s *MemoryStore) removeNodeLocked(id NodeID) {
	var doomed []*memRel
	doomed = append(doomed, s.outgoing[id]...)
	doomed = append(doomed, s.incoming[id]...)
	for _, r := range doomed {
		s.removeRelLocked(r)
	}
	delete(s.nodes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) addRelLocked(from, to NodeID, relType string, props map[string]any) *memRel {
	r := &memRel{
		id:      uuid.NewString(),
		from:    from,
		to:      to,
		relType: relType,
		props:   copyProps(props),
	}
	s.rels[r.id] = r
	s.outgoing[from] = append(s.outgoing[from], r)
	s.incoming[to] = append(s.incoming[to], r)
	return r
}

func (s *MemoryStore) removeRelLocked(r *memRel) {
	delete(s.rels, r.id)
	s.outgoing[r.from] = dropRel(s.outgoing[r.from], r)
	s.incoming[r.to] = dropRel(s.incoming[r.to], r)
}

func (s *MemoryStore) findRelLocked(from, to NodeID, relType string) *memRel {
	for _, r := range s.outgoing[from] {
		if r.to == to && r.relType == relType {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) bothExistLocked(from, to NodeID) bool {
	_, okFrom := s.nodes[from]
	_, okTo := s.nodes[to]
	return okFrom && okTo
}

// matchLocked scans in insertion order and returns the nodes matching q.
func (s *MemoryStore) matchLocked(q NodeQuery) []*memNode {
	var idSet map[NodeID]bool
	if len(q.IDs) > 0 {
		idSet = make(map[NodeID]bool, len(q.IDs))
		for _, id := range q.IDs {
			idSet[id] = true
		}
	}
	var out []*memNode
	for _, id := range s.order {
		n := s.nodes[id]
		if idSet != nil && !idSet[n.id] {
			continue
		}
		if !hasAllLabels(n.labels, q.Labels) {
			continue
		}
		if !propsInclude(n.props, q.Props) {
			continue
		}
		out = append(out, n)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

func (s *MemoryStore) findMergeLocked(labels []string, props map[string]any) *memNode {
	for _, id := range s.order {
		n := s.nodes[id]
		if hasAllLabels(n.labels, labels) && propsInclude(n.props, props) {
			return n
		}
	}
	return nil
}

func (s *MemoryStore) adjacentLocked(id NodeID, relType string, dir Direction) []NodeID {
	var out []NodeID
	if dir == Outbound || dir == Both {
		for _, r := range s.outgoing[id] {
			if relType == "" || r.relType == relType {
				out = append(out, r.to)
			}
		}
	}
	if dir == Inbound || dir == Both {
		for _, r := range s.incoming[id] {
			if relType == "" || r.relType == relType {
				out = append(out, r.from)
			}
		}
	}
	return out
}

// relRecord is a detached copy of a relationship, used by persistent
// wrappers that mirror the memory engine to disk.
type relRecord struct {
	id      string
	from    NodeID
	to      NodeID
	relType string
	props   map[string]any
}

// restoreNode loads a node under its original identity. Used when replaying
// persisted state; not part of the Store contract.
func (s *MemoryStore) restoreNode(id NodeID, labels []string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; ok {
		return
	}
	n := &memNode{id: id, labels: dedupeLabels(labels), props: copyProps(props)}
	s.nodes[id] = n
	s.order = append(s.order, id)
}

// restoreRel loads a relationship under its original identity. Relationships
// whose endpoints are missing are skipped.
func (s *MemoryStore) restoreRel(id string, from, to NodeID, relType string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rels[id]; ok {
		return
	}
	if !s.bothExistLocked(from, to) {
		return
	}
	r := &memRel{id: id, from: from, to: to, relType: relType, props: copyProps(props)}
	s.rels[r.id] = r
	s.outgoing[from] = append(s.outgoing[from], r)
	s.incoming[to] = append(s.incoming[to], r)
}

// nodeSnapshot returns a copy of one node by identity.
func (s *MemoryStore) nodeSnapshot(id NodeID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.copy(), true
}

// relsTouching returns copies of every relationship attached to any of the
// given nodes.
func (s *MemoryStore) relsTouching(ids ...NodeID) []relRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []relRecord
	for _, id := range ids {
		for _, rels := range [][]*memRel{s.outgoing[id], s.incoming[id]} {
			for _, r := range rels {
				if seen[r.id] {
					continue
				}
				seen[r.id] = true
				out = append(out, relRecord{
					id:      r.id,
					from:    r.from,
					to:      r.to,
					relType: r.relType,
					props:   copyProps(r.props),
				})
			}
		}
	}
	return out
}

func (n *memNode) copy() Node {
	return Node{
		ID:     n.id,
		Labels: append([]string(nil), n.labels...),
		Props:  copyProps(n.props),
	}
}

func dropRel(rels []*memRel, target *memRel) []*memRel {
	for i, r := range rels {
		if r == target {
			return append(rels[:i], rels[i+1:]...)
		}
	}
	return rels
}

func dedupeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func propsInclude(have, want map[string]any) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || !equalValue(hv, v) {
			return false
		}
	}
	return true
}

// equalValue compares property values the way the server would, treating
// all numeric types as one domain.
func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toInt64Value(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func scrubNil(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
