package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Key prefixes for the persisted record space.
const (
	badgerNodePrefix = "n:"
	badgerRelPrefix  = "r:"
)

// storedNode is the on-disk shape of a node.
type storedNode struct {
	Labels []string       `msgpack:"labels"`
	Props  map[string]any `msgpack:"props"`
}

// storedRel is the on-disk shape of a relationship.
type storedRel struct {
	From  string         `msgpack:"from"`
	To    string         `msgpack:"to"`
	Type  string         `msgpack:"type"`
	Props map[string]any `msgpack:"props"`
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence, giving the badger
	// code paths without I/O. Useful in tests.
	InMemory bool

	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool
}

// BadgerStore is a persistent embedded Store. Queries are served by an inner
// memory engine; every mutation is written through to badger as msgpack
// records and the full graph is reloaded on Connect. A persistence failure
// leaves the store degraded, since memory and disk may have diverged.
type BadgerStore struct {
	opts BadgerOptions

	mu       sync.Mutex // serializes mutate-then-persist sequences
	db       *badger.DB
	mem      *MemoryStore
	degraded bool
}

// NewBadger creates a badger-backed store rooted at dir. The store is not
// usable until Connect opens the database and loads persisted state.
func NewBadger(dir string) *BadgerStore {
	return NewBadgerWithOptions(BadgerOptions{Dir: dir})
}

// NewBadgerWithOptions creates a badger-backed store with explicit options.
func NewBadgerWithOptions(opts BadgerOptions) *BadgerStore {
	return &BadgerStore{opts: opts, mem: NewMemory()}
}

// Connect opens the database and replays persisted nodes and relationships
// into the memory engine.
func (b *BadgerStore) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}
	if b.opts.Dir == "" && !b.opts.InMemory {
		return NewConfigError("badger store requires a directory", nil)
	}

	badgerOpts := badger.DefaultOptions(b.opts.Dir).WithLogger(nil)
	if b.opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if b.opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return NewConnectionError(fmt.Sprintf("failed to open badger at %s", b.opts.Dir), err)
	}
	b.db = db
	if err := b.loadLocked(); err != nil {
		db.Close()
		b.db = nil
		return err
	}
	return nil
}

// loadLocked replays all persisted records. Nodes load before relationships
// so endpoints exist when relationships restore.
func (b *BadgerStore) loadLocked() error {
	loadPrefix := func(prefix string, restore func(key string, val []byte) error) error {
		return b.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				key := string(item.Key())[len(prefix):]
				if err := item.Value(func(val []byte) error {
					return restore(key, val)
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := loadPrefix(badgerNodePrefix, func(key string, val []byte) error {
		var rec storedNode
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			return err
		}
		b.mem.restoreNode(NodeID(key), rec.Labels, rec.Props)
		return nil
	})
	if err != nil {
		return NewStorageError("failed to load persisted nodes", err)
	}

	err = loadPrefix(badgerRelPrefix, func(key string, val []byte) error {
		var rec storedRel
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			return err
		}
		b.mem.restoreRel(key, NodeID(rec.From), NodeID(rec.To), rec.Type, rec.Props)
		return nil
	})
	if err != nil {
		return NewStorageError("failed to load persisted relationships", err)
	}
	return nil
}

// Close closes the database and releases the memory engine.
func (b *BadgerStore) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mem.Close(ctx)
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	if err != nil {
		return NewStorageError("failed to close badger", err)
	}
	return nil
}

// Health reports degraded after any persistence failure.
func (b *BadgerStore) Health(ctx context.Context) HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return Unhealthy("not connected")
	}
	if b.degraded {
		return Degraded("persistence failure, memory and disk may differ")
	}
	return Healthy(fmt.Sprintf("badger store at %s", b.opts.Dir))
}

// persistNodes writes current snapshots of the given nodes in one
// transaction.
func (b *BadgerStore) persistNodes(ids ...NodeID) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			node, ok := b.mem.nodeSnapshot(id)
			if !ok {
				continue
			}
			val, err := msgpack.Marshal(storedNode{Labels: node.Labels, Props: node.Props})
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(badgerNodePrefix+string(id)), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.degraded = true
		return NewStorageError("failed to persist nodes", err)
	}
	return nil
}

// persistRels writes the given relationship records in one transaction.
func (b *BadgerStore) persistRels(rels []relRecord) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, r := range rels {
			val, err := msgpack.Marshal(storedRel{
				From:  string(r.from),
				To:    string(r.to),
				Type:  r.relType,
				Props: r.props,
			})
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(badgerRelPrefix+r.id), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.degraded = true
		return NewStorageError("failed to persist relationships", err)
	}
	return nil
}

// deleteKeys removes persisted records in one transaction.
func (b *BadgerStore) deleteKeys(keys []string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.degraded = true
		return NewStorageError("failed to delete persisted records", err)
	}
	return nil
}

func (b *BadgerStore) checkOpen(op string) error {
	if b.db == nil {
		return NewClosedError(op)
	}
	return nil
}

// CreateNode creates and persists one node.
func (b *BadgerStore) CreateNode(ctx context.Context, labels []string, props map[string]any) (NodeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("create node"); err != nil {
		return "", err
	}
	id, err := b.mem.CreateNode(ctx, labels, props)
	if err != nil {
		return "", err
	}
	if err := b.persistNodes(id); err != nil {
		return "", err
	}
	return id, nil
}

// CreateNodeLinked creates and persists a node with its relationships.
func (b *BadgerStore) CreateNodeLinked(ctx context.Context, labels []string, props map[string]any, links []LinkSpec) (NodeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("create node with links"); err != nil {
		return "", err
	}
	id, err := b.mem.CreateNodeLinked(ctx, labels, props, links)
	if err != nil {
		return "", err
	}
	if err := b.persistNodes(id); err != nil {
		return "", err
	}
	if err := b.persistRels(b.mem.relsTouching(id)); err != nil {
		return "", err
	}
	return id, nil
}

// CreateNodes creates and persists one node per record.
func (b *BadgerStore) CreateNodes(ctx context.Context, labels []string, records []map[string]any) ([]NodeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("create nodes"); err != nil {
		return nil, err
	}
	ids, err := b.mem.CreateNodes(ctx, labels, records)
	if err != nil {
		return nil, err
	}
	if err := b.persistNodes(ids...); err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchNodes reads from the memory engine.
func (b *BadgerStore) FetchNodes(ctx context.Context, q NodeQuery) ([]Node, error) {
	return b.mem.FetchNodes(ctx, q)
}

// CountNodes reads from the memory engine.
func (b *BadgerStore) CountNodes(ctx context.Context, q NodeQuery) (int, error) {
	return b.mem.CountNodes(ctx, q)
}

// UpdateNodes applies the update and persists the affected nodes.
func (b *BadgerStore) UpdateNodes(ctx context.Context, q NodeQuery, set map[string]any, remove []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("update nodes"); err != nil {
		return 0, err
	}
	affected, err := b.affectedIDs(ctx, q)
	if err != nil {
		return 0, err
	}
	count, err := b.mem.UpdateNodes(ctx, q, set, remove)
	if err != nil {
		return 0, err
	}
	if err := b.persistNodes(affected...); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteNodes removes the nodes and their attached relationships from both
// memory and disk.
func (b *BadgerStore) DeleteNodes(ctx context.Context, q NodeQuery) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("delete nodes"); err != nil {
		return 0, err
	}
	affected, err := b.affectedIDs(ctx, q)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(affected))
	for _, id := range affected {
		keys = append(keys, badgerNodePrefix+string(id))
	}
	for _, r := range b.mem.relsTouching(affected...) {
		keys = append(keys, badgerRelPrefix+r.id)
	}
	count, err := b.mem.DeleteNodes(ctx, q)
	if err != nil {
		return 0, err
	}
	if err := b.deleteKeys(keys); err != nil {
		return 0, err
	}
	return count, nil
}

// MergeNode merges and persists one node.
func (b *BadgerStore) MergeNode(ctx context.Context, labels []string, props map[string]any) (NodeID, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("merge node"); err != nil {
		return "", false, err
	}
	id, created, err := b.mem.MergeNode(ctx, labels, props)
	if err != nil {
		return "", false, err
	}
	if err := b.persistNodes(id); err != nil {
		return "", false, err
	}
	return id, created, nil
}

// MergeNodes merges and persists one node per record.
func (b *BadgerStore) MergeNodes(ctx context.Context, labels []string, key string, records []map[string]any, replace bool) ([]NodeID, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("merge nodes"); err != nil {
		return nil, 0, err
	}
	ids, created, err := b.mem.MergeNodes(ctx, labels, key, records, replace)
	if err != nil {
		return nil, 0, err
	}
	if err := b.persistNodes(dedupeIDs(ids)...); err != nil {
		return nil, 0, err
	}
	return ids, created, nil
}

// CreateRelationship creates and persists one relationship.
func (b *BadgerStore) CreateRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("create relationship"); err != nil {
		return err
	}
	if err := b.mem.CreateRelationship(ctx, from, to, relType, props); err != nil {
		return err
	}
	return b.persistRels(b.relsBetween(from, to, relType))
}

// MergeRelationship merges and persists one relationship.
func (b *BadgerStore) MergeRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("merge relationship"); err != nil {
		return err
	}
	if err := b.mem.MergeRelationship(ctx, from, to, relType, props); err != nil {
		return err
	}
	return b.persistRels(b.relsBetween(from, to, relType))
}

// DeleteRelationships removes matching relationships from both memory and
// disk.
func (b *BadgerStore) DeleteRelationships(ctx context.Context, from, to NodeID, relType string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("delete relationships"); err != nil {
		return 0, err
	}
	var keys []string
	for _, r := range b.relsBetween(from, to, relType) {
		keys = append(keys, badgerRelPrefix+r.id)
	}
	count, err := b.mem.DeleteRelationships(ctx, from, to, relType)
	if err != nil {
		return 0, err
	}
	if err := b.deleteKeys(keys); err != nil {
		return 0, err
	}
	return count, nil
}

// MergeRelationshipsBulk merges the rows and persists every relationship
// attached to the matched from-side nodes.
func (b *BadgerStore) MergeRelationshipsBulk(ctx context.Context, spec BulkLinkSpec, rows []BulkLinkRow) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("merge relationships bulk"); err != nil {
		return 0, 0, err
	}
	var fromIDs []NodeID
	for _, row := range rows {
		matched, err := b.mem.FetchNodes(ctx, NodeQuery{Labels: spec.FromLabels, Props: map[string]any{spec.FromKey: row.From}})
		if err != nil {
			return 0, 0, err
		}
		for _, n := range matched {
			fromIDs = append(fromIDs, n.ID)
		}
	}
	merged, created, err := b.mem.MergeRelationshipsBulk(ctx, spec, rows)
	if err != nil {
		return 0, 0, err
	}
	var rels []relRecord
	for _, r := range b.mem.relsTouching(dedupeIDs(fromIDs)...) {
		if r.relType == spec.RelType {
			rels = append(rels, r)
		}
	}
	if err := b.persistRels(rels); err != nil {
		return 0, 0, err
	}
	return merged, created, nil
}

// Neighbors reads from the memory engine.
func (b *BadgerStore) Neighbors(ctx context.Context, id NodeID, relType string, dir Direction, targetLabels []string) ([]Neighbor, error) {
	return b.mem.Neighbors(ctx, id, relType, dir, targetLabels)
}

// Reachable reads from the memory engine.
func (b *BadgerStore) Reachable(ctx context.Context, id NodeID, relType string, dir Direction, maxDepth int) ([]PathNode, error) {
	return b.mem.Reachable(ctx, id, relType, dir, maxDepth)
}

// FetchAndAdd advances the counter field and persists the counter node.
func (b *BadgerStore) FetchAndAdd(ctx context.Context, q NodeQuery, field string, delta, initial int64) (int64, map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("fetch and add"); err != nil {
		return 0, nil, err
	}
	affected, err := b.affectedIDs(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	prev, props, err := b.mem.FetchAndAdd(ctx, q, field, delta, initial)
	if err != nil {
		return 0, nil, err
	}
	if err := b.persistNodes(affected...); err != nil {
		return 0, nil, err
	}
	return prev, props, nil
}

// affectedIDs resolves the identities a mutation on q will touch. The
// query's limit is cleared because mutations apply to every match.
func (b *BadgerStore) affectedIDs(ctx context.Context, q NodeQuery) ([]NodeID, error) {
	q.Limit = 0
	matched, err := b.mem.FetchNodes(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]NodeID, 0, len(matched))
	for _, n := range matched {
		ids = append(ids, n.ID)
	}
	return ids, nil
}

// relsBetween returns the persisted shapes of relationships from one node
// to another, optionally filtered by type.
func (b *BadgerStore) relsBetween(from, to NodeID, relType string) []relRecord {
	var out []relRecord
	for _, r := range b.mem.relsTouching(from) {
		if r.from != from || r.to != to {
			continue
		}
		if relType != "" && r.relType != relType {
			continue
		}
		out = append(out, r)
	}
	return out
}

func dedupeIDs(ids []NodeID) []NodeID {
	seen := make(map[NodeID]bool, len(ids))
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Ensure BadgerStore implements Store at compile time.
var _ Store = (*BadgerStore)(nil)
