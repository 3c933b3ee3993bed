// Package graph provides the storage client used by the neoschema engine.
//
// The engine talks to a labeled-property graph through the Store interface,
// which works at the level of node/relationship patterns rather than query
// text. Backends translate each call into whatever their storage speaks:
// the bolt backend renders a single parameterized Cypher statement per call,
// the memory backend mutates indexed maps under a lock, and the badger
// backend adds write-through persistence on top of the memory engine.
//
// Because every Store call maps to one statement (one transaction), the
// operations the engine relies on for correctness under concurrency, such as
// FetchAndAdd and MergeNode, are atomic in every backend.
package graph

import (
	"context"
	"fmt"
	"time"
)

// NodeID is an opaque node identity assigned by the store. Under the bolt
// backend it is the server's element id; the memory and badger backends
// mint UUIDs. IDs are only meaningful to the store that issued them.
type NodeID string

// Node is a node returned by a Store, with its identity, labels, and full
// property map. Returned maps and slices are copies owned by the caller.
type Node struct {
	ID     NodeID
	Labels []string
	Props  map[string]any
}

// GetString returns a string property, or "" if absent or not a string.
func (n Node) GetString(key string) string {
	if v, ok := n.Props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// HasLabel reports whether the node carries the given label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// NodeQuery describes a conjunctive node pattern. A node matches when it
// carries every label in Labels, every key in Props compares equal, and its
// identity is in IDs when IDs is non-empty. Props values must be non-nil;
// equality against nil never matches.
type NodeQuery struct {
	Labels []string
	Props  map[string]any
	IDs    []NodeID
	Limit  int // 0 means no limit
}

// Validate checks the query for values no backend can match.
func (q NodeQuery) Validate() error {
	for k, v := range q.Props {
		if k == "" {
			return NewQueryError("query property with empty key", nil)
		}
		if v == nil {
			return NewQueryError(fmt.Sprintf("query property %q has nil value", k), nil)
		}
	}
	if q.Limit < 0 {
		return NewQueryError(fmt.Sprintf("negative limit %d", q.Limit), nil)
	}
	return nil
}

// LinkSpec describes one relationship to attach to a node being created with
// CreateNodeLinked. The relationship runs from the new node to Target, or the
// reverse when Inbound is set.
type LinkSpec struct {
	Target  NodeID
	Type    string
	Inbound bool
	Props   map[string]any
}

// Direction selects which relationships Neighbors and Reachable follow,
// relative to the start node.
type Direction int

const (
	Outbound Direction = iota
	Inbound
	Both
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Neighbor is one node adjacent to the start node, together with the
// relationship that connects them.
type Neighbor struct {
	Node     Node
	RelType  string
	RelProps map[string]any
}

// PathNode is a node reached by a variable-length traversal. Depth is the
// number of hops from the start node along the shortest qualifying path,
// always >= 1 (the start node is never included).
type PathNode struct {
	Node  Node
	Depth int
}

// BulkLinkSpec names the endpoint patterns for MergeRelationshipsBulk: nodes
// are matched by carrying the respective labels plus key = row value.
type BulkLinkSpec struct {
	FromLabels []string
	FromKey    string
	ToLabels   []string
	ToKey      string
	RelType    string
}

// Validate checks that the spec names both endpoint keys and a type.
func (s BulkLinkSpec) Validate() error {
	if s.FromKey == "" || s.ToKey == "" {
		return NewQueryError("bulk link spec requires from and to keys", nil)
	}
	if s.RelType == "" {
		return NewQueryError("bulk link spec requires a relationship type", nil)
	}
	return nil
}

// BulkLinkRow is one relationship to merge: From and To are the key values
// identifying the endpoints, Props (optional) is set on the relationship.
type BulkLinkRow struct {
	From  any
	To    any
	Props map[string]any
}

// Summary carries the mutation statistics a backend observed for one call.
type Summary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Store is the storage contract the neoschema engine is written against.
//
// Implementations must be safe for concurrent use, and every method must be
// atomic: either the whole mutation applies or none of it does. Context
// cancellation is respected on all blocking operations.
type Store interface {
	// Connect establishes the connection to the underlying storage.
	Connect(ctx context.Context) error

	// Close releases all resources. The store is unusable afterwards.
	Close(ctx context.Context) error

	// Health reports the current health of the store.
	Health(ctx context.Context) HealthStatus

	// CreateNode creates one node and returns its identity. Nil-valued
	// properties are dropped, matching what a Cypher SET of a map does;
	// the same holds for every other node-creating method.
	CreateNode(ctx context.Context, labels []string, props map[string]any) (NodeID, error)

	// CreateNodeLinked creates one node together with relationships to
	// already-existing nodes, atomically. If any link target is missing,
	// nothing is created and the error reports the expected versus actual
	// relationship counts.
	CreateNodeLinked(ctx context.Context, labels []string, props map[string]any, links []LinkSpec) (NodeID, error)

	// CreateNodes creates one node per record and returns identities in
	// record order.
	CreateNodes(ctx context.Context, labels []string, records []map[string]any) ([]NodeID, error)

	// FetchNodes returns the nodes matching the query.
	FetchNodes(ctx context.Context, q NodeQuery) ([]Node, error)

	// CountNodes returns the number of nodes matching the query.
	CountNodes(ctx context.Context, q NodeQuery) (int, error)

	// UpdateNodes sets every key in set and removes every field named in
	// remove, on every matching node. A nil value in set removes the
	// field, matching what a Cypher "SET n += map" does. It returns the
	// number of property writes performed; zero means no node matched or
	// there was nothing to change.
	UpdateNodes(ctx context.Context, q NodeQuery, set map[string]any, remove []string) (int, error)

	// DeleteNodes detach-deletes every matching node and returns how many
	// were deleted.
	DeleteNodes(ctx context.Context, q NodeQuery) (int, error)

	// MergeNode finds a node carrying all the labels whose properties
	// include exactly the given key/value pairs, or creates one with that
	// label set and property map. The bool reports whether a node was
	// created. The find-or-create step is atomic.
	MergeNode(ctx context.Context, labels []string, props map[string]any) (NodeID, bool, error)

	// MergeNodes merges one node per record, keyed on the named property,
	// which every record must contain. With replace set, an existing
	// node's whole property map is replaced by the record; otherwise the
	// record's fields overlay the existing ones. Returns identities in
	// record order (repeats allowed when records share a key) and the
	// number of nodes created.
	MergeNodes(ctx context.Context, labels []string, key string, records []map[string]any, replace bool) ([]NodeID, int, error)

	// CreateRelationship creates one relationship between existing nodes.
	// A missing endpoint is an error and nothing is created.
	CreateRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error

	// MergeRelationship creates the relationship unless an identical
	// (from, type, to) one already exists, in which case props overlay the
	// existing ones. A missing endpoint is an error.
	MergeRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error

	// DeleteRelationships removes relationships of the given type between
	// the two nodes and returns how many were removed. An empty relType
	// removes relationships of any type.
	DeleteRelationships(ctx context.Context, from, to NodeID, relType string) (int, error)

	// MergeRelationshipsBulk merges one relationship per row between nodes
	// located by the spec's endpoint patterns, in one operation. Rows whose
	// endpoints match nothing bind no relationship; a nil endpoint value
	// never matches, as with a Cypher null. Returns the number of
	// relationships merged (matched or created) and the number actually
	// created; merged < len(rows) means some rows did not bind.
	MergeRelationshipsBulk(ctx context.Context, spec BulkLinkSpec, rows []BulkLinkRow) (merged, created int, err error)

	// Neighbors returns the nodes adjacent to id via relationships of the
	// given type (any type when relType is empty) in the given direction,
	// optionally restricted to targets carrying all targetLabels.
	Neighbors(ctx context.Context, id NodeID, relType string, dir Direction, targetLabels []string) ([]Neighbor, error)

	// Reachable returns the nodes reachable from id over 1..maxDepth hops
	// of relType in the given direction, each with its shortest depth,
	// ordered by ascending depth. maxDepth <= 0 means unbounded.
	Reachable(ctx context.Context, id NodeID, relType string, dir Direction, maxDepth int) ([]PathNode, error)

	// FetchAndAdd atomically adds delta to an integer field of the single
	// node matching q and returns the field's previous value along with
	// the node's full post-update property map. A missing field reads as
	// initial. It is an error for the query to match zero or several
	// nodes.
	FetchAndAdd(ctx context.Context, q NodeQuery, field string, delta, initial int64) (int64, map[string]any, error)
}

// Config holds the connection settings for the bolt backend.
type Config struct {
	// URI is the connection string, e.g. "neo4j://localhost:7687" or
	// "bolt://localhost:7687".
	URI string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// Database is the database name. Empty selects the server default.
	Database string

	// MaxConnectionPoolSize limits concurrent connections.
	MaxConnectionPoolSize int

	// ConnectionTimeout bounds how long to wait when establishing a
	// connection.
	ConnectionTimeout time.Duration

	// MaxTransactionRetryTime bounds the driver's automatic retries of
	// transient transaction failures.
	MaxTransactionRetryTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults for a local server.
func DefaultConfig() Config {
	return Config{
		URI:                     "neo4j://localhost:7687",
		Username:                "neo4j",
		Database:                "neo4j",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 30 * time.Second,
	}
}

// Validate checks the configuration for missing or invalid settings.
func (c Config) Validate() error {
	if c.URI == "" {
		return NewConfigError("URI is required", nil)
	}
	if c.Username == "" {
		return NewConfigError("username is required", nil)
	}
	if c.MaxConnectionPoolSize < 1 {
		return NewConfigError(fmt.Sprintf("max connection pool size must be positive, got %d", c.MaxConnectionPoolSize), nil)
	}
	if c.ConnectionTimeout <= 0 {
		return NewConfigError("connection timeout must be positive", nil)
	}
	if c.MaxTransactionRetryTime < 0 {
		return NewConfigError("max transaction retry time cannot be negative", nil)
	}
	return nil
}
