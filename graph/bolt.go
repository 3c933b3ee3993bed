package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// BoltStore implements Store against a Neo4j-compatible server over the bolt
// protocol. Every Store call is rendered as one parameterized Cypher
// statement and executed in its own managed transaction, which is what makes
// the individual calls atomic.
type BoltStore struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

// NewBolt creates a bolt-backed store from the given configuration. The
// store is not connected until Connect is called.
func NewBolt(config Config) (*BoltStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BoltStore{
		config: config,
		logger: slog.Default(),
	}, nil
}

// Connect creates the driver and verifies connectivity, retrying with
// exponential backoff on transient failures.
func (s *BoltStore) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(s.config.Username, s.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = s.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = s.config.ConnectionTimeout
		config.MaxTransactionRetryTime = s.config.MaxTransactionRetryTime
	}

	const maxRetries = 5
	baseDelay := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(s.config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				s.mu.Lock()
				s.driver = driver
				s.mu.Unlock()
				s.logger.Info("connected to graph store", "uri", s.config.URI, "database", s.config.Database)
				return nil
			}
			driver.Close(ctx)
		}
		lastErr = err
		s.logger.Warn("graph store connection attempt failed",
			"uri", s.config.URI,
			"attempt", attempt+1,
			"error", err)

		select {
		case <-ctx.Done():
			return NewConnectionError("connection cancelled", ctx.Err())
		case <-time.After(baseDelay * (1 << attempt)):
		}
	}
	return NewConnectionError(fmt.Sprintf("failed to connect to %s after %d attempts", s.config.URI, maxRetries), lastErr)
}

// Close shuts down the driver. The store cannot be reused afterwards.
func (s *BoltStore) Close(ctx context.Context) error {
	s.mu.Lock()
	driver := s.driver
	s.driver = nil
	s.mu.Unlock()
	if driver == nil {
		return nil
	}
	return driver.Close(ctx)
}

// Health verifies server connectivity.
func (s *BoltStore) Health(ctx context.Context) HealthStatus {
	s.mu.RLock()
	driver := s.driver
	s.mu.RUnlock()
	if driver == nil {
		return Unhealthy("not connected")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}
	return Healthy(fmt.Sprintf("connected to %s", s.config.URI))
}

// boltResult carries the rows and mutation counters of one statement.
type boltResult struct {
	records []map[string]any
	summary Summary
}

// run executes one statement in a managed transaction and collects rows and
// counters.
func (s *BoltStore) run(ctx context.Context, write bool, cypher string, params map[string]any) (*boltResult, error) {
	s.mu.RLock()
	driver := s.driver
	s.mu.RUnlock()
	if driver == nil {
		return nil, NewConnectionError("store is not connected", nil)
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var records []map[string]any
		for result.Next(ctx) {
			rec := result.Record()
			row := make(map[string]any, len(rec.Keys))
			for _, key := range rec.Keys {
				val, _ := rec.Get(key)
				row[key] = val
			}
			records = append(records, row)
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		sum, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		counters := sum.Counters()
		return &boltResult{
			records: records,
			summary: Summary{
				NodesCreated:         counters.NodesCreated(),
				NodesDeleted:         counters.NodesDeleted(),
				RelationshipsCreated: counters.RelationshipsCreated(),
				RelationshipsDeleted: counters.RelationshipsDeleted(),
				PropertiesSet:        counters.PropertiesSet(),
			},
		}, nil
	}

	var raw any
	var err error
	if write {
		raw, err = session.ExecuteWrite(ctx, work)
	} else {
		raw, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, NewQueryError("statement execution failed", err).WithContext("statement", firstLine(cypher))
	}
	return raw.(*boltResult), nil
}

// CreateNode creates one node and returns its element id.
func (s *BoltStore) CreateNode(ctx context.Context, labels []string, props map[string]any) (NodeID, error) {
	cypher := fmt.Sprintf("CREATE (n%s) SET n = $props RETURN elementId(n) AS id", labelExpr(labels))
	res, err := s.run(ctx, true, cypher, map[string]any{"props": nonNilProps(props)})
	if err != nil {
		return "", err
	}
	if len(res.records) == 0 {
		return "", NewQueryError("node creation returned no identity", nil)
	}
	return NodeID(asString(res.records[0]["id"])), nil
}

// CreateNodeLinked creates a node plus its relationships in one statement.
// When any link target does not exist the MATCH produces no rows and the
// server creates nothing, which the counters reveal.
func (s *BoltStore) CreateNodeLinked(ctx context.Context, labels []string, props map[string]any, links []LinkSpec) (NodeID, error) {
	if len(links) == 0 {
		return s.CreateNode(ctx, labels, props)
	}

	params := map[string]any{"props": nonNilProps(props)}
	var b strings.Builder
	for i, l := range links {
		if l.Type == "" {
			return "", NewQueryError(fmt.Sprintf("link %d has no relationship type", i), nil)
		}
		fmt.Fprintf(&b, "MATCH (t%d) WHERE elementId(t%d) = $lt%d\n", i, i, i)
		params[fmt.Sprintf("lt%d", i)] = string(l.Target)
	}
	fmt.Fprintf(&b, "CREATE (n%s) SET n = $props\n", labelExpr(labels))
	for i, l := range links {
		if l.Inbound {
			fmt.Fprintf(&b, "CREATE (t%d)-[r%d%s]->(n)", i, i, relTypeExpr(l.Type))
		} else {
			fmt.Fprintf(&b, "CREATE (n)-[r%d%s]->(t%d)", i, relTypeExpr(l.Type), i)
		}
		if len(l.Props) > 0 {
			fmt.Fprintf(&b, " SET r%d = $lp%d", i, i)
			params[fmt.Sprintf("lp%d", i)] = l.Props
		}
		b.WriteString("\n")
	}
	b.WriteString("RETURN elementId(n) AS id")

	res, err := s.run(ctx, true, b.String(), params)
	if err != nil {
		return "", err
	}
	if res.summary.NodesCreated != 1 || res.summary.RelationshipsCreated != len(links) {
		return "", NewReferenceError("node creation with links aborted, link target missing",
			len(links), res.summary.RelationshipsCreated)
	}
	return NodeID(asString(res.records[0]["id"])), nil
}

// CreateNodes creates one node per record in a single UNWIND statement.
func (s *BoltStore) CreateNodes(ctx context.Context, labels []string, records []map[string]any) ([]NodeID, error) {
	if len(records) == 0 {
		return nil, nil
	}
	cypher := fmt.Sprintf("UNWIND $records AS rec CREATE (n%s) SET n = rec RETURN elementId(n) AS id", labelExpr(labels))
	res, err := s.run(ctx, true, cypher, map[string]any{"records": recordsParam(records)})
	if err != nil {
		return nil, err
	}
	ids := make([]NodeID, 0, len(res.records))
	for _, row := range res.records {
		ids = append(ids, NodeID(asString(row["id"])))
	}
	return ids, nil
}

// FetchNodes returns nodes matching the query.
func (s *BoltStore) FetchNodes(ctx context.Context, q NodeQuery) ([]Node, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH (n%s)%s RETURN %s%s",
		labelExpr(q.Labels), whereClause("n", q, params), returnNode("n"), limitClause(q.Limit))
	res, err := s.run(ctx, false, cypher, params)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(res.records))
	for _, row := range res.records {
		nodes = append(nodes, nodeFromRow(row))
	}
	return nodes, nil
}

// CountNodes counts nodes matching the query.
func (s *BoltStore) CountNodes(ctx context.Context, q NodeQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH (n%s)%s RETURN count(n) AS c",
		labelExpr(q.Labels), whereClause("n", q, params))
	res, err := s.run(ctx, false, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(res.records) == 0 {
		return 0, nil
	}
	return asInt(res.records[0]["c"]), nil
}

// UpdateNodes sets and removes properties on every matching node.
func (s *BoltStore) UpdateNodes(ctx context.Context, q NodeQuery, set map[string]any, remove []string) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if len(set) == 0 && len(remove) == 0 {
		return 0, nil
	}
	params := map[string]any{}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n%s)%s", labelExpr(q.Labels), whereClause("n", q, params))
	if len(set) > 0 {
		parts := make([]string, 0, len(set))
		for i, k := range sortedKeys(set) {
			name := fmt.Sprintf("s%d", i)
			parts = append(parts, fmt.Sprintf("n.%s = $%s", quoteIdent(k), name))
			params[name] = set[k]
		}
		b.WriteString(" SET " + strings.Join(parts, ", "))
	}
	if len(remove) > 0 {
		parts := make([]string, 0, len(remove))
		for _, k := range remove {
			parts = append(parts, "n."+quoteIdent(k))
		}
		b.WriteString(" REMOVE " + strings.Join(parts, ", "))
	}
	res, err := s.run(ctx, true, b.String(), params)
	if err != nil {
		return 0, err
	}
	return res.summary.PropertiesSet, nil
}

// DeleteNodes detach-deletes every matching node.
func (s *BoltStore) DeleteNodes(ctx context.Context, q NodeQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	params := map[string]any{}
	cypher := fmt.Sprintf("MATCH (n%s)%s DETACH DELETE n",
		labelExpr(q.Labels), whereClause("n", q, params))
	res, err := s.run(ctx, true, cypher, params)
	if err != nil {
		return 0, err
	}
	return res.summary.NodesDeleted, nil
}

// MergeNode finds or atomically creates a node on the (labels, props)
// pattern.
func (s *BoltStore) MergeNode(ctx context.Context, labels []string, props map[string]any) (NodeID, bool, error) {
	if len(labels) == 0 {
		return "", false, NewQueryError("merge requires at least one label", nil)
	}
	params := map[string]any{}
	cypher := fmt.Sprintf("MERGE (n%s%s) RETURN elementId(n) AS id",
		labelExpr(labels), inlinePropMap("m", props, params))
	res, err := s.run(ctx, true, cypher, params)
	if err != nil {
		return "", false, err
	}
	if len(res.records) == 0 {
		return "", false, NewQueryError("merge returned no identity", nil)
	}
	return NodeID(asString(res.records[0]["id"])), res.summary.NodesCreated > 0, nil
}

// MergeNodes merges one node per record keyed on the named property.
func (s *BoltStore) MergeNodes(ctx context.Context, labels []string, key string, records []map[string]any, replace bool) ([]NodeID, int, error) {
	if len(labels) == 0 {
		return nil, 0, NewQueryError("merge requires at least one label", nil)
	}
	if key == "" {
		return nil, 0, NewQueryError("merge requires a key property", nil)
	}
	if len(records) == 0 {
		return nil, 0, nil
	}
	for i, rec := range records {
		if _, ok := rec[key]; !ok {
			return nil, 0, NewQueryError(fmt.Sprintf("record %d is missing merge key %q", i, key), nil)
		}
	}
	setClause := "SET n += rec"
	if replace {
		setClause = "SET n = rec"
	}
	cypher := fmt.Sprintf("UNWIND $records AS rec MERGE (n%s {%s: rec.%s}) %s RETURN elementId(n) AS id",
		labelExpr(labels), quoteIdent(key), quoteIdent(key), setClause)
	res, err := s.run(ctx, true, cypher, map[string]any{"records": recordsParam(records)})
	if err != nil {
		return nil, 0, err
	}
	ids := make([]NodeID, 0, len(res.records))
	for _, row := range res.records {
		ids = append(ids, NodeID(asString(row["id"])))
	}
	return ids, res.summary.NodesCreated, nil
}

// CreateRelationship creates one relationship between existing nodes.
func (s *BoltStore) CreateRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return NewQueryError("relationship type is required", nil)
	}
	params := map[string]any{"from": string(from), "to": string(to)}
	var b strings.Builder
	b.WriteString("MATCH (a) WHERE elementId(a) = $from\n")
	b.WriteString("MATCH (b) WHERE elementId(b) = $to\n")
	fmt.Fprintf(&b, "CREATE (a)-[r%s]->(b)", relTypeExpr(relType))
	if len(props) > 0 {
		b.WriteString(" SET r = $rprops")
		params["rprops"] = props
	}
	res, err := s.run(ctx, true, b.String(), params)
	if err != nil {
		return err
	}
	if res.summary.RelationshipsCreated != 1 {
		return NewReferenceError(fmt.Sprintf("create %s relationship", relType), 1, res.summary.RelationshipsCreated)
	}
	return nil
}

// MergeRelationship creates the relationship unless the identical one
// already exists.
func (s *BoltStore) MergeRelationship(ctx context.Context, from, to NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return NewQueryError("relationship type is required", nil)
	}
	params := map[string]any{"from": string(from), "to": string(to)}
	var b strings.Builder
	b.WriteString("MATCH (a) WHERE elementId(a) = $from\n")
	b.WriteString("MATCH (b) WHERE elementId(b) = $to\n")
	fmt.Fprintf(&b, "MERGE (a)-[r%s]->(b)", relTypeExpr(relType))
	if len(props) > 0 {
		b.WriteString(" SET r += $rprops")
		params["rprops"] = props
	}
	b.WriteString("\nRETURN count(r) AS c")
	res, err := s.run(ctx, true, b.String(), params)
	if err != nil {
		return err
	}
	if len(res.records) == 0 {
		return NewReferenceError(fmt.Sprintf("merge %s relationship, endpoint missing", relType), 1, 0)
	}
	return nil
}

// DeleteRelationships removes relationships of the given type from one node
// to another.
func (s *BoltStore) DeleteRelationships(ctx context.Context, from, to NodeID, relType string) (int, error) {
	params := map[string]any{"from": string(from), "to": string(to)}
	cypher := fmt.Sprintf("MATCH (a)%s(b) WHERE elementId(a) = $from AND elementId(b) = $to DELETE r",
		relPattern("r", relType, Outbound))
	res, err := s.run(ctx, true, cypher, params)
	if err != nil {
		return 0, err
	}
	return res.summary.RelationshipsDeleted, nil
}

// MergeRelationshipsBulk merges one relationship per row in a single UNWIND
// statement. Rows whose endpoints bind nothing drop out of the MATCH and do
// not count as merged.
func (s *BoltStore) MergeRelationshipsBulk(ctx context.Context, spec BulkLinkSpec, rows []BulkLinkRow) (int, int, error) {
	if err := spec.Validate(); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	rowParams := make([]any, 0, len(rows))
	for _, row := range rows {
		m := map[string]any{"from": row.From, "to": row.To}
		if len(row.Props) > 0 {
			m["props"] = row.Props
		}
		rowParams = append(rowParams, m)
	}
	var b strings.Builder
	b.WriteString("UNWIND $rows AS row\n")
	fmt.Fprintf(&b, "MATCH (f%s) WHERE f.%s = row.from\n", labelExpr(spec.FromLabels), quoteIdent(spec.FromKey))
	fmt.Fprintf(&b, "MATCH (t%s) WHERE t.%s = row.to\n", labelExpr(spec.ToLabels), quoteIdent(spec.ToKey))
	fmt.Fprintf(&b, "MERGE (f)-[r%s]->(t)\n", relTypeExpr(spec.RelType))
	b.WriteString("SET r += coalesce(row.props, {})\n")
	b.WriteString("RETURN count(r) AS merged")
	res, err := s.run(ctx, true, b.String(), map[string]any{"rows": rowParams})
	if err != nil {
		return 0, 0, err
	}
	merged := 0
	if len(res.records) > 0 {
		merged = asInt(res.records[0]["merged"])
	}
	return merged, res.summary.RelationshipsCreated, nil
}

// Neighbors returns nodes adjacent to id together with the connecting
// relationship.
func (s *BoltStore) Neighbors(ctx context.Context, id NodeID, relType string, dir Direction, targetLabels []string) ([]Neighbor, error) {
	params := map[string]any{"id": string(id)}
	cypher := fmt.Sprintf(
		"MATCH (n) WHERE elementId(n) = $id\nMATCH (n)%s(m%s)\nRETURN %s, type(r) AS rel_type, properties(r) AS rel_props",
		relPattern("r", relType, dir), labelExpr(targetLabels), returnNode("m"))
	res, err := s.run(ctx, false, cypher, params)
	if err != nil {
		return nil, err
	}
	neighbors := make([]Neighbor, 0, len(res.records))
	for _, row := range res.records {
		nb := Neighbor{
			Node:    nodeFromRow(row),
			RelType: asString(row["rel_type"]),
		}
		if m, ok := row["rel_props"].(map[string]any); ok {
			nb.RelProps = m
		} else {
			nb.RelProps = map[string]any{}
		}
		neighbors = append(neighbors, nb)
	}
	return neighbors, nil
}

// Reachable returns nodes reachable over 1..maxDepth hops of relType,
// ordered by shortest depth.
func (s *BoltStore) Reachable(ctx context.Context, id NodeID, relType string, dir Direction, maxDepth int) ([]PathNode, error) {
	params := map[string]any{"id": string(id)}
	cypher := fmt.Sprintf(
		"MATCH (n) WHERE elementId(n) = $id\n"+
			"MATCH p = (n)%s(m)\n"+
			"WHERE elementId(m) <> elementId(n)\n"+
			"WITH m, min(length(p)) AS depth\n"+
			"RETURN %s, depth ORDER BY depth ASC",
		varLengthPattern(relType, dir, maxDepth), returnNode("m"))
	res, err := s.run(ctx, false, cypher, params)
	if err != nil {
		return nil, err
	}
	nodes := make([]PathNode, 0, len(res.records))
	for _, row := range res.records {
		nodes = append(nodes, PathNode{Node: nodeFromRow(row), Depth: asInt(row["depth"])})
	}
	return nodes, nil
}

// FetchAndAdd advances an integer field on the single node matching q in one
// statement, so concurrent callers observe distinct previous values.
func (s *BoltStore) FetchAndAdd(ctx context.Context, q NodeQuery, field string, delta, initial int64) (int64, map[string]any, error) {
	if err := q.Validate(); err != nil {
		return 0, nil, err
	}
	if field == "" {
		return 0, nil, NewQueryError("fetch-and-add requires a field name", nil)
	}
	params := map[string]any{"delta": delta, "init": initial}
	f := quoteIdent(field)
	cypher := fmt.Sprintf(
		"MATCH (n%s)%s SET n.%s = coalesce(n.%s, $init) + $delta RETURN n.%s - $delta AS prev, properties(n) AS props",
		labelExpr(q.Labels), whereClause("n", q, params), f, f, f)
	res, err := s.run(ctx, true, cypher, params)
	if err != nil {
		return 0, nil, err
	}
	switch len(res.records) {
	case 0:
		return 0, nil, NewNodeNotFoundError("fetch-and-add matched no node")
	case 1:
	default:
		return 0, nil, NewAmbiguousMatchError(fmt.Sprintf("fetch-and-add advanced %d nodes, expected one", len(res.records)))
	}
	props, _ := res.records[0]["props"].(map[string]any)
	return asInt64(res.records[0]["prev"]), props, nil
}

// nodeFromRow builds a Node from the standard id/labels/props projection.
func nodeFromRow(row map[string]any) Node {
	n := Node{
		ID:     NodeID(asString(row["id"])),
		Labels: toStringSlice(row["labels"]),
	}
	if m, ok := row["props"].(map[string]any); ok {
		n.Props = m
	} else {
		n.Props = map[string]any{}
	}
	return n
}

// nonNilProps substitutes an empty map for nil so SET n = $props is valid.
func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

// recordsParam converts records to the []any shape the driver expects.
func recordsParam(records []map[string]any) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = nonNilProps(rec)
	}
	return out
}

// firstLine returns the first line of a statement for error context.
func firstLine(cypher string) string {
	if i := strings.IndexByte(cypher, '\n'); i >= 0 {
		return cypher[:i]
	}
	return cypher
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Ensure BoltStore implements Store at compile time.
var _ Store = (*BoltStore)(nil)
