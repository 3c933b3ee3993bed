package neoschema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graphmeta/neoschema/graph"
)

// DataNodeManager performs schema-validated CRUD on data nodes. Every data
// node carries its class name twice: as a label and as the marker field, so
// both label scans and property queries can select by class.
type DataNodeManager struct {
	store  graph.Store
	reg    *SchemaRegistry
	logger *slog.Logger
}

// ManagerOption configures a DataNodeManager.
type ManagerOption func(*DataNodeManager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *DataNodeManager) { m.logger = logger }
}

// NewDataNodeManager creates a manager over the given store and registry.
func NewDataNodeManager(store graph.Store, reg *SchemaRegistry, opts ...ManagerOption) *DataNodeManager {
	m := &DataNodeManager{
		store:  store,
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DataLink names a relationship to attach while creating a data node.
// Outbound by default; Inbound points the relationship at the new node.
type DataLink struct {
	Target  graph.NodeID
	Name    string
	Inbound bool
	Props   map[string]any
}

// CreateOptions adjusts a CreateDataNode call.
type CreateOptions struct {
	// ExtraLabels are added alongside the class label. Blanks and
	// duplicates are dropped.
	ExtraLabels []string

	// URI, when set, is stored on the node.
	URI string

	// SilentlyDrop makes undeclared properties of a strict class be
	// dropped instead of failing the call.
	SilentlyDrop bool

	// Links are relationships to create together with the node, as one
	// atomic operation: if any target is missing, no node is created.
	Links []DataLink
}

// CreateDataNode creates one data node of the given class. Properties are
// validated against the schema first; the node and its links then go in as
// a single atomic store operation.
func (m *DataNodeManager) CreateDataNode(ctx context.Context, class string, props map[string]any, opt CreateOptions) (graph.NodeID, error) {
	info, err := m.reg.GetClass(ctx, class)
	if err != nil {
		return "", err
	}
	if info.NoDataNodes {
		return "", NewSchemaViolationError(fmt.Sprintf("class %q does not accept data nodes", class))
	}
	filtered, err := m.reg.AllowableProps(ctx, class, props, opt.SilentlyDrop)
	if err != nil {
		return "", err
	}
	id, err := m.createNodeRaw(ctx, class, opt.ExtraLabels, filtered, opt.URI, opt.Links)
	if err != nil {
		return "", err
	}
	m.logger.Debug("created data node", "class", class, "id", id, "links", len(opt.Links))
	return id, nil
}

// createNodeRaw assembles and stores a data node from already-validated
// properties. Shared with the tree importer, which validates against its
// own schema cache.
func (m *DataNodeManager) createNodeRaw(ctx context.Context, class string, extraLabels []string, props map[string]any, uri string, links []DataLink) (graph.NodeID, error) {
	final := make(map[string]any, len(props)+2)
	for k, v := range props {
		final[k] = v
	}
	final[FieldClassName] = class
	if uri != "" {
		final[FieldURI] = uri
	}

	specs := make([]graph.LinkSpec, 0, len(links))
	for _, l := range links {
		if strings.TrimSpace(l.Name) == "" {
			return "", NewValidationError("data link name is required")
		}
		specs = append(specs, graph.LinkSpec{
			Target:  l.Target,
			Type:    l.Name,
			Inbound: l.Inbound,
			Props:   l.Props,
		})
	}

	labels := buildLabelSet(class, extraLabels)
	if len(specs) == 0 {
		return m.store.CreateNode(ctx, labels, final)
	}
	return m.store.CreateNodeLinked(ctx, labels, final, specs)
}

// UpdateOptions adjusts an UpdateDataNode call.
type UpdateOptions struct {
	// DropBlanks turns blank string values into field removals instead of
	// storing the empty string.
	DropBlanks bool

	// Class, when set, constrains the update to a node of that class; a
	// class mismatch updates nothing.
	Class string
}

// UpdateDataNode applies the given field values to one data node. String
// values are trimmed; a value left blank by trimming is either stored empty
// or, with DropBlanks, removes the field. Nil values always remove their
// field. Returns the number of property writes; zero means the node did not
// match (or there was nothing to change).
//
// Updates are not schema-validated: the class's property declarations are
// enforced on creation, not on later edits.
func (m *DataNodeManager) UpdateDataNode(ctx context.Context, id graph.NodeID, set map[string]any, opt UpdateOptions) (int, error) {
	if len(set) == 0 {
		return 0, nil
	}
	setMap := make(map[string]any, len(set))
	var remove []string
	for k, v := range set {
		if k == FieldClassName {
			return 0, NewValidationError("the class marker cannot be modified")
		}
		if v == nil {
			remove = append(remove, k)
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" && opt.DropBlanks {
				remove = append(remove, k)
				continue
			}
			v = s
		}
		setMap[k] = v
	}

	q := graph.NodeQuery{IDs: []graph.NodeID{id}}
	if opt.Class != "" {
		q.Props = map[string]any{FieldClassName: opt.Class}
	}
	n, err := m.store.UpdateNodes(ctx, q, setMap, remove)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("updated data node", "id", id, "writes", n)
	return n, nil
}

// Selector picks data nodes for deletion. Set fields combine conjunctively;
// at least one of ID, Key, or Class must be set.
type Selector struct {
	ID    graph.NodeID
	Key   string
	Value any
	Class string
}

// DeleteDataNodes detach-deletes every data node the selector matches and
// returns how many were deleted.
func (m *DataNodeManager) DeleteDataNodes(ctx context.Context, sel Selector) (int, error) {
	if sel.ID == "" && sel.Key == "" && sel.Class == "" {
		return 0, NewValidationError("delete requires at least one selector")
	}
	q := graph.NodeQuery{}
	if sel.ID != "" {
		q.IDs = []graph.NodeID{sel.ID}
	}
	props := map[string]any{}
	if sel.Key != "" {
		if sel.Value == nil {
			return 0, NewValidationError(fmt.Sprintf("selector value for key %q is required", sel.Key))
		}
		props[sel.Key] = sel.Value
	}
	if sel.Class != "" {
		props[FieldClassName] = sel.Class
	}
	if len(props) > 0 {
		q.Props = props
	}
	n, err := m.store.DeleteNodes(ctx, q)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("deleted data nodes", "count", n)
	return n, nil
}

// AddDataRelationship links two data nodes, provided the schema allows a
// relationship of that name between their classes. Both nodes must carry a
// class marker.
func (m *DataNodeManager) AddDataRelationship(ctx context.Context, from, to graph.NodeID, relName string) error {
	if strings.TrimSpace(relName) == "" {
		return NewValidationError("relationship name is required")
	}
	fromClass, err := m.ClassOfDataNode(ctx, from)
	if err != nil {
		return err
	}
	toClass, err := m.ClassOfDataNode(ctx, to)
	if err != nil {
		return err
	}
	allowed, err := m.reg.IsLinkAllowed(ctx, relName, fromClass, toClass)
	if err != nil {
		return err
	}
	if !allowed {
		return NewSchemaViolationError(fmt.Sprintf("relationship %q from class %q to class %q is not declared in the schema", relName, fromClass, toClass))
	}
	if err := m.store.CreateRelationship(ctx, from, to, relName, nil); err != nil {
		return err
	}
	m.logger.Debug("added data relationship", "rel", relName, "from_class", fromClass, "to_class", toClass)
	return nil
}

// RemoveDataRelationship removes the named relationship between two data
// nodes. Removing a relationship that does not exist is an error.
func (m *DataNodeManager) RemoveDataRelationship(ctx context.Context, from, to graph.NodeID, relName string) error {
	if strings.TrimSpace(relName) == "" {
		return NewValidationError("relationship name is required")
	}
	n, err := m.store.DeleteRelationships(ctx, from, to, relName)
	if err != nil {
		return err
	}
	if n == 0 {
		return NewNotFoundError(fmt.Sprintf("no %q relationship between the given nodes", relName))
	}
	return nil
}

// AddDataNodeMerge finds the data node of the class carrying exactly the
// given properties, or creates it. The bool reports whether a node was
// created. Strict classes reject undeclared properties outright; nil
// property values are rejected because they can never match.
func (m *DataNodeManager) AddDataNodeMerge(ctx context.Context, class string, props map[string]any) (graph.NodeID, bool, error) {
	info, err := m.reg.GetClass(ctx, class)
	if err != nil {
		return "", false, err
	}
	if info.NoDataNodes {
		return "", false, NewSchemaViolationError(fmt.Sprintf("class %q does not accept data nodes", class))
	}
	filtered, err := m.reg.AllowableProps(ctx, class, props, false)
	if err != nil {
		return "", false, err
	}
	if len(filtered) == 0 {
		return "", false, NewValidationError("merge requires at least one property")
	}
	for k, v := range filtered {
		if v == nil {
			return "", false, NewValidationError(fmt.Sprintf("property %q is nil; merge requires concrete values", k))
		}
	}
	merged := make(map[string]any, len(filtered)+1)
	for k, v := range filtered {
		merged[k] = v
	}
	merged[FieldClassName] = class

	id, created, err := m.store.MergeNode(ctx, []string{class}, merged)
	if err != nil {
		return "", false, err
	}
	m.logger.Debug("merged data node", "class", class, "id", id, "created", created)
	return id, created, nil
}

// FetchDataNode returns one data node by identity, with the class marker
// stripped from its properties.
func (m *DataNodeManager) FetchDataNode(ctx context.Context, id graph.NodeID) (graph.Node, error) {
	nodes, err := m.store.FetchNodes(ctx, graph.NodeQuery{IDs: []graph.NodeID{id}})
	if err != nil {
		return graph.Node{}, err
	}
	if len(nodes) == 0 {
		return graph.Node{}, NewNotFoundError(fmt.Sprintf("data node %q does not exist", id))
	}
	node := nodes[0]
	delete(node.Props, FieldClassName)
	return node, nil
}

// DataNodesOfClass returns every data node carrying the class's marker,
// markers stripped. An unknown class simply matches nothing.
func (m *DataNodeManager) DataNodesOfClass(ctx context.Context, class string) ([]graph.Node, error) {
	if strings.TrimSpace(class) == "" {
		return nil, NewValidationError("class name is required")
	}
	nodes, err := m.store.FetchNodes(ctx, graph.NodeQuery{Props: map[string]any{FieldClassName: class}})
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		delete(nodes[i].Props, FieldClassName)
	}
	return nodes, nil
}

// ClassOfDataNode returns the class a data node belongs to, read from its
// marker field.
func (m *DataNodeManager) ClassOfDataNode(ctx context.Context, id graph.NodeID) (string, error) {
	nodes, err := m.store.FetchNodes(ctx, graph.NodeQuery{IDs: []graph.NodeID{id}})
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", NewNotFoundError(fmt.Sprintf("data node %q does not exist", id))
	}
	class := nodes[0].GetString(FieldClassName)
	if class == "" {
		return "", NewValidationError(fmt.Sprintf("node %q carries no class marker", id))
	}
	return class, nil
}

// NodeIDByURI resolves a node by its uri field.
func (m *DataNodeManager) NodeIDByURI(ctx context.Context, uri string) (graph.NodeID, error) {
	if uri == "" {
		return "", NewValidationError("uri is required")
	}
	nodes, err := m.store.FetchNodes(ctx, graph.NodeQuery{Props: map[string]any{FieldURI: uri}, Limit: 2})
	if err != nil {
		return "", err
	}
	switch len(nodes) {
	case 0:
		return "", NewNotFoundError(fmt.Sprintf("no node has uri %q", uri))
	case 1:
		return nodes[0].ID, nil
	default:
		return "", NewDuplicateError(fmt.Sprintf("multiple nodes share uri %q", uri))
	}
}

// buildLabelSet returns the class label followed by the trimmed extras,
// blanks and duplicates dropped.
func buildLabelSet(class string, extras []string) []string {
	labels := []string{class}
	seen := map[string]bool{class: true}
	for _, l := range extras {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}
	return labels
}
