package neoschema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/graphmeta/neoschema/graph"
)

// Schema node fields.
const (
	fieldName        = "name"
	fieldStrict      = "strict"
	fieldCode        = "code"
	fieldNoDataNodes = "no_datanodes"
	fieldDType       = "dtype"
	fieldRequired    = "required"
	fieldSystem      = "system"
)

// Schema nodes mint their URIs from a dedicated namespace.
const (
	schemaNamespace = "schema"
	schemaURIPrefix = "schema-"
)

// SchemaRegistry manages the schema layer of the graph: Class nodes, their
// Property nodes, and the declared relationships between classes. Every
// schema decision the engine makes (which properties a data node may carry,
// which relationships two data nodes may form) is answered here.
//
// Composite operations such as CreateClassWithProperties run as a sequence
// of separate store calls; a failure partway leaves the earlier steps
// behind, and the returned error says which step failed.
type SchemaRegistry struct {
	store   graph.Store
	counter *NamespaceCounter
	logger  *slog.Logger
}

// RegistryOption configures a SchemaRegistry.
type RegistryOption func(*SchemaRegistry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *SchemaRegistry) { r.logger = logger }
}

// WithNamespaceCounter sets the counter used to mint schema URIs. By default
// the registry owns a counter over its own store.
func WithNamespaceCounter(counter *NamespaceCounter) RegistryOption {
	return func(r *SchemaRegistry) { r.counter = counter }
}

// NewSchemaRegistry creates a registry over the given store.
func NewSchemaRegistry(store graph.Store, opts ...RegistryOption) *SchemaRegistry {
	r := &SchemaRegistry{
		store:   store,
		counter: NewNamespaceCounter(store),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateClass declares a new class. The name must be unique among classes.
func (r *SchemaRegistry) CreateClass(ctx context.Context, spec ClassSpec) (ClassInfo, error) {
	if err := validateSchemaName("class", spec.Name); err != nil {
		return ClassInfo{}, err
	}
	exists, err := r.ClassExists(ctx, spec.Name)
	if err != nil {
		return ClassInfo{}, err
	}
	if exists {
		return ClassInfo{}, NewDuplicateError(fmt.Sprintf("class %q already exists", spec.Name))
	}

	uri, err := r.mintSchemaURI(ctx)
	if err != nil {
		return ClassInfo{}, err
	}
	props := map[string]any{
		fieldName:   spec.Name,
		FieldURI:    uri,
		fieldStrict: spec.Strict,
	}
	if spec.Code != "" {
		props[fieldCode] = spec.Code
	}
	if spec.NoDataNodes {
		props[fieldNoDataNodes] = true
	}
	id, err := r.store.CreateNode(ctx, []string{LabelSchema, LabelClass}, props)
	if err != nil {
		return ClassInfo{}, err
	}
	r.logger.Debug("created class", "class", spec.Name, "uri", uri, "strict", spec.Strict)
	return ClassInfo{
		ID:          id,
		Name:        spec.Name,
		Code:        spec.Code,
		URI:         uri,
		Strict:      spec.Strict,
		NoDataNodes: spec.NoDataNodes,
	}, nil
}

// CreateClassWithProperties creates a class, declares its properties, and
// optionally links it to another class, in that order. The steps are
// separate store operations: when a later step fails the class stays
// behind, the returned ClassInfo still describes it, and the error names
// the step that failed.
//
// A nil link declares no relationship. A link with an empty Name declares
// inheritance (INSTANCE_OF).
func (r *SchemaRegistry) CreateClassWithProperties(ctx context.Context, spec ClassSpec, props []PropertySpec, link *ClassLink) (ClassInfo, error) {
	info, err := r.CreateClass(ctx, spec)
	if err != nil {
		return ClassInfo{}, err
	}
	if len(props) > 0 {
		if _, err := r.AddProperties(ctx, info.Name, props); err != nil {
			return info, partialClassError(info.Name, "declaring properties", err)
		}
	}
	if link != nil {
		relName := link.Name
		if relName == "" {
			relName = RelInstanceOf
		}
		from, to := info.Name, link.To
		if link.Inbound {
			from, to = link.To, info.Name
		}
		if err := r.CreateClassRelationship(ctx, from, to, relName); err != nil {
			return info, partialClassError(info.Name, fmt.Sprintf("linking to %q", link.To), err)
		}
	}
	return info, nil
}

// partialClassError wraps a failed later step of a composite class
// declaration. The class itself already exists at this point, so the error
// marks the partial state in its context and keeps the failed step's code
// where it has one.
func partialClassError(class, step string, cause error) error {
	code := ErrCodeSchemaViolation
	var inner *Error
	if errors.As(cause, &inner) {
		code = inner.Code
	}
	e := &Error{
		Code:    code,
		Message: fmt.Sprintf("class %q created but %s failed", class, step),
		Cause:   cause,
	}
	return e.WithContext("partial", true).WithContext("class", class)
}

// AddProperties declares properties on a class, appending them after the
// class's current highest declaration index. Returns how many were added.
func (r *SchemaRegistry) AddProperties(ctx context.Context, class string, props []PropertySpec) (int, error) {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return 0, err
	}
	if len(props) == 0 {
		return 0, nil
	}

	neighbors, err := r.store.Neighbors(ctx, info.ID, RelHasProperty, graph.Outbound, []string{LabelProperty})
	if err != nil {
		return 0, err
	}
	next := int64(0)
	for _, n := range neighbors {
		if idx, ok := intPropValue(n.RelProps[FieldIndex]); ok && idx >= next {
			next = idx + 1
		}
	}

	if err := r.attachProperties(ctx, info.ID, next, props); err != nil {
		return 0, err
	}
	r.logger.Debug("declared properties", "class", class, "count", len(props))
	return len(props), nil
}

// attachProperties creates one Property node per spec and attaches each to
// owner with HAS_PROPERTY relationships indexed from start.
func (r *SchemaRegistry) attachProperties(ctx context.Context, owner graph.NodeID, start int64, props []PropertySpec) error {
	names := make([]string, len(props))
	for i, p := range props {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return NewValidationError(fmt.Sprintf("property %d has a blank name", i))
		}
		names[i] = name
	}
	for i, p := range props {
		uri, err := r.mintSchemaURI(ctx)
		if err != nil {
			return err
		}
		nodeProps := map[string]any{
			fieldName: names[i],
			FieldURI:  uri,
		}
		if p.DType != "" {
			nodeProps[fieldDType] = p.DType
		}
		if p.Required {
			nodeProps[fieldRequired] = true
		}
		if p.System {
			nodeProps[fieldSystem] = true
		}
		_, err = r.store.CreateNodeLinked(ctx, []string{LabelSchema, LabelProperty}, nodeProps, []graph.LinkSpec{{
			Target:  owner,
			Type:    RelHasProperty,
			Inbound: true,
			Props:   map[string]any{FieldIndex: start + int64(i)},
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

// RemoveProperty detaches and deletes the named property of a class.
func (r *SchemaRegistry) RemoveProperty(ctx context.Context, class, property string) error {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return err
	}
	neighbors, err := r.store.Neighbors(ctx, info.ID, RelHasProperty, graph.Outbound, []string{LabelProperty})
	if err != nil {
		return err
	}
	var ids []graph.NodeID
	for _, n := range neighbors {
		if n.Node.GetString(fieldName) == property {
			ids = append(ids, n.Node.ID)
		}
	}
	if len(ids) == 0 {
		return NewNotFoundError(fmt.Sprintf("class %q has no property %q", class, property))
	}
	_, err = r.store.DeleteNodes(ctx, graph.NodeQuery{IDs: ids})
	if err != nil {
		return err
	}
	r.logger.Debug("removed property", "class", class, "property", property)
	return nil
}

// RenameClass changes a class's name. It is refused while data nodes of the
// class exist, because their marker fields would go stale.
func (r *SchemaRegistry) RenameClass(ctx context.Context, oldName, newName string) error {
	if err := validateSchemaName("class", newName); err != nil {
		return err
	}
	info, err := r.GetClass(ctx, oldName)
	if err != nil {
		return err
	}
	exists, err := r.ClassExists(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return NewDuplicateError(fmt.Sprintf("class %q already exists", newName))
	}
	count, err := r.store.CountNodes(ctx, graph.NodeQuery{Props: map[string]any{FieldClassName: oldName}})
	if err != nil {
		return err
	}
	if count > 0 {
		return NewSchemaViolationError(fmt.Sprintf("cannot rename class %q: %d data nodes reference it", oldName, count))
	}
	_, err = r.store.UpdateNodes(ctx, graph.NodeQuery{IDs: []graph.NodeID{info.ID}}, map[string]any{fieldName: newName}, nil)
	if err != nil {
		return err
	}
	r.logger.Debug("renamed class", "from", oldName, "to", newName)
	return nil
}

// RelOption configures CreateClassRelationship.
type RelOption func(*relOptions)

type relOptions struct {
	linkNode  bool
	linkProps []PropertySpec
}

// WithLinkNode routes the relationship through an intermediary Link node
// instead of a direct relationship between the two Class nodes.
func WithLinkNode() RelOption {
	return func(o *relOptions) { o.linkNode = true }
}

// WithLinkProperties declares properties on the relationship's Link node.
// It implies WithLinkNode.
func WithLinkProperties(props ...PropertySpec) RelOption {
	return func(o *relOptions) {
		o.linkNode = true
		o.linkProps = append(o.linkProps, props...)
	}
}

// CreateClassRelationship declares that data nodes of class from may link to
// data nodes of class to under the given relationship name. Direct
// declarations are merged, so repeating one is a no-op. Link-node
// declarations are skipped when an identical one already mediates the pair.
func (r *SchemaRegistry) CreateClassRelationship(ctx context.Context, from, to, relName string, opts ...RelOption) error {
	var o relOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(relName) == "" {
		return NewValidationError("relationship name is required")
	}
	if relName == RelInstanceOf && o.linkNode {
		return NewValidationError("INSTANCE_OF must be a direct relationship")
	}
	fromInfo, err := r.GetClass(ctx, from)
	if err != nil {
		return err
	}
	toInfo, err := r.GetClass(ctx, to)
	if err != nil {
		return err
	}

	if !o.linkNode {
		if err := r.store.MergeRelationship(ctx, fromInfo.ID, toInfo.ID, relName, nil); err != nil {
			return err
		}
		r.logger.Debug("declared class relationship", "from", from, "to", to, "rel", relName)
		return nil
	}

	mediated, err := r.linkRelExists(ctx, fromInfo.ID, toInfo.ID, relName)
	if err != nil {
		return err
	}
	if mediated {
		r.logger.Debug("class relationship already mediated", "from", from, "to", to, "rel", relName)
		return nil
	}

	uri, err := r.mintSchemaURI(ctx)
	if err != nil {
		return err
	}
	linkID, err := r.store.CreateNodeLinked(ctx, []string{LabelSchema, LabelLink}, map[string]any{
		fieldName: relName,
		FieldURI:  uri,
	}, []graph.LinkSpec{
		{Target: fromInfo.ID, Type: relName, Inbound: true},
		{Target: toInfo.ID, Type: relName},
	})
	if err != nil {
		return err
	}
	if len(o.linkProps) > 0 {
		if err := r.attachProperties(ctx, linkID, 0, o.linkProps); err != nil {
			return fmt.Errorf("link node for %q created but declaring its properties failed: %w", relName, err)
		}
	}
	r.logger.Debug("declared class relationship", "from", from, "to", to, "rel", relName, "link_node", true)
	return nil
}

// ClassRelationshipExists reports whether the schema declares relName from
// class from to class to. Four shapes count as declared, checked in order:
// a direct relationship between the two Class nodes, a direct relationship
// between any of their ancestor pairs, a Link node mediating the two
// classes, and a Link node mediating any ancestor pair. Ancestry follows
// INSTANCE_OF and includes the class itself.
func (r *SchemaRegistry) ClassRelationshipExists(ctx context.Context, from, to, relName string) (bool, error) {
	if strings.TrimSpace(relName) == "" {
		return false, NewValidationError("relationship name is required")
	}
	fromInfo, err := r.GetClass(ctx, from)
	if err != nil {
		return false, err
	}
	toInfo, err := r.GetClass(ctx, to)
	if err != nil {
		return false, err
	}

	ok, err := r.directRelExists(ctx, fromInfo.ID, toInfo.ID, relName)
	if ok || err != nil {
		return ok, err
	}

	fromIDs, err := r.selfAndAncestors(ctx, fromInfo.ID)
	if err != nil {
		return false, err
	}
	toIDs, err := r.selfAndAncestors(ctx, toInfo.ID)
	if err != nil {
		return false, err
	}
	for _, fa := range fromIDs {
		for _, ta := range toIDs {
			if fa == fromInfo.ID && ta == toInfo.ID {
				continue
			}
			ok, err := r.directRelExists(ctx, fa, ta, relName)
			if ok || err != nil {
				return ok, err
			}
		}
	}

	ok, err = r.linkRelExists(ctx, fromInfo.ID, toInfo.ID, relName)
	if ok || err != nil {
		return ok, err
	}
	for _, fa := range fromIDs {
		for _, ta := range toIDs {
			if fa == fromInfo.ID && ta == toInfo.ID {
				continue
			}
			ok, err := r.linkRelExists(ctx, fa, ta, relName)
			if ok || err != nil {
				return ok, err
			}
		}
	}
	return false, nil
}

func (r *SchemaRegistry) directRelExists(ctx context.Context, from, to graph.NodeID, relName string) (bool, error) {
	neighbors, err := r.store.Neighbors(ctx, from, relName, graph.Outbound, []string{LabelClass})
	if err != nil {
		return false, err
	}
	for _, n := range neighbors {
		if n.Node.ID == to {
			return true, nil
		}
	}
	return false, nil
}

func (r *SchemaRegistry) linkRelExists(ctx context.Context, from, to graph.NodeID, relName string) (bool, error) {
	links, err := r.store.Neighbors(ctx, from, relName, graph.Outbound, []string{LabelLink})
	if err != nil {
		return false, err
	}
	for _, link := range links {
		targets, err := r.store.Neighbors(ctx, link.Node.ID, relName, graph.Outbound, []string{LabelClass})
		if err != nil {
			return false, err
		}
		for _, t := range targets {
			if t.Node.ID == to {
				return true, nil
			}
		}
	}
	return false, nil
}

// selfAndAncestors returns the class node itself followed by its INSTANCE_OF
// ancestors in ascending distance.
func (r *SchemaRegistry) selfAndAncestors(ctx context.Context, id graph.NodeID) ([]graph.NodeID, error) {
	ids := []graph.NodeID{id}
	paths, err := r.store.Reachable(ctx, id, RelInstanceOf, graph.Outbound, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		ids = append(ids, p.Node.ID)
	}
	return ids, nil
}

// IsLinkAllowed reports whether data nodes of fromClass may link to data
// nodes of toClass under relName. When both classes are lenient any
// relationship is allowed; otherwise the schema must declare it.
func (r *SchemaRegistry) IsLinkAllowed(ctx context.Context, relName, fromClass, toClass string) (bool, error) {
	fromInfo, err := r.GetClass(ctx, fromClass)
	if err != nil {
		return false, err
	}
	toInfo, err := r.GetClass(ctx, toClass)
	if err != nil {
		return false, err
	}
	if !fromInfo.Strict && !toInfo.Strict {
		return true, nil
	}
	return r.ClassRelationshipExists(ctx, fromClass, toClass, relName)
}

// IsPropertyAllowed reports whether a data node of the class may carry the
// property. Lenient classes allow everything; strict classes allow the
// properties they or their ancestors declare.
func (r *SchemaRegistry) IsPropertyAllowed(ctx context.Context, property, class string) (bool, error) {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return false, err
	}
	if !info.Strict {
		return true, nil
	}
	declared, err := r.ClassProperties(ctx, class, PropertyLookup{IncludeAncestors: true})
	if err != nil {
		return false, err
	}
	for _, name := range declared {
		if name == property {
			return true, nil
		}
	}
	return false, nil
}

// SortOrder selects how ClassProperties orders inherited properties.
type SortOrder int

const (
	// NoSort orders all properties by declaration index alone, interleaving
	// ancestors' declarations with the class's own.
	NoSort SortOrder = iota

	// SortAsc groups properties by ancestry distance, the class's own
	// declarations first, each group ordered by declaration index.
	SortAsc

	// SortDesc groups properties by ancestry distance, the most distant
	// ancestor's declarations first.
	SortDesc
)

// PropertyLookup controls a ClassProperties call.
type PropertyLookup struct {
	// IncludeAncestors extends the lookup over INSTANCE_OF ancestors.
	IncludeAncestors bool

	// SortByPathLen orders the result by ancestry distance. Only meaningful
	// together with IncludeAncestors.
	SortByPathLen SortOrder

	// ExcludeSystem drops properties declared as system-managed.
	ExcludeSystem bool
}

type classProperty struct {
	name  string
	index int64
	depth int
}

// ClassProperties returns the property names declared for a class. A name
// declared more than once along the ancestry keeps its first position.
func (r *SchemaRegistry) ClassProperties(ctx context.Context, class string, opt PropertyLookup) ([]string, error) {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return nil, err
	}
	owners := []graph.NodeID{info.ID}
	if opt.IncludeAncestors {
		paths, err := r.store.Reachable(ctx, info.ID, RelInstanceOf, graph.Outbound, 0)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			owners = append(owners, p.Node.ID)
		}
	}

	var all []classProperty
	for depth, owner := range owners {
		neighbors, err := r.store.Neighbors(ctx, owner, RelHasProperty, graph.Outbound, []string{LabelProperty})
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if opt.ExcludeSystem && boolProp(n.Node.Props, fieldSystem) {
				continue
			}
			idx, _ := intPropValue(n.RelProps[FieldIndex])
			all = append(all, classProperty{
				name:  n.Node.GetString(fieldName),
				index: idx,
				depth: depth,
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch opt.SortByPathLen {
		case SortAsc:
			if a.depth != b.depth {
				return a.depth < b.depth
			}
			if a.index != b.index {
				return a.index < b.index
			}
		case SortDesc:
			if a.depth != b.depth {
				return a.depth > b.depth
			}
			if a.index != b.index {
				return a.index < b.index
			}
		default:
			if a.index != b.index {
				return a.index < b.index
			}
			if a.depth != b.depth {
				return a.depth < b.depth
			}
		}
		return a.name < b.name
	})

	names := make([]string, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, p := range all {
		if p.name == "" || seen[p.name] {
			continue
		}
		seen[p.name] = true
		names = append(names, p.name)
	}
	return names, nil
}

// AllowableProps filters a requested property map against the class's
// schema. Lenient classes pass everything through. For strict classes an
// undeclared property is either silently dropped (with a debug log) or an
// error, per silentlyDrop. The input map is never modified.
func (r *SchemaRegistry) AllowableProps(ctx context.Context, class string, requested map[string]any, silentlyDrop bool) (map[string]any, error) {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(requested))
	if !info.Strict {
		for k, v := range requested {
			out[k] = v
		}
		return out, nil
	}

	declared, err := r.ClassProperties(ctx, class, PropertyLookup{IncludeAncestors: true})
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(declared))
	for _, name := range declared {
		allowed[name] = true
	}

	keys := make([]string, 0, len(requested))
	for k := range requested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if allowed[k] {
			out[k] = requested[k]
			continue
		}
		if !silentlyDrop {
			return nil, NewSchemaViolationError(fmt.Sprintf("property %q is not declared for strict class %q", k, class))
		}
		r.logger.Debug("dropping undeclared property", "property", k, "class", class)
	}
	return out, nil
}

// DeleteClass removes a class and cascades over its Property nodes. With
// safeDelete the removal is refused while data nodes of the class exist.
// Link nodes attached to the class are not cascaded; the detach removes
// their relationships to it.
func (r *SchemaRegistry) DeleteClass(ctx context.Context, name string, safeDelete bool) error {
	info, err := r.GetClass(ctx, name)
	if err != nil {
		return err
	}
	if safeDelete {
		count, err := r.store.CountNodes(ctx, graph.NodeQuery{Props: map[string]any{FieldClassName: name}})
		if err != nil {
			return err
		}
		if count > 0 {
			return NewSchemaViolationError(fmt.Sprintf("cannot delete class %q: %d data nodes reference it", name, count))
		}
	}
	neighbors, err := r.store.Neighbors(ctx, info.ID, RelHasProperty, graph.Outbound, []string{LabelProperty})
	if err != nil {
		return err
	}
	if len(neighbors) > 0 {
		ids := make([]graph.NodeID, 0, len(neighbors))
		for _, n := range neighbors {
			ids = append(ids, n.Node.ID)
		}
		if _, err := r.store.DeleteNodes(ctx, graph.NodeQuery{IDs: ids}); err != nil {
			return err
		}
	}
	if _, err := r.store.DeleteNodes(ctx, graph.NodeQuery{IDs: []graph.NodeID{info.ID}}); err != nil {
		return err
	}
	r.logger.Debug("deleted class", "class", name, "properties", len(neighbors))
	return nil
}

// ClassExists reports whether a class with the given name is declared.
func (r *SchemaRegistry) ClassExists(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, NewValidationError("class name is required")
	}
	count, err := r.store.CountNodes(ctx, classQuery(name))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetClass resolves a class by name.
func (r *SchemaRegistry) GetClass(ctx context.Context, name string) (ClassInfo, error) {
	if strings.TrimSpace(name) == "" {
		return ClassInfo{}, NewValidationError("class name is required")
	}
	q := classQuery(name)
	q.Limit = 2
	nodes, err := r.store.FetchNodes(ctx, q)
	if err != nil {
		return ClassInfo{}, err
	}
	switch len(nodes) {
	case 0:
		return ClassInfo{}, NewNotFoundError(fmt.Sprintf("class %q does not exist", name))
	case 1:
		return classInfoFromNode(nodes[0]), nil
	default:
		return ClassInfo{}, NewDuplicateError(fmt.Sprintf("multiple classes named %q", name))
	}
}

// ListClasses returns the names of all declared classes, sorted.
func (r *SchemaRegistry) ListClasses(ctx context.Context) ([]string, error) {
	nodes, err := r.store.FetchNodes(ctx, graph.NodeQuery{Labels: []string{LabelClass}})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if name := n.GetString(fieldName); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// OutboundLinkMap returns the relationships data nodes of the class may
// form, as declared relationship name to target class name. Declarations
// are gathered from the class and its INSTANCE_OF ancestors; the class's
// own declaration wins when a name repeats. INSTANCE_OF itself is excluded.
func (r *SchemaRegistry) OutboundLinkMap(ctx context.Context, class string) (map[string]string, error) {
	info, err := r.GetClass(ctx, class)
	if err != nil {
		return nil, err
	}
	owners, err := r.selfAndAncestors(ctx, info.ID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, owner := range owners {
		neighbors, err := r.store.Neighbors(ctx, owner, "", graph.Outbound, nil)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if n.RelType == RelInstanceOf {
				continue
			}
			if _, seen := result[n.RelType]; seen {
				continue
			}
			switch {
			case n.Node.HasLabel(LabelClass):
				result[n.RelType] = n.Node.GetString(fieldName)
			case n.Node.HasLabel(LabelLink):
				targets, err := r.store.Neighbors(ctx, n.Node.ID, n.RelType, graph.Outbound, []string{LabelClass})
				if err != nil {
					return nil, err
				}
				if len(targets) > 0 {
					result[n.RelType] = targets[0].Node.GetString(fieldName)
				}
			}
		}
	}
	return result, nil
}

func (r *SchemaRegistry) mintSchemaURI(ctx context.Context) (string, error) {
	return r.counter.ReserveNextURI(ctx, WithNamespace(schemaNamespace), WithPrefix(schemaURIPrefix))
}

func classQuery(name string) graph.NodeQuery {
	return graph.NodeQuery{
		Labels: []string{LabelClass},
		Props:  map[string]any{fieldName: name},
	}
}

func classInfoFromNode(n graph.Node) ClassInfo {
	return ClassInfo{
		ID:          n.ID,
		Name:        n.GetString(fieldName),
		Code:        n.GetString(fieldCode),
		URI:         n.GetString(FieldURI),
		Strict:      boolProp(n.Props, fieldStrict),
		NoDataNodes: boolProp(n.Props, fieldNoDataNodes),
	}
}

func validateSchemaName(kind, name string) error {
	if name == "" {
		return NewValidationError(fmt.Sprintf("%s name is required", kind))
	}
	if strings.TrimSpace(name) != name {
		return NewValidationError(fmt.Sprintf("%s name %q has leading or trailing blanks", kind, name))
	}
	return nil
}

func boolProp(props map[string]any, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func intPropValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
