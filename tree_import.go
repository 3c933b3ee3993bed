package neoschema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/graphmeta/neoschema/graph"
)

// Import metadata node fields.
const (
	fieldSource = "source"
	fieldDate   = "date"
)

// fieldValue is the property a scalar list element is wrapped under before
// recursion, as {"value": v}.
const fieldValue = "value"

// TreeImporter turns nested map/list structures into subgraphs, guided by
// the schema: map keys become node properties when the class declares them
// and relationships when the class declares an outbound link of that name.
// Everything else is silently skipped, so one importer can be fed raw
// documents and keeps only what the schema describes.
//
// Children are materialized before their parent (postorder), because the
// parent's creation must already know the identities it links to.
type TreeImporter struct {
	mgr     *DataNodeManager
	reg     *SchemaRegistry
	logger  *slog.Logger
	counter *NamespaceCounter
	uriNS   string
}

// TreeOption configures a TreeImporter.
type TreeOption func(*TreeImporter)

// WithTreeLogger sets the logger.
func WithTreeLogger(logger *slog.Logger) TreeOption {
	return func(t *TreeImporter) { t.logger = logger }
}

// WithURIs makes the importer mint a URI from the given namespace for every
// node it creates.
func WithURIs(namespace string) TreeOption {
	return func(t *TreeImporter) { t.uriNS = namespace }
}

// NewTreeImporter creates an importer writing through the given manager.
func NewTreeImporter(mgr *DataNodeManager, reg *SchemaRegistry, opts ...TreeOption) *TreeImporter {
	t := &TreeImporter{
		mgr:     mgr,
		reg:     reg,
		logger:  slog.Default(),
		counter: NewNamespaceCounter(mgr.store),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ImportTree imports a nested structure as a subgraph rooted in the given
// class and returns the identities of the created roots. data must be a
// map[string]any or a []any, the shapes encoding/json produces; a top-level
// list makes one root per element.
//
// A metadata node labeled "Import Data" is created before anything else,
// recording source and import date, and is linked to every created root via
// imported_data. It stays behind even when the import itself fails, so
// every attempt leaves a provenance record.
//
// Nil values are always skipped. Branches that match nothing in the schema
// produce no nodes. Each call builds its own schema cache.
func (t *TreeImporter) ImportTree(ctx context.Context, data any, class, source string) ([]graph.NodeID, error) {
	meta, err := t.createImportNode(ctx, source)
	if err != nil {
		return nil, err
	}

	cache := NewSchemaCache(t.reg)
	roots := []graph.NodeID{}
	switch v := data.(type) {
	case map[string]any:
		id, err := t.importDict(ctx, cache, v, class)
		if err != nil {
			return nil, err
		}
		if id != "" {
			roots = append(roots, id)
		}
	case []any:
		roots, err = t.importList(ctx, cache, v, class)
		if err != nil {
			return nil, err
		}
	default:
		return nil, NewValidationError(fmt.Sprintf("tree import needs a map or a list, got %T", data))
	}

	for _, root := range roots {
		if err := t.mgr.store.CreateRelationship(ctx, meta, root, RelImportedData, nil); err != nil {
			return nil, err
		}
	}
	t.logger.Info("tree import complete", "class", class, "roots", len(roots), "source", source)
	return roots, nil
}

// ImportTreeJSON decodes JSON from r and imports it with ImportTree.
func (t *TreeImporter) ImportTreeJSON(ctx context.Context, r io.Reader, class, source string) ([]graph.NodeID, error) {
	var data any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, NewImportError("decoding json input", err)
	}
	return t.ImportTree(ctx, data, class, source)
}

// createImportNode creates the provenance node, declaring the "Import Data"
// class on first use.
func (t *TreeImporter) createImportNode(ctx context.Context, source string) (graph.NodeID, error) {
	exists, err := t.reg.ClassExists(ctx, LabelImport)
	if err != nil {
		return "", err
	}
	if !exists {
		// A concurrent import may have just declared it.
		if _, err := t.reg.CreateClass(ctx, ClassSpec{Name: LabelImport}); err != nil && !errors.Is(err, &Error{Code: ErrCodeDuplicateName}) {
			return "", err
		}
	}
	return t.mgr.CreateDataNode(ctx, LabelImport, map[string]any{
		fieldSource: source,
		fieldDate:   time.Now(),
	}, CreateOptions{})
}

type pendingLink struct {
	name  string
	child graph.NodeID
}

// importDict materializes one dict level as a node of the given class. It
// returns the empty identity, without error, when the level contributes
// neither properties nor children.
func (t *TreeImporter) importDict(ctx context.Context, cache *SchemaCache, data map[string]any, class string) (graph.NodeID, error) {
	info, err := cache.Class(ctx, class)
	if err != nil {
		return "", err
	}
	if info.NoDataNodes {
		return "", NewSchemaViolationError(fmt.Sprintf("class %q does not accept data nodes", class))
	}
	declared, err := cache.InheritedProperties(ctx, class)
	if err != nil {
		return "", err
	}
	declaredSet := make(map[string]bool, len(declared))
	for _, name := range declared {
		declaredSet[name] = true
	}
	links, err := cache.OutboundLinks(ctx, class)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := map[string]any{}
	var pending []pendingLink
	for _, key := range keys {
		value := data[key]
		if value == nil {
			t.logger.Debug("skipping nil value", "key", key, "class", class)
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			target, ok := links[key]
			if !ok {
				t.logger.Debug("skipping undeclared branch", "key", key, "class", class)
				continue
			}
			child, err := t.importDict(ctx, cache, v, target)
			if err != nil {
				return "", err
			}
			if child != "" {
				pending = append(pending, pendingLink{name: key, child: child})
			}
		case []any:
			target, ok := links[key]
			if !ok {
				t.logger.Debug("skipping undeclared branch", "key", key, "class", class)
				continue
			}
			children, err := t.importList(ctx, cache, v, target)
			if err != nil {
				return "", err
			}
			for _, child := range children {
				pending = append(pending, pendingLink{name: key, child: child})
			}
		default:
			if !declaredSet[key] {
				t.logger.Debug("skipping undeclared property", "key", key, "class", class)
				continue
			}
			props[key] = value
		}
	}

	if len(props) == 0 && len(pending) == 0 {
		t.logger.Debug("branch produced no node", "class", class)
		return "", nil
	}

	uri := ""
	if t.uriNS != "" {
		uri, err = t.counter.ReserveNextURI(ctx, WithNamespace(t.uriNS))
		if err != nil {
			return "", err
		}
	}
	dataLinks := make([]DataLink, 0, len(pending))
	for _, p := range pending {
		dataLinks = append(dataLinks, DataLink{Target: p.child, Name: p.name})
	}
	return t.mgr.createNodeRaw(ctx, class, nil, props, uri, dataLinks)
}

// importList materializes list elements as nodes of the given class. Dicts
// recurse directly, nested lists are flattened into the same class, scalars
// are wrapped as {"value": v} first, and nils are skipped.
func (t *TreeImporter) importList(ctx context.Context, cache *SchemaCache, items []any, class string) ([]graph.NodeID, error) {
	ids := []graph.NodeID{}
	for _, item := range items {
		if item == nil {
			t.logger.Debug("skipping nil list element", "class", class)
			continue
		}
		switch v := item.(type) {
		case map[string]any:
			id, err := t.importDict(ctx, cache, v, class)
			if err != nil {
				return nil, err
			}
			if id != "" {
				ids = append(ids, id)
			}
		case []any:
			sub, err := t.importList(ctx, cache, v, class)
			if err != nil {
				return nil, err
			}
			ids = append(ids, sub...)
		default:
			id, err := t.importDict(ctx, cache, map[string]any{fieldValue: v}, class)
			if err != nil {
				return nil, err
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
