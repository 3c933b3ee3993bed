package neoschema

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/graphmeta/neoschema/graph"
)

// Counter node fields.
const (
	fieldNamespace = "namespace"
	fieldNextCount = "next_count"
	fieldPrefix    = "prefix"
	fieldSuffix    = "suffix"
)

// NamespaceCounter mints monotonically increasing values from named
// sequences, persisted as one counter node per namespace. Every advancement
// is a single atomic store operation, so concurrent callers never receive
// overlapping values.
type NamespaceCounter struct {
	store graph.Store
}

// NewNamespaceCounter creates a counter over the given store.
func NewNamespaceCounter(store graph.Store) *NamespaceCounter {
	return &NamespaceCounter{store: store}
}

// CreateNamespace sets up a new namespace with optional stored prefix and
// suffix. It fails if the namespace already exists.
func (c *NamespaceCounter) CreateNamespace(ctx context.Context, name, prefix, suffix string) error {
	if err := validateNamespaceName(name); err != nil {
		return err
	}
	id, created, err := c.store.MergeNode(ctx, []string{LabelCounter}, map[string]any{fieldNamespace: name})
	if err != nil {
		return err
	}
	if !created {
		return NewDuplicateError(fmt.Sprintf("namespace %q already exists", name))
	}
	set := map[string]any{fieldNextCount: int64(1)}
	if prefix != "" {
		set[fieldPrefix] = prefix
	}
	if suffix != "" {
		set[fieldSuffix] = suffix
	}
	_, err = c.store.UpdateNodes(ctx, graph.NodeQuery{IDs: []graph.NodeID{id}}, set, nil)
	return err
}

// NamespaceExists reports whether the namespace has been created.
func (c *NamespaceCounter) NamespaceExists(ctx context.Context, name string) (bool, error) {
	if err := validateNamespaceName(name); err != nil {
		return false, err
	}
	count, err := c.store.CountNodes(ctx, counterQuery(name))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Advance atomically reserves a block of advance values from the namespace's
// sequence and returns the first value of the block together with the
// namespace's stored prefix and suffix. The sequence starts at 1.
func (c *NamespaceCounter) Advance(ctx context.Context, namespace string, advance int64) (int64, string, string, error) {
	if err := validateNamespaceName(namespace); err != nil {
		return 0, "", "", err
	}
	if advance < 1 {
		return 0, "", "", NewValidationError(fmt.Sprintf("advance must be at least 1, got %d", advance))
	}
	first, props, err := c.store.FetchAndAdd(ctx, counterQuery(namespace), fieldNextCount, advance, 1)
	if err != nil {
		if errors.Is(err, &graph.Error{Code: graph.ErrCodeNodeNotFound}) {
			return 0, "", "", NewReferenceError(fmt.Sprintf("namespace %q does not exist", namespace), err)
		}
		return 0, "", "", err
	}
	return first, stringProp(props, fieldPrefix), stringProp(props, fieldSuffix), nil
}

// URIOption adjusts a single ReserveNextURI call.
type URIOption func(*uriOptions)

type uriOptions struct {
	namespace string
	prefix    *string
	suffix    *string
}

// WithNamespace selects the namespace to reserve from. The default is
// DefaultNamespace.
func WithNamespace(name string) URIOption {
	return func(o *uriOptions) { o.namespace = name }
}

// WithPrefix overrides the namespace's stored prefix for this call only.
func WithPrefix(prefix string) URIOption {
	return func(o *uriOptions) { o.prefix = &prefix }
}

// WithSuffix overrides the namespace's stored suffix for this call only.
func WithSuffix(suffix string) URIOption {
	return func(o *uriOptions) { o.suffix = &suffix }
}

// ReserveNextURI reserves the next value of the namespace's sequence and
// returns it formatted as "{prefix}{value}{suffix}". The namespace is
// created on first use if absent; creation is a store-level merge, so
// concurrent first users end up sharing one counter.
func (c *NamespaceCounter) ReserveNextURI(ctx context.Context, opts ...URIOption) (string, error) {
	o := uriOptions{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}

	value, prefix, suffix, err := c.Advance(ctx, o.namespace, 1)
	if errors.Is(err, &Error{Code: ErrCodeReferenceFailed}) {
		if _, _, merr := c.store.MergeNode(ctx, []string{LabelCounter}, map[string]any{fieldNamespace: o.namespace}); merr != nil {
			return "", merr
		}
		value, prefix, suffix, err = c.Advance(ctx, o.namespace, 1)
	}
	if err != nil {
		return "", err
	}

	if o.prefix != nil {
		prefix = *o.prefix
	}
	if o.suffix != nil {
		suffix = *o.suffix
	}
	return prefix + strconv.FormatInt(value, 10) + suffix, nil
}

func counterQuery(namespace string) graph.NodeQuery {
	return graph.NodeQuery{
		Labels: []string{LabelCounter},
		Props:  map[string]any{fieldNamespace: namespace},
	}
}

func validateNamespaceName(name string) error {
	if name == "" {
		return NewValidationError("namespace name is required")
	}
	if strings.TrimSpace(name) != name {
		return NewValidationError(fmt.Sprintf("namespace name %q has leading or trailing blanks", name))
	}
	return nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
