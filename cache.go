package neoschema

import "context"

// SchemaCache memoizes schema lookups against a registry: class attributes,
// the full inherited property list, and the outbound link map, each keyed by
// class name.
//
// A cache is built for one import run and discarded afterwards. It is not
// safe for concurrent use and is never shared between imports; concurrent
// imports each build their own, so a half-populated cache can never leak
// across runs. Cached values are returned by reference and must not be
// modified.
type SchemaCache struct {
	reg     *SchemaRegistry
	classes map[string]ClassInfo
	props   map[string][]string
	links   map[string]map[string]string
}

// NewSchemaCache creates an empty cache over the registry.
func NewSchemaCache(reg *SchemaRegistry) *SchemaCache {
	return &SchemaCache{
		reg:     reg,
		classes: make(map[string]ClassInfo),
		props:   make(map[string][]string),
		links:   make(map[string]map[string]string),
	}
}

// Class resolves a class by name, hitting the registry once per name.
func (c *SchemaCache) Class(ctx context.Context, name string) (ClassInfo, error) {
	if info, ok := c.classes[name]; ok {
		return info, nil
	}
	info, err := c.reg.GetClass(ctx, name)
	if err != nil {
		return ClassInfo{}, err
	}
	c.classes[name] = info
	return info, nil
}

// InheritedProperties returns the class's declared properties including its
// INSTANCE_OF ancestors', own declarations first.
func (c *SchemaCache) InheritedProperties(ctx context.Context, name string) ([]string, error) {
	if props, ok := c.props[name]; ok {
		return props, nil
	}
	props, err := c.reg.ClassProperties(ctx, name, PropertyLookup{
		IncludeAncestors: true,
		SortByPathLen:    SortAsc,
	})
	if err != nil {
		return nil, err
	}
	c.props[name] = props
	return props, nil
}

// OutboundLinks returns the class's declared outbound relationships as
// relationship name to target class name.
func (c *SchemaCache) OutboundLinks(ctx context.Context, name string) (map[string]string, error) {
	if links, ok := c.links[name]; ok {
		return links, nil
	}
	links, err := c.reg.OutboundLinkMap(ctx, name)
	if err != nil {
		return nil, err
	}
	c.links[name] = links
	return links, nil
}
