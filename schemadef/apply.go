package schemadef

import (
	"context"

	"github.com/graphmeta/neoschema"
)

// Report counts what an Apply call declared.
type Report struct {
	Classes    int
	Properties int
	Links      int
}

// Apply declares the definition through the registry in two phases: every
// class with its properties first, then every link and instance_of
// relationship. Link targets must therefore be declared in the same
// definition or exist in the schema already.
//
// Apply is a sequence of registry calls, not a transaction. A failure
// partway returns the error alongside a report counting what was already
// declared; a duplicate class name fails before the later phases run.
func Apply(ctx context.Context, reg *neoschema.SchemaRegistry, def *Definition) (Report, error) {
	var report Report
	if def == nil {
		return report, neoschema.NewValidationError("definition is required")
	}
	if err := def.Validate(); err != nil {
		return report, err
	}

	for _, c := range def.Classes {
		spec := neoschema.ClassSpec{
			Name:        c.Name,
			Code:        c.Code,
			Strict:      c.Strict,
			NoDataNodes: c.NoDataNodes,
		}
		if _, err := reg.CreateClassWithProperties(ctx, spec, propertySpecs(c.Properties), nil); err != nil {
			return report, err
		}
		report.Classes++
		report.Properties += len(c.Properties)
	}

	for _, c := range def.Classes {
		if c.InstanceOf != "" {
			if err := reg.CreateClassRelationship(ctx, c.Name, c.InstanceOf, neoschema.RelInstanceOf); err != nil {
				return report, err
			}
			report.Links++
		}
		for _, l := range c.Links {
			var opts []neoschema.RelOption
			if len(l.Properties) > 0 {
				opts = append(opts, neoschema.WithLinkProperties(propertySpecs(l.Properties)...))
			}
			if err := reg.CreateClassRelationship(ctx, c.Name, l.To, l.Name, opts...); err != nil {
				return report, err
			}
			report.Links++
			report.Properties += len(l.Properties)
		}
	}

	return report, nil
}
