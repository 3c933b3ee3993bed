// Package schemadef loads declarative schema definitions from YAML and
// applies them through a SchemaRegistry.
//
// A definition file declares classes, their properties, their ancestry, and
// the relationships between them:
//
//	version: "1"
//	classes:
//	  - name: patient
//	    strict: true
//	    properties:
//	      - name: age
//	        dtype: int
//	      - name: balance
//	    links:
//	      - name: HAS_RESULT
//	        to: result
//	  - name: result
//	    strict: true
//	    properties: [ { name: value } ]
//
// Apply declares every class before any link, so classes may reference each
// other regardless of their order in the file.
package schemadef

import (
	"fmt"
	"strings"

	"github.com/graphmeta/neoschema"
)

// Definition is one parsed schema definition document.
type Definition struct {
	Version string     `yaml:"version"`
	Classes []ClassDef `yaml:"classes"`
}

// ClassDef declares one class.
type ClassDef struct {
	Name        string        `yaml:"name"`
	Code        string        `yaml:"code,omitempty"`
	Strict      bool          `yaml:"strict"`
	NoDataNodes bool          `yaml:"no_datanodes,omitempty"`
	InstanceOf  string        `yaml:"instance_of,omitempty"` // parent class name
	Properties  []PropertyDef `yaml:"properties,omitempty"`
	Links       []LinkDef     `yaml:"links,omitempty"`
}

// PropertyDef declares one property of a class or link.
type PropertyDef struct {
	Name     string `yaml:"name"`
	DType    string `yaml:"dtype,omitempty"`
	Required bool   `yaml:"required,omitempty"`
	System   bool   `yaml:"system,omitempty"`
}

// LinkDef declares one outbound relationship from the class it appears
// under. Properties, when present, make the relationship a Link node
// carrying them.
type LinkDef struct {
	Name       string        `yaml:"name"`
	To         string        `yaml:"to"`
	Properties []PropertyDef `yaml:"properties,omitempty"`
}

// Validate checks the definition for problems detectable without a store:
// blank or duplicated class names, blank property names, and malformed
// links. Every message names the offending class.
func (d *Definition) Validate() error {
	seen := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		name := strings.TrimSpace(c.Name)
		if name == "" || name != c.Name {
			return neoschema.NewValidationError(fmt.Sprintf("class name %q must be non-blank and trimmed", c.Name))
		}
		if seen[name] {
			return neoschema.NewDuplicateError(fmt.Sprintf("class %q is declared twice", name))
		}
		seen[name] = true

		for _, p := range c.Properties {
			if strings.TrimSpace(p.Name) == "" {
				return neoschema.NewValidationError(fmt.Sprintf("class %q declares a property with a blank name", name))
			}
		}
		if c.InstanceOf != "" && strings.TrimSpace(c.InstanceOf) == "" {
			return neoschema.NewValidationError(fmt.Sprintf("class %q has a blank instance_of", name))
		}
		for _, l := range c.Links {
			if strings.TrimSpace(l.Name) == "" {
				return neoschema.NewValidationError(fmt.Sprintf("class %q declares a link with a blank name", name))
			}
			if strings.TrimSpace(l.To) == "" {
				return neoschema.NewValidationError(fmt.Sprintf("link %q of class %q has no target", l.Name, name))
			}
			for _, p := range l.Properties {
				if strings.TrimSpace(p.Name) == "" {
					return neoschema.NewValidationError(fmt.Sprintf("link %q of class %q declares a property with a blank name", l.Name, name))
				}
			}
		}
	}
	return nil
}

func (p PropertyDef) spec() neoschema.PropertySpec {
	return neoschema.PropertySpec{
		Name:     p.Name,
		DType:    p.DType,
		Required: p.Required,
		System:   p.System,
	}
}

func propertySpecs(defs []PropertyDef) []neoschema.PropertySpec {
	if len(defs) == 0 {
		return nil
	}
	specs := make([]neoschema.PropertySpec, len(defs))
	for i, d := range defs {
		specs[i] = d.spec()
	}
	return specs
}
