package neoschema

import "github.com/graphmeta/neoschema/graph"

// Labels and relationship types of the persisted schema layout. Class names
// become node labels verbatim, so several of these are ordinary phrases
// rather than SCREAMING identifiers.
const (
	// LabelClass marks a Class node.
	LabelClass = "CLASS"

	// LabelProperty marks a Property node.
	LabelProperty = "PROPERTY"

	// LabelLink marks an intermediary node that lets a declared class
	// relationship carry its own properties.
	LabelLink = "LINK"

	// LabelSchema is the marker label every schema node carries in
	// addition to its specific label.
	LabelSchema = "SCHEMA"

	// LabelCounter marks namespace counter nodes, one per namespace.
	LabelCounter = "Schema Autoincrement"

	// LabelImport is the class of import provenance nodes.
	LabelImport = "Import Data"

	// RelHasProperty connects a Class (or Link) node to its Property
	// nodes; each relationship carries an integer "index" holding the
	// declared order.
	RelHasProperty = "HAS_PROPERTY"

	// RelInstanceOf is the inheritance relationship between Class nodes.
	// Always a direct edge, never mediated by a Link node.
	RelInstanceOf = "INSTANCE_OF"

	// RelImportedData connects an import provenance node to each root
	// data node that import created.
	RelImportedData = "imported_data"
)

// Reserved data-node fields.
const (
	// FieldClassName is the marker field on every data node holding its
	// class name. A denormalization: class membership is answered by one
	// property read instead of a traversal to the Class node. The field
	// is system-owned, invisible to property validation, and stripped
	// from reads.
	FieldClassName = "_class_name"

	// FieldURI holds a data node's external-facing identifier, minted
	// from a namespace sequence. Distinct from the store's internal
	// node identity.
	FieldURI = "uri"

	// FieldIndex is the ordering property on HAS_PROPERTY relationships.
	FieldIndex = "index"

	// DefaultNamespace is the namespace data-node URIs are minted from
	// when the caller names none.
	DefaultNamespace = "data_node"
)

// ClassSpec describes a class to create.
type ClassSpec struct {
	// Name is the unique class name; it becomes the label of the class's
	// data nodes. Must be non-empty with no leading or trailing blanks.
	Name string

	// Code is an optional handler tag for callers that dispatch on it.
	Code string

	// Strict restricts the class's data nodes to declared properties and
	// relationships. A non-strict class accepts anything.
	Strict bool

	// NoDataNodes forbids attaching data nodes to this class, for
	// abstract intermediary classes.
	NoDataNodes bool
}

// PropertySpec describes one property slot to declare on a class or link.
type PropertySpec struct {
	Name     string
	DType    string
	Required bool
	System   bool
}

// ClassInfo is a class as stored, with its node identity and schema URI.
type ClassInfo struct {
	ID          graph.NodeID
	Name        string
	Code        string
	URI         string
	Strict      bool
	NoDataNodes bool
}

// ClassLink names a relationship to declare while creating a class. An
// empty Name means INSTANCE_OF. The relationship runs from the new class
// to To, or the reverse when Inbound is set.
type ClassLink struct {
	To      string
	Name    string
	Inbound bool
}
