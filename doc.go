// Package neoschema enforces a class/property schema over a labeled-property
// graph and imports hierarchical and tabular data under that schema.
//
// The schema itself lives inside the graph: classes, their properties, and
// the relationships classes may form are ordinary nodes and relationships
// carrying reserved labels. The engine reads and writes them through the
// graph.Store interface, so the same code runs against Neo4j, the embedded
// badger backend, or the in-memory store.
//
// # Architecture
//
// The package splits the work across five collaborators:
//
//   - SchemaRegistry: declares and queries classes, properties, and
//     class-level relationships; answers every permission question.
//   - NamespaceCounter: mints unique URIs from named autoincrement counters
//     stored in the graph.
//   - DataNodeManager: validated CRUD for data nodes and the relationships
//     between them.
//   - TreeImporter: turns nested maps and lists (JSON-decoded shapes) into
//     subgraphs, guided by the schema.
//   - BulkImporter: batched tabular import of nodes and relationships.
//
// The graph child package holds the Store interface and its backends; the
// schemadef child package loads declarative YAML schema definitions.
//
// # Usage
//
// Declare a schema, then create data under it:
//
//	store := graph.NewMemory()
//	reg := neoschema.NewSchemaRegistry(store)
//	mgr := neoschema.NewDataNodeManager(store, reg)
//
//	ctx := context.Background()
//	_, err := reg.CreateClassWithProperties(ctx,
//	    neoschema.ClassSpec{Name: "patient", Strict: true},
//	    []neoschema.PropertySpec{{Name: "name"}, {Name: "age", DType: "int"}},
//	    nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	id, err := mgr.CreateDataNode(ctx, "patient",
//	    map[string]any{"name": "Jane", "age": 47},
//	    neoschema.CreateOptions{})
//
// A strict class accepts only its declared properties; a lenient class
// accepts anything. Relationships between data nodes must be declared
// between their classes (or ancestor classes) first:
//
//	err = reg.CreateClassRelationship(ctx, "patient", "result", "HAS_RESULT")
//	err = mgr.AddDataRelationship(ctx, patientID, resultID, "HAS_RESULT")
//
// # Schema Model
//
// Schema nodes carry the SCHEMA label plus one of:
//
//   - CLASS: a declared class, with name, uri, and strict fields
//   - PROPERTY: a declared property, attached to its owner by a
//     HAS_PROPERTY relationship carrying the declaration index
//   - LINK: an intermediary node representing a class relationship that
//     itself carries properties
//
// Classes inherit through INSTANCE_OF relationships: a class offers its own
// properties plus every ancestor's, and a relationship declared between two
// ancestor classes also permits the descendant pair. INSTANCE_OF is always a
// direct relationship, never mediated by a LINK node.
//
// Data nodes carry their class name as a label and in the reserved
// _class_name field; the field is invisible to property validation and
// stripped from reads.
//
// # URI Minting
//
// A NamespaceCounter stores one "Schema Autoincrement" node per namespace
// and reserves values with a single atomic fetch-and-add, so concurrent
// reservations never collide and never leave gaps:
//
//	counter := neoschema.NewNamespaceCounter(store)
//	uri, err := counter.ReserveNextURI(ctx,
//	    neoschema.WithNamespace("requests"),
//	    neoschema.WithPrefix("req-"))
//
// Sequences start at 1. The default namespace is "data_node".
//
// # Importing
//
// TreeImporter walks nested data bottom-up, creating a node per dict level
// the schema recognizes and dropping undeclared keys silently. Every import
// first creates an "Import Data" metadata node recording the source and
// date, then links it to each created root with an imported_data
// relationship:
//
//	imp := neoschema.NewTreeImporter(mgr, reg)
//	roots, err := imp.ImportTreeJSON(ctx, file, "patient", "intake.json")
//
// BulkImporter loads a Table (records or CSV) class by class, optionally
// merging on a primary-key column, then joins the loaded classes with
// ImportLinks. Batches run strictly sequentially; a failure partway leaves
// earlier batches in place.
//
// # Error Handling
//
// Every failure is an *Error with a code, matchable by code through
// errors.Is:
//
//	if errors.Is(err, &neoschema.Error{Code: neoschema.ErrCodeSchemaViolation}) {
//	    // the schema refused the operation
//	}
//
// Codes: SCHEMA_VIOLATION, DUPLICATE_NAME, NOT_FOUND, REFERENCE_FAILED,
// VALIDATION_FAILED, IMPORT_FAILED. Store-level failures carry the graph
// package's own error codes and pass through unwrapped.
//
// # Concurrency
//
// The engine takes no locks of its own; the operations that must be atomic
// (counter advancement, merge existence checks, node-plus-links creation)
// are each a single Store call, and every Store implementation guarantees
// them. Composite schema declarations such as CreateClassWithProperties run
// as separate store calls and document their partial-failure behavior.
// SchemaCache instances memoize schema reads for one import call and must
// not be shared across goroutines.
package neoschema
