package neoschema

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/graphmeta/neoschema/graph"
)

// defaultBatchSize is the record count per store call when the caller does
// not set one.
const defaultBatchSize = 10000

// BulkImporter loads tabular data into the graph in sequential batches:
// node imports one class at a time, then relationship imports joining the
// loaded classes on key columns.
type BulkImporter struct {
	mgr         *DataNodeManager
	reg         *SchemaRegistry
	logger      *slog.Logger
	reportEvery int
}

// BulkOption configures a BulkImporter.
type BulkOption func(*BulkImporter)

// WithBulkLogger sets the logger.
func WithBulkLogger(logger *slog.Logger) BulkOption {
	return func(b *BulkImporter) { b.logger = logger }
}

// WithReportFrequency sets how many batches pass between progress log
// lines. The default reports after every batch.
func WithReportFrequency(batches int) BulkOption {
	return func(b *BulkImporter) { b.reportEvery = batches }
}

// NewBulkImporter creates an importer writing through the given manager.
func NewBulkImporter(mgr *DataNodeManager, reg *SchemaRegistry, opts ...BulkOption) *BulkImporter {
	b := &BulkImporter{
		mgr:         mgr,
		reg:         reg,
		logger:      slog.Default(),
		reportEvery: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DuplicateOption selects what a primary-key collision does to the existing
// node.
type DuplicateOption string

const (
	// Merge overlays the record's fields onto the existing node, keeping
	// fields the record does not mention. The default.
	Merge DuplicateOption = "merge"

	// Replace substitutes the existing node's whole property map with the
	// record.
	Replace DuplicateOption = "replace"
)

// NodeImportOptions adjusts an ImportNodes call.
type NodeImportOptions struct {
	// Select keeps only these columns. Mutually exclusive with Drop.
	Select []string

	// Drop discards these columns.
	Drop []string

	// Rename maps column names to new names, applied after Select/Drop.
	Rename map[string]string

	// PrimaryKey switches the import from plain creation to merging on
	// this column, named as in the input (before Rename). It must survive
	// Select/Drop.
	PrimaryKey string

	// OnDuplicate selects merge or replace semantics for primary-key
	// collisions. Only meaningful with PrimaryKey.
	OnDuplicate DuplicateOption

	// DatetimeCols are coerced to time.Time values.
	DatetimeCols []string

	// IntCols are coerced to int64 values.
	IntCols []string

	// ExtraLabels are added alongside the class label.
	ExtraLabels []string

	// MaxBatchSize caps the records per store call. Defaults to 10000.
	MaxBatchSize int
}

// NodeImportResult reports what an ImportNodes call did. Affected holds the
// identity of the node each record ended up in, in record order; with a
// primary key, records hitting the same node repeat its identity.
type NodeImportResult struct {
	Created  int
	Affected []graph.NodeID
}

// ImportNodes loads every record of the table as a data node of the given
// class. All validation happens before the first write; batches then go in
// strictly sequentially, so a mid-import failure leaves the earlier batches
// behind.
//
// Records are scrubbed per batch: strings trimmed, and nil, blank-string,
// and NaN values dropped, so those fields are simply absent from the node.
func (b *BulkImporter) ImportNodes(ctx context.Context, tbl *Table, class string, opt NodeImportOptions) (NodeImportResult, error) {
	result := NodeImportResult{Affected: []graph.NodeID{}}
	if tbl == nil {
		return result, NewValidationError("table is required")
	}

	info, err := b.reg.GetClass(ctx, class)
	if err != nil {
		return result, err
	}
	if info.NoDataNodes {
		return result, NewSchemaViolationError(fmt.Sprintf("class %q does not accept data nodes", class))
	}
	if len(opt.Select) > 0 && len(opt.Drop) > 0 {
		return result, NewValidationError("select and drop are mutually exclusive")
	}
	switch opt.OnDuplicate {
	case "", Merge, Replace:
	default:
		return result, NewValidationError(fmt.Sprintf("unknown duplicate option %q", opt.OnDuplicate))
	}
	if opt.OnDuplicate != "" && opt.PrimaryKey == "" {
		return result, NewValidationError("a duplicate option requires a primary key")
	}

	work := tbl
	if len(opt.Select) > 0 {
		if work, err = work.Select(opt.Select...); err != nil {
			return result, err
		}
	}
	if len(opt.Drop) > 0 {
		if work, err = work.Drop(opt.Drop...); err != nil {
			return result, err
		}
	}
	pk := opt.PrimaryKey
	if pk != "" && !containsString(work.Columns(), pk) {
		return result, NewValidationError(fmt.Sprintf("primary key column %q is not in the import set", pk))
	}
	if len(opt.Rename) > 0 {
		if work, err = work.Rename(opt.Rename); err != nil {
			return result, err
		}
		if renamed, ok := opt.Rename[pk]; ok {
			pk = renamed
		}
	}
	if info.Strict {
		declared, err := b.reg.ClassProperties(ctx, class, PropertyLookup{IncludeAncestors: true})
		if err != nil {
			return result, err
		}
		declaredSet := make(map[string]bool, len(declared))
		for _, name := range declared {
			declaredSet[name] = true
		}
		for _, col := range work.Columns() {
			if !declaredSet[col] {
				return result, NewSchemaViolationError(fmt.Sprintf("column %q is not declared for strict class %q", col, class))
			}
		}
	}

	size := opt.MaxBatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	labels := buildLabelSet(class, opt.ExtraLabels)
	replace := opt.OnDuplicate == Replace

	batches := 0
	for start := 0; start < work.Len(); start += size {
		end := min(start+size, work.Len())
		records := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			rec, err := b.prepareRecord(work.Row(i), class, opt)
			if err != nil {
				return result, err
			}
			records = append(records, rec)
		}

		if pk == "" {
			ids, err := b.mgr.store.CreateNodes(ctx, labels, records)
			if err != nil {
				return result, err
			}
			result.Created += len(ids)
			result.Affected = append(result.Affected, ids...)
		} else {
			ids, created, err := b.mgr.store.MergeNodes(ctx, labels, pk, records, replace)
			if err != nil {
				return result, err
			}
			result.Created += created
			result.Affected = append(result.Affected, ids...)
		}

		batches++
		if b.reportEvery > 0 && batches%b.reportEvery == 0 {
			b.logger.Info("node import progress", "class", class, "records", len(result.Affected), "created", result.Created)
		}
	}

	b.logger.Info("node import complete", "class", class, "records", work.Len(), "created", result.Created)
	return result, nil
}

// prepareRecord scrubs one record and applies the column coercions, ending
// with the class marker.
func (b *BulkImporter) prepareRecord(row map[string]any, class string, opt NodeImportOptions) (map[string]any, error) {
	out := make(map[string]any, len(row)+1)
	for k, v := range row {
		if v = scrubValue(v); v != nil {
			out[k] = v
		}
	}
	for _, col := range opt.IntCols {
		v, ok := out[col]
		if !ok {
			continue
		}
		n, err := coerceInt(v)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("column %q value %v is not an integer", col, v))
		}
		out[col] = n
	}
	for _, col := range opt.DatetimeCols {
		v, ok := out[col]
		if !ok {
			continue
		}
		ts, err := coerceTime(v)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("column %q value %v is not a datetime", col, v))
		}
		out[col] = ts
	}
	out[FieldClassName] = class
	return out, nil
}

// LinkImportOptions adjusts an ImportLinks call.
type LinkImportOptions struct {
	// LinkProps names columns to store on each created relationship. Junk
	// values (nil, blank, NaN) are left off per row.
	LinkProps []string

	// MaxBatchSize caps the rows per store call. Defaults to 10000.
	MaxBatchSize int

	// SkipErrors logs batches that bound fewer relationships than rows
	// and keeps going, instead of failing the import.
	SkipErrors bool
}

// ImportLinks merges one relationship per table row, joining data nodes of
// classFrom to data nodes of classTo where their properties named by the
// two columns equal the row's values. Returns how many relationships were
// merged.
//
// A row whose endpoint values match no pair of nodes binds nothing; a batch
// where that happens fails the import with the expected and actual counts,
// unless SkipErrors is set.
func (b *BulkImporter) ImportLinks(ctx context.Context, tbl *Table, classFrom, classTo, colFrom, colTo, linkName string, opt LinkImportOptions) (int, error) {
	if tbl == nil {
		return 0, NewValidationError("table is required")
	}
	if strings.TrimSpace(linkName) == "" {
		return 0, NewValidationError("relationship name is required")
	}
	if _, err := b.reg.GetClass(ctx, classFrom); err != nil {
		return 0, err
	}
	if _, err := b.reg.GetClass(ctx, classTo); err != nil {
		return 0, err
	}
	cols := tbl.Columns()
	for _, col := range append([]string{colFrom, colTo}, opt.LinkProps...) {
		if !containsString(cols, col) {
			return 0, NewValidationError(fmt.Sprintf("column %q is not in the table", col))
		}
	}

	spec := graph.BulkLinkSpec{
		FromLabels: []string{classFrom},
		FromKey:    colFrom,
		ToLabels:   []string{classTo},
		ToKey:      colTo,
		RelType:    linkName,
	}
	size := opt.MaxBatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	total := 0
	batches := 0
	for start := 0; start < tbl.Len(); start += size {
		end := min(start+size, tbl.Len())
		rows := make([]graph.BulkLinkRow, 0, end-start)
		for i := start; i < end; i++ {
			rec := tbl.Row(i)
			row := graph.BulkLinkRow{
				From: scrubValue(rec[colFrom]),
				To:   scrubValue(rec[colTo]),
			}
			if len(opt.LinkProps) > 0 {
				props := map[string]any{}
				for _, col := range opt.LinkProps {
					if v := scrubValue(rec[col]); v != nil {
						props[col] = v
					}
				}
				if len(props) > 0 {
					row.Props = props
				}
			}
			rows = append(rows, row)
		}

		merged, _, err := b.mgr.store.MergeRelationshipsBulk(ctx, spec, rows)
		if err != nil {
			return total, err
		}
		total += merged
		if merged < len(rows) {
			if !opt.SkipErrors {
				return total, NewImportError(fmt.Sprintf("link batch bound %d of %d rows", merged, len(rows)), nil).
					WithContext("expected", len(rows)).
					WithContext("merged", merged).
					WithContext("batch_start", start)
			}
			b.logger.Warn("link batch bound fewer relationships than rows",
				"rel", linkName, "expected", len(rows), "merged", merged, "batch_start", start)
		}

		batches++
		if b.reportEvery > 0 && batches%b.reportEvery == 0 {
			b.logger.Info("link import progress", "rel", linkName, "merged", total)
		}
	}

	b.logger.Info("link import complete", "rel", linkName, "merged", total)
	return total, nil
}

// scrubValue normalizes one incoming value: strings are trimmed, and nil,
// blank strings, and NaN all collapse to nil.
func scrubValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return nil
		}
		return x
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case float32:
		if math.IsNaN(float64(x)) {
			return nil
		}
		return x
	}
	return v
}

func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not integral", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("cannot coerce %T to integer", v)
}

// The accepted datetime layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, x); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("%q matches no supported layout", x)
	}
	return time.Time{}, fmt.Errorf("cannot coerce %T to datetime", v)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
