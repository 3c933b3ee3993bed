package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Cypher rendering helpers for the bolt backend. Class names become node
// labels and users pick them freely (spaces included), so every label,
// relationship type, and property key that lands inside a pattern is
// backtick-quoted. Values always travel as query parameters.

// quoteIdent quotes an identifier for safe use in a Cypher pattern.
// Embedded backticks are doubled per the Cypher escaping rules.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// labelExpr renders ":`A`:`B`" for a label set, or "" when empty.
func labelExpr(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(":")
		b.WriteString(quoteIdent(l))
	}
	return b.String()
}

// relTypeExpr renders ":`T`" for a relationship type, or "" for any type.
func relTypeExpr(relType string) string {
	if relType == "" {
		return ""
	}
	return ":" + quoteIdent(relType)
}

// relPattern renders the relationship part of a match in the given
// direction, e.g. "-[r:`T`]->" for Outbound.
func relPattern(alias, relType string, dir Direction) string {
	inner := fmt.Sprintf("[%s%s]", alias, relTypeExpr(relType))
	switch dir {
	case Outbound:
		return "-" + inner + "->"
	case Inbound:
		return "<-" + inner + "-"
	default:
		return "-" + inner + "-"
	}
}

// varLengthPattern renders a variable-length relationship part, e.g.
// "-[:`T`*1..4]->". maxDepth <= 0 renders an unbounded upper bound.
func varLengthPattern(relType string, dir Direction, maxDepth int) string {
	bound := "*1.."
	if maxDepth > 0 {
		bound = fmt.Sprintf("*1..%d", maxDepth)
	}
	inner := fmt.Sprintf("[%s%s]", relTypeExpr(relType), bound)
	switch dir {
	case Outbound:
		return "-" + inner + "->"
	case Inbound:
		return "<-" + inner + "-"
	default:
		return "-" + inner + "-"
	}
}

// sortedKeys returns the map's keys in sorted order so rendered statements
// are deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// whereClause renders the WHERE part for a NodeQuery against the given node
// alias, adding parameter bindings to params. Returns "" when the query has
// no property or identity constraints.
func whereClause(alias string, q NodeQuery, params map[string]any) string {
	var conds []string
	for i, k := range sortedKeys(q.Props) {
		name := fmt.Sprintf("%s_p%d", alias, i)
		conds = append(conds, fmt.Sprintf("%s.%s = $%s", alias, quoteIdent(k), name))
		params[name] = q.Props[k]
	}
	if len(q.IDs) > 0 {
		name := alias + "_ids"
		conds = append(conds, fmt.Sprintf("elementId(%s) IN $%s", alias, name))
		ids := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = string(id)
		}
		params[name] = ids
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// inlinePropMap renders "{`k`: $p0, ...}" for use inside a MERGE pattern,
// adding parameter bindings to params. Returns "" for an empty map.
func inlinePropMap(prefix string, props map[string]any, params map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	parts := make([]string, 0, len(props))
	for i, k := range sortedKeys(props) {
		name := fmt.Sprintf("%s%d", prefix, i)
		parts = append(parts, fmt.Sprintf("%s: $%s", quoteIdent(k), name))
		params[name] = props[k]
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

// returnNode renders the standard node projection for an alias.
func returnNode(alias string) string {
	return fmt.Sprintf("elementId(%s) AS id, labels(%s) AS labels, properties(%s) AS props", alias, alias, alias)
}

// limitClause renders " LIMIT n" or "" for no limit.
func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
