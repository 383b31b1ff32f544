package shopify

import (
	"github.com/ohler55/ojg/jp"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
)

// Origin selects what a column path is evaluated against
type Origin int

const (
	// FromElement reads from the element selected by the rule's Each path
	FromElement Origin = iota
	// FromParent reads from the node itself, for synthetic foreign keys
	FromParent
)

// Column maps a JSONPath to a destination column
type Column struct {
	Name string
	Path jp.Expr
	From Origin
}

// TableRule flattens one node into rows of one table
type TableRule struct {
	Name string
	// Each selects the elements that become rows. nil means the node itself
	// (1:1); a path to an optional object gives zero-or-one rows; a
	// wildcard path gives zero-or-more.
	Each    jp.Expr
	Columns []Column
}

// Col declares a column read from the element
func Col(name, path string) Column {
	return Column{Name: name, Path: jp.MustParseString(path)}
}

// ParentCol declares a column read from the parent node
func ParentCol(name, path string) Column {
	return Column{Name: name, Path: jp.MustParseString(path), From: FromParent}
}

// Rule declares a table rule. each may be empty.
func Rule(table, each string, columns ...Column) TableRule {
	r := TableRule{Name: table, Columns: columns}
	if each != "" {
		r.Each = jp.MustParseString(each)
	}
	return r
}

// Table returns the destination table with its declared column order
func (r TableRule) Table() core.Table {
	cols := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		cols[i] = c.Name
	}
	return core.Table{Name: r.Name, Columns: cols}
}

// Flatten maps node to rows for rule. Missing fields, including fields
// under absent nested objects, become explicit nil values. Nil elements
// selected by Each produce no row.
func Flatten(node Node, rule TableRule) []core.Row {
	parent := map[string]interface{}(node)

	var elements []interface{}
	if rule.Each == nil {
		elements = []interface{}{parent}
	} else {
		elements = rule.Each.Get(parent)
	}

	rows := make([]core.Row, 0, len(elements))
	for _, el := range elements {
		if el == nil {
			continue
		}
		row := make(core.Row, len(rule.Columns))
		for _, col := range rule.Columns {
			target := el
			if col.From == FromParent {
				target = parent
			}
			row[col.Name] = col.Path.First(target)
		}
		rows = append(rows, row)
	}
	return rows
}
