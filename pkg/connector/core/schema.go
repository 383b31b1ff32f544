package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ajitpratap0/shopsync/pkg/json"
)

// FieldType represents the data type of a column
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
	FieldTypeJSON   FieldType = "json"
)

// Field represents one column of an inferred schema
type Field struct {
	Name string
	Type FieldType
}

// Schema is the column layout of a table derived from its rows
type Schema struct {
	Table  string
	Fields []Field
}

// Names returns the column names in order
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// InferSchema derives column types from rows. Declared columns keep their
// order; undeclared keys found in rows are appended sorted by name. Columns
// whose values are all nil are typed as strings.
func InferSchema(table Table, rows []Row) Schema {
	seen := make(map[string]bool, len(table.Columns))
	names := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	var extra []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	schema := Schema{Table: table.Name, Fields: make([]Field, len(names))}
	for i, name := range names {
		var ft FieldType
		for _, row := range rows {
			ft = mergeType(ft, typeOf(row[name]))
		}
		if ft == "" {
			ft = FieldTypeString
		}
		schema.Fields[i] = Field{Name: name, Type: ft}
	}
	return schema
}

func typeOf(v interface{}) FieldType {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return FieldTypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return FieldTypeInt
	case float32:
		return FieldTypeFloat
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return FieldTypeInt
		}
		return FieldTypeFloat
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return FieldTypeInt
		}
		return FieldTypeFloat
	case string, time.Time:
		return FieldTypeString
	default:
		return FieldTypeJSON
	}
}

func mergeType(a, b FieldType) FieldType {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	case (a == FieldTypeInt && b == FieldTypeFloat) || (a == FieldTypeFloat && b == FieldTypeInt):
		return FieldTypeFloat
	case a == FieldTypeJSON || b == FieldTypeJSON:
		return FieldTypeJSON
	default:
		return FieldTypeString
	}
}

// Convert coerces v to the Go type destinations bind for ft: int64,
// float64, bool, or string (JSON text for nested values). nil stays nil.
func Convert(v interface{}, ft FieldType) interface{} {
	if v == nil {
		return nil
	}
	switch ft {
	case FieldTypeInt:
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n
			}
		case float64:
			return int64(x)
		case int:
			return int64(x)
		case int64:
			return x
		case int32:
			return int64(x)
		}
	case FieldTypeFloat:
		switch x := v.(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f
			}
		case float64:
			return x
		case float32:
			return float64(x)
		case int:
			return float64(x)
		case int64:
			return float64(x)
		}
	case FieldTypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return Text(v)
}

// Text renders v as a string: nested values as JSON, scalars in their
// natural form. nil renders as "".
func Text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
