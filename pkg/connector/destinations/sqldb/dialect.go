package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
)

// Dialect captures what differs between the database/sql backends
type Dialect struct {
	Name   string
	Driver string
	// MaxParams bounds the placeholders in one INSERT statement
	MaxParams int
	// Schemas reports whether tables live in a named schema created on open
	Schemas bool
	types     map[core.FieldType]string
	quote     func(string) string
	columns   func(ctx context.Context, q querier, schema, table string) (*sql.Rows, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Quote quotes an identifier
func (d *Dialect) Quote(name string) string {
	return d.quote(name)
}

// Qualified returns the quoted table name, prefixed by schema when set
func (d *Dialect) Qualified(schema, table string) string {
	if schema == "" {
		return d.quote(table)
	}
	return d.quote(schema) + "." + d.quote(table)
}

// ColumnType maps an inferred field type to the dialect's column type
func (d *Dialect) ColumnType(ft core.FieldType) string {
	if t, ok := d.types[ft]; ok {
		return t
	}
	return d.types[core.FieldTypeString]
}

// FieldType maps a reported column type back to a field type
func (d *Dialect) FieldType(dbType string) core.FieldType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.HasPrefix(t, "TINYINT") || strings.Contains(t, "BOOL"):
		return core.FieldTypeBool
	case strings.Contains(t, "INT") || t == "NUMBER" || strings.HasPrefix(t, "NUMBER("):
		return core.FieldTypeInt
	case strings.Contains(t, "REAL") || strings.Contains(t, "DOUBLE") || strings.Contains(t, "FLOAT"):
		return core.FieldTypeFloat
	default:
		return core.FieldTypeString
	}
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SQLite is the modernc.org/sqlite dialect
var SQLite = &Dialect{
	Name:      "sqlite",
	Driver:    "sqlite",
	MaxParams: 32000,
	types: map[core.FieldType]string{
		core.FieldTypeInt:    "INTEGER",
		core.FieldTypeFloat:  "REAL",
		core.FieldTypeBool:   "BOOLEAN",
		core.FieldTypeString: "TEXT",
		core.FieldTypeJSON:   "TEXT",
	},
	quote: doubleQuote,
	columns: func(ctx context.Context, q querier, _, table string) (*sql.Rows, error) {
		return q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	},
}

// MySQL is the go-sql-driver/mysql dialect. The database comes from the DSN.
var MySQL = &Dialect{
	Name:      "mysql",
	Driver:    "mysql",
	MaxParams: 65000,
	types: map[core.FieldType]string{
		core.FieldTypeInt:    "BIGINT",
		core.FieldTypeFloat:  "DOUBLE",
		core.FieldTypeBool:   "BOOLEAN",
		core.FieldTypeString: "LONGTEXT",
		core.FieldTypeJSON:   "LONGTEXT",
	},
	quote: backtick,
	columns: func(ctx context.Context, q querier, _, table string) (*sql.Rows, error) {
		return q.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`, table)
	},
}

// Snowflake is the gosnowflake dialect
var Snowflake = &Dialect{
	Name:      "snowflake",
	Driver:    "snowflake",
	MaxParams: 16000,
	Schemas:   true,
	types: map[core.FieldType]string{
		core.FieldTypeInt:    "NUMBER(38,0)",
		core.FieldTypeFloat:  "FLOAT",
		core.FieldTypeBool:   "BOOLEAN",
		core.FieldTypeString: "VARCHAR",
		core.FieldTypeJSON:   "VARCHAR",
	},
	quote: doubleQuote,
	columns: func(ctx context.Context, q querier, schema, table string) (*sql.Rows, error) {
		return q.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = ? AND table_name = ?`, schema, table)
	},
}
