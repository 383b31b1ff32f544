// Package postgres lands tables in PostgreSQL with COPY.
//
// Replace runs in one transaction: drop, create with inferred column types,
// copy. Readers see either the old or the new table, never a partial one.
// Append creates the table when missing, adds new columns and copies.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// DefaultSchema is the schema tables land in when none is configured
const DefaultSchema = config.DefaultSchema

// Destination writes to one PostgreSQL schema
type Destination struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

// NewPostgresDestination is the registry factory
func NewPostgresDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres destination requires destination.dsn")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return Open(ctx, cfg.DSN, cfg.Schema)
}

// Open connects and ensures the schema exists
func Open(ctx context.Context, dsn, schema string) (*Destination, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to connect to postgres")
	}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create schema %s", schema))
	}

	return &Destination{
		pool:   pool,
		schema: schema,
		logger: logger.Get().With(zap.String("destination", "postgres"), zap.String("schema", schema)),
	}, nil
}

// Name returns "postgres"
func (d *Destination) Name() string { return "postgres" }

// Submit writes rows to table
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "postgres destination")
	}
	schema := core.InferSchema(table, rows)

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := pgx.Identifier{d.schema, table.Name}
	if mode == core.WriteReplace {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to drop %s", table.Name))
		}
		if _, err := tx.Exec(ctx, CreateTableSQL(d.schema, schema, false)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", table.Name))
		}
	} else {
		if _, err := tx.Exec(ctx, CreateTableSQL(d.schema, schema, true)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", table.Name))
		}
		if schema, err = d.reconcile(ctx, tx, schema); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, ident, schema.Names(), pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			values := make([]any, len(schema.Fields))
			for j, f := range schema.Fields {
				values[j] = core.Convert(rows[i][f.Name], f.Type)
			}
			return values, nil
		}))
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to copy rows into %s", table.Name))
		}
		if int(n) != len(rows) {
			return errors.Newf(errors.ErrorTypeDestination, "copied %d of %d rows into %s", n, len(rows), table.Name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to commit %s", table.Name))
	}
	d.logger.Debug("table submitted",
		zap.String("table", table.Name),
		zap.String("mode", string(mode)),
		zap.Int("rows", len(rows)))
	return nil
}

// reconcile adds columns missing from an existing table and returns the
// schema typed as the table actually stores it
func (d *Destination) reconcile(ctx context.Context, tx pgx.Tx, schema core.Schema) (core.Schema, error) {
	existing := map[string]string{}
	rows, err := tx.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		d.schema, schema.Table)
	if err != nil {
		return schema, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to read columns of %s", schema.Table))
	}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			rows.Close()
			return schema, errors.Wrap(err, errors.ErrorTypeDestination, "failed to scan column")
		}
		existing[name] = dataType
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return schema, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read columns")
	}

	out := core.Schema{Table: schema.Table, Fields: make([]core.Field, len(schema.Fields))}
	ident := pgx.Identifier{d.schema, schema.Table}.Sanitize()
	for i, f := range schema.Fields {
		dataType, ok := existing[f.Name]
		if !ok {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", ident, quoteIdent(f.Name), ColumnType(f.Type))
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return schema, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to add column %s", f.Name))
			}
			out.Fields[i] = f
			continue
		}
		out.Fields[i] = core.Field{Name: f.Name, Type: FieldType(dataType)}
	}
	return out, nil
}

// Close closes the pool
func (d *Destination) Close(context.Context) error {
	d.pool.Close()
	return nil
}

// ColumnType maps an inferred field type to a PostgreSQL type. Nested
// values are stored as JSON text.
func ColumnType(ft core.FieldType) string {
	switch ft {
	case core.FieldTypeInt:
		return "BIGINT"
	case core.FieldTypeFloat:
		return "DOUBLE PRECISION"
	case core.FieldTypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// FieldType maps an information_schema data_type back to a field type
func FieldType(dataType string) core.FieldType {
	switch strings.ToLower(dataType) {
	case "bigint", "integer", "smallint":
		return core.FieldTypeInt
	case "double precision", "real", "numeric":
		return core.FieldTypeFloat
	case "boolean":
		return core.FieldTypeBool
	default:
		return core.FieldTypeString
	}
}

// CreateTableSQL renders the CREATE TABLE statement for schema
func CreateTableSQL(dbSchema string, schema core.Schema, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(pgx.Identifier{dbSchema, schema.Table}.Sanitize())
	b.WriteString(" (")
	for i, f := range schema.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(f.Name))
		b.WriteByte(' ')
		b.WriteString(ColumnType(f.Type))
	}
	b.WriteString(")")
	return b.String()
}

func quoteIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}
