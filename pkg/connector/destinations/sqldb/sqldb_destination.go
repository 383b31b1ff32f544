// Package sqldb lands tables through database/sql. One implementation
// serves SQLite, MySQL and Snowflake; a Dialect holds the differences.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// DefaultBatchSize is the number of rows per INSERT statement
const DefaultBatchSize = 500

// Destination writes tables with plain SQL
type Destination struct {
	db        *sql.DB
	dialect   *Dialect
	schema    string
	batchSize int
	logger    *zap.Logger
}

// Open connects with the dialect's driver
func Open(ctx context.Context, dialect *Dialect, dsn, schema string, batchSize int) (*Destination, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to open %s", dialect.Name))
	}
	if dialect == SQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to connect to %s", dialect.Name))
	}
	if !dialect.Schemas {
		schema = ""
	}
	if schema != "" {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+dialect.Quote(schema)); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create schema %s", schema))
		}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Destination{
		db:        db,
		dialect:   dialect,
		schema:    schema,
		batchSize: batchSize,
		logger:    logger.Get().With(zap.String("destination", dialect.Name)),
	}, nil
}

// OpenSQLite opens (or creates) a SQLite database file
func OpenSQLite(ctx context.Context, path string, batchSize int) (*Destination, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create sqlite directory")
	}
	return Open(ctx, SQLite, path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", "", batchSize)
}

func factory(dialect *Dialect) func(cfg *config.DestinationConfig) (core.Destination, error) {
	return func(cfg *config.DestinationConfig) (core.Destination, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if dialect == SQLite {
			path := cfg.Path
			if path == "" {
				path = "shopsync.db"
			} else if filepath.Ext(path) == "" {
				path = filepath.Join(path, "shopsync.db")
			}
			return OpenSQLite(ctx, path, cfg.BatchSize)
		}
		if cfg.DSN == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "%s destination requires destination.dsn", dialect.Name)
		}
		return Open(ctx, dialect, cfg.DSN, cfg.Schema, cfg.BatchSize)
	}
}

// Name returns the dialect name
func (d *Destination) Name() string { return d.dialect.Name }

// DB exposes the connection for inspection
func (d *Destination) DB() *sql.DB { return d.db }

// Submit writes rows to table. Replace drops and recreates the table inside
// one transaction where the backend supports transactional DDL.
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, d.dialect.Name+" destination")
	}
	schema := core.InferSchema(table, rows)
	name := d.dialect.Qualified(d.schema, table.Name)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if mode == core.WriteReplace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to drop %s", table.Name))
		}
		if _, err := tx.ExecContext(ctx, d.CreateTableSQL(schema, false)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", table.Name))
		}
	} else {
		if _, err := tx.ExecContext(ctx, d.CreateTableSQL(schema, true)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", table.Name))
		}
		if schema, err = d.reconcile(ctx, tx, schema); err != nil {
			return err
		}
	}

	if err := d.insert(ctx, tx, name, schema, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to commit %s", table.Name))
	}
	d.logger.Debug("table submitted",
		zap.String("table", table.Name),
		zap.String("mode", string(mode)),
		zap.Int("rows", len(rows)))
	return nil
}

func (d *Destination) insert(ctx context.Context, tx *sql.Tx, name string, schema core.Schema, rows []core.Row) error {
	if len(rows) == 0 || len(schema.Fields) == 0 {
		return nil
	}
	batch := d.batchSize
	if limit := d.dialect.MaxParams / len(schema.Fields); limit < batch {
		batch = limit
	}
	if batch < 1 {
		batch = 1
	}

	columns := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		columns[i] = d.dialect.Quote(f.Name)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", name, strings.Join(columns, ", "))

	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(tuple)
			for _, f := range schema.Fields {
				args = append(args, core.Convert(row[f.Name], f.Type))
			}
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to insert rows %d-%d into %s", start, end, schema.Table))
		}
	}
	return nil
}

// reconcile adds missing columns and types the schema as stored
func (d *Destination) reconcile(ctx context.Context, tx *sql.Tx, schema core.Schema) (core.Schema, error) {
	rows, err := d.dialect.columns(ctx, tx, d.schema, schema.Table)
	if err != nil {
		return schema, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to read columns of %s", schema.Table))
	}
	existing := map[string]string{}
	for rows.Next() {
		var name, dbType string
		if err := rows.Scan(&name, &dbType); err != nil {
			rows.Close()
			return schema, errors.Wrap(err, errors.ErrorTypeDestination, "failed to scan column")
		}
		existing[name] = dbType
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return schema, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read columns")
	}

	out := core.Schema{Table: schema.Table, Fields: make([]core.Field, len(schema.Fields))}
	for i, f := range schema.Fields {
		dbType, ok := existing[f.Name]
		if !ok {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				d.dialect.Qualified(d.schema, schema.Table), d.dialect.Quote(f.Name), d.dialect.ColumnType(f.Type))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return schema, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to add column %s", f.Name))
			}
			out.Fields[i] = f
			continue
		}
		out.Fields[i] = core.Field{Name: f.Name, Type: d.dialect.FieldType(dbType)}
	}
	return out, nil
}

// CreateTableSQL renders the CREATE TABLE statement for schema
func (d *Destination) CreateTableSQL(schema core.Schema, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.dialect.Qualified(d.schema, schema.Table))
	b.WriteString(" (")
	for i, f := range schema.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.dialect.Quote(f.Name))
		b.WriteByte(' ')
		b.WriteString(d.dialect.ColumnType(f.Type))
	}
	b.WriteString(")")
	return b.String()
}

// Close closes the connection pool
func (d *Destination) Close(context.Context) error {
	return d.db.Close()
}
