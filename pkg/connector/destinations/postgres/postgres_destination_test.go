package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/testutil"
)

func TestCreateTableSQL(t *testing.T) {
	schema := core.InferSchema(testutil.OrdersTable, testutil.OrderRows(1, 3))
	got := CreateTableSQL("shopify_dlt_data", schema, false)
	assert.Equal(t,
		`CREATE TABLE "shopify_dlt_data"."orders" ("id" BIGINT, "name" TEXT, "email" TEXT, "total_price" DOUBLE PRECISION, "test" BOOLEAN, "created_at" TEXT)`,
		got)
	assert.Contains(t, CreateTableSQL("s", schema, true), "CREATE TABLE IF NOT EXISTS")
}

func TestFieldTypeRoundTrip(t *testing.T) {
	tests := map[string]core.FieldType{
		"bigint":            core.FieldTypeInt,
		"double precision":  core.FieldTypeFloat,
		"boolean":           core.FieldTypeBool,
		"text":              core.FieldTypeString,
		"character varying": core.FieldTypeString,
	}
	for dataType, want := range tests {
		assert.Equal(t, want, FieldType(dataType), dataType)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"b2b_companies"`, quoteIdent("b2b_companies"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
}

func TestFactoryRequiresDSN(t *testing.T) {
	_, err := NewPostgresDestination(&config.DestinationConfig{Type: "postgres"})
	assert.Error(t, err)
}

type postgresSuite struct {
	testutil.DestinationSuite
}

func TestPostgresDestination(t *testing.T) {
	dsn := testutil.RequireEnv(t, "SHOPSYNC_TEST_POSTGRES_DSN")
	schema := "shopsync_test"

	s := &postgresSuite{}
	s.Open = func(ctx context.Context, _ string) (core.Destination, error) {
		return Open(ctx, dsn, schema)
	}
	s.Count = func(ctx context.Context, dest core.Destination, table string) (int, error) {
		var n int
		q := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{schema, table}.Sanitize())
		err := dest.(*Destination).pool.QueryRow(ctx, q).Scan(&n)
		return n, err
	}
	suite.Run(t, s)
}
