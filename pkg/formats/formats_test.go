package formats

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/json"
)

func fixture() (core.Schema, []core.Row) {
	table := core.Table{Name: "inventory_levels", Columns: []string{"inventory_item_id", "sku", "available", "unit_cost", "tracked"}}
	rows := []core.Row{
		{"inventory_item_id": json.Number("43016616788103"), "sku": "TSHIRT-S", "available": 12, "unit_cost": 4.5, "tracked": true},
		{"inventory_item_id": json.Number("43016616788104"), "sku": nil, "available": nil, "unit_cost": 3.0, "tracked": false},
	}
	return core.InferSchema(table, rows), rows
}

func TestParse(t *testing.T) {
	for in, want := range map[string]Format{"": JSONL, "ndjson": JSONL, "CSV": CSV, "parquet": Parquet, "avro": Avro} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Parse("orc")
	assert.Error(t, err)
}

func TestEncodeJSONL(t *testing.T) {
	schema, rows := fixture()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, JSONL, schema, rows))

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]interface{}
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "TSHIRT-S", lines[0]["sku"])
	assert.Contains(t, lines[1], "sku")
	assert.Nil(t, lines[1]["sku"])
	assert.Equal(t, json.Number("43016616788104"), lines[1]["inventory_item_id"])
}

func TestEncodeCSV(t *testing.T) {
	schema, rows := fixture()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, CSV, schema, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"inventory_item_id", "sku", "available", "unit_cost", "tracked"}, records[0])
	assert.Equal(t, []string{"43016616788103", "TSHIRT-S", "12", "4.5", "true"}, records[1])
	assert.Equal(t, []string{"43016616788104", "", "", "3", "false"}, records[2])
}

func TestEncodeAvro(t *testing.T) {
	schema, rows := fixture()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Avro, schema, rows))

	reader, err := goavro.NewOCFReader(&buf)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	for reader.Scan() {
		datum, err := reader.Read()
		require.NoError(t, err)
		decoded = append(decoded, datum.(map[string]interface{}))
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, map[string]interface{}{"string": "TSHIRT-S"}, decoded[0]["sku"])
	assert.Equal(t, map[string]interface{}{"long": int64(43016616788103)}, decoded[0]["inventory_item_id"])
	assert.Nil(t, decoded[1]["available"])
}

func TestEncodeParquet(t *testing.T) {
	schema, rows := fixture()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Parquet, schema, rows))

	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer tbl.Release()

	assert.EqualValues(t, 2, tbl.NumRows())
	assert.EqualValues(t, 5, tbl.NumCols())
	assert.Equal(t, "inventory_item_id", tbl.Schema().Field(0).Name)
}

func TestEncodeEmptyTable(t *testing.T) {
	schema := core.InferSchema(core.Table{Name: "pages", Columns: []string{"id", "title"}}, nil)
	for _, f := range []Format{JSONL, CSV, Avro, Parquet} {
		var buf bytes.Buffer
		assert.NoError(t, Encode(&buf, f, schema, nil), f)
	}
}

func TestAvroName(t *testing.T) {
	assert.Equal(t, "orders__line_items", AvroName("orders__line_items"))
	assert.Equal(t, "_2fa", AvroName("2fa"))
	assert.Equal(t, "amount_spent", AvroName("amount-spent"))
}
