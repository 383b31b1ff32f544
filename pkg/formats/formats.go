// Package formats encodes one table's rows into a file body for the object
// storage and file destinations.
//
// Supported formats:
//   - jsonl: newline-delimited JSON, loadable by BigQuery and Snowflake
//   - csv: header row plus one line per row, NULL as an empty field
//   - avro: object container file with nullable fields
//   - parquet: single file with snappy-compressed column chunks
package formats

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/json"
)

// Format names a file encoding
type Format string

const (
	JSONL   Format = "jsonl"
	CSV     Format = "csv"
	Avro    Format = "avro"
	Parquet Format = "parquet"
)

// Parse maps a configuration value onto a Format. Empty means JSONL.
func Parse(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", "json", "ndjson":
		return JSONL, nil
	case JSONL, CSV, Avro, Parquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", name)
	}
}

// Extension returns the file suffix including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type used for object uploads
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case Avro:
		return "application/avro"
	case Parquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/x-ndjson"
	}
}

// Encode writes rows to w using schema for column order and types. Values
// are converted with core.Convert so every format sees the same typed row.
func Encode(w io.Writer, f Format, schema core.Schema, rows []core.Row) error {
	switch f {
	case JSONL, "":
		return encodeJSONL(w, schema, rows)
	case CSV:
		return encodeCSV(w, schema, rows)
	case Avro:
		return encodeAvro(w, schema, rows)
	case Parquet:
		return encodeParquet(w, schema, rows)
	default:
		return fmt.Errorf("unsupported file format: %s", f)
	}
}

// Typed converts a row to the schema's types, keeping only schema columns
// and filling missing ones with nil
func Typed(schema core.Schema, row core.Row) map[string]interface{} {
	out := make(map[string]interface{}, len(schema.Fields))
	for _, field := range schema.Fields {
		out[field.Name] = core.Convert(row[field.Name], field.Type)
	}
	return out
}

func encodeJSONL(w io.Writer, schema core.Schema, rows []core.Row) error {
	enc := json.NewLineEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(Typed(schema, row)); err != nil {
			return err
		}
	}
	return nil
}

func encodeCSV(w io.Writer, schema core.Schema, rows []core.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Names()); err != nil {
		return err
	}
	record := make([]string, len(schema.Fields))
	for _, row := range rows {
		for i, field := range schema.Fields {
			record[i] = core.Text(core.Convert(row[field.Name], field.Type))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var invalidAvroName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// AvroName makes s a valid Avro name
func AvroName(s string) string {
	s = invalidAvroName.ReplaceAllString(s, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}

func avroType(ft core.FieldType) string {
	switch ft {
	case core.FieldTypeInt:
		return "long"
	case core.FieldTypeFloat:
		return "double"
	case core.FieldTypeBool:
		return "boolean"
	default:
		return "string"
	}
}

// AvroSchema returns the Avro record schema for a table. Every field is a
// union with null.
func AvroSchema(schema core.Schema) (string, error) {
	fields := make([]map[string]interface{}, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		fields = append(fields, map[string]interface{}{
			"name":    AvroName(field.Name),
			"type":    []interface{}{"null", avroType(field.Type)},
			"default": nil,
		})
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":   "record",
		"name":   AvroName(schema.Table),
		"fields": fields,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeAvro(w io.Writer, schema core.Schema, rows []core.Row) error {
	avroSchema, err := AvroSchema(schema)
	if err != nil {
		return err
	}
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return fmt.Errorf("failed to create Avro codec: %w", err)
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: goavro.CompressionSnappyLabel,
	})
	if err != nil {
		return fmt.Errorf("failed to create Avro writer: %w", err)
	}

	batch := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		native := make(map[string]interface{}, len(schema.Fields))
		for _, field := range schema.Fields {
			v := core.Convert(row[field.Name], field.Type)
			if v == nil {
				native[AvroName(field.Name)] = nil
				continue
			}
			native[AvroName(field.Name)] = goavro.Union(avroType(field.Type), v)
		}
		batch = append(batch, native)
	}
	if len(batch) == 0 {
		return nil
	}
	return ocf.Append(batch)
}

func arrowType(ft core.FieldType) arrow.DataType {
	switch ft {
	case core.FieldTypeInt:
		return arrow.PrimitiveTypes.Int64
	case core.FieldTypeFloat:
		return arrow.PrimitiveTypes.Float64
	case core.FieldTypeBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema returns the nullable Arrow schema for a table
func ArrowSchema(schema core.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Fields))
	for i, field := range schema.Fields {
		fields[i] = arrow.Field{Name: field.Name, Type: arrowType(field.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// writerOnly hides Close so the parquet writer leaves the sink open
type writerOnly struct{ io.Writer }

func encodeParquet(w io.Writer, schema core.Schema, rows []core.Row) error {
	arrowSchema := ArrowSchema(schema)
	pool := memory.NewGoAllocator()

	builder := array.NewRecordBuilder(pool, arrowSchema)
	defer builder.Release()

	for _, row := range rows {
		for i, field := range schema.Fields {
			appendArrow(builder.Field(i), core.Convert(row[field.Name], field.Type))
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(arrowSchema, writerOnly{w}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool)))
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	if err := fw.Write(record); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return fw.Close()
}

func appendArrow(b array.Builder, v interface{}) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch bb := b.(type) {
	case *array.Int64Builder:
		if n, ok := v.(int64); ok {
			bb.Append(n)
			return
		}
	case *array.Float64Builder:
		if f, ok := v.(float64); ok {
			bb.Append(f)
			return
		}
	case *array.BooleanBuilder:
		if x, ok := v.(bool); ok {
			bb.Append(x)
			return
		}
	case *array.StringBuilder:
		bb.Append(core.Text(v))
		return
	}
	b.AppendNull()
}
