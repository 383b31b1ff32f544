package files

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ajitpratap0/shopsync/pkg/compression"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/formats"
)

// Layout names and encodes table files. Every table lives under
// {prefix}/{table}/; replace writes part-00000, append writes a part named
// after the current time so earlier parts are kept.
type Layout struct {
	Prefix      string
	Format      formats.Format
	Compression compression.Algorithm
	Level       compression.Level

	now func() time.Time
}

// LayoutFromConfig reads format, compression and prefix
func LayoutFromConfig(cfg *config.DestinationConfig) (Layout, error) {
	f, err := formats.Parse(cfg.Format)
	if err != nil {
		return Layout{}, err
	}
	c, err := compression.Parse(cfg.Compression)
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Prefix:      strings.Trim(cfg.Prefix, "/"),
		Format:      f,
		Compression: c,
		Level:       compression.Default,
	}, nil
}

// TablePrefix returns the key prefix holding every part of table, with a
// trailing slash
func (l Layout) TablePrefix(table string) string {
	if l.Prefix == "" {
		return table + "/"
	}
	return path.Join(l.Prefix, table) + "/"
}

// Key returns the object key for a new part of table
func (l Layout) Key(table string, mode core.WriteMode) string {
	part := "part-00000"
	if mode == core.WriteAppend {
		now := time.Now
		if l.now != nil {
			now = l.now
		}
		part = fmt.Sprintf("part-%d", now().UnixNano())
	}
	return l.TablePrefix(table) + part + l.Format.Extension() + l.Compression.Extension()
}

// ContentType returns the MIME type of the encoded body
func (l Layout) ContentType() string {
	return l.Format.ContentType()
}

// Encode renders rows as a complete, compressed file body
func (l Layout) Encode(table core.Table, rows []core.Row) ([]byte, error) {
	schema := core.InferSchema(table, rows)

	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, l.Compression, l.Level)
	if err != nil {
		return nil, err
	}
	if err := formats.Encode(w, l.Format, schema, rows); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
