// Package core defines the contracts shared by the Shopify source and every
// destination connector: rows, tables, write modes and the Destination
// interface.
package core

import (
	"context"
	"fmt"
)

// Row is one flattened, destination-ready record keyed by column name.
// A nil value is an explicit SQL NULL.
type Row map[string]interface{}

// Table names a destination table and its declared column order
type Table struct {
	Name    string
	Columns []string
}

// WriteMode is the destination write policy for one submit
type WriteMode string

const (
	// WriteReplace supersedes the table's previous contents entirely
	WriteReplace WriteMode = "replace"
	// WriteAppend adds rows to the table, creating it when missing
	WriteAppend WriteMode = "append"
)

// Validate rejects unknown modes
func (m WriteMode) Validate() error {
	switch m {
	case WriteReplace, WriteAppend:
		return nil
	default:
		return fmt.Errorf("unsupported write mode %q", m)
	}
}

// Destination lands tables. Submit is called once per table per load and
// must be safe to call many times sequentially on one instance.
type Destination interface {
	// Name returns the destination type (e.g. "postgres", "bigquery")
	Name() string

	// Submit writes rows to table under mode. With WriteReplace the table
	// afterwards holds exactly rows, even when rows is empty.
	Submit(ctx context.Context, table Table, rows []Row, mode WriteMode) error

	// Close releases connections and clients
	Close(ctx context.Context) error
}
