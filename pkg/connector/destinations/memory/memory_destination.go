// Package memory is an in-process destination used for dry runs and tests
package memory

import (
	"context"
	"sync"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Submission records one Submit call
type Submission struct {
	Table core.Table
	Mode  core.WriteMode
	Rows  int
}

// Destination keeps tables in memory
type Destination struct {
	mu          sync.RWMutex
	tables      map[string][]core.Row
	columns     map[string][]string
	submissions []Submission
	closed      bool
}

// New creates an empty memory destination
func New() *Destination {
	return &Destination{
		tables:  make(map[string][]core.Row),
		columns: make(map[string][]string),
	}
}

// NewMemoryDestination is the registry factory
func NewMemoryDestination(*config.DestinationConfig) (core.Destination, error) {
	return New(), nil
}

// Name returns "memory"
func (d *Destination) Name() string { return "memory" }

// Submit stores rows. Rows are copied so callers may reuse their maps.
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "memory destination")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeDestination, "memory destination is closed")
	}

	copied := make([]core.Row, len(rows))
	for i, r := range rows {
		c := make(core.Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		copied[i] = c
	}

	if mode == core.WriteReplace {
		d.tables[table.Name] = copied
	} else {
		d.tables[table.Name] = append(d.tables[table.Name], copied...)
	}
	d.columns[table.Name] = table.Columns
	d.submissions = append(d.submissions, Submission{Table: table, Mode: mode, Rows: len(rows)})
	return nil
}

// Close marks the destination closed
func (d *Destination) Close(context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Rows returns the current contents of a table
func (d *Destination) Rows(table string) []core.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tables[table]
}

// Has reports whether the table was ever submitted
func (d *Destination) Has(table string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tables[table]
	return ok
}

// Tables returns the names of every submitted table
func (d *Destination) Tables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	return names
}

// Submissions returns every Submit call in order
func (d *Destination) Submissions() []Submission {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Submission(nil), d.submissions...)
}

// Columns returns the declared columns of the last submission of table
func (d *Destination) Columns(table string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.columns[table]
}
