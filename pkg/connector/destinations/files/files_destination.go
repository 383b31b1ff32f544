// Package files lands tables as files in a local directory, laid out the
// same way as the object storage destinations.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// Destination writes one directory per table under root
type Destination struct {
	root   string
	layout Layout
	logger *zap.Logger
}

// New creates the root directory
func New(root string, layout Layout) (*Destination, error) {
	if root == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "files destination requires destination.path")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", root))
	}
	return &Destination{
		root:   root,
		layout: layout,
		logger: logger.Get().With(zap.String("destination", "files"), zap.String("root", root)),
	}, nil
}

// NewFilesDestination is the registry factory
func NewFilesDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	layout, err := LayoutFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid files destination")
	}
	return New(cfg.Path, layout)
}

// Name returns "files"
func (d *Destination) Name() string { return "files" }

// Submit writes a part file. Replace writes the new part to a temporary
// file, removes the table's other parts and renames it into place.
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "files destination")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := d.layout.Encode(table, rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("failed to encode %s", table.Name))
	}

	key := d.layout.Key(table.Name, mode)
	target := filepath.Join(d.root, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", dir))
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to write %s", table.Name))
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to write %s", table.Name))
	}

	if mode == core.WriteReplace {
		if err := removeParts(dir); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to clear %s", table.Name))
		}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to move %s into place", table.Name))
	}

	d.logger.Debug("table submitted",
		zap.String("table", table.Name),
		zap.String("file", target),
		zap.Int("rows", len(rows)))
	return nil
}

// Parts returns the part files of table, sorted by name
func (d *Destination) Parts(table string) ([]string, error) {
	dir := filepath.Join(d.root, filepath.FromSlash(d.layout.TablePrefix(table)))
	matches, err := filepath.Glob(filepath.Join(dir, "part-*"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Close is a no-op
func (d *Destination) Close(context.Context) error { return nil }

func removeParts(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "part-") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
