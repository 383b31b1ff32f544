package files

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/compression"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/formats"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// Bucket is the object storage surface the s3 and gcs destinations need
type Bucket interface {
	// List returns every key under prefix
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes keys; missing keys are not an error
	Delete(ctx context.Context, keys []string) error
	// Put uploads one object
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get downloads one object
	Get(ctx context.Context, key string) ([]byte, error)
	// Close releases the client
	Close() error
}

// ObjectDestination lands tables in a Bucket using a Layout
type ObjectDestination struct {
	name   string
	bucket Bucket
	layout Layout
	logger *zap.Logger
}

// NewObjectDestination creates a destination named name over bucket
func NewObjectDestination(name string, bucket Bucket, layout Layout) *ObjectDestination {
	return &ObjectDestination{
		name:   name,
		bucket: bucket,
		layout: layout,
		logger: logger.Get().With(zap.String("destination", name)),
	}
}

// Name returns the destination type
func (d *ObjectDestination) Name() string { return d.name }

// Layout returns the key layout
func (d *ObjectDestination) Layout() Layout { return d.layout }

// Submit uploads one part. Replace first deletes every object under the
// table prefix, so the table afterwards consists of exactly the new part.
func (d *ObjectDestination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, d.name+" destination")
	}

	body, err := d.layout.Encode(table, rows)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("failed to encode %s", table.Name))
	}

	if mode == core.WriteReplace {
		prefix := d.layout.TablePrefix(table.Name)
		keys, err := d.bucket.List(ctx, prefix)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to list %s", prefix))
		}
		if len(keys) > 0 {
			if err := d.bucket.Delete(ctx, keys); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to clear %s", prefix))
			}
		}
	}

	key := d.layout.Key(table.Name, mode)
	if err := d.bucket.Put(ctx, key, body, d.layout.ContentType()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to upload %s", key))
	}
	d.logger.Debug("table submitted",
		zap.String("table", table.Name),
		zap.String("key", key),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(body)))
	return nil
}

// CountRows returns the number of rows stored for table. Only JSONL
// layouts can be counted without decoding.
func (d *ObjectDestination) CountRows(ctx context.Context, table string) (int, error) {
	if d.layout.Format != formats.JSONL {
		return 0, errors.Newf(errors.ErrorTypeValidation, "cannot count %s parts", d.layout.Format)
	}
	keys, err := d.bucket.List(ctx, d.layout.TablePrefix(table))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		data, err := d.bucket.Get(ctx, k)
		if err != nil {
			return 0, err
		}
		plain, err := compression.Decompress(data, d.layout.Compression)
		if err != nil {
			return 0, err
		}
		n += bytes.Count(plain, []byte("\n"))
	}
	return n, nil
}

// Close closes the bucket client
func (d *ObjectDestination) Close(context.Context) error {
	return d.bucket.Close()
}

// MemoryBucket is an in-process Bucket for tests
type MemoryBucket struct {
	Objects map[string][]byte
}

// NewMemoryBucket creates an empty bucket
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{Objects: map[string][]byte{}}
}

func (b *MemoryBucket) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range b.Objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBucket) Delete(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(b.Objects, k)
	}
	return nil
}

func (b *MemoryBucket) Put(_ context.Context, key string, body []byte, _ string) error {
	b.Objects[key] = append([]byte(nil), body...)
	return nil
}

func (b *MemoryBucket) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := b.Objects[key]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeDestination, "object %s not found", key)
	}
	return data, nil
}

func (b *MemoryBucket) Close() error { return nil }
