// Package gcs lands tables as objects in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations/files"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Bucket implements files.Bucket on cloud.google.com/go/storage
type Bucket struct {
	client *storage.Client
	handle *storage.BucketHandle
}

// NewBucket creates a bucket client. An endpoint (fake-gcs-server, for
// instance) disables authentication.
func NewBucket(ctx context.Context, bucket, credentialsFile, endpoint string) (*Bucket, error) {
	if bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcs destination requires destination.bucket")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	return &Bucket{client: client, handle: client.Bucket(bucket)}, nil
}

// List iterates object names under prefix
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
}

// Delete removes keys one by one; GCS has no batch delete in this client
func (b *Bucket) Delete(ctx context.Context, keys []string) error {
	for _, k := range keys {
		err := b.handle.Object(k).Delete(ctx)
		if err != nil && err != storage.ErrObjectNotExist {
			return err
		}
	}
	return nil
}

// Put streams body through an object writer
func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Get downloads one object
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close closes the storage client
func (b *Bucket) Close() error {
	return b.client.Close()
}

// NewGCSDestination is the registry factory
func NewGCSDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	layout, err := files.LayoutFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid gcs destination")
	}
	bucket, err := NewBucket(context.Background(), cfg.Bucket, cfg.CredentialsFile, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return files.NewObjectDestination("gcs", bucket, layout), nil
}
