// Package s3 lands tables as objects in an S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations/files"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

const (
	defaultRegion = "us-east-1"
	// DeleteObjects accepts at most 1000 keys per request
	maxDeleteKeys = 1000
)

// Bucket implements files.Bucket on the AWS SDK
type Bucket struct {
	name     string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewBucket creates a bucket client. A non-empty endpoint switches to
// path-style addressing for S3-compatible stores.
func NewBucket(ctx context.Context, bucket, region, endpoint string) (*Bucket, error) {
	if bucket == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 destination requires destination.bucket")
	}
	if region == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Bucket{
		name:     bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// List pages through ListObjectsV2 under prefix
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Delete removes keys in batches of 1000
func (b *Bucket) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := min(start+maxDeleteKeys, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.name),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return errors.Newf(errors.ErrorTypeDestination, "failed to delete %s: %s",
				aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// Put uploads body with the multipart uploader
func (b *Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

// Get downloads one object
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Close is a no-op; the SDK client holds no resources
func (b *Bucket) Close() error { return nil }

// NewS3Destination is the registry factory
func NewS3Destination(cfg *config.DestinationConfig) (core.Destination, error) {
	layout, err := files.LayoutFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid s3 destination")
	}
	bucket, err := NewBucket(context.Background(), cfg.Bucket, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return files.NewObjectDestination("s3", bucket, layout), nil
}
