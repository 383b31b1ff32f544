package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations/files"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/testutil"
)

type s3Suite struct {
	testutil.DestinationSuite
}

// TestS3Destination runs against a real bucket, e.g. MinIO:
//
//	SHOPSYNC_TEST_S3_BUCKET=shopsync SHOPSYNC_TEST_S3_ENDPOINT=http://localhost:9000
func TestS3Destination(t *testing.T) {
	bucket := testutil.RequireEnv(t, "SHOPSYNC_TEST_S3_BUCKET")
	endpoint := testutil.RequireEnv(t, "SHOPSYNC_TEST_S3_ENDPOINT")

	s := &s3Suite{}
	s.Open = func(_ context.Context, dir string) (core.Destination, error) {
		return NewS3Destination(&config.DestinationConfig{
			Type:     "s3",
			Bucket:   bucket,
			Endpoint: endpoint,
			Prefix:   "shopsync-test/" + dir,
			Format:   "jsonl",
		})
	}
	s.Count = func(ctx context.Context, dest core.Destination, table string) (int, error) {
		return dest.(*files.ObjectDestination).CountRows(ctx, table)
	}
	suite.Run(t, s)
}

func TestNewS3DestinationRequiresBucket(t *testing.T) {
	_, err := NewS3Destination(&config.DestinationConfig{Type: "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination.bucket")
}

func TestNewS3DestinationRejectsBadFormat(t *testing.T) {
	_, err := NewS3Destination(&config.DestinationConfig{Type: "s3", Bucket: "b", Format: "xml"})
	assert.Error(t, err)
}

func TestS3Registered(t *testing.T) {
	info, err := registry.Info("s3")
	require.NoError(t, err)
	assert.Equal(t, []string{"bucket"}, info.Required)
}
