package s3

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("s3", NewS3Destination, &registry.ConnectorInfo{
		Name:        "s3",
		Description: "Amazon S3 or S3-compatible object storage",
		Required:    []string{"bucket"},
	})
}
