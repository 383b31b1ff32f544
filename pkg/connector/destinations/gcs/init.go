package gcs

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("gcs", NewGCSDestination, &registry.ConnectorInfo{
		Name:        "gcs",
		Description: "Google Cloud Storage bucket",
		Required:    []string{"bucket"},
	})
}
