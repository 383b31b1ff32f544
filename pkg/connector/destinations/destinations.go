// Package destinations registers every destination connector. Import it
// for side effects, then build destinations through the registry.
package destinations

import (
	"context"
	"strings"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/errors"

	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/bigquery"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/files"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/gcs"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/memory"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/mongodb"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/postgres"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/s3"
	_ "github.com/ajitpratap0/shopsync/pkg/connector/destinations/sqldb"
)

// Open builds the configured destination after checking the fields its
// connector requires
func Open(_ context.Context, cfg *config.DestinationConfig) (core.Destination, error) {
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return registry.CreateDestination(cfg)
}

// Check reports the first required field cfg leaves empty
func Check(cfg *config.DestinationConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "destination config is nil")
	}
	info, err := registry.Info(cfg.Type)
	if err != nil {
		return errors.Newf(errors.ErrorTypeConfig, "unknown destination %q (available: %s)",
			cfg.Type, strings.Join(Available(), ", "))
	}
	for _, name := range info.Required {
		if field(cfg, name) == "" {
			return errors.Newf(errors.ErrorTypeConfig, "%s destination requires destination.%s", cfg.Type, name)
		}
	}
	return nil
}

func field(cfg *config.DestinationConfig, name string) string {
	switch name {
	case "dsn":
		return cfg.DSN
	case "path":
		return cfg.Path
	case "project":
		return cfg.Project
	case "dataset":
		return cfg.Dataset
	case "bucket":
		return cfg.Bucket
	case "schema":
		return cfg.Schema
	case "region":
		return cfg.Region
	default:
		return ""
	}
}

// Available lists registered destination types
func Available() []string {
	return registry.ListDestinations()
}
