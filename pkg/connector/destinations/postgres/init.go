package postgres

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("postgres", NewPostgresDestination, &registry.ConnectorInfo{
		Name:        "postgres",
		Description: "PostgreSQL tables loaded with COPY; replace swaps the table in one transaction",
		Required:    []string{"dsn"},
	})
}
