package mongodb

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("mongodb", NewMongoDBDestination, &registry.ConnectorInfo{
		Name:        "mongodb",
		Description: "MongoDB database, one collection per table",
		Required:    []string{"dsn"},
	})
}
