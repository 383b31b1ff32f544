package memory

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("memory", NewMemoryDestination, &registry.ConnectorInfo{
		Name:        "memory",
		Description: "In-memory tables for dry runs; nothing is persisted",
	})
}
