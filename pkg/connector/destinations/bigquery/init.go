package bigquery

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("bigquery", NewBigQueryDestination, &registry.ConnectorInfo{
		Name:        "bigquery",
		Description: "BigQuery dataset loaded with JSONL load jobs (WRITE_TRUNCATE / WRITE_APPEND)",
		Required:    []string{"project", "dataset"},
	})
}
