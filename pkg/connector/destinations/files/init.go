package files

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("files", NewFilesDestination, &registry.ConnectorInfo{
		Name:        "files",
		Description: "Local directory of jsonl/csv/avro/parquet files, optionally compressed",
		Required:    []string{"path"},
	})
}
