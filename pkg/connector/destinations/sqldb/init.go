package sqldb

import (
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("sqlite", factory(SQLite), &registry.ConnectorInfo{
		Name:        "sqlite",
		Description: "Local SQLite database file (pure Go driver)",
		Required:    []string{"path"},
	})
	_ = registry.RegisterDestination("mysql", factory(MySQL), &registry.ConnectorInfo{
		Name:        "mysql",
		Description: "MySQL tables; the database is taken from the DSN",
		Required:    []string{"dsn"},
	})
	_ = registry.RegisterDestination("snowflake", factory(Snowflake), &registry.ConnectorInfo{
		Name:        "snowflake",
		Description: "Snowflake tables in destination.schema",
		Required:    []string{"dsn", "schema"},
	})
}
