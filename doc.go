// Package shopsync extracts a Shopify store's data from the Admin GraphQL,
// Admin REST and Partner APIs, flattens it into relational tables and lands
// them in a destination.
//
// # Architecture
//
// A run is a sequence of loaders. Each loader extracts one resource through
// a cursor paginator (GraphQL pageInfo or REST Link headers), flattens every
// node into a parent row plus child rows, and submits each resulting table
// to the destination exactly once under a write mode (replace or append).
// Loaders run one at a time against a single shared destination and report
// an explicit Result; the orchestrator aggregates them into a RunReport.
//
// Three run modes exist:
//
//   - full: core entities (orders, products, customers) updated since a
//     start date, then the fixed supplemental sequence
//   - backfill: weekly windows from a start date up to now, then a final
//     incremental sync; a failed core entity aborts the remaining windows
//   - partner: Partner API transactions into their own dataset
//
// # Quick Start
//
//	export SHOPIFY_SHOP_URL=example.myshopify.com
//	export SHOPIFY_ACCESS_TOKEN=shpat_...
//	shopsync run --destination sqlite --config shopsync.yaml
//	shopsync backfill --start-date 2025-10-01 --report backfill.json
//
// # Key Packages
//
//	cmd/shopsync                   - cobra CLI
//	internal/pipeline              - Loader, Orchestrator, backfill state machine, RunReport
//	pkg/connector/sources/shopify  - resource catalog, paginators, flattener, fan-out
//	pkg/connector/destinations     - postgres, sqlite, mysql, snowflake, bigquery,
//	                                 files, s3, gcs, mongodb and memory
//	pkg/formats                    - jsonl, csv, avro and parquet encoders
//	pkg/compression                - gzip, snappy, lz4, zstd, s2 and deflate
//	pkg/config                     - viper-backed YAML and environment configuration
//	pkg/errors                     - typed errors
//	pkg/logger                     - zap logging with run, loader and window context
//	pkg/metrics                    - Prometheus counters pushed to a Pushgateway
//	pkg/observability              - OpenTelemetry spans
//
// # Configuration
//
// Settings come from defaults, an optional YAML file (with ${VAR}
// substitution) and SHOPSYNC_* environment variables. The legacy
// SHOPIFY_SHOP_URL, SHOPIFY_ACCESS_TOKEN, SHOPIFY_CLIENT_ID,
// SHOPIFY_CLIENT_SECRET and SHOPIFY_PARTNER_* variables are honored.
// A .env file in the working directory is loaded by the CLI.
package shopsync
