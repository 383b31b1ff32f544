// Package connector holds the source and destination sides of shopsync.
//
// # Layout
//
//   - core: the Row, Table and Destination contracts, write modes and
//     schema inference shared by every destination.
//
//   - sources/shopify: the resource catalog, GraphQL and REST Link
//     paginators, the row flattener and the per-item fan-out.
//
//   - destinations: one package per target (postgres, sqldb for sqlite,
//     mysql and snowflake, bigquery, files, s3, gcs, mongodb and memory).
//     Each registers itself in init; import destinations for side effects.
//
//   - registry: name to factory lookup with required-field metadata.
//
// # Write modes
//
// A destination receives every table of a loader exactly once per run
// step. WriteReplace supersedes the table's contents, including with an
// empty batch; WriteAppend adds rows and widens the table with any new
// columns.
//
// # Example Usage
//
//	dest, err := destinations.Open(ctx, &config.DestinationConfig{
//		Type: "sqlite",
//		Path: "shopify.db",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dest.Close(ctx)
//
//	err = dest.Submit(ctx, core.Table{Name: "pages", Columns: cols}, rows, core.WriteReplace)
package connector
