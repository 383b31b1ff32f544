// Package bigquery lands tables in a BigQuery dataset with load jobs.
//
// Each Submit encodes the rows as JSON Lines and runs one load job with an
// explicit schema. Replace uses WRITE_TRUNCATE, append uses WRITE_APPEND and
// allows new columns.
package bigquery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/formats"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// JobTimeout bounds one load job
const JobTimeout = 10 * time.Minute

// Destination writes to one dataset
type Destination struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	logger  *zap.Logger
}

// NewBigQueryDestination is the registry factory
func NewBigQueryDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	if cfg.Project == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery destination requires destination.project")
	}
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = cfg.Schema
	}
	if dataset == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery destination requires destination.dataset")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return Open(ctx, cfg.Project, dataset, cfg.Location, opts...)
}

// Open creates the client and the dataset when it does not exist
func Open(ctx context.Context, project, dataset, location string, opts ...option.ClientOption) (*Destination, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to create BigQuery client")
	}

	ds := client.Dataset(dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			client.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to read dataset %s", dataset))
		}
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
			client.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create dataset %s", dataset))
		}
	}

	return &Destination{
		client:  client,
		dataset: ds,
		logger:  logger.Get().With(zap.String("destination", "bigquery"), zap.String("dataset", dataset)),
	}, nil
}

// Name returns "bigquery"
func (d *Destination) Name() string { return "bigquery" }

// Submit loads rows into table
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "bigquery destination")
	}
	schema := core.InferSchema(table, rows)
	tbl := d.dataset.Table(table.Name)

	if len(rows) == 0 {
		return d.ensureEmpty(ctx, tbl, schema, mode)
	}

	var buf bytes.Buffer
	if err := formats.Encode(&buf, formats.JSONL, schema, rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("failed to encode %s", table.Name))
	}

	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.JSON
	source.Schema = Schema(schema)

	loader := tbl.LoaderFrom(source)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = Disposition(mode)
	if mode == core.WriteAppend {
		loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}
	}
	loader.Labels = map[string]string{"source": "shopsync", "table": labelValue(table.Name)}

	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to submit load job for %s", table.Name))
	}

	jobCtx, cancel := context.WithTimeout(ctx, JobTimeout)
	defer cancel()
	status, err := job.Wait(jobCtx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("load job for %s failed or timed out", table.Name))
	}
	if status.Err() != nil {
		for i, jobErr := range status.Errors {
			d.logger.Error("load job error detail",
				zap.Int("error_index", i),
				zap.String("message", jobErr.Message),
				zap.String("reason", jobErr.Reason),
				zap.String("location", jobErr.Location))
		}
		return errors.Wrap(status.Err(), errors.ErrorTypeDestination, fmt.Sprintf("load job for %s failed", table.Name))
	}

	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		d.logger.Debug("load job completed",
			zap.String("table", table.Name),
			zap.String("job_id", job.ID()),
			zap.Int64("output_rows", stats.OutputRows))
	}
	return nil
}

// ensureEmpty handles a submit without rows: replace leaves an empty table,
// append only makes sure the table exists
func (d *Destination) ensureEmpty(ctx context.Context, tbl *bigquery.Table, schema core.Schema, mode core.WriteMode) error {
	if mode == core.WriteReplace {
		if err := tbl.Delete(ctx); err != nil && !isNotFound(err) {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to drop %s", tbl.TableID))
		}
	} else if _, err := tbl.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to read %s", tbl.TableID))
	}
	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: Schema(schema)}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to create %s", tbl.TableID))
	}
	return nil
}

// Close closes the client
func (d *Destination) Close(context.Context) error {
	return d.client.Close()
}

// Disposition maps a write mode onto a load job write disposition
func Disposition(mode core.WriteMode) bigquery.TableWriteDisposition {
	if mode == core.WriteAppend {
		return bigquery.WriteAppend
	}
	return bigquery.WriteTruncate
}

// Schema converts an inferred schema to a nullable BigQuery schema
func Schema(schema core.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(schema.Fields))
	for i, f := range schema.Fields {
		out[i] = &bigquery.FieldSchema{Name: f.Name, Type: fieldType(f.Type)}
	}
	return out
}

func fieldType(ft core.FieldType) bigquery.FieldType {
	switch ft {
	case core.FieldTypeInt:
		return bigquery.IntegerFieldType
	case core.FieldTypeFloat:
		return bigquery.FloatFieldType
	case core.FieldTypeBool:
		return bigquery.BooleanFieldType
	default:
		return bigquery.StringFieldType
	}
}

// labelValue trims a value to BigQuery's label limit
func labelValue(s string) string {
	if len(s) > 63 {
		return s[:63]
	}
	return s
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
