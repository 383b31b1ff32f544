// Package mongodb lands each table as a collection of flat documents.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/json"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

const defaultBatchSize = 500

// Destination writes tables to collections of one database
type Destination struct {
	client    *mongo.Client
	db        *mongo.Database
	batchSize int
	logger    *zap.Logger
}

// Open connects to uri and pings the deployment
func Open(ctx context.Context, uri, database string, batchSize int) (*Destination, error) {
	if uri == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mongodb destination requires destination.dsn")
	}
	if database == "" {
		database = config.DefaultSchema
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to ping MongoDB")
	}
	return &Destination{
		client:    client,
		db:        client.Database(database),
		batchSize: batchSize,
		logger:    logger.Get().With(zap.String("destination", "mongodb"), zap.String("database", database)),
	}, nil
}

// NewMongoDBDestination is the registry factory
func NewMongoDBDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	return Open(context.Background(), cfg.DSN, cfg.Schema, cfg.BatchSize)
}

// Name returns "mongodb"
func (d *Destination) Name() string { return "mongodb" }

// Database returns the target database
func (d *Destination) Database() *mongo.Database { return d.db }

// Submit inserts rows into the table's collection. Replace drops the
// collection first, so an empty batch leaves the table empty.
func (d *Destination) Submit(ctx context.Context, table core.Table, rows []core.Row, mode core.WriteMode) error {
	if err := mode.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "mongodb destination")
	}
	coll := d.db.Collection(table.Name)
	if mode == core.WriteReplace {
		if err := coll.Drop(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to drop %s", table.Name))
		}
	}

	schema := core.InferSchema(table, rows)
	for start := 0; start < len(rows); start += d.batchSize {
		end := min(start+d.batchSize, len(rows))
		docs := make([]interface{}, 0, end-start)
		for _, row := range rows[start:end] {
			docs = append(docs, Document(schema, row))
		}
		if _, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to insert into %s", table.Name))
		}
	}
	d.logger.Debug("table submitted",
		zap.String("table", table.Name),
		zap.String("mode", string(mode)),
		zap.Int("rows", len(rows)))
	return nil
}

// Close disconnects the client
func (d *Destination) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Document orders row by schema. Scalars are coerced to their column type;
// nested values stay as sub-documents and arrays.
func Document(schema core.Schema, row core.Row) bson.D {
	doc := make(bson.D, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		v := row[f.Name]
		if f.Type == core.FieldTypeJSON {
			v = native(v)
		} else {
			v = core.Convert(v, f.Type)
		}
		doc = append(doc, bson.E{Key: f.Name, Value: v})
	}
	return doc
}

// native replaces json.Number inside nested values with int64 or float64
func native(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]interface{}:
		out := make(bson.M, len(x))
		for k, e := range x {
			out[k] = native(e)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = native(e)
		}
		return out
	default:
		return v
	}
}
