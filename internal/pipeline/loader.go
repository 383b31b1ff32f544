// Package pipeline runs Shopify resources into a destination.
//
// # Overview
//
// A Loader wraps one resource extraction in a guarded scope and submits the
// resulting tables to the destination, returning an explicit Result instead
// of swallowing errors. The Orchestrator sequences loaders for a full load,
// a windowed backfill or the Partner API load, and aggregates results into
// a RunReport.
//
// # Failure policy
//
//   - missing credentials: the loader is skipped with one warning
//   - any extraction error: the loader fails and nothing is submitted
//   - full mode: failures are recorded and the next loader runs
//   - backfill: a failed core entity aborts the remaining windows, and the
//     final incremental sync still runs
//
// # Basic Usage
//
//	loader := pipeline.NewLoader(dest, logger)
//	orch := pipeline.NewOrchestrator(source, loader, opts, logger)
//	report := orch.RunFull(ctx, []string{"orders"}, start)
//	report.Log(logger)
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/observability"
)

// ExtractFunc produces every table of one resource
type ExtractFunc func(ctx context.Context) (*shopify.Extraction, error)

// Loader extracts one resource and submits its tables
type Loader struct {
	dest   core.Destination
	logger *zap.Logger
}

// NewLoader creates a loader writing to dest
func NewLoader(dest core.Destination, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{dest: dest, logger: log}
}

// Destination returns the destination the loader writes to
func (l *Loader) Destination() core.Destination {
	return l.dest
}

// Load runs fn and submits each extracted table exactly once under mode.
// Tables without rows are submitted too, so replace empties them. Nothing
// is submitted when fn fails. Load never panics and never returns an error;
// the outcome is in the Result.
func (l *Loader) Load(ctx context.Context, name string, mode core.WriteMode, fn ExtractFunc) Result {
	ctx = logger.ContextWith(ctx, logger.LoaderKey, name)
	log := logger.FromContext(ctx, l.logger)

	ctx, span := observability.StartSpan(ctx, "loader",
		attribute.String("loader", name),
		attribute.String("mode", string(mode)))

	res := Result{Loader: name, Mode: mode}
	log.Info(fmt.Sprintf("➡️ Starting loader: %s", name))
	timer := metrics.NewTimer(name)

	ex, err := guard(ctx, fn)
	if err == nil {
		res.Tables, err = l.submit(ctx, ex, mode)
	}
	res.Elapsed = timer.Stop()
	elapsed := fmt.Sprintf("%.2fs", res.Elapsed.Seconds())

	switch {
	case err == nil:
		res.Outcome = OutcomeOK
		for _, n := range res.Tables {
			res.Rows += n
		}
		log.Info(fmt.Sprintf("✅ Loader %s complete in %s", name, elapsed),
			zap.Int("rows", res.Rows),
			zap.Int("tables", len(res.Tables)))
	case errors.IsType(err, errors.ErrorTypeCredentials):
		res.Outcome = OutcomeSkipped
		res.ErrorKind = errors.ErrorTypeCredentials
		res.Message = err.Error()
		log.Warn(fmt.Sprintf("⚠️ Missing Shopify credentials; skipping %s", name))
		err = nil
	default:
		res.Outcome = OutcomeFailed
		res.ErrorKind = errors.TypeOf(err)
		res.Message = err.Error()
		log.Error(fmt.Sprintf("❌ Loader %s failed after %s", name, elapsed),
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Error(err))
	}

	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.Int("rows", res.Rows))
	observability.EndSpan(span, err)
	metrics.ObserveLoader(name, string(res.Outcome), res.Elapsed)
	return res
}

func (l *Loader) submit(ctx context.Context, ex *shopify.Extraction, mode core.WriteMode) (map[string]int, error) {
	if ex == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "extraction returned no result")
	}
	counts := make(map[string]int, len(ex.Tables))
	for _, table := range ex.Tables {
		rows := ex.Rows[table.Name]
		if err := l.dest.Submit(ctx, table, rows, mode); err != nil {
			if ctx.Err() != nil {
				return counts, errors.Wrap(err, errors.TypeOf(ctx.Err()), fmt.Sprintf("submit %s interrupted", table.Name))
			}
			return counts, errors.Wrap(err, errors.ErrorTypeDestination, fmt.Sprintf("failed to submit %s to %s", table.Name, l.dest.Name()))
		}
		counts[table.Name] = len(rows)
		metrics.RowsSubmitted.WithLabelValues(table.Name, l.dest.Name()).Add(float64(len(rows)))
	}
	return counts, nil
}

// guard runs fn, turning a panic into an internal error
func guard(ctx context.Context, fn ExtractFunc) (ex *shopify.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrorTypeInternal, fmt.Sprintf("panic: %v", r)).
				WithDetail("stack", string(debug.Stack()))
			ex = nil
		}
	}()
	return fn(ctx)
}
