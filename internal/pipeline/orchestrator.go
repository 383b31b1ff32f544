package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/observability"
)

// Extractor pulls one catalog resource; *shopify.Source implements it
type Extractor interface {
	Extract(ctx context.Context, name string, window shopify.Window) (*shopify.Extraction, error)
}

// Options control which loaders run and how backfill windows are cut
type Options struct {
	CoreResources             []string
	IncludeProductsMetafields bool
	IncludeCompanyLocations   bool
	BackfillStart             time.Time
	BackfillWindow            time.Duration
}

// DefaultBackfillStart is the first backfill window start when none is configured
var DefaultBackfillStart = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

// DefaultBackfillWindow is one week
const DefaultBackfillWindow = 7 * 24 * time.Hour

// OptionsFromConfig maps configuration onto orchestrator options
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		CoreResources:             cfg.Extraction.CoreResources,
		IncludeProductsMetafields: cfg.Extraction.IncludeProductsMetafields,
		IncludeCompanyLocations:   cfg.Extraction.IncludeCompanyLocations,
		BackfillStart:             DefaultBackfillStart,
		BackfillWindow:            cfg.Backfill.Window,
	}
	if cfg.Backfill.StartDate != "" {
		start, err := cfg.BackfillStart()
		if err != nil {
			return opts, errors.Wrap(err, errors.ErrorTypeConfig, "invalid backfill start")
		}
		opts.BackfillStart = start
	}
	return opts, nil
}

func (o Options) core() []string {
	if len(o.CoreResources) == 0 {
		return shopify.CoreResources
	}
	return o.CoreResources
}

func (o Options) supplemental() []string {
	return shopify.SupplementalSequence(o.IncludeProductsMetafields, o.IncludeCompanyLocations)
}

// Orchestrator sequences loaders for one run. Loaders run one at a time
// against a single shared destination.
type Orchestrator struct {
	source Extractor
	loader *Loader
	opts   Options
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(source Extractor, loader *Loader, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BackfillWindow <= 0 {
		opts.BackfillWindow = DefaultBackfillWindow
	}
	if opts.BackfillStart.IsZero() {
		opts.BackfillStart = DefaultBackfillStart
	}
	return &Orchestrator{
		source: source,
		loader: loader,
		opts:   opts,
		logger: log.With(zap.String("component", "orchestrator")),
	}
}

func (o *Orchestrator) newReport(ctx context.Context, mode string) (*RunReport, context.Context, trace.Span) {
	report := &RunReport{
		RunID:       uuid.New().String(),
		Mode:        mode,
		Destination: o.loader.Destination().Name(),
		Started:     time.Now(),
	}
	ctx = logger.ContextWith(ctx, logger.RunIDKey, report.RunID)
	ctx, span := observability.StartSpan(ctx, "run",
		attribute.String("run_id", report.RunID),
		attribute.String("mode", mode),
		attribute.String("destination", report.Destination))
	return report, ctx, span
}

func (o *Orchestrator) finish(report *RunReport, span trace.Span) *RunReport {
	report.Finished = time.Now()
	ok, failed, skipped := report.Counts()
	span.SetAttributes(
		attribute.Int("loaders.ok", ok),
		attribute.Int("loaders.failed", failed),
		attribute.Int("loaders.skipped", skipped),
		attribute.Int("rows", report.Rows()))
	var err error
	if report.Failed() {
		err = errors.Newf(errors.ErrorTypeInternal, "%d loaders failed", failed)
	}
	observability.EndSpan(span, err)
	return report
}

func (o *Orchestrator) run(ctx context.Context, name, phase string, mode core.WriteMode, window shopify.Window) Result {
	res := o.loader.Load(ctx, name, mode, func(ctx context.Context) (*shopify.Extraction, error) {
		return o.source.Extract(ctx, name, window)
	})
	res.Phase = phase
	return res
}

// runSupplemental runs the fixed supplemental sequence with replace.
// Failures are recorded and never stop the sequence.
func (o *Orchestrator) runSupplemental(ctx context.Context, report *RunReport, phase string) {
	for _, name := range o.opts.supplemental() {
		if ctx.Err() != nil {
			return
		}
		report.Add(o.run(ctx, name, phase, core.WriteReplace, shopify.Window{}))
	}
}

// RunFull loads the requested core entities updated since start with
// replace, then the supplemental sequence. Every loader runs regardless of
// earlier failures; stop only on context cancellation.
func (o *Orchestrator) RunFull(ctx context.Context, resources []string, start time.Time) *RunReport {
	report, ctx, span := o.newReport(ctx, ModeFull)
	log := logger.FromContext(ctx, o.logger)
	if len(resources) == 0 {
		resources = o.opts.core()
	}
	log.Info("🚀 Starting full load",
		zap.Strings("core", resources),
		zap.Time("updated_at_min", start))

	window := shopify.Window{UpdatedAtMin: start}
	for _, name := range resources {
		if ctx.Err() != nil {
			break
		}
		report.Add(o.run(ctx, name, ModeFull, core.WriteReplace, window))
	}
	o.runSupplemental(ctx, report, ModeFull)

	return o.finish(report, span)
}

// RunPartner loads Partner API transactions
func (o *Orchestrator) RunPartner(ctx context.Context) *RunReport {
	report, ctx, span := o.newReport(ctx, ModePartner)
	report.Add(o.run(ctx, "partner_transactions", ModePartner, core.WriteReplace, shopify.Window{}))
	return o.finish(report, span)
}

// RunBackfill walks weekly windows from the configured start up to now.
// Each window loads the core entities bounded to the window and then the
// supplemental sequence. A core entity failure aborts the remaining
// windows. The final incremental sync from now onward always runs.
func (o *Orchestrator) RunBackfill(ctx context.Context, now time.Time) *RunReport {
	report, ctx, span := o.newReport(ctx, ModeBackfill)
	log := logger.FromContext(ctx, o.logger)

	windows := Windows(o.opts.BackfillStart, now, o.opts.BackfillWindow)
	bf := newBackfillReport(o.opts.BackfillStart, now, windows)
	report.Backfill = bf

	log.Info(fmt.Sprintf("🚀 Starting backfill: %d windows from %s", len(windows), o.opts.BackfillStart.Format(time.RFC3339)),
		zap.Duration("window", o.opts.BackfillWindow))

	bf.transition(StateRunning)
	for i, w := range windows {
		if ctx.Err() != nil {
			bf.abort(i, "canceled")
			break
		}
		phase := fmt.Sprintf("window %d/%d", i+1, len(windows))
		wctx := logger.ContextWith(ctx, logger.WindowKey, phase)
		wlog := logger.FromContext(wctx, o.logger)
		wlog.Info(fmt.Sprintf("📅 Backfill %s: %s -> %s", phase, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)))

		// the first window supersedes the core tables; later windows add to them
		mode := core.WriteAppend
		if i == 0 {
			mode = core.WriteReplace
		}
		window := shopify.Window{
			UpdatedAtMin: w.Start,
			UpdatedAtMax: w.End,
			CreatedAtMin: o.opts.BackfillStart,
		}

		failed := ""
		for _, name := range o.opts.core() {
			res := o.run(wctx, name, phase, mode, window)
			report.Add(res)
			if res.Outcome == OutcomeFailed {
				failed = name
				break
			}
		}
		if failed != "" {
			bf.Windows[i].Result = WindowFailed
			bf.abort(i, fmt.Sprintf("%s failed", failed))
			wlog.Error(fmt.Sprintf("❌ Backfill %s failed on %s; aborting remaining windows", phase, failed))
			break
		}

		o.runSupplemental(wctx, report, phase)
		bf.Windows[i].Result = WindowDone
		bf.Completed++
	}
	if !bf.Aborted() {
		bf.transition(StateAllWindowsDone)
	}

	bf.transition(StateFinalSync)
	if bf.Aborted() {
		log.Warn("⚠️ Running final incremental sync after an aborted backfill; earlier windows may be missing")
	}
	if ctx.Err() == nil {
		final := shopify.Window{UpdatedAtMin: now, CreatedAtMin: o.opts.BackfillStart}
		for _, name := range o.opts.core() {
			report.Add(o.run(ctx, name, PhaseFinal, core.WriteAppend, final))
		}
	}
	for _, w := range bf.Windows {
		metrics.BackfillWindows.WithLabelValues(string(w.Result)).Inc()
	}

	return o.finish(report, span)
}
