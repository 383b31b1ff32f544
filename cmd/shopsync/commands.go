package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/internal/pipeline"
	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/observability"
)

var version = "0.1.0"

// errLoadersFailed is returned when at least one loader failed and
// reliability.fail_on_error is set
var errLoadersFailed = errors.New(errors.ErrorTypeInternal, "one or more loaders failed")

// globalFlags are shared by every command
type globalFlags struct {
	configFile  string
	destination string
	logLevel    string
	reportFile  string
	dryRun      bool
	failOnError bool
}

// app is everything a run command needs, built from configuration
type app struct {
	// ctx is bounded by timeouts.run when set
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Config
	log      *zap.Logger
	dest     core.Destination
	orch     *pipeline.Orchestrator
	shutdown observability.ShutdownFunc
	http     *clients.HTTPClient
}

func newRootCommand(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "shopsync",
		Short: "Extract Shopify store data into a warehouse",
		Long: `shopsync extracts orders, products, customers and supporting store data
from the Shopify Admin and Partner APIs, flattens it into tables and lands
them in a destination such as Postgres, BigQuery or object storage.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	pf.StringVarP(&flags.destination, "destination", "d", "", "Destination type, overrides destination.type")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.reportFile, "report", "", "Write the run report as JSON to this file")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "Extract into the in-memory destination and discard the rows")
	pf.BoolVar(&flags.failOnError, "fail-on-error", true, "Exit non-zero when any loader failed")

	root.AddCommand(
		newRunCommand(flags),
		newBackfillCommand(flags),
		newPartnerCommand(flags),
		newResourcesCommand(),
		newDestinationsCommand(),
		newConfigCommand(flags),
		newInitCommand(),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	var resources []string
	var startDate string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load core entities updated since the start date, then the supplemental loaders",
		Example: `  shopsync run
  shopsync run --resources orders,customers --start-date 2025-10-10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkCore(resources); err != nil {
				return err
			}
			a, err := setup(cmd.Context(), flags, func(cfg *config.Config) {
				if startDate != "" {
					cfg.Extraction.StartDate = startDate
				}
			})
			if err != nil {
				return err
			}
			defer a.close()

			start, err := a.cfg.FullLoadStart()
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "invalid start date")
			}
			return a.finish(flags, a.orch.RunFull(a.ctx, resources, start))
		},
	}
	cmd.Flags().StringSliceVar(&resources, "resources", nil, "Core entities to load (default extraction.core_resources)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "updated_at_min for core entities, YYYY-MM-DD (default extraction.start_date)")
	return cmd
}

func newBackfillCommand(flags *globalFlags) *cobra.Command {
	var startDate string
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Load history in weekly windows, then run a final incremental sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), flags, func(cfg *config.Config) {
				if startDate != "" {
					cfg.Backfill.StartDate = startDate
				}
				if window > 0 {
					cfg.Backfill.Window = window
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			return a.finish(flags, a.orch.RunBackfill(a.ctx, time.Now().UTC()))
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "First window start, YYYY-MM-DD (default backfill.start_date)")
	cmd.Flags().DurationVar(&window, "window", 0, "Window width (default backfill.window)")
	return cmd
}

func newPartnerCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "partner",
		Short: "Load Partner API transactions into the partner dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), flags, func(cfg *config.Config) {
				if ds := cfg.Partner.Dataset; ds != "" {
					cfg.Destination.Schema = ds
					cfg.Destination.Dataset = ds
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			return a.finish(flags, a.orch.RunPartner(a.ctx))
		},
	}
}

func newResourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List extractable resources and the tables they produce",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := shopify.DefaultCatalog()
			w := cmd.OutOrStdout()
			for _, name := range catalog.Names() {
				r := catalog[name]
				kind := string(r.Kind)
				if r.Core {
					kind += ", core"
				}
				fmt.Fprintf(w, "%-28s %-16s %s\n", name, kind, strings.Join(r.TableNames(), ", "))
			}
			return nil
		},
	}
}

func newDestinationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destinations",
		Short: "List available destinations and their required settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, name := range destinations.Available() {
				info, err := registry.Info(name)
				if err != nil {
					return err
				}
				required := "-"
				if len(info.Required) > 0 {
					required = strings.Join(info.Required, ", ")
				}
				fmt.Fprintf(w, "%-10s %-60s requires: %s\n", name, info.Description, required)
			}
			return nil
		},
	}
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			data, err := config.Dump(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "shopsync.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf(errors.ErrorTypeConfig, "%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.NewConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "shopsync v%s\n", version)
			fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// loadConfig reads the file and environment, then applies flag overrides
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
	}
	if flags.destination != "" {
		cfg.Destination.Type = flags.destination
	}
	if flags.dryRun {
		cfg.Destination.Type = "memory"
	}
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// setup loads configuration, applies adjust, then wires logging, tracing,
// the HTTP client, the Shopify source and the destination
func setup(ctx context.Context, flags *globalFlags, adjust func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    cfg.Observability.LogEncoding,
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	log := logger.Get().With(zap.String("component", "shopsync-cli"))

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.EnableTracing,
		ServiceName:    "shopsync",
		ServiceVersion: version,
		SamplingRate:   cfg.Observability.TracingSampleRate,
		Writer:         os.Stderr,
	})
	if err != nil {
		return nil, err
	}

	dest, err := destinations.Open(ctx, &cfg.Destination)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RateLimit = cfg.Reliability.RateLimitPerSec
	httpCfg.RateBurst = cfg.Reliability.RateBurst
	if cfg.Timeouts.Connection > 0 {
		httpCfg.DialTimeout = cfg.Timeouts.Connection
	}
	httpClient := clients.NewHTTPClient(httpCfg, log)

	source := shopify.NewSource(
		shopify.DefaultCatalog(),
		config.NewCredentialSource(cfg.Shop, httpClient.StandardClient()),
		httpClient,
		shopify.SettingsFromConfig(cfg),
		log,
	)
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		_ = dest.Close(ctx)
		_ = shutdown(ctx)
		return nil, err
	}

	log.Info("🔧 Configuration loaded",
		zap.String("destination", dest.Name()),
		zap.String("shop", config.NormalizeShopDomain(cfg.Shop.URL)),
		zap.Bool("dry_run", flags.dryRun))

	var runCtx context.Context
	var cancel context.CancelFunc
	if cfg.Timeouts.Run > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Run)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	return &app{
		ctx:      runCtx,
		cancel:   cancel,
		cfg:      cfg,
		log:      log,
		dest:     dest,
		orch:     pipeline.NewOrchestrator(source, pipeline.NewLoader(dest, log), opts, log),
		shutdown: shutdown,
		http:     httpClient,
	}, nil
}

// finish logs and optionally writes the report, pushes metrics and turns a
// failed run into an error when configured to
func (a *app) finish(flags *globalFlags, report *pipeline.RunReport) error {
	ctx := a.ctx
	report.Log(a.log)
	if flags.reportFile != "" {
		if err := report.WriteFile(flags.reportFile); err != nil {
			a.log.Error("failed to write report", zap.String("path", flags.reportFile), zap.Error(err))
		}
	}
	if a.cfg.Observability.EnableMetrics {
		if err := metrics.Push(context.WithoutCancel(ctx), a.cfg.Observability.PushGateway, "shopsync"); err != nil {
			a.log.Warn("failed to push metrics", zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.TypeOf(err), "run interrupted")
	}
	if report.Failed() && flags.failOnError && a.cfg.Reliability.FailOnError {
		return errLoadersFailed
	}
	return nil
}

func (a *app) close() {
	a.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.dest.Close(ctx); err != nil {
		a.log.Warn("failed to close destination", zap.Error(err))
	}
	stats := a.http.Stats()
	a.log.Debug("http client stats",
		zap.Int64("requests", stats.TotalRequests),
		zap.Int64("failed", stats.FailedRequests))
	a.http.Close()
	if err := a.shutdown(ctx); err != nil {
		a.log.Warn("failed to flush traces", zap.Error(err))
	}
	_ = logger.Sync()
}

// checkCore rejects names that are not core entities
func checkCore(names []string) error {
	catalog := shopify.DefaultCatalog()
	for _, name := range names {
		r, err := catalog.Get(name)
		if err != nil {
			return err
		}
		if !r.Core {
			return errors.Newf(errors.ErrorTypeValidation, "%s is not a core entity; core entities are %s",
				name, strings.Join(shopify.CoreResources, ", "))
		}
	}
	return nil
}
