package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fiftythirty/internal/backend"
	"fiftythirty/internal/cache"
	"fiftythirty/internal/cli"
	"fiftythirty/internal/config"
	"fiftythirty/internal/csv"
	apphttp "fiftythirty/internal/http"
	"fiftythirty/internal/log"
	"fiftythirty/internal/middleware/ratelimit"
	"fiftythirty/internal/state"
	"fiftythirty/internal/tracker"
)

type options struct {
	importPath string
	replace    bool
	exportPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.importPath, "import", "", "import a CSV file and exit")
	flag.BoolVar(&opts.replace, "replace", false, "with -import, replace every stored expense")
	flag.StringVar(&opts.exportPath, "export", "", "export every expense to a CSV file and exit")
	flag.Parse()

	cfg, logger := cli.Bootstrap()
	if err := run(cfg, logger, opts); err != nil {
		logger.Error("fiftythirty failed", log.FieldError, err)
		os.Exit(1)
	}
}

// run returns instead of exiting so the pending save is always flushed.
func run(cfg *config.Config, logger *log.Logger, opts options) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	snap := state.LoadOrDefault(ctx, res.Store, logger.WithComponent(log.ComponentState))

	trackerOpts := []tracker.Option{
		tracker.WithStore(res.Store, cfg.SaveTimeout),
		tracker.WithNotifyScope(cfg.Scope()),
		tracker.WithLogger(logger.WithComponent(log.ComponentTracker)),
		tracker.WithNotifier(tracker.LogNotifier{Logger: logger.WithComponent(log.ComponentTracker)}),
	}
	if res.Notifier != nil {
		trackerOpts = append(trackerOpts, tracker.WithNotifier(res.Notifier))
	}
	svc := tracker.New(snap, trackerOpts...)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
		defer closeCancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Error("Failed to flush state", log.FieldError, err)
		}
	}()

	codec := csv.NewCodec(cfg.Locale(), csv.WithLogger(logger.WithComponent(log.ComponentCSV)))

	switch {
	case opts.importPath != "":
		return runImport(ctx, svc, codec, opts.importPath, opts.replace, logger)
	case opts.exportPath != "":
		snap, _ := svc.Snapshot()
		if err := codec.ExportFile(opts.exportPath, snap.Expenses); err != nil {
			return err
		}
		logger.Info("Exported expenses", log.FieldOperation, log.OpExport, log.FieldCount, len(snap.Expenses), log.FieldFile, opts.exportPath)
		return nil
	}

	if err := serve(ctx, cfg, svc, codec, res, logger); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func runImport(ctx context.Context, svc *tracker.Service, codec *csv.Codec, path string, replace bool, logger *log.Logger) error {
	imp, err := codec.ImportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	out, err := svc.Handle(ctx, tracker.ImportExpenses{Expenses: imp.Expenses, Replace: replace})
	if err != nil {
		return err
	}
	logger.Info("Imported expenses",
		log.FieldOperation, log.OpImport,
		log.FieldCount, out.Imported,
		"degraded", imp.Degraded,
		"skipped", imp.Skipped,
		"replace", replace)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, svc *tracker.Service, codec *csv.Codec, res *backend.BackendResult, logger *log.Logger) error {
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	reports := apphttp.NewReportCache(cfg.ReportCacheSize, cfg.ReportCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(reports)

	opts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithLimiter(limiter),
		apphttp.WithReportCache(reports),
	}
	if res.Exporter != nil {
		opts = append(opts, apphttp.WithExporter(res.Exporter))
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, codec, opts...)

	logger.Info("Starting fiftythirty server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.Locale().String(),
		"notify_scope", string(cfg.Scope()),
		"amqp", cfg.AMQPEnabled(),
		"sheets", cfg.SheetsEnabled())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, 30*time.Second) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return caches.Run(gctx, 5*time.Minute) })
	return g.Wait()
}
