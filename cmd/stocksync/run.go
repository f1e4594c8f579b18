package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/config"
	"github.com/aluiziolira/go-stock-sync/content"
	"github.com/aluiziolira/go-stock-sync/engine"
	"github.com/aluiziolira/go-stock-sync/feed"
	"github.com/aluiziolira/go-stock-sync/fetcher"
	"github.com/aluiziolira/go-stock-sync/mapping"
	"github.com/aluiziolira/go-stock-sync/metrics"
	"github.com/aluiziolira/go-stock-sync/models"
	"github.com/aluiziolira/go-stock-sync/pipeline"
	"github.com/aluiziolira/go-stock-sync/thumbs"
)

// LockFile is created in the content directory for the duration of a run.
const LockFile = ".stocksync.lock"

// ErrLocked is returned when another run holds the content directory.
var ErrLocked = eris.New("another stocksync run holds the content directory")

var (
	runFormat       string
	runContentDir   string
	runThumbsDir    string
	runMapping      string
	runParallel     int
	runResetCache   bool
	runReport       string
	runReportFormat string
	runMetricsAddr  string
	runDealerWhere  string
	runDealerCity   string
)

var runCmd = &cobra.Command{
	Use:   "run [feed]",
	Short: "Apply a feed to the content directory and sweep the thumbnail cache",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, args, cfg)
		if err := cfg.Validate(); err != nil {
			return eris.Wrap(err, "invalid configuration")
		}
		logger := zap.L()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			logger.Info("shutdown signal received, waiting for in-flight work to finish")
		}()

		m := metrics.New()
		srv := startMetricsServer(cfg.MetricsAddr, m, logger)
		defer stopMetricsServer(srv, logger)

		f, err := newFetcher(cfg, m, logger)
		if err != nil {
			return err
		}

		started := time.Now()
		run, res, err := runSync(ctx, cfg, f, thumbs.NewWebPEncoder(cfg.Thumbs.Width, cfg.Thumbs.Quality), m, logger)
		if run == nil {
			return err
		}

		if cfg.Report.File != "" {
			if werr := writeReport(cfg.Report, run.Outcomes(), res.Missing); werr != nil {
				logger.Error("report write failed", zap.Error(werr))
			}
		}
		printSummary(cmd.OutOrStdout(), res, time.Since(started), cfg)
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFormat, "format", "auto", "feed format: auto, xml, csv or xlsx")
	f.StringVar(&runContentDir, "content-dir", "", "content records directory")
	f.StringVar(&runThumbsDir, "thumbs-dir", "", "thumbnail cache directory")
	f.StringVar(&runMapping, "mapping", "", "model/colour image mapping file")
	f.IntVar(&runParallel, "parallel", 0, "number of upsert workers")
	f.BoolVar(&runResetCache, "reset-cache", false, "wipe the thumbnail cache before the run")
	f.StringVar(&runReport, "report", "", "write per-record outcomes to this file")
	f.StringVar(&runReportFormat, "report-format", "csv", "report format: csv, json or dual")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	f.StringVar(&runDealerWhere, "dealer-where", "", "location used in titles, e.g. Москве")
	f.StringVar(&runDealerCity, "dealer-city", "", "city named in descriptions")
}

// applyRunFlags overrides configuration with explicitly set flags. The
// positional feed argument wins over feed.source.
func applyRunFlags(cmd *cobra.Command, args []string, c *config.Config) {
	if len(args) == 1 {
		c.Feed.Source = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		c.Feed.Format = runFormat
	}
	if flags.Changed("content-dir") {
		c.ContentDir = runContentDir
	}
	if flags.Changed("thumbs-dir") {
		c.ThumbsDir = runThumbsDir
	}
	if flags.Changed("mapping") {
		c.MappingFile = runMapping
	}
	if flags.Changed("parallel") {
		c.Parallelism = runParallel
	}
	if flags.Changed("reset-cache") {
		c.ResetCache = runResetCache
	}
	if flags.Changed("report") {
		c.Report.File = runReport
	}
	if flags.Changed("report-format") {
		c.Report.Format = runReportFormat
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = runMetricsAddr
	}
	if flags.Changed("dealer-where") {
		c.Dealer.Where = runDealerWhere
	}
	if flags.Changed("dealer-city") {
		c.Dealer.City = runDealerCity
	}
}

func newFetcher(c *config.Config, m *metrics.Metrics, logger *zap.Logger) (*fetcher.Client, error) {
	f, err := fetcher.New(fetcher.Options{
		UserAgent:       c.Fetch.UserAgent,
		Timeout:         c.Fetch.Timeout,
		Parallelism:     c.Parallelism * thumbs.MaxPerKey,
		MaxRetries:      c.Fetch.MaxRetries,
		RetryBackoff:    c.Fetch.RetryBackoff,
		RetryBackoffMax: c.Fetch.RetryBackoffMax,
		RatePerSecond:   c.Fetch.RatePerSecond,
		CacheSize:       c.Fetch.CacheSize,
	}, m, logger)
	if err != nil {
		return nil, eris.Wrap(err, "init fetcher")
	}
	return f, nil
}

// runSync performs one full pass: reset the content directory, stream the
// feed through the pipeline, then sweep the thumbnail cache. The run is nil
// only when nothing was applied. A cancelled or truncated feed skips the
// sweep, since its live set is incomplete.
func runSync(ctx context.Context, c *config.Config, f fetcher.Fetcher, enc thumbs.Encoder, m *metrics.Metrics, logger *zap.Logger) (*engine.Run, models.RunResult, error) {
	var res models.RunResult

	for _, dir := range []string{c.ContentDir, c.ThumbsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, res, eris.Wrapf(err, "create directory %s", dir)
		}
	}

	lock, err := acquireLock(c.ContentDir)
	if err != nil {
		return nil, res, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	resolver, err := loadResolver(c, logger)
	if err != nil {
		return nil, res, err
	}

	cacheFS := osfs.New(c.ThumbsDir)
	cache := thumbs.New(cacheFS, f, enc, thumbs.Options{URLPrefix: c.ThumbsURLPrefix, Max: c.Thumbs.Max}, m, logger)
	if c.ResetCache {
		if err := cache.Reset(); err != nil {
			return nil, res, eris.Wrap(err, "reset thumbnail cache")
		}
		logger.Info("thumbnail cache reset", zap.String("dir", c.ThumbsDir))
	}

	store := content.NewStore(osfs.New(c.ContentDir), content.DefaultExt)
	removed, err := store.Reset()
	if err != nil {
		return nil, res, eris.Wrap(err, "reset content directory")
	}
	logger.Info("content directory reset", zap.String("dir", c.ContentDir), zap.Int("removed", removed))

	format, err := feed.ParseFormat(c.Feed.Format)
	if err != nil {
		return nil, res, err
	}
	records, errs, err := feed.Open(ctx, c.Feed.Source, format, f)
	if err != nil {
		return nil, res, eris.Wrap(err, "open feed")
	}

	eng := engine.New(store, resolver, cache, engine.Options{
		DealerWhere: c.Dealer.Where,
		DealerCity:  c.Dealer.City,
	}, m, logger)
	run := engine.NewRun()
	logger.Info("starting sync",
		zap.String("run_id", run.ID),
		zap.String("feed", c.Feed.Source),
		zap.Int("workers", c.Parallelism),
	)

	p := pipeline.NewPipeline(eng, run, logger)
	p.Start(ctx, c.Parallelism)
	if logger.Core().Enabled(zap.DebugLevel) {
		p.StartMetricsReporting(10 * time.Second)
	}

	streamErr := p.Consume(ctx, records, errs)
	if err := p.Close(); err != nil {
		return run, run.Result(), eris.Wrap(err, "pipeline shutdown")
	}

	res = run.Result()
	if streamErr != nil || ctx.Err() != nil {
		res.SweepSkip = true
		logger.Warn("feed not fully applied, thumbnail sweep skipped", zap.Error(streamErr))
		if streamErr == nil {
			streamErr = ctx.Err()
		}
		return run, res, eris.Wrap(streamErr, "feed interrupted")
	}

	sweep, err := thumbs.Sweep(cacheFS, run.Live, m, logger)
	res.Swept, res.Kept, res.SweepErrors = sweep.Deleted, sweep.Kept, len(sweep.Errors)
	if err != nil {
		return run, res, eris.Wrap(err, "sweep thumbnail cache")
	}
	return run, res, nil
}

// acquireLock takes the run lock in dir without blocking.
func acquireLock(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "acquire run lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

// loadResolver reads the mapping table. A missing file leaves every vehicle
// on the fallback image.
func loadResolver(c *config.Config, logger *zap.Logger) (*mapping.Resolver, error) {
	if _, err := os.Stat(c.MappingFile); errors.Is(err, os.ErrNotExist) {
		logger.Warn("mapping file not found, using fallback image for every vehicle", zap.String("path", c.MappingFile))
		return mapping.NewResolver(nil, c.ModelsPrefix, c.FallbackImage), nil
	}
	table, err := mapping.Load(c.MappingFile)
	if err != nil {
		return nil, err
	}
	return mapping.NewResolver(table, c.ModelsPrefix, c.FallbackImage), nil
}

func writeReport(rc config.ReportConfig, outcomes []models.Outcome, missing []models.MissingMapping) error {
	w, err := pipeline.NewReportWriter(rc.File, rc.Format)
	if err != nil {
		return err
	}
	if err := w.WriteOutcomes(outcomes); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	if err := w.WriteMissing(missing); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	if err := w.Validate(); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	return w.Close()
}

func startMetricsServer(addr string, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server enabled", zap.String("addr", addr))
	return srv
}

func stopMetricsServer(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
