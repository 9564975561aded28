package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/page"
	"github.com/aluiziolira/bookcrawl/pipeline"
	"github.com/aluiziolira/bookcrawl/scraper"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	target := flag.Int("target", cfg.TargetCount, "Number of books to collect")
	workers := flag.Int("workers", cfg.Workers, "Concurrent detail page sessions")
	outputFile := flag.String("output", cfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", cfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	backend := flag.String("backend", cfg.Backend, "Page backend: chrome or static")
	headless := flag.Bool("headless", cfg.Headless, "Run the browser without a window")
	delayMs := flag.Int("delay", int(cfg.Delay/time.Millisecond), "Minimum delay between navigations (milliseconds)")
	maxEmpty := flag.Int("max-empty-pages", cfg.MaxEmptyPages, "Stop discovery after this many listing pages without new books")
	maxListing := flag.Int("max-listing-pages", cfg.MaxListingPages, "Upper bound on listing pages (0 = unbounded)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg.TargetCount = *target
	cfg.Workers = *workers
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.OutputFile = pipeline.OutputPath(cfg.OutputFormat, *outputFile)
	cfg.Backend = strings.ToLower(*backend)
	cfg.Headless = *headless
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.MaxEmptyPages = *maxEmpty
	cfg.MaxListingPages = *maxListing
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	factory, err := page.NewFactory(cfg)
	if err != nil {
		slog.Error("selecting page backend", slog.Any("error", err))
		os.Exit(1)
	}
	s, err := scraper.NewScraper(cfg, factory)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting crawl",
		slog.String("run_id", s.RunID()),
		slog.String("listing_url", cfg.ListingURL),
		slog.Int("target", cfg.TargetCount),
		slog.Int("workers", cfg.Workers),
		slog.String("backend", cfg.Backend),
	)

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile, cfg.Fields)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current book")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := s.Run(ctx, p)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		slog.Error("crawl failed", slog.Any("error", runErr))
	}
	if interrupted {
		slog.Warn("crawl interrupted")
	}

	exitCode := 0
	if runErr != nil && !interrupted {
		exitCode = 1
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		exitCode = 1
	}
	// SQLite validation needs the open handle; the file sinks re-read the
	// artifact from disk.
	if cfg.OutputFormat == "sqlite" {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			exitCode = 1
		}
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		exitCode = 1
	}
	if cfg.OutputFormat != "sqlite" {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			exitCode = 1
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(result, time.Since(startTime), cfg.OutputFile, p.GetMetrics())
	}
	if exitCode != 0 {
		stop()
		os.Exit(exitCode)
	}
}

// applyEnv layers SCRAPER_* overrides on top of the file configuration.
func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("SCRAPER_TARGET"); err != nil {
		return fmt.Errorf("invalid SCRAPER_TARGET: %w", err)
	} else if ok {
		cfg.TargetCount = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_WORKERS"); err != nil {
		return fmt.Errorf("invalid SCRAPER_WORKERS: %w", err)
	} else if ok {
		cfg.Workers = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

func createWriter(format, filename string, fields []string) (pipeline.Sink, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename, fields)
	case "csv":
		return pipeline.NewCSVWriter(filename, fields)
	case "dual":
		return pipeline.NewDualWriter(filename, pipeline.SiblingPath(filename, ".jsonl"), fields)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename, fields)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.RunResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	booksPerSec := 0.0
	if duration.Seconds() > 0 {
		booksPerSec = float64(result.RowsWritten) / duration.Seconds()
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Crawl complete")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Run ID", result.RunID})
	t.AppendRow(table.Row{"Listing pages", result.ListingPages})
	t.AppendRow(table.Row{"Books discovered", result.Discovered})
	t.AppendRow(table.Row{"Rows written", result.RowsWritten})
	t.AppendRow(table.Row{"Empty rows", result.EmptyRows})
	t.AppendRow(table.Row{"Navigation failures", result.NavigationFails})
	if result.Exhausted {
		t.AppendRow(table.Row{"Listing exhausted", "yes"})
	}
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", fmt.Sprint(result.ErrorsByType)})
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		t.AppendRow(table.Row{"Validation", fmt.Sprint(valErrors)})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Duration", duration.Round(time.Millisecond)})
	t.AppendRow(table.Row{"Books/sec", fmt.Sprintf("%.2f", booksPerSec)})
	t.AppendRow(table.Row{"Output file", outputFile})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
