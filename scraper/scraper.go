package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/page"
	"github.com/aluiziolira/bookcrawl/parser"
	"github.com/aluiziolira/bookcrawl/pipeline"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the coarse position of a run.
type State int

const (
	StateInit State = iota
	StateDiscovering
	StateExtracting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDiscovering:
		return "discovering"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Scraper drives discovery followed by per-book extraction.
type Scraper struct {
	cfg        *config.Config
	newClient  page.Factory
	discoverer *Discoverer
	extractor  *Extractor
	errs       *errorCounter
	Metrics    *Metrics

	runID string
	log   *slog.Logger
	state atomic.Int32
}

// NewScraper builds a scraper from cfg. A nil factory selects the backend
// named by cfg.Backend.
func NewScraper(cfg *config.Config, factory page.Factory) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("scraper: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if factory == nil {
		var err error
		if factory, err = page.NewFactory(cfg); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	logger := slog.Default().With(slog.String("run_id", runID))
	metrics := NewMetrics()
	errs := newErrorCounter(metrics)

	extractor := NewExtractor(cfg, logger)
	extractor.errs = errs

	return &Scraper{
		cfg:        cfg,
		newClient:  factory,
		discoverer: NewDiscoverer(cfg, metrics, logger),
		extractor:  extractor,
		errs:       errs,
		Metrics:    metrics,
		runID:      runID,
		log:        logger,
	}, nil
}

// RunID identifies this scraper's run in logs and the summary.
func (s *Scraper) RunID() string {
	return s.runID
}

// State reports where the current or last run is.
func (s *Scraper) State() State {
	return State(s.state.Load())
}

func (s *Scraper) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	s.log.Debug("state transition", slog.String("from", prev.String()), slog.String("to", next.String()))
}

// Run discovers identifiers, then extracts each detail page and hands the
// record to p. Per-book failures become empty rows; only discovery,
// pipeline and cancellation errors end the run early. The returned result
// is populated even when an error is returned after discovery.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.RunResult{RunID: s.runID, StartTime: time.Now()}
	var clients []page.Client
	defer func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				s.log.Warn("close page client", slog.Any("error", err))
			}
		}
	}()

	s.setState(StateDiscovering)
	first, err := s.newClient(ctx)
	if err != nil {
		s.setState(StateDone)
		return nil, fmt.Errorf("open page client: %w", err)
	}
	clients = append(clients, first)

	ids, err := s.discoverer.Discover(ctx, first, s.cfg.TargetCount)
	result.ListingPages = s.discoverer.Pages()
	switch {
	case errors.Is(err, ErrListingExhausted):
		result.Exhausted = true
		s.log.Warn("listing exhausted before target", slog.Int("found", len(ids)), slog.Any("error", err))
	case err != nil:
		s.errs.Record(err)
		s.setState(StateDone)
		return nil, fmt.Errorf("discover book ids: %w", err)
	}
	result.Discovered = len(ids)
	s.log.Info("found book ids", slog.Int("count", len(ids)), slog.Int("target", s.cfg.TargetCount))

	s.setState(StateExtracting)
	workers := min(max(s.cfg.Workers, 1), len(ids))
	for len(clients) < workers {
		c, err := s.newClient(ctx)
		if err != nil {
			s.setState(StateDone)
			return s.finish(result, 0, 0, 0), fmt.Errorf("open page client: %w", err)
		}
		clients = append(clients, c)
	}

	var rows, empty, navFails atomic.Int64
	counters := itemCounters{rows: &rows, empty: &empty, navFails: &navFails}

	indices := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(indices)
		for i := range ids {
			select {
			case indices <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for _, client := range clients[:workers] {
		g.Go(func() error {
			for i := range indices {
				if err := s.processItem(gctx, client, p, i, ids, counters); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = g.Wait()
	s.setState(StateDone)
	s.finish(result, rows.Load(), empty.Load(), navFails.Load())
	if err != nil {
		return result, err
	}
	return result, nil
}

type itemCounters struct {
	rows     *atomic.Int64
	empty    *atomic.Int64
	navFails *atomic.Int64
}

// processItem handles one identifier. It returns an error only when the run
// must stop: the context is done or the pipeline rejected the row.
func (s *Scraper) processItem(ctx context.Context, client page.Client, p *pipeline.Pipeline, index int, ids []models.BookID, counters itemCounters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := ids[index]
	url := s.cfg.DetailURL(id)
	log := s.log.With(slog.String("url", url))
	log.Info("processing book", slog.String("progress", fmt.Sprintf("%d/%d", index+1, len(ids))))

	var book *models.Book
	start := time.Now()
	if err := client.Navigate(ctx, url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		category := s.errs.Record(err)
		counters.navFails.Add(1)
		log.Warn("failed to load book page", slog.String("category", category), slog.Any("error", err))
		book = models.EmptyBook(id, url)
	} else {
		s.Metrics.ObserveNavigation("detail", time.Since(start))
		book = s.extractor.Extract(ctx, client, url)
		book.ID = id
		book.URL = url
	}

	// A record cut short by cancellation is not written.
	if err := ctx.Err(); err != nil {
		return err
	}

	outcome := recordOutcome(book)
	s.Metrics.IncRecord(outcome)

	if err := p.Process(ctx, index, book); err != nil {
		return fmt.Errorf("write book %s: %w", id, err)
	}
	s.Metrics.IncRows()
	counters.rows.Add(1)
	if outcome == "empty" {
		counters.empty.Add(1)
	}

	title := book.Title
	if title == "" {
		title = "<empty>"
	}
	log.Info("book added", slog.String("title", title))
	return nil
}

func (s *Scraper) finish(result *models.RunResult, rows, empty, navFails int64) *models.RunResult {
	result.EndTime = time.Now()
	result.RowsWritten = int(rows)
	result.EmptyRows = int(empty)
	result.NavigationFails = int(navFails)
	result.ErrorsByType = s.errs.Snapshot()
	return result
}

func recordOutcome(book *models.Book) string {
	switch {
	case book.Empty():
		return "empty"
	case parser.ValidateBook(book) == nil && book.Pages != nil && book.RatingsCount != nil && len(book.Genres) > 0:
		return "complete"
	default:
		return "partial"
	}
}
