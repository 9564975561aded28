package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/page"
	"github.com/aluiziolira/bookcrawl/parser"
)

// Extractor reads a Book from a client positioned on a detail page.
type Extractor struct {
	cfg  *config.Config
	log  *slog.Logger
	errs *errorCounter
}

// NewExtractor builds an Extractor.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, log: logger, errs: newErrorCounter(nil)}
}

// Extract never fails: any error yields a record with every field empty.
// Timeouts are logged separately from other failures.
func (e *Extractor) Extract(ctx context.Context, client page.Client, url string) *models.Book {
	log := e.log.With(slog.String("url", url))

	book, err := e.extract(ctx, client, log)
	if err == nil {
		return book
	}

	category := e.errs.Record(err)
	if category == "timeout" {
		log.Warn("timeout while loading book page", slog.Any("error", err))
	} else {
		log.Warn("failed to extract book page", slog.String("category", category), slog.Any("error", err))
	}
	return models.EmptyBook(0, url)
}

func (e *Extractor) extract(ctx context.Context, client page.Client, log *slog.Logger) (*models.Book, error) {
	sel := e.cfg.Selectors

	// The title is the readiness gate: without it nothing else is read.
	if err := client.WaitForElement(ctx, sel.Title, e.cfg.TitleTimeout); err != nil {
		return nil, err
	}
	if err := client.ScrollToBottom(ctx); err != nil {
		return nil, fmt.Errorf("scroll to bottom: %w", err)
	}
	if err := client.WaitUntilReady(ctx, e.cfg.ReadyTimeout); err != nil {
		return nil, err
	}
	e.expand(ctx, client, log)

	genres, err := client.QueryAllText(ctx, sel.Genre)
	if err != nil {
		return nil, fmt.Errorf("genres: %w", err)
	}
	title, err := client.QueryText(ctx, sel.Title)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	authors, err := client.QueryAllText(ctx, sel.Author)
	if err != nil {
		return nil, fmt.Errorf("authors: %w", err)
	}
	ratingText, err := client.QueryText(ctx, sel.Rating)
	if err != nil {
		return nil, fmt.Errorf("rating: %w", err)
	}
	rating, err := parser.ParseRating(ratingText)
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		Title:  parser.NormalizeText(title),
		Author: parser.JoinNames(authors),
		Rating: &rating,
		Genres: genres,
	}

	if err := e.readRatingsCount(ctx, client, book, log); err != nil {
		return nil, err
	}
	if err := e.readPages(ctx, client, book, log); err != nil {
		return nil, err
	}
	return book, nil
}

// expand clicks the "show more" control so truncated genre lists are
// complete. Pages without the control are normal.
func (e *Extractor) expand(ctx context.Context, client page.Client, log *slog.Logger) {
	selector := e.cfg.Selectors.ShowMore
	if selector == "" {
		return
	}
	err := client.WaitForElement(ctx, selector, e.cfg.ShowMoreTimeout)
	if err == nil {
		err = client.Click(ctx, selector)
	}
	if err != nil {
		log.Warn("could not expand genre list", slog.Any("error", err))
	}
}

// readRatingsCount tolerates a missing or malformed ratings line.
func (e *Extractor) readRatingsCount(ctx context.Context, client page.Client, book *models.Book, log *slog.Logger) error {
	meta, err := client.QueryText(ctx, e.cfg.Selectors.RatingMeta)
	if page.IsNotFound(err) {
		log.Debug("ratings count not present")
		return nil
	}
	if err != nil {
		return fmt.Errorf("rating meta: %w", err)
	}

	count, err := parser.ParseRatingsCount(meta, e.cfg.RatingsDelimiter)
	if err != nil {
		log.Warn("ratings count unreadable", slog.Any("error", err))
		return nil
	}
	book.RatingsCount = &count
	return nil
}

// readPages scans paragraph blocks for the page-count line.
func (e *Extractor) readPages(ctx context.Context, client page.Client, book *models.Book, log *slog.Logger) error {
	blocks, err := client.QueryAllText(ctx, e.cfg.Selectors.Paragraph)
	if err != nil {
		return fmt.Errorf("paragraphs: %w", err)
	}

	pages, found, err := parser.FindPageCount(blocks, e.cfg.PagesMarker)
	switch {
	case !found:
		log.Debug("page count not present")
	case err != nil:
		log.Warn("page count unreadable", slog.Any("error", err))
	default:
		book.Pages = &pages
	}
	return nil
}
