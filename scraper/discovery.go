package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/page"
	"github.com/aluiziolira/bookcrawl/parser"
)

// Discoverer walks the paginated listing and collects book identifiers.
type Discoverer struct {
	cfg     *config.Config
	metrics *Metrics
	log     *slog.Logger

	pages int
}

// NewDiscoverer builds a Discoverer. metrics may be nil.
func NewDiscoverer(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{cfg: cfg, metrics: metrics, log: logger}
}

// Pages returns the number of listing pages loaded by the last Discover.
func (d *Discoverer) Pages() int {
	return d.pages
}

// Discover returns at most target unique identifiers in first-seen order.
//
// Navigation and readiness failures are returned as-is: there is no useful
// partial result for a listing that cannot be read. When the listing stops
// producing new identifiers for MaxEmptyPages consecutive pages, or after
// MaxListingPages pages when set, the identifiers found so far are
// returned together with ErrListingExhausted.
func (d *Discoverer) Discover(ctx context.Context, client page.Client, target int) ([]models.BookID, error) {
	d.pages = 0
	if target <= 0 {
		return nil, nil
	}

	seen := make(map[models.BookID]struct{}, target)
	ids := make([]models.BookID, 0, target)
	emptyPages := 0

	for pageNum := 1; len(ids) < target; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit := d.cfg.MaxListingPages; limit > 0 && pageNum > limit {
			return ids, fmt.Errorf("%w: visited %d listing pages, found %d of %d", ErrListingExhausted, limit, len(ids), target)
		}

		hrefs, err := d.loadPage(ctx, client, pageNum)
		if err != nil {
			return nil, err
		}
		d.pages++

		added := 0
		for _, href := range hrefs {
			id, err := parser.ParseBookID(href, d.cfg.IDMarker)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			added++
			d.metrics.IncDiscovered()
			if len(ids) >= target {
				break
			}
		}

		d.log.Info("listing page processed",
			slog.Int("page", pageNum),
			slog.Int("new_ids", added),
			slog.Int("total_ids", len(ids)),
		)

		if added > 0 {
			emptyPages = 0
			continue
		}
		emptyPages++
		if emptyPages >= d.cfg.MaxEmptyPages {
			return ids, fmt.Errorf("%w: %d consecutive pages without new identifiers, found %d of %d",
				ErrListingExhausted, emptyPages, len(ids), target)
		}
	}

	return ids, nil
}

func (d *Discoverer) loadPage(ctx context.Context, client page.Client, pageNum int) ([]string, error) {
	url, err := d.cfg.ListingPageURL(pageNum)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := client.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("listing page %d: %w", pageNum, err)
	}
	d.metrics.ObserveNavigation("listing", time.Since(start))

	if err := client.WaitUntilReady(ctx, d.cfg.ListingTimeout); err != nil {
		return nil, fmt.Errorf("listing page %d: %w", pageNum, err)
	}

	hrefs, err := client.QueryAllAttribute(ctx, d.cfg.Selectors.BookLink, "href")
	if err != nil {
		return nil, fmt.Errorf("listing page %d links: %w", pageNum, err)
	}
	return hrefs, nil
}
