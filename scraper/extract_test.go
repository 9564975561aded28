package scraper

import (
	"context"
	"testing"

	"github.com/aluiziolira/bookcrawl/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const bookURL = "http://example.test/book/show/1885"

func extractFrom(t *testing.T, p *fakePage) (*models.Book, *fakeClient, *Extractor) {
	t.Helper()
	cfg := testConfig()
	site := newFakeSite()
	site.add(bookURL, p)

	c, _ := site.factory()(context.Background())
	client := c.(*fakeClient)
	if err := client.Navigate(context.Background(), bookURL); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	e := NewExtractor(cfg, nil)
	return e.Extract(context.Background(), client, bookURL), client, e
}

func ptr[T any](v T) *T { return &v }

var ignoreScrapedAt = cmpopts.IgnoreFields(models.Book{}, "ScrapedAt")

func TestExtractCompleteRecord(t *testing.T) {
	cfg := testConfig()
	book, client, _ := extractFrom(t, detailPage(cfg, "  Pride and\n Prejudice "))

	want := &models.Book{
		Title:        "Pride and Prejudice",
		Author:       "Jane Austen, Anna Quindlen",
		Rating:       ptr(4.28),
		Genres:       []string{"Classics", "Fiction", "Romance"},
		Pages:        ptr(279),
		RatingsCount: ptr(4123456),
	}
	if diff := cmp.Diff(want, book, ignoreScrapedAt); diff != "" {
		t.Fatalf("book mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{cfg.Selectors.ShowMore}, client.clicks); diff != "" {
		t.Fatalf("clicks mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFailuresYieldEmptyRecord(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name     string
		mutate   func(p *fakePage)
		category string
	}{
		{
			name:     "title never appears",
			mutate:   func(p *fakePage) { delete(p.text, cfg.Selectors.Title) },
			category: "timeout",
		},
		{
			name:     "rating missing",
			mutate:   func(p *fakePage) { delete(p.text, cfg.Selectors.Rating) },
			category: "not_found",
		},
		{
			name:     "rating unparseable",
			mutate:   func(p *fakePage) { p.text[cfg.Selectors.Rating] = []string{"n/a"} },
			category: "parse",
		},
		{
			name:     "rating not a number",
			mutate:   func(p *fakePage) { p.text[cfg.Selectors.Rating] = []string{"NaN"} },
			category: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := detailPage(cfg, "Emma")
			tt.mutate(p)

			book, _, e := extractFrom(t, p)
			if book == nil {
				t.Fatalf("expected a record, got nil")
			}
			if !book.Empty() {
				t.Fatalf("expected empty record, got %+v", book)
			}
			if book.URL != bookURL {
				t.Fatalf("url = %q, want %q", book.URL, bookURL)
			}
			if got := e.errs.Snapshot()[tt.category]; got != 1 {
				t.Fatalf("errors[%s] = %d, want 1 (all: %v)", tt.category, got, e.errs.Snapshot())
			}
		})
	}
}

func TestExtractOptionalFields(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name   string
		mutate func(p *fakePage)
		check  func(t *testing.T, b *models.Book)
	}{
		{
			name:   "no ratings meta",
			mutate: func(p *fakePage) { delete(p.text, cfg.Selectors.RatingMeta) },
			check: func(t *testing.T, b *models.Book) {
				if b.RatingsCount != nil {
					t.Fatalf("ratings count = %d, want absent", *b.RatingsCount)
				}
			},
		},
		{
			name:   "ratings meta without delimiter",
			mutate: func(p *fakePage) { p.text[cfg.Selectors.RatingMeta] = []string{"no reviews yet"} },
			check: func(t *testing.T, b *models.Book) {
				if b.RatingsCount != nil {
					t.Fatalf("ratings count = %d, want absent", *b.RatingsCount)
				}
			},
		},
		{
			name:   "no page count paragraph",
			mutate: func(p *fakePage) { p.text[cfg.Selectors.Paragraph] = []string{"First published 1813"} },
			check: func(t *testing.T, b *models.Book) {
				if b.Pages != nil {
					t.Fatalf("pages = %d, want absent", *b.Pages)
				}
			},
		},
		{
			name:   "page count paragraph without number",
			mutate: func(p *fakePage) { p.text[cfg.Selectors.Paragraph] = []string{"Kindle Edition, 412 pages"} },
			check: func(t *testing.T, b *models.Book) {
				if b.Pages != nil {
					t.Fatalf("pages = %d, want absent", *b.Pages)
				}
			},
		},
		{
			name:   "no show more control",
			mutate: func(p *fakePage) { delete(p.text, cfg.Selectors.ShowMore) },
			check: func(t *testing.T, b *models.Book) {
				if len(b.Genres) != 3 {
					t.Fatalf("genres = %v, want 3 entries", b.Genres)
				}
			},
		},
		{
			name:   "no genres",
			mutate: func(p *fakePage) { delete(p.text, cfg.Selectors.Genre) },
			check: func(t *testing.T, b *models.Book) {
				if len(b.Genres) != 0 {
					t.Fatalf("genres = %v, want none", b.Genres)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := detailPage(cfg, "Persuasion")
			tt.mutate(p)

			book, _, _ := extractFrom(t, p)
			if book.Title != "Persuasion" || book.Rating == nil {
				t.Fatalf("required fields lost: %+v", book)
			}
			tt.check(t, book)
		})
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	cfg := testConfig()
	site := newFakeSite()
	site.add(bookURL, detailPage(cfg, "Emma"))
	c, _ := site.factory()(context.Background())
	if err := c.Navigate(context.Background(), bookURL); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExtractor(cfg, nil)
	if book := e.Extract(ctx, c, bookURL); !book.Empty() {
		t.Fatalf("expected empty record after cancellation, got %+v", book)
	}
	if got := e.errs.Snapshot()["canceled"]; got != 1 {
		t.Fatalf("canceled errors = %d, want 1", got)
	}
}
