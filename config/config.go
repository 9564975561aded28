package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/bookcrawl/models"
)

// IDPlaceholder marks where the book identifier goes in DetailURLTemplate.
const IDPlaceholder = "{book_id}"

// Backends understood by page.NewClient.
const (
	BackendChrome = "chrome"
	BackendStatic = "static"
)

// Selectors locates the page elements the crawler reads. A selector that
// starts with "/" or "(" is an XPath expression, anything else is CSS.
type Selectors struct {
	Title      string
	Genre      string
	Author     string
	Rating     string
	RatingMeta string
	ShowMore   string // optional
	Paragraph  string
	BookLink   string
}

// Config holds crawler configuration.
type Config struct {
	ListingURL        string
	DetailURLTemplate string
	Selectors         Selectors
	UserAgent         string
	Fields            []string
	OutputFile        string
	OutputFormat      string // csv, json, dual, or sqlite

	TargetCount     int
	Workers         int
	MaxEmptyPages   int
	MaxListingPages int // 0 means unbounded

	Backend      string // chrome or static
	Headless     bool
	WindowWidth  int
	WindowHeight int
	Delay        time.Duration

	ListingTimeout  time.Duration
	TitleTimeout    time.Duration
	ReadyTimeout    time.Duration
	ShowMoreTimeout time.Duration
	RequestTimeout  time.Duration
	CacheSize       int

	IDMarker         string
	RatingsDelimiter string
	PagesMarker      string

	Verbose     bool
	MetricsAddr string
}

// DefaultConfig returns settings for the Goodreads "Best Books Ever" list.
func DefaultConfig() *Config {
	return &Config{
		ListingURL:        "https://www.goodreads.com/list/show/1.Best_Books_Ever",
		DetailURLTemplate: "https://www.goodreads.com/book/show/" + IDPlaceholder,
		Selectors: Selectors{
			Title:      `h1[data-testid="bookTitle"]`,
			Genre:      `[data-testid="genresList"] .BookPageMetadataSection__genreButton .Button__labelItem`,
			Author:     `.BookPageMetadataSection__contributor .ContributorLink__name`,
			Rating:     `.BookPageMetadataSection .RatingStatistics__rating`,
			RatingMeta: `.BookPageMetadataSection [data-testid="ratingsCount"]`,
			ShowMore:   `//div[@data-testid="genresList"]//button[.//span[contains(text(), "more")]]`,
			Paragraph:  "p",
			BookLink:   "a.bookTitle",
		},
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Fields:       append([]string(nil), models.DefaultFields...),
		OutputFile:   "data/books.csv",
		OutputFormat: "csv",

		TargetCount:     150,
		Workers:         1,
		MaxEmptyPages:   3,
		MaxListingPages: 0,

		Backend:      BackendChrome,
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
		Delay:        0,

		ListingTimeout:  10 * time.Second,
		TitleTimeout:    10 * time.Second,
		ReadyTimeout:    5 * time.Second,
		ShowMoreTimeout: 3 * time.Second,
		RequestTimeout:  30 * time.Second,
		CacheSize:       64,

		IDMarker:         "/book/show/",
		RatingsDelimiter: "ratings",
		PagesMarker:      "pages",
	}
}

// DetailURL expands the detail template for id.
func (c *Config) DetailURL(id models.BookID) string {
	return strings.ReplaceAll(c.DetailURLTemplate, IDPlaceholder, id.String())
}

// ListingPageURL returns the listing URL for a 1-based page number.
func (c *Config) ListingPageURL(page int) (string, error) {
	u, err := url.Parse(c.ListingURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListingURL == "" {
		return fmt.Errorf("listing URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.ListingURL)
	if err != nil {
		return fmt.Errorf("invalid listing URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("listing URL must include a host")
	}
	if !strings.Contains(c.DetailURLTemplate, IDPlaceholder) {
		return fmt.Errorf("detail URL template must contain %s", IDPlaceholder)
	}

	required := map[string]string{
		"title":       c.Selectors.Title,
		"genre":       c.Selectors.Genre,
		"author":      c.Selectors.Author,
		"rating":      c.Selectors.Rating,
		"rating_meta": c.Selectors.RatingMeta,
		"tag_p":       c.Selectors.Paragraph,
		"book_link":   c.Selectors.BookLink,
	}
	for name, selector := range required {
		if strings.TrimSpace(selector) == "" {
			return fmt.Errorf("selector %s cannot be empty", name)
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("output fields cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, field := range c.Fields {
		if !models.KnownField(field) {
			return fmt.Errorf("unknown output field %q", field)
		}
		if _, dup := seen[field]; dup {
			return fmt.Errorf("duplicate output field %q", field)
		}
		seen[field] = struct{}{}
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}

	if c.TargetCount <= 0 {
		return fmt.Errorf("target count must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxEmptyPages <= 0 {
		return fmt.Errorf("max empty pages must be positive")
	}
	if c.MaxListingPages < 0 {
		return fmt.Errorf("max listing pages cannot be negative")
	}

	if c.Backend != BackendChrome && c.Backend != BackendStatic {
		return fmt.Errorf("backend must be %s or %s", BackendChrome, BackendStatic)
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"listing timeout", c.ListingTimeout},
		{"title timeout", c.TitleTimeout},
		{"ready timeout", c.ReadyTimeout},
		{"show more timeout", c.ShowMoreTimeout},
		{"request timeout", c.RequestTimeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}

	if c.IDMarker == "" {
		return fmt.Errorf("id marker cannot be empty")
	}
	if c.RatingsDelimiter == "" {
		return fmt.Errorf("ratings delimiter cannot be empty")
	}
	if c.PagesMarker == "" {
		return fmt.Errorf("pages marker cannot be empty")
	}

	return nil
}
