package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/page"
)

// fakePage is a canned DOM: selector to matching texts, and selector to
// matching href values.
type fakePage struct {
	text     map[string][]string
	hrefs    map[string][]string
	readyErr error
	onReady  func()
}

func (p *fakePage) has(selector string) bool {
	return len(p.text[selector]) > 0 || len(p.hrefs[selector]) > 0
}

// fakeSite is shared by every client a test factory hands out.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]*fakePage
	navErr  map[string]error
	visited []string
	clients []*fakeClient
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: make(map[string]*fakePage), navErr: make(map[string]error)}
}

func (s *fakeSite) add(url string, p *fakePage) {
	s.pages[url] = p
}

func (s *fakeSite) factory() page.Factory {
	return func(context.Context) (page.Client, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c := &fakeClient{site: s}
		s.clients = append(s.clients, c)
		return c, nil
	}
}

func (s *fakeSite) visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

func (s *fakeSite) allClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if !c.closed {
			return false
		}
	}
	return len(s.clients) > 0
}

type fakeClient struct {
	site    *fakeSite
	current *fakePage
	clicks  []string
	closed  bool
}

func (c *fakeClient) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.site.mu.Lock()
	defer c.site.mu.Unlock()
	c.site.visited = append(c.site.visited, url)

	if err, ok := c.site.navErr[url]; ok {
		return page.NavigationError{URL: url, Err: err}
	}
	p, ok := c.site.pages[url]
	if !ok {
		return page.NavigationError{URL: url, Err: errors.New("404 Not Found")}
	}
	c.current = p
	return nil
}

func (c *fakeClient) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	if c.current != nil && c.current.onReady != nil {
		c.current.onReady()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.current == nil {
		return page.TimeoutError{Op: "ready", Timeout: timeout}
	}
	return c.current.readyErr
}

func (c *fakeClient) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.current == nil || !c.current.has(selector) {
		return page.TimeoutError{Op: "wait for", Selector: selector, Timeout: timeout}
	}
	return nil
}

func (c *fakeClient) QueryText(ctx context.Context, selector string) (string, error) {
	values, err := c.QueryAllText(ctx, selector)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", page.NotFoundError{Selector: selector}
	}
	return values[0], nil
}

func (c *fakeClient) QueryAttribute(ctx context.Context, selector, attr string) (string, error) {
	values, err := c.QueryAllAttribute(ctx, selector, attr)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", page.NotFoundError{Selector: selector}
	}
	return values[0], nil
}

func (c *fakeClient) QueryAllText(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.current == nil {
		return nil, nil
	}
	return append([]string(nil), c.current.text[selector]...), nil
}

func (c *fakeClient) QueryAllAttribute(ctx context.Context, selector, attr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if attr != "href" {
		return nil, fmt.Errorf("fake client only serves href, got %q", attr)
	}
	if c.current == nil {
		return nil, nil
	}
	return append([]string(nil), c.current.hrefs[selector]...), nil
}

func (c *fakeClient) Click(ctx context.Context, selector string) error {
	if c.current == nil || !c.current.has(selector) {
		return page.NotFoundError{Selector: selector}
	}
	c.clicks = append(c.clicks, selector)
	return nil
}

func (c *fakeClient) ScrollToBottom(ctx context.Context) error {
	return ctx.Err()
}

func (c *fakeClient) ExecuteScript(context.Context, string, any) error {
	return page.ErrUnsupported
}

func (c *fakeClient) Close() error {
	c.site.mu.Lock()
	c.closed = true
	c.site.mu.Unlock()
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ListingURL = "http://example.test/list"
	cfg.DetailURLTemplate = "http://example.test/book/show/" + config.IDPlaceholder
	cfg.TitleTimeout = 10 * time.Millisecond
	cfg.ReadyTimeout = 10 * time.Millisecond
	cfg.ShowMoreTimeout = 10 * time.Millisecond
	cfg.ListingTimeout = 10 * time.Millisecond
	return cfg
}

func listingURL(cfg *config.Config, n int) string {
	u, err := cfg.ListingPageURL(n)
	if err != nil {
		panic(err)
	}
	return u
}

func listingPage(cfg *config.Config, ids ...int) *fakePage {
	hrefs := make([]string, 0, len(ids))
	for _, id := range ids {
		hrefs = append(hrefs, fmt.Sprintf("/book/show/%d.Book_%d", id, id))
	}
	return &fakePage{hrefs: map[string][]string{cfg.Selectors.BookLink: hrefs}}
}

func detailPage(cfg *config.Config, title string) *fakePage {
	sel := cfg.Selectors
	return &fakePage{text: map[string][]string{
		sel.Title:      {title},
		sel.Author:     {"Jane Austen", "Anna Quindlen"},
		sel.Rating:     {"4.28"},
		sel.RatingMeta: {"4,123,456 ratings · 100,221 reviews"},
		sel.Genre:      {"Classics", "Fiction", "Romance"},
		sel.ShowMore:   {"...more"},
		sel.Paragraph:  {"First published 1813", "279 pages, Paperback"},
	}}
}
