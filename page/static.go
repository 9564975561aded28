package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/bookcrawl/config"
	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

var errNoDocument = errors.New("no document loaded")

// StaticOptions configures the plain-HTTP client.
type StaticOptions struct {
	UserAgent      string
	RequestTimeout time.Duration
	Delay          time.Duration
	CacheSize      int
	// Transport replaces the collector's HTTP transport when set.
	Transport http.RoundTripper
}

// StaticOptionsFromConfig maps crawler configuration onto StaticOptions.
func StaticOptionsFromConfig(cfg *config.Config) StaticOptions {
	return StaticOptions{
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.RequestTimeout,
		Delay:          cfg.Delay,
		CacheSize:      cfg.CacheSize,
	}
}

// Static is a Client over server-rendered HTML. Pages are fetched with a
// colly collector and never change after loading, so waits resolve at
// once, scrolling is a no-op and scripts are unsupported.
type Static struct {
	collector *colly.Collector
	cache     *lru.Cache[string, *goquery.Document]
	limiter   *rate.Limiter

	mu       sync.Mutex
	response *colly.Response
	doc      *goquery.Document
	closed   bool
}

// NewStatic builds a Static client.
func NewStatic(opts StaticOptions) (*Static, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, *goquery.Document](size)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	if opts.RequestTimeout > 0 {
		collector.SetRequestTimeout(opts.RequestTimeout)
	}
	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	}

	s := &Static{
		collector: collector,
		cache:     cache,
		limiter:   newLimiter(opts.Delay),
	}
	collector.OnResponse(func(r *colly.Response) {
		s.response = r
	})
	return s, nil
}

func (s *Static) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NavigationError{URL: url, Err: ErrClosed}
	}
	if doc, ok := s.cache.Get(url); ok {
		s.doc = doc
		return nil
	}
	if err := waitLimiter(ctx, s.limiter); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.doc = nil
	s.response = nil
	if err := s.collector.Visit(url); err != nil {
		return NavigationError{URL: url, Err: err}
	}
	if s.response == nil {
		return NavigationError{URL: url, Err: errNoDocument}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.response.Body))
	if err != nil {
		return NavigationError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}
	s.doc = doc
	s.cache.Add(url, doc)
	return nil
}

func (s *Static) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	if _, err := s.document(); err != nil {
		return TimeoutError{Op: "ready", Timeout: timeout, Err: err}
	}
	return nil
}

// WaitForElement reports a TimeoutError immediately when selector is
// absent, since a static document cannot change.
func (s *Static) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	nodes, err := s.find(selector)
	if err != nil {
		if errors.Is(err, errNoDocument) {
			return TimeoutError{Op: "wait for", Selector: selector, Timeout: timeout, Err: err}
		}
		return err
	}
	if len(nodes) == 0 {
		return TimeoutError{Op: "wait for", Selector: selector, Timeout: timeout}
	}
	return nil
}

func (s *Static) QueryText(ctx context.Context, selector string) (string, error) {
	nodes, err := s.find(selector)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", NotFoundError{Selector: selector}
	}
	return nodeText(nodes[0]), nil
}

func (s *Static) QueryAttribute(ctx context.Context, selector, attr string) (string, error) {
	nodes, err := s.find(selector)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", NotFoundError{Selector: selector}
	}
	return htmlquery.SelectAttr(nodes[0], attr), nil
}

func (s *Static) QueryAllText(ctx context.Context, selector string) ([]string, error) {
	nodes, err := s.find(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, nodeText(n))
	}
	return filterEmpty(values), nil
}

func (s *Static) QueryAllAttribute(ctx context.Context, selector, attr string) ([]string, error) {
	nodes, err := s.find(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, htmlquery.SelectAttr(n, attr))
	}
	return filterEmpty(values), nil
}

// Click succeeds when the element exists; the document is left unchanged.
func (s *Static) Click(ctx context.Context, selector string) error {
	nodes, err := s.find(selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return NotFoundError{Selector: selector}
	}
	return nil
}

func (s *Static) ScrollToBottom(ctx context.Context) error {
	_, err := s.document()
	return err
}

func (s *Static) ExecuteScript(ctx context.Context, script string, result any) error {
	return ErrUnsupported
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	s.cache.Purge()
	return nil
}

func (s *Static) document() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, errNoDocument
	}
	return s.doc, nil
}

// find evaluates a CSS selector with goquery or an XPath one with htmlquery.
func (s *Static) find(selector string) ([]*html.Node, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	if IsXPath(selector) {
		if len(doc.Nodes) == 0 {
			return nil, nil
		}
		nodes, err := htmlquery.QueryAll(doc.Nodes[0], selector)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", selector, err)
		}
		return nodes, nil
	}
	return doc.Find(selector).Nodes, nil
}

func nodeText(n *html.Node) string {
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}
