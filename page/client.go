// Package page provides the "render and query a page" capability used by
// the crawler, with a headless Chrome backend and a static HTML backend.
package page

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
)

// Client drives a single page session. Implementations are not safe for
// concurrent use; the crawler gives each worker its own Client.
type Client interface {
	// Navigate loads url, returning a NavigationError on failure.
	Navigate(ctx context.Context, url string) error
	// WaitUntilReady blocks until document.readyState is "complete".
	WaitUntilReady(ctx context.Context, timeout time.Duration) error
	// WaitForElement blocks until selector matches an element.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error

	// QueryText returns the trimmed text of the first match or a NotFoundError.
	QueryText(ctx context.Context, selector string) (string, error)
	// QueryAttribute returns attr of the first match or a NotFoundError.
	QueryAttribute(ctx context.Context, selector, attr string) (string, error)
	// QueryAllText returns the non-empty trimmed texts of every match.
	QueryAllText(ctx context.Context, selector string) ([]string, error)
	// QueryAllAttribute returns the non-empty values of attr for every match.
	QueryAllAttribute(ctx context.Context, selector, attr string) ([]string, error)

	// Click dispatches a programmatic click on the first match.
	Click(ctx context.Context, selector string) error
	// ScrollToBottom scrolls the full page so lazy content renders.
	ScrollToBottom(ctx context.Context) error
	// ExecuteScript evaluates script in the page and decodes its value into result.
	ExecuteScript(ctx context.Context, script string, result any) error

	Close() error
}

// Factory creates a new Client. The crawler calls it once per worker.
type Factory func(ctx context.Context) (Client, error)

// NewFactory returns a Factory for the backend named in cfg.
func NewFactory(cfg *config.Config) (Factory, error) {
	switch cfg.Backend {
	case config.BackendChrome:
		return func(ctx context.Context) (Client, error) {
			return NewBrowser(ctx, BrowserOptionsFromConfig(cfg))
		}, nil
	case config.BackendStatic:
		return func(ctx context.Context) (Client, error) {
			return NewStatic(StaticOptionsFromConfig(cfg))
		}, nil
	default:
		return nil, fmt.Errorf("unknown page backend %q", cfg.Backend)
	}
}

// IsXPath reports whether selector should be evaluated as XPath.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

func filterEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
