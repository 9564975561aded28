package page

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
)

const detailHTML = `<html><body>
<h1 data-testid="bookTitle">  The   Hobbit </h1>
<span class="ContributorLink__name">J.R.R. Tolkien</span>
<span class="ContributorLink__name"> </span>
<span class="ContributorLink__name">Christopher Tolkien</span>
<div data-testid="genresList">
  <a class="genre" href="/genres/fantasy">Fantasy</a>
  <a class="genre" href="">Classics</a>
  <button><span>...more</span></button>
</div>
<p>366 pages, Paperback</p>
</body></html>`

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func newTestStatic(t *testing.T, transport *httpmock.MockTransport) *Static {
	t.Helper()
	s, err := NewStatic(StaticOptions{
		UserAgent:      "test-agent",
		RequestTimeout: time.Second,
		CacheSize:      4,
		Transport:      transport,
	})
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStaticQueries(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/book/show/5907", htmlResponder(detailHTML))

	ctx := context.Background()
	s := newTestStatic(t, transport)
	if err := s.Navigate(ctx, "http://example.test/book/show/5907"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := s.WaitUntilReady(ctx, time.Second); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := s.WaitForElement(ctx, `h1[data-testid="bookTitle"]`, time.Second); err != nil {
		t.Fatalf("wait for title: %v", err)
	}

	title, err := s.QueryText(ctx, `h1[data-testid="bookTitle"]`)
	if err != nil {
		t.Fatalf("query title: %v", err)
	}
	if title != "The Hobbit" {
		t.Fatalf("title = %q, want %q", title, "The Hobbit")
	}

	authors, err := s.QueryAllText(ctx, ".ContributorLink__name")
	if err != nil {
		t.Fatalf("query authors: %v", err)
	}
	if diff := cmp.Diff([]string{"J.R.R. Tolkien", "Christopher Tolkien"}, authors); diff != "" {
		t.Fatalf("authors mismatch (-want +got):\n%s", diff)
	}

	hrefs, err := s.QueryAllAttribute(ctx, "a.genre", "href")
	if err != nil {
		t.Fatalf("query hrefs: %v", err)
	}
	if diff := cmp.Diff([]string{"/genres/fantasy"}, hrefs); diff != "" {
		t.Fatalf("hrefs mismatch (-want +got):\n%s", diff)
	}

	href, err := s.QueryAttribute(ctx, "a.genre", "href")
	if err != nil || href != "/genres/fantasy" {
		t.Fatalf("QueryAttribute = %q, %v", href, err)
	}

	none, err := s.QueryAllText(ctx, ".missing")
	if err != nil {
		t.Fatalf("query missing: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %v", none)
	}
}

func TestStaticXPath(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/book", htmlResponder(detailHTML))

	ctx := context.Background()
	s := newTestStatic(t, transport)
	if err := s.Navigate(ctx, "http://example.test/book"); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	showMore := `//div[@data-testid="genresList"]//button[.//span[contains(text(), "more")]]`
	if err := s.WaitForElement(ctx, showMore, time.Second); err != nil {
		t.Fatalf("wait for show more: %v", err)
	}
	if err := s.Click(ctx, showMore); err != nil {
		t.Fatalf("click: %v", err)
	}

	text, err := s.QueryText(ctx, "//p")
	if err != nil || text != "366 pages, Paperback" {
		t.Fatalf("xpath text = %q, %v", text, err)
	}
}

func TestStaticErrors(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/book", htmlResponder(detailHTML))
	transport.RegisterResponder("GET", "http://example.test/gone", httpmock.NewStringResponder(http.StatusNotFound, ""))

	ctx := context.Background()
	s := newTestStatic(t, transport)

	if err := s.WaitUntilReady(ctx, time.Second); !IsTimeout(err) {
		t.Fatalf("ready before navigate: expected timeout, got %v", err)
	}

	var navErr NavigationError
	if err := s.Navigate(ctx, "http://example.test/gone"); !errors.As(err, &navErr) {
		t.Fatalf("expected NavigationError, got %v", err)
	}

	if err := s.Navigate(ctx, "http://example.test/book"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := s.WaitForElement(ctx, ".absent", 10*time.Millisecond); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := s.QueryText(ctx, ".absent"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Click(ctx, ".absent"); !IsNotFound(err) {
		t.Fatalf("expected not found on click, got %v", err)
	}
	if err := s.ExecuteScript(ctx, "1 + 1", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStaticCachesDocuments(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/book", htmlResponder(detailHTML))

	ctx := context.Background()
	s := newTestStatic(t, transport)
	for i := 0; i < 3; i++ {
		if err := s.Navigate(ctx, "http://example.test/book"); err != nil {
			t.Fatalf("navigate %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1", got)
	}
}

func TestStaticNavigateAfterClose(t *testing.T) {
	s := newTestStatic(t, httpmock.NewMockTransport())
	s.Close()
	var navErr NavigationError
	if err := s.Navigate(context.Background(), "http://example.test/book"); !errors.As(err, &navErr) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed NavigationError, got %v", err)
	}
}

func TestIsXPath(t *testing.T) {
	tests := map[string]bool{
		"//div[@id='x']":       true,
		"(//a)[1]":             true,
		"  /html/body":         true,
		"a.bookTitle":          false,
		`h1[data-testid="t"]`: false,
	}
	for selector, want := range tests {
		if got := IsXPath(selector); got != want {
			t.Errorf("IsXPath(%q) = %v, want %v", selector, got, want)
		}
	}
}

func TestScriptsEscapeSelectors(t *testing.T) {
	script := firstTextScript(`a[title="it's \"quoted\""]`)
	if !strings.Contains(script, `"a[title=\"it's \\\"quoted\\\"\"]"`) {
		t.Fatalf("selector not JSON-escaped in script:\n%s", script)
	}
	if !strings.Contains(clickScript("//button"), ", true)") {
		t.Fatalf("xpath flag not set for xpath selector")
	}
	if !strings.Contains(allTextScript("p"), ", false)") {
		t.Fatalf("xpath flag set for css selector")
	}
}
