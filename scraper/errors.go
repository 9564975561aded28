package scraper

import (
	"context"
	"errors"
	"sync"

	"github.com/aluiziolira/bookcrawl/page"
	"github.com/aluiziolira/bookcrawl/parser"
)

// ErrListingExhausted is returned with a partial identifier list when the
// listing stops yielding new identifiers before the target is reached.
var ErrListingExhausted = errors.New("scraper: listing exhausted before target count")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var timeout page.TimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var notFound page.NotFoundError
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var parseErr parser.ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	var navErr page.NavigationError
	if errors.As(err, &navErr) {
		return "navigation"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "other"
}

// errorCounter tallies classified errors for the run summary and metrics.
type errorCounter struct {
	metrics *Metrics

	mu     sync.Mutex
	counts map[string]int
}

func newErrorCounter(metrics *Metrics) *errorCounter {
	return &errorCounter{metrics: metrics, counts: make(map[string]int)}
}

// Record classifies err, counts it and returns its label.
func (c *errorCounter) Record(err error) string {
	label := errorTypeLabel(err)
	c.mu.Lock()
	c.counts[label]++
	c.mu.Unlock()
	c.metrics.IncError(label)
	return label
}

func (c *errorCounter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
