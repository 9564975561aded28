package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending rows do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: timed out draining pending rows")
)

var drainTimeout = 30 * time.Second

// Sink receives one record at a time. Write returns once the row is durable.
type Sink interface {
	Write(book *models.Book) error
	Close() error
	Validate() error
}

type job struct {
	index  int
	book   *models.Book
	result chan error
}

// Pipeline serialises records from any number of producers into a Sink.
// Rows are written strictly in index order starting at zero.
type Pipeline struct {
	sink Sink
	jobs chan job
	done chan struct{}
	log  *slog.Logger

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	// intake is held for reading around every send on jobs and for
	// writing while jobs is closed, so no send can race the close.
	intake    sync.RWMutex
	accepting bool

	startOnce    sync.Once
	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing to sink.
func NewPipeline(sink Sink) *Pipeline {
	return &Pipeline{
		sink:      sink,
		jobs:      make(chan job, 64),
		done:      make(chan struct{}),
		log:       slog.Default().With(slog.String("component", "pipeline")),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
		accepting: true,
	}
}

// Start launches the writer goroutine. Extra calls are no-ops.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		go p.writer()
	})
}

// Process submits the record for position index and blocks until it has
// been written, the write failed, or ctx is done.
func (p *Pipeline) Process(ctx context.Context, index int, book *models.Book) error {
	if book == nil {
		return fmt.Errorf("pipeline: nil record at index %d", index)
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	j := job{index: index, book: book, result: make(chan error, 1)}
	if err := p.enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for queued ones to be written.
// The sink itself is left open.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.Start()
	p.stopIntake()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		return ErrPipelineCloseTimeout
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m := p.GetMetrics()
				p.log.Info("pipeline progress",
					slog.Int64("processed", m["processed_books"].(int64)),
					slog.Int64("empty", m["empty_books"].(int64)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) writer() {
	defer close(p.done)

	pending := make(map[int]job)
	next := 0
	var failed error

	for j := range p.jobs {
		if failed != nil {
			j.result <- failed
			continue
		}
		if _, dup := pending[j.index]; dup || j.index < next {
			j.result <- fmt.Errorf("pipeline: index %d submitted twice", j.index)
			continue
		}
		pending[j.index] = j

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			err := p.write(ready.book)
			ready.result <- err
			if err != nil {
				failed = err
				p.setErr(err)
				for idx, waiting := range pending {
					waiting.result <- err
					delete(pending, idx)
				}
				break
			}
		}
	}

	if len(pending) > 0 {
		p.log.Warn("dropping rows queued behind a missing index",
			slog.Int("next_index", next),
			slog.Int("dropped", len(pending)),
		)
	}
	for _, waiting := range pending {
		waiting.result <- ErrPipelineClosed
	}
}

func (p *Pipeline) write(book *models.Book) error {
	if book.ScrapedAt.IsZero() {
		book.ScrapedAt = time.Now()
	}
	if err := parser.ValidateBook(book); err != nil {
		p.metrics.addValidation("incomplete_record")
	}

	if err := p.sink.Write(book); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	p.metrics.incrementProcessed(book.Empty())
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, j job) error {
	p.intake.RLock()
	defer p.intake.RUnlock()
	if !p.accepting {
		return ErrPipelineClosed
	}

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- j:
		return nil
	}
}

// stopIntake closes jobs once no send can still be in flight. The writer
// then drains whatever is buffered.
func (p *Pipeline) stopIntake() {
	p.signalShutdown()

	p.intake.Lock()
	p.accepting = false
	p.intake.Unlock()

	p.closeOnce.Do(func() {
		close(p.jobs)
	})
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.stopIntake()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	empty      int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed(empty bool) {
	m.mu.Lock()
	m.processed++
	if empty {
		m.empty++
	}
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"empty_books":       m.empty,
		"validation_errors": copyValidation,
	}
}
