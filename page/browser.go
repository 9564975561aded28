package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// BrowserOptions configures the headless Chrome session.
type BrowserOptions struct {
	UserAgent      string
	Headless       bool
	WindowWidth    int
	WindowHeight   int
	ExecPath       string
	Delay          time.Duration
	RequestTimeout time.Duration
}

// BrowserOptionsFromConfig maps crawler configuration onto BrowserOptions.
func BrowserOptionsFromConfig(cfg *config.Config) BrowserOptions {
	execPath, _ := config.EnvString("CHROME_PATH")
	return BrowserOptions{
		UserAgent:      cfg.UserAgent,
		Headless:       cfg.Headless,
		WindowWidth:    cfg.WindowWidth,
		WindowHeight:   cfg.WindowHeight,
		ExecPath:       execPath,
		Delay:          cfg.Delay,
		RequestTimeout: cfg.RequestTimeout,
	}
}

// Browser is a Client backed by one Chrome tab driven over CDP.
type Browser struct {
	opts    BrowserOptions
	limiter *rate.Limiter

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewBrowser launches Chrome and opens a tab. The browser lives until
// Close is called or parent is cancelled.
func NewBrowser(parent context.Context, opts BrowserOptions) (*Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp", slog.String("message", fmt.Sprintf(format, args...)))
		}),
	)

	b := &Browser{
		opts:        opts,
		limiter:     newLimiter(opts.Delay),
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}

	if err := chromedp.Run(ctx, chromedp.EmulateViewport(int64(opts.WindowWidth), int64(opts.WindowHeight))); err != nil {
		b.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return b, nil
}

// Navigate loads url and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := waitLimiter(ctx, b.limiter); err != nil {
		return err
	}
	if err := b.run(ctx, b.opts.RequestTimeout, chromedp.Navigate(url)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return NavigationError{URL: url, Err: err}
	}
	return nil
}

// WaitUntilReady polls document.readyState inside the page.
func (b *Browser) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	var ready bool
	err := b.run(ctx, timeout, chromedp.Poll(readyStateScript, &ready,
		chromedp.WithPollingInterval(100*time.Millisecond),
		chromedp.WithPollingTimeout(timeout),
	))
	return b.waitErr(ctx, err, "ready", "", timeout)
}

// WaitForElement waits until selector is present in the DOM.
func (b *Browser) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	by := chromedp.ByQuery
	if IsXPath(selector) {
		by = chromedp.BySearch
	}
	err := b.run(ctx, timeout, chromedp.WaitReady(selector, by))
	return b.waitErr(ctx, err, "wait for", selector, timeout)
}

func (b *Browser) QueryText(ctx context.Context, selector string) (string, error) {
	return b.first(ctx, selector, firstTextScript(selector))
}

func (b *Browser) QueryAttribute(ctx context.Context, selector, attr string) (string, error) {
	return b.first(ctx, selector, firstAttrScript(selector, attr))
}

func (b *Browser) QueryAllText(ctx context.Context, selector string) ([]string, error) {
	return b.all(ctx, allTextScript(selector))
}

func (b *Browser) QueryAllAttribute(ctx context.Context, selector, attr string) ([]string, error) {
	return b.all(ctx, allAttrScript(selector, attr))
}

// Click runs element.click() in the page instead of a pointer event.
func (b *Browser) Click(ctx context.Context, selector string) error {
	var clicked bool
	if err := b.ExecuteScript(ctx, clickScript(selector), &clicked); err != nil {
		return err
	}
	if !clicked {
		return NotFoundError{Selector: selector}
	}
	return nil
}

func (b *Browser) ScrollToBottom(ctx context.Context) error {
	var done bool
	return b.ExecuteScript(ctx, scrollToEndScript, &done)
}

// ExecuteScript evaluates script. A nil result discards the value.
func (b *Browser) ExecuteScript(ctx context.Context, script string, result any) error {
	if result == nil {
		var discard json.RawMessage
		result = &discard
	}
	if err := b.run(ctx, b.opts.RequestTimeout, chromedp.Evaluate(script, result)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
		if errors.Is(b.closeErr, context.Canceled) {
			b.closeErr = nil
		}
	})
	return b.closeErr
}

func (b *Browser) first(ctx context.Context, selector, script string) (string, error) {
	var res firstResult
	if err := b.ExecuteScript(ctx, script, &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", NotFoundError{Selector: selector}
	}
	return res.Value, nil
}

func (b *Browser) all(ctx context.Context, script string) ([]string, error) {
	var values []string
	if err := b.ExecuteScript(ctx, script, &values); err != nil {
		return nil, err
	}
	return filterEmpty(values), nil
}

// run executes actions on the tab bounded by timeout and by ctx.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *Browser) waitErr(ctx context.Context, err error, op, selector string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout) {
		return TimeoutError{Op: op, Selector: selector, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("%s %q: %w", op, selector, err)
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
