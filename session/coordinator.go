// Package session serializes all browser work through one coordinator. A
// single browser process serves every request; callers queue in strict FIFO
// order and at most one operation drives the browser at any moment.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/lookout/browser"
	"github.com/use-agent/lookout/detect"
	"github.com/use-agent/lookout/extract"
	"github.com/use-agent/lookout/models"
)

// Driver is the browser surface the coordinator needs. *browser.Handle
// satisfies it; tests substitute a fake.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (*browser.Snapshot, error)
	SubmitSearch(ctx context.Context, boxSelector, query string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Alive() bool
	Dispose()
}

// Identity is the per-launch network persona. Rotated round-robin on every
// relaunch so a burned proxy or user agent is not reused immediately.
type Identity struct {
	Proxy     string
	UserAgent string
}

// DriverFactory launches a browser under the given identity.
type DriverFactory func(Identity) (Driver, error)

// Options tunes coordinator behavior. Zero values are replaced by the
// defaults below.
type Options struct {
	// QueueTimeout bounds how long a caller waits for its FIFO turn.
	QueueTimeout time.Duration
	// OpTimeout bounds one whole operation once it holds the browser.
	OpTimeout time.Duration
	// NavTimeout bounds a single page navigation within an operation.
	NavTimeout time.Duration
	// RetryBudget is the number of primary-engine attempts before fallback.
	RetryBudget int
	// BackoffBase scales the inter-attempt delay; attempt n sleeps n*base.
	BackoffBase time.Duration
	// Proxies is the rotation pool. Empty means direct connections.
	Proxies []string
	// ScreenshotDir, when set, receives a PNG of the final failed page.
	ScreenshotDir string
	// HTTPFallback enables the TLS-fingerprinted plain-HTTP scrape fallback.
	HTTPFallback bool
}

func (o Options) withDefaults() Options {
	if o.QueueTimeout <= 0 {
		o.QueueTimeout = 30 * time.Second
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 90 * time.Second
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 20 * time.Second
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	return o
}

// Coordinator owns the browser and the admission queue.
type Coordinator struct {
	factory DriverFactory
	opts    Options
	fetcher *httpFetcher

	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}

	driver     Driver
	relaunches int

	alive atomic.Bool
}

// NewCoordinator wires a coordinator around a driver factory. The browser is
// launched lazily on first use; call Warm to launch eagerly.
func NewCoordinator(factory DriverFactory, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		factory: factory,
		opts:    opts,
		fetcher: newHTTPFetcher(),
	}
}

// Warm launches the browser ahead of the first request.
func (c *Coordinator) Warm() error {
	if err := c.acquire(context.Background()); err != nil {
		return err
	}
	defer c.release()
	_, err := c.ensureDriver()
	return err
}

// Alive reports whether the managed browser is currently running. False
// between a failure and the next relaunch.
func (c *Coordinator) Alive() bool {
	return c.alive.Load()
}

// Close disposes the browser. In-flight operations finish first because
// Close waits its own turn in the queue.
func (c *Coordinator) Close() {
	if err := c.acquire(context.Background()); err != nil {
		return
	}
	defer c.release()
	c.reset()
}

// acquire claims exclusive browser access, honoring arrival order. It blocks
// until the slot is granted, the queue timeout fires, or ctx is done.
func (c *Coordinator) acquire(ctx context.Context) error {
	c.mu.Lock()
	if !c.busy && len(c.waiters) == 0 {
		c.busy = true
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	timer := time.NewTimer(c.opts.QueueTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		// Slot ownership transferred by release; busy is already ours.
		return nil
	case <-timer.C:
		return c.withdraw(ch, models.NewOpError(models.ErrCodeQueueTimeout,
			fmt.Sprintf("no browser slot within %s", c.opts.QueueTimeout), nil))
	case <-ctx.Done():
		return c.withdraw(ch, models.NewOpError(models.ErrCodeQueueTimeout,
			"canceled while waiting for browser slot", ctx.Err()))
	}
}

// withdraw removes ch from the queue after a timeout or cancellation. If the
// grant raced ahead of the withdrawal the slot is already ours, so it is
// passed straight to the next waiter before reporting failure.
func (c *Coordinator) withdraw(ch chan struct{}, cause error) error {
	c.mu.Lock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.mu.Unlock()
			return cause
		}
	}
	c.mu.Unlock()

	<-ch
	c.release()
	return cause
}

// release hands the slot to the oldest waiter, or clears it when the queue
// is empty. Closing the waiter's channel transfers busy ownership directly;
// no waiter can be overtaken by a fresh arrival.
func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) > 0 {
		ch := c.waiters[0]
		c.waiters = c.waiters[1:]
		close(ch)
		return
	}
	c.busy = false
}

// ensureDriver returns the live driver, launching one under the next
// identity when none is running. Caller must hold the busy slot.
func (c *Coordinator) ensureDriver() (Driver, error) {
	if c.driver != nil && c.driver.Alive() {
		return c.driver, nil
	}
	if c.driver != nil {
		c.driver.Dispose()
		c.driver = nil
		c.alive.Store(false)
	}

	id := c.identity()
	drv, err := c.factory(id)
	if err != nil {
		return nil, err
	}
	c.driver = drv
	c.alive.Store(true)
	slog.Info("browser session started",
		"relaunch", c.relaunches, "proxy", id.Proxy != "", "user_agent", id.UserAgent)
	return drv, nil
}

// identity picks the proxy and user agent for the current relaunch counter.
func (c *Coordinator) identity() Identity {
	id := Identity{UserAgent: browser.UserAgent(c.relaunches)}
	if len(c.opts.Proxies) > 0 {
		id.Proxy = c.opts.Proxies[c.relaunches%len(c.opts.Proxies)]
	}
	return id
}

// reset disposes the current browser and advances the identity rotation.
// The next ensureDriver launches fresh.
func (c *Coordinator) reset() {
	if c.driver != nil {
		c.driver.Dispose()
		c.driver = nil
	}
	c.alive.Store(false)
	c.relaunches++
}

// Search runs a serialized search operation. See search.go for the engine
// strategy flow.
func (c *Coordinator) Search(ctx context.Context, query string, engine models.Engine, num int) (*models.SearchResultSet, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	set, err := c.runSearch(opCtx, query, engine, num)
	if err != nil && opCtx.Err() != nil {
		// The operation deadline fired mid-flight; the page state is
		// unknowable, so the browser does not survive into the next turn.
		c.reset()
	}
	return set, err
}

// Hosts that never yield scrapeable content without a login wall.
var socialHosts = []string{
	"twitter.com", "x.com", "facebook.com", "instagram.com",
	"tiktok.com", "snapchat.com", "linkedin.com",
}

func isSocialHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, s := range socialHosts {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// Scrape navigates to the URL, verifies the page is not a challenge, and
// runs the extraction pipeline. A sparse page yields empty content, not an
// error. When the browser path fails and the HTTP fallback is enabled, the
// page is refetched with a Chrome TLS fingerprint before giving up.
func (c *Coordinator) Scrape(ctx context.Context, target string) (*models.ScrapedContent, error) {
	if isSocialHost(target) {
		return nil, models.NewOpError(models.ErrCodeInvalidInput,
			"social network pages are login-walled and not scraped", nil)
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	content, err := c.scrapeBrowser(opCtx, target)
	if err == nil {
		return content, nil
	}
	if opCtx.Err() != nil {
		c.reset()
	}

	if c.opts.HTTPFallback && opCtx.Err() == nil {
		slog.Warn("browser scrape failed, trying HTTP fallback", "url", target, "error", err)
		if content, fbErr := c.scrapeHTTP(opCtx, target); fbErr == nil {
			return content, nil
		}
	}
	return nil, err
}

func (c *Coordinator) scrapeBrowser(ctx context.Context, target string) (*models.ScrapedContent, error) {
	drv, err := c.ensureDriver()
	if err != nil {
		return nil, err
	}

	// Pacing delay before the navigation; arbitrary-URL scraping at machine
	// cadence is what gets sessions burned.
	if err := pace(ctx); err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
	defer cancel()
	if err := drv.Navigate(navCtx, target); err != nil {
		return nil, err
	}

	snap, err := drv.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if cls := detect.FromHTML(snap.HTML, snap.FinalURL); cls != detect.Clean {
		c.captureFailure(ctx, drv, "scrape")
		return nil, models.NewOpError(models.ErrCodeChallenge,
			fmt.Sprintf("page served a %s challenge", cls), nil)
	}

	return extract.FromHTML(snap.HTML, target)
}

// scrapeHTTP is the no-browser fallback: plain HTTP with a Chrome TLS
// fingerprint. Pages that need JS rendering are rejected rather than
// extracted as empty shells.
func (c *Coordinator) scrapeHTTP(ctx context.Context, target string) (*models.ScrapedContent, error) {
	proxy := ""
	if len(c.opts.Proxies) > 0 {
		proxy = c.opts.Proxies[c.relaunches%len(c.opts.Proxies)]
	}
	body, err := c.fetcher.fetch(ctx, target, proxy)
	if err != nil {
		return nil, models.NewOpError(models.ErrCodeNavigation, "HTTP fallback fetch failed", err)
	}
	if needsBrowser(body) {
		return nil, models.NewOpError(models.ErrCodeNavigation,
			"HTTP fallback returned a JS-dependent shell", nil)
	}
	if cls := detect.FromHTML(string(body), target); cls != detect.Clean {
		return nil, models.NewOpError(models.ErrCodeChallenge,
			fmt.Sprintf("HTTP fallback served a %s challenge", cls), nil)
	}
	return extract.FromHTML(string(body), target)
}

// pace sleeps a randomized human-scale interval, honoring cancellation.
func pace(ctx context.Context) error {
	d := time.Duration(500+rand.Intn(1000)) * time.Millisecond
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return models.NewOpError(models.ErrCodeNavigationTimeout, "canceled during pacing delay", ctx.Err())
	}
}

// captureFailure writes a screenshot of the offending page for diagnosis.
// Best-effort only.
func (c *Coordinator) captureFailure(ctx context.Context, drv Driver, op string) {
	if c.opts.ScreenshotDir == "" {
		return
	}
	png, err := drv.Screenshot(ctx)
	if err != nil {
		slog.Debug("failure screenshot not captured", "error", err)
		return
	}
	name := fmt.Sprintf("%s-%s.png", op, time.Now().UTC().Format("20060102-150405.000"))
	path := filepath.Join(c.opts.ScreenshotDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		slog.Debug("failure screenshot not written", "path", path, "error", err)
		return
	}
	slog.Info("failure screenshot written", "path", path)
}
