package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/lookout/browser"
	"github.com/use-agent/lookout/models"
)

const (
	cleanGooglePage = `<html><body>
	<div class="g"><a href="http://example.com/one"><h3>First Result Title</h3></a>
	<span class="VwiC3b">Snippet one.</span></div>
	<div class="g"><a href="http://example.com/two"><h3>Second Result Title</h3></a></div>
	</body></html>`

	cleanBingPage = `<html><body><ol id="b_results">
	<li class="b_algo"><h2><a href="http://example.org/bing">Bing Result Title</a></h2>
	<div class="b_caption"><p>Bing snippet.</p></div></li>
	</ol></body></html>`

	captchaPage = `<html><body><form id="captcha-form"></form>
	Our systems have detected unusual traffic from your computer network.
	</body></html>`

	googleHomePage = `<html><body><textarea name="q"></textarea></body></html>`
)

// fakeDriver simulates the browser. Page content is keyed off the last
// navigated URL; behavior knobs steer individual tests.
type fakeDriver struct {
	log *driverLog

	mu      sync.Mutex
	lastURL string
	alive   bool

	googleBlocked bool          // serve captcha for google result pages
	navHold       chan struct{} // first Navigate blocks until closed
	navHangs      bool          // Navigate blocks until ctx expires
}

// driverLog is shared across relaunches of fake drivers so a test can
// observe the whole operation history.
type driverLog struct {
	mu          sync.Mutex
	launches    int
	identities  []Identity
	navigations []string
	submits     int
	inUse       int
	maxInUse    int
}

func (l *driverLog) record(url string) {
	l.mu.Lock()
	l.navigations = append(l.navigations, url)
	l.mu.Unlock()
}

func (l *driverLog) countNav(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, u := range l.navigations {
		if strings.Contains(u, substr) {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.log.mu.Lock()
	d.log.inUse++
	if d.log.inUse > d.log.maxInUse {
		d.log.maxInUse = d.log.inUse
	}
	d.log.mu.Unlock()
	defer func() {
		d.log.mu.Lock()
		d.log.inUse--
		d.log.mu.Unlock()
	}()

	d.log.record(url)

	if d.navHangs {
		<-ctx.Done()
		return models.NewOpError(models.ErrCodeNavigationTimeout, "navigation deadline exceeded", ctx.Err())
	}
	if d.navHold != nil {
		hold := d.navHold
		d.navHold = nil
		<-hold
	}
	// Simulated page-load time; long enough for overlap to be observable.
	time.Sleep(2 * time.Millisecond)

	d.mu.Lock()
	d.lastURL = url
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Snapshot(ctx context.Context) (*browser.Snapshot, error) {
	d.mu.Lock()
	u := d.lastURL
	d.mu.Unlock()
	return &browser.Snapshot{HTML: d.htmlFor(u), FinalURL: u}, nil
}

func (d *fakeDriver) htmlFor(u string) string {
	switch {
	case strings.Contains(u, "bing.com"):
		return cleanBingPage
	case strings.Contains(u, "google.com/search"):
		if d.googleBlocked {
			return captchaPage
		}
		return cleanGooglePage
	case strings.Contains(u, "google.com"):
		return googleHomePage
	}
	return "<html><body><p>plain page</p></body></html>"
}

func (d *fakeDriver) SubmitSearch(ctx context.Context, boxSelector, query string) error {
	d.log.mu.Lock()
	d.log.submits++
	d.log.mu.Unlock()
	d.mu.Lock()
	d.lastURL = "https://www.google.com/search?q=" + query
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (d *fakeDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *fakeDriver) Dispose() {
	d.mu.Lock()
	d.alive = false
	d.mu.Unlock()
}

// newFakeCoordinator builds a coordinator over fake drivers sharing one log.
// configure runs on every freshly launched driver.
func newFakeCoordinator(opts Options, configure func(*fakeDriver)) (*Coordinator, *driverLog) {
	log := &driverLog{}
	factory := func(id Identity) (Driver, error) {
		log.mu.Lock()
		log.launches++
		log.identities = append(log.identities, id)
		log.mu.Unlock()
		d := &fakeDriver{log: log, alive: true}
		if configure != nil {
			configure(d)
		}
		return d, nil
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	return NewCoordinator(factory, opts), log
}

func TestCoordinator_MutualExclusion(t *testing.T) {
	c, log := newFakeCoordinator(Options{}, nil)
	defer c.Close()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Search(context.Background(), "concurrency", models.EngineGoogle, 10)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if log.maxInUse > 1 {
		t.Errorf("browser driven by %d operations at once, want at most 1", log.maxInUse)
	}
	if got := log.countNav("google.com/search"); got != workers {
		t.Errorf("navigations = %d, want %d", got, workers)
	}
}

func TestCoordinator_FIFOOrder(t *testing.T) {
	hold := make(chan struct{})
	c, log := newFakeCoordinator(Options{}, func(d *fakeDriver) {
		d.navHold = hold
	})
	defer c.Close()

	queries := []string{"first", "second", "third", "fourth"}
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			if _, err := c.Search(context.Background(), q, models.EngineGoogle, 10); err != nil {
				t.Errorf("search %q: %v", q, err)
			}
		}(q)
		// Stagger arrivals so queue order is deterministic. The first caller
		// is parked inside Navigate, the rest are parked in the queue.
		time.Sleep(20 * time.Millisecond)
	}
	close(hold)
	wg.Wait()

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.navigations) != len(queries) {
		t.Fatalf("navigations = %d, want %d", len(log.navigations), len(queries))
	}
	for i, q := range queries {
		if !strings.Contains(log.navigations[i], "q="+q) {
			t.Errorf("navigation %d = %q, want query %q: queue order violated", i, log.navigations[i], q)
		}
	}
}

func TestCoordinator_QueueTimeout(t *testing.T) {
	hold := make(chan struct{})
	c, _ := newFakeCoordinator(Options{QueueTimeout: 30 * time.Millisecond}, func(d *fakeDriver) {
		d.navHold = hold
	})
	defer func() {
		close(hold)
		c.Close()
	}()

	go func() {
		_, _ = c.Search(context.Background(), "holder", models.EngineGoogle, 10)
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := c.Search(context.Background(), "waiter", models.EngineGoogle, 10)
	if err == nil {
		t.Fatal("expected queue timeout")
	}
	if code := models.CodeOf(err); code != models.ErrCodeQueueTimeout {
		t.Errorf("error code = %q, want %q", code, models.ErrCodeQueueTimeout)
	}
}

func TestCoordinator_GoogleFallsBackToBing(t *testing.T) {
	const budget = 3
	c, log := newFakeCoordinator(Options{RetryBudget: budget}, func(d *fakeDriver) {
		d.googleBlocked = true
	})
	defer c.Close()

	set, err := c.Search(context.Background(), "resilience", models.EngineAny, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if set.Engine != models.EngineBing {
		t.Errorf("serving engine = %q, want bing", set.Engine)
	}
	if len(set.OrganicResults) == 0 {
		t.Error("expected organic results from bing")
	}

	// Google gets its full direct-URL budget, then exactly one typed
	// search-box attempt, before bing is tried at all.
	if got := log.countNav("google.com/search"); got != budget {
		t.Errorf("google result-page navigations = %d, want %d", got, budget)
	}
	if log.submits != 1 {
		t.Errorf("search-box submissions = %d, want 1", log.submits)
	}
	if got := log.countNav("bing.com/search"); got != 1 {
		t.Errorf("bing navigations = %d, want 1", got)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	// Each burned identity forces a relaunch under a fresh one.
	if log.launches < budget {
		t.Errorf("launches = %d, want at least %d", log.launches, budget)
	}
	seen := map[string]struct{}{}
	for _, id := range log.identities {
		seen[id.UserAgent] = struct{}{}
	}
	if len(seen) < 2 {
		t.Errorf("identity rotation did not vary user agents: %v", log.identities)
	}
}

func TestCoordinator_CleanGoogleServesDirectly(t *testing.T) {
	c, log := newFakeCoordinator(Options{}, nil)
	defer c.Close()

	set, err := c.Search(context.Background(), "best pizza in NYC", models.EngineGoogle, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if set.Engine != models.EngineGoogle {
		t.Errorf("serving engine = %q, want google", set.Engine)
	}
	if len(set.OrganicResults) != 1 {
		t.Errorf("organic results = %d, want 1 (num honored)", len(set.OrganicResults))
	}
	if got := log.countNav("google.com/search"); got != 1 {
		t.Errorf("navigations = %d, want 1 on a clean first attempt", got)
	}
	if log.submits != 0 {
		t.Errorf("search box used on a clean direct navigation")
	}
}

func TestCoordinator_ExplicitBingSkipsGoogle(t *testing.T) {
	c, log := newFakeCoordinator(Options{}, nil)
	defer c.Close()

	set, err := c.Search(context.Background(), "pinned", models.EngineBing, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if set.Engine != models.EngineBing {
		t.Errorf("serving engine = %q, want bing", set.Engine)
	}
	if got := log.countNav("google.com"); got != 0 {
		t.Errorf("google navigated %d times for an explicit bing search", got)
	}
}

func TestCoordinator_ExplicitGoogleNeverFallsBack(t *testing.T) {
	c, log := newFakeCoordinator(Options{RetryBudget: 2}, func(d *fakeDriver) {
		d.googleBlocked = true
	})
	defer c.Close()

	_, err := c.Search(context.Background(), "pinned", models.EngineGoogle, 10)
	if err == nil {
		t.Fatal("expected failure when pinned engine is challenged")
	}
	if code := models.CodeOf(err); code != models.ErrCodeChallenge {
		t.Errorf("error code = %q, want %q", code, models.ErrCodeChallenge)
	}
	if got := log.countNav("bing.com"); got != 0 {
		t.Errorf("bing navigated %d times for an explicit google search", got)
	}
}

func TestCoordinator_OpTimeoutForcesRelaunch(t *testing.T) {
	hangs := true
	c, log := newFakeCoordinator(Options{
		OpTimeout:   50 * time.Millisecond,
		NavTimeout:  30 * time.Millisecond,
		RetryBudget: 1,
	}, func(d *fakeDriver) {
		d.navHangs = hangs
	})
	defer c.Close()

	if _, err := c.Search(context.Background(), "wedged", models.EngineGoogle, 10); err == nil {
		t.Fatal("expected failure from a wedged navigation")
	}
	if c.Alive() {
		t.Error("coordinator still reports alive after forced reset")
	}

	// The next operation must get a fresh browser, not the wedged one.
	hangs = false
	before := func() int {
		log.mu.Lock()
		defer log.mu.Unlock()
		return log.launches
	}()
	if _, err := c.Search(context.Background(), "recovered", models.EngineGoogle, 10); err != nil {
		t.Fatalf("search after reset: %v", err)
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.launches <= before {
		t.Errorf("launches = %d, want more than %d after forced reset", log.launches, before)
	}
}

func TestCoordinator_ScrapeRejectsSocialHosts(t *testing.T) {
	c, log := newFakeCoordinator(Options{}, nil)
	defer c.Close()

	for _, u := range []string{
		"https://twitter.com/someone/status/1",
		"https://www.instagram.com/p/abc/",
		"https://x.com/other",
	} {
		if _, err := c.Scrape(context.Background(), u); models.CodeOf(err) != models.ErrCodeInvalidInput {
			t.Errorf("Scrape(%q) error = %v, want invalid input", u, err)
		}
	}
	if got := log.countNav(""); got != 0 {
		t.Errorf("social URLs reached the browser: %d navigations", got)
	}
}

func TestCoordinator_BackoffIncreases(t *testing.T) {
	const budget = 3
	base := 15 * time.Millisecond
	c, _ := newFakeCoordinator(Options{RetryBudget: budget, BackoffBase: base}, func(d *fakeDriver) {
		d.googleBlocked = true
	})
	defer c.Close()

	start := time.Now()
	_, _ = c.Search(context.Background(), "throttled", models.EngineGoogle, 10)
	elapsed := time.Since(start)

	// Attempts 1 and 2 are followed by sleeps of 1*base and 2*base.
	if want := 3 * base; elapsed < want {
		t.Errorf("elapsed = %v, want at least %v of accumulated backoff", elapsed, want)
	}
}
