// Package browser owns a single Chromium instance and the one page used for
// every navigation. A Handle is not safe for concurrent use; the session
// coordinator serializes access to it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/lookout/models"
	"github.com/ysmood/gson"
)

// Profile describes one browser launch. Proxy and UserAgent change between
// relaunches when the coordinator rotates identities; the rest is static
// configuration.
type Profile struct {
	Headless             bool
	NoSandbox            bool
	Bin                  string
	Proxy                string
	UserAgent            string
	WindowWidth          int
	WindowHeight         int
	LaunchTimeout        time.Duration
	BlockedResourceTypes []string
}

// Handle is a live browser process with one open page.
type Handle struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	router   *rod.HijackRouter
	profile  Profile

	alive    atomic.Bool
	disposed sync.Once
}

// Snapshot is the rendered state of the page after a navigation.
type Snapshot struct {
	HTML     string
	FinalURL string
	Title    string
}

// Start launches Chromium with the stealth flag set, connects over CDP, and
// opens the single working page. The launch itself runs under LaunchTimeout;
// a hung Chromium binary surfaces as a launch error instead of blocking the
// coordinator forever.
func Start(profile Profile) (*Handle, error) {
	l := launcher.New().
		Headless(profile.Headless).
		NoSandbox(profile.NoSandbox)

	if profile.Bin != "" {
		l = l.Bin(profile.Bin)
	}
	if profile.Proxy != "" {
		l = l.Proxy(profile.Proxy)
	}
	if profile.WindowWidth > 0 && profile.WindowHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", profile.WindowWidth, profile.WindowHeight))
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := launchWithTimeout(l, profile.LaunchTimeout)
	if err != nil {
		l.Kill()
		return nil, models.NewOpError(models.ErrCodeLaunch, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "proxy", profile.Proxy != "")

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewOpError(models.ErrCodeLaunch, "failed to connect to browser", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewOpError(models.ErrCodeLaunch, "failed to open page", err)
	}

	if profile.UserAgent != "" {
		if uaErr := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      profile.UserAgent,
			AcceptLanguage: "en-US,en",
		}); uaErr != nil {
			slog.Warn("user agent override failed", "error", uaErr)
		}
	}

	// Stealth JS masks navigator.webdriver and friends. It must be installed
	// before the first navigation to take effect.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	// Headless Chromium omits Accept-Language entirely, which is itself a
	// fingerprint; pin it to match the user agent pool.
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{"Accept-Language": gson.New("en-US,en;q=0.9")},
	}.Call(page)

	router := setupHijack(page, profile.BlockedResourceTypes)

	h := &Handle{
		browser:  b,
		launcher: l,
		page:     page,
		router:   router,
		profile:  profile,
	}
	h.alive.Store(true)
	return h, nil
}

// launchWithTimeout runs Launch in its own goroutine; Launch has no context
// hook, so the deadline is enforced from outside.
func launchWithTimeout(l *launcher.Launcher, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return l.Launch()
	}

	type launchResult struct {
		url string
		err error
	}
	done := make(chan launchResult, 1)
	go func() {
		u, err := l.Launch()
		done <- launchResult{url: u, err: err}
	}()

	select {
	case r := <-done:
		return r.url, r.err
	case <-time.After(timeout):
		return "", errors.New("browser launch timed out")
	}
}

// Navigate drives the page to the URL and waits for the DOM to settle. The
// deadline comes from ctx; on expiry the returned error carries the
// navigation-timeout code, any other failure the navigation-failed code.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	if !h.alive.Load() {
		return models.NewOpError(models.ErrCodeNavigation, "browser is not running", nil)
	}

	p := h.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return categorizeNavError(ctx, err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if ctx.Err() != nil {
			return categorizeNavError(ctx, err)
		}
		slog.Debug("DOM did not stabilize, proceeding with current state", "error", err)
	}
	return nil
}

func categorizeNavError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewOpError(models.ErrCodeNavigationTimeout, "navigation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return models.NewOpError(models.ErrCodeNavigationTimeout, "navigation canceled", err)
	}
	return models.NewOpError(models.ErrCodeNavigation, "navigation failed", err)
}

// Snapshot captures the rendered HTML plus the final URL and title. The final
// URL matters to challenge classification: Google redirects blocked clients
// to /sorry/ without failing the navigation.
func (h *Handle) Snapshot(ctx context.Context) (*Snapshot, error) {
	p := h.page.Context(ctx)
	html, err := p.HTML()
	if err != nil {
		return nil, models.NewOpError(models.ErrCodeNavigation, "failed to capture page HTML", err)
	}
	return &Snapshot{
		HTML:     html,
		FinalURL: evalStringOrEmpty(p, `() => window.location.href`),
		Title:    evalStringOrEmpty(p, `() => document.title`),
	}, nil
}

// SubmitSearch types the query into the search box matching boxSelector and
// presses Enter. Typing is per-rune with human-scale jitter; a burst-pasted
// query is a strong automation signal on search engines.
func (h *Handle) SubmitSearch(ctx context.Context, boxSelector, query string) error {
	p := h.page.Context(ctx)

	box, err := p.Element(boxSelector)
	if err != nil {
		return models.NewOpError(models.ErrCodeNavigation, "search box not found", err)
	}
	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return models.NewOpError(models.ErrCodeNavigation, "search box not clickable", err)
	}

	for _, r := range query {
		if err := p.InsertText(string(r)); err != nil {
			return models.NewOpError(models.ErrCodeNavigation, "typing into search box failed", err)
		}
		select {
		case <-time.After(time.Duration(50+rand.Intn(100)) * time.Millisecond):
		case <-ctx.Done():
			return categorizeNavError(ctx, ctx.Err())
		}
	}

	if err := p.Keyboard.Type(input.Enter); err != nil {
		return models.NewOpError(models.ErrCodeNavigation, "submitting search failed", err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil && ctx.Err() != nil {
		return categorizeNavError(ctx, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG. Best-effort diagnostics;
// callers log and continue on error.
func (h *Handle) Screenshot(ctx context.Context) ([]byte, error) {
	p := h.page.Context(ctx)
	return p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Alive reports whether the browser process is still usable.
func (h *Handle) Alive() bool {
	return h.alive.Load()
}

// Dispose tears down the page, the CDP connection, and the browser process.
// Idempotent; safe to call on an already-failed handle.
func (h *Handle) Dispose() {
	h.disposed.Do(func() {
		h.alive.Store(false)
		if h.router != nil {
			_ = h.router.Stop()
		}
		if h.page != nil {
			_ = h.page.Close()
		}
		if h.browser != nil {
			_ = h.browser.Close()
		}
		if h.launcher != nil {
			h.launcher.Kill()
		}
		slog.Debug("browser disposed")
	})
}

func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
