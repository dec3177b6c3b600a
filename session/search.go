package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/lookout/detect"
	"github.com/use-agent/lookout/models"
	"github.com/use-agent/lookout/serp"
)

// searchState drives the per-engine attempt loop. One navigation cycle moves
// navigate → classify → extract; challenges divert through retry, and the
// last resort on the primary engine is the typed search-box fallback.
type searchState int

const (
	stateNavigate searchState = iota
	stateClassify
	stateExtract
	stateRetry
	stateBoxFallback
	stateDone
	stateFailed
)

func (s searchState) String() string {
	switch s {
	case stateNavigate:
		return "navigate"
	case stateClassify:
		return "classify"
	case stateExtract:
		return "extract"
	case stateRetry:
		return "retry"
	case stateBoxFallback:
		return "box_fallback"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// runSearch resolves the engine choice and runs the strategy chain. An
// explicit google or bing runs alone; empty or "all" runs google first and
// falls back to bing only after google's whole budget (including the
// search-box fallback) is spent.
func (c *Coordinator) runSearch(ctx context.Context, query string, engine models.Engine, num int) (*models.SearchResultSet, error) {
	if num <= 0 {
		num = 10
	}

	switch engine {
	case models.EngineGoogle, models.EngineBing:
		return c.runEngine(ctx, serp.ForEngine(engine), query, num, engine == models.EngineGoogle)
	}

	// Unpinned: google with full budget, then bing.
	set, googleErr := c.runEngine(ctx, serp.Google{}, query, num, true)
	if googleErr == nil {
		return set, nil
	}
	if ctx.Err() != nil || models.CodeOf(googleErr) == models.ErrCodeLaunch {
		return nil, googleErr
	}

	slog.Info("google exhausted, falling back to bing", "query", query, "error", googleErr)
	set, bingErr := c.runEngine(ctx, serp.Bing{}, query, num, false)
	if bingErr == nil {
		return set, nil
	}
	if ctx.Err() != nil || models.CodeOf(bingErr) == models.ErrCodeLaunch {
		return nil, bingErr
	}
	return nil, models.NewOpError(models.ErrCodeEngineUnavailable,
		"all engines exhausted: google, bing", bingErr)
}

// runEngine spends the retry budget on one engine. Captcha and rate-limit
// pages burn the current identity, so the browser relaunches under the next
// one before the retry; a hard block skips straight to the fallback stage.
// A clean page with zero organic results is treated like a soft challenge
// (layout shifts and interstitials both present this way), but if every
// stage ends clean-and-empty the empty set is the answer, not an error.
func (c *Coordinator) runEngine(ctx context.Context, strat serp.Strategy, query string, num int, boxFallback bool) (*models.SearchResultSet, error) {
	var (
		state    = stateNavigate
		attempt  = 1
		lastCls  detect.Classification
		lastErr  error
		emptySet *models.SearchResultSet
		snapHTML string
		finalURL string
	)

	log := slog.With("engine", strat.Engine(), "query", query)

	for {
		log.Debug("search state", "state", state, "attempt", attempt)

		switch state {
		case stateNavigate:
			drv, err := c.ensureDriver()
			if err != nil {
				return nil, err
			}
			navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
			err = drv.Navigate(navCtx, strat.SearchURL(query, num))
			cancel()
			if err != nil {
				lastErr = err
				c.reset()
				state = stateRetry
				continue
			}
			snap, err := drv.Snapshot(ctx)
			if err != nil {
				lastErr = err
				c.reset()
				state = stateRetry
				continue
			}
			snapHTML, finalURL = snap.HTML, snap.FinalURL
			state = stateClassify

		case stateClassify:
			lastCls = detect.FromHTML(snapHTML, finalURL)
			if lastCls == detect.Clean {
				state = stateExtract
				continue
			}
			log.Warn("challenge detected", "classification", lastCls, "attempt", attempt)
			if lastCls == detect.Blocked {
				// A hard block does not clear with retries on this engine.
				c.reset()
				state = stateBoxFallback
				continue
			}
			c.reset()
			state = stateRetry

		case stateExtract:
			set, err := parseSnapshot(strat, snapHTML, num)
			if err != nil {
				lastErr = err
				state = stateRetry
				continue
			}
			if len(set.OrganicResults) > 0 {
				return set, nil
			}
			emptySet = set
			state = stateRetry

		case stateRetry:
			if attempt >= c.budget() {
				state = stateBoxFallback
				continue
			}
			if err := backoff(ctx, c.opts.BackoffBase, attempt); err != nil {
				return nil, err
			}
			attempt++
			state = stateNavigate

		case stateBoxFallback:
			if !boxFallback || ctx.Err() != nil {
				state = stateFailed
				continue
			}
			boxFallback = false
			set, err := c.searchViaBox(ctx, strat, query, num)
			if err != nil {
				lastErr = err
				state = stateFailed
				continue
			}
			if len(set.OrganicResults) > 0 {
				return set, nil
			}
			emptySet = set
			state = stateFailed

		case stateFailed:
			if emptySet != nil && lastCls == detect.Clean {
				// The engine answered cleanly every time; there just are no
				// results for this query.
				return emptySet, nil
			}
			if c.driver != nil {
				c.captureFailure(ctx, c.driver, string(strat.Engine()))
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("final page classified as %s", lastCls)
			}
			return nil, models.NewOpError(models.ErrCodeChallenge,
				fmt.Sprintf("%s did not serve results within %d attempts", strat.Engine(), c.budget()),
				lastErr)
		}
	}
}

func (c *Coordinator) budget() int { return c.opts.RetryBudget }

// searchViaBox loads the engine homepage and submits the query through the
// real search box with human-paced typing. Direct result-URL navigation and
// an organic typed search are scored differently by bot defenses; this is
// the cheapest remaining move before abandoning the engine.
func (c *Coordinator) searchViaBox(ctx context.Context, strat serp.Strategy, query string, num int) (*models.SearchResultSet, error) {
	drv, err := c.ensureDriver()
	if err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavTimeout)
	err = drv.Navigate(navCtx, strat.HomeURL())
	cancel()
	if err != nil {
		return nil, err
	}

	if snap, snapErr := drv.Snapshot(ctx); snapErr == nil {
		if cls := detect.FromHTML(snap.HTML, snap.FinalURL); cls != detect.Clean {
			return nil, models.NewOpError(models.ErrCodeChallenge,
				fmt.Sprintf("engine homepage served a %s challenge", cls), nil)
		}
	}

	if err := drv.SubmitSearch(ctx, strat.BoxSelector(), query); err != nil {
		return nil, err
	}

	snap, err := drv.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cls := detect.FromHTML(snap.HTML, snap.FinalURL); cls != detect.Clean {
		return nil, models.NewOpError(models.ErrCodeChallenge,
			fmt.Sprintf("typed search served a %s challenge", cls), nil)
	}
	return parseSnapshot(strat, snap.HTML, num)
}

func parseSnapshot(strat serp.Strategy, rawHTML string, num int) (*models.SearchResultSet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewOpError(models.ErrCodeInternal, "failed to parse results page", err)
	}
	return strat.Parse(doc, num), nil
}

// backoff sleeps attempt*base; the delay grows with every retry so a
// rate-limited session is not hammered back-to-back.
func backoff(ctx context.Context, base time.Duration, attempt int) error {
	select {
	case <-time.After(base * time.Duration(attempt)):
		return nil
	case <-ctx.Done():
		return models.NewOpError(models.ErrCodeNavigationTimeout, "canceled during retry backoff", ctx.Err())
	}
}
