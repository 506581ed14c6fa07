// Package watch drives a headless browser against the X.com home
// feed and reports post fragments as they enter and leave the
// timeline, feeding the rating scheduler.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/browser"
	"github.com/obsxrver/tweetfilter/internal/extract"
)

// StoredCookie is one persisted session cookie. A plain local struct
// is stored instead of the cdproto type, whose enum fields reject
// absent values on unmarshal.
type StoredCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	SameSite string `json:"same_site,omitempty"`
}

// StoredCookies is the persisted session cookie format
type StoredCookies struct {
	Cookies    []StoredCookie `json:"cookies"`
	CapturedAt time.Time      `json:"captured_at"`
}

// LoadCookies reads session cookies from disk
func LoadCookies(path string) (*StoredCookies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file: %w", err)
	}
	return &stored, nil
}

// SaveCookies persists session cookies captured from a browser
func SaveCookies(path string, cookies []*network.Cookie) error {
	stored := StoredCookies{
		Cookies:    make([]StoredCookie, 0, len(cookies)),
		CapturedAt: time.Now(),
	}
	for _, c := range cookies {
		stored.Cookies = append(stored.Cookies, StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Sink receives fragment lifecycle events
type Sink interface {
	OnFragmentAdded(f extract.Fragment)
	OnFragmentRemoved(f extract.Fragment)
}

// Watcher polls the feed page for post fragments
type Watcher struct {
	feedURL      string
	pollInterval time.Duration
	headless     bool
	cookiePath   string
	sink         Sink
	log          *logrus.Entry

	mu   sync.Mutex
	seen map[string]string // post id -> last outerHTML snapshot
}

// New creates a feed watcher
func New(feedURL string, pollInterval time.Duration, headless bool, cookiePath string, sink Sink) *Watcher {
	return &Watcher{
		feedURL:      feedURL,
		pollInterval: pollInterval,
		headless:     headless,
		cookiePath:   cookiePath,
		sink:         sink,
		seen:         make(map[string]string),
		log:          logrus.WithField("component", "watch"),
	}
}

// Run opens the browser and polls the feed until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browser.Options(w.headless)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if w.cookiePath != "" {
		if err := w.injectCookies(browserCtx); err != nil {
			return fmt.Errorf("failed to inject cookies: %w", err)
		}
	}

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(w.feedURL),
		chromedp.WaitVisible(`article[data-testid="tweet"]`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}

	w.log.WithField("url", w.feedURL).Info("feed loaded, watching for posts")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.poll(browserCtx); err != nil {
			w.log.WithError(err).Warn("feed poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// injectCookies loads stored session cookies into the browser
func (w *Watcher) injectCookies(ctx context.Context) error {
	stored, err := LoadCookies(w.cookiePath)
	if err != nil {
		if os.IsNotExist(err) {
			w.log.Warn("no cookie file found, feed may require login")
			return nil
		}
		return err
	}

	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range stored.Cookies {
				param := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly)
				if c.SameSite != "" {
					param = param.WithSameSite(network.CookieSameSite(c.SameSite))
				}
				if err := param.Do(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// collectJS returns the outerHTML of every visible post article
const collectJS = `
	(function() {
		const out = [];
		document.querySelectorAll('article[data-testid="tweet"]').forEach(el => {
			out.push(el.outerHTML);
		});
		return out;
	})()
`

// poll snapshots the visible articles and diffs them against the
// previous snapshot, emitting add and remove events.
func (w *Watcher) poll(browserCtx context.Context) error {
	var fragments []string
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(collectJS, &fragments),
	); err != nil {
		return fmt.Errorf("failed to collect fragments: %w", err)
	}

	current := make(map[string]string, len(fragments))
	for _, html := range fragments {
		id, ok := extract.PeekID(html)
		if !ok {
			// Fragments without a readable permalink still get
			// processed but cannot be tracked across polls.
			w.sink.OnFragmentAdded(newLiveFragment(browserCtx, "", html))
			continue
		}
		current[id] = html
	}

	w.mu.Lock()
	added := make([]liveFragment, 0)
	removed := make([]liveFragment, 0)
	for id, html := range current {
		if _, ok := w.seen[id]; !ok {
			added = append(added, newLiveFragment(browserCtx, id, html))
		}
	}
	for id, html := range w.seen {
		if _, ok := current[id]; !ok {
			removed = append(removed, newLiveFragment(browserCtx, id, html))
		}
	}
	w.seen = current
	w.mu.Unlock()

	for _, f := range added {
		w.sink.OnFragmentAdded(f)
	}
	for _, f := range removed {
		w.sink.OnFragmentRemoved(f)
	}

	if len(added) > 0 || len(removed) > 0 {
		w.log.WithFields(logrus.Fields{
			"added":   len(added),
			"removed": len(removed),
			"visible": len(current),
		}).Debug("feed diff")
	}
	return nil
}

// Scroll advances the feed to surface more posts
func (w *Watcher) Scroll(browserCtx context.Context) error {
	return chromedp.Run(browserCtx,
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
	)
}

// liveFragment is a post fragment backed by the live page. HTML()
// re-reads the article from the DOM when possible, so retries observe
// media that finished rendering after discovery.
type liveFragment struct {
	browserCtx context.Context
	id         string
	snapshot   string
}

func newLiveFragment(browserCtx context.Context, id, snapshot string) liveFragment {
	return liveFragment{browserCtx: browserCtx, id: id, snapshot: snapshot}
}

// refetchJS locates an article by its status permalink and returns
// its current outerHTML, or empty when it left the document.
const refetchJS = `
	(function(id) {
		const links = document.querySelectorAll('a[href*="/status/' + id + '"]');
		for (const link of links) {
			const article = link.closest('article[data-testid="tweet"]');
			if (article) return article.outerHTML;
		}
		return '';
	})(%q)
`

func (f liveFragment) HTML() string {
	if f.id == "" || f.browserCtx == nil {
		return f.snapshot
	}

	var html string
	err := chromedp.Run(f.browserCtx,
		chromedp.Evaluate(fmt.Sprintf(refetchJS, f.id), &html),
	)
	if err != nil || html == "" {
		return f.snapshot
	}
	return html
}
