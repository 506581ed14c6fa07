// Package extract turns feed fragment HTML into canonical Post
// entities. Extraction is pure apart from a bounded retry that waits
// for lazily attached media elements.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/obsxrver/tweetfilter/internal/types"
)

// Fragment is a handle onto one feed fragment. HTML returns the
// current markup of the fragment's subtree; live fragments may return
// richer markup on a later call once lazy media has attached.
type Fragment interface {
	HTML() string
}

// StaticFragment is a fixed HTML snapshot
type StaticFragment string

// HTML returns the snapshot
func (f StaticFragment) HTML() string { return string(f) }

// Extractor parses post fragments
type Extractor struct {
	MaxRetries int
	RetryDelay time.Duration

	log *logrus.Entry
}

// New creates an extractor with the given media retry policy
func New(maxRetries int, retryDelay time.Duration) *Extractor {
	return &Extractor{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		log:        logrus.WithField("component", "extract"),
	}
}

// PeekID derives the post id from fragment markup without a full
// extraction. The second result is false when the fragment has no
// permalink and an id would have to be synthesized.
func PeekID(fragmentHTML string) (string, bool) {
	root, err := parse(fragmentHTML)
	if err != nil {
		return "", false
	}
	return extractID(root)
}

// Extract builds a Post from the fragment. Extraction anomalies
// (missing media, unresolved quote author) are logged and leave the
// affected fields empty; they never fail the whole extraction.
func (x *Extractor) Extract(ctx context.Context, f Fragment) (*types.Post, error) {
	root, err := parse(f.HTML())
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	id, ok := extractID(root)
	cacheable := ok
	if !ok {
		id = fallbackID()
	}

	post := types.NewPost(id, cacheable)

	quote := findQuoteContainer(root)
	post.AuthorHandle = extractAuthor(root, quote)
	post.Text = extractText(root, quote)
	post.IsAd = detectAd(root, quote)
	post.Likes, post.Reposts, post.Replies = extractMetrics(root)
	post.ParentID = extractParentID(root, quote, id)

	if quote != nil {
		post.QuoteText = extractText(quote, nil)
		post.QuoteHandle, post.QuoteID = extractQuoteAuthor(quote)
		if post.QuoteHandle == "" {
			x.log.WithField("post", id).Debug("quote author unresolved")
		}
		post.QuoteMediaURLs = extractMedia(quote)
	}

	post.MediaURLs = x.extractMediaWithRetry(ctx, f, root, quote)
	if len(post.MediaURLs) == 0 && len(post.QuoteMediaURLs) == 0 {
		x.log.WithField("post", id).Debug("no media found after retries")
	}

	// Media inside the quote belongs to the quoted post only.
	post.MediaURLs = subtract(post.MediaURLs, post.QuoteMediaURLs)

	return post, nil
}

// extractMediaWithRetry re-reads the fragment when no media is found,
// because lazily loaded media elements attach after first render.
func (x *Extractor) extractMediaWithRetry(ctx context.Context, f Fragment, root, quote *html.Node) []string {
	media := extractMediaOutsideQuote(root, quote)

	for retries := 0; len(media) == 0 && retries < x.MaxRetries; retries++ {
		select {
		case <-ctx.Done():
			return media
		case <-time.After(x.RetryDelay):
		}

		fresh, err := parse(f.HTML())
		if err != nil {
			return media
		}
		media = extractMediaOutsideQuote(fresh, findQuoteContainer(fresh))
	}
	return media
}

func fallbackID() string {
	return fmt.Sprintf("post-%s-%d", uuid.NewString()[:8], time.Now().UnixMilli())
}

func parse(fragment string) (*html.Node, error) {
	return html.Parse(strings.NewReader(fragment))
}

// extractID finds the fragment's own permalink: a /status/ anchor
// with a time element inside it (quoted posts carry /status/ links
// too, but never the timestamped permalink of the outer fragment).
func extractID(root *html.Node) (string, bool) {
	var id string
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		m := statusRe.FindStringSubmatch(attr(n, "href"))
		if m == nil {
			return true
		}
		if hasDescendant(n, "time") {
			id = m[1]
			return false
		}
		return true
	})
	if id != "" {
		return id, true
	}
	return "", false
}

func extractAuthor(root, quote *html.Node) string {
	userName := findFirst(root, func(n *html.Node) bool {
		return testID(n) == testIDUserName && !inside(n, quote)
	})
	if userName == nil {
		return ""
	}
	link := findFirst(userName, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" &&
			strings.HasPrefix(attr(n, "href"), "/")
	})
	if link == nil {
		return ""
	}
	handle := strings.TrimPrefix(attr(link, "href"), "/")
	if i := strings.IndexByte(handle, '/'); i >= 0 {
		handle = handle[:i]
	}
	return handle
}

// extractText returns the main text of the fragment, excluding any
// text that belongs to a nested quote container.
func extractText(root, quote *html.Node) string {
	var text string
	walk(root, func(n *html.Node) bool {
		if testID(n) != testIDTweetText || inside(n, quote) {
			return true
		}
		text = textContent(n)
		return false
	})
	return text
}

// findQuoteContainer locates the nested quoted-post container
func findQuoteContainer(root *html.Node) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			attr(n, "role") == "link" && attr(n, "tabindex") == "0"
	})
}

// extractQuoteAuthor resolves the quoted author from the avatar
// marker, falling back to the quote's own permalink. Returns the
// handle and the quoted post id; either may be empty.
func extractQuoteAuthor(quote *html.Node) (handle, quoteID string) {
	avatar := findFirst(quote, func(n *html.Node) bool {
		return strings.HasPrefix(testID(n), avatarContainerPrefix)
	})
	if avatar != nil {
		handle = strings.TrimPrefix(testID(avatar), avatarContainerPrefix)
	}

	link := findFirst(quote, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" &&
			quoteStatusRe.MatchString(attr(n, "href"))
	})
	if link != nil {
		m := quoteStatusRe.FindStringSubmatch(attr(link, "href"))
		if handle == "" {
			handle = m[1]
		}
		quoteID = m[2]
	}
	return handle, quoteID
}

// extractParentID returns a reply-chain parent id when the fragment
// links to an earlier post before its own text block (the
// replying-to context area), excluding the quote container.
func extractParentID(root, quote *html.Node, ownID string) string {
	var parentID string
	seenText := false
	walk(root, func(n *html.Node) bool {
		if testID(n) == testIDTweetText && !inside(n, quote) {
			seenText = true
			return false
		}
		if seenText || n.Type != html.ElementNode || n.Data != "a" || inside(n, quote) {
			return true
		}
		m := statusRe.FindStringSubmatch(attr(n, "href"))
		if m != nil && m[1] != ownID && !hasDescendant(n, "time") {
			parentID = m[1]
			return false
		}
		return true
	})
	return parentID
}

func detectAd(root, quote *html.Node) bool {
	found := false
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "span" || inside(n, quote) {
			return true
		}
		if hasElementChild(n) {
			return true
		}
		if strings.TrimSpace(textContent(n)) == adLabel {
			found = true
			return false
		}
		return true
	})
	return found
}

func extractMetrics(root *html.Node) (likes, reposts, replies int) {
	get := func(id string) int {
		n := findFirst(root, func(n *html.Node) bool { return testID(n) == id })
		if n == nil {
			return 0
		}
		label := attr(n, "aria-label")
		if m := metricRe.FindStringSubmatch(label); m != nil {
			return parseMetric(m[1])
		}
		return parseMetric(strings.TrimSpace(textContent(n)))
	}
	return get(testIDLike), get(testIDRetweet), get(testIDReply)
}

func extractMediaOutsideQuote(root, quote *html.Node) []string {
	all := extractMedia(root)
	if quote == nil {
		return all
	}
	return subtract(all, extractMedia(quote))
}

// extractMedia collects media URLs in DOM order, deduplicated. Images
// are normalized to a consistent size variant; videos contribute
// their description when one is present, else their poster frame.
func extractMedia(scope *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	walk(scope, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "img":
			src := attr(n, "src")
			if !strings.Contains(src, mediaHost) || strings.Contains(src, profileImagePath) {
				return true
			}
			add(normalizeMediaURL(src))
		case "video":
			if desc := strings.TrimSpace(attr(n, "aria-label")); desc != "" {
				add("[VIDEO_DESCRIPTION]: " + desc)
				return true
			}
			poster := attr(n, "poster")
			if strings.Contains(poster, mediaHost) && !strings.Contains(poster, profileImagePath) {
				add(normalizeMediaURL(poster))
			}
		}
		return true
	})
	return out
}

// normalizeMediaURL rewrites the size parameter to the
// highest-resolution variant when one is present
func normalizeMediaURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	name := u.Query().Get("name")
	if name == "" || name == "orig" {
		return raw
	}
	return strings.Replace(raw, "name="+name, "name=orig", 1)
}

// parseMetric converts abbreviated counts like "1.2K" or "5,731" to integers
func parseMetric(s string) int {
	if s == "" {
		return 0
	}

	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(strings.ToUpper(s), "K"):
		multiplier = 1000
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToUpper(s), "M"):
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}

func subtract(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	drop := make(map[string]bool, len(b))
	for _, s := range b {
		drop[s] = true
	}
	var out []string
	for _, s := range a {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}

// --- node helpers ---

// walk visits nodes in document order; fn returns false to stop
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func testID(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	return attr(n, attrTestID)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}

// inside reports whether n is within the subtree rooted at ancestor
func inside(n, ancestor *html.Node) bool {
	if ancestor == nil {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func hasDescendant(n *html.Node, tag string) bool {
	return findFirst(n, func(c *html.Node) bool {
		return c != n && c.Type == html.ElementNode && c.Data == tag
	}) != nil
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}
