// Package thread assembles the linear text context sent to the
// scoring backend, walking a post's reply and quote lineage.
package thread

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/cache"
	"github.com/obsxrver/tweetfilter/internal/types"
)

// Context block markers
const (
	markerReply       = "[REPLY]"
	markerQuoted      = "[QUOTED_POST]"
	markerUnavailable = "[CONTEXT UNAVAILABLE]"
)

// ErrChainTooDeep reports a parent chain longer than the configured
// cap, which only happens when stored linkage data is corrupt.
var ErrChainTooDeep = errors.New("parent chain exceeds depth cap")

// Registry resolves live posts by id
type Registry interface {
	Lookup(id string) (*types.Post, bool)
}

// Builder assembles rating context for posts
type Builder struct {
	registry Registry
	cache    *cache.Cache
	maxDepth int
	log      *logrus.Entry
}

// New creates a context builder. Ancestors are resolved from the live
// registry first, then from the rating cache.
func New(registry Registry, c *cache.Cache, maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = 20
	}
	return &Builder{
		registry: registry,
		cache:    c,
		maxDepth: maxDepth,
		log:      logrus.WithField("component", "thread"),
	}
}

// Build returns the linear context for the post: ancestor blocks
// first, each separated by a reply marker, then the post's own block.
// When the chain exceeds the depth cap the partial context is
// returned together with ErrChainTooDeep.
func (b *Builder) Build(p *types.Post) (string, error) {
	blocks := []string{postBlock(p)}

	var err error
	parentID := p.ParentID
	for depth := 0; parentID != ""; depth++ {
		if depth >= b.maxDepth {
			b.log.WithFields(logrus.Fields{
				"post":  p.ID,
				"depth": depth,
			}).Warn("parent chain too deep, stored linkage may be corrupt")
			blocks = append(blocks, markerUnavailable)
			err = fmt.Errorf("%w: post %s", ErrChainTooDeep, p.ID)
			break
		}

		block, nextParent, ok := b.resolve(parentID)
		if !ok {
			blocks = append(blocks, markerUnavailable)
			break
		}
		blocks = append(blocks, block)
		parentID = nextParent
	}

	// Ancestors were collected child-first; the backend expects the
	// thread root at the top.
	var sb strings.Builder
	for i := len(blocks) - 1; i >= 0; i-- {
		sb.WriteString(blocks[i])
		if i > 0 {
			sb.WriteString("\n" + markerReply + "\n")
		}
	}
	return sb.String(), err
}

// resolve produces the context block for an ancestor id, preferring
// the live registry over the cache.
func (b *Builder) resolve(id string) (block, parentID string, ok bool) {
	if p, found := b.registry.Lookup(id); found {
		return postBlock(p), p.ParentID, true
	}

	if e := b.cache.Get(id); e != nil && e.IndividualText != "" {
		return entryBlock(id, e), "", true
	}
	return "", "", false
}

// postBlock renders one post as a context block
func postBlock(p *types.Post) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[POST %s]\n", p.ID)
	fmt.Fprintf(&sb, "Author:@%s:\n", p.AuthorHandle)
	sb.WriteString(p.Text)

	if len(p.MediaURLs) > 0 {
		sb.WriteString("\n[MEDIA_URLS]:\n")
		sb.WriteString(strings.Join(p.MediaURLs, ", "))
	}
	if p.Likes > 0 || p.Reposts > 0 || p.Replies > 0 {
		fmt.Fprintf(&sb, "\n[ENGAGEMENT]: likes=%d reposts=%d replies=%d", p.Likes, p.Reposts, p.Replies)
	}

	if p.QuoteText != "" || p.QuoteID != "" {
		sb.WriteString("\n" + markerQuoted + ":\n")
		fmt.Fprintf(&sb, "Author:@%s:\n", p.QuoteHandle)
		sb.WriteString(p.QuoteText)
		if len(p.QuoteMediaURLs) > 0 {
			sb.WriteString("\n[QUOTED_POST_MEDIA_URLS]:\n")
			sb.WriteString(strings.Join(p.QuoteMediaURLs, ", "))
		}
	}
	return sb.String()
}

// entryBlock renders a cached ancestor from its evidence fields
func entryBlock(id string, e *cache.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[POST %s]\n", id)
	fmt.Fprintf(&sb, "Author:@%s:\n", e.AuthorHandle)
	sb.WriteString(e.IndividualText)
	if len(e.IndividualMediaURLs) > 0 {
		sb.WriteString("\n[MEDIA_URLS]:\n")
		sb.WriteString(strings.Join(e.IndividualMediaURLs, ", "))
	}
	return sb.String()
}
