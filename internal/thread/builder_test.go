package thread

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsxrver/tweetfilter/internal/cache"
	"github.com/obsxrver/tweetfilter/internal/storage"
	"github.com/obsxrver/tweetfilter/internal/types"
)

type fakeRegistry map[string]*types.Post

func (r fakeRegistry) Lookup(id string) (*types.Post, bool) {
	p, ok := r[id]
	return p, ok
}

func newPost(id, handle, text, parentID string) *types.Post {
	p := types.NewPost(id, true)
	p.AuthorHandle = handle
	p.Text = text
	p.ParentID = parentID
	return p
}

func strPtr(v string) *string { return &v }

func TestBuild_SinglePost(t *testing.T) {
	b := New(fakeRegistry{}, cache.New(storage.NewMemory(), time.Hour), 20)

	p := newPost("1", "alice", "standalone post", "")
	out, err := b.Build(p)
	require.NoError(t, err)

	assert.Contains(t, out, "[POST 1]")
	assert.Contains(t, out, "Author:@alice:")
	assert.Contains(t, out, "standalone post")
	assert.NotContains(t, out, "[REPLY]")
}

func TestBuild_ReplyChainRootFirst(t *testing.T) {
	root := newPost("1", "alice", "root post", "")
	mid := newPost("2", "bob", "middle reply", "1")
	leaf := newPost("3", "carol", "leaf reply", "2")

	reg := fakeRegistry{"1": root, "2": mid}
	b := New(reg, cache.New(storage.NewMemory(), time.Hour), 20)

	out, err := b.Build(leaf)
	require.NoError(t, err)

	rootIdx := strings.Index(out, "root post")
	midIdx := strings.Index(out, "middle reply")
	leafIdx := strings.Index(out, "leaf reply")
	require.NotEqual(t, -1, rootIdx)
	assert.Less(t, rootIdx, midIdx)
	assert.Less(t, midIdx, leafIdx)
	assert.Equal(t, 2, strings.Count(out, "[REPLY]"))
}

func TestBuild_AncestorFromCache(t *testing.T) {
	c := cache.New(storage.NewMemory(), time.Hour)
	c.Set("1", cache.Update{
		AuthorHandle:        strPtr("alice"),
		IndividualText:      strPtr("cached ancestor text"),
		IndividualMediaURLs: []string{"https://pbs.twimg.com/media/a?name=orig"},
	}, true)

	b := New(fakeRegistry{}, c, 20)

	out, err := b.Build(newPost("2", "bob", "reply", "1"))
	require.NoError(t, err)

	assert.Contains(t, out, "cached ancestor text")
	assert.Contains(t, out, "Author:@alice:")
	assert.Contains(t, out, "[MEDIA_URLS]")
	assert.True(t, strings.Index(out, "cached ancestor text") < strings.Index(out, "reply"))
}

func TestBuild_UnresolvableAncestor(t *testing.T) {
	b := New(fakeRegistry{}, cache.New(storage.NewMemory(), time.Hour), 20)

	out, err := b.Build(newPost("2", "bob", "reply", "gone"))
	require.NoError(t, err)

	assert.Contains(t, out, "[CONTEXT UNAVAILABLE]")
	assert.Contains(t, out, "reply")
	// The unavailable marker stands in for the missing root.
	assert.Less(t, strings.Index(out, "[CONTEXT UNAVAILABLE]"), strings.Index(out, "reply"))
}

func TestBuild_CachedAncestorWithoutTextUnusable(t *testing.T) {
	c := cache.New(storage.NewMemory(), time.Hour)
	c.Set("1", cache.Update{AuthorHandle: strPtr("alice")}, true)

	b := New(fakeRegistry{}, c, 20)
	out, err := b.Build(newPost("2", "bob", "reply", "1"))
	require.NoError(t, err)
	assert.Contains(t, out, "[CONTEXT UNAVAILABLE]")
}

func TestBuild_DepthCap(t *testing.T) {
	// A cycle in stored linkage would walk forever without the cap.
	a := newPost("a", "x", "post a", "b")
	bp := newPost("b", "y", "post b", "a")
	reg := fakeRegistry{"a": a, "b": bp}

	b := New(reg, cache.New(storage.NewMemory(), time.Hour), 5)

	out, err := b.Build(a)
	require.ErrorIs(t, err, ErrChainTooDeep)
	assert.Contains(t, out, "[CONTEXT UNAVAILABLE]")
	assert.Contains(t, out, "post a")
}

func TestBuild_QuotedPost(t *testing.T) {
	p := newPost("1", "alice", "check this out", "")
	p.QuoteHandle = "bob"
	p.QuoteID = "2"
	p.QuoteText = "the quoted take"
	p.QuoteMediaURLs = []string{"https://pbs.twimg.com/media/q?name=orig"}

	b := New(fakeRegistry{}, cache.New(storage.NewMemory(), time.Hour), 20)
	out, err := b.Build(p)
	require.NoError(t, err)

	assert.Contains(t, out, "[QUOTED_POST]")
	assert.Contains(t, out, "Author:@bob:")
	assert.Contains(t, out, "the quoted take")
	assert.Contains(t, out, "[QUOTED_POST_MEDIA_URLS]")
}

func TestBuild_Engagement(t *testing.T) {
	p := newPost("1", "alice", "popular", "")
	p.Likes = 100
	p.Reposts = 20
	p.Replies = 5

	b := New(fakeRegistry{}, cache.New(storage.NewMemory(), time.Hour), 20)
	out, err := b.Build(p)
	require.NoError(t, err)
	assert.Contains(t, out, "[ENGAGEMENT]: likes=100 reposts=20 replies=5")
}
