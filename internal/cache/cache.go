// Package cache implements the persistent, id-keyed rating cache.
// The in-memory map is authoritative; writes are coalesced into a
// single trailing debounce window before being flushed to the
// key-value store as one JSON object keyed by post id.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/storage"
	"github.com/obsxrver/tweetfilter/internal/types"
)

// DefaultDebounce is the trailing window for coalesced writes
const DefaultDebounce = 1500 * time.Millisecond

// Entry is one persisted cache record: the rating fields plus the
// bookkeeping fields used to rebuild thread context for replies.
type Entry struct {
	Score     *int   `json:"score"`
	Analysis  string `json:"analysis,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	Metadata            map[string]any      `json:"metadata,omitempty"`
	FollowUpQuestions   []string            `json:"follow_up_questions,omitempty"`
	ConversationHistory []types.QATurn      `json:"conversation_history,omitempty"`
	QAHistory           []types.ChatMessage `json:"qa_history,omitempty"`

	// Bookkeeping: evidence captured from the fragment itself, kept
	// so ancestors of later replies can be reconstructed without the
	// original fragment.
	AuthorHandle        string   `json:"author_handle,omitempty"`
	IndividualText      string   `json:"individual_text,omitempty"`
	IndividualMediaURLs []string `json:"individual_media_urls,omitempty"`
	FullContext         string   `json:"full_context,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	Streaming   bool      `json:"streaming"`
	Blacklisted bool      `json:"blacklisted,omitempty"`
	FromStorage bool      `json:"-"`
}

// Rating hydrates a rating entity from a persisted entry. This is the
// only path from stored data back into the entity model. The rating
// owns its own copies; mutating it never touches cached state.
func (e *Entry) Rating() *types.Rating {
	r := &types.Rating{
		Score:               copyInt(e.Score),
		Analysis:            e.Analysis,
		Reasoning:           e.Reasoning,
		Metadata:            copyMetadata(e.Metadata),
		FollowUpQuestions:   copySlice(e.FollowUpQuestions),
		ConversationHistory: copySlice(e.ConversationHistory),
		QAHistory:           copySlice(e.QAHistory),
		Timestamp:           e.Timestamp,
		Streaming:           e.Streaming,
		FromStorage:         true,
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	return r
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func copySlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Update is a partial cache write. Nil pointer fields are left
// untouched by the merge, so there is no way to overwrite a valid
// score with an absent one.
type Update struct {
	Score     *int
	Analysis  *string
	Reasoning *string

	Metadata            map[string]any
	FollowUpQuestions   []string
	ConversationHistory []types.QATurn
	QAHistory           []types.ChatMessage

	AuthorHandle        *string
	IndividualText      *string
	IndividualMediaURLs []string
	FullContext         *string

	Timestamp   *time.Time
	Streaming   *bool
	Blacklisted *bool
}

// UpdateFromRating builds a cache update carrying a post's rating and
// its bookkeeping evidence fields.
func UpdateFromRating(p *types.Post, r *types.Rating) Update {
	u := Update{
		Score:               r.Score,
		Analysis:            &r.Analysis,
		Reasoning:           &r.Reasoning,
		Metadata:            r.Metadata,
		FollowUpQuestions:   r.FollowUpQuestions,
		ConversationHistory: r.ConversationHistory,
		QAHistory:           r.QAHistory,
		Timestamp:           &r.Timestamp,
		Streaming:           &r.Streaming,
		AuthorHandle:        &p.AuthorHandle,
		IndividualText:      &p.Text,
		IndividualMediaURLs: p.MediaURLs,
	}
	return u
}

// CleanupStats reports what a cleanup pass removed
type CleanupStats struct {
	Before              int
	After               int
	Deleted             int
	StreamingIncomplete int
	InvalidScore        int
}

// Cache is the id-keyed rating cache
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	kv      storage.KV
	dirty   func(f func())
	log     *logrus.Entry
}

// New creates a cache hydrated from the key-value store. Corrupt
// stored JSON resets the cache to empty rather than failing.
func New(kv storage.KV, debounceWindow time.Duration) *Cache {
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounce
	}

	c := &Cache{
		entries: make(map[string]*Entry),
		kv:      kv,
		dirty:   debounce.New(debounceWindow),
		log:     logrus.WithField("component", "cache"),
	}
	c.load()
	return c
}

func (c *Cache) load() {
	raw := c.kv.Get(storage.KeyRatings, "{}")

	var entries map[string]*Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.log.WithError(err).Error("stored ratings corrupt, resetting cache")
		c.entries = make(map[string]*Entry)
		return
	}

	for id, e := range entries {
		if e == nil {
			delete(entries, id)
			continue
		}
		e.FromStorage = true
	}
	c.entries = entries
	c.log.WithField("entries", len(entries)).Info("rating cache loaded")
}

// Get returns a copy of the entry for id, or nil when absent. The
// copy keeps callers from mutating cached state outside Set.
func (c *Cache) Get(id string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	cp.Score = copyInt(e.Score)
	cp.Metadata = copyMetadata(e.Metadata)
	cp.FollowUpQuestions = copySlice(e.FollowUpQuestions)
	cp.ConversationHistory = copySlice(e.ConversationHistory)
	cp.QAHistory = copySlice(e.QAHistory)
	cp.IndividualMediaURLs = copySlice(e.IndividualMediaURLs)
	return &cp
}

// Has reports whether an entry exists for id
func (c *Cache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Set merges a partial update into the entry for id. Non-immediate
// writes are coalesced into the shared debounce window; immediate
// writes flush synchronously.
func (c *Cache) Set(id string, u Update, immediate bool) {
	c.mu.Lock()

	e, ok := c.entries[id]
	if !ok {
		e = &Entry{Timestamp: time.Now()}
		c.entries[id] = e
	}
	merge(e, u)

	if immediate {
		c.saveLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.dirty(c.Flush)
}

// merge applies the merge-on-write invariant: a field is overwritten
// only when the incoming value is present, and evidence fields are
// never shrunk by a partial re-scrape.
func merge(e *Entry, u Update) {
	if u.Score != nil {
		e.Score = u.Score
	}
	if u.Analysis != nil {
		e.Analysis = *u.Analysis
	}
	if u.Reasoning != nil {
		e.Reasoning = *u.Reasoning
	}
	if u.FullContext != nil {
		e.FullContext = *u.FullContext
	}
	if u.AuthorHandle != nil && *u.AuthorHandle != "" {
		e.AuthorHandle = *u.AuthorHandle
	}
	if u.Metadata != nil {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		for k, v := range u.Metadata {
			e.Metadata[k] = v
		}
	}
	if u.FollowUpQuestions != nil {
		e.FollowUpQuestions = u.FollowUpQuestions
	}
	if u.ConversationHistory != nil {
		e.ConversationHistory = u.ConversationHistory
	}
	if u.QAHistory != nil {
		e.QAHistory = u.QAHistory
	}

	// Evidence fields keep the more complete capture.
	if u.IndividualText != nil && len(*u.IndividualText) > len(e.IndividualText) {
		e.IndividualText = *u.IndividualText
	}
	if u.IndividualMediaURLs != nil && len(u.IndividualMediaURLs) > len(e.IndividualMediaURLs) {
		e.IndividualMediaURLs = u.IndividualMediaURLs
	}

	if u.Timestamp != nil {
		e.Timestamp = *u.Timestamp
	}
	if u.Streaming != nil {
		e.Streaming = *u.Streaming
	}
	if u.Blacklisted != nil {
		e.Blacklisted = *u.Blacklisted
	}
}

// Delete removes an entry and flushes immediately
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	c.saveLocked()
}

// Clear removes all entries and flushes immediately
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.saveLocked()
}

// Size returns the number of cached entries
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes pending state to the key-value store now
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked()
}

func (c *Cache) saveLocked() {
	data, err := json.Marshal(c.entries)
	if err != nil {
		c.log.WithError(err).Error("failed to encode rating cache")
		return
	}
	c.kv.Set(storage.KeyRatings, string(data))
}

// Cleanup removes entries with no usable score, recovering from
// interrupted streaming sessions. The result distinguishes entries
// that died mid-stream from otherwise-invalid ones.
func (c *Cache) Cleanup() CleanupStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CleanupStats{Before: len(c.entries)}
	for id, e := range c.entries {
		if e.Score != nil {
			continue
		}
		if e.Streaming {
			stats.StreamingIncomplete++
		} else {
			stats.InvalidScore++
		}
		delete(c.entries, id)
		stats.Deleted++
	}
	stats.After = len(c.entries)

	if stats.Deleted > 0 {
		c.saveLocked()
	}
	return stats
}
