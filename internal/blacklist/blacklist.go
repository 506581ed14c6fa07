// Package blacklist tracks author handles whose posts bypass scoring.
package blacklist

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/storage"
)

// List is the set of blacklisted author handles, persisted as a
// newline-joined list in the key-value store.
type List struct {
	mu      sync.RWMutex
	kv      storage.KV
	handles map[string]struct{}
}

// Load reads the blacklist from the key-value store
func Load(kv storage.KV) *List {
	l := &List{
		kv:      kv,
		handles: make(map[string]struct{}),
	}

	raw := kv.Get(storage.KeyBlacklistedHandles, "")
	for _, line := range strings.Split(raw, "\n") {
		if h := normalize(line); h != "" {
			l.handles[h] = struct{}{}
		}
	}
	if len(l.handles) > 0 {
		logrus.WithField("handles", len(l.handles)).Info("blacklist loaded")
	}
	return l
}

func normalize(handle string) string {
	h := strings.TrimSpace(strings.ToLower(handle))
	return strings.TrimPrefix(h, "@")
}

// Contains reports whether the handle is blacklisted
func (l *List) Contains(handle string) bool {
	h := normalize(handle)
	if h == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.handles[h]
	return ok
}

// Add inserts a handle and persists the list
func (l *List) Add(handle string) {
	h := normalize(handle)
	if h == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles[h] = struct{}{}
	l.saveLocked()
}

// Remove deletes a handle and persists the list
func (l *List) Remove(handle string) {
	h := normalize(handle)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handles, h)
	l.saveLocked()
}

// All returns the blacklisted handles in sorted order
func (l *List) All() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.handles))
	for h := range l.handles {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of blacklisted handles
func (l *List) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handles)
}

func (l *List) saveLocked() {
	out := make([]string, 0, len(l.handles))
	for h := range l.handles {
		out = append(out, h)
	}
	l.kv.Set(storage.KeyBlacklistedHandles, strings.Join(out, "\n"))
}
