package engine

import (
	"context"
	"sync"
	"time"

	"github.com/obsxrver/tweetfilter/internal/types"
)

// PipelineContext owns the mutable state shared across rating
// attempts: the live post registry, the in-flight call table, and the
// earliest-next-call gate that spaces outbound backend calls.
type PipelineContext struct {
	mu       sync.Mutex
	posts    map[string]*types.Post
	inflight map[string]context.CancelFunc
	nextCall time.Time
}

// NewPipelineContext creates empty shared pipeline state
func NewPipelineContext() *PipelineContext {
	return &PipelineContext{
		posts:    make(map[string]*types.Post),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Register adds a post to the live registry
func (pc *PipelineContext) Register(p *types.Post) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.posts[p.ID] = p
}

// Lookup resolves a live post by id
func (pc *PipelineContext) Lookup(id string) (*types.Post, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	p, ok := pc.posts[id]
	return p, ok
}

// Drop removes a post from the live registry and cancels any
// in-flight rating call for it. Idempotent: dropping an unknown or
// already-completed id is a no-op.
func (pc *PipelineContext) Drop(id string) {
	pc.mu.Lock()
	cancel := pc.inflight[id]
	delete(pc.inflight, id)
	delete(pc.posts, id)
	pc.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// LiveCount returns the number of registered posts
func (pc *PipelineContext) LiveCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.posts)
}

// acquire claims the in-flight slot for id. It returns false when a
// rating attempt for the id is already active, enforcing per-id
// serialization.
func (pc *PipelineContext) acquire(id string, cancel context.CancelFunc) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, busy := pc.inflight[id]; busy {
		return false
	}
	pc.inflight[id] = cancel
	return true
}

func (pc *PipelineContext) release(id string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.inflight, id)
}

// waitTurn parks until this caller's slot in the global call schedule
// arrives, guaranteeing at least spacing between the starts of
// consecutive backend calls across all posts.
func (pc *PipelineContext) waitTurn(ctx context.Context, spacing time.Duration) error {
	pc.mu.Lock()
	now := time.Now()
	slot := pc.nextCall
	if slot.Before(now) {
		slot = now
	}
	pc.nextCall = slot.Add(spacing)
	pc.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
