package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsxrver/tweetfilter/internal/engine"
	"github.com/obsxrver/tweetfilter/internal/extract"
	"github.com/obsxrver/tweetfilter/internal/types"
)

const fragmentA = `<article><a href="/alice/status/100"><time>1h</time></a><div data-testid="tweetText">post A</div></article>`
const fragmentB = `<article><a href="/bob/status/200"><time>2h</time></a><div data-testid="tweetText">post B</div></article>`

type recordingProcessor struct {
	mu    sync.Mutex
	posts []*types.Post
}

func (r *recordingProcessor) RatePost(ctx context.Context, p *types.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, p)
	return nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

func newTestScheduler(proc Processor, settle time.Duration, onFilterPass func()) (*Scheduler, *engine.PipelineContext) {
	pctx := engine.NewPipelineContext()
	s := New(extract.New(0, 0), pctx, proc, settle, 10*time.Millisecond, onFilterPass)
	return s, pctx
}

func TestScheduler_ProcessesAfterSettleDelay(t *testing.T) {
	proc := &recordingProcessor{}
	s, pctx := newTestScheduler(proc, 20*time.Millisecond, nil)
	defer s.Stop()

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))

	assert.Equal(t, 0, proc.count(), "nothing processed inside the settle window")

	assert.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 5*time.Millisecond)

	_, ok := pctx.Lookup("100")
	assert.True(t, ok, "processed post registered in the live registry")
}

func TestScheduler_DeduplicatesWhileScheduled(t *testing.T) {
	proc := &recordingProcessor{}
	s, _ := newTestScheduler(proc, 20*time.Millisecond, nil)
	defer s.Stop()

	for i := 0; i < 5; i++ {
		s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	}
	s.OnFragmentAdded(extract.StaticFragment(fragmentB))

	assert.Eventually(t, func() bool { return proc.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, proc.count())
}

func TestScheduler_RatedPostNotRescheduled(t *testing.T) {
	proc := &recordingProcessor{}
	s, pctx := newTestScheduler(proc, time.Millisecond, nil)
	defer s.Stop()

	p := types.NewPost("100", true)
	p.State = types.StateRated
	pctx.Register(p)

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, proc.count())
}

func TestScheduler_RemovalCancelsPending(t *testing.T) {
	proc := &recordingProcessor{}
	s, _ := newTestScheduler(proc, 30*time.Millisecond, nil)
	defer s.Stop()

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	s.OnFragmentRemoved(extract.StaticFragment(fragmentA))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, proc.count())
}

func TestScheduler_RemovalDropsRegistryEntry(t *testing.T) {
	proc := &recordingProcessor{}
	s, pctx := newTestScheduler(proc, time.Millisecond, nil)
	defer s.Stop()

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	require.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 5*time.Millisecond)

	s.OnFragmentRemoved(extract.StaticFragment(fragmentA))
	_, ok := pctx.Lookup("100")
	assert.False(t, ok)
}

func TestScheduler_FilterPassDebounced(t *testing.T) {
	var mu sync.Mutex
	passes := 0

	proc := &recordingProcessor{}
	s, _ := newTestScheduler(proc, time.Millisecond, func() {
		mu.Lock()
		passes++
		mu.Unlock()
	})
	defer s.Stop()

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	s.OnFragmentAdded(extract.StaticFragment(fragmentB))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return passes == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, passes, "burst of additions coalesces into one pass")
	mu.Unlock()
}

func TestScheduler_StopCancelsPendingWork(t *testing.T) {
	proc := &recordingProcessor{}
	s, _ := newTestScheduler(proc, 50*time.Millisecond, nil)

	s.OnFragmentAdded(extract.StaticFragment(fragmentA))
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, proc.count())

	// Additions after Stop are ignored.
	s.OnFragmentAdded(extract.StaticFragment(fragmentB))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, proc.count())
}
