// Package scheduler turns fragment add/remove events into rating
// work, with dedup, a settle delay for still-rendering fragments, and
// orphan cleanup when fragments leave the document.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"

	"github.com/obsxrver/tweetfilter/internal/engine"
	"github.com/obsxrver/tweetfilter/internal/extract"
	"github.com/obsxrver/tweetfilter/internal/types"
)

// Processor rates a discovered post
type Processor interface {
	RatePost(ctx context.Context, p *types.Post) error
}

// Scheduler observes fragment discovery events
type Scheduler struct {
	extractor *extract.Extractor
	pctx      *engine.PipelineContext
	processor Processor

	settleDelay  time.Duration
	filterNotify func(f func())
	onFilterPass func()

	mu        sync.Mutex
	scheduled map[string]*time.Timer
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates a scheduler. onFilterPass (optional) is requested on a
// short trailing delay after each batch of additions so the filtering
// layer picks up late-discovered items in one pass.
func New(extractor *extract.Extractor, pctx *engine.PipelineContext, processor Processor,
	settleDelay, filterDelay time.Duration, onFilterPass func()) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		extractor:    extractor,
		pctx:         pctx,
		processor:    processor,
		settleDelay:  settleDelay,
		filterNotify: debounce.New(filterDelay),
		onFilterPass: onFilterPass,
		scheduled:    make(map[string]*time.Timer),
		ctx:          ctx,
		cancel:       cancel,
		log:          logrus.WithField("component", "scheduler"),
	}
}

// OnFragmentAdded schedules a newly discovered fragment for
// processing after the settle delay. Fragments whose id is already
// scheduled, in flight, or rated are not rescheduled.
func (s *Scheduler) OnFragmentAdded(f extract.Fragment) {
	id, _ := extract.PeekID(f.HTML())
	s.ScheduleProcessing(id, f)

	if s.onFilterPass != nil {
		s.filterNotify(s.onFilterPass)
	}
}

// ScheduleProcessing arms the settle-delay timer for a fragment. An
// empty id means the permalink was unreadable; the fragment is still
// processed (with a synthesized id) but cannot be deduplicated early.
func (s *Scheduler) ScheduleProcessing(id string, f extract.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if id != "" {
		if _, pending := s.scheduled[id]; pending {
			return
		}
		if p, ok := s.pctx.Lookup(id); ok && (p.InFlight() || p.State == types.StateRated || p.State == types.StateCached) {
			return
		}
	}

	s.wg.Add(1)
	timer := time.AfterFunc(s.settleDelay, func() {
		defer s.wg.Done()
		s.clearScheduled(id)
		s.process(f)
	})
	if id != "" {
		s.scheduled[id] = timer
	}
}

// OnFragmentRemoved drops the fragment's live registry entry and
// cancels its pending or in-flight work. The cached rating survives.
func (s *Scheduler) OnFragmentRemoved(f extract.Fragment) {
	id, ok := extract.PeekID(f.HTML())
	if !ok {
		return
	}

	s.mu.Lock()
	if timer, pending := s.scheduled[id]; pending {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.scheduled, id)
	}
	s.mu.Unlock()

	s.pctx.Drop(id)
	s.log.WithField("post", id).Debug("fragment removed, registry entry dropped")
}

func (s *Scheduler) clearScheduled(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.scheduled, id)
	s.mu.Unlock()
}

func (s *Scheduler) process(f extract.Fragment) {
	post, err := s.extractor.Extract(s.ctx, f)
	if err != nil {
		s.log.WithError(err).Warn("fragment extraction failed")
		return
	}

	s.pctx.Register(post)

	if err := s.processor.RatePost(s.ctx, post); err != nil {
		s.log.WithError(err).WithField("post", post.ID).Debug("rating ended with error")
	}
}

// Stop cancels pending timers and in-flight work, then waits for
// running attempts to wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.scheduled {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.scheduled, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
