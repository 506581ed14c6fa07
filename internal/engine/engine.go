// Package engine orchestrates the rating pipeline: cache lookups,
// context assembly, backend calls (batch or streamed), retry with
// global call spacing, and cache persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/obsxrver/tweetfilter/internal/blacklist"
	"github.com/obsxrver/tweetfilter/internal/cache"
	"github.com/obsxrver/tweetfilter/internal/notify"
	"github.com/obsxrver/tweetfilter/internal/thread"
	"github.com/obsxrver/tweetfilter/internal/transport"
	"github.com/obsxrver/tweetfilter/internal/types"
)

// Config holds the engine's tunables
type Config struct {
	Model        string
	Temperature  float32
	TopP         float32
	MaxTokens    int
	Streaming    bool
	MaxRetries   int
	CallSpacing  time.Duration
	Instructions string
}

// Events are the engine's outbound notifications. All callbacks are
// optional and invoked from the goroutine running the rating attempt.
type Events struct {
	// OnStateChange fires on every lifecycle transition.
	OnStateChange func(p *types.Post)
	// OnStreamDelta fires after each applied streaming delta.
	OnStreamDelta func(p *types.Post)
	// OnRated fires when a post reaches RATED, CACHED or BLACKLISTED.
	OnRated func(p *types.Post)
}

// Engine runs rating attempts for discovered posts
type Engine struct {
	cfg       Config
	pctx      *PipelineContext
	client    transport.Client
	cache     *cache.Cache
	blacklist *blacklist.List
	builder   *thread.Builder
	notifier  notify.Notifier
	events    Events
	log       *logrus.Entry
}

// New creates a rating engine
func New(cfg Config, pctx *PipelineContext, client transport.Client, c *cache.Cache,
	bl *blacklist.List, builder *thread.Builder, notifier notify.Notifier, events Events) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Engine{
		cfg:       cfg,
		pctx:      pctx,
		client:    client,
		cache:     c,
		blacklist: bl,
		builder:   builder,
		notifier:  notifier,
		events:    events,
		log:       logrus.WithField("component", "engine"),
	}
}

// Pipeline returns the shared pipeline state
func (e *Engine) Pipeline() *PipelineContext { return e.pctx }

// RatePost runs the full rating lifecycle for one post. A second call
// for an id that is already in flight returns immediately without a
// network call.
func (e *Engine) RatePost(ctx context.Context, p *types.Post) error {
	if e.blacklist != nil && e.blacklist.Contains(p.AuthorHandle) {
		p.State = types.StateBlacklisted
		e.emitState(p)
		e.emitRated(p)
		return nil
	}

	if e.applyCached(p) {
		return nil
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.pctx.acquire(p.ID, cancel) {
		return nil
	}
	defer e.pctx.release(p.ID)

	contextText, err := e.builder.Build(p)
	if err != nil {
		// Corrupt-chain anomaly: rate with the partial context.
		e.log.WithError(err).WithField("post", p.ID).Warn("context assembly anomaly")
	}
	messages := buildMessages(p.ID, contextText, e.cfg.Instructions)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := e.pctx.waitTurn(callCtx, e.cfg.CallSpacing); err != nil {
			return e.fail(p, err)
		}

		var rating *types.Rating
		if e.cfg.Streaming {
			rating, err = e.streamOnce(callCtx, p, messages)
		} else {
			rating, err = e.completeOnce(callCtx, p, messages)
		}
		if err == nil {
			e.finalize(p, rating, contextText)
			return nil
		}

		lastErr = err
		if callCtx.Err() != nil {
			break
		}
		e.log.WithError(err).WithFields(logrus.Fields{
			"post":    p.ID,
			"attempt": attempt,
		}).Warn("rating attempt failed")
	}

	return e.fail(p, lastErr)
}

// RateAll rates a batch of posts concurrently. The shared call gate
// still spaces the underlying backend calls.
func (e *Engine) RateAll(ctx context.Context, posts []*types.Post) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range posts {
		g.Go(func() error {
			return e.RatePost(ctx, p)
		})
	}
	return g.Wait()
}

// ErrNotRated reports a follow-up question on a post that has no
// finished rating to discuss.
var ErrNotRated = errors.New("post has no finished rating")

// AnswerFollowUp asks the backend a follow-up question about an
// already-rated post. The exchange is appended to the rating's
// conversation history and, for cacheable posts, persisted so the
// discussion survives restarts. The shared call gate spaces the
// backend call like any rating attempt.
func (e *Engine) AnswerFollowUp(ctx context.Context, p *types.Post, question string) (string, error) {
	if !p.Rating.IsValid() {
		return "", ErrNotRated
	}
	if err := e.pctx.waitTurn(ctx, e.cfg.CallSpacing); err != nil {
		return "", err
	}

	messages := buildFollowUpMessages(p, question)
	resp, err := e.client.Complete(ctx, e.request(messages))
	if err != nil {
		return "", fmt.Errorf("follow-up call for post %s: %w", p.ID, err)
	}

	answer, questions := parseAnswer(resp.Content)
	r := p.Rating
	r.AddConversationTurn(question, answer, resp.Reasoning)
	r.QAHistory = append(r.QAHistory,
		types.ChatMessage{Role: "user", Content: question},
		types.ChatMessage{Role: "assistant", Content: resp.Content},
	)
	if len(questions) > 0 {
		r.FollowUpQuestions = questions
	}

	if p.Cacheable {
		e.cache.Set(p.ID, cache.Update{
			FollowUpQuestions:   r.FollowUpQuestions,
			ConversationHistory: r.ConversationHistory,
			QAHistory:           r.QAHistory,
		}, false)
	}
	return answer, nil
}

// applyCached serves a post from the cache when a finished score
// exists, avoiding any network call.
func (e *Engine) applyCached(p *types.Post) bool {
	if !p.Cacheable {
		return false
	}
	entry := e.cache.Get(p.ID)
	if entry == nil || entry.Score == nil || entry.Streaming {
		return false
	}

	p.Rating = entry.Rating()
	p.State = types.StateCached
	e.emitState(p)
	e.emitRated(p)
	return true
}

// completeOnce issues one blocking backend call and parses the result
func (e *Engine) completeOnce(ctx context.Context, p *types.Post, messages []transport.Message) (*types.Rating, error) {
	resp, err := e.client.Complete(ctx, e.request(messages))
	if err != nil {
		return nil, err
	}
	return e.buildRating(resp)
}

// streamOnce issues one streaming backend call, applying deltas in
// arrival order and persisting streamed partials through the
// debounced cache so an interrupted session is recoverable.
func (e *Engine) streamOnce(ctx context.Context, p *types.Post, messages []transport.Message) (*types.Rating, error) {
	r := types.NewRating()
	r.Streaming = true
	p.Rating = r
	p.State = types.StateStreaming
	e.emitState(p)

	streaming := true
	onDelta := func(d transport.Delta) {
		r.Analysis += d.Content
		r.Reasoning += d.Reasoning
		if e.events.OnStreamDelta != nil {
			e.events.OnStreamDelta(p)
		}
		if p.Cacheable {
			e.cache.Set(p.ID, cache.Update{
				Analysis:  &r.Analysis,
				Reasoning: &r.Reasoning,
				Streaming: &streaming,
			}, false)
		}
	}

	resp, err := e.client.Stream(ctx, e.request(messages), onDelta)
	if err != nil {
		return nil, err
	}
	return e.buildRating(resp)
}

// buildRating validates a terminal backend response
func (e *Engine) buildRating(resp *transport.Response) (*types.Rating, error) {
	parsed, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	r := types.NewRating()
	r.Score = &parsed.Score
	r.Analysis = parsed.Analysis
	r.Reasoning = resp.Reasoning
	r.FollowUpQuestions = parsed.FollowUpQuestions
	r.UpdateMetadata(resp.Metadata)
	return r, nil
}

func (e *Engine) finalize(p *types.Post, r *types.Rating, contextText string) {
	p.Rating = r
	p.State = types.StateRated

	if p.Cacheable {
		u := cache.UpdateFromRating(p, r)
		u.FullContext = &contextText
		e.cache.Set(p.ID, u, false)
	}

	e.emitState(p)
	e.emitRated(p)
}

// fail marks the post ERROR, keeping any partial streamed text but
// never caching a score-less record over a valid one.
func (e *Engine) fail(p *types.Post, err error) error {
	p.State = types.StateError
	if p.Rating == nil {
		p.Rating = types.NewRating()
	}
	p.Rating.Streaming = false
	if err != nil {
		p.Rating.SetMetadata("error", err.Error())
	}
	e.emitState(p)

	if err != nil && !errors.Is(err, context.Canceled) && e.notifier != nil {
		e.notifier.Notify(fmt.Sprintf("Rating failed for post %s: %v", p.ID, err))
	}
	return err
}

func (e *Engine) request(messages []transport.Message) transport.Request {
	return transport.Request{
		Model:       e.cfg.Model,
		Messages:    messages,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
		MaxTokens:   e.cfg.MaxTokens,
	}
}

func (e *Engine) emitState(p *types.Post) {
	if e.events.OnStateChange != nil {
		e.events.OnStateChange(p)
	}
}

func (e *Engine) emitRated(p *types.Post) {
	if e.events.OnRated != nil {
		e.events.OnRated(p)
	}
}
